package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ctagard/inspector-mcp/internal/config"
	"github.com/ctagard/inspector-mcp/internal/errors"
	"github.com/ctagard/inspector-mcp/internal/inspector"
	"github.com/ctagard/inspector-mcp/internal/vmservice"
	"github.com/ctagard/inspector-mcp/pkg/types"
)

const cleanupInterval = time.Minute

// Manager manages multiple inspector sessions
type Manager struct {
	cfg    *config.Config
	logger *slog.Logger
	dial   Dialer

	sessions map[string]*Session
	mu       sync.RWMutex

	maxSessions    int
	sessionTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// Option customizes a Manager.
type Option func(*Manager)

// WithDialer replaces the transport dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dial = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a manager and starts its idle cleanup loop
func NewManager(cfg *config.Config, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:            cfg,
		logger:         slog.Default(),
		sessions:       make(map[string]*Session),
		maxSessions:    cfg.MaxSessions,
		sessionTimeout: cfg.SessionTTL(),
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dial == nil {
		m.dial = NewDialer(ctx, cfg, m.logger)
	}

	if m.sessionTimeout > 0 {
		go m.cleanupLoop()
	}
	return m
}

// cleanupLoop periodically closes idle sessions
func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case now := <-ticker.C:
			m.cleanupIdleSessions(now)
		}
	}
}

// cleanupIdleSessions closes sessions unused for longer than the timeout
func (m *Manager) cleanupIdleSessions(now time.Time) {
	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if now.Sub(s.IdleSince()) > m.sessionTimeout {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		m.logger.Info("closing idle session", "session", s.ID, "idle", now.Sub(s.IdleSince()).Round(time.Second))
		m.closeSession(s)
	}
}

// Connect opens a session to the app described by req
func (m *Manager) Connect(ctx context.Context, req types.ConnectRequest) (*Session, error) {
	if req.Transport == "" {
		req.Transport = types.TransportKind(m.cfg.Transport)
	}
	if m.Count() >= m.maxSessions {
		return nil, errors.SessionLimitReached(m.maxSessions)
	}

	target, err := m.dial(ctx, req)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	s := &Session{
		ID:        uuid.New().String(),
		Transport: req.Transport,
		Target:    targetLabel(req),
		CreatedAt: now,
		target:    target,
		lastUsed:  now,
		groups:    make(map[string]*inspector.ObjectGroup),
	}
	// A forced refresh means every handle may be stale.
	s.Events = NewRecorder(s.DisposeGroups)
	logger := m.logger.With("session", s.ID)

	svc := vmservice.NewService(target.Conn, logger)
	ins, err := inspector.Connect(ctx, svc, inspector.Options{
		Logger:             logger,
		Navigator:          s.Events,
		PubRootDirectories: m.cfg.PubRootDirectories,
		Retry: inspector.RetryPolicy{
			MaxAttempts: m.cfg.Retry.MaxAttempts,
			Interval:    time.Duration(m.cfg.Retry.Interval),
		},
	})
	if err != nil {
		if closeErr := target.Close(context.Background()); closeErr != nil {
			logger.Warn("failed to close connection", "error", closeErr)
		}
		return nil, err
	}
	s.Inspector = ins
	ins.AddClient(s.Events)

	m.mu.Lock()
	if len(m.sessions) >= m.maxSessions {
		m.mu.Unlock()
		m.closeSession(s)
		return nil, errors.SessionLimitReached(m.maxSessions)
	}
	m.sessions[s.ID] = s
	m.mu.Unlock()

	logger.Info("session connected", "transport", s.Transport, "target", s.Target)
	return s, nil
}

// Get retrieves a session by ID and marks it used
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.SessionNotFound(id)
	}
	s.Touch()
	return s, nil
}

// List returns all sessions ordered by creation time
func (m *Manager) List() []*Session {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Disconnect closes a session and releases its connection
func (m *Manager) Disconnect(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return errors.SessionNotFound(id)
	}
	m.closeSession(s)
	return nil
}

func (m *Manager) closeSession(s *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.close(ctx); err != nil {
		m.logger.Warn("failed to close session cleanly (continuing cleanup)", "session", s.ID, "error", err)
	}
}

// Close shuts down the manager and all sessions
func (m *Manager) Close() {
	m.cancel()

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		m.closeSession(s)
	}
}
