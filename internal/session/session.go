// Package session manages the inspector sessions of the MCP server.
//
// A Session is one connected app: its VM service connection (direct or
// through a debug adapter), the inspector session on top of it, the named
// object groups MCP tools fetch into and the recorder of its events. The
// Manager creates sessions, looks them up by id and closes idle ones.
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ctagard/inspector-mcp/internal/inspector"
	"github.com/ctagard/inspector-mcp/internal/vmservice"
	"github.com/ctagard/inspector-mcp/pkg/types"
)

// DefaultGroup is the group tools use when the caller names none.
const DefaultGroup = "mcp"

// Session represents a connected app
type Session struct {
	ID        string
	Transport types.TransportKind
	Target    string
	CreatedAt time.Time

	Inspector *inspector.Session
	Events    *Recorder

	target *Target

	mu       sync.RWMutex
	closed   bool
	lastUsed time.Time
	groups   map[string]*inspector.ObjectGroup
}

// Touch marks the session as used now.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// IdleSince returns the time of the last use.
func (s *Session) IdleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUsed
}

// Status derives the session status from the isolate's pause state.
func (s *Session) Status() types.SessionStatus {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	switch {
	case closed:
		return types.SessionStatusClosed
	case s.Inspector == nil:
		return types.SessionStatusConnecting
	case s.Inspector.Service().IsPaused(s.Inspector.IsolateID()):
		return types.SessionStatusPaused
	default:
		return types.SessionStatusRunning
	}
}

// Group returns the live group registered under name, creating it when
// there is none or the registered one was disposed.
func (s *Session) Group(name string) *inspector.ObjectGroup {
	if name == "" {
		name = DefaultGroup
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.groups[name]; ok && !g.IsDisposed() {
		return g
	}
	g := s.Inspector.CreateObjectGroup(name)
	s.groups[name] = g
	return g
}

// RenewGroup registers a fresh group under name and disposes the previous
// one, invalidating every handle fetched into it.
func (s *Session) RenewGroup(name string) *inspector.ObjectGroup {
	if name == "" {
		name = DefaultGroup
	}
	g := s.Inspector.CreateObjectGroup(name)
	s.mu.Lock()
	old := s.groups[name]
	s.groups[name] = g
	s.mu.Unlock()
	if old != nil {
		old.Dispose()
	}
	return g
}

// DisposeGroup disposes the group registered under name. It reports whether
// there was one.
func (s *Session) DisposeGroup(name string) bool {
	s.mu.Lock()
	g, ok := s.groups[name]
	delete(s.groups, name)
	s.mu.Unlock()
	if ok {
		g.Dispose()
	}
	return ok
}

// DisposeGroups disposes every registered group.
func (s *Session) DisposeGroups() {
	s.mu.Lock()
	groups := s.groups
	s.groups = make(map[string]*inspector.ObjectGroup)
	s.mu.Unlock()
	for _, g := range groups {
		g.Dispose()
	}
}

// GroupNames returns the registered group names in order.
func (s *Session) GroupNames() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.groups))
	for name := range s.groups {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Service returns the VM service of the session.
func (s *Session) Service() *vmservice.Service {
	return s.Inspector.Service()
}

// GetInfo returns session info for a session
func (s *Session) GetInfo() types.SessionInfo {
	info := types.SessionInfo{
		SessionID: s.ID,
		Transport: s.Transport,
		Status:    s.Status(),
		Target:    s.Target,
		Groups:    s.GroupNames(),
	}
	if s.Inspector != nil {
		info.IsolateID = s.Inspector.IsolateID()
		info.Capabilities = s.Inspector.Capabilities().Methods()
	}
	if s.target != nil {
		info.PID = s.target.PID()
	}
	return info
}

// close tears the session down: groups, inspector, then the connection.
func (s *Session) close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.Inspector != nil {
		s.DisposeGroups()
		s.Inspector.Close()
	}
	if s.target != nil {
		return s.target.Close(ctx)
	}
	return nil
}
