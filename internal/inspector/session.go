package inspector

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ctagard/inspector-mcp/internal/errors"
	"github.com/ctagard/inspector-mcp/internal/vmservice"
)

const setPubRootDirectoriesMethod = "setPubRootDirectories"

// Client receives session notifications. Callbacks run one at a time on the
// session's delivery goroutine.
type Client interface {
	// OnSelectionChanged reports a new selection. uiAlreadyUpdated and
	// editorUpdated tell the client which views already show it.
	OnSelectionChanged(uiAlreadyUpdated, editorUpdated bool)
	// OnFrame reports that the app rendered a frame.
	OnFrame()
	// OnForceRefresh asks the client to drop cached state and refetch.
	OnForceRefresh(ctx context.Context) error
}

// Navigator opens source positions on behalf of the app. It is the
// workspace side of navigate tool events.
type Navigator interface {
	// ResolveFile maps a path from a file URI to a local file. ok is false
	// when the file does not exist.
	ResolveFile(path string) (file string, ok bool)
	Navigate(loc Location)
}

// RetryPolicy bounds the evaluation retry loop. MaxAttempts 0 retries until
// the group is disposed or the context ends.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// Options configures a Session. Every field is optional.
type Options struct {
	Logger             *slog.Logger
	Navigator          Navigator
	PathRewriter       PathRewriter
	PubRootDirectories []string
	Retry              RetryPolicy
}

// Session is the inspector of one running app. It owns the event
// subscription and the capability set, creates object groups and fans
// events out to clients.
type Session struct {
	service   *vmservice.Service
	library   *inspectorLibrary
	logger    *slog.Logger
	navigator Navigator
	rewriter  PathRewriter
	pubRoots  []string
	retry     RetryPolicy

	clientsMu sync.RWMutex
	clients   map[Client]struct{}

	queue          *deliveryQueue
	removeListener func()
	closeOnce      sync.Once
}

// Connect locates the widget inspector in the app behind svc and starts
// routing its events.
func Connect(ctx context.Context, svc *vmservice.Service, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	lib, err := findInspectorLibrary(ctx, svc)
	if err != nil {
		return nil, err
	}
	if lib.paused {
		svc.SetPaused(lib.isolateID, true)
	}

	s := &Session{
		service:   svc,
		library:   lib,
		logger:    logger.With("isolate", lib.isolateID),
		navigator: opts.Navigator,
		rewriter:  opts.PathRewriter,
		pubRoots:  opts.PubRootDirectories,
		retry:     opts.Retry,
		clients:   make(map[Client]struct{}),
		queue:     newDeliveryQueue(),
	}
	s.removeListener = svc.AddListener(s.onEvent)

	if err := svc.StreamListen(ctx, vmservice.StreamExtension); err != nil {
		s.Close()
		return nil, errors.RPCFailed("streamListen", err)
	}
	for _, stream := range []string{vmservice.StreamDebug, vmservice.StreamIsolate, vmservice.StreamToolEvent} {
		if err := svc.StreamListen(ctx, stream); err != nil {
			s.logger.Warn("stream unavailable", "stream", stream, "error", err)
		}
	}

	for _, rpc := range lib.extensions {
		if rpc == ExtensionPrefix+setPubRootDirectoriesMethod {
			go s.pushPubRoots()
			break
		}
	}

	s.logger.Info("inspector session started", "methods", lib.capabilities.Len())
	return s, nil
}

// Service returns the VM service the session talks to.
func (s *Session) Service() *vmservice.Service {
	return s.service
}

// IsolateID returns the id of the isolate running the inspector.
func (s *Session) IsolateID() string {
	return s.library.isolateID
}

// Capabilities returns the methods implemented by the app's inspector.
func (s *Session) Capabilities() Capabilities {
	return s.library.capabilities
}

// HasServiceMethod reports whether the app's inspector implements method.
func (s *Session) HasServiceMethod(method string) bool {
	return s.library.capabilities.Has(method)
}

// IsDetailsSummaryViewSupported reports whether the app supports summary
// trees and local-only selection.
func (s *Session) IsDetailsSummaryViewSupported() bool {
	return s.library.capabilities.DetailsSummaryView()
}

// IsHotUIScreenMirrorSupported reports whether the app supports bounding
// boxes, hit testing and location screenshots.
func (s *Session) IsHotUIScreenMirrorSupported() bool {
	return s.library.capabilities.HotUIScreenMirror()
}

// UseExtensionAPI reports whether calls should go out as service extension
// calls. While the isolate is paused, extension calls would wait for the
// next frame, so evaluation is used instead.
func (s *Session) UseExtensionAPI() bool {
	return !s.service.IsPaused(s.library.isolateID)
}

func (s *Session) extension() transport {
	return extensionTransport{service: s.service, isolateID: s.library.isolateID}
}

func (s *Session) eval() transport {
	return evalTransport{service: s.service, isolateID: s.library.isolateID, libraryID: s.library.libraryID}
}

// transport picks the wire strategy for one call.
func (s *Session) transport() transport {
	if s.UseExtensionAPI() {
		return s.extension()
	}
	return s.eval()
}

// CreateObjectGroup returns a new group named after label.
func (s *Session) CreateObjectGroup(label string) *ObjectGroup {
	return newObjectGroup(s, label)
}

// AddClient registers c for notifications.
func (s *Session) AddClient(c Client) {
	s.clientsMu.Lock()
	s.clients[c] = struct{}{}
	s.clientsMu.Unlock()
}

// RemoveClient unregisters c.
func (s *Session) RemoveClient(c Client) {
	s.clientsMu.Lock()
	delete(s.clients, c)
	s.clientsMu.Unlock()
}

func (s *Session) snapshotClients() []Client {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	out := make([]Client, 0, len(s.clients))
	for c := range s.clients {
		out = append(out, c)
	}
	return out
}

// deliver runs fn on the delivery goroutine.
func (s *Session) deliver(fn func()) {
	s.queue.push(fn)
}

func (s *Session) notifySelectionChanged(uiAlreadyUpdated, editorUpdated bool) {
	s.deliver(func() {
		for _, c := range s.snapshotClients() {
			c.OnSelectionChanged(uiAlreadyUpdated, editorUpdated)
		}
	})
}

func (s *Session) notifyFrame() {
	s.deliver(func() {
		for _, c := range s.snapshotClients() {
			c.OnFrame()
		}
	})
}

// onEvent runs on the connection's read loop and must not block.
func (s *Session) onEvent(e *vmservice.Event) {
	switch ev := classifyEvent(e).(type) {
	case selectionInspected:
		// Whoever sent Inspect already selected the object on the device.
		s.notifySelectionChanged(false, false)
	case frameRendered:
		s.notifyFrame()
	case navigateRequested:
		s.navigate(ev)
	case extensionAdded:
		if ev.Method == ExtensionPrefix+setPubRootDirectoriesMethod {
			go s.pushPubRoots()
		}
	}
}

func (s *Session) navigate(ev navigateRequested) {
	if s.navigator == nil {
		return
	}
	path, ok := navigatePath(ev.FileURI)
	if !ok {
		return
	}
	file, ok := s.navigator.ResolveFile(path)
	if !ok || ev.Line < 0 || ev.Column < 0 {
		return
	}
	loc := Location{Path: file, Line: ev.Line, Column: ev.Column}
	s.deliver(func() {
		s.navigator.Navigate(loc)
	})
}

func (s *Session) pushPubRoots() {
	if len(s.pubRoots) == 0 {
		return
	}
	roots := make([]string, len(s.pubRoots))
	for i, root := range s.pubRoots {
		roots[i] = PubRootForPath(root, runtime.GOOS)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.SetPubRootDirectories(ctx, roots); err != nil {
		s.logger.Warn("setPubRootDirectories failed", "error", err)
	}
}

// call runs a request that is not scoped to an object group.
func (s *Session) call(ctx context.Context, req request) (value, error) {
	tr := s.transport()
	raw, err := tr.issue(req).Wait(ctx)
	if err != nil {
		return value{}, errors.RPCFailed(req.method, err)
	}
	v, err := tr.decode(raw)
	if err != nil {
		return value{}, errors.RPCFailed(req.method, err)
	}
	return v, nil
}

// IsWidgetTreeReady reports whether the app has built its first frame.
// Until it has, clients should wait for a frame event before fetching trees.
func (s *Session) IsWidgetTreeReady(ctx context.Context) (bool, error) {
	v, err := s.call(ctx, request{method: "isWidgetTreeReady", params: map[string]interface{}{}})
	if err != nil {
		return false, err
	}
	if v.ref != nil {
		return v.ref.StringValue() == "true", nil
	}
	var ready bool
	if err := json.Unmarshal(v.json, &ready); err != nil {
		return false, errors.MalformedPayload("isWidgetTreeReady result", err)
	}
	return ready, nil
}

// SetPubRootDirectories tells the app which directories hold the user's
// code, which decides what shows up in summary trees.
func (s *Session) SetPubRootDirectories(ctx context.Context, roots []string) error {
	params := make(map[string]interface{}, len(roots))
	quoted := make([]string, len(roots))
	for i, root := range roots {
		params["arg"+strconv.Itoa(i)] = root
		quoted[i] = dartString(root)
	}
	req := request{
		method:     setPubRootDirectoriesMethod,
		params:     params,
		expression: serviceInstance + "." + setPubRootDirectoriesMethod + "([" + strings.Join(quoted, ",") + "])",
	}
	_, err := s.call(ctx, req)
	return err
}

// ForceRefresh asks every client to refresh and waits for all of them.
func (s *Session) ForceRefresh(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range s.snapshotClients() {
		c := c
		g.Go(func() error {
			return c.OnForceRefresh(ctx)
		})
	}
	return g.Wait()
}

// Close stops event routing. The VM service connection stays open; it
// belongs to whoever created it.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.removeListener != nil {
			s.removeListener()
		}
		s.queue.close()
		s.logger.Info("inspector session closed")
	})
}
