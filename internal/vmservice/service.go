package vmservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Service layers typed VM service methods over a Conn and tracks which
// isolates are currently paused.
type Service struct {
	conn   Conn
	logger *slog.Logger

	pausedMu sync.RWMutex
	paused   map[string]bool

	listenersMu sync.RWMutex
	listeners   map[int]func(*Event)
	nextID      int
}

// NewService wraps conn. It installs itself as the connection's event handler.
func NewService(conn Conn, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		conn:      conn,
		logger:    logger,
		paused:    make(map[string]bool),
		listeners: make(map[int]func(*Event)),
	}
	conn.SetEventHandler(s.onEvent)
	return s
}

// Conn returns the underlying connection.
func (s *Service) Conn() Conn {
	return s.conn
}

// AddListener registers fn for every event and returns a function removing it.
func (s *Service) AddListener(fn func(*Event)) (remove func()) {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *Service) onEvent(event *Event) {
	if event.StreamID == StreamDebug {
		s.trackPause(event)
	}

	s.listenersMu.RLock()
	listeners := make([]func(*Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(event)
	}
}

// trackPause records pause/resume transitions. Events without an isolate
// apply to every isolate (the DAP bridge cannot name one).
func (s *Service) trackPause(event *Event) {
	var paused bool
	switch {
	case event.IsPause():
		paused = true
	case event.Kind == EventKindResume:
		paused = false
	default:
		return
	}

	id := "*"
	if event.Isolate != nil {
		id = event.Isolate.ID
	}

	s.pausedMu.Lock()
	s.paused[id] = paused
	if id == "*" {
		for k := range s.paused {
			s.paused[k] = paused
		}
	}
	s.pausedMu.Unlock()
}

// SetPaused seeds the pause state of an isolate, typically from Isolate.PauseEvent.
func (s *Service) SetPaused(isolateID string, paused bool) {
	s.pausedMu.Lock()
	s.paused[isolateID] = paused
	s.pausedMu.Unlock()
}

// IsPaused reports whether the isolate is currently suspended.
func (s *Service) IsPaused(isolateID string) bool {
	s.pausedMu.RLock()
	defer s.pausedMu.RUnlock()
	if paused, ok := s.paused[isolateID]; ok {
		return paused
	}
	return s.paused["*"]
}

// Go issues a raw request without waiting.
func (s *Service) Go(method string, params map[string]interface{}) *Call {
	return s.conn.Go(method, params)
}

func (s *Service) call(ctx context.Context, method string, params map[string]interface{}, v interface{}) error {
	raw, err := s.conn.Go(method, params).Wait(ctx)
	if err != nil {
		return err
	}
	return decodeObject(raw, v)
}

// GetVM returns the VM description including its isolates.
func (s *Service) GetVM(ctx context.Context) (*VM, error) {
	var vm VM
	if err := s.call(ctx, "getVM", nil, &vm); err != nil {
		return nil, fmt.Errorf("getVM failed: %w", err)
	}
	return &vm, nil
}

// GetIsolate loads an isolate.
func (s *Service) GetIsolate(ctx context.Context, isolateID string) (*Isolate, error) {
	var isolate Isolate
	if err := s.call(ctx, "getIsolate", map[string]interface{}{"isolateId": isolateID}, &isolate); err != nil {
		return nil, fmt.Errorf("getIsolate failed: %w", err)
	}
	return &isolate, nil
}

// ObjectParams builds the parameters of a getObject request.
func ObjectParams(isolateID, objectID string) map[string]interface{} {
	return map[string]interface{}{
		"isolateId": isolateID,
		"objectId":  objectID,
	}
}

// GetObject loads any object by id and returns the raw response.
func (s *Service) GetObject(ctx context.Context, isolateID, objectID string) (json.RawMessage, error) {
	return s.conn.Go("getObject", ObjectParams(isolateID, objectID)).Wait(ctx)
}

func (s *Service) getObject(ctx context.Context, isolateID, objectID string, v interface{}) error {
	raw, err := s.GetObject(ctx, isolateID, objectID)
	if err != nil {
		return fmt.Errorf("getObject %s failed: %w", objectID, err)
	}
	return decodeObject(raw, v)
}

// GetLibrary loads a library object.
func (s *Service) GetLibrary(ctx context.Context, isolateID, libraryID string) (*Library, error) {
	var lib Library
	if err := s.getObject(ctx, isolateID, libraryID, &lib); err != nil {
		return nil, err
	}
	return &lib, nil
}

// GetClass loads a class object.
func (s *Service) GetClass(ctx context.Context, isolateID, classID string) (*Class, error) {
	var class Class
	if err := s.getObject(ctx, isolateID, classID, &class); err != nil {
		return nil, err
	}
	return &class, nil
}

// GetFunc loads a function object.
func (s *Service) GetFunc(ctx context.Context, isolateID, funcID string) (*Func, error) {
	var fn Func
	if err := s.getObject(ctx, isolateID, funcID, &fn); err != nil {
		return nil, err
	}
	return &fn, nil
}

// GetScript loads a script object.
func (s *Service) GetScript(ctx context.Context, isolateID, scriptID string) (*Script, error) {
	var script Script
	if err := s.getObject(ctx, isolateID, scriptID, &script); err != nil {
		return nil, err
	}
	return &script, nil
}

// GetInstance loads an instance object.
func (s *Service) GetInstance(ctx context.Context, isolateID, instanceID string) (*Instance, error) {
	var instance Instance
	if err := s.getObject(ctx, isolateID, instanceID, &instance); err != nil {
		return nil, err
	}
	return &instance, nil
}

// EvaluateParams builds the parameters of an evaluate request.
func EvaluateParams(isolateID, targetID, expression string, scope map[string]string) map[string]interface{} {
	params := map[string]interface{}{
		"isolateId":  isolateID,
		"targetId":   targetID,
		"expression": expression,
	}
	if len(scope) > 0 {
		params["scope"] = scope
	}
	return params
}

// Evaluate evaluates expression in the context of targetID.
func (s *Service) Evaluate(ctx context.Context, isolateID, targetID, expression string, scope map[string]string) (*InstanceRef, error) {
	raw, err := s.conn.Go("evaluate", EvaluateParams(isolateID, targetID, expression, scope)).Wait(ctx)
	if err != nil {
		return nil, err
	}
	return DecodeInstanceRef(raw)
}

// ServiceExtensionParams builds the parameters of a service extension call.
func ServiceExtensionParams(isolateID string, params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out["isolateId"] = isolateID
	return out
}

// CallServiceExtension invokes a registered service extension such as
// ext.flutter.inspector.getRootWidget and returns its raw response object.
func (s *Service) CallServiceExtension(ctx context.Context, isolateID, method string, params map[string]interface{}) (json.RawMessage, error) {
	return s.conn.Go(method, ServiceExtensionParams(isolateID, params)).Wait(ctx)
}

// StreamListen subscribes to a stream. Subscribing twice is not an error.
func (s *Service) StreamListen(ctx context.Context, streamID string) error {
	_, err := s.conn.Go("streamListen", map[string]interface{}{"streamId": streamID}).Wait(ctx)
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == CodeStreamAlreadySubscribed {
		return nil
	}
	if err != nil {
		return fmt.Errorf("streamListen %s failed: %w", streamID, err)
	}
	return nil
}

// Close closes the underlying connection.
func (s *Service) Close() error {
	return s.conn.Close()
}
