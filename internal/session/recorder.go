package session

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/ctagard/inspector-mcp/internal/inspector"
	"github.com/ctagard/inspector-mcp/pkg/types"
)

const maxRecordedEvents = 256

// Recorder is the inspector client and navigator of an MCP session. It keeps
// the most recent events until they are drained.
type Recorder struct {
	onRefresh func()

	mu      sync.Mutex
	events  []types.Event
	dropped int
}

var (
	_ inspector.Client    = (*Recorder)(nil)
	_ inspector.Navigator = (*Recorder)(nil)
)

// NewRecorder returns a recorder. onRefresh, if set, runs when the session
// asks clients to refresh.
func NewRecorder(onRefresh func()) *Recorder {
	return &Recorder{onRefresh: onRefresh}
}

func (r *Recorder) record(e types.Event) {
	e.Time = time.Now().UTC().Format(time.RFC3339Nano)
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == maxRecordedEvents {
		r.events = r.events[1:]
		r.dropped++
	}
	r.events = append(r.events, e)
}

// OnSelectionChanged implements inspector.Client.
func (r *Recorder) OnSelectionChanged(uiAlreadyUpdated, editorUpdated bool) {
	r.record(types.Event{Kind: types.EventSelectionChanged, UIAlready: uiAlreadyUpdated, TextEdit: editorUpdated})
}

// OnFrame implements inspector.Client. Consecutive frames collapse into one
// entry.
func (r *Recorder) OnFrame() {
	r.mu.Lock()
	n := len(r.events)
	repeated := n > 0 && r.events[n-1].Kind == types.EventFrame
	if repeated {
		r.events[n-1].Time = time.Now().UTC().Format(time.RFC3339Nano)
	}
	r.mu.Unlock()
	if !repeated {
		r.record(types.Event{Kind: types.EventFrame})
	}
}

// OnForceRefresh implements inspector.Client.
func (r *Recorder) OnForceRefresh(context.Context) error {
	r.record(types.Event{Kind: types.EventForceRefresh})
	if r.onRefresh != nil {
		r.onRefresh()
	}
	return nil
}

// ResolveFile implements inspector.Navigator.
func (r *Recorder) ResolveFile(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

// Navigate implements inspector.Navigator.
func (r *Recorder) Navigate(loc inspector.Location) {
	r.record(types.Event{
		Kind:     types.EventNavigate,
		Location: &types.SourceLocation{File: loc.Path, Line: loc.Line, Column: loc.Column},
	})
}

// Drain returns the recorded events and how many older ones were dropped,
// then clears both.
func (r *Recorder) Drain() ([]types.Event, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	events, dropped := r.events, r.dropped
	r.events, r.dropped = nil, 0
	if events == nil {
		events = []types.Event{}
	}
	return events, dropped
}
