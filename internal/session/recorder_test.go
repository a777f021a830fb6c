package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ctagard/inspector-mcp/internal/inspector"
	"github.com/ctagard/inspector-mcp/pkg/types"
)

func TestRecorder_Events(t *testing.T) {
	refreshed := false
	r := NewRecorder(func() { refreshed = true })

	r.OnSelectionChanged(true, false)
	r.OnFrame()
	r.OnFrame()
	r.Navigate(inspector.Location{Path: "/app/lib/main.dart", Line: 3, Column: 7})
	if err := r.OnForceRefresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	events, dropped := r.Drain()
	if dropped != 0 {
		t.Errorf("dropped = %d", dropped)
	}
	kinds := []types.EventKind{types.EventSelectionChanged, types.EventFrame, types.EventNavigate, types.EventForceRefresh}
	if len(events) != len(kinds) {
		t.Fatalf("events = %+v", events)
	}
	for i, k := range kinds {
		if events[i].Kind != k || events[i].Time == "" {
			t.Errorf("event %d = %+v, want %s", i, events[i], k)
		}
	}
	if !events[0].UIAlready || events[0].TextEdit {
		t.Errorf("selection flags = %+v", events[0])
	}
	if loc := events[2].Location; loc == nil || loc.File != "/app/lib/main.dart" || loc.Line != 3 {
		t.Errorf("navigate location = %+v", loc)
	}
	if !refreshed {
		t.Error("refresh hook not called")
	}

	if events, _ := r.Drain(); len(events) != 0 {
		t.Error("Drain should clear the buffer")
	}
}

func TestRecorder_Bounded(t *testing.T) {
	r := NewRecorder(nil)
	for i := 0; i < maxRecordedEvents+10; i++ {
		r.OnSelectionChanged(false, false)
	}
	events, dropped := r.Drain()
	if len(events) != maxRecordedEvents || dropped != 10 {
		t.Errorf("len = %d, dropped = %d", len(events), dropped)
	}
}

func TestRecorder_ResolveFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "main.dart")
	if err := os.WriteFile(file, []byte("void main() {}"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRecorder(nil)
	if got, ok := r.ResolveFile(file); !ok || got != file {
		t.Errorf("ResolveFile(existing) = %q, %v", got, ok)
	}
	if _, ok := r.ResolveFile(filepath.Join(dir, "missing.dart")); ok {
		t.Error("missing files must not resolve")
	}
	if _, ok := r.ResolveFile(dir); ok {
		t.Error("directories must not resolve")
	}
}
