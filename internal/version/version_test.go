package version

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"0.1.0", "0.1.0", 0},
		{"0.1.0", "0.2.0", -1},
		{"1.0.0", "0.9.9", 1},
		{"v1.2.3", "1.2.3", 0},
		{"1.2.3-beta", "1.2.4", -1},
		{"1.10.0", "1.9.0", 1},
	}
	for _, tt := range tests {
		if got := compareVersions(tt.a, tt.b); got != tt.want {
			t.Errorf("compareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCheckForUpdates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "inspector-mcp/"+Version {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		_, _ = w.Write([]byte(`{"tag_name":"v99.0.0","html_url":"https://example.com/release"}`))
	}))
	defer srv.Close()

	c := &Checker{client: srv.Client(), url: srv.URL}
	info := c.CheckForUpdates(context.Background())
	if info.Error != "" {
		t.Fatalf("unexpected error %s", info.Error)
	}
	if !info.UpdateAvailable || info.LatestVersion != "99.0.0" {
		t.Errorf("info = %+v", info)
	}
	if info.UpdateMessage() == "" {
		t.Error("expected an update message")
	}
	if c.GetUpdateInfo() != info {
		t.Error("result not cached")
	}
}

func TestCheckForUpdates_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := &Checker{client: srv.Client(), url: srv.URL}
	info := c.CheckForUpdates(context.Background())
	if info.Error == "" || info.UpdateAvailable {
		t.Errorf("info = %+v", info)
	}
	if info.UpdateMessage() != "" {
		t.Error("failed checks produce no message")
	}
}
