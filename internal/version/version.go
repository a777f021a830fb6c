// Package version provides version information and update checking.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// Version is the current version of inspector-mcp
	Version = "0.1.0"

	// GitHubRepo is the repository path
	GitHubRepo = "ctagard/inspector-mcp"

	// GitHubAPIURL is the GitHub API endpoint for latest release
	GitHubAPIURL = "https://api.github.com/repos/%s/releases/latest"
)

// UpdateInfo contains information about available updates
type UpdateInfo struct {
	CurrentVersion  string    `json:"currentVersion"`
	LatestVersion   string    `json:"latestVersion"`
	UpdateAvailable bool      `json:"updateAvailable"`
	ReleaseURL      string    `json:"releaseUrl,omitempty"`
	CheckedAt       time.Time `json:"checkedAt"`
	Error           string    `json:"error,omitempty"`
}

// UpdateMessage returns a human-readable message about the update, or "".
func (u *UpdateInfo) UpdateMessage() string {
	if u.Error != "" || !u.UpdateAvailable {
		return ""
	}
	return fmt.Sprintf("A new version of inspector-mcp is available: v%s (current: v%s). See %s",
		u.LatestVersion, u.CurrentVersion, u.ReleaseURL)
}

// Checker handles version checking
type Checker struct {
	client *http.Client
	url    string

	mu         sync.RWMutex
	updateInfo *UpdateInfo
}

// NewChecker creates a checker against the GitHub releases API
func NewChecker() *Checker {
	return &Checker{
		client: &http.Client{Timeout: 5 * time.Second},
		url:    fmt.Sprintf(GitHubAPIURL, GitHubRepo),
	}
}

// githubRelease represents the GitHub API response for a release
type githubRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// CheckForUpdates checks for a newer release. Failures are reported in
// UpdateInfo.Error.
func (c *Checker) CheckForUpdates(ctx context.Context) *UpdateInfo {
	info := &UpdateInfo{CurrentVersion: Version, CheckedAt: time.Now()}
	if err := c.fetch(ctx, info); err != nil {
		info.Error = err.Error()
	}

	c.mu.Lock()
	c.updateInfo = info
	c.mu.Unlock()
	return info
}

func (c *Checker) fetch(ctx context.Context, info *UpdateInfo) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "inspector-mcp/"+Version)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to check for updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("release API returned status %d", resp.StatusCode)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	info.LatestVersion = strings.TrimPrefix(release.TagName, "v")
	info.ReleaseURL = release.HTMLURL
	info.UpdateAvailable = compareVersions(Version, info.LatestVersion) < 0
	return nil
}

// CheckForUpdatesAsync checks for updates in the background
func (c *Checker) CheckForUpdatesAsync() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.CheckForUpdates(ctx)
	}()
}

// GetUpdateInfo returns the cached update info, or nil before a check.
func (c *Checker) GetUpdateInfo() *UpdateInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updateInfo
}

// compareVersions compares two semver strings.
// Returns -1 if v1 < v2, 0 if equal, 1 if v1 > v2
func compareVersions(v1, v2 string) int {
	a, b := parseVersion(v1), parseVersion(v2)
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// parseVersion reads major.minor.patch; pre-release suffixes are ignored.
func parseVersion(v string) [3]int {
	var out [3]int
	parts := strings.SplitN(strings.TrimPrefix(v, "v"), ".", 3)
	for i, p := range parts {
		p, _, _ = strings.Cut(p, "-")
		n, err := strconv.Atoi(p)
		if err != nil {
			break
		}
		out[i] = n
	}
	return out
}

// Revision returns the VCS revision the binary was built from, or "".
func Revision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}

// GetVersion returns the current version, with the revision when known
func GetVersion() string {
	if rev := Revision(); rev != "" {
		if len(rev) > 12 {
			rev = rev[:12]
		}
		return Version + " (" + rev + ")"
	}
	return Version
}
