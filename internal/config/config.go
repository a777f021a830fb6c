// Package config provides configuration management for the inspector MCP server.
//
// Configuration controls:
//   - Capability mode (readonly vs full): full additionally exposes tools that
//     mutate the running app
//   - Transport: talk to the VM service directly or through 'flutter debug-adapter'
//   - Safety limits: maximum sessions, session idle timeout, request timeout
//   - Inspector defaults: pub root directories, screenshot size, eval retry policy
//
// Configuration files may be JSON (comments and trailing commas allowed) or
// YAML, selected by file extension. Missing fields keep their defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/ctagard/inspector-mcp/internal/errors"
)

// CapabilityMode defines the level of capabilities exposed
type CapabilityMode string

const (
	ModeReadOnly CapabilityMode = "readonly" // inspection tools only
	ModeFull     CapabilityMode = "full"     // inspection plus mutation tools
)

// TransportKind selects how the session reaches the VM service
type TransportKind string

const (
	TransportVMService TransportKind = "vmservice" // websocket JSON-RPC
	TransportDAP       TransportKind = "dap"       // flutter debug-adapter
)

// Duration is a time.Duration that reads from strings like "30m" as well as
// integer nanoseconds.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return d.parse(s)
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\" or nanoseconds: %w", err)
	}
	*d = Duration(n)
	return nil
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Config holds the server configuration
type Config struct {
	Mode       CapabilityMode `json:"mode" yaml:"mode"`
	AllowSpawn bool           `json:"allowSpawn" yaml:"allowSpawn"`

	Transport   TransportKind `json:"transport" yaml:"transport"`
	FlutterPath string        `json:"flutterPath" yaml:"flutterPath"`

	// Limits for safety
	MaxSessions    int      `json:"maxSessions" yaml:"maxSessions"`
	SessionTimeout Duration `json:"sessionTimeout" yaml:"sessionTimeout"`
	RequestTimeout Duration `json:"requestTimeout" yaml:"requestTimeout"`

	// Inspector behaviour
	PubRootDirectories []string         `json:"pubRootDirectories" yaml:"pubRootDirectories"`
	Screenshot         ScreenshotConfig `json:"screenshot" yaml:"screenshot"`
	Retry              RetryConfig      `json:"retry" yaml:"retry"`
}

// ScreenshotConfig holds default screenshot dimensions
type ScreenshotConfig struct {
	Width         int     `json:"width" yaml:"width"`
	Height        int     `json:"height" yaml:"height"`
	MaxPixelRatio float64 `json:"maxPixelRatio" yaml:"maxPixelRatio"`
}

// RetryConfig bounds the idle-wait retry loop used for guarded evaluations
type RetryConfig struct {
	MaxAttempts int      `json:"maxAttempts" yaml:"maxAttempts"` // 0 = until the group is disposed
	Interval    Duration `json:"interval" yaml:"interval"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Mode:           ModeReadOnly,
		AllowSpawn:     true,
		Transport:      TransportVMService,
		FlutterPath:    "flutter",
		MaxSessions:    4,
		SessionTimeout: Duration(30 * time.Minute),
		RequestTimeout: Duration(15 * time.Second),
		Screenshot: ScreenshotConfig{
			Width:         800,
			Height:        600,
			MaxPixelRatio: 1.0,
		},
		Retry: RetryConfig{
			MaxAttempts: 0,
			Interval:    Duration(20 * time.Millisecond),
		},
	}
}

// LoadConfig loads configuration from a JSON, JSONC or YAML file. An empty
// path returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.ConfigInvalid(path, err.Error())
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, errors.ConfigInvalid(path, err.Error())
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigInvalid(path, err.Error())
	}
	return cfg, nil
}

// Validate checks field values that cannot be expressed by the schema alone
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeReadOnly, ModeFull:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	switch c.Transport {
	case TransportVMService, TransportDAP:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("maxSessions must be positive")
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.maxAttempts must not be negative")
	}
	return nil
}

// CanMutate returns true if tools that change the running app are enabled
func (c *Config) CanMutate() bool {
	return c.Mode == ModeFull
}

// CanSpawn returns true if spawning 'flutter debug-adapter' is allowed
func (c *Config) CanSpawn() bool {
	return c.AllowSpawn
}

// SessionTTL returns the idle timeout as a time.Duration
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTimeout)
}

// RequestTTL returns the per-request timeout as a time.Duration
func (c *Config) RequestTTL() time.Duration {
	return time.Duration(c.RequestTimeout)
}
