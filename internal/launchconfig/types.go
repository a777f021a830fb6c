// Package launchconfig reads Dart and Flutter configurations from VS Code
// launch.json files so a session can be started the way the editor would.
package launchconfig

import (
	"encoding/json"
)

// DartType is the debug type of Dart and Flutter configurations.
const DartType = "dart"

// LaunchJSON represents a VS Code launch.json file structure.
type LaunchJSON struct {
	Version        string          `json:"version"`
	Configurations []Configuration `json:"configurations"`
	Inputs         []InputConfig   `json:"inputs,omitempty"`
}

// Configuration is a single debug configuration in launch.json.
type Configuration struct {
	Type    string `json:"type"`    // "dart" for Flutter apps
	Request string `json:"request"` // "launch" or "attach"
	Name    string `json:"name"`

	Program  string            `json:"program,omitempty"`
	Cwd      string            `json:"cwd,omitempty"`
	Args     []string          `json:"args,omitempty"`
	ToolArgs []string          `json:"toolArgs,omitempty"`
	Env      map[string]string `json:"env,omitempty"`
	DeviceID string            `json:"deviceId,omitempty"`

	// FlutterMode is debug, profile or release.
	FlutterMode string `json:"flutterMode,omitempty"`

	// Attach-specific
	VMServiceURI string `json:"vmServiceUri,omitempty"`

	// Extra holds the properties not listed above.
	Extra map[string]interface{} `json:"-"`
}

// InputConfig represents a user input variable definition.
type InputConfig struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"` // "promptString" or "pickString"
	Description string   `json:"description,omitempty"`
	Default     string   `json:"default,omitempty"`
	Options     []string `json:"options,omitempty"`
}

// ResolutionContext provides context for variable resolution.
type ResolutionContext struct {
	WorkspaceFolder string
	InputValues     map[string]string
	EnvOverrides    map[string]string
	// Inputs supply defaults for ${input:} variables without a value.
	Inputs []InputConfig
}

var knownFields = map[string]bool{
	"type": true, "request": true, "name": true,
	"program": true, "cwd": true, "args": true, "toolArgs": true,
	"env": true, "deviceId": true, "flutterMode": true, "vmServiceUri": true,
}

// UnmarshalJSON captures unknown fields into Extra.
func (c *Configuration) UnmarshalJSON(data []byte) error {
	type alias Configuration
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*c = Configuration(a)
	c.Extra = make(map[string]interface{})
	for key, value := range raw {
		if knownFields[key] {
			continue
		}
		var v interface{}
		if err := json.Unmarshal(value, &v); err != nil {
			return err
		}
		c.Extra[key] = v
	}
	return nil
}

// IsDart reports whether c debugs a Dart or Flutter program.
func (c *Configuration) IsDart() bool {
	return c.Type == DartType
}

// IsAttachRequest returns true if this is an attach configuration.
func (c *Configuration) IsAttachRequest() bool {
	return c.Request == "attach"
}
