package launchconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
)

const (
	// LaunchJSONFileName is the standard name for VS Code launch configuration file.
	LaunchJSONFileName = "launch.json"
	// VSCodeDirName is the VS Code configuration directory name.
	VSCodeDirName = ".vscode"
)

// LoadFromPath loads a launch.json file. Comments and trailing commas are
// allowed, as in VS Code.
func LoadFromPath(path string) (*LaunchJSON, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read launch.json: %w", err)
	}

	var lj LaunchJSON
	if err := json.Unmarshal(jsonc.ToJSON(data), &lj); err != nil {
		return nil, fmt.Errorf("failed to parse launch.json: %w", err)
	}
	return &lj, nil
}

// Discover searches for a .vscode/launch.json file starting from the given path
// and walking up the directory tree until found or reaching the root.
func Discover(startPath string) (string, error) {
	if startPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current directory: %w", err)
		}
		startPath = cwd
	}

	current, err := filepath.Abs(startPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	info, err := os.Stat(current)
	if err != nil {
		return "", fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		current = filepath.Dir(current)
	}

	for {
		launchPath := filepath.Join(current, VSCodeDirName, LaunchJSONFileName)
		if _, err := os.Stat(launchPath); err == nil {
			return launchPath, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return "", fmt.Errorf("no %s/%s found in %s or parent directories", VSCodeDirName, LaunchJSONFileName, startPath)
}

// LoadAndDiscover finds the launch.json governing startPath and loads it.
func LoadAndDiscover(startPath string) (*LaunchJSON, string, error) {
	path, err := Discover(startPath)
	if err != nil {
		return nil, "", err
	}
	lj, err := LoadFromPath(path)
	if err != nil {
		return nil, "", err
	}
	return lj, path, nil
}

// FindConfiguration finds a Dart configuration by name.
func FindConfiguration(lj *LaunchJSON, name string) (*Configuration, error) {
	for i := range lj.Configurations {
		c := &lj.Configurations[i]
		if c.Name != name {
			continue
		}
		if !c.IsDart() {
			return nil, fmt.Errorf("configuration %q has type %q, not %q", name, c.Type, DartType)
		}
		return c, nil
	}
	return nil, fmt.Errorf("configuration %q not found", name)
}

// ConfigurationInfo provides summary information about a configuration.
type ConfigurationInfo struct {
	Name    string `json:"name"`
	Request string `json:"request"`
	Program string `json:"program,omitempty"`
}

// ListConfigurations summarizes the Dart configurations of lj.
func ListConfigurations(lj *LaunchJSON) []ConfigurationInfo {
	infos := []ConfigurationInfo{}
	for _, c := range lj.Configurations {
		if !c.IsDart() {
			continue
		}
		infos = append(infos, ConfigurationInfo{Name: c.Name, Request: c.Request, Program: c.Program})
	}
	return infos
}

// GetWorkspaceFolder derives the workspace folder from the launch.json path,
// the parent of the .vscode directory.
func GetWorkspaceFolder(launchJSONPath string) string {
	return filepath.Dir(filepath.Dir(launchJSONPath))
}
