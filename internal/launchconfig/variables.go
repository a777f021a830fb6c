package launchconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Variable pattern matches ${...} expressions
var variablePattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveVariables replaces all ${...} variables in the given text. Unknown
// variables are kept and reported.
func ResolveVariables(text string, ctx *ResolutionContext) (string, error) {
	if ctx == nil {
		ctx = &ResolutionContext{}
	}

	var lastErr error
	result := variablePattern.ReplaceAllStringFunc(text, func(match string) string {
		resolved, err := resolveVariable(match[2:len(match)-1], ctx)
		if err != nil {
			lastErr = err
			return match
		}
		return resolved
	})
	return result, lastErr
}

func resolveVariable(expr string, ctx *ResolutionContext) (string, error) {
	switch {
	case expr == "workspaceFolder":
		return ctx.WorkspaceFolder, nil

	case expr == "workspaceFolderBasename":
		return filepath.Base(ctx.WorkspaceFolder), nil

	case expr == "userHome":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home: %w", err)
		}
		return home, nil

	case expr == "cwd":
		return os.Getwd()

	case expr == "pathSeparator":
		return string(os.PathSeparator), nil

	case strings.HasPrefix(expr, "env:"):
		name := strings.TrimPrefix(expr, "env:")
		if val, ok := ctx.EnvOverrides[name]; ok {
			return val, nil
		}
		return os.Getenv(name), nil

	case strings.HasPrefix(expr, "input:"):
		id := strings.TrimPrefix(expr, "input:")
		if val, ok := ctx.InputValues[id]; ok {
			return val, nil
		}
		for _, in := range ctx.Inputs {
			if in.ID == id && in.Default != "" {
				return in.Default, nil
			}
		}
		return "", fmt.Errorf("missing input value for ${input:%s}", id)

	default:
		return "", fmt.Errorf("unsupported variable: ${%s}", expr)
	}
}

// ResolveStringSlice resolves variables in every element of values.
func ResolveStringSlice(values []string, ctx *ResolutionContext) ([]string, error) {
	if values == nil {
		return nil, nil
	}
	resolved := make([]string, len(values))
	for i, v := range values {
		r, err := ResolveVariables(v, ctx)
		if err != nil {
			return nil, err
		}
		resolved[i] = r
	}
	return resolved, nil
}
