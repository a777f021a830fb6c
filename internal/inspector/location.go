package inspector

import (
	"runtime"
	"strings"
)

// Location is a position in a source file. Line and Column are 1-based,
// Offset is the 0-based character offset in the file.
type Location struct {
	Path   string `json:"path"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Offset int    `json:"offset"`
}

// URI returns the location's file in the form the widget creation tracker uses.
func (l Location) URI() string {
	return ToSourceLocationURI(l.Path)
}

// Valid reports whether line and column are usable for navigation.
func (l Location) Valid() bool {
	return l.Path != "" && l.Line >= 0 && l.Column >= 0
}

// PathRewriter maps paths between the local file system and the paths the
// app was compiled against (e.g. bazel workspaces). Implementations are
// optional.
type PathRewriter interface {
	ConvertPath(path string) string
}

// FileURIPrefix returns the file URI prefix for goos.
func FileURIPrefix(goos string) string {
	if goos == "windows" {
		return "file:///"
	}
	return "file://"
}

// ToSourceLocationURI converts a local path into a creation-location URI.
func ToSourceLocationURI(path string) string {
	return FileURIPrefix(runtime.GOOS) + path
}

// FromSourceLocationURI converts a creation-location URI back into a local
// path. rewriter may be nil.
func FromSourceLocationURI(uri string, rewriter PathRewriter) string {
	if rewriter != nil {
		uri = rewriter.ConvertPath(uri)
	}
	return strings.TrimPrefix(uri, FileURIPrefix(runtime.GOOS))
}

// PubRootForPath formats a package root for setPubRootDirectories. Windows
// paths need a URI prefix since the framework expects URIs there.
func PubRootForPath(path, goos string) string {
	if goos == "windows" {
		return "file:///" + path
	}
	return path
}

// addLocationParams writes the file/line/column parameters of a location.
func addLocationParams(loc *Location, params map[string]interface{}) {
	if loc == nil {
		return
	}
	params["file"] = loc.URI()
	params["line"] = loc.Line
	params["column"] = loc.Column
}
