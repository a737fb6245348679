// Package script assembles the unified command script the console tool
// consumes for each drawing, and builds fully-resolved job invocations
// from it. The orchestration core treats everything produced here as
// opaque input.
package script

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Type discriminates the two kinds of script item a workflow can carry.
type Type string

const (
	// TypeSCR is a plain command script whose contents are inlined into
	// the assembled script.
	TypeSCR Type = "scr"

	// TypeLSP is a LISP file which is loaded, and optionally invoked, from
	// the assembled script.
	TypeLSP Type = "lsp"
)

// File extensions recognized on input paths.
const (
	ExtDWG = ".dwg"
	ExtSCR = ".scr"
	ExtLSP = ".lsp"
)

// Naming suffixes for per-drawing artifacts in the output directory.
const (
	BatchScriptSuffix = "__batch.scr"
	LogSuffix         = "__accore.log"
)

// Item is one entry of a workflow: a script to inline or a LISP file to
// load.
type Item struct {
	Path string
	Type Type

	// Invoke is an optional command to run after loading a LISP file,
	// either a raw symbol (MYCMD) or a LISP form ((c:MYCMD)).
	Invoke string

	// Note is a free-form comment carried through workflow files.
	Note string
}

// Workflow is a named, ordered list of script items.
type Workflow struct {
	Name  string
	Items []Item
}

// ParseType returns the Type for its string representation.
func ParseType(s string) (Type, error) {
	switch Type(strings.ToLower(s)) {
	case TypeSCR:
		return TypeSCR, nil
	case TypeLSP:
		return TypeLSP, nil
	default:
		return "", fmt.Errorf("unknown script type %q", s)
	}
}

// TypeForPath infers the script type from a file extension.
func TypeForPath(path string) (Type, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtSCR:
		return TypeSCR, nil
	case ExtLSP:
		return TypeLSP, nil
	default:
		return "", fmt.Errorf("cannot infer script type from %q", path)
	}
}

// DisplayName derives the human-readable job label from a drawing path:
// the base name without its extension.
func DisplayName(dwgPath string) string {
	base := filepath.Base(dwgPath)

	return strings.TrimSuffix(base, filepath.Ext(base))
}
