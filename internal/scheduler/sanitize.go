package scheduler

import (
	"regexp"
	"strings"
)

var (
	// ansiRE matches CSI escape sequences (terminal colors, cursor
	// movement) as emitted by the console tool on some hosts.
	ansiRE = regexp.MustCompile(`\x1b\[[0-?]*[ -/]*[@-~]`)

	// ctrlRE matches remaining non-printing control bytes. Tab is kept;
	// line terminators never reach SanitizeLine.
	ctrlRE = regexp.MustCompile(`[\x00-\x08\x0b-\x1f\x7f]`)
)

// SanitizeLine strips terminal escape sequences and control characters
// from an output line, drops any bytes that are not valid UTF-8, and
// trims surrounding whitespace. Sanitizing an already-sanitized line
// yields the same line.
func SanitizeLine(s string) string {
	if s == "" {
		return s
	}

	s = ansiRE.ReplaceAllString(s, "")
	s = ctrlRE.ReplaceAllString(s, "")
	s = strings.ToValidUTF8(s, "")

	return strings.TrimSpace(s)
}
