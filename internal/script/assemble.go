package script

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Assemble writes the unified .scr for one drawing into outputDir and
// returns its path alongside the drawing's display name. Plain scripts
// are inlined with normalized newlines; LISP items become load lines plus
// an optional invoke. An unreadable item is recorded as a comment in the
// assembled script rather than failing the whole batch, so the remaining
// items still run.
func Assemble(
	dwgPath string,
	items []Item,
	outputDir string,
	qsaveAtEnd bool,
	quitAtEnd bool,
) (string, string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", "", fmt.Errorf("create output dir: %w", err)
	}

	displayName := DisplayName(dwgPath)
	scrPath := filepath.Join(outputDir, displayName+BatchScriptSuffix)

	var b strings.Builder

	b.WriteString("; --- Assembled by dwgbatch ---\n")

	// The core console never shows dialogs, but a full host started with
	// /s still would.
	b.WriteString("FILEDIA 0\n")

	for _, item := range items {
		switch item.Type {
		case TypeSCR:
			fmt.Fprintf(
				&b,
				"; ---- INCLUDE SCRIPT: %s ----\n",
				filepath.Base(item.Path),
			)

			contents, err := readScript(item.Path)
			if err != nil {
				fmt.Fprintf(
					&b,
					"; ERROR: failed to read script: %s ; %v\n",
					item.Path,
					err,
				)

				continue
			}

			b.WriteString(contents)
		case TypeLSP:
			fmt.Fprintf(
				&b,
				"; ---- LOAD LISP: %s ----\n",
				filepath.Base(item.Path),
			)

			// Backslashes must be doubled inside LISP strings.
			fmt.Fprintf(
				&b,
				"(load \"%s\")\n",
				strings.ReplaceAll(item.Path, `\`, `\\`),
			)

			if invoke := strings.TrimSpace(item.Invoke); invoke != "" {
				b.WriteString(invoke + "\n")
			}
		default:
			fmt.Fprintf(&b, "; WARN: unknown item type for %s\n", item.Path)
		}
	}

	if qsaveAtEnd {
		b.WriteString("\nQSAVE\n")
	}

	if quitAtEnd {
		b.WriteString("QUIT\n")
	}

	if err := os.WriteFile(scrPath, []byte(b.String()), 0o644); err != nil {
		return "", "", fmt.Errorf("write assembled script: %w", err)
	}

	return scrPath, displayName, nil
}

// readScript reads a script file, normalizes newlines, and guarantees a
// single trailing newline.
func readScript(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	return strings.TrimRight(normalizeNewlines(string(data)), " \t\r\n") + "\n", nil
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")

	return strings.ReplaceAll(s, "\r", "\n")
}

// ConsoleArgs builds the core-console argument list for one drawing and
// its assembled script. Product and language are omitted when empty.
func ConsoleArgs(product, language, dwgPath, scrPath string) []string {
	return append(hostArgs(product, language), "/i", dwgPath, "/s", scrPath)
}

// AcadArgs builds the argument list for a full AutoCAD host, which takes
// the drawing as a positional argument instead of /i.
func AcadArgs(product, language, dwgPath, scrPath string) []string {
	return append(hostArgs(product, language), dwgPath, "/s", scrPath)
}

func hostArgs(product, language string) []string {
	var args []string

	if product != "" {
		args = append(args, "/product", product)
	}

	if language != "" {
		args = append(args, "/l", language)
	}

	return args
}
