package script

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// Prepared is one assembled unit of work: a drawing plus its unified
// script, ready to be turned into a job invocation.
type Prepared struct {
	DWGPath     string
	ScriptPath  string
	DisplayName string
}

// PrepareOptions controls batch preparation.
type PrepareOptions struct {
	OutputDir  string
	QSaveAtEnd bool
	QuitAtEnd  bool

	// CopyToOutput copies each drawing into OutputDir first and processes
	// the copy, leaving the original untouched.
	CopyToOutput bool

	// Concurrency bounds how many drawings are prepared at once. Zero
	// means no limit.
	Concurrency int
}

// Prepare assembles one unit of work per drawing, concurrently. The
// returned slice preserves the order of dwgPaths, so submission order
// follows the caller's drawing order.
func Prepare(
	ctx context.Context,
	dwgPaths []string,
	items []Item,
	opts PrepareOptions,
) ([]Prepared, error) {
	prepared := make([]Prepared, len(dwgPaths))

	g, ctx := errgroup.WithContext(ctx)

	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}

	for i, dwgPath := range dwgPaths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			workingDWG := dwgPath

			if opts.CopyToOutput {
				target := filepath.Join(opts.OutputDir, filepath.Base(dwgPath))

				if err := copyFile(dwgPath, target); err != nil {
					return fmt.Errorf("copy %s: %w", dwgPath, err)
				}

				workingDWG = target
			}

			scrPath, displayName, err := Assemble(
				workingDWG,
				items,
				opts.OutputDir,
				opts.QSaveAtEnd,
				opts.QuitAtEnd,
			)
			if err != nil {
				return fmt.Errorf("assemble for %s: %w", dwgPath, err)
			}

			prepared[i] = Prepared{
				DWGPath:     workingDWG,
				ScriptPath:  scrPath,
				DisplayName: displayName,
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return prepared, nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}

	return out.Close()
}
