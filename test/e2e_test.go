//go:build e2e

package e2e_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

type testEnv struct {
	binPath   string
	workDir   string
	outputDir string
	stubPath  string
}

// NOTE: Relative paths are used to determine the source location to build
// the dwgbatch binary. Running this test from anywhere that breaks those
// relative paths will not work.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		workDir: t.TempDir(),
	}

	binDir := t.TempDir()
	env.binPath = filepath.Join(binDir, "dwgbatch")
	env.outputDir = filepath.Join(env.workDir, "out")

	build := exec.Command("go", "build", "-o", env.binPath, "../cmd/dwgbatch")

	if output, err := build.CombinedOutput(); err != nil {
		t.Fatalf(
			"failed to build dwgbatch binary: '%v' (output: '%s')",
			err,
			output,
		)
	}

	// A stand-in for the console tool: echoes its invocation and the
	// contents of the script it was handed, with a bit of terminal noise
	// the pipeline is expected to strip.
	env.stubPath = filepath.Join(env.workDir, "accore-stub")

	stub := `#!/bin/sh
echo "accore-stub args: $@"
while [ $# -gt 0 ]; do
  if [ "$1" = "/s" ]; then
    cat "$2"
  fi
  shift
done
printf '\033[32mprocessing complete\033[0m\n'
`

	if err := os.WriteFile(env.stubPath, []byte(stub), 0o755); err != nil {
		t.Fatalf("failed to write stub tool: '%v'", err)
	}

	return env
}

func (env *testEnv) writeFile(t *testing.T, name, contents string) string {
	t.Helper()

	path := filepath.Join(env.workDir, name)

	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write '%s': '%v'", name, err)
	}

	return path
}

func (env *testEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	cmd := exec.Command(env.binPath, args...)

	var stdout strings.Builder
	var stderr strings.Builder

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	return stdout.String(), stderr.String(), err
}

func TestBasicE2E(t *testing.T) {
	env := setupTestEnv(t)

	scrPath := env.writeFile(t, "audit.scr", "AUDIT\nY\n")

	var drawings []string

	for _, name := range []string{"alpha.dwg", "beta.dwg"} {
		drawings = append(drawings, env.writeFile(t, name, "dwg-bytes"))
	}

	t.Run("Test batch from flags", func(t *testing.T) {
		args := append([]string{
			"--settings", filepath.Join(env.workDir, "settings.json"),
			"--accore", env.stubPath,
			"--script", scrPath,
			"--output-dir", env.outputDir,
			"--max-parallel", "2",
		}, drawings...)

		stdout, stderr, err := env.run(t, args...)
		if err != nil {
			t.Fatalf(
				"expected batch not to fail: got '%v' (stderr: '%s')",
				err,
				stderr,
			)
		}

		for _, name := range []string{"alpha", "beta"} {
			if !strings.Contains(stdout, "["+name+"] accore-stub args:") {
				t.Errorf("expected tagged output for '%s': got '%s'", name, stdout)
			}

			if !strings.Contains(stdout, "["+name+"] AUDIT") {
				t.Errorf(
					"expected assembled script to reach the tool for '%s'",
					name,
				)
			}

			// Terminal color codes are stripped before relaying.
			if !strings.Contains(stdout, "["+name+"] processing complete") {
				t.Errorf("expected sanitized completion line for '%s'", name)
			}

			logPath := filepath.Join(env.outputDir, name+"__accore.log")

			logData, err := os.ReadFile(logPath)
			if err != nil {
				t.Fatalf("expected per-job log file: got '%v'", err)
			}

			if !strings.Contains(string(logData), "processing complete") {
				t.Errorf("expected log contents for '%s': got '%s'", name, logData)
			}
		}

		if strings.Contains(stdout, "\x1b[") {
			t.Errorf("expected no escape sequences in output: got '%s'", stdout)
		}

		if !strings.Contains(stdout, "JOB") || !strings.Contains(stdout, "ok") {
			t.Errorf("expected summary table: got '%s'", stdout)
		}
	})

	t.Run("Test batch from manifest", func(t *testing.T) {
		manifest := env.writeFile(t, "batch.yaml", `drawings:
  - `+drawings[0]+`
scripts:
  - path: `+scrPath+`
output_dir: `+filepath.Join(env.workDir, "manifest-out")+`
max_parallel: 1
`)

		stdout, stderr, err := env.run(
			t,
			"--settings", filepath.Join(env.workDir, "settings.json"),
			"--accore", env.stubPath,
			"--manifest", manifest,
		)
		if err != nil {
			t.Fatalf(
				"expected batch not to fail: got '%v' (stderr: '%s')",
				err,
				stderr,
			)
		}

		if !strings.Contains(stdout, "[alpha] AUDIT") {
			t.Errorf("expected manifest batch output: got '%s'", stdout)
		}
	})

	t.Run("Test missing executable fails the batch", func(t *testing.T) {
		_, stderr, err := env.run(
			t,
			"--settings", filepath.Join(env.workDir, "settings.json"),
			"--accore", filepath.Join(env.workDir, "not-a-tool"),
			"--script", scrPath,
			"--output-dir", env.outputDir,
			drawings[0],
		)
		if err == nil {
			t.Fatalf("expected a failing batch to exit non-zero")
		}

		if !strings.Contains(stderr, "1 of 1 jobs failed") {
			t.Errorf("expected failure summary: got '%s'", stderr)
		}
	})
}
