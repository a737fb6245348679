// Package config handles on-disk settings, batch manifests, and workflow
// import/export for dwgbatch.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dwgbatch/dwgbatch/internal/scheduler"
)

const (
	appDirName       = ".dwgbatch"
	settingsFileName = "settings.json"
)

// Settings are the persisted defaults for a batch run. Any of them can be
// overridden per run by manifest or flags.
type Settings struct {
	// AccorePath is the path of the console tool executable. Its existence
	// is only checked at launch time.
	AccorePath string `json:"accore_path"`

	// AutocadPath is the full AutoCAD executable, used instead of the
	// console tool when UseAccore is false.
	AutocadPath string `json:"autocad_path"`

	// UseAccore selects the headless console tool over full AutoCAD.
	UseAccore bool `json:"use_accore"`

	// Product selects a vertical product flavor, e.g. "C3D". Empty means
	// plain.
	Product string `json:"product"`

	// Language is the language pack passed to the tool, e.g. "en-US".
	Language string `json:"language"`

	// MaxParallel is the concurrency cap for the scheduler.
	MaxParallel int `json:"max_parallel"`

	QSaveAtEnd    bool `json:"qsave_at_end"`
	QuitAtEnd     bool `json:"quit_at_end"`
	CopyToOutput  bool `json:"copy_to_output"`
	EnableLogging bool `json:"enable_logging"`

	// OutputDir receives assembled scripts, per-job logs, and (when
	// CopyToOutput is set) working copies of the drawings.
	OutputDir string `json:"output_dir"`
}

// Default returns the settings used when no settings file exists yet.
func Default() Settings {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return Settings{
		AccorePath:    `C:\Program Files\Autodesk\AutoCAD 2024\accoreconsole.exe`,
		AutocadPath:   `C:\Program Files\Autodesk\AutoCAD 2024\acad.exe`,
		UseAccore:     true,
		Language:      "en-US",
		MaxParallel:   2,
		QSaveAtEnd:    true,
		QuitAtEnd:     true,
		EnableLogging: true,
		OutputDir:     filepath.Join(home, appDirName, "output"),
	}
}

// DefaultPath returns the settings file location under the user's home
// directory.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}

	return filepath.Join(home, appDirName, settingsFileName), nil
}

// Load reads settings from path. A missing file yields the defaults; a
// present file is merged over them, so settings written by an older
// version keep defaults for keys it didn't know about.
func Load(path string) (Settings, error) {
	settings := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return settings, nil
	}

	if err != nil {
		return settings, fmt.Errorf("read settings: %w", err)
	}

	if err := json.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("parse settings: %w", err)
	}

	return settings, nil
}

// Save writes settings to path, creating parent directories as needed.
func Save(path string, settings Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the value ranges the core cares about. Executable
// existence is deliberately not checked here; that's launch time's job.
func (s Settings) Validate() error {
	if s.MaxParallel < scheduler.MinParallel ||
		s.MaxParallel > scheduler.MaxParallel {
		return scheduler.ErrMaxParallelRange
	}

	if s.UseAccore && s.AccorePath == "" {
		return errors.New("accore path cannot be empty")
	}

	if !s.UseAccore && s.AutocadPath == "" {
		return errors.New("autocad path cannot be empty")
	}

	return nil
}
