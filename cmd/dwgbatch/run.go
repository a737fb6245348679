package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dwgbatch/dwgbatch/internal/config"
	"github.com/dwgbatch/dwgbatch/internal/scheduler"
	"github.com/dwgbatch/dwgbatch/internal/script"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func runBatch(cmd *cobra.Command, cfg *cliConfig, args []string) error {
	logger := newLogger(cfg.debug)

	settingsPath := cfg.settingsPath

	if settingsPath == "" {
		var err error

		settingsPath, err = config.DefaultPath()
		if err != nil {
			return err
		}
	}

	settings, err := config.Load(settingsPath)
	if err != nil {
		return err
	}

	drawings := append([]string{}, args...)
	items := cfg.scripts.items

	if cfg.manifestPath != "" {
		manifest, err := config.LoadManifest(cfg.manifestPath)
		if err != nil {
			return err
		}

		settings = manifest.Apply(settings)

		manifestItems, err := manifest.Items()
		if err != nil {
			return err
		}

		// Manifest scripts run first, extra --script flags after.
		items = append(manifestItems, items...)
		drawings = append(drawings, manifest.Drawings...)
	}

	applyOverrides(cmd.Flags(), cfg, &settings)

	if cfg.dwgDir != "" {
		found, err := findDrawings(cfg.dwgDir)
		if err != nil {
			return err
		}

		drawings = append(drawings, found...)
	}

	if len(drawings) == 0 {
		return errors.New("no drawings to process")
	}

	if err := settings.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(
		cmd.Context(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger.Debug(
		"preparing batch",
		"drawings", len(drawings),
		"scripts", len(items),
		"output_dir", settings.OutputDir,
	)

	prepared, err := script.Prepare(ctx, drawings, items, script.PrepareOptions{
		OutputDir:    settings.OutputDir,
		QSaveAtEnd:   settings.QSaveAtEnd,
		QuitAtEnd:    settings.QuitAtEnd,
		CopyToOutput: settings.CopyToOutput,
		Concurrency:  settings.MaxParallel,
	})
	if err != nil {
		return err
	}

	jobs := make([]scheduler.Job, 0, len(prepared))

	var logFiles []*os.File

	defer func() {
		for _, f := range logFiles {
			f.Close()
		}
	}()

	// Full AutoCAD takes the drawing positionally; the console tool wants
	// /i. Everything else about the run is identical.
	program := settings.AccorePath
	buildArgs := script.ConsoleArgs

	if !settings.UseAccore {
		program = settings.AutocadPath
		buildArgs = script.AcadArgs
	}

	for _, p := range prepared {
		job := scheduler.Job{
			DisplayName: p.DisplayName,
			Program:     program,
			Args: buildArgs(
				settings.Product,
				settings.Language,
				p.DWGPath,
				p.ScriptPath,
			),
		}

		if settings.EnableLogging && !cfg.noLogs {
			logFile, err := os.Create(filepath.Join(
				settings.OutputDir,
				p.DisplayName+script.LogSuffix,
			))
			if err != nil {
				return fmt.Errorf("create log file: %w", err)
			}

			logFiles = append(logFiles, logFile)
			job.LogSink = logFile
		}

		jobs = append(jobs, job)
	}

	sched, err := scheduler.New(settings.MaxParallel)
	if err != nil {
		return err
	}

	// An interrupt drops everything still pending and kills the running
	// jobs; the event loop below ends once their killed results land.
	go func() {
		<-ctx.Done()
		sched.CancelAll()
	}()

	if _, err := sched.Submit(jobs...); err != nil {
		return err
	}

	rep := newReporter(logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
	rep.run(sched.Events())

	rep.summary(cmd.OutOrStdout())

	if failed := rep.failed(); failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", failed, len(jobs))
	}

	return nil
}

// applyOverrides overlays any flags the user actually set onto the
// loaded settings, so flags beat both the settings file and the manifest.
func applyOverrides(flags *pflag.FlagSet, cfg *cliConfig, settings *config.Settings) {
	if flags.Changed("accore") {
		settings.AccorePath = cfg.accorePath
	}

	if flags.Changed("autocad") {
		settings.AutocadPath = cfg.autocadPath
	}

	if flags.Changed("use-acad") {
		settings.UseAccore = !cfg.useAcad
	}

	if flags.Changed("product") {
		settings.Product = cfg.product
	}

	if flags.Changed("language") {
		settings.Language = cfg.language
	}

	if flags.Changed("output-dir") {
		settings.OutputDir = cfg.outputDir
	}

	if flags.Changed("max-parallel") {
		settings.MaxParallel = cfg.maxParallel
	}

	if flags.Changed("qsave") {
		settings.QSaveAtEnd = cfg.qsaveAtEnd
	}

	if flags.Changed("quit") {
		settings.QuitAtEnd = cfg.quitAtEnd
	}

	if flags.Changed("copy-to-output") {
		settings.CopyToOutput = cfg.copyToOutput
	}

	if flags.Changed("no-logs") {
		settings.EnableLogging = !cfg.noLogs
	}
}

// findDrawings lists the .dwg files directly inside dir, in directory
// order (alphabetical), without descending into subdirectories.
func findDrawings(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan drawing dir: %w", err)
	}

	var drawings []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if strings.EqualFold(filepath.Ext(entry.Name()), script.ExtDWG) {
			drawings = append(drawings, filepath.Join(dir, entry.Name()))
		}
	}

	return drawings, nil
}
