package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dwgbatch/dwgbatch/internal/script"
	"github.com/spf13/cobra"
)

type cliConfig struct {
	settingsPath string
	manifestPath string
	dwgDir       string
	scripts      scriptList

	accorePath   string
	autocadPath  string
	useAcad      bool
	product      string
	language     string
	outputDir    string
	maxParallel  int
	qsaveAtEnd   bool
	quitAtEnd    bool
	copyToOutput bool
	noLogs       bool

	debug bool
}

func rootCmd() *cobra.Command {
	cfg := &cliConfig{}

	c := &cobra.Command{
		Use:   "dwgbatch [flags] [drawing.dwg ...]",
		Short: "Batch-process DWG files through the AutoCAD Core Console",
		Example: `  dwgbatch --accore /opt/acad/accoreconsole --script audit.scr drawings/*.dwg
  dwgbatch --manifest batch.yaml --max-parallel 4`,
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, cfg, args)
		},
	}

	c.CompletionOptions.HiddenDefaultCmd = true

	c.Flags().StringVar(
		&cfg.settingsPath,
		"settings",
		"",
		"Path to settings file (default ~/.dwgbatch/settings.json)",
	)

	c.Flags().StringVar(
		&cfg.manifestPath,
		"manifest",
		"",
		"YAML manifest declaring drawings, scripts, and overrides",
	)

	c.Flags().StringVar(
		&cfg.dwgDir,
		"dwg-dir",
		"",
		"Directory to scan for .dwg files, in addition to any arguments",
	)

	c.Flags().Var(
		&cfg.scripts,
		"script",
		"Script (.scr) or LISP (.lsp) file to run against each drawing; "+
			"repeatable, LISP entries accept a trailing :COMMAND to invoke",
	)

	c.Flags().StringVar(
		&cfg.accorePath,
		"accore",
		"",
		"Path to the Core Console executable",
	)

	c.Flags().StringVar(
		&cfg.autocadPath,
		"autocad",
		"",
		"Path to the full AutoCAD executable (used with --use-acad)",
	)

	c.Flags().BoolVar(
		&cfg.useAcad,
		"use-acad",
		false,
		"Run drawings through full AutoCAD instead of the Core Console",
	)

	c.Flags().StringVar(&cfg.product, "product", "", "Product flavor, e.g. C3D")

	c.Flags().StringVar(&cfg.language, "language", "", "Language pack, e.g. en-US")

	c.Flags().StringVar(
		&cfg.outputDir,
		"output-dir",
		"",
		"Directory for assembled scripts, logs, and drawing copies",
	)

	c.Flags().IntVar(
		&cfg.maxParallel,
		"max-parallel",
		0,
		"How many drawings to process at once (1-12)",
	)

	c.Flags().BoolVar(&cfg.qsaveAtEnd, "qsave", true, "Append QSAVE to each script")

	c.Flags().BoolVar(&cfg.quitAtEnd, "quit", true, "Append QUIT to each script")

	c.Flags().BoolVar(
		&cfg.copyToOutput,
		"copy-to-output",
		false,
		"Copy each drawing to the output directory and process the copy",
	)

	c.Flags().BoolVar(
		&cfg.noLogs,
		"no-logs",
		false,
		"Don't write per-drawing log files",
	)

	c.Flags().BoolVar(&cfg.debug, "debug", false, "Enable debug logs")

	return c
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(
		os.Stderr,
		&slog.HandlerOptions{Level: level},
	))
}

// scriptList collects repeated --script flags in order, inferring each
// item's type from its file extension. It implements pflag.Value. LISP
// entries accept an optional trailing ':COMMAND' to invoke after load;
// the split happens after the extension, so Windows drive letters are
// left alone.
type scriptList struct {
	items []script.Item
}

func (l *scriptList) String() string {
	paths := make([]string, 0, len(l.items))

	for _, item := range l.items {
		paths = append(paths, item.Path)
	}

	return strings.Join(paths, ",")
}

func (l *scriptList) Set(value string) error {
	path, invoke := splitInvoke(value)

	typ, err := script.TypeForPath(path)
	if err != nil {
		return err
	}

	if invoke != "" && typ != script.TypeLSP {
		return fmt.Errorf("invoke %q only applies to LISP scripts", invoke)
	}

	l.items = append(l.items, script.Item{
		Path:   path,
		Type:   typ,
		Invoke: invoke,
	})

	return nil
}

func (l *scriptList) Type() string {
	return "path[:invoke]"
}

func splitInvoke(value string) (string, string) {
	lower := strings.ToLower(value)

	if i := strings.LastIndex(lower, script.ExtLSP+":"); i >= 0 {
		cut := i + len(script.ExtLSP)

		return value[:cut], value[cut+1:]
	}

	return value, ""
}
