package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dwgbatch/dwgbatch/internal/scheduler"
)

// reporter is the scheduler's event consumer for the CLI: it relays
// output lines with their job tag, logs lifecycle transitions, and
// accumulates results for the end-of-batch summary.
type reporter struct {
	logger *slog.Logger
	out    io.Writer
	errOut io.Writer

	results []scheduler.JobResult
}

func newReporter(logger *slog.Logger, out, errOut io.Writer) *reporter {
	return &reporter{
		logger: logger,
		out:    out,
		errOut: errOut,
	}
}

// run consumes events until the queue drains. Stderr lines go to the
// error writer so job output stays pipeable.
func (r *reporter) run(events <-chan scheduler.Event) {
	for ev := range events {
		switch e := ev.(type) {
		case scheduler.JobStarted:
			r.logger.Info("job started", "job", e.DisplayName)
		case scheduler.OutputLine:
			w := r.out
			if e.Stream == scheduler.StreamStderr {
				w = r.errOut
			}

			fmt.Fprintf(w, "[%s] %s\n", e.DisplayName, e.Text)
		case scheduler.JobFinished:
			r.results = append(r.results, e.Result)
			r.logResult(e.Result)
		case scheduler.QueueDrained:
			return
		}
	}
}

func (r *reporter) logResult(result scheduler.JobResult) {
	switch {
	case result.LaunchErr != nil:
		r.logger.Error(
			"job failed to launch",
			"job", result.DisplayName,
			"error", result.LaunchErr,
		)
	case result.Killed():
		r.logger.Warn("job killed", "job", result.DisplayName)
	case result.Succeeded():
		r.logger.Info(
			"job finished",
			"job", result.DisplayName,
			"duration", result.Duration().Round(time.Millisecond),
		)
	default:
		r.logger.Error(
			"job crashed",
			"job", result.DisplayName,
			"exit_code", result.ExitCode,
		)
	}
}

func (r *reporter) failed() int {
	var failed int

	for _, result := range r.results {
		if !result.Succeeded() {
			failed++
		}
	}

	return failed
}

func (r *reporter) summary(w io.Writer) {
	if len(r.results) == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)

	fmt.Fprintln(tw, "JOB\tSTATUS\tEXIT\tDURATION")

	for _, result := range r.results {
		fmt.Fprintf(
			tw,
			"%s\t%s\t%d\t%s\n",
			result.DisplayName,
			statusLabel(result),
			result.ExitCode,
			result.Duration().Round(time.Millisecond),
		)
	}

	tw.Flush()
}

func statusLabel(result scheduler.JobResult) string {
	switch {
	case result.LaunchErr != nil:
		return "launch failed"
	case result.Succeeded():
		return "ok"
	default:
		return strings.ToLower(result.State.String())
	}
}
