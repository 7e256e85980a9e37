package app

import (
	"context"
	"fmt"

	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/engine"
)

// Run executes the build for the configured targets.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.appConfig.HealthcheckPort > 0 {
		a.startHealthcheckServer(a.appConfig.HealthcheckPort)
	}

	targets, err := a.workspace.Targets(a.appConfig.Targets...)
	if err != nil {
		return err
	}
	a.logger.Info("🚀 Starting build.", "targets", len(targets))

	report, err := a.engine.Build(ctx, targets)
	if err != nil {
		return fmt.Errorf("build aborted: %w", err)
	}
	a.summarize(report)

	if !report.OK() {
		counts := report.Counts()
		return fmt.Errorf("build failed: %d failed, %d skipped",
			counts[engine.StatusFailed], counts[engine.StatusSkipped])
	}
	a.logger.Info("🏁 Build finished.")
	return nil
}

// summarize prints a one-line verdict per rule, with command output for the
// failures.
func (a *App) summarize(report *engine.Report) {
	for _, res := range report.Results() {
		fmt.Fprintf(a.outW, "%-8s %s\n", res.Status, res.Rule.ID())
		if res.Status != engine.StatusFailed {
			continue
		}
		if res.Err != nil {
			fmt.Fprintf(a.outW, "         %v\n", res.Err)
		}
		if len(res.Stderr) > 0 {
			fmt.Fprintf(a.outW, "%s\n", res.Stderr)
		}
	}
}
