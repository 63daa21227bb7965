package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"abigate/internal/core/errors"
	"abigate/internal/core/gate"
	"abigate/internal/core/workspace"
	"abigate/internal/data/history"
	"abigate/internal/shared/observability"
	"abigate/internal/ui/report"

	"github.com/google/uuid"
)

// inputLinks maps configured inputs to their fixed names inside the workspace.
func (a *App) inputLinks() []workspace.Link {
	return []workspace.Link{
		{Source: a.Paths.GKISymvers, Name: workspace.GKISymvers},
		{Source: a.Paths.OKISymvers, Name: workspace.OKISymvers},
		{Source: a.Paths.Vmlinux, Name: "vmlinux"},
		{Source: a.Paths.ApprovalCSV, Name: workspace.ApprovalCSV},
		{Source: a.Paths.RecoveryManifest, Name: workspace.RecoveryManifest},
	}
}

// Stage clears the workspace and links every input and module binary into it.
func (a *App) Stage() (int, error) {
	ws := a.workspace
	if err := ws.Reset(); err != nil {
		return 0, errors.AddContext(errors.Wrap(err, errors.CodeIO, "reset workspace"), errors.CtxPath, ws.OutputDir)
	}
	linked := ws.LinkInputs(a.inputLinks())
	slog.Debug("inputs linked", "count", len(linked))

	modules, err := ws.StageModules(a.Paths.ModuleDirs, a.Config.Paths.ModulePattern)
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeIO, "stage modules")
	}
	slog.Info("modules staged", "count", len(modules), "dir", ws.ModuleDir)
	return len(modules), nil
}

// RunOnce stages the workspace, runs the gate and records the outcome.
func (a *App) RunOnce(ctx context.Context) (gate.Report, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	runID := uuid.NewString()
	started := time.Now()
	slog.Info("gate run start", "run_id", runID, "begin", started.Format("2006-01-02 15:04:05"))

	var (
		report gate.Report
		err    error
	)
	if _, err = a.Stage(); err == nil {
		controller := gate.NewController(gate.Options{
			Workspace:          a.workspace,
			Extractor:          a.extractor,
			Inspector:          a.inspector,
			Dumper:             a.dumper,
			MaxParallel:        a.Config.Tools.MaxParallel,
			DetectRenames:      a.Config.ModVersions.RenamesEnabled(),
			ModulePattern:      a.Config.Paths.ModulePattern,
			DiagnosticsExclude: a.Config.Diagnostics.Exclude,
			CopyOnSuccess:      a.Config.Diagnostics.CopyOnSuccessEnabled(),
			Out:                a.out,
		})
		report, err = controller.Run(ctx)
	} else {
		report = gate.Report{Status: gate.StatusError, Reason: err.Error(), FinishedAt: time.Now()}
	}
	report.RunID = runID
	report.StartedAt = started

	a.writeMarkdown(report)
	a.record(ctx, report)
	a.exportMetrics()
	return report, err
}

// writeMarkdown renders the run into the output dir, and into the log dir when diagnostics were preserved.
func (a *App) writeMarkdown(rep gate.Report) {
	if !a.Config.Diagnostics.MarkdownReportEnabled() {
		return
	}
	content, err := report.NewMarkdownGenerator().Generate(rep, report.MarkdownReportOptions{
		Version:             a.version,
		ProjectRoot:         a.Paths.Root,
		CollapsibleSections: true,
	})
	if err != nil {
		slog.Warn("failed to render markdown report", "error", err)
		return
	}
	targets := []string{a.workspace.Path(workspace.GateReport)}
	if rep.Diagnostics != "" && a.workspace.LogDir != "" {
		targets = append(targets, filepath.Join(a.workspace.LogDir, workspace.GateReport))
	}
	for _, path := range targets {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			slog.Warn("failed to create report dir", "path", path, "error", err)
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			slog.Warn("failed to write markdown report", "path", path, "error", err)
			continue
		}
		slog.Debug("markdown report written", "path", path)
	}
}

func (a *App) record(ctx context.Context, report gate.Report) {
	run := history.Run{
		ID:              report.RunID,
		StartedAt:       report.StartedAt,
		FinishedAt:      report.FinishedAt,
		Status:          string(report.Status),
		Reason:          report.Reason,
		RequiredSymbols: report.Counts.RequiredSymbols,
		RequiredModules: report.Counts.RequiredModules,
		ApprovedSymbols: report.Counts.CuratedApproved + report.Counts.WeakApproved,
		MissingSymbols:  report.Counts.MissingSymbols,
		GKIMismatches:   report.Counts.GKIMismatches,
		OKIMismatches:   report.Counts.OKIMismatches,
	}
	if !report.Passed() {
		run.FailedStage = string(report.FinalStage)
	}
	if err := a.history.SaveRun(ctx, run); err != nil {
		slog.Warn("failed to record run history", "run_id", report.RunID, "error", err)
	}
}

func (a *App) exportMetrics() {
	path := a.Paths.MetricsTextfile
	if path == "" {
		return
	}
	if err := observability.WriteTextfile(path); err != nil {
		slog.Warn("failed to write metrics textfile", "path", path, "error", err)
	}
}

// History returns the trend of the last limit recorded runs.
func (a *App) History(ctx context.Context, limit int) ([]history.Run, history.Trend, error) {
	runs, err := a.history.LoadRuns(ctx, time.Time{}, limit)
	if err != nil {
		return nil, history.Trend{}, errors.Wrap(err, errors.CodeIO, "load run history")
	}
	return runs, history.BuildTrend(runs), nil
}
