package gate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"abigate/internal/core/errors"
	"abigate/internal/core/ports"
	"abigate/internal/core/workspace"
	"abigate/internal/engine/approval"
	"abigate/internal/engine/modversions"
	"abigate/internal/engine/reconcile"
	"abigate/internal/engine/requirements"
	"abigate/internal/shared/observability"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Options wires a Controller. Extractor may be nil when the raw report is already
// present in the workspace.
type Options struct {
	Workspace          workspace.Context
	Extractor          ports.SymbolExtractor
	Inspector          ports.SymbolInspector
	Dumper             ports.VersionDumper
	MaxParallel        int
	DetectRenames      bool
	ModulePattern      string
	DiagnosticsExclude []string
	CopyOnSuccess      bool
	// Out receives the content of offending artifacts. Defaults to os.Stdout.
	Out io.Writer
	Now func() time.Time
}

type Controller struct {
	opts Options
}

func NewController(opts Options) *Controller {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if strings.TrimSpace(opts.ModulePattern) == "" {
		opts.ModulePattern = "*.ko"
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 1
	}
	return &Controller{opts: opts}
}

// runState carries typed values between stages of one run.
type runState struct {
	reqs    *requirements.Requirements
	curated []string
	weak    approval.WeakApprovals
	current modversions.Table
	counts  Counts
}

type stageFunc func(ctx context.Context, st *runState) (GateResult, error)

// Run executes every stage in order. A FAIL stops the run, preserves diagnostics and is
// reported through the Report with a nil error. A fatal error aborts without diagnostics
// and is returned alongside the partial Report.
func (c *Controller) Run(ctx context.Context) (Report, error) {
	ctx, span := observability.Tracer.Start(ctx, "gate.Run")
	defer span.End()

	report := Report{StartedAt: c.opts.Now()}
	st := &runState{}

	steps := map[Stage]stageFunc{
		StageExtract:          c.extract,
		StageApprovalFilter:   c.approvalFilter,
		StageRequiredCoverage: c.requiredCoverage,
		StageModuleCoverage:   c.moduleCoverage,
		StageVersionGKI:       c.versionGKI,
		StageVersionOKI:       c.versionOKI,
	}

	for _, stage := range Stages {
		slog.Info("stage start", "stage", stage)
		outcome, err := c.runStage(ctx, stage, steps[stage], st)
		report.Counts = st.counts
		if err != nil {
			report.Status = StatusError
			report.FinalStage = stage
			report.Reason = err.Error()
			report.FinishedAt = c.opts.Now()
			observability.RunsTotal.WithLabelValues(string(StatusError)).Inc()
			span.SetStatus(codes.Error, err.Error())
			return report, errors.AddContext(err, errors.CtxStage, string(stage))
		}
		report.Outcomes = append(report.Outcomes, outcome)
		if outcome.Result.Failed() {
			report.Status = StatusFail
			report.FinalStage = stage
			report.Reason = outcome.Result.Reason
			c.printOffending(outcome.Result)
			report.Diagnostics = c.preserveDiagnostics()
			report.FinishedAt = c.opts.Now()
			observability.RunsTotal.WithLabelValues(string(StatusFail)).Inc()
			span.SetAttributes(attribute.String("gate.failed_stage", string(stage)))
			span.SetStatus(codes.Error, outcome.Result.Reason)
			return report, nil
		}
	}

	report.Status = StatusPass
	report.FinalStage = StageDone
	if c.opts.CopyOnSuccess {
		report.Diagnostics = c.preserveDiagnostics()
	}
	report.FinishedAt = c.opts.Now()
	observability.RunsTotal.WithLabelValues(string(StatusPass)).Inc()
	span.SetStatus(codes.Ok, "")
	return report, nil
}

func (c *Controller) runStage(ctx context.Context, stage Stage, fn stageFunc, st *runState) (StageOutcome, error) {
	ctx, span := observability.Tracer.Start(ctx, "gate."+strings.ToLower(string(stage)),
		trace.WithAttributes(attribute.String("gate.stage", string(stage))))
	defer span.End()

	start := time.Now()
	result, err := fn(ctx, st)
	elapsed := time.Since(start)
	observability.StageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())

	if err != nil {
		observability.StageResultsTotal.WithLabelValues(string(stage), string(StatusError)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("stage aborted", "stage", stage, "error", err)
		return StageOutcome{Stage: stage, Duration: elapsed}, err
	}

	observability.StageResultsTotal.WithLabelValues(string(stage), string(result.Status)).Inc()
	span.SetAttributes(attribute.String("gate.status", string(result.Status)))
	if result.Failed() {
		slog.Error("stage failed", "stage", stage, "reason", result.Reason, "artifacts", result.Artifacts)
	} else {
		slog.Info("stage passed", "stage", stage, "elapsed", elapsed.Round(time.Millisecond))
	}
	return StageOutcome{Stage: stage, Result: result, Duration: elapsed}, nil
}

func (c *Controller) extract(ctx context.Context, st *runState) (GateResult, error) {
	ws := c.opts.Workspace
	if c.opts.Extractor != nil {
		lines, err := c.opts.Extractor.Run(ctx, ws)
		if err != nil {
			return GateResult{}, err
		}
		slog.Debug("requirement report captured", "lines", lines)
	}

	reqs, err := requirements.ReadReport(ws.Path(workspace.RequiredFull))
	if err != nil {
		return GateResult{}, err
	}
	if err := reqs.WriteArtifacts(ws); err != nil {
		return GateResult{}, err
	}
	st.reqs = reqs
	st.counts.RequiredSymbols = len(reqs.SymbolNames())
	st.counts.RequiredModules = len(reqs.ModuleNames())
	st.counts.SkippedLines = reqs.Skipped
	observability.RequiredSymbols.Set(float64(st.counts.RequiredSymbols))
	observability.RequiredModules.Set(float64(st.counts.RequiredModules))

	return Pass(
		ws.Path(workspace.RequiredSymbols),
		ws.Path(workspace.RequiredModules),
		ws.Path(workspace.RequiredSymbolModules),
	), nil
}

// approvalFilter builds the full approval set: the curated allowlist plus every
// still-missing symbol that is bound weak inside the module requiring it.
func (c *Controller) approvalFilter(ctx context.Context, st *runState) (GateResult, error) {
	ws := c.opts.Workspace

	curated, err := approval.LoadAllowlist(ws.Path(workspace.ApprovalCSV))
	if err != nil {
		return GateResult{}, err
	}
	if err := approval.WriteAllowlist(ws, curated); err != nil {
		return GateResult{}, err
	}
	st.curated = curated

	required := reconcile.NewLineSet(st.reqs.SymbolNames())
	missing := reconcile.NewLineSet(reconcile.Difference(required, reconcile.NewLineSet(curated)))

	candidates := lo.Filter(st.reqs.Pairs(), func(p requirements.SymbolRecord, _ int) bool {
		return missing.Contains(p.Name)
	})
	if len(candidates) > 0 && c.opts.Inspector != nil {
		slog.Info("checking missing symbols for weak binding", "candidates", len(candidates))
		resolver := &approval.Resolver{Inspector: c.opts.Inspector, MaxParallel: c.opts.MaxParallel}
		weak, err := resolver.ResolveWeak(ctx, ws, candidates)
		if err != nil {
			return GateResult{}, err
		}
		st.weak = weak
	}
	if err := st.weak.Write(ws); err != nil {
		return GateResult{}, err
	}

	set := approval.Set{Curated: curated, Weak: st.weak.Symbols}
	path, err := set.Write(ws)
	if err != nil {
		return GateResult{}, err
	}
	st.counts.CuratedApproved = len(curated)
	st.counts.WeakApproved = len(st.weak.Symbols)
	observability.ApprovedSymbols.WithLabelValues("allowlist").Set(float64(len(curated)))
	observability.ApprovedSymbols.WithLabelValues("weak").Set(float64(len(st.weak.Symbols)))

	return Pass(ws.Path(workspace.ApprovalList), ws.Path(workspace.WeakApprovalList), path), nil
}

func (c *Controller) requiredCoverage(_ context.Context, st *runState) (GateResult, error) {
	ws := c.opts.Workspace
	out := ws.Path(workspace.MissingAfterApproval)
	missing, err := reconcile.CoverageCheck(ws.Path(workspace.RequiredSymbols), ws.Path(workspace.FullApprovalList), out)
	if err != nil {
		return GateResult{}, err
	}
	st.counts.MissingSymbols = len(missing)
	observability.MissingSymbols.Set(float64(len(missing)))
	if len(missing) > 0 {
		return Fail(fmt.Sprintf("%d required symbol(s) are neither exported nor approved", len(missing)), out), nil
	}
	return Pass(out), nil
}

func (c *Controller) moduleCoverage(_ context.Context, st *runState) (GateResult, error) {
	ws := c.opts.Workspace
	out := ws.Path(workspace.ModuleCoverage)
	present, err := reconcile.IntersectionCheck(ws.Path(workspace.RecoveryManifest), ws.Path(workspace.RequiredModules), out)
	if err != nil {
		return GateResult{}, err
	}
	st.counts.ModuleConflicts = len(present)
	for _, module := range present {
		slog.Warn("missing symbols in recovery mode ko", "module", module)
	}
	if len(present) > 0 {
		return Fail(fmt.Sprintf("%d recovery module(s) require unresolved symbols", len(present)), out), nil
	}
	return Pass(out), nil
}

func (c *Controller) versionGKI(ctx context.Context, st *runState) (GateResult, error) {
	if err := c.buildCurrentTable(ctx, st); err != nil {
		return GateResult{}, err
	}
	records, result, err := c.checkBaseline("gki", workspace.GKISymvers, workspace.GKICrcTable, workspace.GKIVersionReport)
	st.counts.GKIMismatches = len(records)
	return result, err
}

func (c *Controller) versionOKI(ctx context.Context, st *runState) (GateResult, error) {
	if err := c.buildCurrentTable(ctx, st); err != nil {
		return GateResult{}, err
	}
	records, result, err := c.checkBaseline("oki", workspace.OKISymvers, workspace.OKICrcTable, workspace.OKIVersionReport)
	st.counts.OKIMismatches = len(records)
	return result, err
}

// buildCurrentTable dumps the versions of every staged module once per run.
func (c *Controller) buildCurrentTable(ctx context.Context, st *runState) error {
	if st.current != nil {
		return nil
	}
	ws := c.opts.Workspace
	if c.opts.Dumper != nil {
		modules, err := ws.FindModules(c.opts.ModulePattern)
		if err != nil {
			return errors.AddContext(errors.Wrap(err, errors.CodeIO, "list staged modules"), errors.CtxPath, ws.ModuleDir)
		}
		st.counts.StagedModules = len(modules)
		if _, err := modversions.DumpAll(ctx, c.opts.Dumper, modules, ws.Path(workspace.ModVersionsFull)); err != nil {
			return err
		}
	}
	table, err := modversions.BuildTable(ws.Path(workspace.ModVersionsFull), ws.Path(workspace.ModVersionsSorted), modversions.DedupePairs)
	if err != nil {
		return err
	}
	st.current = table
	return nil
}

func (c *Controller) checkBaseline(baseline, symvers, table, report string) ([]modversions.MismatchRecord, GateResult, error) {
	ws := c.opts.Workspace
	if _, err := modversions.BuildTable(ws.Path(symvers), ws.Path(table), modversions.Dedupe); err != nil {
		return nil, GateResult{}, err
	}
	out := ws.Path(report)
	records, err := modversions.CheckBaseline(ws.Path(workspace.ModVersionsSorted), ws.Path(table), out,
		modversions.CompareOptions{DetectRenames: c.opts.DetectRenames})
	if err != nil {
		return nil, GateResult{}, err
	}
	observability.VersionMismatches.WithLabelValues(baseline).Set(float64(len(records)))
	if len(records) > 0 {
		return records, Fail(fmt.Sprintf("%s baseline: %s", strings.ToUpper(baseline), modversions.Summary(records)), out), nil
	}
	return records, Pass(out), nil
}

// printOffending writes the path and content of every non-empty artifact of a failed stage.
func (c *Controller) printOffending(result GateResult) {
	for _, path := range result.Artifacts {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("cannot read failing artifact", "path", path, "error", err)
			continue
		}
		if len(data) == 0 {
			continue
		}
		fmt.Fprintf(c.opts.Out, "\nFile %s content:\n%s", path, data)
		if data[len(data)-1] != '\n' {
			fmt.Fprintln(c.opts.Out)
		}
	}
}

func (c *Controller) preserveDiagnostics() string {
	ws := c.opts.Workspace
	if ws.LogDir == "" {
		return ""
	}
	slog.Info("copying diagnostics", "from", ws.OutputDir, "to", ws.LogDir, "exclude", c.opts.DiagnosticsExclude)
	copied, err := CopyDiagnostics(ws.OutputDir, ws.LogDir, c.opts.DiagnosticsExclude)
	if err != nil {
		slog.Warn("diagnostics copy incomplete", "error", err)
	}
	slog.Info("diagnostics available", "dir", ws.LogDir, "files", copied)
	return ws.LogDir
}
