// Package gate sequences the compatibility checks of one run and owns the
// pass/fail decision, diagnostics capture and the run report.
package gate

import (
	"time"
)

type Stage string

const (
	StageExtract          Stage = "EXTRACT"
	StageApprovalFilter   Stage = "APPROVAL_FILTER"
	StageRequiredCoverage Stage = "REQUIRED_COVERAGE"
	StageModuleCoverage   Stage = "MODULE_COVERAGE"
	StageVersionGKI       Stage = "VERSION_GKI"
	StageVersionOKI       Stage = "VERSION_OKI"
	StageDone             Stage = "DONE"
)

// Stages lists the checking stages in execution order. DONE is not included.
var Stages = []Stage{
	StageExtract,
	StageApprovalFilter,
	StageRequiredCoverage,
	StageModuleCoverage,
	StageVersionGKI,
	StageVersionOKI,
}

type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
	// StatusError marks a run aborted by a fatal error rather than a failed check.
	StatusError Status = "ERROR"
)

// GateResult is the terminal value of one stage.
type GateResult struct {
	Status    Status
	Reason    string
	Artifacts []string
}

func Pass(artifacts ...string) GateResult {
	return GateResult{Status: StatusPass, Artifacts: artifacts}
}

func Fail(reason string, artifacts ...string) GateResult {
	return GateResult{Status: StatusFail, Reason: reason, Artifacts: artifacts}
}

func (r GateResult) Failed() bool { return r.Status == StatusFail }

type StageOutcome struct {
	Stage    Stage
	Result   GateResult
	Duration time.Duration
}

// Counts are the headline numbers of a run.
type Counts struct {
	RequiredSymbols int
	RequiredModules int
	SkippedLines    int
	CuratedApproved int
	WeakApproved    int
	MissingSymbols  int
	ModuleConflicts int
	StagedModules   int
	GKIMismatches   int
	OKIMismatches   int
}

// Report describes a finished (or aborted) run.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     Status
	// FinalStage is DONE on success, otherwise the stage that failed or aborted.
	FinalStage  Stage
	Reason      string
	Outcomes    []StageOutcome
	Counts      Counts
	Diagnostics string
}

func (r Report) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r Report) Passed() bool { return r.Status == StatusPass }
