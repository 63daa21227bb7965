package app

import (
	"fmt"
	"io"
	"strings"
	"time"

	"abigate/internal/core/gate"
	"abigate/internal/data/history"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true)

	passStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FBBF24")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Italic(true)
)

func statusText(status gate.Status) string {
	switch status {
	case gate.StatusPass:
		return passStyle.Render(string(status))
	case gate.StatusFail:
		return failStyle.Render(string(status))
	default:
		return warnStyle.Render(string(status))
	}
}

// PrintSummary renders the stage table and headline counts of report.
func PrintSummary(w io.Writer, report gate.Report) {
	var b strings.Builder

	b.WriteString(titleStyle.Render("ABI gate summary"))
	b.WriteString("\n")
	if report.RunID != "" {
		b.WriteString(mutedStyle.Render("run " + report.RunID))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	for _, outcome := range report.Outcomes {
		line := fmt.Sprintf("  %-18s %s  %s", outcome.Stage, statusText(outcome.Result.Status), outcome.Duration.Round(time.Millisecond))
		if outcome.Result.Reason != "" {
			line += "  " + outcome.Result.Reason
		}
		b.WriteString(line + "\n")
	}
	if report.Status == gate.StatusError && report.FinalStage != "" {
		b.WriteString(fmt.Sprintf("  %-18s %s  %s\n", report.FinalStage, statusText(gate.StatusError), report.Reason))
	}

	c := report.Counts
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  required symbols: %d (modules: %d, skipped lines: %d)\n", c.RequiredSymbols, c.RequiredModules, c.SkippedLines))
	b.WriteString(fmt.Sprintf("  approved: %d from allowlist, %d weak\n", c.CuratedApproved, c.WeakApproved))
	b.WriteString(fmt.Sprintf("  missing symbols: %d, recovery conflicts: %d\n", c.MissingSymbols, c.ModuleConflicts))
	b.WriteString(fmt.Sprintf("  modversion mismatches: GKI %d, OKI %d\n", c.GKIMismatches, c.OKIMismatches))
	if report.Diagnostics != "" {
		b.WriteString(mutedStyle.Render("  diagnostics: "+report.Diagnostics) + "\n")
	}

	b.WriteString("\n")
	if !report.StartedAt.IsZero() {
		b.WriteString(fmt.Sprintf("  begin: %s\n", report.StartedAt.Format("2006-01-02 15:04:05")))
	}
	if !report.FinishedAt.IsZero() {
		b.WriteString(fmt.Sprintf("  end:   %s\n", report.FinishedAt.Format("2006-01-02 15:04:05")))
		b.WriteString(fmt.Sprintf("  total: %s\n", formatDuration(report.Elapsed())))
	}
	b.WriteString(fmt.Sprintf("\n  result: %s\n", statusText(report.Status)))

	fmt.Fprint(w, b.String())
}

// PrintHistory renders the ledger view.
func PrintHistory(w io.Writer, runs []history.Run, trend history.Trend) {
	var b strings.Builder
	b.WriteString(titleStyle.Render("ABI gate history"))
	b.WriteString("\n\n")
	if trend.Runs == 0 {
		b.WriteString(mutedStyle.Render("  no runs recorded") + "\n")
		fmt.Fprint(w, b.String())
		return
	}
	for _, run := range runs {
		line := fmt.Sprintf("  %s  %s  %s", run.StartedAt.Local().Format("2006-01-02 15:04:05"), statusText(gate.Status(run.Status)), run.ID)
		if run.FailedStage != "" {
			line += "  " + run.FailedStage
		}
		b.WriteString(line + "\n")
	}
	b.WriteString(fmt.Sprintf("\n  runs: %d, passed: %d, failed: %d (%.1f%% pass)\n", trend.Runs, trend.Passed, trend.Failed, trend.PassRate))
	switch {
	case trend.CurrentStreak > 0:
		b.WriteString(passStyle.Render(fmt.Sprintf("  %d passing in a row", trend.CurrentStreak)) + "\n")
	case trend.CurrentStreak < 0:
		b.WriteString(failStyle.Render(fmt.Sprintf("  %d failing in a row", -trend.CurrentStreak)) + "\n")
	}
	for _, stage := range sortedStages(trend.FailuresByStage) {
		b.WriteString(fmt.Sprintf("  %-18s %d failure(s)\n", stage, trend.FailuresByStage[stage]))
	}
	fmt.Fprint(w, b.String())
}

func sortedStages(m map[string]int) []string {
	order := make([]string, 0, len(m))
	for _, stage := range gate.Stages {
		if _, ok := m[string(stage)]; ok {
			order = append(order, string(stage))
		}
	}
	for stage := range m {
		known := false
		for _, s := range order {
			if s == stage {
				known = true
				break
			}
		}
		if !known {
			order = append(order, stage)
		}
	}
	return order
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
