package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"abigate/internal/core/gate"
)

type MarkdownReportOptions struct {
	Version     string
	GeneratedAt time.Time
	// ProjectRoot shortens artifact paths in the rendered tables.
	ProjectRoot         string
	CollapsibleSections bool
	// MaxArtifactLines bounds how much of each failing artifact is embedded. 0 means 200.
	MaxArtifactLines int
}

type MarkdownGenerator struct{}

func NewMarkdownGenerator() *MarkdownGenerator {
	return &MarkdownGenerator{}
}

// Generate renders a gate run, embedding the content of the failing stage's artifacts.
func (m *MarkdownGenerator) Generate(rep gate.Report, opts MarkdownReportOptions) (string, error) {
	if opts.GeneratedAt.IsZero() {
		opts.GeneratedAt = time.Now().UTC()
	}
	if opts.MaxArtifactLines <= 0 {
		opts.MaxArtifactLines = 200
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("title: ABI Gate Report\n")
	b.WriteString("run_id: " + nonEmpty(rep.RunID, "unknown") + "\n")
	b.WriteString("status: " + nonEmpty(string(rep.Status), "unknown") + "\n")
	b.WriteString("generated_at: " + opts.GeneratedAt.UTC().Format(time.RFC3339) + "\n")
	b.WriteString("version: " + nonEmpty(opts.Version, "unknown") + "\n")
	b.WriteString("---\n\n")

	b.WriteString("# ABI Gate Report\n\n")

	c := rep.Counts
	b.WriteString("## Executive Summary\n")
	b.WriteString("| Metric | Value |\n")
	b.WriteString("| --- | --- |\n")
	b.WriteString(fmt.Sprintf("| Result | %s |\n", statusBadge(rep.Status)))
	if rep.Status != gate.StatusPass && rep.FinalStage != "" {
		b.WriteString(fmt.Sprintf("| Stopped At | `%s` |\n", rep.FinalStage))
	}
	b.WriteString(fmt.Sprintf("| Required Symbols | %d |\n", c.RequiredSymbols))
	b.WriteString(fmt.Sprintf("| Requiring Modules | %d |\n", c.RequiredModules))
	b.WriteString(fmt.Sprintf("| Approved (allowlist) | %d |\n", c.CuratedApproved))
	b.WriteString(fmt.Sprintf("| Approved (weak) | %d |\n", c.WeakApproved))
	b.WriteString(fmt.Sprintf("| Missing Symbols | %d |\n", c.MissingSymbols))
	b.WriteString(fmt.Sprintf("| Recovery Conflicts | %d |\n", c.ModuleConflicts))
	b.WriteString(fmt.Sprintf("| GKI Mismatches | %d |\n", c.GKIMismatches))
	b.WriteString(fmt.Sprintf("| OKI Mismatches | %d |\n", c.OKIMismatches))
	if rep.Elapsed() > 0 {
		b.WriteString(fmt.Sprintf("| Elapsed | %s |\n", rep.Elapsed().Round(time.Millisecond)))
	}
	b.WriteString("\n")

	m.writeStages(&b, rep, opts)
	m.writeFailure(&b, rep, opts)

	return b.String(), nil
}

func (m *MarkdownGenerator) writeStages(b *strings.Builder, rep gate.Report, opts MarkdownReportOptions) {
	b.WriteString("## Stages\n")
	if len(rep.Outcomes) == 0 {
		b.WriteString("No stage completed.\n\n")
		return
	}
	rows := make([]string, 0, len(rep.Outcomes))
	for _, o := range rep.Outcomes {
		artifacts := make([]string, 0, len(o.Result.Artifacts))
		for _, a := range o.Result.Artifacts {
			artifacts = append(artifacts, "`"+relPath(opts.ProjectRoot, a)+"`")
		}
		rows = append(rows, fmt.Sprintf("| `%s` | %s | %s | %s |\n",
			o.Stage,
			statusBadge(o.Result.Status),
			o.Duration.Round(time.Millisecond),
			strings.Join(artifacts, "<br>"),
		))
	}
	m.writeTableWithCollapse(
		b,
		"Stage details",
		opts.CollapsibleSections,
		len(rows) > 10,
		[]string{"| Stage | Result | Duration | Artifacts |\n", "| --- | --- | --- | --- |\n"},
		rows,
	)
}

func (m *MarkdownGenerator) writeFailure(b *strings.Builder, rep gate.Report, opts MarkdownReportOptions) {
	switch rep.Status {
	case gate.StatusPass:
		return
	case gate.StatusError:
		b.WriteString("## Fatal Error\n")
		b.WriteString("```\n" + strings.TrimSpace(rep.Reason) + "\n```\n\n")
		return
	}

	b.WriteString("## Failure\n")
	b.WriteString(rep.Reason + "\n\n")
	if len(rep.Outcomes) == 0 {
		return
	}
	last := rep.Outcomes[len(rep.Outcomes)-1]
	for _, path := range last.Result.Artifacts {
		data, err := os.ReadFile(path)
		if err != nil || len(data) == 0 {
			continue
		}
		lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
		truncated := 0
		if len(lines) > opts.MaxArtifactLines {
			truncated = len(lines) - opts.MaxArtifactLines
			lines = lines[:opts.MaxArtifactLines]
		}
		b.WriteString("### `" + relPath(opts.ProjectRoot, path) + "`\n")
		if opts.CollapsibleSections && len(lines) > 10 {
			b.WriteString("<details>\n<summary>Content</summary>\n\n")
		}
		b.WriteString("```\n" + strings.Join(lines, "\n") + "\n```\n")
		if truncated > 0 {
			b.WriteString(fmt.Sprintf("_%d more line(s) not shown._\n", truncated))
		}
		if opts.CollapsibleSections && len(lines) > 10 {
			b.WriteString("</details>\n")
		}
		b.WriteString("\n")
	}
}

func (m *MarkdownGenerator) writeTableWithCollapse(
	b *strings.Builder,
	summary string,
	collapsible bool,
	collapse bool,
	header []string,
	rows []string,
) {
	if collapsible && collapse {
		b.WriteString("<details>\n")
		b.WriteString("<summary>")
		b.WriteString(summary)
		b.WriteString("</summary>\n\n")
	}
	for _, line := range header {
		b.WriteString(line)
	}
	for _, line := range rows {
		b.WriteString(line)
	}
	b.WriteString("\n")
	if collapsible && collapse {
		b.WriteString("</details>\n\n")
	}
}

func statusBadge(status gate.Status) string {
	switch status {
	case gate.StatusPass:
		return "🟢 PASS"
	case gate.StatusFail:
		return "🔴 FAIL"
	case gate.StatusError:
		return "🟠 ERROR"
	default:
		return string(status)
	}
}

func relPath(root, path string) string {
	root = strings.TrimSpace(root)
	path = strings.TrimSpace(path)
	if root == "" || path == "" {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func nonEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
