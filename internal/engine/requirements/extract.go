package requirements

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"log/slog"
	"os/exec"
	"strings"

	"abigate/internal/core/errors"
	"abigate/internal/core/workspace"
	"abigate/internal/shared/observability"
	"abigate/internal/shared/util"
)

// reportMarker prefixes every useful line of extract_symbols output.
const reportMarker = "Symbol "

// ExtractSymbolsTool runs the kernel build's extract_symbols script against the staged modules.
type ExtractSymbolsTool struct {
	Tool string
}

// Run invokes the tool on the workspace and writes the filtered report to RequiredFull.
// A tool that cannot be started, or that exits non-zero without printing any record,
// is a TOOL_FAILURE. A non-zero exit that still printed records is logged and the
// records are kept.
func (e ExtractSymbolsTool) Run(ctx context.Context, ws workspace.Context) (int, error) {
	tool := strings.TrimSpace(e.Tool)
	if tool == "" {
		return 0, errors.New(errors.CodeValidationError, "extract_symbols tool path is empty")
	}
	dir := strings.TrimSuffix(ws.OutputDir, "/") + "/"
	args := []string{dir, "--skip-module-grouping", "--symbol-list", ws.Path(workspace.SymbolList)}

	cmd := exec.CommandContext(ctx, tool, args...)
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined
	runErr := cmd.Run()
	observability.ObserveTool("extract_symbols", runErr)
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	lines := FilterReport(combined.Bytes())
	if runErr != nil {
		var exitErr *exec.ExitError
		if !stderrors.As(runErr, &exitErr) {
			return 0, errors.AddContext(errors.Wrap(runErr, errors.CodeToolFailure, "extract_symbols could not be started"), errors.CtxPath, tool)
		}
		if len(lines) == 0 {
			return 0, errors.AddContext(errors.Wrap(runErr, errors.CodeToolFailure, "extract_symbols failed without reporting any symbol"), errors.CtxPath, tool)
		}
		slog.Warn("extract_symbols exited with error, keeping reported symbols", "tool", tool, "lines", len(lines), "error", runErr)
	}

	if err := util.WriteLines(ws.Path(workspace.RequiredFull), lines); err != nil {
		return 0, errors.AddContext(errors.Wrap(err, errors.CodeIO, "write requirement report"), errors.CtxPath, ws.Path(workspace.RequiredFull))
	}
	return len(lines), nil
}

// FilterReport keeps only the lines that carry a required-symbol record.
func FilterReport(out []byte) []string {
	lines := make([]string, 0)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, reportMarker) {
			lines = append(lines, line)
		}
	}
	return lines
}
