package modversions

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"

	"abigate/internal/core/errors"
	"abigate/internal/shared/observability"
	"abigate/internal/shared/util"
)

// Dumper extracts the version table embedded in a module binary.
type Dumper interface {
	DumpVersions(ctx context.Context, modulePath string) ([]CrcEntry, error)
}

// ModprobeDumper runs "modprobe --dump-modversions".
type ModprobeDumper struct {
	Tool    string
	Limiter *util.Limiter
}

func NewModprobeDumper(tool string, limiter *util.Limiter) *ModprobeDumper {
	tool = strings.TrimSpace(tool)
	if tool == "" {
		tool = "modprobe"
	}
	return &ModprobeDumper{Tool: tool, Limiter: limiter}
}

func (m *ModprobeDumper) DumpVersions(ctx context.Context, modulePath string) ([]CrcEntry, error) {
	if err := m.Limiter.Wait(ctx, 1); err != nil {
		return nil, err
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, m.Tool, "--dump-modversions", modulePath)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	observability.ObserveTool("modprobe", err)
	if err != nil {
		msg := "dump modversions failed"
		if stderr.Len() > 0 {
			msg += ": " + strings.TrimSpace(stderr.String())
		}
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeToolFailure, msg), errors.CtxModule, modulePath)
	}
	return ParseDump(bytes.NewReader(out))
}

// DumpAll concatenates the version tables of modules, in the given order, into outPath.
// A module that cannot be dumped aborts the run with a TOOL_FAILURE: a missing table
// would let drift in that module pass unchecked.
func DumpAll(ctx context.Context, dumper Dumper, modules []string, outPath string) ([]CrcEntry, error) {
	all := make([]CrcEntry, 0)
	for _, module := range modules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, err := dumper.DumpVersions(ctx, module)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if !errors.IsCode(err, errors.CodeToolFailure) {
				err = errors.Wrap(err, errors.CodeToolFailure, "dump modversions failed")
			}
			return nil, errors.AddContext(err, errors.CtxModule, module)
		}
		slog.Debug("module versions dumped", "module", module, "entries", len(entries))
		all = append(all, entries...)
	}
	lines := make([]string, len(all))
	for i, e := range all {
		lines[i] = e.Checksum + "\t" + e.Symbol
	}
	if err := util.WriteLines(outPath, lines); err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeIO, "write module versions"), errors.CtxPath, outPath)
	}
	return all, nil
}
