package symtab

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"abigate/internal/core/errors"
	"abigate/internal/shared/observability"
	"abigate/internal/shared/util"
)

// NMInspector shells out to an nm binary.
type NMInspector struct {
	Tool    string
	Limiter *util.Limiter
}

// NewNMInspector returns an inspector running tool ("nm" when empty).
func NewNMInspector(tool string, limiter *util.Limiter) *NMInspector {
	tool = strings.TrimSpace(tool)
	if tool == "" {
		tool = "nm"
	}
	return &NMInspector{Tool: tool, Limiter: limiter}
}

func (n *NMInspector) InspectSymbolBindings(ctx context.Context, modulePath string) ([]SymbolBinding, error) {
	if _, err := os.Stat(modulePath); err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "module binary not found"), errors.CtxModule, modulePath)
	}
	if err := n.Limiter.Wait(ctx, 1); err != nil {
		return nil, err
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, n.Tool, modulePath)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	observability.ObserveTool("nm", err)
	if err != nil {
		msg := fmt.Sprintf("%s failed", n.Tool)
		if stderr.Len() > 0 {
			msg = fmt.Sprintf("%s failed: %s", n.Tool, strings.TrimSpace(stderr.String()))
		}
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeToolFailure, msg), errors.CtxModule, modulePath)
	}
	return ParseNM(out), nil
}
