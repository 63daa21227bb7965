package approval

import (
	"context"
	"log/slog"

	"abigate/internal/core/errors"
	"abigate/internal/core/workspace"
	"abigate/internal/engine/requirements"
	"abigate/internal/engine/symtab"
	"abigate/internal/shared/util"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// WeakApprovals lists the symbols found bound weak inside the module that requires
// them, and the modules where that happened. Each name appears once, in first-seen order.
type WeakApprovals struct {
	Symbols []string
	Modules []string
}

// Resolver detects weak-symbol exceptions.
type Resolver struct {
	Inspector   symtab.Inspector
	MaxParallel int
}

// ResolveWeak inspects the module of every pair and keeps the pairs whose symbol is
// weak there. Each module is inspected once. Inspection failures are logged and the
// symbols of that module stay required.
func (r *Resolver) ResolveWeak(ctx context.Context, ws workspace.Context, pairs []requirements.SymbolRecord) (WeakApprovals, error) {
	modules := lo.Uniq(lo.Map(pairs, func(p requirements.SymbolRecord, _ int) string { return p.Module }))
	// weakByModule[i] stays nil when modules[i] could not be inspected.
	weakByModule := make([]map[string]struct{}, len(modules))

	g, gctx := errgroup.WithContext(ctx)
	limit := r.MaxParallel
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, module := range modules {
		g.Go(func() error {
			bindings, err := r.Inspector.InspectSymbolBindings(gctx, ws.ModulePath(module))
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				err = errors.AddContext(err, errors.CtxModule, module)
				slog.Warn("symbol table inspection failed, keeping its symbols required",
					"module", module, "error", err)
				return nil
			}
			weakByModule[i] = symtab.WeakNames(bindings)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return WeakApprovals{}, errors.AddContext(errors.Wrap(err, errors.CodeInternal, "weak symbol detection interrupted"), errors.CtxOperation, "resolve_weak")
	}

	index := make(map[string]int, len(modules))
	for i, module := range modules {
		index[module] = i
	}
	found := lo.Filter(pairs, func(p requirements.SymbolRecord, _ int) bool {
		_, ok := weakByModule[index[p.Module]][p.Name]
		if ok {
			slog.Info("weak symbol found", "symbol", p.Name, "module", p.Module)
		}
		return ok
	})
	return WeakApprovals{
		Symbols: lo.Uniq(lo.Map(found, func(p requirements.SymbolRecord, _ int) string { return p.Name })),
		Modules: lo.Uniq(lo.Map(found, func(p requirements.SymbolRecord, _ int) string { return p.Module })),
	}, nil
}

// Write stores the weak approvals in the workspace.
func (w WeakApprovals) Write(ws workspace.Context) error {
	if err := util.WriteLines(ws.Path(workspace.WeakApprovalList), w.Symbols); err != nil {
		return errors.AddContext(errors.Wrap(err, errors.CodeIO, "write weak approval list"), errors.CtxPath, ws.Path(workspace.WeakApprovalList))
	}
	if err := util.WriteLines(ws.Path(workspace.WeakApprovalModules), w.Modules); err != nil {
		return errors.AddContext(errors.Wrap(err, errors.CodeIO, "write weak approval modules"), errors.CtxPath, ws.Path(workspace.WeakApprovalModules))
	}
	return nil
}

// Set is the authoritative approved-missing set of one run.
type Set struct {
	Curated []string
	Weak    []string
}

// Names returns the union of curated and weak names, curated first, without repeats.
func (s Set) Names() []string {
	return lo.Uniq(append(append([]string(nil), s.Curated...), s.Weak...))
}

// Write stores the union in the workspace and returns its path.
func (s Set) Write(ws workspace.Context) (string, error) {
	path := ws.Path(workspace.FullApprovalList)
	if err := util.WriteLines(path, s.Names()); err != nil {
		return "", errors.AddContext(errors.Wrap(err, errors.CodeIO, "write approval set"), errors.CtxPath, path)
	}
	return path, nil
}
