package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"abigate/internal/core/config"
	"abigate/internal/core/errors"
	"abigate/internal/core/ports"
	"abigate/internal/core/workspace"
	"abigate/internal/data/history"
	"abigate/internal/engine/modversions"
	"abigate/internal/engine/requirements"
	"abigate/internal/engine/symtab"
	"abigate/internal/shared/observability"
	"abigate/internal/shared/util"
)

// App owns the collaborators of a gate run built from one configuration.
type App struct {
	Config *config.Config
	Paths  config.ResolvedPaths

	workspace workspace.Context
	inspector ports.SymbolInspector
	dumper    ports.VersionDumper
	extractor ports.SymbolExtractor
	history   ports.HistoryStore
	store     *history.Store

	out     io.Writer
	version string
	// runMu serializes runs; watch mode may trigger while a run is in flight.
	runMu sync.Mutex

	shutdownTracing func(context.Context) error
}

// Option customizes an App, mostly for tests.
type Option func(*App)

func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// WithVersion stamps generated reports with the binary version.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

func WithInspector(i ports.SymbolInspector) Option {
	return func(a *App) { a.inspector = i }
}

func WithDumper(d ports.VersionDumper) Option {
	return func(a *App) { a.dumper = d }
}

func WithExtractor(e ports.SymbolExtractor) Option {
	return func(a *App) { a.extractor = e }
}

// New resolves paths against cwd and builds the tool adapters, ledger and tracing
// selected by cfg.
func New(ctx context.Context, cfg *config.Config, cwd string, opts ...Option) (*App, error) {
	paths, err := config.ResolvePaths(cfg, cwd)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeValidationError, "resolve paths")
	}
	ws, err := paths.Workspace()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeValidationError, "build workspace")
	}

	limiter := util.NewLimiter(cfg.Tools.SpawnRate, cfg.Tools.SpawnBurst)
	a := &App{
		Config:    cfg,
		Paths:     paths,
		workspace: ws,
		extractor: requirements.ExtractSymbolsTool{Tool: paths.ExtractSymbols},
		dumper:    modversions.NewModprobeDumper(paths.Modprobe, limiter),
		out:       os.Stdout,
	}
	switch cfg.Tools.Inspector {
	case config.InspectorELF:
		a.inspector = symtab.ELFInspector{}
	default:
		a.inspector = symtab.NewNMInspector(paths.NM, limiter)
	}
	for _, opt := range opts {
		opt(a)
	}

	if cfg.DB.Enabled {
		store, err := history.Open(paths.DBPath, cfg.DB.BusyTimeout)
		if err != nil {
			return nil, errors.AddContext(errors.Wrap(err, errors.CodeIO, "open run history"), errors.CtxPath, paths.DBPath)
		}
		a.store = store
	}
	a.history = history.NewAdapter(a.store)

	shutdown, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Observability.EnableTracing,
		Endpoint:    cfg.Observability.OTLPEndpoint,
		ServiceName: cfg.Observability.ServiceName,
		Insecure:    cfg.Observability.OTLPInsecure,
	})
	if err != nil {
		_ = a.store.Close()
		return nil, errors.Wrap(err, errors.CodeInternal, "setup tracing")
	}
	a.shutdownTracing = shutdown

	slog.Debug("app initialized",
		"root", paths.Root,
		"output", ws.OutputDir,
		"logs", ws.LogDir,
		"inspector", cfg.Tools.Inspector,
		"history", cfg.DB.Enabled,
		"tracing", cfg.Observability.EnableTracing,
	)
	return a, nil
}

func (a *App) Workspace() workspace.Context { return a.workspace }

// Close flushes tracing and closes the run history.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			firstErr = fmt.Errorf("shutdown tracing: %w", err)
		}
	}
	if err := a.store.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close history: %w", err)
	}
	return firstErr
}
