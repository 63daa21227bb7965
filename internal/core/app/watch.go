package app

import (
	"context"
	"log/slog"
	"path/filepath"
	"reflect"

	"abigate/internal/core/config"
	"abigate/internal/core/gate"
)

// WatchedInputs lists the files whose change triggers a rerun.
func (a *App) WatchedInputs(configPath string) []string {
	return []string{configPath, a.Paths.ApprovalCSV, a.Paths.RecoveryManifest}
}

// Watch reruns the gate whenever a watched input changes, until ctx is done. Reruns are
// coalesced: changes arriving during a run schedule exactly one more run.
func (a *App) Watch(ctx context.Context, configPath string, onReport func(gate.Report, error)) error {
	if abs, err := filepath.Abs(configPath); err == nil {
		configPath = abs
	}
	trigger := make(chan string, 1)
	w := config.NewWatcher(a.WatchedInputs(configPath), a.Config.Watch.Debounce, func(changed string) {
		select {
		case trigger <- changed:
		default:
		}
	})
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case changed := <-trigger:
			if changed == configPath {
				if err := a.reloadConfig(configPath); err != nil {
					slog.Error("config reload failed, keeping previous settings", "error", err)
				}
			}
			report, err := a.RunOnce(ctx)
			if onReport != nil {
				onReport(report, err)
			}
		}
	}
}

// reloadConfig swaps in settings that do not need new adapters. Path or tool changes
// require a restart.
func (a *App) reloadConfig(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	a.runMu.Lock()
	defer a.runMu.Unlock()
	a.Config.ModVersions = cfg.ModVersions
	a.Config.Diagnostics = cfg.Diagnostics
	a.Config.Tools.MaxParallel = cfg.Tools.MaxParallel
	if !reflect.DeepEqual(cfg.Paths, a.Config.Paths) || cfg.Tools.Inspector != a.Config.Tools.Inspector {
		slog.Warn("path or tool changes detected in config; restart to apply them")
	}
	slog.Info("config reloaded", "path", path)
	return nil
}
