package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"abigate/internal/core/app"
	"abigate/internal/core/config"
	"abigate/internal/core/gate"
)

const defaultConfigPath = "./abigate.toml"

var (
	configPath  = flag.String("config", defaultConfigPath, "Path to config file")
	verbose     = flag.Bool("verbose", false, "Enable verbose logging")
	watch       = flag.Bool("watch", false, "Rerun the gate whenever the config, approval list or recovery manifest changes")
	historyRuns = flag.Int("history", 0, "Print the last N recorded runs and exit (requires [db] enabled)")
	version     = flag.Bool("version", false, "Print version and exit")
)

const VERSION = "1.0.0"

func main() {
	flag.Parse()
	os.Exit(run(os.Stdout))
}

func run(stdout io.Writer) int {
	if *version {
		fmt.Fprintf(stdout, "abigate v%s\n", VERSION)
		return 0
	}

	// Setup logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	cwd, err := os.Getwd()
	if err != nil {
		slog.Error("failed to resolve working directory", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, cwd, app.WithOutput(stdout), app.WithVersion(VERSION))
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		return 1
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			slog.Warn("shutdown incomplete", "error", err)
		}
	}()

	if *historyRuns > 0 {
		if !cfg.DB.Enabled {
			slog.Error("run history is disabled; set [db] enabled = true")
			return 1
		}
		runs, trend, err := a.History(ctx, *historyRuns)
		if err != nil {
			slog.Error("failed to load run history", "error", err)
			return 1
		}
		app.PrintHistory(stdout, runs, trend)
		return 0
	}

	report, err := a.RunOnce(ctx)
	app.PrintSummary(stdout, report)
	code := exitCode(report, err)

	if *watch {
		slog.Info("watch mode enabled, press Ctrl+C to stop")
		if err := a.Watch(ctx, *configPath, func(r gate.Report, err error) {
			app.PrintSummary(stdout, r)
			code = exitCode(r, err)
		}); err != nil {
			slog.Error("watch failed", "error", err)
			return 1
		}
	}
	return code
}

// loadConfig falls back to built-in defaults when the default config file is absent.
func loadConfig(path string) (*config.Config, error) {
	if path == defaultConfigPath {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			slog.Info("no config file found, using defaults", "path", path)
			cfg := config.DefaultConfig()
			config.ApplyEnvOverrides(cfg)
			if errs := config.Validate(cfg); len(errs) > 0 {
				return nil, fmt.Errorf("invalid default config: %v", errs)
			}
			return cfg, nil
		}
	}
	return config.Load(path)
}

func exitCode(report gate.Report, err error) int {
	if err != nil {
		slog.Error("gate aborted", "stage", report.FinalStage, "error", err)
		return 1
	}
	if !report.Passed() {
		slog.Error("gate failed", "stage", report.FinalStage, "reason", report.Reason)
		return 1
	}
	slog.Info("gate passed")
	return 0
}
