package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Validate returns every problem found in cfg.
func Validate(cfg *Config) []error {
	var errs []error
	for _, check := range []func(*Config) error{
		validateVersion,
		validatePaths,
		validateTools,
		validateDiagnostics,
		validateDatabase,
		validateObservability,
	} {
		if err := check(cfg); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func validateVersion(cfg *Config) error {
	if cfg.Version < 1 {
		return fmt.Errorf("version must be >= 1, got %d", cfg.Version)
	}
	if cfg.Version > 1 {
		return fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validatePaths(cfg *Config) error {
	if strings.TrimSpace(cfg.Paths.OutputDir) == "" {
		return fmt.Errorf("paths.output_dir must not be empty")
	}
	if hasGlobMeta(cfg.Paths.OutputDir) {
		return fmt.Errorf("paths.output_dir must not contain wildcards, got %q", cfg.Paths.OutputDir)
	}
	if strings.TrimSpace(cfg.Paths.LogDir) != "" {
		out := filepath.Clean(filepath.Join(cfg.Paths.Root, cfg.Paths.OutputDir))
		logDir := filepath.Clean(filepath.Join(cfg.Paths.Root, cfg.Paths.LogDir))
		if isPathOverlap(out, logDir) {
			return fmt.Errorf("paths.log_dir %q overlaps paths.output_dir %q; the output dir is cleared on every run", cfg.Paths.LogDir, cfg.Paths.OutputDir)
		}
	}
	if _, err := glob.Compile(cfg.Paths.ModulePattern); err != nil {
		return fmt.Errorf("paths.module_pattern %q is invalid: %w", cfg.Paths.ModulePattern, err)
	}
	return nil
}

func validateTools(cfg *Config) error {
	switch cfg.Tools.Inspector {
	case InspectorNM, InspectorELF:
	default:
		return fmt.Errorf("tools.inspector must be one of: nm, elf")
	}
	if cfg.Tools.SpawnRate < 0 {
		return fmt.Errorf("tools.spawn_rate must be >= 0, got %v", cfg.Tools.SpawnRate)
	}
	if strings.TrimSpace(cfg.Tools.ExtractSymbols) == "" {
		return fmt.Errorf("tools.extract_symbols must not be empty")
	}
	return nil
}

func validateDiagnostics(cfg *Config) error {
	for i, pattern := range cfg.Diagnostics.Exclude {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("diagnostics.exclude[%d] %q is invalid: %w", i, pattern, err)
		}
	}
	return nil
}

func validateDatabase(cfg *Config) error {
	if !cfg.DB.Enabled {
		return nil
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.DB.Driver))
	if driver != "sqlite" {
		return fmt.Errorf("db.driver must be sqlite, got %q", cfg.DB.Driver)
	}
	if strings.TrimSpace(cfg.DB.Path) == "" {
		return fmt.Errorf("db.path must not be empty")
	}
	return nil
}

func validateObservability(cfg *Config) error {
	if cfg.Observability.EnableTracing && strings.TrimSpace(cfg.Observability.OTLPEndpoint) == "" {
		return fmt.Errorf("observability.otlp_endpoint is required when enable_tracing is set")
	}
	return nil
}

func hasGlobMeta(p string) bool {
	return strings.ContainsAny(p, "*?[")
}

func isPathOverlap(a, b string) bool {
	if a == b {
		return true
	}
	rel, err := filepath.Rel(a, b)
	if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return true
	}
	rel, err = filepath.Rel(b, a)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
