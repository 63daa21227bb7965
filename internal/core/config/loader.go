package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}

	ApplyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	normalize(&cfg)

	if errs := Validate(&cfg); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &cfg, nil
}

var defaultModuleDirs = []string{
	"out/target/product/vnd/dlkm/lib/modules",
	"out/target/product/vnd/system_dlkm/lib/modules",
	"out/target/product/vnd/odm_dlkm/lib/modules",
	"out/target/product/vnd/vendor_dlkm/lib/modules",
	"out/target/product/vnd/vendor_ramdisk/lib/modules",
	"kernel_platform/oplus/platform/aosp_gki/system_dlkm/lib/modules",
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if strings.TrimSpace(cfg.Paths.Root) == "" {
		cfg.Paths.Root = "."
	}
	if strings.TrimSpace(cfg.Paths.OutputDir) == "" {
		cfg.Paths.OutputDir = "out/oplus"
	}
	if strings.TrimSpace(cfg.Paths.LogDir) == "" {
		cfg.Paths.LogDir = "LOGDIR/abi"
	}
	if len(cfg.Paths.ModuleDirs) == 0 {
		cfg.Paths.ModuleDirs = append([]string(nil), defaultModuleDirs...)
	}
	if strings.TrimSpace(cfg.Paths.ModulePattern) == "" {
		cfg.Paths.ModulePattern = "*.ko"
	}
	if strings.TrimSpace(cfg.Paths.GKISymvers) == "" {
		cfg.Paths.GKISymvers = "kernel_platform/oplus/platform/aosp_gki/vmlinux.symvers"
	}
	if strings.TrimSpace(cfg.Paths.OKISymvers) == "" {
		cfg.Paths.OKISymvers = "kernel_platform/out/msm-kernel-*/dist/vmlinux.symvers"
	}
	if strings.TrimSpace(cfg.Paths.Vmlinux) == "" {
		cfg.Paths.Vmlinux = "kernel_platform/oplus/platform/aosp_gki/vmlinux"
	}
	if strings.TrimSpace(cfg.Paths.ApprovalCSV) == "" {
		cfg.Paths.ApprovalCSV = "kernel_platform/oplus/config/abi_symbols_tmp_approval.csv"
	}
	if strings.TrimSpace(cfg.Paths.RecoveryManifest) == "" {
		cfg.Paths.RecoveryManifest = "out/target/product/vnd/vendor_ramdisk/lib/modules/modules.load.recovery"
	}

	if strings.TrimSpace(cfg.Tools.ExtractSymbols) == "" {
		cfg.Tools.ExtractSymbols = "kernel_platform/build/abi/extract_symbols"
	}
	if strings.TrimSpace(cfg.Tools.NM) == "" {
		cfg.Tools.NM = "nm"
	}
	if strings.TrimSpace(cfg.Tools.Modprobe) == "" {
		cfg.Tools.Modprobe = "modprobe"
	}
	if strings.TrimSpace(cfg.Tools.Inspector) == "" {
		cfg.Tools.Inspector = InspectorNM
	}
	if cfg.Tools.MaxParallel <= 0 {
		cfg.Tools.MaxParallel = 4
	}
	if cfg.Tools.SpawnBurst <= 0 {
		cfg.Tools.SpawnBurst = 1
	}

	if cfg.Diagnostics.Exclude == nil {
		cfg.Diagnostics.Exclude = []string{"*.ko", "vmlinux"}
	}

	if strings.TrimSpace(cfg.DB.Driver) == "" {
		cfg.DB.Driver = "sqlite"
	}
	if strings.TrimSpace(cfg.DB.Path) == "" {
		cfg.DB.Path = "out/abigate_history.db"
	}
	if cfg.DB.BusyTimeout <= 0 {
		cfg.DB.BusyTimeout = 5 * time.Second
	}

	if strings.TrimSpace(cfg.Observability.ServiceName) == "" {
		cfg.Observability.ServiceName = "abigate"
	}

	// Default debounce if not set.
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
}

func normalize(cfg *Config) {
	cfg.Paths.Root = strings.TrimSpace(cfg.Paths.Root)
	cfg.Paths.OutputDir = strings.TrimSpace(cfg.Paths.OutputDir)
	cfg.Paths.LogDir = strings.TrimSpace(cfg.Paths.LogDir)
	cfg.Paths.GKISymvers = strings.TrimSpace(cfg.Paths.GKISymvers)
	cfg.Paths.OKISymvers = strings.TrimSpace(cfg.Paths.OKISymvers)
	cfg.Paths.ApprovalCSV = strings.TrimSpace(cfg.Paths.ApprovalCSV)
	cfg.Paths.RecoveryManifest = strings.TrimSpace(cfg.Paths.RecoveryManifest)
	cfg.Tools.Inspector = strings.ToLower(strings.TrimSpace(cfg.Tools.Inspector))

	dirs := make([]string, 0, len(cfg.Paths.ModuleDirs))
	for _, dir := range cfg.Paths.ModuleDirs {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		dirs = append(dirs, dir)
	}
	cfg.Paths.ModuleDirs = dirs

	exclude := make([]string, 0, len(cfg.Diagnostics.Exclude))
	for _, pattern := range cfg.Diagnostics.Exclude {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		exclude = append(exclude, pattern)
	}
	cfg.Diagnostics.Exclude = exclude
}
