package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: ABIGATE_[SECTION]_[KEY] (e.g., ABIGATE_PATHS_OUTPUT_DIR).
func ApplyEnvOverrides(cfg *Config) {
	// Paths
	setEnvString(&cfg.Paths.Root, "ABIGATE_PATHS_ROOT")
	setEnvString(&cfg.Paths.OutputDir, "ABIGATE_PATHS_OUTPUT_DIR")
	setEnvString(&cfg.Paths.LogDir, "ABIGATE_PATHS_LOG_DIR")
	setEnvList(&cfg.Paths.ModuleDirs, "ABIGATE_PATHS_MODULE_DIRS")
	setEnvString(&cfg.Paths.GKISymvers, "ABIGATE_PATHS_GKI_SYMVERS")
	setEnvString(&cfg.Paths.OKISymvers, "ABIGATE_PATHS_OKI_SYMVERS")
	setEnvString(&cfg.Paths.Vmlinux, "ABIGATE_PATHS_VMLINUX")
	setEnvString(&cfg.Paths.ApprovalCSV, "ABIGATE_PATHS_APPROVAL_CSV")
	setEnvString(&cfg.Paths.RecoveryManifest, "ABIGATE_PATHS_RECOVERY_MANIFEST")

	// Tools
	setEnvString(&cfg.Tools.ExtractSymbols, "ABIGATE_TOOLS_EXTRACT_SYMBOLS")
	setEnvString(&cfg.Tools.NM, "ABIGATE_TOOLS_NM")
	setEnvString(&cfg.Tools.Modprobe, "ABIGATE_TOOLS_MODPROBE")
	setEnvString(&cfg.Tools.Inspector, "ABIGATE_TOOLS_INSPECTOR")
	setEnvInt(&cfg.Tools.MaxParallel, "ABIGATE_TOOLS_MAX_PARALLEL")
	setEnvFloat64(&cfg.Tools.SpawnRate, "ABIGATE_TOOLS_SPAWN_RATE")

	// ModVersions
	setEnvBoolPtr(&cfg.ModVersions.DetectRenames, "ABIGATE_MODVERSIONS_DETECT_RENAMES")

	// Diagnostics
	setEnvList(&cfg.Diagnostics.Exclude, "ABIGATE_DIAGNOSTICS_EXCLUDE")
	setEnvBoolPtr(&cfg.Diagnostics.CopyOnSuccess, "ABIGATE_DIAGNOSTICS_COPY_ON_SUCCESS")
	setEnvBoolPtr(&cfg.Diagnostics.MarkdownReport, "ABIGATE_DIAGNOSTICS_MARKDOWN_REPORT")

	// Database
	setEnvBool(&cfg.DB.Enabled, "ABIGATE_DB_ENABLED")
	setEnvString(&cfg.DB.Path, "ABIGATE_DB_PATH")
	setEnvDuration(&cfg.DB.BusyTimeout, "ABIGATE_DB_BUSY_TIMEOUT")

	// Observability
	setEnvString(&cfg.Observability.MetricsTextfile, "ABIGATE_OBSERVABILITY_METRICS_TEXTFILE")
	setEnvString(&cfg.Observability.OTLPEndpoint, "ABIGATE_OBSERVABILITY_OTLP_ENDPOINT")
	setEnvBool(&cfg.Observability.EnableTracing, "ABIGATE_OBSERVABILITY_ENABLE_TRACING")
	setEnvString(&cfg.Observability.ServiceName, "ABIGATE_OBSERVABILITY_SERVICE_NAME")

	// Watch
	setEnvDuration(&cfg.Watch.Debounce, "ABIGATE_WATCH_DEBOUNCE")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		log.Printf("Applying env override: %s=%s", key, val)
		*target = val
	}
}

// setEnvList splits a comma separated value.
func setEnvList(target *[]string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		log.Printf("Applying env override: %s=%s", key, val)
		parts := strings.Split(val, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*target = out
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = b
		}
	}
}

func setEnvBoolPtr(target **bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = &b
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = d
		}
	}
}
