package config

import (
	"time"
)

type Config struct {
	Version       int           `toml:"version"`
	Paths         Paths         `toml:"paths"`
	Tools         Tools         `toml:"tools"`
	ModVersions   ModVersions   `toml:"modversions"`
	Diagnostics   Diagnostics   `toml:"diagnostics"`
	DB            Database      `toml:"db"`
	Observability Observability `toml:"observability"`
	Watch         Watch         `toml:"watch"`
}

// Paths locates the inputs of a run. Relative entries are resolved against Root,
// and Root itself against the working directory.
type Paths struct {
	Root             string   `toml:"root"`
	OutputDir        string   `toml:"output_dir"`
	LogDir           string   `toml:"log_dir"`
	ModuleDirs       []string `toml:"module_dirs"`
	ModulePattern    string   `toml:"module_pattern"`
	GKISymvers       string   `toml:"gki_symvers"`
	OKISymvers       string   `toml:"oki_symvers"`
	Vmlinux          string   `toml:"vmlinux"`
	ApprovalCSV      string   `toml:"approval_csv"`
	RecoveryManifest string   `toml:"recovery_manifest"`
}

type Tools struct {
	ExtractSymbols string  `toml:"extract_symbols"`
	NM             string  `toml:"nm"`
	Modprobe       string  `toml:"modprobe"`
	Inspector      string  `toml:"inspector"` // nm or elf
	MaxParallel    int     `toml:"max_parallel"`
	SpawnRate      float64 `toml:"spawn_rate"` // processes per second, 0 = unlimited
	SpawnBurst     int     `toml:"spawn_burst"`
}

type ModVersions struct {
	DetectRenames *bool `toml:"detect_renames"`
}

type Diagnostics struct {
	Exclude       []string `toml:"exclude"`
	CopyOnSuccess *bool    `toml:"copy_on_success"`
	// MarkdownReport writes abi_gate_report.md next to the artifacts after every run.
	MarkdownReport *bool `toml:"markdown_report"`
}

type Database struct {
	Enabled     bool          `toml:"enabled"`
	Driver      string        `toml:"driver"`
	Path        string        `toml:"path"`
	BusyTimeout time.Duration `toml:"busy_timeout"`
}

type Observability struct {
	MetricsTextfile string `toml:"metrics_textfile"`
	EnableTracing   bool   `toml:"enable_tracing"`
	OTLPEndpoint    string `toml:"otlp_endpoint"`
	OTLPInsecure    bool   `toml:"otlp_insecure"`
	ServiceName     string `toml:"service_name"`
}

type Watch struct {
	Debounce time.Duration `toml:"debounce"`
}

const (
	InspectorNM  = "nm"
	InspectorELF = "elf"
)

// DefaultConfig returns the layout of a vendor kernel tree checked out at the working directory.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func (m ModVersions) RenamesEnabled() bool {
	if m.DetectRenames == nil {
		return true
	}
	return *m.DetectRenames
}

func (d Diagnostics) CopyOnSuccessEnabled() bool {
	if d.CopyOnSuccess == nil {
		return true
	}
	return *d.CopyOnSuccess
}

func (d Diagnostics) MarkdownReportEnabled() bool {
	if d.MarkdownReport == nil {
		return true
	}
	return *d.MarkdownReport
}
