// Package workspace holds every path a gate run reads or writes.
//
// A Context replaces the single implicit output directory: each component
// receives the Context explicitly, so two gates can run side by side with
// isolated directories.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Artifact file names inside the output directory.
const (
	RequiredFull          = "abi_required_full.txt"
	RequiredSymbols       = "abi_required_symbol.txt"
	RequiredModules       = "abi_required_ko.txt"
	RequiredSymbolModules = "abi_required_symbol_ko.txt"
	ApprovalCSV           = "abi_symbols_tmp_approval.csv"
	ApprovalList          = "abi_symbols_tmp_approval.txt"
	WeakApprovalList      = "abi_weak_symbols_approval.txt"
	WeakApprovalModules   = "abi_weak_symbols_ko.txt"
	FullApprovalList      = "abi_symbols_approval_all.txt"
	MissingAfterApproval  = "abi_required_and_remove_tmp_approval.txt"
	RecoveryManifest      = "modules.load.recovery"
	ModuleCoverage        = "abi_compare_recovery_ko_need_symbol.txt"
	SymbolList            = "abi_gki_aarch64_oplus"

	ModVersionsFull   = "ko_modversions_full.txt"
	ModVersionsSorted = "ko_modversions_remove_duplicates_and_sort.txt"

	GKISymvers       = "vmlinux_gki.symvers"
	OKISymvers       = "vmlinux.symvers"
	GKICrcTable      = "vmlinux_gki_modversions_crc_symbols_remove_duplicates_and_sort"
	OKICrcTable      = "vmlinux_oki_modversions_crc_symbols_remove_duplicates_and_sort"
	GKIVersionReport = "check_gki_symvers_ko_result.txt"
	OKIVersionReport = "check_oki_symvers_ko_result.txt"

	GateReport = "abi_gate_report.md"
)

// Context is the explicit workspace of one gate run.
type Context struct {
	// OutputDir receives every intermediate and result artifact. It is cleared on Reset.
	OutputDir string
	// LogDir receives a copy of the diagnostics when the gate finishes.
	LogDir string
	// ModuleDir is where module binaries are looked up by name. Defaults to OutputDir.
	ModuleDir string
}

// New builds a Context rooted at outputDir.
func New(outputDir, logDir string) (Context, error) {
	outputDir = strings.TrimSpace(outputDir)
	if outputDir == "" {
		return Context{}, fmt.Errorf("workspace output dir must not be empty")
	}
	logDir = strings.TrimSpace(logDir)
	if logDir != "" && filepath.Clean(logDir) == filepath.Clean(outputDir) {
		return Context{}, fmt.Errorf("workspace log dir must differ from output dir %q", outputDir)
	}
	return Context{
		OutputDir: filepath.Clean(outputDir),
		LogDir:    cleanOrEmpty(logDir),
		ModuleDir: filepath.Clean(outputDir),
	}, nil
}

func cleanOrEmpty(p string) string {
	if p == "" {
		return ""
	}
	return filepath.Clean(p)
}

// Path returns the absolute location of an artifact inside the output directory.
func (c Context) Path(name string) string {
	return filepath.Join(c.OutputDir, name)
}

// ModulePath returns where the binary of module is expected.
func (c Context) ModulePath(module string) string {
	dir := c.ModuleDir
	if dir == "" {
		dir = c.OutputDir
	}
	return filepath.Join(dir, module)
}

// Reset creates the output directory if needed and removes everything inside it,
// so no artifact of a previous run survives.
func (c Context) Reset() error {
	if err := os.MkdirAll(c.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir %q: %w", c.OutputDir, err)
	}
	entries, err := os.ReadDir(c.OutputDir)
	if err != nil {
		return fmt.Errorf("list output dir %q: %w", c.OutputDir, err)
	}
	for _, entry := range entries {
		target := filepath.Join(c.OutputDir, entry.Name())
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("remove %q: %w", target, err)
		}
	}
	return nil
}
