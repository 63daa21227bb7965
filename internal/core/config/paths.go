package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"abigate/internal/core/workspace"
)

// ResolvedPaths holds absolute locations for every input and output of a run.
// GKISymvers and OKISymvers may still contain glob patterns.
type ResolvedPaths struct {
	Root             string
	OutputDir        string
	LogDir           string
	ModuleDirs       []string
	GKISymvers       string
	OKISymvers       string
	Vmlinux          string
	ApprovalCSV      string
	RecoveryManifest string
	DBPath           string
	MetricsTextfile  string
	ExtractSymbols   string
	NM               string
	Modprobe         string
}

func ResolvePaths(cfg *Config, cwd string) (ResolvedPaths, error) {
	if strings.TrimSpace(cwd) == "" {
		return ResolvedPaths{}, fmt.Errorf("cwd must not be empty")
	}

	root := ResolveRelative(cwd, cfg.Paths.Root)
	moduleDirs := make([]string, 0, len(cfg.Paths.ModuleDirs))
	for _, dir := range cfg.Paths.ModuleDirs {
		moduleDirs = append(moduleDirs, ResolveRelative(root, dir))
	}

	metrics := strings.TrimSpace(cfg.Observability.MetricsTextfile)
	if metrics != "" {
		metrics = ResolveRelative(root, metrics)
	}

	return ResolvedPaths{
		Root:             root,
		OutputDir:        ResolveRelative(root, cfg.Paths.OutputDir),
		LogDir:           ResolveRelative(root, cfg.Paths.LogDir),
		ModuleDirs:       moduleDirs,
		GKISymvers:       ResolveRelative(root, cfg.Paths.GKISymvers),
		OKISymvers:       ResolveRelative(root, cfg.Paths.OKISymvers),
		Vmlinux:          ResolveRelative(root, cfg.Paths.Vmlinux),
		ApprovalCSV:      ResolveRelative(root, cfg.Paths.ApprovalCSV),
		RecoveryManifest: ResolveRelative(root, cfg.Paths.RecoveryManifest),
		DBPath:           ResolveRelative(root, cfg.DB.Path),
		MetricsTextfile:  metrics,
		ExtractSymbols:   ResolveTool(root, cfg.Tools.ExtractSymbols),
		NM:               ResolveTool(root, cfg.Tools.NM),
		Modprobe:         ResolveTool(root, cfg.Tools.Modprobe),
	}, nil
}

// Workspace builds the run context for the resolved output, log and module directories.
func (p ResolvedPaths) Workspace() (workspace.Context, error) {
	return workspace.New(p.OutputDir, p.LogDir)
}

func ResolveRelative(base, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(value) {
		return filepath.Clean(value)
	}
	return filepath.Clean(filepath.Join(base, value))
}

// ResolveTool leaves bare command names for PATH lookup and anchors anything with a
// separator to root.
func ResolveTool(root, tool string) string {
	tool = strings.TrimSpace(tool)
	if tool == "" || !strings.ContainsRune(tool, '/') {
		return tool
	}
	return ResolveRelative(root, tool)
}
