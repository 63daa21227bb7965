package workspace

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// Link describes one input file that is symlinked into the output directory.
type Link struct {
	// Source may be a glob; it must match exactly one file.
	Source string
	// Name is the artifact name inside the output directory.
	Name string
}

// LinkInputs symlinks every source into the output directory. A source that matches
// zero or several files is skipped with a warning; later stages decide whether the
// missing artifact is fatal.
func (c Context) LinkInputs(links []Link) []string {
	linked := make([]string, 0, len(links))
	for _, link := range links {
		if strings.TrimSpace(link.Source) == "" {
			continue
		}
		matches, err := filepath.Glob(link.Source)
		if err != nil {
			slog.Warn("invalid input pattern", "pattern", link.Source, "error", err)
			continue
		}
		switch {
		case len(matches) == 0:
			slog.Warn("no source file matches input pattern", "pattern", link.Source)
			continue
		case len(matches) > 1:
			slog.Warn("multiple source files match input pattern, cannot link", "pattern", link.Source, "matches", len(matches))
			continue
		}
		target := c.Path(link.Name)
		if err := replaceSymlink(matches[0], target); err != nil {
			slog.Warn("failed to link input", "source", matches[0], "target", target, "error", err)
			continue
		}
		linked = append(linked, target)
	}
	return linked
}

// StageModules walks every directory in dirs and symlinks files whose base name matches
// pattern (for example "*.ko") into the module directory. On a name collision the file
// found last wins. Missing directories are skipped.
func (c Context) StageModules(dirs []string, pattern string) ([]string, error) {
	matcher, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid module pattern %q: %w", pattern, err)
	}
	moduleDir := c.ModuleDir
	if moduleDir == "" {
		moduleDir = c.OutputDir
	}
	if err := os.MkdirAll(moduleDir, 0o755); err != nil {
		return nil, fmt.Errorf("create module dir %q: %w", moduleDir, err)
	}

	staged := make(map[string]string)
	for _, dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			slog.Debug("module directory not present, skipping", "dir", dir)
			continue
		}
		walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !matcher.Match(d.Name()) {
				return nil
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}
			if prev, ok := staged[d.Name()]; ok {
				slog.Debug("module staged twice, last one wins", "module", d.Name(), "previous", prev, "current", abs)
			}
			staged[d.Name()] = abs
			return replaceSymlink(abs, filepath.Join(moduleDir, d.Name()))
		})
		if walkErr != nil {
			return nil, fmt.Errorf("stage modules from %q: %w", dir, walkErr)
		}
	}

	out := make([]string, 0, len(staged))
	for name := range staged {
		out = append(out, filepath.Join(moduleDir, name))
	}
	sort.Strings(out)
	return out, nil
}

// FindModules lists files under the module directory whose base name matches pattern,
// sorted by path.
func (c Context) FindModules(pattern string) ([]string, error) {
	matcher, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid module pattern %q: %w", pattern, err)
	}
	root := c.ModuleDir
	if root == "" {
		root = c.OutputDir
	}
	found := make([]string, 0)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && matcher.Match(d.Name()) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find modules under %q: %w", root, err)
	}
	sort.Strings(found)
	return found, nil
}

func replaceSymlink(source, target string) error {
	abs, err := filepath.Abs(source)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(target); err == nil {
		if err := os.Remove(target); err != nil {
			return err
		}
	}
	return os.Symlink(abs, target)
}
