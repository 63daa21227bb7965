package gate

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"
	"github.com/hashicorp/go-multierror"
)

// CopyDiagnostics copies the tree under src into dest. Entries whose base name matches
// any exclude pattern are skipped at every level, directories included. Symlinks are
// followed so linked inputs land as regular files. Every copy failure is collected; the
// copy continues past them.
func CopyDiagnostics(src, dest string, exclude []string) (int, error) {
	matchers := make([]glob.Glob, 0, len(exclude))
	for _, pattern := range exclude {
		g, err := glob.Compile(pattern)
		if err != nil {
			return 0, fmt.Errorf("invalid diagnostics exclude pattern %q: %w", pattern, err)
		}
		matchers = append(matchers, g)
	}
	excluded := func(name string) bool {
		for _, m := range matchers {
			if m.Match(name) {
				return true
			}
		}
		return false
	}

	if _, err := os.Stat(src); err != nil {
		return 0, fmt.Errorf("diagnostics source %q: %w", src, err)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return 0, fmt.Errorf("create diagnostics dir %q: %w", dest, err)
	}

	var result *multierror.Error
	copied := 0
	walkErr := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			result = multierror.Append(result, err)
			return nil
		}
		if path == src {
			return nil
		}
		if excluded(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			result = multierror.Append(result, err)
			return nil
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				result = multierror.Append(result, err)
			}
			return nil
		}
		if err := copyFile(path, target); err != nil {
			result = multierror.Append(result, fmt.Errorf("copy %s: %w", rel, err))
			return nil
		}
		copied++
		return nil
	})
	if walkErr != nil {
		result = multierror.Append(result, walkErr)
	}
	slog.Debug("diagnostics copied", "src", src, "dest", dest, "files", copied)
	return copied, result.ErrorOrNil()
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	// Remove first so a previous symlink at dst is replaced, not written through.
	_ = os.Remove(dst)
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
