// Package approval builds the set of symbols that may legitimately stay unresolved.
package approval

import (
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"strings"

	"abigate/internal/core/errors"
	"abigate/internal/core/workspace"
	"abigate/internal/shared/util"
)

const byteOrderMark = "\ufeff"

// LoadAllowlist reads the curated approval table. Only the first column counts, and
// rows whose first column is blank are ignored. An absent or empty file yields an
// empty list.
func LoadAllowlist(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("approval allowlist not present, using empty approval set", "path", path)
			return []string{}, nil
		}
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeIO, "open approval allowlist"), errors.CtxPath, path)
	}
	defer f.Close()

	names, err := ParseAllowlist(f)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxPath, path)
	}
	if len(names) == 0 {
		slog.Info("no valid data found in approval allowlist", "path", path)
	}
	return names, nil
}

// ParseAllowlist extracts the first column of a comma separated table and strips
// byte order marks.
func ParseAllowlist(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	names := make([]string, 0)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeValidationError, "parse approval allowlist")
		}
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		name := strings.ReplaceAll(row[0], byteOrderMark, "")
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// WriteAllowlist writes the normalized allowlist into the workspace.
func WriteAllowlist(ws workspace.Context, names []string) error {
	path := ws.Path(workspace.ApprovalList)
	if err := util.WriteLines(path, names); err != nil {
		return errors.AddContext(errors.Wrap(err, errors.CodeIO, "write approval list"), errors.CtxPath, path)
	}
	return nil
}
