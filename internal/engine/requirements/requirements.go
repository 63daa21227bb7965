// Package requirements turns the raw "required symbols" report into structured records.
package requirements

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"abigate/internal/core/errors"
	"abigate/internal/core/workspace"
	"abigate/internal/shared/util"

	"github.com/samber/lo"
)

const (
	symbolField = 1
	moduleField = 4
)

// SymbolRecord is a required symbol and the module that needs it.
type SymbolRecord struct {
	Name   string
	Module string
}

func (r SymbolRecord) String() string {
	return r.Name + " " + r.Module
}

// Requirements holds the deduplicated views of one report.
type Requirements struct {
	symbols map[string]struct{}
	modules map[string]struct{}
	pairs   map[SymbolRecord]struct{}
	// Skipped counts report lines that had too few fields.
	Skipped int
}

func newRequirements() *Requirements {
	return &Requirements{
		symbols: make(map[string]struct{}),
		modules: make(map[string]struct{}),
		pairs:   make(map[SymbolRecord]struct{}),
	}
}

// Add records one requirement.
func (r *Requirements) Add(rec SymbolRecord) {
	r.symbols[rec.Name] = struct{}{}
	r.modules[rec.Module] = struct{}{}
	r.pairs[rec] = struct{}{}
}

func (r *Requirements) SymbolNames() []string { return util.SortedStringKeys(r.symbols) }
func (r *Requirements) ModuleNames() []string { return util.SortedStringKeys(r.modules) }

// Pairs returns the (symbol, module) records sorted by symbol, then module.
func (r *Requirements) Pairs() []SymbolRecord {
	out := lo.Keys(r.pairs)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Module < out[j].Module
	})
	return out
}

// ParseReport reads "Symbol <name> required by <module>" style lines. Fields are split
// on single spaces after trimming the line; field 1 is the symbol and field 4 the module.
// Shorter lines are skipped.
func ParseReport(r io.Reader) (*Requirements, error) {
	reqs := newRequirements()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, " ")
		if len(fields) <= moduleField {
			reqs.Skipped++
			slog.Warn("skipping malformed requirement line", "line", line, "fields", len(fields))
			continue
		}
		reqs.Add(SymbolRecord{Name: fields[symbolField], Module: fields[moduleField]})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeIO, "read requirement report")
	}
	return reqs, nil
}

// ReadReport parses the report at path. A missing report is fatal.
func ReadReport(path string) (*Requirements, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "requirement report not found"), errors.CtxPath, path)
		}
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeIO, "open requirement report"), errors.CtxPath, path)
	}
	defer f.Close()
	return ParseReport(f)
}

// WriteArtifacts writes the symbol, module and pair lists into the workspace.
func (r *Requirements) WriteArtifacts(ws workspace.Context) error {
	pairs := lo.Map(r.Pairs(), func(rec SymbolRecord, _ int) string { return rec.String() })
	writes := []struct {
		name  string
		lines []string
	}{
		{workspace.RequiredSymbols, r.SymbolNames()},
		{workspace.RequiredModules, r.ModuleNames()},
		{workspace.RequiredSymbolModules, pairs},
	}
	for _, w := range writes {
		if err := util.WriteLines(ws.Path(w.name), w.lines); err != nil {
			return errors.AddContext(errors.Wrap(err, errors.CodeIO, fmt.Sprintf("write %s", w.name)), errors.CtxPath, ws.Path(w.name))
		}
	}
	return nil
}
