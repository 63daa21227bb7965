// Package modversions detects checksum drift between module version tables.
package modversions

import (
	"bufio"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"abigate/internal/core/errors"
	"abigate/internal/shared/util"
)

// CrcEntry is one (checksum, symbol) row of a version table.
type CrcEntry struct {
	Checksum string
	Symbol   string
}

func (e CrcEntry) String() string {
	return e.Checksum + " " + e.Symbol
}

// Table is a deduplicated version table sorted by symbol.
type Table []CrcEntry

// ParseDump reads (checksum, symbol) rows. Tabs count as spaces and only the first two
// fields of each row are kept, so vmlinux.symvers rows with module/export/namespace
// columns parse too. Rows with fewer than two fields are skipped.
func ParseDump(r io.Reader) ([]CrcEntry, error) {
	entries := make([]CrcEntry, 0)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := strings.ReplaceAll(scanner.Text(), "\t", " ")
		fields := strings.Fields(line)
		if len(fields) < 2 {
			if len(fields) > 0 {
				slog.Warn("skipping malformed version row", "row", line)
			}
			continue
		}
		entries = append(entries, CrcEntry{Checksum: fields[0], Symbol: fields[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeIO, "read version dump")
	}
	return entries, nil
}

// ReadDump parses the version dump at path. A missing file is a NOT_FOUND error.
func ReadDump(path string) ([]CrcEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "version dump not found"), errors.CtxPath, path)
		}
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeIO, "open version dump"), errors.CtxPath, path)
	}
	defer f.Close()
	return ParseDump(f)
}

// Dedupe keeps one entry per symbol and sorts by symbol. When a symbol carries several
// checksums the smallest one wins, so the result does not depend on input order.
func Dedupe(entries []CrcEntry) Table {
	bySymbol := make(map[string]string, len(entries))
	for _, e := range entries {
		if prev, ok := bySymbol[e.Symbol]; ok {
			if prev != e.Checksum {
				slog.Debug("symbol has several checksums in one table", "symbol", e.Symbol, "kept", min(prev, e.Checksum))
			}
			if e.Checksum >= prev {
				continue
			}
		}
		bySymbol[e.Symbol] = e.Checksum
	}
	table := make(Table, 0, len(bySymbol))
	for sym, crc := range bySymbol {
		table = append(table, CrcEntry{Checksum: crc, Symbol: sym})
	}
	sort.Slice(table, func(i, j int) bool { return table[i].Symbol < table[j].Symbol })
	return table
}

// DedupePairs drops exact (checksum, symbol) repeats but keeps distinct checksums of
// the same symbol. It is used for the current build, where two modules built against
// different headers may disagree and both must reach Compare. Sorted by symbol, then checksum.
func DedupePairs(entries []CrcEntry) Table {
	seen := make(map[CrcEntry]struct{}, len(entries))
	table := make(Table, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		table = append(table, e)
	}
	sort.Slice(table, func(i, j int) bool {
		if table[i].Symbol != table[j].Symbol {
			return table[i].Symbol < table[j].Symbol
		}
		return table[i].Checksum < table[j].Checksum
	})
	return table
}

// Lines renders the table in its on-disk form.
func (t Table) Lines() []string {
	lines := make([]string, len(t))
	for i, e := range t {
		lines[i] = e.String()
	}
	return lines
}

// Write stores the table at path.
func (t Table) Write(path string) error {
	if err := util.WriteLines(path, t.Lines()); err != nil {
		return errors.AddContext(errors.Wrap(err, errors.CodeIO, "write version table"), errors.CtxPath, path)
	}
	return nil
}

// BuildTable reads a raw dump, deduplicates it with dedupe and writes the sorted table
// to outPath.
func BuildTable(inPath, outPath string, dedupe func([]CrcEntry) Table) (Table, error) {
	entries, err := ReadDump(inPath)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		slog.Warn("no valid data found in version dump", "path", inPath)
	}
	table := dedupe(entries)
	if err := table.Write(outPath); err != nil {
		return nil, err
	}
	slog.Debug("version table built", "source", inPath, "entries", len(entries), "unique", len(table))
	return table, nil
}
