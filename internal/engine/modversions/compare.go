package modversions

import (
	"fmt"
	"strings"

	"abigate/internal/core/errors"
	"abigate/internal/shared/util"
)

// MismatchKind says which half of the entry pair disagreed.
type MismatchKind string

const (
	// KindChecksumDrift: same symbol, different checksum.
	KindChecksumDrift MismatchKind = "checksum_drift"
	// KindRenamed: same checksum, different symbol.
	KindRenamed MismatchKind = "renamed"
)

// MismatchRecord pairs a current-build entry with the baseline entry it conflicts with.
type MismatchRecord struct {
	Kind             MismatchKind
	CurrentSymbol    string
	CurrentChecksum  string
	BaselineSymbol   string
	BaselineChecksum string
}

// CompareOptions tunes Compare.
type CompareOptions struct {
	DetectRenames bool
}

// Compare checks every current entry against every baseline entry. The cross product
// is intended: tables are module-scale, and every conflicting pair must be reported.
func Compare(current, baseline []CrcEntry, opts CompareOptions) []MismatchRecord {
	out := make([]MismatchRecord, 0)
	for _, c := range current {
		for _, b := range baseline {
			var kind MismatchKind
			switch {
			case c.Symbol == b.Symbol && c.Checksum != b.Checksum:
				kind = KindChecksumDrift
			case opts.DetectRenames && c.Checksum == b.Checksum && c.Symbol != b.Symbol:
				kind = KindRenamed
			default:
				continue
			}
			out = append(out, MismatchRecord{
				Kind:             kind,
				CurrentSymbol:    c.Symbol,
				CurrentChecksum:  c.Checksum,
				BaselineSymbol:   b.Symbol,
				BaselineChecksum: b.Checksum,
			})
		}
	}
	return out
}

// FormatReport renders records as two lines each, naming the file every side came from.
func FormatReport(records []MismatchRecord, currentFile, baselineFile string) []string {
	lines := make([]string, 0, len(records)*2)
	for _, r := range records {
		lines = append(lines,
			fmt.Sprintf("%s: %s %s", currentFile, r.CurrentChecksum, r.CurrentSymbol),
			fmt.Sprintf("%s: %s %s", baselineFile, r.BaselineChecksum, r.BaselineSymbol),
		)
	}
	return lines
}

// CheckBaseline compares the current table file with the baseline table file and writes
// the report to outPath. It returns the records found.
func CheckBaseline(currentPath, baselinePath, outPath string, opts CompareOptions) ([]MismatchRecord, error) {
	current, err := ReadDump(currentPath)
	if err != nil {
		return nil, err
	}
	baseline, err := ReadDump(baselinePath)
	if err != nil {
		return nil, err
	}
	records := Compare(current, baseline, opts)
	if err := util.WriteLines(outPath, FormatReport(records, currentPath, baselinePath)); err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeIO, "write version report"), errors.CtxPath, outPath)
	}
	return records, nil
}

// Summary is a short human readable description of records.
func Summary(records []MismatchRecord) string {
	drift, renamed := 0, 0
	symbols := make([]string, 0, len(records))
	for _, r := range records {
		if r.Kind == KindRenamed {
			renamed++
		} else {
			drift++
		}
		symbols = append(symbols, r.CurrentSymbol)
	}
	const maxListed = 5
	if len(symbols) > maxListed {
		symbols = append(symbols[:maxListed], "...")
	}
	return fmt.Sprintf("%d checksum drift(s), %d rename(s): %s", drift, renamed, strings.Join(symbols, ", "))
}
