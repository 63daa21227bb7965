// Package reconcile compares newline-delimited files as sets of lines.
//
// Line content is the key: whitespace inside a line is significant and is
// preserved in every result so diagnostics show exactly what was compared.
package reconcile

import (
	"os"

	"abigate/internal/core/errors"
	"abigate/internal/shared/util"
)

// LineSet is an insertion-ordered set of lines.
type LineSet struct {
	order []string
	index map[string]struct{}
}

// NewLineSet builds a set from lines, dropping repeats after the first.
func NewLineSet(lines []string) *LineSet {
	s := &LineSet{index: make(map[string]struct{}, len(lines))}
	for _, line := range lines {
		s.Add(line)
	}
	return s
}

func (s *LineSet) Add(line string) {
	if _, ok := s.index[line]; ok {
		return
	}
	s.index[line] = struct{}{}
	s.order = append(s.order, line)
}

func (s *LineSet) Contains(line string) bool {
	_, ok := s.index[line]
	return ok
}

func (s *LineSet) Len() int { return len(s.order) }

// Lines returns the members in first-seen order.
func (s *LineSet) Lines() []string {
	return append([]string(nil), s.order...)
}

// Difference returns the lines of required that approved does not contain.
func Difference(required, approved *LineSet) []string {
	out := make([]string, 0)
	for _, line := range required.order {
		if !approved.Contains(line) {
			out = append(out, line)
		}
	}
	return out
}

// Intersection returns the lines of required that also appear in manifest.
func Intersection(manifest, required *LineSet) []string {
	out := make([]string, 0)
	for _, line := range required.order {
		if manifest.Contains(line) {
			out = append(out, line)
		}
	}
	return out
}

// ReadSet loads path as a LineSet. When missingAsEmpty is set an absent file yields
// an empty set; otherwise absence is a NOT_FOUND error.
func ReadSet(path string, missingAsEmpty bool) (*LineSet, error) {
	lines, err := util.ReadLines(path)
	if err != nil {
		if os.IsNotExist(err) {
			if missingAsEmpty {
				return NewLineSet(nil), nil
			}
			return nil, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "input file not found"), errors.CtxPath, path)
		}
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeIO, "read input file"), errors.CtxPath, path)
	}
	return NewLineSet(lines), nil
}

// CoverageCheck writes to outPath every line of requiredPath that approvedPath lacks.
// A missing approvedPath counts as empty, so a first run reports everything.
func CoverageCheck(requiredPath, approvedPath, outPath string) ([]string, error) {
	required, err := ReadSet(requiredPath, false)
	if err != nil {
		return nil, err
	}
	approved, err := ReadSet(approvedPath, true)
	if err != nil {
		return nil, err
	}
	missing := Difference(required, approved)
	if err := util.WriteLines(outPath, missing); err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeIO, "write coverage result"), errors.CtxPath, outPath)
	}
	return missing, nil
}

// IntersectionCheck writes to outPath every line of requiredPath that also appears in
// manifestPath. A missing manifestPath counts as empty.
func IntersectionCheck(manifestPath, requiredPath, outPath string) ([]string, error) {
	manifest, err := ReadSet(manifestPath, true)
	if err != nil {
		return nil, err
	}
	required, err := ReadSet(requiredPath, false)
	if err != nil {
		return nil, err
	}
	present := Intersection(manifest, required)
	if err := util.WriteLines(outPath, present); err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeIO, "write intersection result"), errors.CtxPath, outPath)
	}
	return present, nil
}
