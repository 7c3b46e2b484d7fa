package pdm

import (
	"path/filepath"
	"strings"
)

// NameScheme describes how part numbers and revision labels are read out of
// filenames. Parsing is advisory: a file whose name doesn't match the scheme
// is simply ungrouped, never rejected.
type NameScheme struct {
	// PartNumberWidth is the exact count of leading digits that form a
	// part number.
	PartNumberWidth int

	// RevisionSep separates the part number from the revision label,
	// as in 1000001-A.part.
	RevisionSep string
}

// DefaultNameScheme matches seven leading digits and a dash separator.
func DefaultNameScheme() NameScheme {
	return NameScheme{PartNumberWidth: 7, RevisionSep: "-"}
}

// PartNumberOf extracts the part number from a filename. The second return
// is false when the name does not start with exactly PartNumberWidth digits.
func (n NameScheme) PartNumberOf(filename string) (string, bool) {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	if len(base) < n.PartNumberWidth {
		return "", false
	}
	num := base[:n.PartNumberWidth]
	for _, c := range num {
		if c < '0' || c > '9' {
			return "", false
		}
	}
	// A longer digit run means the prefix is not a part number at the
	// configured width.
	if len(base) > n.PartNumberWidth {
		c := base[n.PartNumberWidth]
		if c >= '0' && c <= '9' {
			return "", false
		}
	}
	return num, true
}

// LabelOf extracts the revision label that follows the part number, e.g.
// "A" from 1000001-A.part. Returns "" when the filename has no part number
// or no label.
func (n NameScheme) LabelOf(filename string) string {
	num, ok := n.PartNumberOf(filename)
	if !ok {
		return ""
	}
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	rest := base[len(num):]
	if !strings.HasPrefix(rest, n.RevisionSep) {
		return ""
	}
	return strings.TrimPrefix(rest, n.RevisionSep)
}

// ValidPartNumber reports whether s is a well-formed part number on its own.
func (n NameScheme) ValidPartNumber(s string) bool {
	if len(s) != n.PartNumberWidth {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// PartSet maps part numbers to their records.
type PartSet map[string]Part

func (s PartSet) clone() PartSet {
	next := make(PartSet, len(s)+1)
	for k, v := range s {
		next[k] = v
	}
	return next
}

// SetCurrentRev returns a copy with the part's designated revision replaced,
// creating the part record if needed.
func (s PartSet) SetCurrentRev(number, rev string) PartSet {
	next := s.clone()
	p := next[number]
	p.Number = number
	p.CurrentRev = rev
	next[number] = p
	return next
}

// SetDescription returns a copy with the part's description replaced,
// creating the part record if needed.
func (s PartSet) SetDescription(number, description string) PartSet {
	next := s.clone()
	p := next[number]
	p.Number = number
	p.Description = description
	next[number] = p
	return next
}

// RevisionMismatch reports whether the file's name-embedded revision label
// disagrees with its part's designated current revision. Files without a
// part number, parts without a record, and parts without a designated
// revision never mismatch.
func (n NameScheme) RevisionMismatch(filename string, parts PartSet) bool {
	num, ok := n.PartNumberOf(filename)
	if !ok {
		return false
	}
	part, ok := parts[num]
	if !ok || part.CurrentRev == "" {
		return false
	}
	return n.LabelOf(filename) != part.CurrentRev
}
