// Package peptides reads candidate peptides from CSV (format: sequence,protein_n_term,protein_c_term[,protein])
package peptides

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Candidate is one peptide to match, with whether its ends are protein ends
type Candidate struct {
	Sequence     string
	ProteinNTerm bool
	ProteinCTerm bool
	Protein      string
}

// Reader provides streaming access to candidate CSV files
type Reader struct {
	scanner *bufio.Scanner
	lineNum int
	current Candidate
	err     error
}

// NewReader creates a new candidate reader. A first line starting with "sequence" is a header.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		scanner: bufio.NewScanner(r),
	}
}

// Next advances to the next candidate. Returns false when no more candidates or error.
func (r *Reader) Next() bool {
	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if r.lineNum == 1 && strings.HasPrefix(strings.ToLower(line), "sequence") {
			continue
		}

		c, err := parseLine(line)
		if err != nil {
			r.err = fmt.Errorf("line %d: %w", r.lineNum, err)
			return false
		}
		r.current = c
		return true
	}
	if err := r.scanner.Err(); err != nil {
		r.err = fmt.Errorf("error reading CSV: %w", err)
	}
	return false
}

// Candidate returns the current candidate
func (r *Reader) Candidate() Candidate {
	return r.current
}

// Err returns any error encountered during reading
func (r *Reader) Err() error {
	return r.err
}

// ReadAll reads every remaining candidate
func ReadAll(r io.Reader) ([]Candidate, error) {
	pr := NewReader(r)
	var out []Candidate
	for pr.Next() {
		out = append(out, pr.Candidate())
	}
	return out, pr.Err()
}

func parseLine(line string) (Candidate, error) {
	parts := strings.Split(line, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	c := Candidate{Sequence: strings.ToUpper(parts[0])}
	if c.Sequence == "" {
		return Candidate{}, fmt.Errorf("empty sequence")
	}
	for i := 0; i < len(c.Sequence); i++ {
		if c.Sequence[i] < 'A' || c.Sequence[i] > 'Z' {
			return Candidate{}, fmt.Errorf("invalid residue %q in %s", c.Sequence[i], c.Sequence)
		}
	}

	var err error
	if len(parts) > 1 {
		if c.ProteinNTerm, err = parseFlag(parts[1]); err != nil {
			return Candidate{}, fmt.Errorf("protein_n_term: %w", err)
		}
	}
	if len(parts) > 2 {
		if c.ProteinCTerm, err = parseFlag(parts[2]); err != nil {
			return Candidate{}, fmt.Errorf("protein_c_term: %w", err)
		}
	}
	if len(parts) > 3 {
		c.Protein = parts[3]
	}
	return c, nil
}

// parseFlag accepts strconv bools plus "yes"/"no"; empty is false
func parseFlag(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "":
		return false, nil
	case "yes", "y":
		return true, nil
	case "no", "n":
		return false, nil
	}
	return strconv.ParseBool(s)
}
