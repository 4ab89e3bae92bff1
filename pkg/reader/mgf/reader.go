// Package mgf provides a streaming reader for Mascot Generic Format spectra
package mgf

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/PepMatch/pkg/core"
)

// Reader provides streaming access to MGF files
type Reader struct {
	scanner     *bufio.Scanner
	lineNum     int
	currentSpec *core.Spectrum
	err         error
}

// NewReader creates a new MGF reader
func NewReader(r io.Reader) *Reader {
	return &Reader{
		scanner: bufio.NewScanner(r),
	}
}

// Next advances to the next spectrum. Returns false when no more spectra or error.
func (r *Reader) Next() bool {
	r.currentSpec = nil

	spec, err := r.readSpectrum()
	if err != nil {
		if err != io.EOF {
			r.err = err
		}
		return false
	}

	r.currentSpec = spec
	return true
}

// Spectrum returns the current spectrum
func (r *Reader) Spectrum() *core.Spectrum {
	return r.currentSpec
}

// Err returns any error encountered during reading
func (r *Reader) Err() error {
	return r.err
}

// readSpectrum reads one BEGIN IONS ... END IONS block. Lines outside blocks (global parameters,
// comments) are skipped.
func (r *Reader) readSpectrum() (*core.Spectrum, error) {
	var spec *core.Spectrum

	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimSpace(r.scanner.Text())

		if line == "" || line[0] == '#' || line[0] == ';' || line[0] == '!' {
			continue
		}

		if spec == nil {
			if strings.EqualFold(line, "BEGIN IONS") {
				spec = &core.Spectrum{
					SourceFormat: "mgf",
					Peaks:        []core.Peak{},
				}
			}
			continue
		}

		if strings.EqualFold(line, "END IONS") {
			return spec, nil
		}
		if strings.EqualFold(line, "BEGIN IONS") {
			return nil, fmt.Errorf("line %d: BEGIN IONS inside an open block", r.lineNum)
		}

		if key, value, ok := strings.Cut(line, "="); ok && !startsNumeric(line) {
			if err := parseParam(spec, strings.ToUpper(key), strings.TrimSpace(value)); err != nil {
				return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
			}
			continue
		}

		peak, err := parsePeak(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
		}
		spec.Peaks = append(spec.Peaks, peak)
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if spec != nil {
		return nil, fmt.Errorf("line %d: missing END IONS for %q", r.lineNum, spec.Title)
	}
	return nil, io.EOF
}

func startsNumeric(line string) bool {
	c := line[0]
	return (c >= '0' && c <= '9') || c == '.' || c == '-'
}

// parseParam applies one KEY=value line of an ions block
func parseParam(spec *core.Spectrum, key, value string) error {
	switch key {
	case "TITLE":
		spec.Title = value

	case "PEPMASS":
		// PEPMASS=mz [intensity]
		fields := strings.Fields(value)
		if len(fields) == 0 {
			return fmt.Errorf("empty PEPMASS")
		}
		mz, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return fmt.Errorf("invalid PEPMASS: %w", err)
		}
		spec.PrecursorMZ = mz
		if len(fields) > 1 {
			if v, err := strconv.ParseFloat(fields[1], 64); err == nil {
				spec.PrecursorIntensity = v
			}
		}

	case "CHARGE":
		// CHARGE=2+ or CHARGE=2+ and 3+; the first charge is used
		first := strings.Fields(strings.ReplaceAll(value, ",", " "))
		if len(first) == 0 {
			return fmt.Errorf("empty CHARGE")
		}
		charge, err := parseCharge(first[0])
		if err != nil {
			return err
		}
		spec.Charge = charge

	case "RTINSECONDS":
		rt, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid RTINSECONDS: %w", err)
		}
		spec.RetentionTime = &rt

	case "SEQ":
		spec.Sequence = value
	}
	return nil
}

// parseCharge parses "2", "2+" or "3-" (magnitude only)
func parseCharge(s string) (int, error) {
	s = strings.TrimRight(s, "+-")
	z, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid charge %q: %w", s, err)
	}
	return z, nil
}

// parsePeak parses "mz intensity [charge]"
func parsePeak(line string) (core.Peak, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return core.Peak{}, fmt.Errorf("invalid peak format, expected at least 2 fields")
	}

	mz, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return core.Peak{}, fmt.Errorf("invalid m/z value: %w", err)
	}

	intensity, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return core.Peak{}, fmt.Errorf("invalid intensity value: %w", err)
	}

	peak := core.Peak{
		MZ:        mz,
		Intensity: intensity,
	}
	if len(fields) >= 3 {
		z, err := parseCharge(fields[2])
		if err != nil {
			return core.Peak{}, err
		}
		peak.Charge = z
	}
	return peak, nil
}
