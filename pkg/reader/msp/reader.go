// Package msp provides a streaming reader for observed spectra in MSP text format
package msp

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/PepMatch/pkg/core"
)

// ionAnnotation matches annotations like "y3", "b2^2", "y10-H2O^3" or "p^2"
var ionAnnotation = regexp.MustCompile(`^[a-zA-Z][\w+\-]*?(?:\^(\d+))?$`)

// Reader provides streaming access to MSP format files
type Reader struct {
	scanner     *bufio.Scanner
	lineNum     int
	currentSpec *core.Spectrum
	err         error
}

// NewReader creates a new MSP reader
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

// readSpectrum reads a single spectrum entry from the MSP file
func (r *Reader) readSpectrum() (*core.Spectrum, error) {
	spec := &core.Spectrum{
		SourceFormat: "msp",
		Peaks:        []core.Peak{},
	}

	started := false
	numPeaks := 0
	inPeaks := false

	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimSpace(r.scanner.Text())

		// Skip empty lines between entries
		if line == "" {
			continue
		}

		if inPeaks {
			peak, err := parsePeak(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
			}
			spec.Peaks = append(spec.Peaks, peak)
			if len(spec.Peaks) >= numPeaks {
				return spec, nil
			}
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("line %d: expected 'Key: value', got %q", r.lineNum, line)
		}
		value = strings.TrimSpace(value)

		switch strings.ToLower(key) {
		case "name", "title":
			started = true
			parseName(spec, value)
		case "precursormz":
			mz, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid precursor m/z: %w", r.lineNum, err)
			}
			spec.PrecursorMZ = mz
		case "charge":
			charge, err := strconv.Atoi(strings.TrimRight(value, "+"))
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid charge: %w", r.lineNum, err)
			}
			spec.Charge = charge
		case "comment":
			parseComment(spec, value)
		case "num peaks":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid num peaks: %w", r.lineNum, err)
			}
			if !started {
				return nil, fmt.Errorf("line %d: peaks before Name", r.lineNum)
			}
			numPeaks = n
			if numPeaks == 0 {
				return spec, nil
			}
			inPeaks = true
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if inPeaks {
		return nil, fmt.Errorf("line %d: entry %q ends after %d of %d peaks", r.lineNum, spec.Title, len(spec.Peaks), numPeaks)
	}
	if started {
		return nil, fmt.Errorf("line %d: entry %q has no Num peaks line", r.lineNum, spec.Title)
	}

	return nil, io.EOF
}

// parseName stores the Name field as the title. Names of the form "SEQUENCE/CHARGE" also give the
// annotated sequence and the charge.
func parseName(spec *core.Spectrum, name string) {
	spec.Title = name
	seq, z, ok := strings.Cut(name, "/")
	if !ok {
		return
	}
	charge, err := strconv.Atoi(z)
	if err != nil {
		return
	}
	if spec.Charge == 0 {
		spec.Charge = charge
	}
	if isSequence(seq) {
		spec.Sequence = seq
	}
}

func isSequence(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

// parseComment extracts metadata from Comment field
func parseComment(spec *core.Spectrum, comment string) {
	// Comment format: key=value key=value...
	// Example: Parent=414.71 Collision_energy=35 RetentionTime=61.01
	for _, field := range strings.Fields(comment) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}

		switch key {
		case "Parent":
			if spec.PrecursorMZ != 0 {
				continue
			}
			if mz, err := strconv.ParseFloat(value, 64); err == nil {
				spec.PrecursorMZ = mz
			}

		case "Intensity", "PrecursorIntensity":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				spec.PrecursorIntensity = v
			}

		case "RetentionTime", "RT", "iRT":
			if rt, err := strconv.ParseFloat(value, 64); err == nil {
				spec.RetentionTime = &rt
			}
		}
	}
}

// parsePeak parses a single peak line (format: "mz\tintensity\t\"annotation\"").
// An annotation ending in ^z marks a fragment of charge z; other ion annotations mark charge 1.
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
		annotation := strings.Trim(fields[2], "\"")
		// Drop mass error and alternative annotations
		if idx := strings.IndexAny(annotation, "/,"); idx > 0 {
			annotation = annotation[:idx]
		}
		peak.Annotation = annotation
		if m := ionAnnotation.FindStringSubmatch(annotation); m != nil {
			peak.Charge = 1
			if m[1] != "" {
				peak.Charge, _ = strconv.Atoi(m[1])
			}
		}
	}

	return peak, nil
}
