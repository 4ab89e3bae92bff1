package core

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Spectrum represents a single observed MS/MS spectrum with its precursor information.
type Spectrum struct {
	// Required fields
	Title       string  // Scan title or library name
	Charge      int     // Precursor charge state
	PrecursorMZ float64 // Precursor m/z
	Peaks       []Peak  // Fragment peaks

	// Optional metadata
	PrecursorIntensity float64
	RetentionTime      *float64 // seconds
	Sequence           string   // Annotated sequence, if the source carries one

	// Internal tracking
	SourceFile   string
	SourceFormat string // msp, mgf
}

// Peak represents a single m/z, intensity pair with optional metadata.
type Peak struct {
	MZ         float64
	Intensity  float64
	Annotation string // Ion annotation (e.g., "y3", "b2^2")
	Charge     int    // Inferred fragment charge; 0 when unknown
}

// PeakList is a read-only, m/z ordered view of peaks.
type PeakList []Peak

// Len returns the number of peaks.
func (p PeakList) Len() int { return len(p) }

// MZ returns the m/z of the i-th peak.
func (p PeakList) MZ(i int) float64 { return p[i].MZ }

// Charge returns the inferred charge of the i-th peak.
func (p PeakList) Charge(i int) int { return p[i].Charge }

// Validate checks that a spectrum meets all requirements for scoring.
func (s *Spectrum) Validate() error {
	var errs []string

	if s.Charge <= 0 {
		errs = append(errs, "charge must be positive")
	}
	if s.PrecursorMZ <= 0 || math.IsNaN(s.PrecursorMZ) || math.IsInf(s.PrecursorMZ, 0) {
		errs = append(errs, "precursor m/z must be positive")
	}
	if len(s.Peaks) == 0 {
		errs = append(errs, "at least one peak is required")
	}

	for i, peak := range s.Peaks {
		if math.IsNaN(peak.MZ) || math.IsInf(peak.MZ, 0) {
			errs = append(errs, fmt.Sprintf("peak %d has invalid m/z", i))
		}
		if math.IsNaN(peak.Intensity) || math.IsInf(peak.Intensity, 0) {
			errs = append(errs, fmt.Sprintf("peak %d has invalid intensity", i))
		}
		if peak.MZ <= 0 {
			errs = append(errs, fmt.Sprintf("peak %d m/z must be positive", i))
		}
		if peak.Intensity < 0 {
			errs = append(errs, fmt.Sprintf("peak %d intensity must be non-negative", i))
		}
		if peak.Charge < 0 {
			errs = append(errs, fmt.Sprintf("peak %d charge must be non-negative", i))
		}
	}

	if !s.ArePeaksSorted() {
		errs = append(errs, "peaks must be sorted by m/z")
	}

	if len(errs) > 0 {
		return &ValidationError{
			Field:   "Spectrum",
			Message: strings.Join(errs, "; "),
		}
	}

	return nil
}

// ArePeaksSorted checks if peaks are sorted by m/z in ascending order.
func (s *Spectrum) ArePeaksSorted() bool {
	for i := 1; i < len(s.Peaks); i++ {
		if s.Peaks[i].MZ < s.Peaks[i-1].MZ {
			return false
		}
	}
	return true
}

// SortPeaks sorts peaks by m/z in ascending order.
func (s *Spectrum) SortPeaks() {
	sort.SliceStable(s.Peaks, func(i, j int) bool {
		return s.Peaks[i].MZ < s.Peaks[j].MZ
	})
}

// NeutralMass returns the precursor's neutral mass.
func (s *Spectrum) NeutralMass() float64 {
	return NeutralMassFromMZ(s.PrecursorMZ, s.Charge)
}

// PrecursorPeak returns the precursor as a peak.
func (s *Spectrum) PrecursorPeak() Peak {
	return Peak{
		MZ:        s.PrecursorMZ,
		Intensity: s.PrecursorIntensity,
		Charge:    s.Charge,
	}
}

// PeakList returns the peaks as a PeakList.
func (s *Spectrum) PeakList() PeakList {
	return PeakList(s.Peaks)
}

// Name returns the spectrum name in format "Title/Charge"
func (s *Spectrum) Name() string {
	return fmt.Sprintf("%s/%d", s.Title, s.Charge)
}
