// Package filter provides peak preprocessing applied to observed spectra before scoring
package filter

import (
	"fmt"
	"math"
	"sort"

	"github.com/ChrisMcGann/PepMatch/pkg/core"
)

// Config holds filtering configuration
type Config struct {
	TopN            int     // Keep only top N most intense peaks (0 = no limit)
	IntensityCutoff float64 // Keep only peaks at or above this % of base peak (0 = no cutoff)
	PrecursorWindow float64 // Remove peaks within this many Da of the precursor and its charge-reduced forms (0 = keep)
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.TopN < 0 {
		return &core.ValidationError{Field: "TopN", Message: "must not be negative"}
	}
	if c.IntensityCutoff < 0 || c.IntensityCutoff > 100 {
		return &core.ValidationError{Field: "IntensityCutoff", Message: fmt.Sprintf("%g is not a percentage", c.IntensityCutoff)}
	}
	if c.PrecursorWindow < 0 || math.IsNaN(c.PrecursorWindow) {
		return &core.ValidationError{Field: "PrecursorWindow", Message: "must not be negative"}
	}
	return nil
}

// Apply applies all configured filters to a spectrum
func (c *Config) Apply(spec *core.Spectrum) error {
	if err := c.Validate(); err != nil {
		return err
	}

	RemoveZeroIntensityPeaks(spec)

	if c.PrecursorWindow > 0 {
		c.filterPrecursor(spec)
	}

	// Apply intensity filters
	if c.IntensityCutoff > 0 {
		c.filterByIntensity(spec)
	}

	// Apply top-N filter
	if c.TopN > 0 {
		c.filterTopN(spec)
	}

	// Ensure peaks are sorted after all filtering
	spec.SortPeaks()

	return nil
}

// filterPrecursor removes the unfragmented precursor at every charge up to the precursor charge
func (c *Config) filterPrecursor(spec *core.Spectrum) {
	if spec.Charge <= 0 || spec.PrecursorMZ <= 0 {
		return
	}
	mass := spec.NeutralMass()
	targets := make([]float64, 0, spec.Charge)
	for z := 1; z <= spec.Charge; z++ {
		targets = append(targets, (mass+float64(z)*core.ProtonMass)/float64(z))
	}

	var filtered []core.Peak
	for _, peak := range spec.Peaks {
		near := false
		for _, mz := range targets {
			if math.Abs(peak.MZ-mz) <= c.PrecursorWindow {
				near = true
				break
			}
		}
		if !near {
			filtered = append(filtered, peak)
		}
	}
	spec.Peaks = filtered
}

// filterByIntensity removes peaks below the intensity cutoff percentage
func (c *Config) filterByIntensity(spec *core.Spectrum) {
	if len(spec.Peaks) == 0 {
		return
	}

	// Find maximum intensity
	maxIntensity := 0.0
	for _, peak := range spec.Peaks {
		if peak.Intensity > maxIntensity {
			maxIntensity = peak.Intensity
		}
	}

	threshold := (c.IntensityCutoff / 100.0) * maxIntensity

	var filtered []core.Peak
	for _, peak := range spec.Peaks {
		if peak.Intensity >= threshold {
			filtered = append(filtered, peak)
		}
	}

	spec.Peaks = filtered
}

// filterTopN keeps only the N most intense peaks. Equal intensities keep m/z order.
func (c *Config) filterTopN(spec *core.Spectrum) {
	if len(spec.Peaks) <= c.TopN {
		return
	}

	peaks := make([]core.Peak, len(spec.Peaks))
	copy(peaks, spec.Peaks)

	sort.SliceStable(peaks, func(i, j int) bool {
		return peaks[i].Intensity > peaks[j].Intensity
	})

	spec.Peaks = peaks[:c.TopN]
}

// RemoveZeroIntensityPeaks removes peaks with zero or negative intensity
func RemoveZeroIntensityPeaks(spec *core.Spectrum) {
	var filtered []core.Peak
	for _, peak := range spec.Peaks {
		if peak.Intensity > 0 {
			filtered = append(filtered, peak)
		}
	}
	spec.Peaks = filtered
}
