package scoring

import (
	"fmt"
	"strconv"
	"strings"
)

// Unit of a mass tolerance.
type Unit uint8

const (
	Dalton Unit = iota
	PPM
)

func (u Unit) String() string {
	if u == PPM {
		return "ppm"
	}
	return "Da"
}

// Tolerance is a symmetric mass window, absolute or relative.
type Tolerance struct {
	Value float64
	Unit  Unit
}

// ParseTolerance parses values such as "10ppm", "0.02 Da" or "0.5" (Daltons).
func ParseTolerance(s string) (Tolerance, error) {
	s = strings.TrimSpace(s)
	unit := Dalton
	lower := strings.ToLower(s)
	switch {
	case strings.HasSuffix(lower, "ppm"):
		unit = PPM
		s = s[:len(s)-3]
	case strings.HasSuffix(lower, "da"):
		s = s[:len(s)-2]
	case strings.HasSuffix(lower, "th"):
		s = s[:len(s)-2]
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return Tolerance{}, fmt.Errorf("invalid tolerance %q: %w", s, err)
	}
	if v < 0 {
		return Tolerance{}, fmt.Errorf("invalid tolerance %q: must not be negative", s)
	}
	return Tolerance{Value: v, Unit: unit}, nil
}

// Delta returns the half-width of the window around mz.
func (t Tolerance) Delta(mz float64) float64 {
	if t.Unit == PPM {
		return mz * t.Value * 1e-6
	}
	return t.Value
}

// Window returns the inclusive bounds around mz.
func (t Tolerance) Window(mz float64) (float64, float64) {
	d := t.Delta(mz)
	return mz - d, mz + d
}

func (t Tolerance) String() string {
	return strconv.FormatFloat(t.Value, 'g', -1, 64) + t.Unit.String()
}
