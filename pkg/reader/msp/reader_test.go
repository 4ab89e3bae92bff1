package msp

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ChrisMcGann/PepMatch/pkg/core"
)

const twoEntries = `Name: AASPK/2
MW: 553.23
Comment: Parent=277.6223 RetentionTime=12.5 Collision_energy=35
Num peaks: 3
72.0444	120	"b1/0.1ppm"
173.0921	950	"b2^1"
250.1400	40	"y2^2/-0.3ppm"

Name: scan=1044
PrecursorMZ: 612.3
Charge: 3+
Comment: Parent=999.0 Intensity=1.5e6
Num peaks: 2
200.1	10	"?"
300.2	20
`

func TestReader(t *testing.T) {
	r := NewReader(strings.NewReader(twoEntries))

	var got []*core.Spectrum
	for r.Next() {
		got = append(got, r.Spectrum())
	}
	if err := r.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("read %d spectra, want 2", len(got))
	}

	first := got[0]
	if first.Title != "AASPK/2" || first.Sequence != "AASPK" || first.Charge != 2 {
		t.Errorf("first header = %q %q %d", first.Title, first.Sequence, first.Charge)
	}
	if first.PrecursorMZ != 277.6223 {
		t.Errorf("PrecursorMZ = %v", first.PrecursorMZ)
	}
	if first.RetentionTime == nil || *first.RetentionTime != 12.5 {
		t.Errorf("RetentionTime = %v", first.RetentionTime)
	}
	wantPeaks := []core.Peak{
		{MZ: 72.0444, Intensity: 120, Annotation: "b1", Charge: 1},
		{MZ: 173.0921, Intensity: 950, Annotation: "b2^1", Charge: 1},
		{MZ: 250.14, Intensity: 40, Annotation: "y2^2", Charge: 2},
	}
	if diff := cmp.Diff(wantPeaks, first.Peaks); diff != "" {
		t.Errorf("peaks mismatch (-want +got):\n%s", diff)
	}
	if first.SourceFormat != "msp" {
		t.Errorf("SourceFormat = %q", first.SourceFormat)
	}

	second := got[1]
	if second.Title != "scan=1044" || second.Sequence != "" || second.Charge != 3 {
		t.Errorf("second header = %q %q %d", second.Title, second.Sequence, second.Charge)
	}
	if second.PrecursorMZ != 612.3 {
		t.Errorf("PrecursorMZ line should win over Parent=, got %v", second.PrecursorMZ)
	}
	if second.PrecursorIntensity != 1.5e6 {
		t.Errorf("PrecursorIntensity = %v", second.PrecursorIntensity)
	}
	wantPeaks = []core.Peak{
		{MZ: 200.1, Intensity: 10, Annotation: "?"},
		{MZ: 300.2, Intensity: 20},
	}
	if diff := cmp.Diff(wantPeaks, second.Peaks); diff != "" {
		t.Errorf("peaks mismatch (-want +got):\n%s", diff)
	}
}

func TestReaderErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"truncated peaks", "Name: A/1\nNum peaks: 3\n100 1\n"},
		{"missing num peaks", "Name: A/1\nPrecursorMZ: 100\n"},
		{"bad peak", "Name: A/1\nNum peaks: 1\n100\n"},
		{"bad intensity", "Name: A/1\nNum peaks: 1\n100 high\n"},
		{"bad charge", "Name: x\nCharge: two\n"},
		{"not a header", "Name: x\nthis is not a header\n"},
		{"peaks before name", "Num peaks: 1\n100 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(strings.NewReader(tt.input))
			for r.Next() {
			}
			if r.Err() == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestReaderEmpty(t *testing.T) {
	r := NewReader(strings.NewReader("\n\n"))
	if r.Next() {
		t.Error("Next() = true on empty input")
	}
	if r.Err() != nil {
		t.Errorf("Err() = %v", r.Err())
	}
}
