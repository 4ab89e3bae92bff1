package core

import (
	"math"
	"testing"
)

func TestCalculatePeptideMass(t *testing.T) {
	tests := []struct {
		name          string
		sequence      string
		charge        int
		modifications []Modification
		wantMZ        float64
		tolerance     float64
	}{
		{
			name:          "simple peptide charge 1",
			sequence:      "AAA",
			charge:        1,
			modifications: nil,
			wantMZ:        232.129, // Approximate
			tolerance:     0.1,
		},
		{
			name:          "simple peptide charge 2",
			sequence:      "AAA",
			charge:        2,
			modifications: nil,
			wantMZ:        116.569, // Approximate
			tolerance:     0.1,
		},
		{
			name:     "peptide with modification",
			sequence: "PEPTIDE",
			charge:   2,
			modifications: []Modification{
				{Mass: 57.021464, Position: 0},
			},
			wantMZ:    429.2, // Approximate
			tolerance: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculatePeptideMass(tt.sequence, tt.charge, tt.modifications)
			if math.Abs(got-tt.wantMZ) > tt.tolerance {
				t.Errorf("CalculatePeptideMass() = %.3f, want %.3f (within %.3f)", got, tt.wantMZ, tt.tolerance)
			}
		})
	}
}

func TestCalculateNeutralMass(t *testing.T) {
	tests := []struct {
		name          string
		sequence      string
		modifications []Modification
		wantMass      float64
		tolerance     float64
	}{
		{
			name:          "simple tripeptide",
			sequence:      "AAA",
			modifications: nil,
			wantMass:      231.121,
			tolerance:     0.1,
		},
		{
			name:     "with modification",
			sequence: "AAA",
			modifications: []Modification{
				{Mass: 57.021464, Position: 0},
			},
			wantMass:  288.143,
			tolerance: 0.1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateNeutralMass(tt.sequence, tt.modifications)
			if math.Abs(got-tt.wantMass) > tt.tolerance {
				t.Errorf("CalculateNeutralMass() = %.3f, want %.3f (within %.3f)", got, tt.wantMass, tt.tolerance)
			}
		})
	}
}

func TestMassTableResidues(t *testing.T) {
	mt := DefaultMassTable()

	// Reference monoisotopic residue masses
	tests := []struct {
		aa   byte
		want float64
	}{
		{'G', 57.0214637},
		{'A', 71.0371138},
		{'S', 87.0320284},
		{'P', 97.0527638},
		{'C', 103.0091848},
		{'K', 128.0949630},
		{'Q', 128.0585775},
		{'R', 156.1011110},
		{'W', 186.0793129},
		{'U', 150.9536355},
	}

	for _, tt := range tests {
		t.Run(string(tt.aa), func(t *testing.T) {
			got, ok := mt.Residue(tt.aa)
			if !ok {
				t.Fatalf("Residue(%c) not found", tt.aa)
			}
			if math.Abs(got-tt.want) > 1e-5 {
				t.Errorf("Residue(%c) = %.7f, want %.7f", tt.aa, got, tt.want)
			}
		})
	}

	if _, ok := mt.Residue('B'); ok {
		t.Error("Residue('B') should not resolve")
	}
	if _, ok := mt.Residue(200); ok {
		t.Error("Residue(200) should not resolve")
	}
}

func TestMassTableLosses(t *testing.T) {
	mt := DefaultMassTable()

	tests := []struct {
		kind LossKind
		want float64
	}{
		{LossH2O, 18.010565},
		{LossNH3, 17.026549},
		{LossH3PO4, 97.976896},
		{LossSOCH4, 63.998285},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			got, ok := mt.Loss(tt.kind)
			if !ok {
				t.Fatalf("Loss(%v) not resolvable", tt.kind)
			}
			if math.Abs(got-tt.want) > 1e-5 {
				t.Errorf("Loss(%v) = %.6f, want %.6f", tt.kind, got, tt.want)
			}
		})
	}

	if _, ok := mt.Loss(LossNone); ok {
		t.Error("LossNone should not resolve")
	}
}

func TestParseLossKind(t *testing.T) {
	for _, k := range AllLossKinds() {
		got, err := ParseLossKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseLossKind(%q) = %v, %v", k.String(), got, err)
		}
	}
	if _, err := ParseLossKind("CO2"); err == nil {
		t.Error("expected error for unknown loss")
	}
}

func TestNewMassTableOverrides(t *testing.T) {
	mt, err := NewMassTable(MassTableOptions{
		NTermWeight: MassH + 42.010565,
		Residues:    map[byte]float64{'X': 100.0},
	})
	if err != nil {
		t.Fatalf("NewMassTable() error = %v", err)
	}
	if got := mt.NTermWeight(); math.Abs(got-(MassH+42.010565)) > 1e-9 {
		t.Errorf("NTermWeight() = %f", got)
	}
	if got := mt.CTermWeight(); math.Abs(got-MassOH) > 1e-9 {
		t.Errorf("CTermWeight() = %f, want default OH", got)
	}
	if m, ok := mt.Residue('X'); !ok || m != 100.0 {
		t.Errorf("Residue('X') = %f, %v", m, ok)
	}

	if _, err := NewMassTable(MassTableOptions{Residues: map[byte]float64{'Z': -1}}); err == nil {
		t.Error("expected error for negative residue mass")
	}
}

func TestPeptideMass(t *testing.T) {
	mt := DefaultMassTable()

	got, err := mt.PeptideMass("PEPTIDE")
	if err != nil {
		t.Fatalf("PeptideMass() error = %v", err)
	}
	want := CalculateNeutralMass("PEPTIDE", nil)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("PeptideMass() = %.6f, CalculateNeutralMass() = %.6f", got, want)
	}

	if _, err := mt.PeptideMass("PEPXIDE"); err == nil {
		t.Error("expected error for unknown residue")
	}
}

func TestNeutralMassFromMZ(t *testing.T) {
	mass := CalculateNeutralMass("PEPTIDE", nil)
	mz := CalculatePeptideMass("PEPTIDE", 2, nil)
	if got := NeutralMassFromMZ(mz, 2); math.Abs(got-mass) > 1e-9 {
		t.Errorf("NeutralMassFromMZ() = %.6f, want %.6f", got, mass)
	}
}

func TestRoundFloat(t *testing.T) {
	tests := []struct {
		name      string
		val       float64
		precision int
		want      float64
	}{
		{"round to 2 decimals", 3.14159, 2, 3.14},
		{"round to 4 decimals", 3.14159, 4, 3.1416},
		{"round to 0 decimals", 3.6, 0, 4.0},
		{"round negative", -3.14159, 2, -3.14},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundFloat(tt.val, tt.precision)
			if got != tt.want {
				t.Errorf("RoundFloat() = %v, want %v", got, tt.want)
			}
		})
	}
}
