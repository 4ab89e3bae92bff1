// Package core provides chemistry calculations, the modification catalog and the peptide and
// spectrum models shared by the PepMatch search core.
package core

import (
	"fmt"
	"math"
)

// Atomic masses (monoisotopic)
const (
	MassH = 1.0078250321
	MassC = 12.0000000000
	MassN = 14.0030740052
	MassO = 15.9949146221
	MassS = 31.9720706900
	MassP = 30.9737615100

	// Proton mass for charge calculations
	ProtonMass = 1.00727646688
	// ElectronMass is removed once per positive charge carried by a fragment
	ElectronMass = 0.000548579909
)

// Named neutral molecules
const (
	MassH2O   = 2*MassH + MassO
	MassNH3   = MassN + 3*MassH
	MassCO    = MassC + MassO
	MassH3PO4 = 3*MassH + MassP + 4*MassO
	MassSOCH4 = MassS + MassO + MassC + 4*MassH
	MassOH    = MassO + MassH
)

// AminoAcidComposition stores elemental composition
type AminoAcidComposition struct {
	C, H, N, O, S int
}

// Mass returns the monoisotopic mass of the composition.
func (c AminoAcidComposition) Mass() float64 {
	return float64(c.C)*MassC +
		float64(c.H)*MassH +
		float64(c.N)*MassN +
		float64(c.O)*MassO +
		float64(c.S)*MassS
}

// AminoAcidMasses maps amino acid one-letter codes to elemental composition
var AminoAcidMasses = map[rune]AminoAcidComposition{
	'A': {C: 3, H: 5, N: 1, O: 1, S: 0},
	'R': {C: 6, H: 12, N: 4, O: 1, S: 0},
	'N': {C: 4, H: 6, N: 2, O: 2, S: 0},
	'D': {C: 4, H: 5, N: 1, O: 3, S: 0},
	'C': {C: 3, H: 5, N: 1, O: 1, S: 1},
	'E': {C: 5, H: 7, N: 1, O: 3, S: 0},
	'Q': {C: 5, H: 8, N: 2, O: 2, S: 0},
	'G': {C: 2, H: 3, N: 1, O: 1, S: 0},
	'H': {C: 6, H: 7, N: 3, O: 1, S: 0},
	'I': {C: 6, H: 11, N: 1, O: 1, S: 0},
	'L': {C: 6, H: 11, N: 1, O: 1, S: 0},
	'K': {C: 6, H: 12, N: 2, O: 1, S: 0},
	'M': {C: 5, H: 9, N: 1, O: 1, S: 1},
	'F': {C: 9, H: 9, N: 1, O: 1, S: 0},
	'P': {C: 5, H: 7, N: 1, O: 1, S: 0},
	'S': {C: 3, H: 5, N: 1, O: 2, S: 0},
	'T': {C: 4, H: 7, N: 1, O: 2, S: 0},
	'W': {C: 11, H: 10, N: 2, O: 1, S: 0},
	'Y': {C: 9, H: 9, N: 1, O: 2, S: 0},
	'V': {C: 5, H: 9, N: 1, O: 1, S: 0},
}

// Residues without a CHNOS composition
var extraResidueMasses = map[byte]float64{
	'U': 150.9536355, // Selenocysteine
	'O': 237.1477269, // Pyrrolysine
}

// LossKind identifies a small neutral molecule a fragment can lose.
type LossKind uint8

const (
	LossNone LossKind = iota
	LossH2O
	LossNH3
	LossH3PO4
	LossSOCH4
	numLossKinds
)

var lossNames = [...]string{"", "H2O", "NH3", "H3PO4", "SOCH4"}

func (k LossKind) String() string {
	if int(k) < len(lossNames) {
		return lossNames[k]
	}
	return fmt.Sprintf("LossKind(%d)", k)
}

// ParseLossKind converts a loss name such as "H2O" to its LossKind. The empty string is LossNone.
func ParseLossKind(s string) (LossKind, error) {
	for i, name := range lossNames {
		if name == s {
			return LossKind(i), nil
		}
	}
	return LossNone, fmt.Errorf("unknown neutral loss %q", s)
}

// AllLossKinds lists every loss except LossNone.
func AllLossKinds() []LossKind {
	return []LossKind{LossH2O, LossNH3, LossH3PO4, LossSOCH4}
}

// MassTable is an immutable lookup of residue masses, terminus weights and neutral-loss masses.
// Build one with DefaultMassTable or NewMassTable and share it between searches.
type MassTable struct {
	residues    [128]float64
	losses      [numLossKinds]float64
	nTermWeight float64
	cTermWeight float64
	cationMass  float64
}

// MassTableOptions overrides the defaults used by NewMassTable. Zero fields keep the default.
type MassTableOptions struct {
	NTermWeight float64              // default H
	CTermWeight float64              // default OH
	CationMass  float64              // default proton
	Residues    map[byte]float64     // extra or replacement residue masses
	Losses      map[LossKind]float64 // replacement loss masses
}

// DefaultMassTable returns the standard monoisotopic table with H/OH termini and a proton cation.
func DefaultMassTable() *MassTable {
	mt, _ := NewMassTable(MassTableOptions{})
	return mt
}

// NewMassTable builds a MassTable, applying any overrides in opts.
func NewMassTable(opts MassTableOptions) (*MassTable, error) {
	mt := &MassTable{
		nTermWeight: MassH,
		cTermWeight: MassOH,
		cationMass:  ProtonMass,
	}
	for aa, comp := range AminoAcidMasses {
		mt.residues[aa] = comp.Mass()
	}
	for aa, m := range extraResidueMasses {
		mt.residues[aa] = m
	}
	mt.losses[LossH2O] = MassH2O
	mt.losses[LossNH3] = MassNH3
	mt.losses[LossH3PO4] = MassH3PO4
	mt.losses[LossSOCH4] = MassSOCH4

	if opts.NTermWeight != 0 {
		mt.nTermWeight = opts.NTermWeight
	}
	if opts.CTermWeight != 0 {
		mt.cTermWeight = opts.CTermWeight
	}
	if opts.CationMass != 0 {
		mt.cationMass = opts.CationMass
	}
	for aa, m := range opts.Residues {
		if aa >= 128 || m <= 0 {
			return nil, fmt.Errorf("invalid residue mass override %q=%f", aa, m)
		}
		mt.residues[aa] = m
	}
	for k, m := range opts.Losses {
		if k == LossNone || k >= numLossKinds {
			return nil, fmt.Errorf("invalid loss override %v", k)
		}
		mt.losses[k] = m
	}
	return mt, nil
}

// Residue returns the monoisotopic residue mass of aa.
func (mt *MassTable) Residue(aa byte) (float64, bool) {
	if aa >= 128 || mt.residues[aa] == 0 {
		return 0, false
	}
	return mt.residues[aa], true
}

// Loss returns the mass of a neutral loss. LossNone and unknown kinds are not resolvable.
func (mt *MassTable) Loss(k LossKind) (float64, bool) {
	if k == LossNone || k >= numLossKinds || mt.losses[k] == 0 {
		return 0, false
	}
	return mt.losses[k], true
}

// NTermWeight is the weight of the unmodified peptide N-terminus.
func (mt *MassTable) NTermWeight() float64 { return mt.nTermWeight }

// CTermWeight is the weight of the unmodified peptide C-terminus.
func (mt *MassTable) CTermWeight() float64 { return mt.cTermWeight }

// CationMass is the mass of the charge carrier added per extra charge.
func (mt *MassTable) CationMass() float64 { return mt.cationMass }

// ResidueSum returns the summed residue masses of sequence.
func (mt *MassTable) ResidueSum(sequence string) (float64, error) {
	sum := 0.0
	for i := 0; i < len(sequence); i++ {
		m, ok := mt.Residue(sequence[i])
		if !ok {
			return 0, fmt.Errorf("unknown residue %q at position %d", sequence[i], i)
		}
		sum += m
	}
	return sum, nil
}

// PeptideMass returns the neutral monoisotopic mass of an unmodified peptide.
func (mt *MassTable) PeptideMass(sequence string) (float64, error) {
	sum, err := mt.ResidueSum(sequence)
	if err != nil {
		return 0, err
	}
	return sum + mt.nTermWeight + mt.cTermWeight, nil
}

// CalculatePeptideMass computes monoisotopic mass of a peptide sequence
// including modifications, then returns the m/z for a given charge state.
func CalculatePeptideMass(sequence string, charge int, modifications []Modification) float64 {
	mass := CalculateNeutralMass(sequence, modifications)

	// Calculate m/z: (mass + charge * proton) / charge
	return (mass + float64(charge)*ProtonMass) / float64(charge)
}

// CalculateNeutralMass computes the neutral monoisotopic mass of a peptide
func CalculateNeutralMass(sequence string, modifications []Modification) float64 {
	comp := AminoAcidComposition{C: 0, H: 2, N: 0, O: 1, S: 0} // Add water
	extra := 0.0

	for _, aa := range sequence {
		if aaComp, ok := AminoAcidMasses[aa]; ok {
			comp.C += aaComp.C
			comp.H += aaComp.H
			comp.N += aaComp.N
			comp.O += aaComp.O
			comp.S += aaComp.S
		} else if aa < 128 {
			extra += extraResidueMasses[byte(aa)]
		}
	}

	mass := comp.Mass() + extra

	// Add modification masses
	for _, mod := range modifications {
		mass += mod.Mass
	}

	return mass
}

// NeutralMassFromMZ converts a precursor m/z and charge to a neutral mass.
func NeutralMassFromMZ(mz float64, charge int) float64 {
	return (mz - ProtonMass) * float64(charge)
}

// IsBasic reports whether aa carries a mobile charge (H, K, R).
func IsBasic(aa byte) bool {
	return aa == 'H' || aa == 'K' || aa == 'R'
}

// RoundFloat rounds a float to n decimal places
func RoundFloat(val float64, precision int) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}
