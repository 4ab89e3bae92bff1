package core

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ShiftEpsilon is the tolerance for comparing a recorded mass shift with its rule sum.
const ShiftEpsilon = 1e-6

// SlotKind tags where a modification sits on a peptide.
type SlotKind uint8

const (
	SlotNTerm SlotKind = iota
	SlotPosition
	SlotCTerm
	SlotNeutralLoss
)

// ModSlot is a modifiable location: a residue position or one of the three terminal slots.
type ModSlot struct {
	Kind SlotKind
	Pos  int // residue index for SlotPosition, 0 otherwise
}

// Terminal slots
var (
	NTermSlot       = ModSlot{Kind: SlotNTerm}
	CTermSlot       = ModSlot{Kind: SlotCTerm}
	NeutralLossSlot = ModSlot{Kind: SlotNeutralLoss}
)

// Position returns the slot of residue i.
func Position(i int) ModSlot {
	return ModSlot{Kind: SlotPosition, Pos: i}
}

// Less orders slots N-term, positions ascending, C-term, neutral loss.
func (s ModSlot) Less(o ModSlot) bool {
	if s.Kind != o.Kind {
		return s.Kind < o.Kind
	}
	return s.Pos < o.Pos
}

func (s ModSlot) String() string {
	switch s.Kind {
	case SlotNTerm:
		return "N-term"
	case SlotCTerm:
		return "C-term"
	case SlotNeutralLoss:
		return "neutral-loss"
	}
	return strconv.Itoa(s.Pos + 1)
}

// AppliedMod pairs a slot with the catalog rule applied there.
type AppliedMod struct {
	Slot ModSlot
	Rule *ModificationRule
}

// ModifiedPeptide is a base sequence with modifications applied. It is immutable.
type ModifiedPeptide struct {
	sequence string
	mods     []AppliedMod // sorted by slot
	shift    float64
}

// NewModifiedPeptide builds a peptide from an unordered modification list and computes its shift.
func NewModifiedPeptide(sequence string, mods []AppliedMod) (*ModifiedPeptide, error) {
	sorted := make([]AppliedMod, len(mods))
	copy(sorted, mods)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Slot.Less(sorted[j].Slot) })

	shift := 0.0
	for i, m := range sorted {
		if m.Rule == nil {
			return nil, &ValidationError{Field: "ModifiedPeptide", Message: "nil rule at " + m.Slot.String()}
		}
		if i > 0 && sorted[i-1].Slot == m.Slot {
			return nil, &ValidationError{Field: "ModifiedPeptide", Message: "slot " + m.Slot.String() + " modified twice"}
		}
		if err := checkSlot(sequence, m); err != nil {
			return nil, err
		}
		shift += m.Rule.Delta
	}
	return &ModifiedPeptide{sequence: sequence, mods: sorted, shift: shift}, nil
}

func checkSlot(sequence string, m AppliedMod) error {
	bad := func(msg string) error {
		return &ValidationError{Field: "ModifiedPeptide", Message: fmt.Sprintf("%s at %s: %s", m.Rule, m.Slot, msg)}
	}
	switch m.Slot.Kind {
	case SlotPosition:
		if m.Slot.Pos < 0 || m.Slot.Pos >= len(sequence) {
			return bad("position out of range")
		}
		if m.Rule.Site != SiteResidue {
			return bad("terminal rule on a residue")
		}
		if m.Rule.Residue != sequence[m.Slot.Pos] {
			return bad("residue mismatch")
		}
	case SlotNTerm:
		if m.Rule.Site != SiteNTerm {
			return bad("rule site mismatch")
		}
	case SlotCTerm:
		if m.Rule.Site != SiteCTerm {
			return bad("rule site mismatch")
		}
	case SlotNeutralLoss:
		if m.Rule.Site != SiteNeutralLoss {
			return bad("rule site mismatch")
		}
	default:
		return bad("unknown slot")
	}
	return nil
}

// AssemblePeptide wraps modifications already sorted by slot together with a precomputed shift.
// It performs no checks; call Validate before trusting the result.
func AssemblePeptide(sequence string, mods []AppliedMod, shift float64) *ModifiedPeptide {
	return &ModifiedPeptide{sequence: sequence, mods: mods, shift: shift}
}

// Unmodified returns sequence with no modifications.
func Unmodified(sequence string) *ModifiedPeptide {
	return &ModifiedPeptide{sequence: sequence}
}

// Sequence returns the base sequence.
func (p *ModifiedPeptide) Sequence() string { return p.sequence }

// Len returns the number of residues.
func (p *ModifiedPeptide) Len() int { return len(p.sequence) }

// Shift returns the cumulative mass shift of all applied rules.
func (p *ModifiedPeptide) Shift() float64 { return p.shift }

// NumMods returns the number of applied modifications.
func (p *ModifiedPeptide) NumMods() int { return len(p.mods) }

// Mod returns the i-th applied modification in slot order.
func (p *ModifiedPeptide) Mod(i int) AppliedMod { return p.mods[i] }

// Mods returns a copy of the applied modifications in slot order.
func (p *ModifiedPeptide) Mods() []AppliedMod {
	out := make([]AppliedMod, len(p.mods))
	copy(out, p.mods)
	return out
}

// At returns the rule applied at residue i, or nil.
func (p *ModifiedPeptide) At(i int) *ModificationRule {
	return p.find(Position(i))
}

// NTerm returns the N-terminal rule, or nil.
func (p *ModifiedPeptide) NTerm() *ModificationRule { return p.find(NTermSlot) }

// CTerm returns the C-terminal rule, or nil.
func (p *ModifiedPeptide) CTerm() *ModificationRule { return p.find(CTermSlot) }

// NeutralLoss returns the neutral-loss rule, or nil.
func (p *ModifiedPeptide) NeutralLoss() *ModificationRule { return p.find(NeutralLossSlot) }

func (p *ModifiedPeptide) find(slot ModSlot) *ModificationRule {
	i := sort.Search(len(p.mods), func(i int) bool { return !p.mods[i].Slot.Less(slot) })
	if i < len(p.mods) && p.mods[i].Slot == slot {
		return p.mods[i].Rule
	}
	return nil
}

// ResidueDeltas writes the per-residue modification deltas into dst, growing it as needed.
func (p *ModifiedPeptide) ResidueDeltas(dst []float64) []float64 {
	if cap(dst) < len(p.sequence) {
		dst = make([]float64, len(p.sequence))
	}
	dst = dst[:len(p.sequence)]
	clear(dst)
	for _, m := range p.mods {
		if m.Slot.Kind == SlotPosition {
			dst[m.Slot.Pos] += m.Rule.Delta
		}
	}
	return dst
}

// Validate checks the structural invariants: bounded slot count, unique slots in range and a
// shift equal to the rule sum.
func (p *ModifiedPeptide) Validate() error {
	if len(p.mods) > len(p.sequence)+3 {
		return &ValidationError{
			Field:   "ModifiedPeptide",
			Message: fmt.Sprintf("%d modifications on %d residues", len(p.mods), len(p.sequence)),
		}
	}
	sum := 0.0
	for i, m := range p.mods {
		if m.Rule == nil {
			return &ValidationError{Field: "ModifiedPeptide", Message: "nil rule"}
		}
		if i > 0 && !p.mods[i-1].Slot.Less(m.Slot) {
			return &ValidationError{Field: "ModifiedPeptide", Message: "slots not strictly ordered at " + m.Slot.String()}
		}
		if err := checkSlot(p.sequence, m); err != nil {
			return err
		}
		sum += m.Rule.Delta
	}
	if math.Abs(sum-p.shift) > ShiftEpsilon {
		return fmt.Errorf("%s: recorded %.6f, rules sum to %.6f: %w", p.sequence, p.shift, sum, ErrInconsistentMassShift)
	}
	return nil
}

// IndexKey returns a normalised key of the modification placements. Two peptides with the same
// key carry the same mass deltas on the same slots.
func (p *ModifiedPeptide) IndexKey() string {
	var b strings.Builder
	b.WriteString(p.sequence)
	for _, m := range p.mods {
		fmt.Fprintf(&b, "|%d.%d:%.4f", m.Slot.Kind, m.Slot.Pos, m.Rule.Delta)
	}
	return b.String()
}

// ModString renders the modifications as "Name@S4;Name@N-term".
func (p *ModifiedPeptide) ModString() string {
	if len(p.mods) == 0 {
		return ""
	}
	parts := make([]string, 0, len(p.mods))
	for _, m := range p.mods {
		if m.Slot.Kind == SlotPosition {
			parts = append(parts, fmt.Sprintf("%s@%c%d", m.Rule.Name, p.sequence[m.Slot.Pos], m.Slot.Pos+1))
		} else {
			parts = append(parts, m.Rule.Name+"@"+m.Slot.String())
		}
	}
	return strings.Join(parts, ";")
}

func (p *ModifiedPeptide) String() string {
	if len(p.mods) == 0 {
		return p.sequence
	}
	return p.sequence + " [" + p.ModString() + "]"
}
