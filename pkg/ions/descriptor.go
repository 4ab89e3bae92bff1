// Package ions generates theoretical fragment-ion m/z values for modified peptides.
package ions

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/PepMatch/pkg/core"
)

// IonKind tags how a descriptor's ions are generated.
type IonKind uint8

const (
	Standard   IonKind = iota // backbone cleavage ions (a, b, c, x, y, z)
	Loss                      // backbone ions that lost neutral molecules
	Satellite                 // side-chain ions (d, v, w)
	Internal                  // ions from two backbone cleavages
	IntactLoss                // precursor that lost one neutral molecule
)

var kindNames = [...]string{"standard", "loss", "satellite", "internal", "intact-loss"}

func (k IonKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("IonKind(%d)", k)
}

// Direction is the terminus an ion family is anchored at.
type Direction uint8

const (
	NTerminal Direction = iota
	CTerminal
)

// Requirement is an applicability predicate over fragment composition.
type Requirement uint8

const (
	RequireNone  Requirement = iota
	RequireBasic             // the fragment holds at least one H, K or R
)

// SideChain selects the satellite ion family.
type SideChain uint8

const (
	SideChainNone SideChain = iota
	SideChainD              // a-ion minus the gamma substituent of its last residue
	SideChainV              // y-ion minus the side chain of its first residue
	SideChainW              // z-ion minus the gamma substituent of its first residue
)

// Descriptor configures one ion type.
type Descriptor struct {
	Label     string
	Kind      IonKind
	Direction Direction
	// Offset is subtracted from the fragment baseline (the b-ion or y-ion mass).
	Offset float64

	StartGap int // residues excluded at the start of the generation direction
	EndGap   int // residues excluded at the end

	SingleChargeOnly   bool
	Requirement        Requirement
	BlockBeforeProline bool

	// Loss ions
	Losses    []core.LossKind
	MaxLosses int
	LimitAll  bool // bound each loss only by MaxLosses, not by eligible residues

	SideChain SideChain     // Satellite
	IntactOf  core.LossKind // IntactLoss
	MaxLength int           // Internal; 0 means no limit
}

// Standard offsets relative to the b-ion and y-ion baselines.
const (
	OffsetA     = core.MassCO
	OffsetC     = -core.MassNH3
	OffsetX     = -(core.MassCO - 2*core.MassH)
	OffsetZ     = 16.018724
	OffsetZPlus = 15.010899
)

// DefaultDescriptors returns every ion type known to the generator.
func DefaultDescriptors() []Descriptor {
	losses := []core.LossKind{core.LossH2O, core.LossNH3, core.LossH3PO4, core.LossSOCH4}
	return []Descriptor{
		{Label: "a", Kind: Standard, Direction: NTerminal, Offset: OffsetA},
		{Label: "b", Kind: Standard, Direction: NTerminal},
		{Label: "c", Kind: Standard, Direction: NTerminal, Offset: OffsetC, BlockBeforeProline: true},
		{Label: "x", Kind: Standard, Direction: CTerminal, Offset: OffsetX},
		{Label: "y", Kind: Standard, Direction: CTerminal},
		{Label: "z", Kind: Standard, Direction: CTerminal, Offset: OffsetZ, BlockBeforeProline: true},
		{Label: "z+1", Kind: Standard, Direction: CTerminal, Offset: OffsetZPlus, BlockBeforeProline: true},
		{Label: "a-loss", Kind: Loss, Direction: NTerminal, Offset: OffsetA, Losses: losses[:2], MaxLosses: 1},
		{Label: "b-loss", Kind: Loss, Direction: NTerminal, Losses: losses, MaxLosses: 2},
		{Label: "y-loss", Kind: Loss, Direction: CTerminal, Losses: losses, MaxLosses: 2},
		{Label: "internal-b", Kind: Internal, SingleChargeOnly: true, MaxLength: 6},
		{Label: "internal-a", Kind: Internal, Offset: OffsetA, SingleChargeOnly: true, MaxLength: 6},
		{Label: "d", Kind: Satellite, Direction: NTerminal, Offset: OffsetA, SideChain: SideChainD, SingleChargeOnly: true},
		{Label: "v", Kind: Satellite, Direction: CTerminal, SideChain: SideChainV, SingleChargeOnly: true},
		{Label: "w", Kind: Satellite, Direction: CTerminal, Offset: OffsetZ, SideChain: SideChainW, SingleChargeOnly: true, BlockBeforeProline: true},
		{Label: "M-H2O", Kind: IntactLoss, IntactOf: core.LossH2O},
		{Label: "M-NH3", Kind: IntactLoss, IntactOf: core.LossNH3},
		{Label: "M-H3PO4", Kind: IntactLoss, IntactOf: core.LossH3PO4},
		{Label: "M-SOCH4", Kind: IntactLoss, IntactOf: core.LossSOCH4},
	}
}

// Lookup returns the default descriptor with the given label.
func Lookup(label string) (Descriptor, bool) {
	for _, d := range DefaultDescriptors() {
		if d.Label == label {
			return d, true
		}
	}
	return Descriptor{}, false
}

// IonConfigError reports a descriptor the mass table cannot support.
type IonConfigError struct {
	Label  string
	Reason string
}

func (e *IonConfigError) Error() string {
	return fmt.Sprintf("ion type %q: %s", e.Label, e.Reason)
}

func (e *IonConfigError) Unwrap() error { return core.ErrUnsupportedIonConfiguration }

// lossCombo is one multiset of losses for a Loss descriptor.
type lossCombo struct {
	counts []int // parallel to Descriptor.Losses
	mass   float64
	suffix string
}

type compiled struct {
	Descriptor
	combos     []lossCombo
	intactLoss float64
}

// IonSet is a validated, immutable list of descriptors bound to a mass table.
type IonSet struct {
	masses *core.MassTable
	descs  []compiled
}

// Compile validates descs against masses.
func Compile(masses *core.MassTable, descs []Descriptor) (*IonSet, error) {
	if masses.NTermWeight() <= 0 || masses.CTermWeight() <= 0 || masses.CationMass() <= 0 {
		return nil, &IonConfigError{Label: "*", Reason: "mass table terminal weights must be positive"}
	}
	set := &IonSet{masses: masses, descs: make([]compiled, 0, len(descs))}
	seen := make(map[string]bool)
	for _, d := range descs {
		c, err := compile(masses, d)
		if err != nil {
			return nil, err
		}
		if seen[d.Label] {
			return nil, &IonConfigError{Label: d.Label, Reason: "duplicate label"}
		}
		seen[d.Label] = true
		set.descs = append(set.descs, c)
	}
	return set, nil
}

func compile(masses *core.MassTable, d Descriptor) (compiled, error) {
	bad := func(format string, args ...any) (compiled, error) {
		return compiled{}, &IonConfigError{Label: d.Label, Reason: fmt.Sprintf(format, args...)}
	}
	if d.Label == "" {
		return bad("empty label")
	}
	if d.Direction > CTerminal {
		return bad("unknown direction %d", d.Direction)
	}
	if d.StartGap < 0 || d.EndGap < 0 {
		return bad("negative gap")
	}
	c := compiled{Descriptor: d}

	switch d.Kind {
	case Standard, Internal:
	case Loss:
		if len(d.Losses) == 0 || d.MaxLosses < 1 {
			return bad("loss ions need at least one loss and MaxLosses >= 1")
		}
		for _, k := range d.Losses {
			if _, ok := masses.Loss(k); !ok {
				return bad("loss %v has no mass", k)
			}
		}
		c.combos = lossCombos(masses, d.Losses, d.MaxLosses)
	case Satellite:
		if d.SideChain == SideChainNone || d.SideChain > SideChainW {
			return bad("satellite ions need a side-chain family")
		}
		if (d.SideChain == SideChainD) != (d.Direction == NTerminal) {
			return bad("side-chain family does not match direction")
		}
		if _, ok := masses.Residue('G'); !ok && d.SideChain == SideChainV {
			return bad("v ions need a glycine mass")
		}
	case IntactLoss:
		m, ok := masses.Loss(d.IntactOf)
		if !ok {
			return bad("loss %v has no mass", d.IntactOf)
		}
		c.intactLoss = m
	default:
		return bad("unknown kind %v", d.Kind)
	}
	return c, nil
}

// lossCombos lists every count vector over kinds whose total is 1..maxLosses.
func lossCombos(masses *core.MassTable, kinds []core.LossKind, maxLosses int) []lossCombo {
	var out []lossCombo
	counts := make([]int, len(kinds))
	var rec func(i, total int)
	rec = func(i, total int) {
		if i == len(kinds) {
			if total == 0 {
				return
			}
			lc := lossCombo{counts: append([]int(nil), counts...)}
			var b strings.Builder
			for j, n := range counts {
				if n == 0 {
					continue
				}
				m, _ := masses.Loss(kinds[j])
				lc.mass += float64(n) * m
				b.WriteByte('-')
				if n > 1 {
					b.WriteString(strconv.Itoa(n))
				}
				b.WriteString(kinds[j].String())
			}
			lc.suffix = b.String()
			out = append(out, lc)
			return
		}
		for n := 0; total+n <= maxLosses; n++ {
			counts[i] = n
			rec(i+1, total+n)
		}
		counts[i] = 0
	}
	rec(0, 0)
	return out
}

// Len returns the number of descriptors.
func (s *IonSet) Len() int { return len(s.descs) }

// Descriptor returns the i-th descriptor.
func (s *IonSet) Descriptor(i int) Descriptor { return s.descs[i].Descriptor }

// Index returns the position of the descriptor labelled label.
func (s *IonSet) Index(label string) (int, bool) {
	for i := range s.descs {
		if s.descs[i].Label == label {
			return i, true
		}
	}
	return 0, false
}

// Masses returns the mass table the set was compiled against.
func (s *IonSet) Masses() *core.MassTable { return s.masses }

// ErrUnknownIonType is returned when a label names no known descriptor.
var ErrUnknownIonType = errors.New("unknown ion type")

// Select returns the default descriptors named by labels, in the order given.
func Select(labels ...string) ([]Descriptor, error) {
	out := make([]Descriptor, 0, len(labels))
	for _, l := range labels {
		d, ok := Lookup(l)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownIonType, l)
		}
		out = append(out, d)
	}
	return out, nil
}
