package ions

import (
	"fmt"
	"strings"

	"github.com/ChrisMcGann/PepMatch/pkg/core"
)

// MOverZ converts a neutral fragment mass to m/z at charge z.
func MOverZ(m float64, z int, cationMass float64) float64 {
	return (m + float64(z-1)*cationMass - core.ElectronMass) / float64(z)
}

// Params are the per-spectrum generation settings.
type Params struct {
	MaxCharge       int // highest fragment charge reported; 0 for no cap
	PrecursorCharge int
	ChargeReduced   bool // cap fragment charges at PrecursorCharge-1
}

// Ion is one theoretical fragment. Position is the ion number (fragment length) for terminal
// ions and the 0-based index of the last residue for internal ions.
type Ion struct {
	Position int
	MZ       float64
}

// Series is the ions of one descriptor at one charge, in generation order.
type Series struct {
	Desc   int // index into the IonSet
	Label  string
	Charge int
	Start  int // 0-based first residue of internal ions
	Ions   []Ion
}

// Generator produces ion series. It owns its scratch buffers and is not safe for concurrent use.
type Generator struct {
	set    *IonSet
	params Params

	seq      string
	prefix   []float64 // prefix[k]: modified residue mass of the first k residues
	basic    []int     // prefix counts of H, K, R
	eligible [core.LossSOCH4 + 1][]int
	modified []bool
	deltas   []float64
	nDelta   float64
	cDelta   float64
	nlDelta  float64

	series []Series
	ions   []Ion
}

// NewGenerator returns a generator for set.
func (s *IonSet) NewGenerator(p Params) *Generator {
	return &Generator{set: s, params: p}
}

// Params returns the generator's settings.
func (g *Generator) Params() Params { return g.params }

// Generate returns every configured series for p. The result is valid until the next call.
func (g *Generator) Generate(p *core.ModifiedPeptide) ([]Series, error) {
	g.series = g.series[:0]
	g.ions = g.ions[:0]
	if p.Len() < 2 {
		return g.series, nil
	}
	if err := g.load(p); err != nil {
		return nil, err
	}
	for i := range g.set.descs {
		d := &g.set.descs[i]
		switch d.Kind {
		case Standard:
			g.terminal(i, d, d.Label, nil)
		case Loss:
			base := strings.TrimSuffix(d.Label, "-loss")
			for c := range d.combos {
				g.terminal(i, d, base+d.combos[c].suffix, &d.combos[c])
			}
		case Internal:
			g.internal(i, d)
		case Satellite:
			g.satellite(i, d)
		case IntactLoss:
			g.intact(i, d)
		}
	}
	return g.series, nil
}

func (g *Generator) load(p *core.ModifiedPeptide) error {
	g.seq = p.Sequence()
	n := len(g.seq)
	g.deltas = p.ResidueDeltas(g.deltas)
	g.prefix = grow(g.prefix, n+1)
	g.basic = growInt(g.basic, n+1)
	for k := range g.eligible {
		g.eligible[k] = growInt(g.eligible[k], n+1)
	}
	if cap(g.modified) < n {
		g.modified = make([]bool, n)
	}
	g.modified = g.modified[:n]

	masses := g.set.masses
	for i := 0; i < n; i++ {
		aa := g.seq[i]
		m, ok := masses.Residue(aa)
		if !ok {
			return fmt.Errorf("unknown residue %q at position %d in %s", aa, i+1, g.seq)
		}
		rule := p.At(i)
		g.modified[i] = rule != nil
		g.prefix[i+1] = g.prefix[i] + m + g.deltas[i]
		g.basic[i+1] = g.basic[i]
		if core.IsBasic(aa) {
			g.basic[i+1]++
		}
		for k := range g.eligible {
			g.eligible[k][i+1] = g.eligible[k][i]
			if lossEligible(core.LossKind(k), aa, rule) {
				g.eligible[k][i+1]++
			}
		}
	}

	g.nDelta, g.cDelta, g.nlDelta = 0, 0, 0
	if r := p.NTerm(); r != nil {
		g.nDelta = r.Delta
	}
	if r := p.CTerm(); r != nil {
		g.cDelta = r.Delta
	}
	if r := p.NeutralLoss(); r != nil {
		g.nlDelta = r.Delta
	}
	return nil
}

func lossEligible(k core.LossKind, aa byte, rule *core.ModificationRule) bool {
	if rule != nil && rule.Loss == k && k != core.LossNone {
		return true
	}
	switch k {
	case core.LossH2O:
		return strings.IndexByte("STED", aa) >= 0
	case core.LossNH3:
		return strings.IndexByte("RKQN", aa) >= 0
	}
	return false
}

func grow(s []float64, n int) []float64 {
	if cap(s) < n {
		return make([]float64, n)
	}
	s = s[:n]
	s[0] = 0
	return s
}

func growInt(s []int, n int) []int {
	if cap(s) < n {
		return make([]int, n)
	}
	s = s[:n]
	s[0] = 0
	return s
}

// span returns the prefix index range [lo, hi) covered by a terminal fragment of length k.
func (g *Generator) span(dir Direction, k int) (int, int) {
	if dir == NTerminal {
		return 0, k
	}
	n := len(g.seq)
	return n - k, n
}

// baseline is the b-ion (N-terminal) or y-ion (C-terminal) neutral mass of a fragment of length k.
func (g *Generator) baseline(dir Direction, k int) float64 {
	lo, hi := g.span(dir, k)
	sum := g.prefix[hi] - g.prefix[lo]
	masses := g.set.masses
	if dir == NTerminal {
		return sum + masses.NTermWeight() + g.nDelta
	}
	return sum + masses.CTermWeight() + 2*core.MassH + g.cDelta
}

func (g *Generator) count(c []int, lo, hi int) int { return c[hi] - c[lo] }

// ceiling is the highest charge a fragment holding basic charge-bearing residues may carry.
func (g *Generator) ceiling(d *compiled, basic int) int {
	if d.SingleChargeOnly {
		return 1
	}
	z := basic + 1
	if g.params.MaxCharge > 0 && z > g.params.MaxCharge {
		z = g.params.MaxCharge
	}
	if g.params.ChargeReduced && g.params.PrecursorCharge > 0 && z > g.params.PrecursorCharge-1 {
		z = g.params.PrecursorCharge - 1
	}
	if z < 1 {
		z = 1
	}
	return z
}

// blocked reports whether the cleavage producing a terminal fragment of length k sits
// immediately before a proline.
func (g *Generator) blocked(d *compiled, k int) bool {
	if !d.BlockBeforeProline {
		return false
	}
	if d.Direction == NTerminal {
		return g.seq[k] == 'P'
	}
	return g.seq[len(g.seq)-k] == 'P'
}

func (g *Generator) flush(desc int, label string, z, start, mark int) {
	if len(g.ions) == mark {
		return
	}
	g.series = append(g.series, Series{
		Desc:   desc,
		Label:  label,
		Charge: z,
		Start:  start,
		Ions:   g.ions[mark:len(g.ions):len(g.ions)],
	})
}

func (g *Generator) terminal(desc int, d *compiled, label string, combo *lossCombo) {
	n := len(g.seq)
	first, last := 1+d.StartGap, n-1-d.EndGap
	if first > last {
		return
	}
	maxZ := g.ceiling(d, g.basic[n])
	cation := g.set.masses.CationMass()
	for z := 1; z <= maxZ; z++ {
		mark := len(g.ions)
		for k := first; k <= last; k++ {
			if g.blocked(d, k) {
				continue
			}
			lo, hi := g.span(d.Direction, k)
			basic := g.count(g.basic, lo, hi)
			if d.Requirement == RequireBasic && basic == 0 {
				continue
			}
			if g.ceiling(d, basic) < z {
				continue
			}
			m := g.baseline(d.Direction, k) - d.Offset
			if combo != nil {
				if !g.lossesFit(d, combo, lo, hi) {
					continue
				}
				m -= combo.mass
			}
			g.ions = append(g.ions, Ion{Position: k, MZ: MOverZ(m, z, cation)})
		}
		g.flush(desc, label, z, 0, mark)
	}
}

func (g *Generator) lossesFit(d *compiled, combo *lossCombo, lo, hi int) bool {
	if d.LimitAll {
		return true
	}
	for j, c := range combo.counts {
		if c > 0 && g.count(g.eligible[d.Losses[j]], lo, hi) < c {
			return false
		}
	}
	return true
}

// internal generates ions spanning residues start..end with 1 <= start and end <= len-2.
func (g *Generator) internal(desc int, d *compiled) {
	n := len(g.seq)
	cation := g.set.masses.CationMass()
	for start := 1; start <= n-3; start++ {
		maxEnd := n - 2
		if d.MaxLength > 0 && start+d.MaxLength-1 < maxEnd {
			maxEnd = start + d.MaxLength - 1
		}
		maxZ := g.ceiling(d, g.count(g.basic, start, maxEnd+1))
		for z := 1; z <= maxZ; z++ {
			mark := len(g.ions)
			for end := start + 1; end <= maxEnd; end++ {
				basic := g.count(g.basic, start, end+1)
				if d.Requirement == RequireBasic && basic == 0 {
					continue
				}
				if g.ceiling(d, basic) < z {
					continue
				}
				m := g.prefix[end+1] - g.prefix[start] + core.MassH - d.Offset
				g.ions = append(g.ions, Ion{Position: end, MZ: MOverZ(m, z, cation)})
			}
			g.flush(desc, d.Label, z, start, mark)
		}
	}
}

// satellite generates d, v and w ions. The side chain belongs to the residue at the cleavage
// end of the fragment, and a basic residue must precede it in the generation direction.
func (g *Generator) satellite(desc int, d *compiled) {
	n := len(g.seq)
	masses := g.set.masses
	glycine, _ := masses.Residue('G')
	mark := len(g.ions)
	for k := 1 + d.StartGap; k <= n-1-d.EndGap; k++ {
		if g.blocked(d, k) {
			continue
		}
		var site, basicBefore int
		if d.Direction == NTerminal {
			site = k - 1
			basicBefore = g.basic[site]
		} else {
			site = n - k
			basicBefore = g.basic[n] - g.basic[site+1]
		}
		if basicBefore == 0 || g.modified[site] {
			continue
		}
		aa := g.seq[site]

		var lost float64
		switch d.SideChain {
		case SideChainD, SideChainW:
			sub, ok := gammaSubstituent(aa)
			if !ok {
				continue
			}
			lost = sub
		case SideChainV:
			if aa == 'G' || aa == 'P' {
				continue
			}
			res, _ := masses.Residue(aa)
			lost = res - glycine
		}
		m := g.baseline(d.Direction, k) - d.Offset - lost
		g.ions = append(g.ions, Ion{Position: k, MZ: MOverZ(m, 1, masses.CationMass())})
	}
	g.flush(desc, d.Label, 1, 0, mark)
}

// intact generates the precursor after one neutral loss, at every charge it can carry.
func (g *Generator) intact(desc int, d *compiled) {
	n := len(g.seq)
	if !d.LimitAll && g.eligible[d.IntactOf][n] == 0 {
		return
	}
	masses := g.set.masses
	m := g.prefix[n] + masses.NTermWeight() + masses.CTermWeight() + g.nDelta + g.cDelta + g.nlDelta + core.MassH - d.intactLoss

	maxZ := g.basic[n] + 1
	if d.SingleChargeOnly {
		maxZ = 1
	}
	if g.params.MaxCharge > 0 && maxZ > g.params.MaxCharge {
		maxZ = g.params.MaxCharge
	}
	if g.params.PrecursorCharge > 0 && maxZ > g.params.PrecursorCharge {
		maxZ = g.params.PrecursorCharge
	}
	for z := 1; z <= maxZ; z++ {
		mark := len(g.ions)
		g.ions = append(g.ions, Ion{Position: n, MZ: MOverZ(m, z, masses.CationMass())})
		g.flush(desc, d.Label, z, 0, mark)
	}
}
