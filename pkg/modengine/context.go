package modengine

import (
	"iter"
	"strings"

	"github.com/ChrisMcGann/PepMatch/pkg/core"
)

// Context holds the scratch state for enumerating one peptide at a time. It is not safe for
// concurrent use; give each worker its own.
type Context struct {
	eng *Engine
	w   *walker

	sequence string
	slots    [][]int // per rule, slot ids in ascending order
	used     []bool
	cur      []int
	assign   []int
}

// NewContext returns a fresh enumeration context.
func (e *Engine) NewContext() *Context {
	return &Context{
		eng:   e,
		w:     newWalker(e),
		slots: make([][]int, e.catalog.Len()),
	}
}

// Slot ids run N-term, residues, C-term, neutral loss so that ascending ids follow ModSlot order.
func slotID(s core.ModSlot, length int) int {
	switch s.Kind {
	case core.SlotNTerm:
		return 0
	case core.SlotPosition:
		return 1 + s.Pos
	case core.SlotCTerm:
		return length + 1
	}
	return length + 2
}

func slotFromID(id, length int) core.ModSlot {
	switch {
	case id == 0:
		return core.NTermSlot
	case id <= length:
		return core.Position(id - 1)
	case id == length+1:
		return core.CTermSlot
	}
	return core.NeutralLossSlot
}

// prepare evaluates every rule's residue, specificity and motif predicates against sequence and
// records the slots each rule may occupy.
func (c *Context) prepare(sequence string, nTermFlag, cTermFlag bool) {
	c.sequence = sequence
	n := len(sequence)
	for i := range c.slots {
		c.slots[i] = c.slots[i][:0]
		c.w.maxUses[i] = 0
	}
	if n == 0 {
		return
	}

	cat := c.eng.catalog
	for i := 0; i < cat.Len(); i++ {
		r := cat.Rule(i)
		spec := c.eng.spec[i]
		if spec == 0 {
			continue
		}
		switch r.Site {
		case core.SiteResidue:
			for p := 0; p < n; p++ {
				if sequence[p] != r.Residue || !positionAllowed(spec, p, n, nTermFlag, cTermFlag) {
					continue
				}
				if r.Motif != nil && !r.Motif.Matches(sequence, p) {
					continue
				}
				c.slots[i] = append(c.slots[i], slotID(core.Position(p), n))
			}
		case core.SiteNTerm:
			if r.Residue != 0 && sequence[0] != r.Residue {
				continue
			}
			if spec == core.ProteinNTerm && !nTermFlag {
				continue
			}
			c.slots[i] = append(c.slots[i], slotID(core.NTermSlot, n))
		case core.SiteCTerm:
			if r.Residue != 0 && sequence[n-1] != r.Residue {
				continue
			}
			if spec == core.ProteinCTerm && !cTermFlag {
				continue
			}
			c.slots[i] = append(c.slots[i], slotID(core.CTermSlot, n))
		case core.SiteNeutralLoss:
			if r.Residue != 0 && strings.IndexByte(sequence, r.Residue) < 0 {
				continue
			}
			c.slots[i] = append(c.slots[i], slotID(core.NeutralLossSlot, n))
		}
		c.w.maxUses[i] = len(c.slots[i])
	}

	if cap(c.used) < n+3 {
		c.used = make([]bool, n+3)
	}
	c.used = c.used[:n+3]
	clear(c.used)
}

func positionAllowed(spec core.Specificity, p, n int, nTermFlag, cTermFlag bool) bool {
	switch spec {
	case core.PeptideNTerm:
		return p == 0
	case core.PeptideCTerm:
		return p == n-1
	case core.ProteinNTerm:
		return p == 0 && nTermFlag
	case core.ProteinCTerm:
		return p == n-1 && cTermFlag
	}
	return true
}

// SingleModifications yields one candidate for every rule with a delta in [startMass, endMass]
// at every slot where it applies. Dehydro rules never appear alone.
func (c *Context) SingleModifications(sequence string, startMass, endMass float64, nTermFlag, cTermFlag bool) iter.Seq2[*core.ModifiedPeptide, error] {
	return func(yield func(*core.ModifiedPeptide, error) bool) {
		if startMass > endMass || len(sequence) == 0 {
			return
		}
		c.prepare(sequence, nTermFlag, cTermFlag)
		cat := c.eng.catalog
		n := len(sequence)
		for i := cat.LowerBound(startMass); i < cat.Len(); i++ {
			r := cat.Rule(i)
			if r.Delta > endMass {
				return
			}
			if r.Dehydro {
				continue
			}
			for _, id := range c.slots[i] {
				mods := []core.AppliedMod{{Slot: slotFromID(id, n), Rule: r}}
				if !yield(core.AssemblePeptide(sequence, mods, r.Delta), nil) {
					return
				}
			}
		}
	}
}

// MultiModifications yields every candidate carrying 2..maxLevels rules on distinct slots whose
// total delta lies in [startMass, endMass]. maxLevels <= 0 or above the engine's limit selects
// the engine's limit. Enumeration ends with ErrTooManyCombinations once the engine's candidate cap
// is exceeded.
func (c *Context) MultiModifications(sequence string, startMass, endMass float64, nTermFlag, cTermFlag bool, maxLevels int) iter.Seq2[*core.ModifiedPeptide, error] {
	return func(yield func(*core.ModifiedPeptide, error) bool) {
		if maxLevels <= 0 || maxLevels > c.eng.opts.MaxLevels {
			maxLevels = c.eng.opts.MaxLevels
		}
		if startMass > endMass || len(sequence) == 0 || maxLevels < 2 {
			return
		}
		c.prepare(sequence, nTermFlag, cTermFlag)

		limit := c.eng.opts.MaxCombinations
		emitted := 0
		stopped := false
		c.w.walk(startMass, endMass, 2, maxLevels, func(rules []int, mass float64) bool {
			return c.place(rules, func(ids []int) bool {
				if emitted >= limit {
					yield(nil, core.ErrTooManyCombinations)
					stopped = true
					return false
				}
				emitted++
				if !yield(c.assemble(rules, ids, mass), nil) {
					stopped = true
					return false
				}
				return true
			}) && !stopped
		})
	}
}

// place assigns each rule of a multiset to a distinct slot, calling visit for every assignment.
// Repeated rules take slots in ascending order so each placement is produced once.
func (c *Context) place(rules []int, visit func(ids []int) bool) bool {
	k := len(rules)
	if cap(c.cur) < k {
		c.cur = make([]int, k)
		c.assign = make([]int, k)
	}
	cur, assign := c.cur[:k], c.assign[:k]
	cur[0] = 0

	for d := 0; d >= 0; {
		slots := c.slots[rules[d]]
		i := cur[d]
		if i >= len(slots) {
			d--
			if d >= 0 {
				c.used[assign[d]] = false
			}
			continue
		}
		cur[d] = i + 1
		id := slots[i]
		if c.used[id] {
			continue
		}
		assign[d] = id
		if d == k-1 {
			if !visit(assign) {
				return false
			}
			continue
		}
		c.used[id] = true
		d++
		if rules[d] == rules[d-1] {
			cur[d] = i + 1
		} else {
			cur[d] = 0
		}
	}
	return true
}

// assemble builds the candidate for one placement, ordering the modifications by slot.
func (c *Context) assemble(rules, ids []int, mass float64) *core.ModifiedPeptide {
	n := len(c.sequence)
	mods := make([]core.AppliedMod, len(rules))
	for k, j := range rules {
		mods[k] = core.AppliedMod{Slot: slotFromID(ids[k], n), Rule: c.eng.catalog.Rule(j)}
	}
	for i := 1; i < len(mods); i++ {
		for j := i; j > 0 && mods[j].Slot.Less(mods[j-1].Slot); j-- {
			mods[j], mods[j-1] = mods[j-1], mods[j]
		}
	}
	return core.AssemblePeptide(c.sequence, mods, mass)
}

// SingleModifications enumerates with a fresh Context.
func (e *Engine) SingleModifications(sequence string, startMass, endMass float64, nTermFlag, cTermFlag bool) iter.Seq2[*core.ModifiedPeptide, error] {
	return e.NewContext().SingleModifications(sequence, startMass, endMass, nTermFlag, cTermFlag)
}

// MultiModifications enumerates with a fresh Context.
func (e *Engine) MultiModifications(sequence string, startMass, endMass float64, nTermFlag, cTermFlag bool, maxLevels int) iter.Seq2[*core.ModifiedPeptide, error] {
	return e.NewContext().MultiModifications(sequence, startMass, endMass, nTermFlag, cTermFlag, maxLevels)
}
