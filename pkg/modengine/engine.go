// Package modengine enumerates the modified variants of a peptide whose total mass shift falls
// in a target window.
//
// An Engine is built once from a catalog and shared. Enumeration state lives in a Context, one
// per worker.
package modengine

import (
	"math"
	"sort"

	"github.com/ChrisMcGann/PepMatch/pkg/core"
)

// Terminus names the peptide terminus at which the configured enzyme cleaves non-specifically.
type Terminus uint8

const (
	TerminusNone Terminus = iota
	TerminusN
	TerminusC
)

// ParseTerminus converts "", "none", "N" or "C" to a Terminus.
func ParseTerminus(s string) (Terminus, bool) {
	switch s {
	case "", "none", "None":
		return TerminusNone, true
	case "N", "n":
		return TerminusN, true
	case "C", "c":
		return TerminusC, true
	}
	return TerminusNone, false
}

// Defaults
const (
	DefaultMaxLevels        = 3
	DefaultMaxCombinations  = 12_000_000
	DefaultOffsetTableLimit = 1 << 21
)

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	MaxLevels           int // largest number of rules in one multi-modification candidate
	MaxCombinations     int // candidates one MultiModifications call may emit
	NonSpecificTerminus Terminus
	OffsetTableLimit    int // largest precomputed table of combination sums for CheckOffset
}

// slot classes with room for a single rule each
const (
	classNone = iota
	classNTerm
	classCTerm
	classNeutralLoss
	classFirst
	classLast
	numClasses
)

// Engine is immutable and safe for concurrent use.
type Engine struct {
	catalog *core.Catalog
	opts    Options

	spec     []core.Specificity // per rule, with 'e' resolved; 0 when the rule can never apply
	class    []int
	deltas   []float64
	maxDelta float64

	singles []float64 // sorted deltas of rules usable alone
	sums    []float64 // sorted sums of every valid combination; nil when over the table limit
}

// NewEngine prepares an engine for catalog.
func NewEngine(catalog *core.Catalog, opts Options) *Engine {
	if opts.MaxLevels <= 0 {
		opts.MaxLevels = DefaultMaxLevels
	}
	if opts.MaxCombinations <= 0 {
		opts.MaxCombinations = DefaultMaxCombinations
	}
	if opts.OffsetTableLimit <= 0 {
		opts.OffsetTableLimit = DefaultOffsetTableLimit
	}

	n := catalog.Len()
	e := &Engine{
		catalog: catalog,
		opts:    opts,
		spec:    make([]core.Specificity, n),
		class:   make([]int, n),
		deltas:  make([]float64, n),
	}
	for i := 0; i < n; i++ {
		r := catalog.Rule(i)
		e.deltas[i] = r.Delta
		if i == 0 || r.Delta > e.maxDelta {
			e.maxDelta = r.Delta
		}
		e.spec[i] = resolveSpecificity(r.Specificity, opts.NonSpecificTerminus)
		e.class[i] = slotClass(r, e.spec[i])
		if e.spec[i] != 0 && !r.Dehydro {
			e.singles = append(e.singles, r.Delta)
		}
	}
	e.buildOffsetTable()
	return e
}

func resolveSpecificity(s core.Specificity, t Terminus) core.Specificity {
	if s != core.EnzymeTerm {
		return s
	}
	switch t {
	case TerminusN:
		return core.PeptideNTerm
	case TerminusC:
		return core.PeptideCTerm
	}
	return 0
}

func slotClass(r *core.ModificationRule, spec core.Specificity) int {
	switch r.Site {
	case core.SiteNTerm:
		return classNTerm
	case core.SiteCTerm:
		return classCTerm
	case core.SiteNeutralLoss:
		return classNeutralLoss
	}
	switch spec {
	case core.PeptideNTerm, core.ProteinNTerm:
		return classFirst
	case core.PeptideCTerm, core.ProteinCTerm:
		return classLast
	}
	return classNone
}

// Catalog returns the catalog the engine enumerates.
func (e *Engine) Catalog() *core.Catalog { return e.catalog }

// MaxLevels returns the configured maximum number of rules per candidate.
func (e *Engine) MaxLevels() int { return e.opts.MaxLevels }

// buildOffsetTable records the sum of every combination a peptide offering all slots could carry.
func (e *Engine) buildOffsetTable() {
	w := newWalker(e)
	for i := range w.maxUses {
		if e.spec[i] != 0 {
			w.maxUses[i] = e.opts.MaxLevels
		}
	}
	var sums []float64
	complete := w.walk(math.Inf(-1), math.Inf(1), 2, e.opts.MaxLevels, func(_ []int, mass float64) bool {
		if len(sums) >= e.opts.OffsetTableLimit {
			return false
		}
		sums = append(sums, mass)
		return true
	})
	if !complete {
		return
	}
	sort.Float64s(sums)
	e.sums = sums
	if e.sums == nil {
		e.sums = []float64{}
	}
}

// CheckOffset reports whether any single rule or valid rule combination has a total mass shift in
// [startMass, endMass]. It ignores sequence context, so it never rejects a window that a peptide
// could explain.
func (e *Engine) CheckOffset(startMass, endMass float64) bool {
	if startMass > endMass {
		return false
	}
	if inRange(e.singles, startMass, endMass) {
		return true
	}
	if e.sums != nil {
		return inRange(e.sums, startMass, endMass)
	}

	w := newWalker(e)
	for i := range w.maxUses {
		if e.spec[i] != 0 {
			w.maxUses[i] = e.opts.MaxLevels
		}
	}
	found := false
	w.walk(startMass, endMass, 2, e.opts.MaxLevels, func(_ []int, _ float64) bool {
		found = true
		return false
	})
	return found
}

func inRange(sorted []float64, lo, hi float64) bool {
	i := sort.SearchFloat64s(sorted, lo)
	return i < len(sorted) && sorted[i] <= hi
}

// walker enumerates multisets of rule indices in nondecreasing index order whose delta sums fall
// in a window, honouring the catalog's combination constraints.
type walker struct {
	eng     *Engine
	maxUses []int

	uses       []int
	limitUse   map[int]int
	classUse   [numClasses]int
	rare       int
	massOffset int
	dehydro    int
	letterUse  [26]int
	letterLab  [26]int

	cursor []int
	chosen []int
	sums   []float64
}

func newWalker(e *Engine) *walker {
	n := e.catalog.Len()
	return &walker{
		eng:      e,
		maxUses:  make([]int, n),
		uses:     make([]int, n),
		limitUse: make(map[int]int),
	}
}

func (w *walker) canPush(j int) bool {
	if w.uses[j] >= w.maxUses[j] {
		return false
	}
	r := w.eng.catalog.Rule(j)
	if r.MassOffset && w.massOffset > 0 {
		return false
	}
	if c := w.eng.class[j]; c != classNone && w.classUse[c] > 0 {
		return false
	}
	if r.Rare && w.rare >= w.eng.catalog.RareLimit() {
		return false
	}
	if limit, ok := w.eng.catalog.LimitCap(r.LimitGroup); ok && w.limitUse[r.LimitGroup] >= limit {
		return false
	}
	if r.Site == core.SiteResidue {
		l := r.Residue - 'A'
		if w.letterUse[l] > 0 && w.letterLab[l] != r.LabelGroup {
			return false
		}
	}
	return true
}

func (w *walker) push(j int) {
	r := w.eng.catalog.Rule(j)
	w.uses[j]++
	w.classUse[w.eng.class[j]]++
	if r.MassOffset {
		w.massOffset++
	}
	if r.Rare {
		w.rare++
	}
	if r.Dehydro {
		w.dehydro++
	}
	if r.LimitGroup != 0 {
		w.limitUse[r.LimitGroup]++
	}
	if r.Site == core.SiteResidue {
		l := r.Residue - 'A'
		w.letterUse[l]++
		w.letterLab[l] = r.LabelGroup
	}
}

func (w *walker) pop(j int) {
	r := w.eng.catalog.Rule(j)
	w.uses[j]--
	w.classUse[w.eng.class[j]]--
	if r.MassOffset {
		w.massOffset--
	}
	if r.Rare {
		w.rare--
	}
	if r.Dehydro {
		w.dehydro--
	}
	if r.LimitGroup != 0 {
		w.limitUse[r.LimitGroup]--
	}
	if r.Site == core.SiteResidue {
		w.letterUse[r.Residue-'A']--
	}
}

// firstIndex returns the first rule index at or after minIdx that could still reach startMass
// when up to levels rules remain to be added to mass.
func (w *walker) firstIndex(minIdx int, mass, startMass float64, levels int) int {
	headroom := 0.0
	if w.eng.maxDelta > 0 {
		headroom = float64(levels-1) * w.eng.maxDelta
	}
	i := w.eng.catalog.LowerBound(startMass - mass - headroom)
	if i < minIdx {
		return minIdx
	}
	return i
}

// walk calls visit for every valid multiset of minSize..maxLevels rules whose sum lies in
// [startMass, endMass] and that holds an even number of dehydro rules. It returns false if visit
// stopped the walk.
func (w *walker) walk(startMass, endMass float64, minSize, maxLevels int, visit func(rules []int, mass float64) bool) bool {
	n := w.eng.catalog.Len()
	if maxLevels < 1 || n == 0 {
		return true
	}
	w.cursor = append(w.cursor[:0], w.firstIndex(0, 0, startMass, maxLevels))
	w.chosen = w.chosen[:0]
	w.sums = append(w.sums[:0], 0)

	for len(w.cursor) > 0 {
		d := len(w.cursor) - 1
		j := w.cursor[d]
		if j >= n {
			w.cursor = w.cursor[:d]
			if d > 0 {
				w.pop(w.chosen[d-1])
				w.chosen = w.chosen[:d-1]
				w.sums = w.sums[:d]
			}
			continue
		}

		mass := w.sums[d]
		x := w.eng.deltas[j]
		levels := maxLevels - d
		if (x >= 0 && mass+x > endMass) || (x < 0 && mass+float64(levels)*x > endMass) {
			w.cursor[d] = n
			continue
		}
		w.cursor[d] = j + 1
		if !w.canPush(j) {
			continue
		}

		w.push(j)
		total := mass + x
		w.chosen = append(w.chosen, j)
		w.sums = append(w.sums, total)
		size := d + 1
		if size >= minSize && total >= startMass && total <= endMass && w.dehydro%2 == 0 {
			if !visit(w.chosen, total) {
				w.unwind()
				return false
			}
		}
		if size < maxLevels {
			w.cursor = append(w.cursor, w.firstIndex(j, total, startMass, maxLevels-size))
		} else {
			w.pop(j)
			w.chosen = w.chosen[:d]
			w.sums = w.sums[:size]
		}
	}
	return true
}

// unwind pops every rule still on the stack so the walker can be reused.
func (w *walker) unwind() {
	for i := len(w.chosen) - 1; i >= 0; i-- {
		w.pop(w.chosen[i])
	}
	w.chosen = w.chosen[:0]
	w.cursor = w.cursor[:0]
	w.sums = w.sums[:0]
}
