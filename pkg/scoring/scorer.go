package scoring

import (
	"sort"

	"github.com/ChrisMcGann/PepMatch/pkg/core"
	"github.com/ChrisMcGann/PepMatch/pkg/ions"
)

// PeakQuery is the read-only view of an observed spectrum the scorer needs. Peaks are ordered
// by m/z; Charge is 0 when unknown.
type PeakQuery interface {
	Len() int
	MZ(i int) float64
	Charge(i int) int
}

// Result is the outcome of scoring one candidate.
type Result struct {
	Score     Score
	Unmatched int // positions of required ion types where no charge state matched
	Matched   int // theoretical ions with a peak inside the tolerance
}

// Scorer scores generated ion series against a peak list. It keeps scratch state and is not
// safe for concurrent use.
type Scorer struct {
	profile *Profile
	set     *ions.IonSet
	tol     Tolerance

	entries []Entry // per descriptor of set

	generated []bool // per (required descriptor, position)
	matched   []bool
}

// NewScorer binds a profile, the ion set built from it and a fragment tolerance.
func NewScorer(profile *Profile, set *ions.IonSet, tol Tolerance) *Scorer {
	s := &Scorer{
		profile: profile,
		set:     set,
		tol:     tol,
		entries: make([]Entry, set.Len()),
	}
	for i := 0; i < set.Len(); i++ {
		if e, ok := profile.Entry(set.Descriptor(i).Label); ok {
			s.entries[i] = e
		}
	}
	return s
}

// Profile returns the scorer's profile.
func (s *Scorer) Profile() *Profile { return s.profile }

// Tolerance returns the fragment tolerance.
func (s *Scorer) Tolerance() Tolerance { return s.tol }

// Score matches every ion of series against peaks. length is the peptide length the series
// were generated for.
func (s *Scorer) Score(series []ions.Series, length int, peaks PeakQuery) Result {
	var res Result
	if len(series) == 0 {
		return res
	}

	stride := length + 1
	need := s.set.Len() * stride
	if cap(s.generated) < need {
		s.generated = make([]bool, need)
		s.matched = make([]bool, need)
	}
	s.generated = s.generated[:need]
	s.matched = s.matched[:need]
	clear(s.generated)
	clear(s.matched)

	n := peaks.Len()
	for _, sr := range series {
		e := s.entries[sr.Desc]
		if !e.Enabled || (e.MaxCharge > 0 && sr.Charge > e.MaxCharge) {
			continue
		}
		track := e.Required && s.set.Descriptor(sr.Desc).Kind != ions.Internal
		base := sr.Desc * stride

		cursor := 0
		prev := 0.0
		for _, ion := range sr.Ions {
			lo, hi := s.tol.Window(ion.MZ)
			if ion.MZ < prev {
				cursor = sort.Search(n, func(i int) bool { return peaks.MZ(i) >= lo })
			} else {
				for cursor < n && peaks.MZ(cursor) < lo {
					cursor++
				}
			}
			prev = ion.MZ

			hit := false
			for j := cursor; j < n && peaks.MZ(j) <= hi; j++ {
				if c := peaks.Charge(j); c == 0 || c == sr.Charge {
					hit = true
					break
				}
			}
			if track && ion.Position <= length {
				s.generated[base+ion.Position] = true
				if hit {
					s.matched[base+ion.Position] = true
				}
			}
			if hit {
				res.Score += e.Weight
				res.Matched++
			}
		}
	}

	for i := range s.generated {
		if s.generated[i] && !s.matched[i] {
			res.Unmatched++
		}
	}
	return res
}

// Crosslink describes the two peptides of a crosslinked pair.
type Crosslink struct {
	SideMass [2]float64 // neutral mass of each modified peptide
	Bridge   float64    // mass of the intact crosslinker
	Remnant  float64    // mass the crosslinker leaves on a side after cleaving
}

// ScoreCrosslink scores the precursor-with-bridge pseudo-ions of both sides: each side mass plus
// the full bridge and plus the bridge remnant, at charges 1 up to precursorCharge-1. A pseudo-ion
// counts once however many of its charge states match.
func (s *Scorer) ScoreCrosslink(xl Crosslink, precursorCharge int, peaks PeakQuery) Result {
	var res Result
	e, ok := s.profile.Entry(CrosslinkLabel)
	if !ok || !e.Enabled {
		return res
	}
	maxZ := precursorCharge - 1
	if maxZ < 1 {
		maxZ = 1
	}
	if e.MaxCharge > 0 && maxZ > e.MaxCharge {
		maxZ = e.MaxCharge
	}
	cation := s.set.Masses().CationMass()
	for _, side := range xl.SideMass {
		for _, m := range [2]float64{side + xl.Bridge, side + xl.Remnant} {
			hit := false
			for z := 1; z <= maxZ && !hit; z++ {
				hit = s.matchOne(ions.MOverZ(m+core.MassH, z, cation), z, peaks)
			}
			if hit {
				res.Score += e.Weight
				res.Matched++
			}
		}
	}
	return res
}

func (s *Scorer) matchOne(mz float64, z int, peaks PeakQuery) bool {
	lo, hi := s.tol.Window(mz)
	n := peaks.Len()
	for j := sort.Search(n, func(i int) bool { return peaks.MZ(i) >= lo }); j < n && peaks.MZ(j) <= hi; j++ {
		if c := peaks.Charge(j); c == 0 || c == z {
			return true
		}
	}
	return false
}
