package search

import (
	"sort"

	"github.com/ChrisMcGann/PepMatch/pkg/core"
	"github.com/ChrisMcGann/PepMatch/pkg/scoring"
)

// TagMatch is one scored candidate for a spectrum.
type TagMatch struct {
	Peak      core.Peak // precursor the candidate was matched against
	Unmatched int
	Score     scoring.Score
	Peptide   *core.ModifiedPeptide
}

// ScoreSink receives the score of every candidate scored, reported or not.
type ScoreSink interface {
	Add(score scoring.Score)
}

type ranked struct {
	match TagMatch
	key   string
	seq   int
}

// Ranker keeps candidates scoring at least a minimum, one per modification placement, and
// optionally only the best K. Ties are ordered by arrival.
type Ranker struct {
	minScore scoring.Score
	topK     int

	entries []ranked
	byKey   map[string]int
	next    int
}

// NewRanker returns a ranker. topK <= 0 keeps every candidate above minScore.
func NewRanker(minScore scoring.Score, topK int) *Ranker {
	return &Ranker{minScore: minScore, topK: topK, byKey: make(map[string]int)}
}

// Offer considers m and reports whether it was kept.
func (r *Ranker) Offer(m TagMatch) bool {
	if m.Score < r.minScore {
		return false
	}
	seq := r.next
	r.next++

	key := m.Peptide.IndexKey()
	if i, ok := r.byKey[key]; ok {
		if m.Score <= r.entries[i].match.Score {
			return false
		}
		r.entries[i].match = m
		return true
	}

	if r.topK > 0 && len(r.entries) >= r.topK {
		worst := 0
		for i := 1; i < len(r.entries); i++ {
			if r.worse(i, worst) {
				worst = i
			}
		}
		if m.Score <= r.entries[worst].match.Score {
			return false
		}
		delete(r.byKey, r.entries[worst].key)
		r.entries[worst] = ranked{match: m, key: key, seq: seq}
		r.byKey[key] = worst
		return true
	}

	r.byKey[key] = len(r.entries)
	r.entries = append(r.entries, ranked{match: m, key: key, seq: seq})
	return true
}

// worse reports whether entry i ranks below entry j.
func (r *Ranker) worse(i, j int) bool {
	a, b := r.entries[i], r.entries[j]
	if a.match.Score != b.match.Score {
		return a.match.Score < b.match.Score
	}
	return a.seq > b.seq
}

// Len returns the number of kept candidates.
func (r *Ranker) Len() int { return len(r.entries) }

// Matches returns the kept candidates, best first.
func (r *Ranker) Matches() []TagMatch {
	sorted := make([]ranked, len(r.entries))
	copy(sorted, r.entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].match.Score != sorted[j].match.Score {
			return sorted[i].match.Score > sorted[j].match.Score
		}
		return sorted[i].seq < sorted[j].seq
	})
	out := make([]TagMatch, len(sorted))
	for i, e := range sorted {
		out[i] = e.match
	}
	return out
}
