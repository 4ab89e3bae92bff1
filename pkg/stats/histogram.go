// Package stats collects candidate score distributions and estimates how often a score arises by
// chance.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ChrisMcGann/PepMatch/pkg/scoring"
)

// DefaultBinWidth is the score histogram bin width used when none is given.
const DefaultBinWidth = 1.0

// minFitPoints is the fewest tail bins a survival fit uses.
const minFitPoints = 3

// Histogram records every candidate score of one spectrum. It satisfies search.ScoreSink and is
// not safe for concurrent use.
type Histogram struct {
	width  float64
	scores []float64
	sorted bool
}

// NewHistogram returns an empty histogram with the given bin width.
func NewHistogram(binWidth float64) *Histogram {
	if binWidth <= 0 || math.IsNaN(binWidth) {
		binWidth = DefaultBinWidth
	}
	return &Histogram{width: binWidth}
}

// Add records one score.
func (h *Histogram) Add(s scoring.Score) {
	h.scores = append(h.scores, float64(s))
	h.sorted = false
}

// Len returns the number of recorded scores.
func (h *Histogram) Len() int { return len(h.scores) }

// Reset forgets all scores and keeps the allocation.
func (h *Histogram) Reset() {
	h.scores = h.scores[:0]
	h.sorted = true
}

func (h *Histogram) sort() {
	if !h.sorted {
		sort.Float64s(h.scores)
		h.sorted = true
	}
}

// Bins returns the bin dividers and per-bin counts. Bin i holds scores in
// [dividers[i], dividers[i+1]).
func (h *Histogram) Bins() (dividers, counts []float64) {
	if len(h.scores) == 0 {
		return nil, nil
	}
	h.sort()
	lo := math.Floor(floats.Min(h.scores)/h.width) * h.width
	hi := (math.Floor(floats.Max(h.scores)/h.width) + 1) * h.width
	n := int(math.Round((hi - lo) / h.width))
	dividers = make([]float64, n+1)
	floats.Span(dividers, lo, hi)
	return dividers, stat.Histogram(nil, dividers, h.scores, nil)
}

// Survival returns the number of recorded scores at or above s.
func (h *Histogram) Survival(s scoring.Score) int {
	h.sort()
	i := sort.SearchFloat64s(h.scores, float64(s))
	return len(h.scores) - i
}

// Expectation estimates how many candidates would score s or better by chance. The estimate
// extrapolates a log-linear fit to the upper half of the survival curve; ok is false when the
// distribution is too small or not decreasing.
func (h *Histogram) Expectation(s scoring.Score) (e float64, ok bool) {
	dividers, counts := h.Bins()
	if len(counts) < minFitPoints {
		return 0, false
	}

	// survival at each lower bin edge
	surv := make([]float64, len(counts))
	total := 0.0
	for i := len(counts) - 1; i >= 0; i-- {
		total += counts[i]
		surv[i] = total
	}

	var xs, ys []float64
	for i, v := range surv {
		if v > 0 && v <= total/2 {
			xs = append(xs, dividers[i])
			ys = append(ys, math.Log10(v))
		}
	}
	if len(xs) < minFitPoints {
		return 0, false
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	if beta >= 0 || math.IsNaN(beta) {
		return 0, false
	}
	return math.Pow(10, alpha+beta*float64(s)), true
}
