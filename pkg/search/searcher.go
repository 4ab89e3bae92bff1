package search

import (
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/ChrisMcGann/PepMatch/pkg/core"
	"github.com/ChrisMcGann/PepMatch/pkg/ions"
	"github.com/ChrisMcGann/PepMatch/pkg/modengine"
	"github.com/ChrisMcGann/PepMatch/pkg/scoring"
)

// Searcher matches candidate peptides against one spectrum. It owns all scratch state; use one
// per worker and never share it between goroutines.
type Searcher struct {
	env      *Environment
	spectrum *core.Spectrum
	peaks    core.PeakList

	ctx    *modengine.Context
	gen    *ions.Generator
	scorer *scoring.Scorer

	sink ScoreSink
	warn io.Writer

	// Scored counts the candidates scored since the searcher was created.
	Scored int
}

// NewSearcher prepares a searcher for spectrum, which must pass validation.
func (env *Environment) NewSearcher(spectrum *core.Spectrum) (*Searcher, error) {
	if err := spectrum.Validate(); err != nil {
		return nil, err
	}
	return &Searcher{
		env:      env,
		spectrum: spectrum,
		peaks:    spectrum.PeakList(),
		ctx:      env.engine.NewContext(),
		gen: env.ionSet.NewGenerator(ions.Params{
			MaxCharge:       env.maxCharge,
			PrecursorCharge: spectrum.Charge,
			ChargeReduced:   env.chargeReduced,
		}),
		scorer: scoring.NewScorer(env.profile, env.ionSet, env.fragmentTol),
		warn:   os.Stderr,
	}, nil
}

// SetSink sets the statistics sink receiving every candidate score.
func (s *Searcher) SetSink(sink ScoreSink) { s.sink = sink }

// SetWarnings redirects warnings about dropped candidates.
func (s *Searcher) SetWarnings(w io.Writer) { s.warn = w }

// Spectrum returns the spectrum being searched.
func (s *Searcher) Spectrum() *core.Spectrum { return s.spectrum }

// CheckOffset reports whether any modification combination could explain a shift in
// [deltaLow, deltaHigh].
func (s *Searcher) CheckOffset(deltaLow, deltaHigh float64) bool {
	return s.env.CheckOffset(deltaLow, deltaHigh)
}

// DoMatch scores every variant of peptide whose mass lies within the precursor tolerance of
// targetMolWt and returns those scoring at least minScore, best first. nTermProtein and
// cTermProtein report whether the peptide ends are protein ends.
//
// When modification enumeration exceeds its cap the result is nil and the error wraps
// core.ErrTooManyCombinations; callers should move on to the next peptide.
func (s *Searcher) DoMatch(peptide string, nTermProtein, cTermProtein bool, targetMolWt float64, minScore scoring.Score) ([]TagMatch, error) {
	base, err := s.env.masses.PeptideMass(peptide)
	if err != nil {
		return nil, fmt.Errorf("peptide %s: %w", peptide, err)
	}
	tol := s.env.precursorTol.Delta(targetMolWt)
	start := targetMolWt - base - tol
	end := targetMolWt - base + tol

	ranker := NewRanker(minScore, s.env.topK)
	if start <= 0 && end >= 0 {
		s.consider(core.Unmodified(peptide), ranker)
	}
	if !s.env.engine.CheckOffset(start, end) {
		return ranker.Matches(), nil
	}

	if err := s.drain(s.ctx.SingleModifications(peptide, start, end, nTermProtein, cTermProtein), ranker); err != nil {
		return nil, fmt.Errorf("peptide %s: %w", peptide, err)
	}
	multi := s.ctx.MultiModifications(peptide, start, end, nTermProtein, cTermProtein, s.env.engine.MaxLevels())
	if err := s.drain(multi, ranker); err != nil {
		return nil, fmt.Errorf("peptide %s: %w", peptide, err)
	}
	return ranker.Matches(), nil
}

func (s *Searcher) drain(candidates iter.Seq2[*core.ModifiedPeptide, error], ranker *Ranker) error {
	for p, err := range candidates {
		if err != nil {
			return err
		}
		s.consider(p, ranker)
	}
	return nil
}

// consider validates, scores and ranks one candidate.
func (s *Searcher) consider(p *core.ModifiedPeptide, ranker *Ranker) {
	if err := p.Validate(); err != nil {
		if debugChecks {
			panic(fmt.Sprintf("invalid candidate %v: %v", p, err))
		}
		fmt.Fprintf(s.warn, "Warning: dropping candidate %v: %v\n", p, err)
		return
	}
	series, err := s.gen.Generate(p)
	if err != nil {
		fmt.Fprintf(s.warn, "Warning: dropping candidate %v: %v\n", p, err)
		return
	}
	res := s.scorer.Score(series, p.Len(), s.peaks)
	s.Scored++
	if s.sink != nil {
		s.sink.Add(res.Score)
	}
	ranker.Offer(TagMatch{
		Peak:      s.spectrum.PrecursorPeak(),
		Unmatched: res.Unmatched,
		Score:     res.Score,
		Peptide:   p,
	})
}
