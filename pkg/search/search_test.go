package search

import (
	"bytes"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ChrisMcGann/PepMatch/pkg/core"
	"github.com/ChrisMcGann/PepMatch/pkg/ions"
	"github.com/ChrisMcGann/PepMatch/pkg/modengine"
	"github.com/ChrisMcGann/PepMatch/pkg/scoring"
)

var (
	phosphoS  = core.ModificationRule{Name: "Phospho", Residue: 'S', Delta: 79.966331, Loss: core.LossH3PO4}
	phosphoT  = core.ModificationRule{Name: "Phospho", Residue: 'T', Delta: 79.966331, Loss: core.LossH3PO4}
	oxidation = core.ModificationRule{Name: "Oxidation", Residue: 'M', Delta: 15.994915, Loss: core.LossSOCH4}
)

func testEnv(t *testing.T, engine modengine.Options, rules ...core.ModificationRule) *Environment {
	t.Helper()
	cat, err := core.NewCatalog(rules, core.CatalogOptions{})
	if err != nil {
		t.Fatal(err)
	}
	prof, err := scoring.BuiltinProfile("ESI-Q-CID")
	if err != nil {
		t.Fatal(err)
	}
	env, err := NewEnvironment(Options{
		Catalog:            cat,
		Engine:             engine,
		Profile:            prof,
		PrecursorTolerance: scoring.Tolerance{Value: 0.02},
		FragmentTolerance:  scoring.Tolerance{Value: 0.02},
		MaxCharge:          1,
	})
	if err != nil {
		t.Fatalf("NewEnvironment() error = %v", err)
	}
	return env
}

// spectrumFor builds a spectrum holding the singly charged b and y ions of pep.
func spectrumFor(t *testing.T, env *Environment, pep *core.ModifiedPeptide, charge int) (*core.Spectrum, float64) {
	t.Helper()
	series, err := env.IonSet().NewGenerator(ions.Params{MaxCharge: 1}).Generate(pep)
	if err != nil {
		t.Fatal(err)
	}
	var peaks []core.Peak
	for _, s := range series {
		if s.Label != "b" && s.Label != "y" {
			continue
		}
		for _, ion := range s.Ions {
			peaks = append(peaks, core.Peak{MZ: ion.MZ, Intensity: 1000})
		}
	}
	sort.Slice(peaks, func(i, j int) bool { return peaks[i].MZ < peaks[j].MZ })

	base, err := env.Masses().PeptideMass(pep.Sequence())
	if err != nil {
		t.Fatal(err)
	}
	mass := base + pep.Shift()
	return &core.Spectrum{
		Title:       "synthetic",
		Charge:      charge,
		PrecursorMZ: (mass + float64(charge)*core.ProtonMass) / float64(charge),
		Peaks:       peaks,
	}, mass
}

func TestDoMatchLocalisesPhospho(t *testing.T) {
	env := testEnv(t, modengine.Options{}, phosphoS, phosphoT)
	rule := env.Catalog().Rule(0)
	truth, err := core.NewModifiedPeptide("AASPTK", []core.AppliedMod{{Slot: core.Position(2), Rule: rule}})
	if err != nil {
		t.Fatal(err)
	}
	spec, mass := spectrumFor(t, env, truth, 2)

	s, err := env.NewSearcher(spec)
	if err != nil {
		t.Fatal(err)
	}
	matches, err := s.DoMatch("AASPTK", false, false, mass, 0)
	if err != nil {
		t.Fatalf("DoMatch() error = %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2 (S3 and T5)", len(matches))
	}
	if got := matches[0].Peptide.ModString(); got != "Phospho@S3" {
		t.Errorf("best match = %s, want Phospho@S3", got)
	}
	if matches[0].Score <= matches[1].Score {
		t.Errorf("best score %v not above runner-up %v", matches[0].Score, matches[1].Score)
	}
	if matches[0].Unmatched != 0 {
		t.Errorf("best match has %d unmatched b/y ions", matches[0].Unmatched)
	}
	if matches[0].Peak.MZ != spec.PrecursorMZ || matches[0].Peak.Charge != 2 {
		t.Errorf("match peak = %+v", matches[0].Peak)
	}

	high, err := s.DoMatch("AASPTK", false, false, mass, matches[1].Score+0.001)
	if err != nil {
		t.Fatal(err)
	}
	if len(high) != 1 {
		t.Errorf("minScore kept %d matches, want 1", len(high))
	}
}

func TestDoMatchUnmodified(t *testing.T) {
	env := testEnv(t, modengine.Options{}, phosphoS)
	spec, mass := spectrumFor(t, env, core.Unmodified("PEPTIDEK"), 2)

	s, err := env.NewSearcher(spec)
	if err != nil {
		t.Fatal(err)
	}
	matches, err := s.DoMatch("PEPTIDEK", true, false, mass, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Peptide.NumMods() != 0 {
		t.Fatalf("matches = %v, want the unmodified peptide", matches)
	}
	if s.Scored != 1 {
		t.Errorf("Scored = %d, want 1", s.Scored)
	}

	none, err := s.DoMatch("PEPTIDEK", true, false, mass+40, 0)
	if err != nil || len(none) != 0 {
		t.Errorf("unexplained offset gave %v, %v", none, err)
	}
}

func TestDoMatchTooManyCombinations(t *testing.T) {
	env := testEnv(t, modengine.Options{MaxCombinations: 2}, oxidation)
	spec, _ := spectrumFor(t, env, core.Unmodified("MMMMK"), 2)
	base, _ := env.Masses().PeptideMass("MMMMK")

	s, err := env.NewSearcher(spec)
	if err != nil {
		t.Fatal(err)
	}
	matches, err := s.DoMatch("MMMMK", false, false, base+2*oxidation.Delta, 0)
	if !errors.Is(err, core.ErrTooManyCombinations) {
		t.Fatalf("DoMatch() error = %v, want ErrTooManyCombinations", err)
	}
	if matches != nil {
		t.Errorf("matches = %v, want nil", matches)
	}

	// the searcher keeps working for the next peptide
	base, _ = env.Masses().PeptideMass("MK")
	if _, err := s.DoMatch("MK", false, false, base+oxidation.Delta, 0); err != nil {
		t.Errorf("next peptide error = %v", err)
	}
}

type countingSink struct{ scores []scoring.Score }

func (c *countingSink) Add(s scoring.Score) { c.scores = append(c.scores, s) }

func TestDoMatchSink(t *testing.T) {
	env := testEnv(t, modengine.Options{}, oxidation)
	spec, _ := spectrumFor(t, env, core.Unmodified("AMAMK"), 2)
	base, _ := env.Masses().PeptideMass("AMAMK")

	s, err := env.NewSearcher(spec)
	if err != nil {
		t.Fatal(err)
	}
	sink := &countingSink{}
	s.SetSink(sink)
	matches, err := s.DoMatch("AMAMK", false, false, base+oxidation.Delta, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("minScore 1000 kept %d matches", len(matches))
	}
	if len(sink.scores) != 2 || s.Scored != 2 {
		t.Errorf("sink saw %d scores, Scored = %d; want 2", len(sink.scores), s.Scored)
	}
}

func TestDoMatchUnknownResidue(t *testing.T) {
	env := testEnv(t, modengine.Options{}, oxidation)
	spec, _ := spectrumFor(t, env, core.Unmodified("AMK"), 2)
	s, _ := env.NewSearcher(spec)
	if _, err := s.DoMatch("AZK", false, false, 300, 0); err == nil {
		t.Error("expected error for unknown residue")
	}
}

func TestConsiderDropsInconsistentCandidate(t *testing.T) {
	if debugChecks {
		t.Skip("invariant violations panic in debug builds")
	}
	env := testEnv(t, modengine.Options{}, phosphoS)
	spec, _ := spectrumFor(t, env, core.Unmodified("AASPK"), 2)
	s, _ := env.NewSearcher(spec)
	var warn bytes.Buffer
	s.SetWarnings(&warn)

	bad := core.AssemblePeptide("AASPK", []core.AppliedMod{{Slot: core.Position(2), Rule: env.Catalog().Rule(0)}}, 1.0)
	r := NewRanker(0, 0)
	s.consider(bad, r)

	if r.Len() != 0 {
		t.Error("inconsistent candidate was ranked")
	}
	if !strings.Contains(warn.String(), "Warning: dropping candidate") {
		t.Errorf("warning = %q", warn.String())
	}
	if s.Scored != 0 {
		t.Errorf("Scored = %d, want 0", s.Scored)
	}
}

func TestNewSearcherRejectsInvalidSpectrum(t *testing.T) {
	env := testEnv(t, modengine.Options{}, phosphoS)
	if _, err := env.NewSearcher(&core.Spectrum{Charge: 2, PrecursorMZ: 500}); err == nil {
		t.Error("expected error for a spectrum without peaks")
	}
}

func TestNewEnvironmentValidation(t *testing.T) {
	prof, _ := scoring.BuiltinProfile("ESI-Q-CID")
	cat, _ := core.NewCatalog(nil, core.CatalogOptions{})

	if _, err := NewEnvironment(Options{Profile: prof}); err == nil {
		t.Error("expected error without catalog")
	}
	if _, err := NewEnvironment(Options{Catalog: cat}); err == nil {
		t.Error("expected error without profile")
	}
	env, err := NewEnvironment(Options{Catalog: cat, Profile: prof})
	if err != nil {
		t.Fatal(err)
	}
	if env.CheckOffset(-1, 1) {
		t.Error("empty catalog explains an offset")
	}
}

func match(seq string, score scoring.Score) TagMatch {
	return TagMatch{Score: score, Peptide: core.Unmodified(seq)}
}

func sequences(ms []TagMatch) []string {
	var out []string
	for _, m := range ms {
		out = append(out, m.Peptide.Sequence())
	}
	return out
}

func TestRanker(t *testing.T) {
	tests := []struct {
		name     string
		minScore scoring.Score
		topK     int
		offers   []TagMatch
		want     []string
	}{
		{
			name:     "min score",
			minScore: 2,
			offers:   []TagMatch{match("AAA", 1), match("CCC", 2), match("DDD", 3)},
			want:     []string{"DDD", "CCC"},
		},
		{
			name:   "duplicates keep one",
			offers: []TagMatch{match("AAA", 1), match("AAA", 5), match("AAA", 2)},
			want:   []string{"AAA"},
		},
		{
			name:   "ties keep arrival order",
			offers: []TagMatch{match("AAA", 1), match("CCC", 1), match("DDD", 1)},
			want:   []string{"AAA", "CCC", "DDD"},
		},
		{
			name:   "top K",
			topK:   2,
			offers: []TagMatch{match("AAA", 1), match("CCC", 4), match("DDD", 2), match("EEE", 3)},
			want:   []string{"CCC", "EEE"},
		},
		{
			name:   "top K tie does not evict earlier",
			topK:   2,
			offers: []TagMatch{match("AAA", 2), match("CCC", 2), match("DDD", 2)},
			want:   []string{"AAA", "CCC"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRanker(tt.minScore, tt.topK)
			for _, m := range tt.offers {
				r.Offer(m)
			}
			if diff := cmp.Diff(tt.want, sequences(r.Matches())); diff != "" {
				t.Errorf("Matches() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	r := NewRanker(0, 0)
	r.Offer(match("AAA", 1))
	r.Offer(match("AAA", 5))
	if got := r.Matches()[0].Score; got != 5 {
		t.Errorf("duplicate kept score %v, want the better 5", got)
	}
}
