package modengine

import (
	"errors"
	"iter"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ChrisMcGann/PepMatch/pkg/core"
)

var (
	phosphoS  = core.ModificationRule{Name: "Phospho", Residue: 'S', Delta: 79.966331, Loss: core.LossH3PO4}
	phosphoT  = core.ModificationRule{Name: "Phospho", Residue: 'T', Delta: 79.966331, Loss: core.LossH3PO4}
	oxidation = core.ModificationRule{Name: "Oxidation", Residue: 'M', Delta: 15.994915, Loss: core.LossSOCH4}
	deamid    = core.ModificationRule{Name: "Deamidated", Residue: 'N', Delta: 0.984016}
	acetylN   = core.ModificationRule{Name: "Acetyl", Site: core.SiteNTerm, Delta: 42.010565}
	amidC     = core.ModificationRule{Name: "Amidated", Site: core.SiteCTerm, Delta: -0.984016}
	dehydroC  = core.ModificationRule{Name: "Dehydro", Residue: 'C', Delta: -1.007825, Dehydro: true}
	phosLoss  = core.ModificationRule{Name: "PhosphoLoss", Site: core.SiteNeutralLoss, Delta: -97.976896}
)

func mustCatalog(t *testing.T, opts core.CatalogOptions, rules ...core.ModificationRule) *core.Catalog {
	t.Helper()
	c, err := core.NewCatalog(rules, opts)
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	return c
}

func collect(t *testing.T, seq iter.Seq2[*core.ModifiedPeptide, error]) ([]*core.ModifiedPeptide, error) {
	t.Helper()
	var out []*core.ModifiedPeptide
	for p, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
	return out, nil
}

func modStrings(peps []*core.ModifiedPeptide) []string {
	var out []string
	for _, p := range peps {
		out = append(out, p.ModString())
	}
	return out
}

func TestSingleModificationsPhospho(t *testing.T) {
	e := NewEngine(mustCatalog(t, core.CatalogOptions{}, phosphoS), Options{})

	got, err := collect(t, e.SingleModifications("AASPK", 79.0, 81.0, false, false))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	if got[0].At(2) == nil || got[0].At(2).Name != "Phospho" || got[0].NumMods() != 1 {
		t.Errorf("candidate = %v, want Phospho at S3", got[0])
	}
	if math.Abs(got[0].Shift()-79.966331) > 1e-9 {
		t.Errorf("Shift() = %f", got[0].Shift())
	}

	multi, err := collect(t, e.MultiModifications("AASPK", 79.0, 81.0, false, false, 0))
	if err != nil || len(multi) != 0 {
		t.Errorf("MultiModifications() = %v, %v; want none", modStrings(multi), err)
	}

	none, _ := collect(t, e.SingleModifications("AASPK", 81.0, 90.0, false, false))
	if len(none) != 0 {
		t.Errorf("window above the delta yielded %v", modStrings(none))
	}
}

func TestSingleModificationsSpecificity(t *testing.T) {
	acetylProtein := acetylN
	acetylProtein.Specificity = core.ProteinNTerm
	kCTerm := core.ModificationRule{Name: "Methyl", Residue: 'K', Delta: 14.01565, Specificity: core.PeptideCTerm}
	kEnzyme := core.ModificationRule{Name: "Methyl", Residue: 'K', Delta: 14.01565, Specificity: core.EnzymeTerm}
	amidK := amidC
	amidK.Residue = 'K'
	lossM := phosLoss
	lossM.Residue = 'M'
	motifS := phosphoS
	motifS.Motif = &core.Motif{Pattern: "R..S", Offset: 3}

	tests := []struct {
		name     string
		rule     core.ModificationRule
		terminus Terminus
		seq      string
		nTerm    bool
		want     []string
	}{
		{"peptide N-term", acetylN, TerminusNone, "AKAK", false, []string{"Acetyl@N-term"}},
		{"protein N-term off", acetylProtein, TerminusNone, "AKAK", false, nil},
		{"protein N-term on", acetylProtein, TerminusNone, "AKAK", true, []string{"Acetyl@N-term"}},
		{"peptide C-term residue", kCTerm, TerminusNone, "AKAK", false, []string{"Methyl@K4"}},
		{"enzyme term resolved C", kEnzyme, TerminusC, "AKAK", false, []string{"Methyl@K4"}},
		{"enzyme term resolved N", kEnzyme, TerminusN, "AKAK", false, nil},
		{"enzyme term unresolved", kEnzyme, TerminusNone, "AKAK", false, nil},
		{"C-term residue constraint met", amidK, TerminusNone, "AKAK", false, []string{"Amidated@C-term"}},
		{"C-term residue constraint unmet", amidK, TerminusNone, "AKAR", false, nil},
		{"neutral loss needs residue", lossM, TerminusNone, "AAK", false, nil},
		{"neutral loss residue present", lossM, TerminusNone, "AMK", false, []string{"PhosphoLoss@neutral-loss"}},
		{"motif", motifS, TerminusNone, "RAASAS", false, []string{"Phospho@S4"}},
		{"every matching residue", phosphoS, TerminusNone, "SAS", false, []string{"Phospho@S1", "Phospho@S3"}},
		{"empty sequence", phosphoS, TerminusNone, "", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(mustCatalog(t, core.CatalogOptions{}, tt.rule), Options{NonSpecificTerminus: tt.terminus})
			got, err := collect(t, e.SingleModifications(tt.seq, -200, 200, tt.nTerm, false))
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, modStrings(got)); diff != "" {
				t.Errorf("candidates mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDehydroParity(t *testing.T) {
	e := NewEngine(mustCatalog(t, core.CatalogOptions{}, dehydroC), Options{})

	single, _ := collect(t, e.SingleModifications("ACCK", -1.1, -0.9, false, false))
	if len(single) != 0 {
		t.Errorf("lone dehydro emitted: %v", modStrings(single))
	}

	pair, err := collect(t, e.MultiModifications("ACCK", -2.1, -1.9, false, false, 0))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Dehydro@C2;Dehydro@C3"}, modStrings(pair)); diff != "" {
		t.Errorf("pair mismatch (-want +got):\n%s", diff)
	}

	odd, _ := collect(t, e.MultiModifications("ACCCK", -3.1, -2.9, false, false, 3))
	if len(odd) != 0 {
		t.Errorf("odd dehydro count emitted: %v", modStrings(odd))
	}

	pairs, _ := collect(t, e.MultiModifications("ACCCK", -2.1, -1.9, false, false, 3))
	if len(pairs) != 3 {
		t.Errorf("got %d dehydro pairs on three cysteines, want 3", len(pairs))
	}
	for _, p := range pairs {
		dehydro := 0
		for _, m := range p.Mods() {
			if m.Rule.Dehydro {
				dehydro++
			}
		}
		if dehydro%2 != 0 {
			t.Errorf("%v carries %d dehydro rules", p, dehydro)
		}
	}
}

func TestLimitGroup(t *testing.T) {
	s, tr := phosphoS, phosphoT
	s.LimitGroup, tr.LimitGroup = 1, 1

	e := NewEngine(mustCatalog(t, core.CatalogOptions{LimitCaps: map[int]int{1: 1}}, s, tr), Options{})
	got, err := collect(t, e.MultiModifications("ASTK", 159.0, 161.0, false, false, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("cap 1 allowed %v", modStrings(got))
	}

	e = NewEngine(mustCatalog(t, core.CatalogOptions{LimitCaps: map[int]int{1: 2}}, s, tr), Options{})
	got, _ = collect(t, e.MultiModifications("ASTK", 159.0, 161.0, false, false, 0))
	if diff := cmp.Diff([]string{"Phospho@S2;Phospho@T3"}, modStrings(got)); diff != "" {
		t.Errorf("cap 2 mismatch (-want +got):\n%s", diff)
	}
}

func TestLabelGroupConsistency(t *testing.T) {
	labelK := core.ModificationRule{Name: "Label:13C(6)", Residue: 'K', Delta: 6.020129, LabelGroup: 1}
	labelR := core.ModificationRule{Name: "Label:13C(6)15N(4)", Residue: 'R', Delta: 10.008269, LabelGroup: 1}
	acetylK := core.ModificationRule{Name: "Acetyl", Residue: 'K', Delta: 42.010565}
	e := NewEngine(mustCatalog(t, core.CatalogOptions{}, labelK, labelR, acetylK), Options{})

	tests := []struct {
		name   string
		lo, hi float64
		want   int
	}{
		{"labeled and unlabeled on K", 48.0, 48.1, 0},
		{"labels on K and R", 16.0, 16.1, 2},
		{"unlabeled K with labeled R", 52.0, 52.05, 2},
		{"two labeled K", 12.0, 12.1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := collect(t, e.MultiModifications("AKAKR", tt.lo, tt.hi, false, false, 2))
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("got %v, want %d candidates", modStrings(got), tt.want)
			}
		})
	}
}

func TestRareLimit(t *testing.T) {
	methyl := core.ModificationRule{Name: "Methyl", Residue: 'K', Delta: 14.01565, Rare: true}
	sulfo := core.ModificationRule{Name: "Sulfo", Residue: 'Y', Delta: 79.956815, Rare: true}

	e := NewEngine(mustCatalog(t, core.CatalogOptions{}, methyl, sulfo), Options{})
	got, _ := collect(t, e.MultiModifications("KYK", 93.9, 94.0, false, false, 0))
	if len(got) != 0 {
		t.Errorf("rare limit 1 allowed %v", modStrings(got))
	}

	e = NewEngine(mustCatalog(t, core.CatalogOptions{RareLimit: 2}, methyl, sulfo), Options{})
	got, _ = collect(t, e.MultiModifications("KYK", 93.9, 94.0, false, false, 0))
	if len(got) != 2 {
		t.Errorf("rare limit 2 gave %v, want 2 candidates", modStrings(got))
	}
}

func TestSlotCapacity(t *testing.T) {
	offsetA := core.ModificationRule{Name: "Offset1", Residue: 'A', Delta: 3.5, MassOffset: true}
	offsetK := core.ModificationRule{Name: "Offset2", Residue: 'K', Delta: 4.5, MassOffset: true}
	propionylN := core.ModificationRule{Name: "Propionyl", Site: core.SiteNTerm, Delta: 56.026215}

	tests := []struct {
		name   string
		rules  []core.ModificationRule
		seq    string
		lo, hi float64
		want   int
	}{
		{"two mass offsets", []core.ModificationRule{offsetA, offsetK}, "AK", 7.9, 8.1, 0},
		{"two N-term rules", []core.ModificationRule{acetylN, propionylN}, "AK", 98.0, 98.1, 0},
		{"N-term with residue", []core.ModificationRule{acetylN, oxidation}, "MK", 57.9, 58.1, 1},
		{"no residue twice", []core.ModificationRule{phosphoS}, "AS", 159.0, 161.0, 0},
		{"both termini", []core.ModificationRule{acetylN, amidC}, "AK", 40.9, 41.1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(mustCatalog(t, core.CatalogOptions{}, tt.rules...), Options{})
			got, err := collect(t, e.MultiModifications(tt.seq, tt.lo, tt.hi, false, false, 0))
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("got %v, want %d candidates", modStrings(got), tt.want)
			}
		})
	}
}

func TestMultiModificationsShiftAndUniqueness(t *testing.T) {
	e := NewEngine(mustCatalog(t, core.CatalogOptions{}, oxidation, phosphoS, phosphoT, acetylN, deamid), Options{})

	got, err := collect(t, e.MultiModifications("MSMTNMK", -10, 300, false, false, 3))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 {
		t.Fatal("no candidates")
	}

	seen := make(map[string]bool)
	for _, p := range got {
		if err := p.Validate(); err != nil {
			t.Errorf("%v: %v", p, err)
		}
		sum := 0.0
		for _, m := range p.Mods() {
			sum += m.Rule.Delta
		}
		if math.Abs(sum-p.Shift()) > core.ShiftEpsilon {
			t.Errorf("%v: shift %f, rules sum to %f", p, p.Shift(), sum)
		}
		if p.NumMods() < 2 || p.NumMods() > 3 {
			t.Errorf("%v: %d modifications", p, p.NumMods())
		}
		if seen[p.ModString()] {
			t.Errorf("duplicate candidate %v", p)
		}
		seen[p.ModString()] = true
	}

	ox, _ := collect(t, e.MultiModifications("MSMTNMK", 31.9, 32.0, false, false, 3))
	if diff := cmp.Diff([]string{
		"Oxidation@M1;Oxidation@M3",
		"Oxidation@M1;Oxidation@M6",
		"Oxidation@M3;Oxidation@M6",
	}, modStrings(ox)); diff != "" {
		t.Errorf("double oxidation mismatch (-want +got):\n%s", diff)
	}
}

func TestTooManyCombinations(t *testing.T) {
	e := NewEngine(mustCatalog(t, core.CatalogOptions{}, oxidation), Options{MaxCombinations: 5})

	got, err := collect(t, e.MultiModifications("MMMMMMMMK", 0, 100, false, false, 3))
	if !errors.Is(err, core.ErrTooManyCombinations) {
		t.Fatalf("error = %v, want ErrTooManyCombinations", err)
	}
	if len(got) != 5 {
		t.Errorf("emitted %d candidates before failing, want 5", len(got))
	}

	got, err = collect(t, e.MultiModifications("MMMK", 0, 100, false, false, 3))
	if err != nil || len(got) != 4 {
		t.Errorf("under the cap: %d candidates, err %v; want 4, nil", len(got), err)
	}
}

func TestEarlyBreakLeavesContextReusable(t *testing.T) {
	e := NewEngine(mustCatalog(t, core.CatalogOptions{}, oxidation, phosphoS), Options{})
	ctx := e.NewContext()

	for range ctx.MultiModifications("MMSMSK", 0, 300, false, false, 3) {
		break
	}

	full, err := collect(t, ctx.MultiModifications("MMSMSK", 0, 300, false, false, 3))
	if err != nil {
		t.Fatal(err)
	}
	fresh, _ := collect(t, e.MultiModifications("MMSMSK", 0, 300, false, false, 3))
	if diff := cmp.Diff(modStrings(fresh), modStrings(full)); diff != "" {
		t.Errorf("reused context mismatch (-fresh +reused):\n%s", diff)
	}
}

func TestCheckOffsetAgreement(t *testing.T) {
	rules := []core.ModificationRule{oxidation, phosphoS, phosphoT, deamid, acetylN, amidC, dehydroC, phosLoss}
	cat := mustCatalog(t, core.CatalogOptions{}, rules...)

	// every residue rule can apply up to three times, every terminal slot is present
	const seq = "MMMSSSTTTNNNCCCK"

	for _, limit := range []int{0, 1} {
		e := NewEngine(cat, Options{MaxLevels: 3, OffsetTableLimit: limit})
		ctx := e.NewContext()
		for lo := -120.0; lo < 260.0; lo += 0.25 {
			hi := lo + 0.25
			enumerated := false
			for range ctx.SingleModifications(seq, lo, hi, true, true) {
				enumerated = true
				break
			}
			if !enumerated {
				for _, err := range ctx.MultiModifications(seq, lo, hi, true, true, 3) {
					if err != nil {
						t.Fatal(err)
					}
					enumerated = true
					break
				}
			}
			if got := e.CheckOffset(lo, hi); got != enumerated {
				t.Fatalf("limit %d: CheckOffset(%.2f, %.2f) = %v, enumeration found candidates = %v", limit, lo, hi, got, enumerated)
			}
		}
	}
}

func TestCheckOffsetEmptyWindow(t *testing.T) {
	e := NewEngine(mustCatalog(t, core.CatalogOptions{}, phosphoS), Options{})
	if e.CheckOffset(81, 79) {
		t.Error("inverted window reported a match")
	}
	if !e.CheckOffset(79, 81) {
		t.Error("phospho window not found")
	}
	if !e.CheckOffset(159, 161) {
		t.Error("double phospho window not found")
	}
	if e.CheckOffset(100, 150) {
		t.Error("window between combinations reported a match")
	}
}
