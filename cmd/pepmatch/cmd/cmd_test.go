package cmd

import (
	"sort"
	"testing"

	"github.com/spf13/viper"

	"github.com/ChrisMcGann/PepMatch/pkg/config"
	"github.com/ChrisMcGann/PepMatch/pkg/core"
	"github.com/ChrisMcGann/PepMatch/pkg/ions"
	"github.com/ChrisMcGann/PepMatch/pkg/reader/peptides"
	"github.com/ChrisMcGann/PepMatch/pkg/search"
)

func testSetup(t *testing.T) *setup {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	settings, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	settings.PrecursorTolerance = "0.02Da"
	settings.FragmentTolerance = "0.02Da"
	settings.MaxCharge = 1

	cat := config.DefaultCatalog()
	opts, err := settings.SearchOptions(cat)
	if err != nil {
		t.Fatal(err)
	}
	env, err := search.NewEnvironment(opts)
	if err != nil {
		t.Fatal(err)
	}
	return &setup{settings: settings, catalog: cat, env: env}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path    string
		format  string
		want    string
		wantErr bool
	}{
		{"run.mgf", "", "mgf", false},
		{"LIB.MSP", "", "msp", false},
		{"run.txt", "MGF", "mgf", false},
		{"run.txt", "", "", true},
		{"run.mgf", "mzml", "", true},
	}
	for _, tt := range tests {
		got, err := detectFormat(tt.path, tt.format)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("detectFormat(%q, %q) = %q, %v", tt.path, tt.format, got, err)
		}
	}
}

func TestPlaceMods(t *testing.T) {
	st := testSetup(t)
	db := core.DefaultModDatabase()

	mods, err := db.ParseModString("Oxidation@M5;Acetyl@N-term;Carbamidomethyl@C2")
	if err != nil {
		t.Fatal(err)
	}
	placed, err := placeMods(st.env.Catalog(), "ACDEMK", mods)
	if err != nil {
		t.Fatalf("placeMods() error = %v", err)
	}
	pep, err := core.NewModifiedPeptide("ACDEMK", placed)
	if err != nil {
		t.Fatalf("NewModifiedPeptide() error = %v", err)
	}
	if got, want := pep.ModString(), "Acetyl@N-term;Carbamidomethyl@C2;Oxidation@M5"; got != want {
		t.Errorf("ModString() = %q, want %q", got, want)
	}

	// Oxidation and Acetyl come from the catalog, Carbamidomethyl is not in it
	if ox := pep.At(4); ox == nil || ox.Loss != core.LossSOCH4 {
		t.Errorf("oxidation rule = %+v, want catalog rule with SOCH4 loss", ox)
	}
	if cam := pep.At(1); cam == nil || cam.Loss != core.LossNone {
		t.Errorf("carbamidomethyl rule = %+v", cam)
	}

	mods, err = db.ParseModString("Oxidation@M9")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := placeMods(st.env.Catalog(), "ACDEMK", mods); err == nil {
		t.Error("expected error for position past the sequence end")
	}
}

func TestSearchSpectrum(t *testing.T) {
	st := testSetup(t)

	mods, err := core.DefaultModDatabase().ParseModString("Oxidation@M5")
	if err != nil {
		t.Fatal(err)
	}
	placed, err := placeMods(st.env.Catalog(), "PEPTMIDEK", mods)
	if err != nil {
		t.Fatal(err)
	}
	pep, err := core.NewModifiedPeptide("PEPTMIDEK", placed)
	if err != nil {
		t.Fatal(err)
	}

	series, err := st.env.IonSet().NewGenerator(ions.Params{MaxCharge: 1}).Generate(pep)
	if err != nil {
		t.Fatal(err)
	}
	var peaks []core.Peak
	for _, s := range series {
		if s.Label != "b" && s.Label != "y" {
			continue
		}
		for _, ion := range s.Ions {
			peaks = append(peaks, core.Peak{MZ: ion.MZ, Intensity: 100})
		}
	}
	sort.Slice(peaks, func(i, j int) bool { return peaks[i].MZ < peaks[j].MZ })

	base, err := st.env.Masses().PeptideMass("PEPTMIDEK")
	if err != nil {
		t.Fatal(err)
	}
	mass := base + pep.Shift()
	spec := &core.Spectrum{
		Title:       "scan=1",
		Charge:      2,
		PrecursorMZ: (mass + 2*core.ProtonMass) / 2,
		Peaks:       peaks,
	}

	cands := []peptides.Candidate{
		{Sequence: "KEDIMTPEP", Protein: "DECOY_P1"},
		{Sequence: "PEPTMIDEK", Protein: "P1"},
		{Sequence: "PEPTIDEK", Protein: "P2"},
	}
	res, err := searchSpectrum(st, cands, spec)
	if err != nil {
		t.Fatalf("searchSpectrum() error = %v", err)
	}
	if len(res.Matches) == 0 {
		t.Fatal("no matches")
	}
	best := res.Matches[0]
	if best.Peptide.IndexKey() != pep.IndexKey() || best.Protein != "P1" {
		t.Errorf("best match = %v (%s), want %v (P1)", best.Peptide, best.Protein, pep)
	}
	if best.Unmatched != 0 {
		t.Errorf("best match Unmatched = %d, want 0", best.Unmatched)
	}
	if d := best.PeptideMass - mass; d > 1e-6 || d < -1e-6 {
		t.Errorf("PeptideMass = %f, want %f", best.PeptideMass, mass)
	}
	if res.Scored < 2 {
		t.Errorf("Scored = %d, want at least 2", res.Scored)
	}
	for i := 1; i < len(res.Matches); i++ {
		if res.Matches[i].Score > res.Matches[i-1].Score {
			t.Fatalf("matches not sorted at %d", i)
		}
	}
}

func TestSpectraSummary(t *testing.T) {
	var s spectraSummary
	s.add(&core.Spectrum{Charge: 2, PrecursorMZ: 500, Sequence: "PEPTK", Peaks: []core.Peak{{MZ: 100, Intensity: 1}}})
	s.add(&core.Spectrum{Charge: 3, PrecursorMZ: 400, Peaks: []core.Peak{{MZ: 100, Intensity: 1}, {MZ: 200, Intensity: 2}}})
	s.add(&core.Spectrum{Charge: 2, PrecursorMZ: 0})

	if s.count != 3 || s.annotated != 1 || s.invalid != 1 {
		t.Errorf("summary = %d spectra, %d annotated, %d invalid", s.count, s.annotated, s.invalid)
	}
	if s.charges[2] != 2 || s.charges[3] != 1 {
		t.Errorf("charges = %v", s.charges)
	}
	if len(s.masses) != 2 {
		t.Errorf("masses = %v", s.masses)
	}
}
