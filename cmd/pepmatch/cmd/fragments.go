package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/PepMatch/pkg/core"
	"github.com/ChrisMcGann/PepMatch/pkg/ions"
)

var (
	// Flags for fragments command
	fragSequence   string
	fragMods       string
	fragCharge     int
	customModsFile string
)

func init() {
	fragmentsCmd.Flags().StringVarP(&fragSequence, "sequence", "s", "", "Peptide sequence (required)")
	fragmentsCmd.Flags().StringVarP(&fragMods, "mods", "m", "", "Modifications, e.g. 'Oxidation@M3;Acetyl@N-term'")
	fragmentsCmd.Flags().IntVarP(&fragCharge, "charge", "z", 2, "Precursor charge")
	fragmentsCmd.Flags().StringVar(&customModsFile, "custom-mods", "unimod_custom.csv", "CSV of extra modification names and masses (mod,massshift)")

	fragmentsCmd.MarkFlagRequired("sequence")
}

var fragmentsCmd = &cobra.Command{
	Use:   "fragments",
	Short: "Print the theoretical fragment ions of a peptide",
	Long: `Print the precursor m/z and every theoretical fragment ion the configured
instrument profile scores for one peptide.

Modifications are named from the Unimod table (or --custom-mods) and placed
with @ followed by a residue and 1-based position, N-term or C-term.
Named modifications that match a catalog rule carry that rule's fragment losses.

Examples:
  pepmatch fragments --sequence PEPTMIDEK --mods 'Oxidation@M5' --charge 2
  pepmatch fragments -s AASPTK -m 'Phospho@S3;Acetyl@N-term' --profile ETD`,
	RunE: runFragments,
}

// loadModDatabase returns the Unimod table extended with path when the file exists
func loadModDatabase(path string) *core.ModDatabase {
	modDB := core.DefaultModDatabase()
	if path == "" {
		return modDB
	}
	if _, err := os.Stat(path); err != nil {
		return modDB
	}
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to open %s: %v\n", path, err)
		return modDB
	}
	defer f.Close()
	if err := modDB.LoadFromCSV(f); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load %s: %v\n", path, err)
	}
	return modDB
}

// placeMods converts parsed modifications into slots on seq. A modification whose name and
// site match a catalog rule uses that rule; any other becomes a plain mass shift.
func placeMods(cat *core.Catalog, seq string, mods []core.Modification) ([]core.AppliedMod, error) {
	placed := make([]core.AppliedMod, 0, len(mods))
	for _, m := range mods {
		want := core.ModificationRule{Name: m.Name, Delta: m.Mass, Specificity: core.AnyPosition}
		var slot core.ModSlot
		switch {
		case m.Position == core.NTermPosition:
			slot = core.NTermSlot
			want.Site = core.SiteNTerm
		case m.Position == core.CTermPosition:
			slot = core.CTermSlot
			want.Site = core.SiteCTerm
		case m.Position >= 0 && m.Position < len(seq):
			slot = core.Position(m.Position)
			want.Residue = seq[m.Position]
		default:
			return nil, fmt.Errorf("modification %s: position %d is outside %s", m.Name, m.Position+1, seq)
		}
		placed = append(placed, core.AppliedMod{Slot: slot, Rule: findRule(cat, want)})
	}
	return placed, nil
}

func findRule(cat *core.Catalog, want core.ModificationRule) *core.ModificationRule {
	for i := 0; i < cat.Len(); i++ {
		r := cat.Rule(i)
		if r.Name != want.Name || r.Site != want.Site {
			continue
		}
		if want.Site == core.SiteResidue && r.Residue != want.Residue {
			continue
		}
		return r
	}
	return &want
}

func runFragments(cmd *cobra.Command, args []string) error {
	seq := strings.ToUpper(strings.TrimSpace(fragSequence))
	if fragCharge < 1 {
		return fmt.Errorf("charge must be positive, got %d", fragCharge)
	}

	st, err := loadSetup()
	if err != nil {
		return err
	}

	mods, err := loadModDatabase(customModsFile).ParseModString(fragMods)
	if err != nil {
		return fmt.Errorf("invalid modifications: %w", err)
	}
	placed, err := placeMods(st.env.Catalog(), seq, mods)
	if err != nil {
		return err
	}
	pep, err := core.NewModifiedPeptide(seq, placed)
	if err != nil {
		return err
	}

	base, err := st.env.Masses().PeptideMass(seq)
	if err != nil {
		return err
	}
	fmt.Printf("Peptide: %s\n", pep)
	fmt.Printf("Neutral mass: %.4f\n", core.RoundFloat(base+pep.Shift(), 4))
	for z := 1; z <= fragCharge; z++ {
		fmt.Printf("Precursor m/z (%d+): %.4f\n", z, core.RoundFloat(core.CalculatePeptideMass(seq, z, mods), 4))
	}

	gen := st.env.IonSet().NewGenerator(ions.Params{
		MaxCharge:       st.settings.MaxCharge,
		PrecursorCharge: fragCharge,
		ChargeReduced:   st.settings.ChargeReduced,
	})
	series, err := gen.Generate(pep)
	if err != nil {
		return fmt.Errorf("failed to generate fragments: %w", err)
	}

	fmt.Printf("\nIon\tCharge\tPosition\tm/z\n")
	for _, s := range series {
		for _, ion := range s.Ions {
			fmt.Printf("%s\t%d\t%d\t%.4f\n", s.Label, s.Charge, ion.Position, core.RoundFloat(ion.MZ, 4))
		}
	}
	return nil
}
