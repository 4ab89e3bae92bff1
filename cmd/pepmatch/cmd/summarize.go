package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/ChrisMcGann/PepMatch/pkg/core"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize [file]",
	Short: "Summarize a spectra file",
	Long:  `Print summary statistics about a spectra file including spectrum count, charge states, precursor mass range and peak counts.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := detectFormat(args[0], inputFormat)
		if err != nil {
			return err
		}
		reader, f, err := openSpectra(args[0], format)
		if err != nil {
			return err
		}
		defer f.Close()

		var sum spectraSummary
		for reader.Next() {
			sum.add(reader.Spectrum())
		}
		if err := reader.Err(); err != nil {
			return fmt.Errorf("error reading input file: %w", err)
		}
		sum.print()
		return nil
	},
}

// spectraSummary accumulates per-file statistics
type spectraSummary struct {
	count      int
	annotated  int
	invalid    int
	charges    map[int]int
	masses     []float64
	peakCounts []float64
}

func (s *spectraSummary) add(spec *core.Spectrum) {
	if s.charges == nil {
		s.charges = make(map[int]int)
	}
	s.count++
	s.charges[spec.Charge]++
	if spec.Sequence != "" {
		s.annotated++
	}
	if err := spec.Validate(); err != nil {
		s.invalid++
		return
	}
	s.masses = append(s.masses, spec.NeutralMass())
	s.peakCounts = append(s.peakCounts, float64(len(spec.Peaks)))
}

func (s *spectraSummary) print() {
	fmt.Printf("Spectra: %d\n", s.count)
	if s.count == 0 {
		return
	}
	fmt.Printf("Annotated: %d\n", s.annotated)
	if s.invalid > 0 {
		fmt.Printf("Invalid: %d\n", s.invalid)
	}

	charges := make([]int, 0, len(s.charges))
	for z := range s.charges {
		charges = append(charges, z)
	}
	sort.Ints(charges)
	fmt.Printf("Charge states:\n")
	for _, z := range charges {
		fmt.Printf("  %d+: %d\n", z, s.charges[z])
	}

	if len(s.masses) == 0 {
		return
	}
	sort.Float64s(s.masses)
	sort.Float64s(s.peakCounts)
	fmt.Printf("Neutral mass: %.4f - %.4f (median %.4f)\n",
		s.masses[0], s.masses[len(s.masses)-1], stat.Quantile(0.5, stat.Empirical, s.masses, nil))
	fmt.Printf("Peaks per spectrum: mean %.1f, median %.0f, max %.0f\n",
		stat.Mean(s.peakCounts, nil), stat.Quantile(0.5, stat.Empirical, s.peakCounts, nil), s.peakCounts[len(s.peakCounts)-1])
}

func init() {
	summarizeCmd.Flags().StringVarP(&inputFormat, "from", "f", "", "Spectra format: msp or mgf (auto-detect if not specified)")
}
