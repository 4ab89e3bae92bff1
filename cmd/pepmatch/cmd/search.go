package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/PepMatch/pkg/core"
	"github.com/ChrisMcGann/PepMatch/pkg/filter"
	"github.com/ChrisMcGann/PepMatch/pkg/reader/mgf"
	"github.com/ChrisMcGann/PepMatch/pkg/reader/msp"
	"github.com/ChrisMcGann/PepMatch/pkg/reader/peptides"
	"github.com/ChrisMcGann/PepMatch/pkg/scoring"
	"github.com/ChrisMcGann/PepMatch/pkg/search"
	"github.com/ChrisMcGann/PepMatch/pkg/stats"
	"github.com/ChrisMcGann/PepMatch/pkg/writer/sqlite"
)

var (
	// Flags for search command
	spectraFile   string
	inputFormat   string
	peptideFile   string
	outputFile    string
	description   string
	threads       int
	chunkSize     int
	skipFiltering bool
)

func init() {
	searchCmd.Flags().StringVarP(&spectraFile, "in", "i", "", "Spectra file path (required)")
	searchCmd.Flags().StringVarP(&inputFormat, "from", "f", "", "Spectra format: msp or mgf (auto-detect if not specified)")
	searchCmd.Flags().StringVarP(&peptideFile, "peptides", "p", "", "Candidate peptide list (required)")
	searchCmd.Flags().StringVarP(&outputFile, "out", "o", "", "Output database file (print a summary if not specified)")
	searchCmd.Flags().StringVar(&description, "description", "", "Description stored in the output header")
	searchCmd.Flags().IntVar(&threads, "threads", runtime.NumCPU(), "Number of worker threads")
	searchCmd.Flags().IntVar(&chunkSize, "chunk-size", 1000, "Spectra searched per batch")
	searchCmd.Flags().BoolVar(&skipFiltering, "no-filter", false, "Search raw peak lists without preprocessing")

	searchCmd.MarkFlagRequired("in")
	searchCmd.MarkFlagRequired("peptides")
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Match candidate peptides against observed spectra",
	Long: `Search every spectrum in an MSP or MGF file against a list of candidate peptides.

The peptide list holds one candidate per line:
  sequence[,protein_nterm,protein_cterm[,protein]]

Examples:
  # Search with the built-in catalog and write results to SQLite
  pepmatch search --in run.mgf --peptides candidates.csv --out matches.db

  # Custom catalog, tighter tolerances, 8 workers
  pepmatch search -i run.msp -p candidates.csv --catalog mods.toml \
    --precursor-tolerance 10ppm --fragment-tolerance 0.02Da --threads 8`,
	RunE: runSearch,
}

// spectrumReader is the streaming interface shared by the spectra readers
type spectrumReader interface {
	Next() bool
	Spectrum() *core.Spectrum
	Err() error
}

// spectrumResult is the outcome of searching one spectrum
type spectrumResult struct {
	index   int
	result  sqlite.Result
	skipped bool
}

func detectFormat(path, format string) (string, error) {
	if format == "" {
		ext := strings.ToLower(filepath.Ext(path))
		switch ext {
		case ".msp":
			format = "msp"
		case ".mgf":
			format = "mgf"
		default:
			return "", fmt.Errorf("cannot auto-detect format from extension '%s', please specify --from", ext)
		}
	}
	format = strings.ToLower(format)
	if format != "msp" && format != "mgf" {
		return "", fmt.Errorf("invalid input format '%s', must be msp or mgf", format)
	}
	return format, nil
}

// openSpectra opens path with the reader for format. The caller closes the returned file.
func openSpectra(path, format string) (spectrumReader, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open spectra file: %w", err)
	}
	if format == "mgf" {
		return mgf.NewReader(f), f, nil
	}
	return msp.NewReader(f), f, nil
}

func loadCandidates(path string) ([]peptides.Candidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open peptide list: %w", err)
	}
	defer f.Close()

	cands, err := peptides.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read peptide list %s: %w", path, err)
	}
	return cands, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	format, err := detectFormat(spectraFile, inputFormat)
	if err != nil {
		return err
	}
	if threads < 1 {
		threads = 1
	}
	if chunkSize < 1 {
		return fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}

	st, err := loadSetup()
	if err != nil {
		return err
	}
	cands, err := loadCandidates(peptideFile)
	if err != nil {
		return err
	}

	filterConfig := &filter.Config{
		TopN:            st.settings.Filter.TopN,
		IntensityCutoff: st.settings.Filter.Cutoff,
		PrecursorWindow: st.settings.Filter.PrecursorWindow,
	}
	if err := filterConfig.Validate(); err != nil {
		return fmt.Errorf("invalid filter settings: %w", err)
	}

	reader, inFile, err := openSpectra(spectraFile, format)
	if err != nil {
		return err
	}
	defer inFile.Close()

	var writer *sqlite.Writer
	if outputFile != "" {
		writer, err = sqlite.NewWriter(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output database: %w", err)
		}
		defer func() {
			if writer != nil {
				writer.Close()
			}
		}()
		writer.SetHeader(sqlite.Header{
			Description:        description,
			Profile:            st.env.Profile().Name(),
			PrecursorTolerance: st.settings.PrecursorTolerance,
			FragmentTolerance:  st.settings.FragmentTolerance,
			Catalog:            catalogText(st.env.Catalog()),
		})
	}

	fmt.Printf("Searching %s against %d candidates...\n", spectraFile, len(cands))
	fmt.Printf("Format: %s\n", format)
	fmt.Printf("Profile: %s\n", st.env.Profile().Name())
	fmt.Printf("Catalog: %d rules\n", st.env.Catalog().Len())
	fmt.Printf("Threads: %d\n", threads)

	count, skipped, matched := 0, 0, 0
	chunk := make([]*core.Spectrum, 0, chunkSize)

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		results, err := searchChunk(st, cands, chunk, !skipFiltering, filterConfig)
		if err != nil {
			return err
		}
		for _, r := range results {
			if r.skipped {
				skipped++
				continue
			}
			count++
			if len(r.result.Matches) > 0 {
				matched++
			}
			if writer != nil {
				if err := writer.WriteResult(r.result); err != nil {
					return fmt.Errorf("failed to write spectrum %s: %w", r.result.Spectrum.Name(), err)
				}
			} else {
				printResult(r.result)
			}
		}
		fmt.Printf("Processed %d spectra...\n", count+skipped)
		chunk = chunk[:0]
		return nil
	}

	for reader.Next() {
		chunk = append(chunk, reader.Spectrum())
		if len(chunk) == chunkSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := reader.Err(); err != nil {
		return fmt.Errorf("error reading input file: %w", err)
	}
	if err := flush(); err != nil {
		return err
	}

	if writer != nil {
		if err := writer.Finalize(); err != nil {
			return fmt.Errorf("failed to finalize database: %w", err)
		}
		writer = nil
	}

	fmt.Printf("\nSearch complete!\n")
	fmt.Printf("Searched: %d spectra\n", count)
	fmt.Printf("With matches: %d spectra\n", matched)
	if skipped > 0 {
		fmt.Printf("Skipped: %d spectra (validation errors)\n", skipped)
	}
	if outputFile != "" {
		fmt.Printf("Output: %s\n", outputFile)
	}
	return nil
}

// searchChunk searches a batch of spectra on a bounded worker pool and returns the results in
// input order.
func searchChunk(st *setup, cands []peptides.Candidate, chunk []*core.Spectrum, applyFilter bool, fc *filter.Config) ([]spectrumResult, error) {
	p := pool.NewWithResults[spectrumResult]().WithErrors().WithMaxGoroutines(threads)
	for i, spec := range chunk {
		p.Go(func() (spectrumResult, error) {
			if applyFilter {
				if err := fc.Apply(spec); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to filter spectrum %s: %v\n", spec.Name(), err)
					return spectrumResult{index: i, skipped: true}, nil
				}
			}
			res, err := searchSpectrum(st, cands, spec)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: invalid spectrum %s: %v\n", spec.Name(), err)
				return spectrumResult{index: i, skipped: true}, nil
			}
			return spectrumResult{index: i, result: res}, nil
		})
	}
	results, err := p.Wait()
	if err != nil {
		return nil, err
	}
	sort.Slice(results, func(a, b int) bool { return results[a].index < results[b].index })
	return results, nil
}

// searchSpectrum runs DoMatch for every candidate against spec and merges the per-peptide
// matches into one ranked list.
func searchSpectrum(st *setup, cands []peptides.Candidate, spec *core.Spectrum) (sqlite.Result, error) {
	searcher, err := st.env.NewSearcher(spec)
	if err != nil {
		return sqlite.Result{}, err
	}
	hist := stats.NewHistogram(stats.DefaultBinWidth)
	searcher.SetSink(hist)

	minScore := scoring.Score(st.settings.MinScore)
	ranker := search.NewRanker(minScore, st.settings.TopK)
	proteins := make(map[string]string)
	target := spec.NeutralMass()

	for _, c := range cands {
		matches, err := searcher.DoMatch(c.Sequence, c.ProteinNTerm, c.ProteinCTerm, target, minScore)
		if err != nil {
			if errors.Is(err, core.ErrTooManyCombinations) {
				fmt.Fprintf(os.Stderr, "Warning: spectrum %s: %v, skipping peptide\n", spec.Name(), err)
			} else {
				fmt.Fprintf(os.Stderr, "Warning: spectrum %s: %v\n", spec.Name(), err)
			}
			continue
		}
		for _, m := range matches {
			key := m.Peptide.IndexKey()
			if ranker.Offer(m) {
				if _, ok := proteins[key]; !ok {
					proteins[key] = c.Protein
				}
			}
		}
	}

	res := sqlite.Result{Spectrum: spec, Scored: searcher.Scored}
	for _, m := range ranker.Matches() {
		base, err := st.env.Masses().PeptideMass(m.Peptide.Sequence())
		if err != nil {
			return sqlite.Result{}, err
		}
		out := sqlite.Match{
			TagMatch:    m,
			Protein:     proteins[m.Peptide.IndexKey()],
			PeptideMass: base + m.Peptide.Shift(),
		}
		if e, ok := hist.Expectation(m.Score); ok {
			out.Expectation = &e
		}
		res.Matches = append(res.Matches, out)
	}
	return res, nil
}

// catalogText lists the catalog one rule per line
func catalogText(cat *core.Catalog) string {
	var sb strings.Builder
	for i := 0; i < cat.Len(); i++ {
		r := cat.Rule(i)
		fmt.Fprintf(&sb, "%s\t%.6f\n", r, r.Delta)
	}
	return sb.String()
}

func printResult(res sqlite.Result) {
	spec := res.Spectrum
	if len(res.Matches) == 0 {
		fmt.Printf("%s\tz=%d\tM=%.4f\tscored=%d\tno match\n", spec.Name(), spec.Charge, spec.NeutralMass(), res.Scored)
		return
	}
	for rank, m := range res.Matches {
		expect := "-"
		if m.Expectation != nil {
			expect = fmt.Sprintf("%.3g", *m.Expectation)
		}
		fmt.Printf("%s\t%d\t%s\t%.2f\t%d\t%s\t%s\n", spec.Name(), rank+1, m.Peptide, float64(m.Score), m.Unmatched, expect, m.Protein)
	}
}
