// Package cmd provides CLI command implementations
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ChrisMcGann/PepMatch/pkg/config"
	"github.com/ChrisMcGann/PepMatch/pkg/search"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "pepmatch",
	Short: "PepMatch - peptide spectrum matching with variable modifications",
	Long: `PepMatch scores candidate peptides against observed MS/MS spectra.

For every candidate it enumerates the placements of the configured variable
modifications that explain the precursor mass, generates theoretical fragment
ions for each placement and keeps the best-scoring matches.

Settings come from flags, PEPMATCH_* environment variables and .pepmatch.yaml.`,
	Version:       "0.3.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default .pepmatch.yaml)")
	flags.String("catalog", "", "modification catalog TOML file (default built-in catalog)")
	flags.String("profile", "ESI-Q-CID", "instrument profile")
	flags.String("precursor-tolerance", "2.5Da", "precursor mass tolerance, e.g. 10ppm or 0.02Da")
	flags.String("fragment-tolerance", "0.5Da", "fragment m/z tolerance")
	flags.Int("max-mod-levels", 3, "maximum modifications per candidate")
	flags.Int("max-charge", 3, "maximum fragment charge")

	bindFlag("catalog", "catalog")
	bindFlag("profile", "profile")
	bindFlag("precursor_tolerance", "precursor-tolerance")
	bindFlag("fragment_tolerance", "fragment-tolerance")
	bindFlag("max_mod_levels", "max-mod-levels")
	bindFlag("max_charge", "max-charge")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(checkOffsetCmd)
	rootCmd.AddCommand(fragmentsCmd)
	rootCmd.AddCommand(modsCmd)
	rootCmd.AddCommand(summarizeCmd)
}

func bindFlag(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".pepmatch")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
	}

	viper.SetEnvPrefix("PEPMATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// It's fine if no config file is found; we use defaults.
	_ = viper.ReadInConfig()
}

// setup is the configuration shared by every command
type setup struct {
	settings config.Settings
	catalog  *config.CatalogFile
	env      *search.Environment
}

// loadSetup resolves settings, reads the catalog and builds the search environment
func loadSetup() (*setup, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, err
	}
	cat, err := config.LoadCatalog(settings.Catalog)
	if err != nil {
		return nil, err
	}
	opts, err := settings.SearchOptions(cat)
	if err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	env, err := search.NewEnvironment(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build search environment: %w", err)
	}
	return &setup{settings: settings, catalog: cat, env: env}, nil
}
