// Package config loads PepMatch search settings and modification catalog files.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/ChrisMcGann/PepMatch/pkg/modengine"
	"github.com/ChrisMcGann/PepMatch/pkg/scoring"
	"github.com/ChrisMcGann/PepMatch/pkg/search"
)

// FilterSettings holds peak preprocessing options.
type FilterSettings struct {
	TopN            int     `mapstructure:"top_n"`
	Cutoff          float64 `mapstructure:"cutoff"`
	PrecursorWindow float64 `mapstructure:"precursor_window"`
}

// Settings holds all runtime configuration for a search.
// Values are populated from .pepmatch.yaml, PEPMATCH_* env vars, and CLI flags.
type Settings struct {
	Profile             string         `mapstructure:"profile"`
	PrecursorTolerance  string         `mapstructure:"precursor_tolerance"`
	FragmentTolerance   string         `mapstructure:"fragment_tolerance"`
	MaxModLevels        int            `mapstructure:"max_mod_levels"`
	MaxCombinations     int            `mapstructure:"max_combinations"`
	RareLimit           int            `mapstructure:"rare_limit"`
	MaxCharge           int            `mapstructure:"max_charge"`
	ChargeReduced       bool           `mapstructure:"charge_reduced"`
	NonSpecificTerminus string         `mapstructure:"non_specific_terminus"`
	TopK                int            `mapstructure:"top_k"`
	MinScore            float64        `mapstructure:"min_score"`
	MaxInternalLength   int            `mapstructure:"max_internal_length"`
	Catalog             string         `mapstructure:"catalog"`
	Filter              FilterSettings `mapstructure:"filter"`
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() (Settings, error) {
	viper.SetDefault("profile", "ESI-Q-CID")
	viper.SetDefault("precursor_tolerance", "2.5Da")
	viper.SetDefault("fragment_tolerance", "0.5Da")
	viper.SetDefault("max_mod_levels", modengine.DefaultMaxLevels)
	viper.SetDefault("max_combinations", modengine.DefaultMaxCombinations)
	viper.SetDefault("rare_limit", 0)
	viper.SetDefault("max_charge", 3)
	viper.SetDefault("charge_reduced", true)
	viper.SetDefault("non_specific_terminus", "none")
	viper.SetDefault("top_k", 5)
	viper.SetDefault("min_score", 0.0)
	viper.SetDefault("max_internal_length", 6)
	viper.SetDefault("catalog", "")
	viper.SetDefault("filter.top_n", 150)
	viper.SetDefault("filter.cutoff", 0.0)
	viper.SetDefault("filter.precursor_window", 2.0)

	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	return s, nil
}

// SearchOptions resolves the settings into search options. cat supplies the modification rules
// and any custom instrument profiles; a profile defined in cat shadows a built-in of the same name.
// A nil cat selects DefaultCatalog.
func (s Settings) SearchOptions(cat *CatalogFile) (search.Options, error) {
	if cat == nil {
		cat = DefaultCatalog()
	}
	precursorTol, err := scoring.ParseTolerance(s.PrecursorTolerance)
	if err != nil {
		return search.Options{}, fmt.Errorf("precursor_tolerance: %w", err)
	}
	fragmentTol, err := scoring.ParseTolerance(s.FragmentTolerance)
	if err != nil {
		return search.Options{}, fmt.Errorf("fragment_tolerance: %w", err)
	}
	terminus, ok := modengine.ParseTerminus(s.NonSpecificTerminus)
	if !ok {
		return search.Options{}, fmt.Errorf("non_specific_terminus: unknown terminus %q", s.NonSpecificTerminus)
	}

	profile, err := cat.Profile(s.Profile)
	if err != nil {
		return search.Options{}, err
	}
	catalog, err := cat.Catalog(s.RareLimit)
	if err != nil {
		return search.Options{}, err
	}

	return search.Options{
		Catalog: catalog,
		Engine: modengine.Options{
			MaxLevels:           s.MaxModLevels,
			MaxCombinations:     s.MaxCombinations,
			NonSpecificTerminus: terminus,
		},
		Profile:            profile,
		MaxInternalLength:  s.MaxInternalLength,
		PrecursorTolerance: precursorTol,
		FragmentTolerance:  fragmentTol,
		MaxCharge:          s.MaxCharge,
		ChargeReduced:      s.ChargeReduced,
		TopK:               s.TopK,
	}, nil
}
