// Package search ties modification enumeration, ion generation and scoring into the per-peptide
// DoMatch entry point.
package search

import (
	"fmt"

	"github.com/ChrisMcGann/PepMatch/pkg/core"
	"github.com/ChrisMcGann/PepMatch/pkg/ions"
	"github.com/ChrisMcGann/PepMatch/pkg/modengine"
	"github.com/ChrisMcGann/PepMatch/pkg/scoring"
)

// Options configures an Environment.
type Options struct {
	Masses             *core.MassTable // default monoisotopic table when nil
	Catalog            *core.Catalog
	Engine             modengine.Options
	Profile            *scoring.Profile
	MaxInternalLength  int
	PrecursorTolerance scoring.Tolerance
	FragmentTolerance  scoring.Tolerance
	MaxCharge          int
	ChargeReduced      bool
	TopK               int
}

// Environment is the configuration shared by every search. It is immutable after construction
// and safe for concurrent use.
type Environment struct {
	masses  *core.MassTable
	catalog *core.Catalog
	engine  *modengine.Engine
	profile *scoring.Profile
	ionSet  *ions.IonSet

	precursorTol  scoring.Tolerance
	fragmentTol   scoring.Tolerance
	maxCharge     int
	chargeReduced bool
	topK          int
}

// NewEnvironment validates opts and builds the shared engine and ion set.
func NewEnvironment(opts Options) (*Environment, error) {
	if opts.Catalog == nil {
		return nil, &core.ValidationError{Field: "Options", Message: "catalog is required"}
	}
	if opts.Profile == nil {
		return nil, &core.ValidationError{Field: "Options", Message: "instrument profile is required"}
	}
	if opts.TopK < 0 || opts.MaxCharge < 0 {
		return nil, &core.ValidationError{Field: "Options", Message: "top-K and max charge must not be negative"}
	}
	masses := opts.Masses
	if masses == nil {
		masses = core.DefaultMassTable()
	}
	set, err := opts.Profile.IonSet(masses, opts.MaxInternalLength)
	if err != nil {
		return nil, fmt.Errorf("failed to build ion set: %w", err)
	}
	return &Environment{
		masses:        masses,
		catalog:       opts.Catalog,
		engine:        modengine.NewEngine(opts.Catalog, opts.Engine),
		profile:       opts.Profile,
		ionSet:        set,
		precursorTol:  opts.PrecursorTolerance,
		fragmentTol:   opts.FragmentTolerance,
		maxCharge:     opts.MaxCharge,
		chargeReduced: opts.ChargeReduced,
		topK:          opts.TopK,
	}, nil
}

// Masses returns the mass table.
func (env *Environment) Masses() *core.MassTable { return env.masses }

// Catalog returns the modification catalog.
func (env *Environment) Catalog() *core.Catalog { return env.catalog }

// Engine returns the modification engine.
func (env *Environment) Engine() *modengine.Engine { return env.engine }

// Profile returns the instrument profile.
func (env *Environment) Profile() *scoring.Profile { return env.profile }

// IonSet returns the ion types scored under the profile.
func (env *Environment) IonSet() *ions.IonSet { return env.ionSet }

// CheckOffset reports whether any modification combination could explain a shift in
// [deltaLow, deltaHigh].
func (env *Environment) CheckOffset(deltaLow, deltaHigh float64) bool {
	return env.engine.CheckOffset(deltaLow, deltaHigh)
}
