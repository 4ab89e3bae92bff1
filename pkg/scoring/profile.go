// Package scoring matches theoretical fragment ions against observed peaks.
package scoring

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ChrisMcGann/PepMatch/pkg/core"
	"github.com/ChrisMcGann/PepMatch/pkg/ions"
)

// Score is a candidate's match score. Higher is better.
type Score float64

// CrosslinkLabel is the profile entry weighting precursor-with-bridge pseudo-ions.
const CrosslinkLabel = "xl-precursor"

// Entry is the scoring configuration of one ion type within a profile.
type Entry struct {
	Enabled   bool
	Weight    Score
	Index     int // position of the ion type in the profile
	MaxCharge int // highest fragment charge considered; 0 for no limit
	Required  bool
}

// IonWeight names an entry when building a profile.
type IonWeight struct {
	Label string
	Entry
}

// ErrUnknownProfile is returned for a profile name with no definition.
var ErrUnknownProfile = errors.New("unknown instrument profile")

// Profile selects which ion types are considered and what each contributes. It is immutable.
type Profile struct {
	name    string
	labels  []string
	entries map[string]Entry
}

// NewProfile builds a profile. Entry indexes follow the order of weights.
func NewProfile(name string, weights []IonWeight) (*Profile, error) {
	p := &Profile{name: name, entries: make(map[string]Entry, len(weights))}
	for i, w := range weights {
		if w.Label == "" {
			return nil, &core.ValidationError{Field: "Profile " + name, Message: "ion entry without a label"}
		}
		if _, dup := p.entries[w.Label]; dup {
			return nil, &core.ValidationError{Field: "Profile " + name, Message: "duplicate ion " + w.Label}
		}
		if w.Weight < 0 || w.MaxCharge < 0 {
			return nil, &core.ValidationError{Field: "Profile " + name, Message: "negative weight or charge for " + w.Label}
		}
		if w.Label != CrosslinkLabel {
			if _, ok := ions.Lookup(w.Label); !ok {
				return nil, fmt.Errorf("profile %s: %w: %q", name, ions.ErrUnknownIonType, w.Label)
			}
		}
		e := w.Entry
		e.Index = i
		p.entries[w.Label] = e
		p.labels = append(p.labels, w.Label)
	}
	return p, nil
}

// Name returns the profile name.
func (p *Profile) Name() string { return p.name }

// Entry returns the configuration of label. Unknown labels are disabled.
func (p *Profile) Entry(label string) (Entry, bool) {
	e, ok := p.entries[label]
	return e, ok
}

// Enabled lists the enabled ion types in index order.
func (p *Profile) Enabled() []string {
	var out []string
	for _, l := range p.labels {
		if p.entries[l].Enabled {
			out = append(out, l)
		}
	}
	return out
}

// IonSet compiles the profile's enabled fragment ion types against masses.
func (p *Profile) IonSet(masses *core.MassTable, maxInternalLength int) (*ions.IonSet, error) {
	var descs []ions.Descriptor
	for _, l := range p.Enabled() {
		if l == CrosslinkLabel {
			continue
		}
		d, _ := ions.Lookup(l)
		if d.Kind == ions.Internal && maxInternalLength > 0 {
			d.MaxLength = maxInternalLength
		}
		descs = append(descs, d)
	}
	set, err := ions.Compile(masses, descs)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", p.name, err)
	}
	return set, nil
}

func on(label string, weight Score, maxCharge int, required bool) IonWeight {
	return IonWeight{Label: label, Entry: Entry{Enabled: true, Weight: weight, MaxCharge: maxCharge, Required: required}}
}

var builtinProfiles = map[string][]IonWeight{
	"ESI-Q-CID": {
		on("b", 3, 2, true),
		on("y", 3, 2, true),
		on("a", 1, 1, false),
		on("b-loss", 1, 1, false),
		on("y-loss", 1, 2, false),
		on("internal-b", 0.5, 1, false),
		on("M-H2O", 0.5, 0, false),
		on("M-H3PO4", 1, 0, false),
		on(CrosslinkLabel, 2, 0, false),
	},
	"ESI-TRAP-CID-low-res": {
		on("b", 3, 2, true),
		on("y", 3, 2, true),
		on("a", 0.5, 1, false),
		on("b-loss", 1.5, 1, false),
		on("y-loss", 1.5, 2, false),
		on("M-H2O", 1, 0, false),
		on("M-NH3", 0.5, 0, false),
		on("M-H3PO4", 2, 0, false),
		on("M-SOCH4", 1, 0, false),
		on(CrosslinkLabel, 2, 0, false),
	},
	"ESI-ETD-low-res": {
		on("c", 3, 2, true),
		on("z+1", 3, 2, true),
		on("z", 1, 2, false),
		on("y", 1, 1, false),
		on("w", 0.5, 1, false),
	},
	"ESI-ETD-high-res": {
		on("c", 3, 3, true),
		on("z", 3, 3, true),
		on("z+1", 2, 3, false),
		on("y", 1, 2, false),
		on("w", 1, 1, false),
	},
	"ESI-Q-TOF": {
		on("b", 3, 3, true),
		on("y", 3, 3, true),
		on("a", 1, 1, false),
		on("b-loss", 1, 2, false),
		on("y-loss", 1, 2, false),
		on("internal-b", 1, 1, false),
		on("internal-a", 0.5, 1, false),
		on("M-H3PO4", 1, 0, false),
		on(CrosslinkLabel, 2, 0, false),
	},
	"MALDI-TOFTOF": {
		on("b", 3, 1, true),
		on("y", 3, 1, true),
		on("a", 1.5, 1, false),
		on("b-loss", 1, 1, false),
		on("y-loss", 1, 1, false),
		on("internal-b", 1, 1, false),
		on("internal-a", 1, 1, false),
		on("d", 1, 1, false),
		on("v", 1, 1, false),
		on("w", 1, 1, false),
		on("M-H3PO4", 1, 1, false),
	},
}

// ProfileNames lists the built-in profiles.
func ProfileNames() []string {
	names := make([]string, 0, len(builtinProfiles))
	for n := range builtinProfiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// BuiltinProfile returns a built-in profile by name.
func BuiltinProfile(name string) (*Profile, error) {
	w, ok := builtinProfiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return NewProfile(name, w)
}
