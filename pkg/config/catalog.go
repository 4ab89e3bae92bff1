package config

import (
	"fmt"
	"os"
	"strconv"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/ChrisMcGann/PepMatch/pkg/core"
	"github.com/ChrisMcGann/PepMatch/pkg/scoring"
)

// RuleSpec is one [[rule]] table of a catalog file. Residues lists every residue the rule applies
// to ("STY" expands into three rules). Delta may be omitted for modifications known by name.
type RuleSpec struct {
	Name        string   `toml:"name"`
	Site        string   `toml:"site"`
	Residues    string   `toml:"residues"`
	Delta       *float64 `toml:"delta"`
	Specificity string   `toml:"specificity"`
	Motif       string   `toml:"motif"`
	MotifOffset int      `toml:"motif_offset"`
	Rare        bool     `toml:"rare"`
	LimitGroup  int      `toml:"limit_group"`
	LabelGroup  int      `toml:"label_group"`
	Dehydro     bool     `toml:"dehydro"`
	MassOffset  bool     `toml:"mass_offset"`
	Loss        string   `toml:"loss"`
}

// IonSpec is one ion entry of a custom profile.
type IonSpec struct {
	Label     string  `toml:"label"`
	Weight    float64 `toml:"weight"`
	MaxCharge int     `toml:"max_charge"`
	Required  bool    `toml:"required"`
	Disabled  bool    `toml:"disabled"`
}

// ProfileSpec is one [[profile]] table of a catalog file.
type ProfileSpec struct {
	Name string    `toml:"name"`
	Ions []IonSpec `toml:"ion"`
}

// CatalogFile is the decoded form of a modification catalog TOML file.
type CatalogFile struct {
	RareLimit int            `toml:"rare_limit"`
	Limits    map[string]int `toml:"limits"` // limit group id -> cap
	Rules     []RuleSpec     `toml:"rule"`
	Profiles  []ProfileSpec  `toml:"profile"`
}

const defaultCatalog = `
rare_limit = 1

[limits]
1 = 3

[[rule]]
name = "Oxidation"
residues = "M"
loss = "SOCH4"
limit_group = 1

[[rule]]
name = "Phospho"
residues = "STY"
loss = "H3PO4"

[[rule]]
name = "Deamidated"
residues = "NQ"
rare = true

[[rule]]
name = "Acetyl"
site = "N-term"
specificity = "n"

[[rule]]
name = "Gln->pyro-Glu"
site = "N-term"
residues = "Q"
specificity = "N"
rare = true
`

// DefaultCatalog returns the catalog used when no catalog file is configured.
func DefaultCatalog() *CatalogFile {
	f, err := ParseCatalog([]byte(defaultCatalog))
	if err != nil {
		panic(err)
	}
	return f
}

// LoadCatalog reads a catalog file. An empty path selects DefaultCatalog.
func LoadCatalog(path string) (*CatalogFile, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	f, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// ParseCatalog decodes catalog TOML.
func ParseCatalog(data []byte) (*CatalogFile, error) {
	var f CatalogFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	return &f, nil
}

// ModificationRules expands the rule tables into one rule per residue, resolving omitted deltas
// through the default modification database.
func (f *CatalogFile) ModificationRules() ([]core.ModificationRule, error) {
	db := core.DefaultModDatabase()
	var rules []core.ModificationRule
	for i, spec := range f.Rules {
		field := fmt.Sprintf("rule %d (%s)", i+1, spec.Name)
		if spec.Name == "" {
			return nil, &core.ValidationError{Field: field, Message: "name is required"}
		}

		site, err := core.ParseSite(spec.Site)
		if err != nil {
			return nil, &core.ValidationError{Field: field, Message: err.Error()}
		}
		loss, err := core.ParseLossKind(spec.Loss)
		if err != nil {
			return nil, &core.ValidationError{Field: field, Message: err.Error()}
		}
		specificity := core.AnyPosition
		switch len(spec.Specificity) {
		case 0:
		case 1:
			specificity = core.Specificity(spec.Specificity[0])
		default:
			return nil, &core.ValidationError{Field: field, Message: fmt.Sprintf("specificity %q is not a single code", spec.Specificity)}
		}

		var delta float64
		if spec.Delta != nil {
			delta = *spec.Delta
		} else if m, ok := db.GetMass(spec.Name); ok {
			delta = m
		} else {
			return nil, &core.ValidationError{Field: field, Message: "no delta given and the name is not a known modification"}
		}

		base := core.ModificationRule{
			Name:        spec.Name,
			Site:        site,
			Delta:       delta,
			Specificity: specificity,
			Rare:        spec.Rare,
			LimitGroup:  spec.LimitGroup,
			LabelGroup:  spec.LabelGroup,
			Dehydro:     spec.Dehydro,
			MassOffset:  spec.MassOffset,
			Loss:        loss,
		}
		if spec.Motif != "" {
			base.Motif = &core.Motif{Pattern: spec.Motif, Offset: spec.MotifOffset}
		}

		if spec.Residues == "" {
			if site == core.SiteResidue {
				return nil, &core.ValidationError{Field: field, Message: "residue rules need residues"}
			}
			rules = append(rules, base)
			continue
		}
		for j := 0; j < len(spec.Residues); j++ {
			r := base
			r.Residue = spec.Residues[j]
			rules = append(rules, r)
		}
	}
	return rules, nil
}

// Catalog builds the modification catalog. rareLimit overrides the file's rare_limit when positive.
func (f *CatalogFile) Catalog(rareLimit int) (*core.Catalog, error) {
	rules, err := f.ModificationRules()
	if err != nil {
		return nil, err
	}
	opts := core.CatalogOptions{RareLimit: f.RareLimit, LimitCaps: make(map[int]int, len(f.Limits))}
	if rareLimit > 0 {
		opts.RareLimit = rareLimit
	}
	for k, v := range f.Limits {
		group, err := strconv.Atoi(k)
		if err != nil {
			return nil, &core.ValidationError{Field: "limits", Message: fmt.Sprintf("group %q is not an integer", k)}
		}
		opts.LimitCaps[group] = v
	}
	return core.NewCatalog(rules, opts)
}

// Profile returns the named instrument profile, preferring profiles defined in the file over the
// built-in ones.
func (f *CatalogFile) Profile(name string) (*scoring.Profile, error) {
	for _, p := range f.Profiles {
		if p.Name != name {
			continue
		}
		weights := make([]scoring.IonWeight, 0, len(p.Ions))
		for _, ion := range p.Ions {
			weights = append(weights, scoring.IonWeight{
				Label: ion.Label,
				Entry: scoring.Entry{
					Enabled:   !ion.Disabled,
					Weight:    scoring.Score(ion.Weight),
					MaxCharge: ion.MaxCharge,
					Required:  ion.Required,
				},
			})
		}
		return scoring.NewProfile(p.Name, weights)
	}
	return scoring.BuiltinProfile(name)
}
