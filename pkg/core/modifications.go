package core

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Modification is a named mass shift at a 0-based position, or NTermPosition / CTermPosition.
type Modification struct {
	Mass     float64
	Position int
	Name     string
}

// Terminal positions of a Modification
const (
	NTermPosition = -1
	CTermPosition = -2
)

// ModDatabase stores modification definitions
type ModDatabase struct {
	mods map[string]float64 // name -> mass shift
}

// NewModDatabase creates an empty modification database
func NewModDatabase() *ModDatabase {
	return &ModDatabase{
		mods: make(map[string]float64),
	}
}

// LoadFromCSV loads modifications from a CSV file (format: mod,massshift,aa)
func (db *ModDatabase) LoadFromCSV(r io.Reader) error {
	scanner := bufio.NewScanner(r)

	// Skip header line
	scanner.Scan()

	lineNum := 1
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			return fmt.Errorf("line %d: invalid format, expected at least 2 comma-separated fields", lineNum)
		}

		modName := strings.TrimSpace(parts[0])
		massStr := strings.TrimSpace(parts[1])

		mass, err := strconv.ParseFloat(massStr, 64)
		if err != nil {
			return fmt.Errorf("line %d: invalid mass value '%s': %w", lineNum, massStr, err)
		}

		db.mods[modName] = mass
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading CSV: %w", err)
	}

	return nil
}

// GetMass returns the mass shift for a modification name
func (db *ModDatabase) GetMass(name string) (float64, bool) {
	mass, ok := db.mods[name]
	return mass, ok
}

// Add adds or updates a modification
func (db *ModDatabase) Add(name string, mass float64) {
	db.mods[name] = mass
}

// ParseModString parses a modification string like "57.021464@2;15.994915@8" or "Carbamidomethyl@C2;Oxidation@M8".
// Positions are 1-based in the string and 0-based in the result; "-1" or "N-term" marks the
// N-terminus and "C-term" the C-terminus.
func (db *ModDatabase) ParseModString(modStr string) ([]Modification, error) {
	if modStr == "" {
		return nil, nil
	}

	var mods []Modification
	for _, part := range strings.Split(modStr, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		atParts := strings.Split(part, "@")
		if len(atParts) != 2 {
			return nil, fmt.Errorf("invalid modification format '%s', expected 'name@position' or 'mass@position'", part)
		}

		nameOrMass := strings.TrimSpace(atParts[0])
		posStr := strings.TrimSpace(atParts[1])

		// Try to parse as a number first (direct mass)
		mass, err := strconv.ParseFloat(nameOrMass, 64)
		if err != nil {
			var ok bool
			mass, ok = db.GetMass(nameOrMass)
			if !ok {
				return nil, fmt.Errorf("unknown modification '%s'", nameOrMass)
			}
		}

		position, err := parsePosition(posStr)
		if err != nil {
			return nil, fmt.Errorf("invalid position '%s': %w", posStr, err)
		}

		mods = append(mods, Modification{
			Mass:     mass,
			Position: position,
			Name:     nameOrMass,
		})
	}

	return mods, nil
}

// parsePosition parses a position string that may be just a number or include an amino acid
// Examples: "2", "C2", "R-1" (N-terminal), "N-term", "C-term"
func parsePosition(posStr string) (int, error) {
	posStr = strings.TrimSpace(posStr)

	switch strings.ToLower(posStr) {
	case "n-term":
		return NTermPosition, nil
	case "c-term":
		return CTermPosition, nil
	}
	if posStr == "-1" || strings.HasSuffix(posStr, "-1") {
		return NTermPosition, nil
	}

	// Remove leading amino acid letter if present
	posStr = strings.TrimLeft(posStr, "ACDEFGHIKLMNPQRSTVWYUO")

	pos, err := strconv.Atoi(posStr)
	if err != nil {
		return 0, fmt.Errorf("invalid position number: %w", err)
	}
	if pos < 1 {
		return 0, fmt.Errorf("position %d out of range", pos)
	}

	return pos - 1, nil
}

// DefaultModDatabase returns a ModDatabase pre-loaded with common modifications
func DefaultModDatabase() *ModDatabase {
	db := NewModDatabase()

	// Common modifications from unimod
	db.Add("Acetyl", 42.010565)
	db.Add("Amidated", -0.984016)
	db.Add("Biotin", 226.077598)
	db.Add("Carbamidomethyl", 57.021464)
	db.Add("Carbamyl", 43.005814)
	db.Add("Carboxymethyl", 58.005479)
	db.Add("Deamidated", 0.984016)
	db.Add("Dehydro", -1.007825)
	db.Add("Met->Hse", -29.992806)
	db.Add("Met->Hsl", -48.003371)
	db.Add("NIPCAM", 99.068414)
	db.Add("Phospho", 79.966331)
	db.Add("Dehydrated", -18.010565)
	db.Add("Propionamide", 71.037114)
	db.Add("Pyro-carbamidomethyl", 39.994915)
	db.Add("Glu->pyro-Glu", -18.010565)
	db.Add("Gln->pyro-Glu", -17.026549)
	db.Add("Cation:Na", 21.981943)
	db.Add("Methyl", 14.01565)
	db.Add("Oxidation", 15.994915)
	db.Add("Dimethyl", 28.0313)
	db.Add("Trimethyl", 42.04695)
	db.Add("Methylthio", 45.987721)
	db.Add("Sulfo", 79.956815)
	db.Add("Hex", 162.052824)
	db.Add("Lipoyl", 188.032956)
	db.Add("HexNAc", 203.079373)
	db.Add("Farnesyl", 204.187801)
	db.Add("Myristoyl", 210.198366)
	db.Add("PyridoxalPhosphate", 229.014009)
	db.Add("Palmitoyl", 238.229666)
	db.Add("GeranylGeranyl", 272.250401)
	db.Add("Phosphopantetheine", 340.085794)
	db.Add("FAD", 783.141486)
	db.Add("Guanidinyl", 42.021798)
	db.Add("HNE", 156.11503)
	db.Add("Glucuronyl", 176.032088)
	db.Add("Glutathione", 305.068156)
	db.Add("Propionyl", 56.026215)
	db.Add("Label:13C(6)", 6.020129)
	db.Add("Label:13C(6)15N(2)", 8.014199)
	db.Add("Label:13C(6)15N(4)", 10.008269)
	db.Add("TMT", 229.162932)
	db.Add("TMTPro", 304.207146)
	db.Add("TMT6plex", 229.162932)
	db.Add("TMT10plex", 229.162932)
	db.Add("TMT11plex", 229.162932)
	db.Add("TMT16plex", 304.207146)
	db.Add("iTRAQ4plex", 144.102063)
	db.Add("iTRAQ8plex", 304.205360)

	return db
}

// Site is the kind of location a modification rule attaches to.
type Site uint8

const (
	SiteResidue Site = iota
	SiteNTerm
	SiteCTerm
	SiteNeutralLoss
)

var siteNames = [...]string{"residue", "N-term", "C-term", "neutral-loss"}

func (s Site) String() string {
	if int(s) < len(siteNames) {
		return siteNames[s]
	}
	return fmt.Sprintf("Site(%d)", s)
}

// ParseSite converts "residue", "N-term", "C-term" or "neutral-loss" to a Site.
// The empty string is SiteResidue.
func ParseSite(s string) (Site, error) {
	switch strings.ToLower(s) {
	case "", "residue":
		return SiteResidue, nil
	case "n-term", "nterm":
		return SiteNTerm, nil
	case "c-term", "cterm":
		return SiteCTerm, nil
	case "neutral-loss", "neutral_loss":
		return SiteNeutralLoss, nil
	}
	return SiteResidue, fmt.Errorf("unknown modification site %q", s)
}

// Specificity restricts a rule to a terminus.
type Specificity byte

const (
	AnyPosition  Specificity = '0'
	PeptideNTerm Specificity = 'N'
	PeptideCTerm Specificity = 'C'
	ProteinNTerm Specificity = 'n'
	ProteinCTerm Specificity = 'c'
	EnzymeTerm   Specificity = 'e' // the terminus the enzyme cleaves non-specifically at
)

func (s Specificity) valid() bool {
	switch s {
	case AnyPosition, PeptideNTerm, PeptideCTerm, ProteinNTerm, ProteinCTerm, EnzymeTerm:
		return true
	}
	return false
}

// Motif restricts a residue rule to sequence contexts matching Pattern, where the modified
// residue sits Offset characters into the match.
type Motif struct {
	Pattern string
	Offset  int

	re *regexp.Regexp
}

// NewMotif compiles a motif anchored at its first character.
func NewMotif(pattern string, offset int) (*Motif, error) {
	if offset < 0 {
		return nil, fmt.Errorf("negative motif offset %d", offset)
	}
	re, err := regexp.Compile("^(?:" + pattern + ")")
	if err != nil {
		return nil, err
	}
	return &Motif{Pattern: pattern, Offset: offset, re: re}, nil
}

// Matches reports whether the motif holds with the modified residue at pos.
func (m *Motif) Matches(sequence string, pos int) bool {
	start := pos - m.Offset
	if start < 0 || start > len(sequence) {
		return false
	}
	return m.re.MatchString(sequence[start:])
}

// ModificationRule is one configured modification. Rules are immutable once a Catalog owns them.
type ModificationRule struct {
	Name        string
	Site        Site
	Residue     byte // required for SiteResidue; optional constraint for the other sites
	Delta       float64
	Specificity Specificity
	Motif       *Motif
	Rare        bool
	LimitGroup  int // 0 = none
	LabelGroup  int // 0 = none
	Dehydro     bool
	MassOffset  bool
	Loss        LossKind // fragment neutral loss carried by residues with this rule
}

func (r *ModificationRule) String() string {
	switch r.Site {
	case SiteResidue:
		return fmt.Sprintf("%s@%c", r.Name, r.Residue)
	default:
		return fmt.Sprintf("%s@%s", r.Name, r.Site)
	}
}

// CatalogOptions carries the catalog-wide limits.
type CatalogOptions struct {
	LimitCaps map[int]int // limit group -> maximum uses per candidate; missing groups cap at 1
	RareLimit int         // maximum rare rules per candidate; values < 1 mean 1
}

// Catalog is the immutable, mass-sorted list of modification rules.
type Catalog struct {
	rules     []ModificationRule
	limitCaps map[int]int
	rareLimit int
}

// NewCatalog validates rules, compiles their motifs and sorts them by mass delta.
// Ties keep their configuration order.
func NewCatalog(rules []ModificationRule, opts CatalogOptions) (*Catalog, error) {
	c := &Catalog{
		rules:     make([]ModificationRule, len(rules)),
		limitCaps: make(map[int]int),
		rareLimit: opts.RareLimit,
	}
	if c.rareLimit < 1 {
		c.rareLimit = 1
	}
	for group, limit := range opts.LimitCaps {
		if group <= 0 || limit < 1 {
			return nil, &ValidationError{
				Field:   "LimitCaps",
				Message: fmt.Sprintf("group %d cap %d: groups and caps must be positive", group, limit),
			}
		}
		c.limitCaps[group] = limit
	}

	for i, r := range rules {
		if err := normalizeRule(&r); err != nil {
			return nil, err
		}
		if r.LimitGroup > 0 {
			if _, ok := c.limitCaps[r.LimitGroup]; !ok {
				c.limitCaps[r.LimitGroup] = 1
			}
		}
		c.rules[i] = r
	}

	sort.SliceStable(c.rules, func(i, j int) bool {
		return c.rules[i].Delta < c.rules[j].Delta
	})
	return c, nil
}

func normalizeRule(r *ModificationRule) error {
	if r.Specificity == 0 {
		r.Specificity = AnyPosition
	}
	if r.Name == "" {
		r.Name = strconv.FormatFloat(r.Delta, 'f', 4, 64)
	}
	invalid := func(msg string) error {
		return &ValidationError{Field: "ModificationRule " + r.Name, Message: msg}
	}

	if math.IsNaN(r.Delta) || math.IsInf(r.Delta, 0) {
		return invalid("mass delta must be finite")
	}
	if !r.Specificity.valid() {
		return invalid(fmt.Sprintf("unknown terminal specificity %q", r.Specificity))
	}
	if r.Residue != 0 && (r.Residue < 'A' || r.Residue > 'Z') {
		return invalid(fmt.Sprintf("invalid residue %q", r.Residue))
	}
	if r.LimitGroup < 0 || r.LabelGroup < 0 {
		return invalid("group ids must not be negative")
	}

	switch r.Site {
	case SiteResidue:
		if r.Residue == 0 {
			return invalid("residue rules need a residue")
		}
	case SiteNTerm:
		if r.Specificity == PeptideCTerm || r.Specificity == ProteinCTerm {
			return invalid("N-term rule with C-terminal specificity")
		}
	case SiteCTerm:
		if r.Specificity == PeptideNTerm || r.Specificity == ProteinNTerm {
			return invalid("C-term rule with N-terminal specificity")
		}
	case SiteNeutralLoss:
		if r.Specificity != AnyPosition {
			return invalid("neutral-loss rules take no terminal specificity")
		}
	default:
		return invalid(fmt.Sprintf("unknown site %d", r.Site))
	}

	if r.Motif != nil {
		m, err := NewMotif(r.Motif.Pattern, r.Motif.Offset)
		if err != nil {
			return &MotifError{Rule: r.Name, Pattern: r.Motif.Pattern, Err: err}
		}
		r.Motif = m
	}
	return nil
}

// Len returns the number of rules.
func (c *Catalog) Len() int { return len(c.rules) }

// Rule returns the i-th rule in mass order. The rule must not be modified.
func (c *Catalog) Rule(i int) *ModificationRule { return &c.rules[i] }

// Rules returns a copy of the rules in mass order.
func (c *Catalog) Rules() []ModificationRule {
	out := make([]ModificationRule, len(c.rules))
	copy(out, c.rules)
	return out
}

// LowerBound returns the index of the first rule whose delta is >= mass.
func (c *Catalog) LowerBound(mass float64) int {
	return sort.Search(len(c.rules), func(i int) bool { return c.rules[i].Delta >= mass })
}

// LimitCap returns the cap for a limit group. Group 0 is unlimited.
func (c *Catalog) LimitCap(group int) (int, bool) {
	if group == 0 {
		return 0, false
	}
	limit, ok := c.limitCaps[group]
	return limit, ok
}

// RareLimit is the maximum number of rare rules in one candidate.
func (c *Catalog) RareLimit() int { return c.rareLimit }
