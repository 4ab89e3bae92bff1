package ions

import "github.com/ChrisMcGann/PepMatch/pkg/core"

// gammaSubstituents is the part of each side chain beyond the beta carbon that d and w ions lose.
// Residues without an entry form no d or w ions.
var gammaSubstituents = map[byte]core.AminoAcidComposition{
	'C': {H: 1, S: 1},
	'D': {C: 1, H: 1, O: 2},
	'E': {C: 2, H: 3, O: 2},
	'I': {C: 2, H: 5},
	'K': {C: 3, H: 8, N: 1},
	'L': {C: 3, H: 7},
	'M': {C: 2, H: 5, S: 1},
	'N': {C: 1, H: 2, N: 1, O: 1},
	'Q': {C: 2, H: 4, N: 1, O: 1},
	'R': {C: 3, H: 8, N: 3},
	'S': {H: 1, O: 1},
	'T': {C: 1, H: 3},
	'V': {C: 1, H: 3},
}

func gammaSubstituent(aa byte) (float64, bool) {
	comp, ok := gammaSubstituents[aa]
	if !ok {
		return 0, false
	}
	return comp.Mass(), true
}
