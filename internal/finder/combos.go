package finder

import "github.com/neexbeast/flightfinder/internal/airport"

// Combo is one origin/destination airport pairing tried by the search loop.
type Combo struct {
	Origin      airport.Candidate
	Destination airport.Candidate
}

// comboOrder is the fixed fallback order: best origin with best destination first.
var comboOrder = [][2]int{{0, 0}, {0, 1}, {1, 0}, {1, 1}}

// PlanCombos pairs the first two origins with the first two destinations in
// fallback order, skipping missing candidates and repeated code pairs.
func PlanCombos(origins, destinations []airport.Candidate) []Combo {
	type pair struct{ origin, destination string }
	seen := make(map[pair]bool, len(comboOrder))

	combos := make([]Combo, 0, len(comboOrder))
	for _, idx := range comboOrder {
		oi, di := idx[0], idx[1]
		if oi >= len(origins) || di >= len(destinations) {
			continue
		}
		o, d := origins[oi], destinations[di]
		key := pair{o.Code, d.Code}
		if seen[key] {
			continue
		}
		seen[key] = true
		combos = append(combos, Combo{Origin: o, Destination: d})
	}
	return combos
}
