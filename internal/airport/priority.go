package airport

import (
	"math"
	"strings"

	"github.com/tidwall/geodesic"
)

// PriorityRules configures the tie-break between airports at the same distance
// or in the same city. Lower scores sort first.
type PriorityRules struct {
	TypeScores           map[string]int
	UnknownTypeScore     int
	InternationalKeyword string
	RegionalKeywords     []string
}

// DefaultPriorityRules ranks large airports first, then medium, then small,
// then unknown facility types.
func DefaultPriorityRules() PriorityRules {
	return PriorityRules{
		TypeScores: map[string]int{
			"large_airport":  0,
			"airport":        1,
			"medium_airport": 1,
			"small_airport":  2,
			"":               3,
		},
		UnknownTypeScore:     3,
		InternationalKeyword: "international",
		RegionalKeywords:     []string{"regional", "municipal", "county", "private"},
	}
}

// priority orders by facility size, then reputation (international first,
// regional-sounding names penalised), then shorter name.
type priority struct {
	size       int
	reputation int
	nameLength int
}

func (p priority) less(o priority) bool {
	if p.size != o.size {
		return p.size < o.size
	}
	if p.reputation != o.reputation {
		return p.reputation < o.reputation
	}
	return p.nameLength < o.nameLength
}

func (r PriorityRules) score(c Candidate) priority {
	name := strings.ToLower(c.Name)

	size, ok := r.TypeScores[c.Kind]
	if !ok {
		size = r.UnknownTypeScore
	}

	reputation := 1
	if r.InternationalKeyword != "" && strings.Contains(name, r.InternationalKeyword) {
		reputation = 0
	}
	for _, kw := range r.RegionalKeywords {
		if strings.Contains(name, kw) {
			reputation++
			break
		}
	}

	return priority{size: size, reputation: reputation, nameLength: len([]rune(name))}
}

// distanceKM is the WGS84 ellipsoidal (geodesic) distance between two points.
func distanceKM(lat1, lon1, lat2, lon2 float64) float64 {
	var meters float64
	geodesic.WGS84.Inverse(lat1, lon1, lat2, lon2, &meters, nil, nil)
	return meters / 1000
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
