package airport

// Candidate is one airport a location may resolve to. Values are never mutated;
// WithDistance returns a copy.
type Candidate struct {
	Code       string   `json:"code"`
	Name       string   `json:"name"`
	City       string   `json:"city"`
	Country    string   `json:"country"`
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	Kind       string   `json:"kind"`
	DistanceKM *float64 `json:"distance_km,omitempty"`
}

// WithDistance returns a copy of c carrying the given distance in kilometres.
func (c Candidate) WithDistance(km float64) Candidate {
	c.DistanceKM = &km
	return c
}

// Codes returns the IATA codes of cs in order.
func Codes(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Code
	}
	return out
}
