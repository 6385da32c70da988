package finder

import (
	"sort"

	"github.com/neexbeast/flightfinder/internal/flight"
)

// SelectCheapest returns the n lowest-priced flights, ascending. Ties keep
// their input order. The input slice is not modified.
func SelectCheapest(flights []flight.ScrapedFlight, n int) []flight.ScrapedFlight {
	sorted := make([]flight.ScrapedFlight, len(flights))
	copy(sorted, flights)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Price < sorted[j].Price
	})
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}
