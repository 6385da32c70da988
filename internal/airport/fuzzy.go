package airport

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// closeMatches returns up to n of possibilities whose similarity to word is at
// least cutoff, best first. Equal scores keep possibilities order.
func closeMatches(word string, possibilities []string, n int, cutoff float64) []string {
	if n <= 0 {
		return nil
	}
	type scored struct {
		value string
		score float64
	}
	wordChars := strings.Split(word, "")
	var hits []scored
	for _, p := range possibilities {
		m := difflib.NewMatcher(strings.Split(p, ""), wordChars)
		if m.RealQuickRatio() < cutoff || m.QuickRatio() < cutoff {
			continue
		}
		if r := m.Ratio(); r >= cutoff {
			hits = append(hits, scored{value: p, score: r})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > n {
		hits = hits[:n]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.value
	}
	return out
}
