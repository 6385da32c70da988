package ranker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/neexbeast/flightfinder/internal/flight"
	"github.com/neexbeast/flightfinder/internal/llm"
	"github.com/neexbeast/flightfinder/internal/metrics"
)

// DefaultLimit is the number of flights a ranking returns.
const DefaultLimit = 2

const (
	systemPrompt = "Respond ONLY with valid JSON. Never include commentary."
	temperature  = 0.1
	maxTokens    = 400

	instructions = "You are assisting a travel concierge. Review the provided flights and return a JSON " +
		"object with a key 'selectedIds' containing exactly two flight IDs in preference order. " +
		"Ranking priorities, in order: (1) shortest total duration, (2) lowest price, (3) fewer " +
		"connections, (4) prefer direct flights when other factors are similar, (5) overall " +
		"convenience (earlier departures acceptable if ties remain)."
)

var errNoSelection = errors.New("reply has no selectedIds list")

// Context is the search context shown to the model next to the flights.
type Context struct {
	Travellers      int `json:"travellers"`
	AttemptedRoutes any `json:"attemptedRoutes"`
}

// Ranker orders a candidate pool with a language model. Ranking is an
// optimisation only: every failure falls back to the pool's own order.
type Ranker struct {
	completer llm.Completer
	limit     int
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// New constructs a Ranker. A nil completer disables model ranking.
func New(completer llm.Completer, m *metrics.Metrics, log *slog.Logger) *Ranker {
	if completer == nil {
		completer = llm.Disabled{}
	}
	return &Ranker{completer: completer, limit: DefaultLimit, metrics: m, log: log}
}

// WithLimit sets how many flights Rank returns.
func (r *Ranker) WithLimit(n int) *Ranker {
	if n > 0 {
		r.limit = n
	}
	return r
}

// Rank returns up to the configured limit of flights from pool, best first.
func (r *Ranker) Rank(ctx context.Context, pool []flight.ScrapedFlight, rc Context, budget float64) []flight.ScrapedFlight {
	if len(pool) <= r.limit {
		return append([]flight.ScrapedFlight{}, pool...)
	}

	ids, err := r.selectIDs(ctx, pool, rc, budget)
	if err != nil {
		if !errors.Is(err, llm.ErrNotConfigured) {
			r.log.Warn("flight ranking failed, keeping provider order", "err", err)
		}
		r.metrics.RankerFallback()
		return append([]flight.ScrapedFlight{}, pool[:r.limit]...)
	}
	return r.pick(pool, ids)
}

// pick maps ids back onto the pool, skipping unknown or repeated ids, and pads
// from the untouched pool entries in their original order.
func (r *Ranker) pick(pool []flight.ScrapedFlight, ids []any) []flight.ScrapedFlight {
	byID := make(map[string]int, len(pool))
	for i, f := range pool {
		if _, dup := byID[f.ID]; !dup {
			byID[f.ID] = i
		}
	}

	used := make(map[int]bool, r.limit)
	out := make([]flight.ScrapedFlight, 0, r.limit)
	for _, raw := range ids {
		if len(out) == r.limit {
			break
		}
		idx, ok := byID[fmt.Sprint(raw)]
		if !ok || used[idx] {
			continue
		}
		used[idx] = true
		out = append(out, pool[idx])
	}
	for i := 0; i < len(pool) && len(out) < r.limit; i++ {
		if !used[i] {
			out = append(out, pool[i])
		}
	}
	return out
}

func (r *Ranker) selectIDs(ctx context.Context, pool []flight.ScrapedFlight, rc Context, budget float64) ([]any, error) {
	contextJSON, err := json.MarshalIndent(rc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding ranking context: %w", err)
	}
	flightsJSON, err := json.MarshalIndent(summarise(pool, budget), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding flights: %w", err)
	}

	reply, err := r.completer.Complete(ctx, llm.Prompt{
		System:      systemPrompt,
		User:        instructions + "\n\nContext:\n" + string(contextJSON) + "\n\nFlights:\n" + string(flightsJSON) + "\n",
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, err
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(llm.StripCodeFence(reply)), &parsed); err != nil {
		return nil, fmt.Errorf("decoding ranking reply: %w", err)
	}
	ids, ok := parsed["selectedIds"].([]any)
	if !ok {
		return nil, errNoSelection
	}
	return ids, nil
}

type flightSummary struct {
	ID                    string  `json:"id"`
	Airline               string  `json:"airline"`
	Price                 float64 `json:"price"`
	OverBudget            bool    `json:"overBudget"`
	TotalDuration         string  `json:"totalDuration"`
	OutboundStops         int     `json:"outboundStops"`
	ReturnStops           int     `json:"returnStops"`
	OutboundDepartureTime string  `json:"outboundDepartureTime"`
	OutboundArrivalTime   string  `json:"outboundArrivalTime"`
	ReturnDepartureTime   *string `json:"returnDepartureTime"`
	ReturnArrivalTime     *string `json:"returnArrivalTime"`
}

func summarise(pool []flight.ScrapedFlight, budget float64) []flightSummary {
	out := make([]flightSummary, len(pool))
	for i, f := range pool {
		out[i] = flightSummary{
			ID:                    f.ID,
			Airline:               f.Airline,
			Price:                 f.Price,
			OverBudget:            f.Price > budget,
			TotalDuration:         f.TotalDuration,
			OutboundStops:         f.OutboundStops,
			ReturnStops:           f.ReturnStops,
			OutboundDepartureTime: f.OutboundDepartureTime,
			OutboundArrivalTime:   f.OutboundArrivalTime,
			ReturnDepartureTime:   optional(f.ReturnDepartureTime),
			ReturnArrivalTime:     optional(f.ReturnArrivalTime),
		}
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
