package finder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/neexbeast/flightfinder/internal/airport"
	"github.com/neexbeast/flightfinder/internal/flight"
	"github.com/neexbeast/flightfinder/internal/metrics"
	"github.com/neexbeast/flightfinder/internal/ranker"
)

const (
	DefaultMinFlights     = 5
	DefaultCandidateCount = 3

	StatusSuccess   = "success"
	StatusNoResults = "no_results"

	AttemptSuccess = "success"
	AttemptEmpty   = "empty"
	AttemptError   = "error"

	TripRoundTrip = "round_trip"
	TripOneWay    = "one_way"

	noResultsMessage = "No flights found for the supplied cities and dates."
	overBudgetNote   = "All suggested flights currently exceed the provisional budget. Costs shown for awareness."
)

// ErrNoCombos is returned when resolved airports yield no route to search.
var ErrNoCombos = errors.New("unable to build airport combinations for search")

// ResolutionError reports a city with no usable airport.
type ResolutionError struct {
	City string
}

func (e *ResolutionError) Error() string {
	return "No airports found near " + e.City
}

// AirportResolver maps a free-text location to ranked airport candidates.
type AirportResolver interface {
	Resolve(ctx context.Context, location string) []airport.Candidate
}

// FlightScraper runs one provider search.
type FlightScraper interface {
	Scrape(ctx context.Context, q flight.Query) ([]flight.ScrapedFlight, error)
}

// FlightRanker orders a candidate pool for the dropdown list.
type FlightRanker interface {
	Rank(ctx context.Context, pool []flight.ScrapedFlight, rc ranker.Context, budget float64) []flight.ScrapedFlight
}

// Config holds the search loop's size limits.
type Config struct {
	MinFlights     int
	CandidateCount int
	StopSequence   []flight.StopSetting
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{
		MinFlights:     DefaultMinFlights,
		CandidateCount: DefaultCandidateCount,
		StopSequence:   flight.StopSequence,
	}
}

// Attempt is the diagnostic entry for one (origin, destination, stops) search.
type Attempt struct {
	Origin       string             `json:"origin"`
	Destination  string             `json:"destination"`
	Stops        flight.StopSetting `json:"stops"`
	Status       string             `json:"status"`
	FlightsAdded int                `json:"flights_added"`
	Message      string             `json:"message"`
	Error        string             `json:"error,omitempty"`
}

// SearchDates echoes the dates that were searched; Return is nil for one-way trips.
type SearchDates struct {
	Outbound string  `json:"outbound"`
	Return   *string `json:"return"`
}

// Metadata describes how a search was run, including the routes attempted.
type Metadata struct {
	Budget              float64             `json:"budgetForFlightFinder"`
	Travellers          int                 `json:"travellers"`
	AttemptedRoutes     []Attempt           `json:"attemptedRoutes"`
	CollectedFlights    int                 `json:"collectedFlights"`
	OriginAirports      []airport.Candidate `json:"originAirports"`
	DestinationAirports []airport.Candidate `json:"destinationAirports"`
	SearchDates         SearchDates         `json:"searchDates"`
	TripType            string              `json:"tripType"`
	Warnings            []string            `json:"warnings,omitempty"`
	Note                string              `json:"note,omitempty"`
}

// Response is the result of one flight search.
type Response struct {
	Status           string       `json:"status"`
	Message          string       `json:"message,omitempty"`
	DropdownFlights  []FlightView `json:"dropdownFlights"`
	CandidateFlights []FlightView `json:"candidateFlights"`
	Metadata         Metadata     `json:"metadata"`
}

// Finder searches a bounded set of airport and stop combinations until enough
// distinct flights are collected, then selects and ranks them.
type Finder struct {
	resolver AirportResolver
	scraper  FlightScraper
	ranker   FlightRanker
	cfg      Config
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

// New constructs a Finder. Zero Config fields take their defaults.
func New(resolver AirportResolver, scraper FlightScraper, rk FlightRanker, cfg Config, m *metrics.Metrics, log *slog.Logger) *Finder {
	def := DefaultConfig()
	if cfg.MinFlights <= 0 {
		cfg.MinFlights = def.MinFlights
	}
	if cfg.CandidateCount <= 0 {
		cfg.CandidateCount = def.CandidateCount
	}
	if len(cfg.StopSequence) == 0 {
		cfg.StopSequence = def.StopSequence
	}
	return &Finder{
		resolver: resolver,
		scraper:  scraper,
		ranker:   rk,
		cfg:      cfg,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

// WithClock replaces the clock used to reject past dates.
func (f *Finder) WithClock(now func() time.Time) *Finder {
	f.now = now
	return f
}

// Find validates a raw request body and runs the search.
func (f *Finder) Find(ctx context.Context, raw map[string]any) (*Response, error) {
	req, err := ParseRequest(raw, f.now())
	if err != nil {
		return nil, err
	}
	return f.Search(ctx, req)
}

// Search runs a validated request. Provider failures are recorded per attempt
// and never fail the search; only unresolvable cities and cancellation do.
func (f *Finder) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	origins := f.resolver.Resolve(ctx, req.FromCity)
	if len(origins) == 0 {
		return nil, &ResolutionError{City: req.FromCity}
	}
	destinations := f.resolver.Resolve(ctx, req.ToCity)
	if len(destinations) == 0 {
		return nil, &ResolutionError{City: req.ToCity}
	}
	f.log.Info("resolved airports",
		"origin", strings.Join(airport.Codes(origins), ","),
		"destination", strings.Join(airport.Codes(destinations), ","))

	combos := PlanCombos(origins, destinations)
	if len(combos) == 0 {
		return nil, ErrNoCombos
	}

	gathered, attempts, err := f.collect(ctx, req, combos)
	if err != nil {
		return nil, err
	}

	meta := Metadata{
		Budget:              req.Budget,
		Travellers:          req.Travellers,
		AttemptedRoutes:     attempts,
		CollectedFlights:    len(gathered),
		OriginAirports:      origins,
		DestinationAirports: destinations,
		SearchDates:         SearchDates{Outbound: req.OutboundDate},
		TripType:            TripOneWay,
		Warnings:            attemptWarnings(attempts),
	}
	if req.RoundTrip() {
		ret := req.ReturnDate
		meta.SearchDates.Return = &ret
		meta.TripType = TripRoundTrip
	}

	if len(gathered) == 0 {
		f.metrics.ObserveSearch(StatusNoResults, time.Since(start))
		return &Response{
			Status:           StatusNoResults,
			Message:          noResultsMessage,
			DropdownFlights:  []FlightView{},
			CandidateFlights: []FlightView{},
			Metadata:         meta,
		}, nil
	}

	candidates := SelectCheapest(gathered, f.cfg.CandidateCount)
	ranked := f.ranker.Rank(ctx, candidates, ranker.Context{
		Travellers:      req.Travellers,
		AttemptedRoutes: attempts,
	}, req.Budget)

	resp := &Response{
		Status:           StatusSuccess,
		DropdownFlights:  formatFlights(ranked, req.Budget),
		CandidateFlights: formatFlights(candidates, req.Budget),
		Metadata:         meta,
	}
	if allOverBudget(resp.DropdownFlights) {
		resp.Metadata.Note = overBudgetNote
	}
	f.metrics.ObserveSearch(StatusSuccess, time.Since(start))
	return resp, nil
}

// collect walks combos in plan order and each stop setting in sequence, one
// provider call at a time, until MinFlights distinct flights are gathered.
func (f *Finder) collect(ctx context.Context, req Request, combos []Combo) ([]flight.ScrapedFlight, []Attempt, error) {
	type triple struct {
		origin, destination string
		stops               flight.StopSetting
	}

	var gathered []flight.ScrapedFlight
	attempts := []Attempt{}
	seen := make(map[flight.Key]bool)
	tried := make(map[triple]bool)

	for _, combo := range combos {
		if len(gathered) >= f.cfg.MinFlights {
			break
		}
		for _, stops := range f.cfg.StopSequence {
			if len(gathered) >= f.cfg.MinFlights {
				break
			}
			key := triple{combo.Origin.Code, combo.Destination.Code, stops}
			if tried[key] {
				continue
			}
			tried[key] = true

			if err := ctx.Err(); err != nil {
				return nil, nil, fmt.Errorf("searching flights: %w", err)
			}

			a := Attempt{Origin: key.origin, Destination: key.destination, Stops: stops}
			flights, err := f.scraper.Scrape(ctx, flight.Query{
				Origin:       key.origin,
				Destination:  key.destination,
				OutboundDate: req.OutboundDate,
				ReturnDate:   req.ReturnDate,
				Stops:        stops,
				Adults:       req.Travellers,
			})
			if err != nil {
				a.Status = AttemptError
				a.Error = err.Error()
			} else {
				for _, fl := range flights {
					k := fl.DedupKey()
					if seen[k] {
						continue
					}
					seen[k] = true
					gathered = append(gathered, fl)
					a.FlightsAdded++
					if len(gathered) >= f.cfg.MinFlights {
						break
					}
				}
				a.Status = AttemptEmpty
				if a.FlightsAdded > 0 {
					a.Status = AttemptSuccess
				}
			}
			a.Message = fmt.Sprintf("%s->%s (stop = %d) = %d", a.Origin, a.Destination, stops, a.FlightsAdded)

			if err != nil {
				f.log.Warn(a.Message, "err", err)
			} else {
				f.log.Info(a.Message)
			}
			f.metrics.ObserveAttempt(a.Status)
			attempts = append(attempts, a)
		}
	}
	return gathered, attempts, nil
}

func attemptWarnings(attempts []Attempt) []string {
	failed := 0
	for _, a := range attempts {
		if a.Status == AttemptError {
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	return []string{fmt.Sprintf("%d of %d flight searches failed; results may be incomplete.", failed, len(attempts))}
}

func allOverBudget(flights []FlightView) bool {
	if len(flights) == 0 {
		return false
	}
	for _, f := range flights {
		if !f.OverBudget {
			return false
		}
	}
	return true
}
