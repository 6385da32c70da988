package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/neexbeast/flightfinder/internal/finder"
)

const (
	DefaultBudgetDivisor = 2.0

	dateLayout = "2006-01-02"
	statusOK   = "success"
	source     = "trip_planner"
)

const (
	ErrBudgetNotNumber   finder.ValidationError = "totalBudget must be a positive number"
	ErrBudgetNotPositive finder.ValidationError = "totalBudget must be greater than zero"
	ErrOutboundFormat    finder.ValidationError = "outboundDate must be in YYYY-MM-DD format"
	ErrReturnRequired    finder.ValidationError = "returnDate is required for round-trip planning"
	ErrReturnFormat      finder.ValidationError = "returnDate must be in YYYY-MM-DD format"
)

// ErrUnresolvedCities is returned when either city has no canonical match.
var ErrUnresolvedCities = errors.New("unable to resolve one or both cities; adjust the locations and try again")

var requiredFields = []string{"currentCity", "destinationCity", "totalBudget", "travellers", "outboundDate"}

// CityResolver maps noisy city input to a canonical "City, CC" name, or "".
type CityResolver interface {
	CanonicalCity(ctx context.Context, name string) string
}

// FlightFinder runs one flight search from a raw request body.
type FlightFinder interface {
	Find(ctx context.Context, raw map[string]any) (*finder.Response, error)
}

// Request is a validated trip.
type Request struct {
	CurrentCity     string
	DestinationCity string
	TotalBudget     float64
	Travellers      int
	OutboundDate    string
	ReturnDate      string
}

// Cities holds the canonical origin and destination names.
type Cities struct {
	Current     string `json:"current"`
	Destination string `json:"destination"`
}

// Budget reports the total budget and the share passed to each flight search.
type Budget struct {
	TotalBudget           float64 `json:"totalBudget"`
	BudgetDivisor         float64 `json:"budgetDivisor"`
	BudgetForFlightFinder float64 `json:"budgetForFlightFinder"`
}

// Dates holds the outbound and return travel dates.
type Dates struct {
	Outbound string `json:"outbound"`
	Return   string `json:"return"`
}

// Legs holds the search result for each one-way leg.
type Legs struct {
	Outbound *finder.Response `json:"outbound"`
	Return   *finder.Response `json:"return"`
}

// Plan is the combined result of the two one-way searches.
type Plan struct {
	Status           string `json:"status"`
	Source           string `json:"source"`
	NormalizedCities Cities `json:"normalizedCities"`
	Budget           Budget `json:"budget"`
	Travellers       int    `json:"travellers"`
	Dates            Dates  `json:"dates"`
	FlightFinder     Legs   `json:"flightFinder"`
}

// Planner turns a trip request into an outbound and a return flight search,
// splitting the total budget between them.
type Planner struct {
	cities  CityResolver
	flights FlightFinder
	divisor float64
	log     *slog.Logger
}

// New constructs a Planner. A non-positive divisor uses DefaultBudgetDivisor.
func New(cities CityResolver, flights FlightFinder, divisor float64, log *slog.Logger) *Planner {
	if divisor <= 0 {
		divisor = DefaultBudgetDivisor
	}
	return &Planner{cities: cities, flights: flights, divisor: divisor, log: log}
}

// Plan validates raw, canonicalises both cities and runs the two legs concurrently.
func (p *Planner) Plan(ctx context.Context, raw map[string]any) (*Plan, error) {
	req, err := ParseRequest(raw)
	if err != nil {
		return nil, err
	}

	current := p.cities.CanonicalCity(ctx, req.CurrentCity)
	destination := p.cities.CanonicalCity(ctx, req.DestinationCity)
	p.log.Info("city resolution",
		"current", req.CurrentCity, "current_resolved", current,
		"destination", req.DestinationCity, "destination_resolved", destination)
	if current == "" || destination == "" {
		return nil, ErrUnresolvedCities
	}

	legBudget := req.TotalBudget / p.divisor
	leg := func(from, to, date string) map[string]any {
		return map[string]any{
			"fromCity":              from,
			"toCity":                to,
			"budgetForFlightFinder": legBudget,
			"travellers":            req.Travellers,
			"outboundDate":          date,
		}
	}

	var outbound, inbound *finder.Response
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resp, err := p.flights.Find(gCtx, leg(current, destination, req.OutboundDate))
		if err != nil {
			return fmt.Errorf("outbound flights: %w", err)
		}
		outbound = resp
		return nil
	})
	g.Go(func() error {
		resp, err := p.flights.Find(gCtx, leg(destination, current, req.ReturnDate))
		if err != nil {
			return fmt.Errorf("return flights: %w", err)
		}
		inbound = resp
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Plan{
		Status:           statusOK,
		Source:           source,
		NormalizedCities: Cities{Current: current, Destination: destination},
		Budget: Budget{
			TotalBudget:           req.TotalBudget,
			BudgetDivisor:         p.divisor,
			BudgetForFlightFinder: legBudget,
		},
		Travellers:   req.Travellers,
		Dates:        Dates{Outbound: req.OutboundDate, Return: req.ReturnDate},
		FlightFinder: Legs{Outbound: outbound, Return: inbound},
	}, nil
}

// ParseRequest validates a raw trip body. Dates are checked for format only;
// the flight search rejects past dates.
func ParseRequest(raw map[string]any) (Request, error) {
	fields := map[string]any{
		"currentCity":     raw["currentCity"],
		"destinationCity": raw["destinationCity"],
		"totalBudget":     raw["totalBudget"],
		"travellers":      firstOf(raw, "travellers", "numTravelers"),
		"outboundDate":    firstOf(raw, "outboundDate", "startDate"),
		"returnDate":      firstOf(raw, "returnDate", "endDate"),
	}

	var missing []string
	for _, name := range requiredFields {
		if blank(fields[name]) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Request{}, finder.ValidationError("Missing required fields: " + strings.Join(missing, ", "))
	}

	budget, ok := toFloat(fields["totalBudget"])
	if !ok {
		return Request{}, ErrBudgetNotNumber
	}
	if budget <= 0 {
		return Request{}, ErrBudgetNotPositive
	}

	travellers, ok := toInt(fields["travellers"])
	if !ok {
		return Request{}, finder.ErrTravellersNotInt
	}
	if travellers <= 0 {
		return Request{}, finder.ErrTravellersTooFew
	}

	outbound := strings.TrimSpace(fmt.Sprint(fields["outboundDate"]))
	if !isDate(outbound) {
		return Request{}, ErrOutboundFormat
	}
	if blank(fields["returnDate"]) {
		return Request{}, ErrReturnRequired
	}
	inbound := strings.TrimSpace(fmt.Sprint(fields["returnDate"]))
	if !isDate(inbound) {
		return Request{}, ErrReturnFormat
	}

	return Request{
		CurrentCity:     strings.TrimSpace(fmt.Sprint(fields["currentCity"])),
		DestinationCity: strings.TrimSpace(fmt.Sprint(fields["destinationCity"])),
		TotalBudget:     budget,
		Travellers:      travellers,
		OutboundDate:    outbound,
		ReturnDate:      inbound,
	}, nil
}

func firstOf(raw map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok && !blank(v) {
			return v
		}
	}
	return nil
}

// blank reports JSON values that count as not supplied: null, "", 0 and false.
func blank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case float64:
		return t == 0
	case int:
		return t == 0
	case bool:
		return !t
	}
	return false
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	return f, !math.IsNaN(f) && !math.IsInf(f, 0)
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int(t), true
	case int:
		return t, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}

func isDate(s string) bool {
	_, err := time.Parse(dateLayout, s)
	return err == nil
}
