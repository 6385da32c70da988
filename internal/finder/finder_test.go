package finder_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/flightfinder/internal/airport"
	"github.com/neexbeast/flightfinder/internal/finder"
	"github.com/neexbeast/flightfinder/internal/flight"
	"github.com/neexbeast/flightfinder/internal/metrics"
	"github.com/neexbeast/flightfinder/internal/ranker"
)

// ---- mocks ----

type mockResolver struct {
	airports map[string][]airport.Candidate
}

func (m *mockResolver) Resolve(_ context.Context, location string) []airport.Candidate {
	return m.airports[location]
}

type mockScraper struct {
	mu       sync.Mutex
	queries  []flight.Query
	scrapeFn func(q flight.Query) ([]flight.ScrapedFlight, error)
}

func (m *mockScraper) Scrape(_ context.Context, q flight.Query) ([]flight.ScrapedFlight, error) {
	m.mu.Lock()
	m.queries = append(m.queries, q)
	m.mu.Unlock()
	if m.scrapeFn == nil {
		return nil, nil
	}
	return m.scrapeFn(q)
}

type mockRanker struct {
	rankFn func(pool []flight.ScrapedFlight, rc ranker.Context) []flight.ScrapedFlight
	pools  [][]flight.ScrapedFlight
}

func (m *mockRanker) Rank(_ context.Context, pool []flight.ScrapedFlight, rc ranker.Context, _ float64) []flight.ScrapedFlight {
	m.pools = append(m.pools, pool)
	if m.rankFn != nil {
		return m.rankFn(pool, rc)
	}
	if len(pool) > 2 {
		return pool[:2]
	}
	return pool
}

// ---- helpers ----

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func parisTokyo() *mockResolver {
	return &mockResolver{airports: map[string][]airport.Candidate{
		"Paris": candidates("CDG", "ORY"),
		"Tokyo": candidates("NRT", "HND"),
	}}
}

// offers builds n distinct flights for a query, priced from base upwards.
func offers(q flight.Query, n int, base float64) []flight.ScrapedFlight {
	out := make([]flight.ScrapedFlight, n)
	for i := range out {
		out[i] = flight.ScrapedFlight{
			ID:                    fmt.Sprintf("%s-%s-%d-%d", q.Origin, q.Destination, q.Stops, i),
			Airline:               "JAL",
			Price:                 base + float64(i*100),
			Currency:              "USD",
			DepartureAirport:      q.Origin,
			ArrivalAirport:        q.Destination,
			OutboundDepartureTime: fmt.Sprintf("2026-03-01 %02d:00", 8+i),
			OutboundRoute:         []string{q.Origin, q.Destination},
			ReturnRoute:           []string{},
		}
	}
	return out
}

func newFinder(r finder.AirportResolver, s finder.FlightScraper, rk finder.FlightRanker, m *metrics.Metrics) *finder.Finder {
	return finder.New(r, s, rk, finder.Config{}, m, discard).WithClock(func() time.Time { return today })
}

func attemptMessages(resp *finder.Response) []string {
	out := make([]string, len(resp.Metadata.AttemptedRoutes))
	for i, a := range resp.Metadata.AttemptedRoutes {
		out[i] = a.Message
	}
	return out
}

// ---- tests ----

func TestFind_ValidationBeforeAnyCall(t *testing.T) {
	scraper := &mockScraper{}
	f := newFinder(parisTokyo(), scraper, &mockRanker{}, nil)

	_, err := f.Find(context.Background(), with(validBody(), "toCity", "paris"))
	var ve finder.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Empty(t, scraper.queries)
}

func TestFind_ParisTokyoScenario(t *testing.T) {
	scraper := &mockScraper{scrapeFn: func(q flight.Query) ([]flight.ScrapedFlight, error) {
		switch {
		case q.Origin == "CDG" && q.Destination == "NRT" && q.Stops == flight.Nonstop:
			return offers(q, 2, 3200), nil
		case q.Origin == "CDG" && q.Destination == "NRT" && q.Stops == flight.OneStop:
			return offers(q, 2, 1500), nil
		case q.Origin == "CDG" && q.Destination == "HND":
			return offers(q, 4, 2900), nil
		}
		return nil, nil
	}}
	rk := &mockRanker{}
	f := newFinder(parisTokyo(), scraper, rk, nil)

	resp, err := f.Find(context.Background(), validBody())
	require.NoError(t, err)
	assert.Equal(t, finder.StatusSuccess, resp.Status)

	assert.Equal(t, []string{
		"CDG->NRT (stop = 0) = 2",
		"CDG->NRT (stop = 1) = 2",
		"CDG->HND (stop = 0) = 1",
	}, attemptMessages(resp), "loop stops once five distinct flights are gathered")
	assert.Equal(t, 5, resp.Metadata.CollectedFlights)

	require.Len(t, scraper.queries, 3)
	q := scraper.queries[0]
	assert.Equal(t, "2026-03-01", q.OutboundDate)
	assert.Equal(t, "2026-03-10", q.ReturnDate)
	assert.Equal(t, 2, q.Adults)

	require.Len(t, resp.CandidateFlights, 3)
	assert.Equal(t, []float64{1500, 1600, 2900}, []float64{
		resp.CandidateFlights[0].Price, resp.CandidateFlights[1].Price, resp.CandidateFlights[2].Price,
	})
	require.Len(t, resp.DropdownFlights, 2)
	for _, v := range append(resp.CandidateFlights, resp.DropdownFlights...) {
		assert.Equal(t, v.Price > 3000, v.OverBudget)
	}
	assert.Empty(t, resp.Metadata.Note)
	assert.Empty(t, resp.Metadata.Warnings)

	require.Len(t, rk.pools, 1)
	assert.Len(t, rk.pools[0], 3, "ranker sees the cheapest candidates")

	meta := resp.Metadata
	assert.Equal(t, 3000.0, meta.Budget)
	assert.Equal(t, 2, meta.Travellers)
	assert.Equal(t, "round_trip", meta.TripType)
	assert.Equal(t, "2026-03-01", meta.SearchDates.Outbound)
	require.NotNil(t, meta.SearchDates.Return)
	assert.Equal(t, "2026-03-10", *meta.SearchDates.Return)
	assert.Equal(t, []string{"CDG", "ORY"}, airport.Codes(meta.OriginAirports))
	assert.Equal(t, []string{"NRT", "HND"}, airport.Codes(meta.DestinationAirports))
}

func TestFind_DuplicatesNeverCountTwice(t *testing.T) {
	same := flight.ScrapedFlight{
		ID: "dup", Airline: "JAL", Price: 800, DepartureAirport: "CDG", ArrivalAirport: "NRT",
		OutboundDepartureTime: "2026-03-01 10:00",
	}
	scraper := &mockScraper{scrapeFn: func(q flight.Query) ([]flight.ScrapedFlight, error) {
		again := same
		again.ID = "dup-" + q.Destination
		again.BookingURL = "https://example.test/" + q.Origin
		return []flight.ScrapedFlight{same, same, again}, nil
	}}
	f := newFinder(parisTokyo(), scraper, &mockRanker{}, nil)

	resp, err := f.Find(context.Background(), validBody())
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Metadata.CollectedFlights)
	assert.Len(t, resp.Metadata.AttemptedRoutes, 8, "every combo and stop setting is tried")
	assert.Equal(t, "success", resp.Metadata.AttemptedRoutes[0].Status)
	assert.Equal(t, 1, resp.Metadata.AttemptedRoutes[0].FlightsAdded)
	for _, a := range resp.Metadata.AttemptedRoutes[1:] {
		assert.Equal(t, "empty", a.Status)
		assert.Equal(t, 0, a.FlightsAdded)
	}
	assert.Len(t, resp.CandidateFlights, 1)
	assert.Len(t, resp.DropdownFlights, 1)
}

func TestFind_TimeoutAttemptContinues(t *testing.T) {
	scraper := &mockScraper{scrapeFn: func(q flight.Query) ([]flight.ScrapedFlight, error) {
		if q.Stops == flight.Nonstop && q.Destination == "NRT" {
			return nil, &flight.ScraperError{Msg: "request timed out", Err: context.DeadlineExceeded}
		}
		return offers(q, 3, 500), nil
	}}
	f := newFinder(parisTokyo(), scraper, &mockRanker{}, nil)

	resp, err := f.Find(context.Background(), validBody())
	require.NoError(t, err)

	first := resp.Metadata.AttemptedRoutes[0]
	assert.Equal(t, "error", first.Status)
	assert.Equal(t, 0, first.FlightsAdded)
	assert.Equal(t, "CDG->NRT (stop = 0) = 0", first.Message)
	assert.Contains(t, first.Error, "timed out")

	assert.Equal(t, []string{
		"CDG->NRT (stop = 0) = 0",
		"CDG->NRT (stop = 1) = 3",
		"CDG->HND (stop = 0) = 2",
	}, attemptMessages(resp))
	assert.Equal(t, []string{"1 of 3 flight searches failed; results may be incomplete."}, resp.Metadata.Warnings)
}

func TestFind_NoResults(t *testing.T) {
	scraper := &mockScraper{scrapeFn: func(q flight.Query) ([]flight.ScrapedFlight, error) {
		if q.Origin == "ORY" {
			return nil, errors.New("boom")
		}
		return nil, nil
	}}
	rk := &mockRanker{}
	f := newFinder(parisTokyo(), scraper, rk, nil)

	resp, err := f.Find(context.Background(), validBody())
	require.NoError(t, err)

	assert.Equal(t, "no_results", resp.Status)
	assert.Equal(t, "No flights found for the supplied cities and dates.", resp.Message)
	assert.NotNil(t, resp.DropdownFlights)
	assert.Empty(t, resp.DropdownFlights)
	assert.NotNil(t, resp.CandidateFlights)
	assert.Empty(t, resp.CandidateFlights)
	assert.Len(t, resp.Metadata.AttemptedRoutes, 8)
	assert.Equal(t, 0, resp.Metadata.CollectedFlights)
	assert.Len(t, resp.Metadata.Warnings, 1)
	assert.Empty(t, rk.pools, "no ranking without flights")
}

func TestFind_SharedAirportTriedOnce(t *testing.T) {
	resolver := &mockResolver{airports: map[string][]airport.Candidate{
		"Paris": candidates("CDG", "CDG"),
		"Tokyo": candidates("NRT"),
	}}
	scraper := &mockScraper{}
	f := newFinder(resolver, scraper, &mockRanker{}, nil)

	resp, err := f.Find(context.Background(), validBody())
	require.NoError(t, err)
	assert.Len(t, scraper.queries, 2)
	assert.Len(t, resp.Metadata.AttemptedRoutes, 2)
}

func TestFind_ResolutionErrors(t *testing.T) {
	resolver := &mockResolver{airports: map[string][]airport.Candidate{"Paris": candidates("CDG")}}
	f := newFinder(resolver, &mockScraper{}, &mockRanker{}, nil)

	_, err := f.Find(context.Background(), validBody())
	var re *finder.ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "No airports found near Tokyo", err.Error())

	_, err = f.Find(context.Background(), with(validBody(), "fromCity", "Atlantis"))
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "Atlantis", re.City)
}

func TestFind_OverBudgetNote(t *testing.T) {
	scraper := &mockScraper{scrapeFn: func(q flight.Query) ([]flight.ScrapedFlight, error) {
		return offers(q, 5, 4000), nil
	}}
	f := newFinder(parisTokyo(), scraper, &mockRanker{}, nil)

	resp, err := f.Find(context.Background(), validBody())
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "All suggested flights currently exceed the provisional budget. Costs shown for awareness.", resp.Metadata.Note)
}

func TestFind_NoNoteWhenOneDropdownFits(t *testing.T) {
	scraper := &mockScraper{scrapeFn: func(q flight.Query) ([]flight.ScrapedFlight, error) {
		return offers(q, 5, 2950), nil
	}}
	f := newFinder(parisTokyo(), scraper, &mockRanker{}, nil)

	resp, err := f.Find(context.Background(), validBody())
	require.NoError(t, err)
	assert.False(t, resp.DropdownFlights[0].OverBudget)
	assert.True(t, resp.DropdownFlights[1].OverBudget)
	assert.Empty(t, resp.Metadata.Note)
}

func TestFind_RankerReceivesContext(t *testing.T) {
	scraper := &mockScraper{scrapeFn: func(q flight.Query) ([]flight.ScrapedFlight, error) {
		return offers(q, 5, 100), nil
	}}
	var got ranker.Context
	rk := &mockRanker{rankFn: func(pool []flight.ScrapedFlight, rc ranker.Context) []flight.ScrapedFlight {
		got = rc
		return []flight.ScrapedFlight{pool[2], pool[0]}
	}}
	f := newFinder(parisTokyo(), scraper, rk, nil)

	resp, err := f.Find(context.Background(), validBody())
	require.NoError(t, err)
	assert.Equal(t, 2, got.Travellers)
	assert.Len(t, got.AttemptedRoutes, 1)
	assert.Equal(t, resp.CandidateFlights[2].ID, resp.DropdownFlights[0].ID)
}

func TestFind_FormatsFlights(t *testing.T) {
	scraper := &mockScraper{scrapeFn: func(q flight.Query) ([]flight.ScrapedFlight, error) {
		return []flight.ScrapedFlight{{
			ID: "x", Airline: "Qatar Airways", Price: 1234.5, Currency: "USD", TotalDuration: "16h 40m",
			DepartureAirport: "CDG", ArrivalAirport: "NRT",
			OutboundDepartureTime: "d1", OutboundArrivalTime: "a1", OutboundStops: 1,
			OutboundRoute:       []string{"CDG", "DOH", "NRT"},
			ReturnDepartureTime: "d2", ReturnArrivalTime: "a2", ReturnStops: 2,
			ReturnRoute: []string{"HND", "ICN", "DOH", "CDG"},
			BookingURL:  "https://book.test/x",
		}}, nil
	}}
	f := newFinder(parisTokyo(), scraper, &mockRanker{}, nil)

	resp, err := f.Find(context.Background(), validBody())
	require.NoError(t, err)
	require.NotEmpty(t, resp.CandidateFlights)

	v := resp.CandidateFlights[0]
	assert.Equal(t, "$1,234.50", v.PriceDisplay)
	assert.False(t, v.OverBudget)
	assert.Equal(t, "https://book.test/x", v.BookingURL)
	assert.Equal(t, finder.Leg{
		DepartureAirport: "CDG", ArrivalAirport: "NRT", DepartureTime: "d1", ArrivalTime: "a1",
		Stops: 1, StopsLabel: "1 stop", Route: []string{"CDG", "DOH", "NRT"}, RouteDisplay: "CDG -> DOH -> NRT",
	}, v.Outbound)
	require.NotNil(t, v.Return)
	assert.Equal(t, "HND", v.Return.DepartureAirport)
	assert.Equal(t, "CDG", v.Return.ArrivalAirport)
	assert.Equal(t, "2 stops", v.Return.StopsLabel)
	assert.Equal(t, "HND -> ICN -> DOH -> CDG", v.Return.RouteDisplay)
}

func TestFind_OneWay(t *testing.T) {
	scraper := &mockScraper{scrapeFn: func(q flight.Query) ([]flight.ScrapedFlight, error) {
		return offers(q, 5, 100), nil
	}}
	f := newFinder(parisTokyo(), scraper, &mockRanker{}, nil)

	resp, err := f.Find(context.Background(), with(validBody(), "returnDate", nil))
	require.NoError(t, err)
	assert.Equal(t, "one_way", resp.Metadata.TripType)
	assert.Nil(t, resp.Metadata.SearchDates.Return)
	assert.Empty(t, scraper.queries[0].ReturnDate)
	assert.Nil(t, resp.DropdownFlights[0].Return)
	assert.Equal(t, "Direct", resp.DropdownFlights[0].Outbound.StopsLabel)
}

func TestFind_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	scraper := &mockScraper{scrapeFn: func(q flight.Query) ([]flight.ScrapedFlight, error) {
		cancel()
		return nil, context.Canceled
	}}
	f := newFinder(parisTokyo(), scraper, &mockRanker{}, nil)

	_, err := f.Find(ctx, validBody())
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, scraper.queries, 1)
}

func TestFind_CustomConfig(t *testing.T) {
	scraper := &mockScraper{scrapeFn: func(q flight.Query) ([]flight.ScrapedFlight, error) {
		return offers(q, 1, 100), nil
	}}
	cfg := finder.Config{MinFlights: 2, CandidateCount: 1, StopSequence: []flight.StopSetting{flight.OneStop}}
	f := finder.New(parisTokyo(), scraper, &mockRanker{}, cfg, nil, discard).WithClock(func() time.Time { return today })

	resp, err := f.Find(context.Background(), validBody())
	require.NoError(t, err)
	assert.Equal(t, []string{"CDG->NRT (stop = 1) = 1", "CDG->HND (stop = 1) = 1"}, attemptMessages(resp))
	assert.Len(t, resp.CandidateFlights, 1)
}

func TestFind_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	scraper := &mockScraper{scrapeFn: func(q flight.Query) ([]flight.ScrapedFlight, error) {
		if q.Stops == flight.Nonstop {
			return nil, errors.New("HTTP 500")
		}
		return nil, nil
	}}
	f := newFinder(parisTokyo(), scraper, &mockRanker{}, m)

	_, err := f.Find(context.Background(), validBody())
	require.NoError(t, err)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ScrapeAttempts.WithLabelValues("error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ScrapeAttempts.WithLabelValues("empty")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Searches.WithLabelValues("no_results")))
}
