package flight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	serpAPIDefaultURL = "https://serpapi.com/search"
	serpAPIEngine     = "google_flights"
	httpTimeout       = 30 * time.Second
	maxBodyBytes      = 8 << 20

	tripTypeRoundTrip = 1
	tripTypeOneWay    = 2
)

// Keys a return-options response may list its offers or segments under.
var returnOptionKeys = []string{"return_flights", "flights", "best_flights", "other_flights"}

// Scraper queries the SerpAPI Google Flights engine.
type Scraper struct {
	apiKey  string
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// NewScraper constructs a Scraper with the given API key.
func NewScraper(apiKey string, log *slog.Logger) *Scraper {
	return NewScraperWithURL(serpAPIDefaultURL, apiKey, log)
}

// NewScraperWithURL constructs a Scraper pointing at a custom base URL (for tests).
func NewScraperWithURL(baseURL, apiKey string, log *slog.Logger) *Scraper {
	return &Scraper{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: httpTimeout},
		log:     log,
	}
}

// WithTimeout overrides the per-request timeout.
func (s *Scraper) WithTimeout(d time.Duration) *Scraper {
	s.client.Timeout = d
	return s
}

// Scrape runs one provider search and returns its normalised offers.
// Transport, status and payload failures are returned as *ScraperError.
// Offers without a usable price are dropped.
func (s *Scraper) Scrape(ctx context.Context, q Query) ([]ScrapedFlight, error) {
	params := s.searchParams(q)
	payload, err := s.fetch(ctx, params)
	if err != nil {
		return nil, err
	}

	offers := append(asSegments(payload["best_flights"]), asSegments(payload["other_flights"])...)

	flights := make([]ScrapedFlight, 0, len(offers))
	for _, item := range offers {
		if q.RoundTrip() && !hasReturnSegments(item) {
			if token, _ := item["departure_token"].(string); token != "" {
				item = s.withReturnSegments(ctx, params, item, token)
			}
		}
		f, ok := normalizeOffer(item, q)
		if !ok {
			s.log.Debug("dropping offer without price", "origin", q.Origin, "destination", q.Destination)
			continue
		}
		flights = append(flights, f)
	}
	return flights, nil
}

func (s *Scraper) searchParams(q Query) url.Values {
	params := url.Values{}
	params.Set("engine", serpAPIEngine)
	params.Set("departure_id", q.Origin)
	params.Set("arrival_id", q.Destination)
	params.Set("outbound_date", q.OutboundDate)
	params.Set("currency", currencyUSD)
	params.Set("adults", strconv.Itoa(q.Adults))
	params.Set("stops", strconv.Itoa(q.Stops.providerValue()))
	params.Set("api_key", s.apiKey)
	if q.RoundTrip() {
		params.Set("type", strconv.Itoa(tripTypeRoundTrip))
		params.Set("return_date", q.ReturnDate)
	} else {
		params.Set("type", strconv.Itoa(tripTypeOneWay))
	}
	return params
}

// withReturnSegments makes one follow-up request for the return leg of an
// offer. Failures are logged and the offer is returned unchanged.
func (s *Scraper) withReturnSegments(ctx context.Context, search url.Values, item map[string]any, token string) map[string]any {
	params := url.Values{}
	for k, v := range search {
		params[k] = v
	}
	params.Set("departure_token", token)

	payload, err := s.fetch(ctx, params)
	if err != nil {
		s.log.Warn("return-flight fetch failed", "err", err)
		return item
	}

	segs := returnSegmentsFrom(payload)
	if len(segs) == 0 {
		s.log.Warn("no return segments found for departure token")
		return item
	}
	s.log.Info("fetched return segments via departure token", "segments", len(segs))

	enriched := make(map[string]any, len(item)+1)
	for k, v := range item {
		enriched[k] = v
	}
	list := make([]any, len(segs))
	for i, seg := range segs {
		list[i] = seg
	}
	enriched["return_flights"] = list
	return enriched
}

// returnSegmentsFrom takes the first non-empty list; when it holds whole offers
// rather than segments, the first offer's segments are used.
func returnSegmentsFrom(payload map[string]any) []segment {
	segs := firstSegments(payload, returnOptionKeys)
	if len(segs) == 0 {
		return nil
	}
	if nested := asSegments(segs[0]["flights"]); len(nested) > 0 {
		return nested
	}
	return segs
}

func (s *Scraper) fetch(ctx context.Context, params url.Values) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, newScraperError("creating request", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		// The wrapped URL carries the API key.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		if isTimeout(err) {
			return nil, newScraperError("request timed out", err)
		}
		return nil, newScraperError("request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, newScraperError("reading response", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, newScraperError(fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
		}
		return nil, newScraperError("malformed JSON", err)
	}

	if resp.StatusCode != http.StatusOK {
		detail := "Unknown error"
		if e, ok := scalarString(payload["error"]); ok {
			detail = e
		} else if raw, ok := scalarString(payload["raw_html"]); ok {
			detail = raw
		}
		return nil, newScraperError(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, detail), nil)
	}

	if e, present := payload["error"]; present {
		return nil, newScraperError(fmt.Sprintf("provider error: %v", e), nil)
	}
	return payload, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
