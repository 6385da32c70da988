package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/neexbeast/flightfinder/internal/cache"
	"github.com/neexbeast/flightfinder/internal/metrics"
)

const (
	nominatimDefaultURL = "https://nominatim.openstreetmap.org/search"
	defaultUserAgent    = "flightfinder/1.0"

	httpTimeout        = 10 * time.Second
	defaultMinInterval = time.Second
	defaultMaxRetries  = 2
	defaultRetryWait   = time.Second
)

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// cachedResult records both hits and "not found" answers.
type cachedResult struct {
	Found bool        `json:"found"`
	Point Coordinates `json:"point"`
}

// errTransient marks failures worth retrying.
var errTransient = errors.New("transient geocoder failure")

// Client geocodes free text against a Nominatim-compatible search endpoint.
// A single Client throttles all its callers to one request per interval.
type Client struct {
	baseURL    string
	userAgent  string
	client     *http.Client
	limiter    *rate.Limiter
	store      cache.Store
	maxRetries int
	retryWait  time.Duration
	log        *slog.Logger
	metrics    *metrics.Metrics
}

// NewClient constructs a Client for the public Nominatim service.
func NewClient(userAgent string, store cache.Store, log *slog.Logger) *Client {
	return NewClientWithURL(nominatimDefaultURL, userAgent, store, log)
}

// NewClientWithURL constructs a Client pointing at a custom search URL (for tests and self-hosted geocoders).
func NewClientWithURL(baseURL, userAgent string, store cache.Store, log *slog.Logger) *Client {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if store == nil {
		store = cache.NewMemoryStore(0, 0)
	}
	return &Client{
		baseURL:    baseURL,
		userAgent:  userAgent,
		client:     &http.Client{Timeout: httpTimeout},
		limiter:    rate.NewLimiter(rate.Every(defaultMinInterval), 1),
		store:      store,
		maxRetries: defaultMaxRetries,
		retryWait:  defaultRetryWait,
		log:        log,
	}
}

// WithThrottle overrides the minimum spacing between requests and the wait after a failed attempt.
func (c *Client) WithThrottle(minInterval, retryWait time.Duration) *Client {
	c.limiter = rate.NewLimiter(rate.Every(minInterval), 1)
	c.retryWait = retryWait
	return c
}

// WithMetrics attaches collectors for lookup outcomes.
func (c *Client) WithMetrics(m *metrics.Metrics) *Client {
	c.metrics = m
	return c
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode returns the coordinates for query. Every failure degrades to false;
// definitive answers, including "not found", are cached by exact query text.
func (c *Client) Geocode(ctx context.Context, query string) (Coordinates, bool) {
	if query == "" {
		return Coordinates{}, false
	}

	cached, err := cache.GetJSON[cachedResult](ctx, c.store, query)
	if err != nil {
		c.log.Warn("geocode cache read failed", "query", query, "err", err)
	}
	if cached != nil {
		c.metrics.ObserveGeocode("cached")
		return cached.Point, cached.Found
	}

	point, found, err := c.lookupWithRetry(ctx, query)
	if err != nil {
		c.metrics.ObserveGeocode("error")
		c.log.Warn("geocode failed", "query", query, "err", err)
		return Coordinates{}, false
	}

	if err := cache.SetJSON(ctx, c.store, query, cachedResult{Found: found, Point: point}); err != nil {
		c.log.Warn("geocode cache write failed", "query", query, "err", err)
	}
	if found {
		c.metrics.ObserveGeocode("hit")
	} else {
		c.metrics.ObserveGeocode("miss")
	}
	return point, found
}

func (c *Client) lookupWithRetry(ctx context.Context, query string) (Coordinates, bool, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Coordinates{}, false, ctx.Err()
			case <-time.After(c.retryWait):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return Coordinates{}, false, fmt.Errorf("waiting for geocoder slot: %w", err)
		}

		point, found, err := c.lookup(ctx, query)
		if err == nil {
			return point, found, nil
		}
		lastErr = err
		if !errors.Is(err, errTransient) {
			break
		}
	}
	return Coordinates{}, false, lastErr
}

func (c *Client) lookup(ctx context.Context, query string) (Coordinates, bool, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")
	params.Set("accept-language", "en")
	endpoint := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Coordinates{}, false, fmt.Errorf("creating request for %s: %w", endpoint, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return Coordinates{}, false, fmt.Errorf("GET %s: %w: %w", endpoint, errTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return Coordinates{}, false, fmt.Errorf("GET %s returned status %d: %w", endpoint, resp.StatusCode, errTransient)
	}
	if resp.StatusCode != http.StatusOK {
		return Coordinates{}, false, fmt.Errorf("GET %s returned status %d", endpoint, resp.StatusCode)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return Coordinates{}, false, fmt.Errorf("decoding response from %s: %w", endpoint, err)
	}
	if len(places) == 0 {
		return Coordinates{}, false, nil
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return Coordinates{}, false, fmt.Errorf("parsing latitude %q: %w", places[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return Coordinates{}, false, fmt.Errorf("parsing longitude %q: %w", places[0].Lon, err)
	}
	return Coordinates{Lat: lat, Lon: lon}, true, nil
}
