package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/neexbeast/flightfinder/internal/finder"
	"github.com/neexbeast/flightfinder/internal/planner"
	"github.com/neexbeast/flightfinder/internal/storage"
)

const maxBodyBytes = 1 << 20

// Handlers holds the dependencies for all HTTP handlers.
// A nil repo disables search history.
type Handlers struct {
	flights  FlightSearcher
	trips    TripPlanner
	airports AirportLookup
	repo     SearchRepo
	log      *slog.Logger
	now      func() time.Time
}

// NewHandlers constructs Handlers with all required dependencies.
func NewHandlers(flights FlightSearcher, trips TripPlanner, airports AirportLookup, repo SearchRepo, log *slog.Logger) *Handlers {
	return &Handlers{
		flights:  flights,
		trips:    trips,
		airports: airports,
		repo:     repo,
		log:      log,
		now:      time.Now,
	}
}

// WithClock replaces the clock used to validate search dates.
func (h *Handlers) WithClock(now func() time.Time) *Handlers {
	h.now = now
	return h
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeSearchError maps search and planning failures to HTTP statuses.
func (h *Handlers) writeSearchError(w http.ResponseWriter, r *http.Request, err error) {
	var ve finder.ValidationError
	var re *finder.ResolutionError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.As(err, &re):
		writeError(w, http.StatusUnprocessableEntity, re.Error())
	case errors.Is(err, finder.ErrNoCombos), errors.Is(err, planner.ErrUnresolvedCities):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.log.Error("search failed", "request_id", middleware.GetReqID(r.Context()), "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var raw map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&raw); err != nil || raw == nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return nil, false
	}
	return raw, true
}

type flightSearchResponse struct {
	SearchID uuid.UUID `json:"searchId"`
	*finder.Response
}

// SearchFlights handles POST /api/v1/flights/search.
func (h *Handlers) SearchFlights(w http.ResponseWriter, r *http.Request) {
	raw, ok := decodeBody(w, r)
	if !ok {
		return
	}

	req, err := finder.ParseRequest(raw, h.now())
	if err != nil {
		h.writeSearchError(w, r, err)
		return
	}

	resp, err := h.flights.Search(r.Context(), req)
	if err != nil {
		h.writeSearchError(w, r, err)
		return
	}

	out := flightSearchResponse{SearchID: uuid.New(), Response: resp}
	var ret *string
	if req.RoundTrip() {
		ret = &req.ReturnDate
	}
	h.record(r.Context(), storage.Search{
		ID:           out.SearchID,
		Kind:         storage.KindFlight,
		FromCity:     req.FromCity,
		ToCity:       req.ToCity,
		OutboundDate: req.OutboundDate,
		ReturnDate:   ret,
		Status:       resp.Status,
	}, req, out)

	writeJSON(w, http.StatusOK, out)
}

type tripPlanResponse struct {
	SearchID uuid.UUID `json:"searchId"`
	*planner.Plan
}

// PlanTrip handles POST /api/v1/trips/plan.
func (h *Handlers) PlanTrip(w http.ResponseWriter, r *http.Request) {
	raw, ok := decodeBody(w, r)
	if !ok {
		return
	}

	plan, err := h.trips.Plan(r.Context(), raw)
	if err != nil {
		h.writeSearchError(w, r, err)
		return
	}

	out := tripPlanResponse{SearchID: uuid.New(), Plan: plan}
	ret := plan.Dates.Return
	h.record(r.Context(), storage.Search{
		ID:           out.SearchID,
		Kind:         storage.KindTrip,
		FromCity:     plan.NormalizedCities.Current,
		ToCity:       plan.NormalizedCities.Destination,
		OutboundDate: plan.Dates.Outbound,
		ReturnDate:   &ret,
		Status:       plan.Status,
	}, raw, out)

	writeJSON(w, http.StatusOK, out)
}

// record saves a search to history. Failures are logged, never surfaced.
func (h *Handlers) record(ctx context.Context, s storage.Search, request, response any) {
	if h.repo == nil {
		return
	}
	var err error
	if s.Request, err = json.Marshal(request); err != nil {
		h.log.Warn("encoding search request for history", "err", err)
		return
	}
	if s.Response, err = json.Marshal(response); err != nil {
		h.log.Warn("encoding search response for history", "err", err)
		return
	}
	if err := h.repo.SaveSearch(ctx, s); err != nil {
		h.log.Warn("saving search history failed", "search_id", s.ID, "err", err)
	}
}

// LookupAirports handles GET /api/v1/airports?q=.
func (h *Handlers) LookupAirports(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":    q,
		"airports": h.airports.Resolve(r.Context(), q),
	})
}

// ListSearches handles GET /api/v1/searches?limit=&origin=.
func (h *Handlers) ListSearches(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "search history is not configured")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	var (
		searches []*storage.Search
		err      error
	)
	if origin := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("origin"))); origin != "" {
		searches, err = h.repo.ListByOriginAirport(r.Context(), origin, limit)
	} else {
		searches, err = h.repo.ListRecent(r.Context(), limit)
	}
	if err != nil {
		h.log.Error("listing searches failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"searches": searches})
}

// GetSearch handles GET /api/v1/searches/{id}.
func (h *Handlers) GetSearch(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "search history is not configured")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid search id")
		return
	}

	s, err := h.repo.GetSearch(r.Context(), id)
	if err != nil {
		h.log.Error("db get failed", "search_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, "search not found")
		return
	}

	writeJSON(w, http.StatusOK, s)
}

// Pinger is a dependency the health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandlerFunc returns an http.HandlerFunc that pings every configured
// dependency; 200 when all respond, 503 otherwise.
func HealthHandlerFunc(deps map[string]Pinger, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{"status": "ok"}

		for name, p := range deps {
			if p == nil {
				continue
			}
			body[name] = "ok"
			if err := p.Ping(ctx); err != nil {
				log.Error("health check: ping failed", "dependency", name, "err", err)
				body[name] = "error"
				status = http.StatusServiceUnavailable
			}
		}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}

		writeJSON(w, status, body)
	}
}
