package airport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/neexbeast/flightfinder/internal/cache"
	"github.com/neexbeast/flightfinder/internal/geocode"
	"github.com/neexbeast/flightfinder/internal/llm"
)

// MaxCandidates is how many airports a location resolves to.
const MaxCandidates = 2

// Geocoder is satisfied by *geocode.Client.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (geocode.Coordinates, bool)
}

// Resolver maps free-text locations to nearby airports.
type Resolver struct {
	data      *Dataset
	geocoder  Geocoder
	store     cache.Store
	completer llm.Completer
	log       *slog.Logger
}

// NewResolver constructs a Resolver. A nil store disables result caching.
func NewResolver(data *Dataset, geocoder Geocoder, store cache.Store, log *slog.Logger) *Resolver {
	return &Resolver{data: data, geocoder: geocoder, store: store, completer: llm.Disabled{}, log: log}
}

// WithCompleter enables model-assisted lookups for locations the dataset cannot place.
func (r *Resolver) WithCompleter(c llm.Completer) *Resolver {
	if c != nil {
		r.completer = c
	}
	return r
}

// Dataset returns the airport table backing r.
func (r *Resolver) Dataset() *Dataset { return r.data }

// Resolve returns up to MaxCandidates airports for location, best first.
// An empty result means no viable airport; it is never an error.
func (r *Resolver) Resolve(ctx context.Context, location string) []Candidate {
	location = strings.Join(strings.Fields(location), " ")
	if location == "" {
		return nil
	}
	key := cache.NormalizeKey(location)

	if r.store != nil {
		cached, err := cache.GetJSON[[]Candidate](ctx, r.store, key)
		if err != nil {
			r.log.Warn("airport cache read failed", "location", location, "err", err)
		}
		if cached != nil {
			return *cached
		}
	}

	found, via := r.resolve(ctx, location)
	if len(found) == 0 {
		r.log.Info("no airports resolved", "location", location)
		return nil
	}
	r.log.Info("resolved airport candidates", "location", location, "via", via, "codes", strings.Join(Codes(found), ","))

	if r.store != nil {
		if err := cache.SetJSON(ctx, r.store, key, found); err != nil {
			r.log.Warn("airport cache write failed", "location", location, "err", err)
		}
	}
	return found
}

func (r *Resolver) resolve(ctx context.Context, location string) ([]Candidate, string) {
	if point, ok := r.geocoder.Geocode(ctx, location); ok {
		return r.data.Nearest(point.Lat, point.Lon, MaxCandidates), "geocode"
	}
	if found := r.data.ByCity(location, MaxCandidates); len(found) > 0 {
		return found, "city"
	}
	return r.suggestAirports(ctx, location), "model"
}

const (
	airportLookupSystem = "Reply using valid JSON only."
	cityLookupSystem    = "Return only JSON objects."
)

type airportSuggestion struct {
	Airports []struct {
		Code string `json:"code"`
		Name string `json:"name"`
	} `json:"airports"`
}

// suggestAirports asks the model for IATA codes. Codes the dataset knows come
// back with full details; other well-formed codes carry only the model's name.
func (r *Resolver) suggestAirports(ctx context.Context, location string) []Candidate {
	reply, err := r.completer.Complete(ctx, llm.Prompt{
		System: airportLookupSystem,
		User: "You know the most common passenger airports. Given a city or metro area, return JSON " +
			"with key 'airports' containing up to two objects with 'code' (IATA) and 'name'. Focus on " +
			"major airports that handle international routes. City: " + fmt.Sprintf("%q.", location),
		Temperature: 0,
		MaxTokens:   120,
	})
	if err != nil {
		r.log.Debug("airport lookup model unavailable", "location", location, "err", err)
		return nil
	}

	var s airportSuggestion
	if err := json.Unmarshal([]byte(llm.StripCodeFence(reply)), &s); err != nil {
		r.log.Warn("airport lookup reply not JSON", "location", location, "err", err)
		return nil
	}

	var out []Candidate
	seen := make(map[string]bool)
	for _, a := range s.Airports {
		code := strings.ToUpper(strings.TrimSpace(a.Code))
		if !isIATACode(code) || seen[code] {
			continue
		}
		seen[code] = true

		c, ok := r.data.Lookup(code)
		if !ok {
			name := strings.TrimSpace(a.Name)
			if name == "" {
				name = code
			}
			c = Candidate{Code: code, Name: name}
		}
		out = append(out, c)
		if len(out) == MaxCandidates {
			break
		}
	}
	return out
}

type citySuggestion struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

// CanonicalCity resolves user text to a canonical city name: a dataset match
// first, then a model suggestion, then the city of the nearest airport to the
// geocoded point. Returns "" when the location cannot be placed.
func (r *Resolver) CanonicalCity(ctx context.Context, name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	if canon := r.data.CanonicalCity(name); canon != "" {
		return canon
	}

	if suggestion := r.suggestCity(ctx, name); suggestion != "" {
		r.log.Info("model suggested city", "input", name, "city", suggestion)
		if canon := r.data.CanonicalCity(suggestion); canon != "" {
			return canon
		}
		return suggestion
	}

	if point, ok := r.geocoder.Geocode(ctx, name); ok {
		if nearest := r.data.Nearest(point.Lat, point.Lon, 1); len(nearest) > 0 {
			return r.data.canonicalFor(nearest[0])
		}
	}
	return ""
}

func (r *Resolver) suggestCity(ctx context.Context, name string) string {
	reply, err := r.completer.Complete(ctx, llm.Prompt{
		System: cityLookupSystem,
		User: "You normalise noisy travel city inputs. Given an input city name, respond with strictly " +
			"valid JSON containing keys 'city' and 'country'. Example output: " +
			"{\"city\": \"Kathmandu\", \"country\": \"Nepal\"}. If unsure, return the best guess. Input: " +
			fmt.Sprintf("%q", name),
		Temperature: 0.1,
		MaxTokens:   40,
	})
	if err != nil {
		return ""
	}

	var s citySuggestion
	if err := json.Unmarshal([]byte(llm.StripCodeFence(reply)), &s); err != nil {
		return ""
	}
	city := strings.TrimSpace(s.City)
	if city == "" {
		return ""
	}
	if country := strings.TrimSpace(s.Country); country != "" {
		return city + ", " + country
	}
	return city
}
