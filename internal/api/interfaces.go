package api

import (
	"context"

	"github.com/google/uuid"

	"github.com/neexbeast/flightfinder/internal/airport"
	"github.com/neexbeast/flightfinder/internal/finder"
	"github.com/neexbeast/flightfinder/internal/planner"
	"github.com/neexbeast/flightfinder/internal/storage"
)

// FlightSearcher runs a validated flight search.
type FlightSearcher interface {
	Search(ctx context.Context, req finder.Request) (*finder.Response, error)
}

// TripPlanner plans the outbound and return flights of a trip.
type TripPlanner interface {
	Plan(ctx context.Context, raw map[string]any) (*planner.Plan, error)
}

// AirportLookup resolves a free-text location to airport candidates.
type AirportLookup interface {
	Resolve(ctx context.Context, location string) []airport.Candidate
}

// SearchRepo defines the history operations needed by handlers.
type SearchRepo interface {
	SaveSearch(ctx context.Context, s storage.Search) error
	GetSearch(ctx context.Context, id uuid.UUID) (*storage.Search, error)
	ListRecent(ctx context.Context, limit int) ([]*storage.Search, error)
	ListByOriginAirport(ctx context.Context, code string, limit int) ([]*storage.Search, error)
}
