package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	KindFlight = "flight"
	KindTrip   = "trip"

	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Querier abstracts the subset of pgxpool.Pool used by Repository.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Search is one stored flight search or trip plan.
type Search struct {
	ID           uuid.UUID       `json:"id"`
	Kind         string          `json:"kind"`
	FromCity     string          `json:"fromCity"`
	ToCity       string          `json:"toCity"`
	OutboundDate string          `json:"outboundDate"`
	ReturnDate   *string         `json:"returnDate"`
	Status       string          `json:"status"`
	Request      json.RawMessage `json:"request"`
	Response     json.RawMessage `json:"response"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Repository stores search history.
type Repository struct {
	q Querier
}

// NewRepository constructs a Repository backed by the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{q: pool}
}

// NewRepositoryWithQuerier constructs a Repository with a custom Querier (for tests).
func NewRepositoryWithQuerier(q Querier) *Repository {
	return &Repository{q: q}
}

const searchColumns = `id, kind, from_city, to_city, outbound_date::text, return_date::text, status, request, response, created_at`

// SaveSearch inserts s. Request and Response must hold valid JSON.
func (r *Repository) SaveSearch(ctx context.Context, s Search) error {
	const q = `
		INSERT INTO flight_searches (id, kind, from_city, to_city, outbound_date, return_date, status, request, response)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if _, err := r.q.Exec(ctx, q,
		s.ID, s.Kind, s.FromCity, s.ToCity, s.OutboundDate, s.ReturnDate, s.Status,
		[]byte(s.Request), []byte(s.Response),
	); err != nil {
		return fmt.Errorf("inserting search %s: %w", s.ID, err)
	}
	return nil
}

// GetSearch returns the search with the given id, or nil, nil when absent.
func (r *Repository) GetSearch(ctx context.Context, id uuid.UUID) (*Search, error) {
	q := `SELECT ` + searchColumns + ` FROM flight_searches WHERE id = $1`

	s, err := scanSearch(r.q.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying search %s: %w", id, err)
	}
	return s, nil
}

// ListRecent returns the newest searches first. limit is clamped to [1, MaxListLimit].
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]*Search, error) {
	q := `SELECT ` + searchColumns + ` FROM flight_searches ORDER BY created_at DESC LIMIT $1`

	rows, err := r.q.Query(ctx, q, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying recent searches: %w", err)
	}
	return collect(rows)
}

// ListByOriginAirport returns searches whose response resolved the given
// origin airport code. Uses the JSONB @> containment operator.
func (r *Repository) ListByOriginAirport(ctx context.Context, code string, limit int) ([]*Search, error) {
	filter, err := json.Marshal(map[string]any{
		"metadata": map[string]any{
			"originAirports": []map[string]string{{"code": code}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling JSONB filter: %w", err)
	}

	q := `SELECT ` + searchColumns + ` FROM flight_searches WHERE response @> $1::jsonb ORDER BY created_at DESC LIMIT $2`

	rows, err := r.q.Query(ctx, q, string(filter), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying searches by origin airport %s: %w", code, err)
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]*Search, error) {
	defer rows.Close()

	results := []*Search{}
	for rows.Next() {
		s, err := scanSearch(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search rows: %w", err)
	}
	return results, nil
}

func scanSearch(row pgx.Row) (*Search, error) {
	var s Search
	var request, response []byte
	if err := row.Scan(
		&s.ID,
		&s.Kind,
		&s.FromCity,
		&s.ToCity,
		&s.OutboundDate,
		&s.ReturnDate,
		&s.Status,
		&request,
		&response,
		&s.CreatedAt,
	); err != nil {
		return nil, err
	}
	if !json.Valid(request) || !json.Valid(response) {
		return nil, fmt.Errorf("search %s holds invalid JSON", s.ID)
	}
	s.Request = request
	s.Response = response
	return &s, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}
