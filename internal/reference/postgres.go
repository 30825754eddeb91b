// Package reference answers existence lookups against the countries and
// activities reference tables.
package reference

import (
	"context"
	"fmt"

	"github.com/triage-ai/icio-mcp/internal/executor"
)

const (
	countryExistsSQL = `SELECT 1 AS found FROM countries WHERE iso3 = $1 LIMIT 1`
	sectorExistsSQL  = `SELECT 1 AS found FROM activities WHERE code = $1 LIMIT 1`
)

// Querier abstracts the query executor for testability.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) ([]executor.Row, error)
}

// PostgresStore looks codes up with one scoped query per call. Results are
// not cached.
type PostgresStore struct {
	q Querier
}

// NewPostgresStore creates a PostgresStore on top of the given executor.
func NewPostgresStore(q Querier) *PostgresStore {
	return &PostgresStore{q: q}
}

// CountryExists reports whether iso3 is present in the countries table.
func (s *PostgresStore) CountryExists(ctx context.Context, iso3 string) (bool, error) {
	rows, err := s.q.Query(ctx, countryExistsSQL, iso3)
	if err != nil {
		return false, fmt.Errorf("CountryExists: %w", err)
	}
	return len(rows) > 0, nil
}

// SectorExists reports whether code is present in the activities table.
func (s *PostgresStore) SectorExists(ctx context.Context, code string) (bool, error) {
	rows, err := s.q.Query(ctx, sectorExistsSQL, code)
	if err != nil {
		return false, fmt.Errorf("SectorExists: %w", err)
	}
	return len(rows) > 0, nil
}
