package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/jonesrussell/gobacklinks/internal/logger"
	"github.com/jonesrussell/gobacklinks/internal/models"
)

// Querier is satisfied by *sql.DB and *sql.Tx so the write paths can run
// inside an ingestion batch transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type DomainRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewDomainRepository(db *sql.DB, log logger.Logger) *DomainRepository {
	return &DomainRepository{
		db:     db,
		logger: log,
	}
}

// ResolveOrCreate returns the domain row for a normalized key, creating it if
// absent. Creation is insert-or-fetch: the unique constraint on root_domain
// decides races, and a conflicting insert falls back to a lookup.
func (r *DomainRepository) ResolveOrCreate(ctx context.Context, q Querier, key string) (*models.Domain, bool, error) {
	insert := `
		INSERT INTO domains (root_domain, etld1, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (root_domain) DO NOTHING
		RETURNING id, created_at
	`

	domain := &models.Domain{
		RootDomain: key,
		ETLD1:      key,
	}

	err := q.QueryRowContext(ctx, insert, key, key, time.Now().UTC()).
		Scan(&domain.ID, &domain.CreatedAt)
	if err == nil {
		return domain, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("insert domain: %w", err)
	}

	// Conflict: another writer created the row first.
	query := `SELECT id, root_domain, etld1, created_at FROM domains WHERE root_domain = $1`
	err = q.QueryRowContext(ctx, query, key).
		Scan(&domain.ID, &domain.RootDomain, &domain.ETLD1, &domain.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("fetch domain after conflict: %w", err)
	}
	return domain, false, nil
}

// ResolveExisting returns the rows for the given normalized keys. Keys with
// no row are simply absent from the result; nothing is created.
func (r *DomainRepository) ResolveExisting(ctx context.Context, keys []string) ([]models.Domain, error) {
	if len(keys) == 0 {
		return []models.Domain{}, nil
	}

	query := `
		SELECT id, root_domain, etld1, created_at
		FROM domains
		WHERE root_domain = ANY($1)
		ORDER BY root_domain
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("query domains: %w", err)
	}
	defer rows.Close()

	domains := make([]models.Domain, 0, len(keys))
	for rows.Next() {
		var d models.Domain
		if scanErr := rows.Scan(&d.ID, &d.RootDomain, &d.ETLD1, &d.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("scan domain: %w", scanErr)
		}
		domains = append(domains, d)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate domains: %w", rowsErr)
	}
	return domains, nil
}
