package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jonesrussell/gobacklinks/internal/logger"
	"github.com/jonesrussell/gobacklinks/internal/models"
)

// ErrNotFound is returned by single-row lookups when no row matches.
var ErrNotFound = errors.New("not found")

type MarketplaceRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewMarketplaceRepository(db *sql.DB, log logger.Logger) *MarketplaceRepository {
	return &MarketplaceRepository{
		db:     db,
		logger: log,
	}
}

const marketplaceColumns = `id, name, slug, region, notes, created_at, updated_at`

func scanMarketplace(row interface{ Scan(...any) error }) (*models.Marketplace, error) {
	var m models.Marketplace
	err := row.Scan(&m.ID, &m.Name, &m.Slug, &m.Region, &m.Notes, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetOrCreate resolves a marketplace by slug, creating it when absent. Slug
// is the identity key and never changes; a stored name or region that differs
// from the supplied one is refreshed in place. Returns whether the
// marketplace was created.
func (r *MarketplaceRepository) GetOrCreate(ctx context.Context, name, slug string, region *string) (*models.Marketplace, bool, error) {
	existing, err := r.GetBySlug(ctx, slug)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	if err == nil {
		m, refreshErr := r.refresh(ctx, existing, name, region)
		return m, false, refreshErr
	}

	insert := `
		INSERT INTO marketplaces (name, slug, region, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (slug) DO NOTHING
		RETURNING ` + marketplaceColumns

	m, insertErr := scanMarketplace(r.db.QueryRowContext(ctx, insert, name, slug, region, time.Now().UTC()))
	if insertErr == nil {
		r.logger.Info("Marketplace created",
			logger.Int64("marketplace_id", m.ID),
			logger.String("slug", m.Slug),
		)
		return m, true, nil
	}
	if !errors.Is(insertErr, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("insert marketplace: %w", insertErr)
	}

	// Lost the race; the winner's row is authoritative.
	existing, err = r.GetBySlug(ctx, slug)
	if err != nil {
		return nil, false, fmt.Errorf("fetch marketplace after conflict: %w", err)
	}
	m, refreshErr := r.refresh(ctx, existing, name, region)
	return m, false, refreshErr
}

func (r *MarketplaceRepository) refresh(ctx context.Context, m *models.Marketplace, name string, region *string) (*models.Marketplace, error) {
	nameChanged := name != "" && m.Name != name
	regionChanged := region != nil && (m.Region == nil || *m.Region != *region)
	if !nameChanged && !regionChanged {
		return m, nil
	}

	if nameChanged {
		m.Name = name
	}
	if regionChanged {
		m.Region = region
	}
	now := time.Now().UTC()
	m.UpdatedAt = &now

	update := `UPDATE marketplaces SET name = $2, region = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, update, m.ID, m.Name, m.Region, now); err != nil {
		return nil, fmt.Errorf("update marketplace: %w", err)
	}
	return m, nil
}

func (r *MarketplaceRepository) GetBySlug(ctx context.Context, slug string) (*models.Marketplace, error) {
	query := `SELECT ` + marketplaceColumns + ` FROM marketplaces WHERE slug = $1`

	m, err := scanMarketplace(r.db.QueryRowContext(ctx, query, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query marketplace: %w", err)
	}
	return m, nil
}

func (r *MarketplaceRepository) List(ctx context.Context) ([]models.Marketplace, error) {
	query := `SELECT ` + marketplaceColumns + ` FROM marketplaces ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query marketplaces: %w", err)
	}
	defer rows.Close()

	marketplaces := make([]models.Marketplace, 0)
	for rows.Next() {
		m, scanErr := scanMarketplace(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan marketplace: %w", scanErr)
		}
		marketplaces = append(marketplaces, *m)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate marketplaces: %w", rowsErr)
	}
	return marketplaces, nil
}

// MarketplaceStats summarizes one marketplace's offer inventory.
type MarketplaceStats struct {
	MarketplaceID int64               `json:"marketplace_id"`
	TotalOffers   int64               `json:"total_offers"`
	UniqueDomains int64               `json:"unique_domains"`
	MinPriceUSD   decimal.NullDecimal `json:"min_price_usd"`
	AvgPriceUSD   decimal.NullDecimal `json:"avg_price_usd"`
	MaxPriceUSD   decimal.NullDecimal `json:"max_price_usd"`
}

func (r *MarketplaceRepository) Stats(ctx context.Context, marketplaceID int64) (*MarketplaceStats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(DISTINCT domain_id),
		       MIN(price_usd),
		       AVG(price_usd),
		       MAX(price_usd)
		FROM offers
		WHERE marketplace_id = $1
	`

	stats := &MarketplaceStats{MarketplaceID: marketplaceID}
	err := r.db.QueryRowContext(ctx, query, marketplaceID).Scan(
		&stats.TotalOffers,
		&stats.UniqueDomains,
		&stats.MinPriceUSD,
		&stats.AvgPriceUSD,
		&stats.MaxPriceUSD,
	)
	if err != nil {
		return nil, fmt.Errorf("query marketplace stats: %w", err)
	}
	return stats, nil
}
