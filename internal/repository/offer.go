package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/jonesrussell/gobacklinks/internal/logger"
	"github.com/jonesrussell/gobacklinks/internal/models"
)

type OfferRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewOfferRepository(db *sql.DB, log logger.Logger) *OfferRepository {
	return &OfferRepository{
		db:     db,
		logger: log,
	}
}

// Upsert reconciles an observed offer against the (domain_id, marketplace_id)
// key. A new pair is inserted with first_seen_at = last_seen_at = now; an
// existing pair has its price, listing, and flag fields overwritten and
// last_seen_at bumped, with first_seen_at untouched. A price history row is
// appended on creation and whenever any price field changes. Returns whether
// the offer was created.
func (r *OfferRepository) Upsert(ctx context.Context, q Querier, offer *models.Offer) (bool, error) {
	now := time.Now().UTC()

	existing, err := r.lockExisting(ctx, q, offer.DomainID, offer.MarketplaceID)
	if err != nil {
		return false, err
	}

	if existing == nil {
		created, insertErr := r.insert(ctx, q, offer, now)
		if insertErr != nil {
			return false, insertErr
		}
		if created {
			return true, r.appendPricePoint(ctx, q, offer, now)
		}
		// A concurrent writer inserted the pair between our lookup and
		// insert; reconcile against the now-existing row.
		existing, err = r.lockExisting(ctx, q, offer.DomainID, offer.MarketplaceID)
		if err != nil {
			return false, err
		}
		if existing == nil {
			return false, errors.New("offer vanished during upsert")
		}
	}

	priceChanged := !existing.PriceEquals(offer.PriceAmount, offer.PriceCurrency, offer.PriceUSD)

	update := `
		UPDATE offers
		SET listing_url = $2, price_amount = $3, price_currency = $4, price_usd = $5,
		    includes_content = $6, dofollow = $7, last_seen_at = $8
		WHERE id = $1
	`
	_, err = q.ExecContext(ctx, update,
		existing.ID,
		offer.ListingURL,
		offer.PriceAmount,
		offer.PriceCurrency,
		offer.PriceUSD,
		offer.IncludesContent,
		offer.Dofollow,
		now,
	)
	if err != nil {
		return false, fmt.Errorf("update offer: %w", err)
	}

	offer.ID = existing.ID
	offer.FirstSeenAt = existing.FirstSeenAt
	offer.LastSeenAt = now

	if priceChanged {
		if histErr := r.appendPricePoint(ctx, q, offer, now); histErr != nil {
			return false, histErr
		}
	}
	return false, nil
}

// lockExisting fetches the offer row for the pair with FOR UPDATE so the
// reconciliation is atomic within the surrounding batch transaction. Returns
// nil when the pair has never been seen.
func (r *OfferRepository) lockExisting(ctx context.Context, q Querier, domainID, marketplaceID int64) (*models.Offer, error) {
	query := `
		SELECT id, price_amount, price_currency, price_usd, first_seen_at
		FROM offers
		WHERE domain_id = $1 AND marketplace_id = $2
		FOR UPDATE
	`

	var o models.Offer
	err := q.QueryRowContext(ctx, query, domainID, marketplaceID).Scan(
		&o.ID, &o.PriceAmount, &o.PriceCurrency, &o.PriceUSD, &o.FirstSeenAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock offer: %w", err)
	}
	return &o, nil
}

func (r *OfferRepository) insert(ctx context.Context, q Querier, offer *models.Offer, now time.Time) (bool, error) {
	insert := `
		INSERT INTO offers (
			domain_id, marketplace_id, listing_url, price_amount, price_currency,
			price_usd, includes_content, dofollow, first_seen_at, last_seen_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (domain_id, marketplace_id) DO NOTHING
		RETURNING id
	`

	err := q.QueryRowContext(ctx, insert,
		offer.DomainID,
		offer.MarketplaceID,
		offer.ListingURL,
		offer.PriceAmount,
		offer.PriceCurrency,
		offer.PriceUSD,
		offer.IncludesContent,
		offer.Dofollow,
		now,
		now,
	).Scan(&offer.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert offer: %w", err)
	}

	offer.FirstSeenAt = now
	offer.LastSeenAt = now
	return true, nil
}

func (r *OfferRepository) appendPricePoint(ctx context.Context, q Querier, offer *models.Offer, seenAt time.Time) error {
	insert := `
		INSERT INTO price_history (offer_id, price_amount, price_currency, price_usd, seen_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := q.ExecContext(ctx, insert,
		offer.ID,
		offer.PriceAmount,
		offer.PriceCurrency,
		offer.PriceUSD,
		seenAt,
	)
	if err != nil {
		return fmt.Errorf("append price history: %w", err)
	}
	return nil
}

// OfferFilters narrows the offer read paths. A nil price bound or empty slug
// list leaves that dimension unfiltered.
type OfferFilters struct {
	MarketplaceSlugs []string
	MinPriceUSD      *decimal.Decimal
	MaxPriceUSD      *decimal.Decimal
}

const offerDetailColumns = `
	o.id, o.domain_id, o.marketplace_id, o.listing_url, o.price_amount,
	o.price_currency, o.price_usd, o.includes_content, o.dofollow,
	o.first_seen_at, o.last_seen_at,
	d.root_domain, m.name, m.slug
`

// ForDomains returns the offers of the given domains joined with domain and
// marketplace data, optionally filtered by marketplace slug and USD price
// band. Offers with a null price_usd pass only when no price band is set.
func (r *OfferRepository) ForDomains(ctx context.Context, domainIDs []int64, filters OfferFilters) ([]models.OfferDetail, error) {
	if len(domainIDs) == 0 {
		return []models.OfferDetail{}, nil
	}

	var clauses []string
	args := []any{pq.Array(domainIDs)}
	pos := 2

	if len(filters.MarketplaceSlugs) > 0 {
		clauses = append(clauses, "m.slug = ANY($"+strconv.Itoa(pos)+")")
		args = append(args, pq.Array(filters.MarketplaceSlugs))
		pos++
	}
	if filters.MinPriceUSD != nil {
		clauses = append(clauses, "o.price_usd >= $"+strconv.Itoa(pos))
		args = append(args, *filters.MinPriceUSD)
		pos++
	}
	if filters.MaxPriceUSD != nil {
		clauses = append(clauses, "o.price_usd <= $"+strconv.Itoa(pos))
		args = append(args, *filters.MaxPriceUSD)
	}

	whereClause := ""
	if len(clauses) > 0 {
		whereClause = " AND " + strings.Join(clauses, " AND ")
	}

	query := `
		SELECT ` + offerDetailColumns + `
		FROM offers o
		JOIN domains d ON d.id = o.domain_id
		JOIN marketplaces m ON m.id = o.marketplace_id
		WHERE o.domain_id = ANY($1)` + whereClause + `
		ORDER BY d.root_domain, o.price_usd NULLS LAST
	`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query offers: %w", err)
	}
	defer rows.Close()

	return scanOfferDetails(rows)
}

// BestPerDomain returns, for each domain, the offer(s) with the minimum
// non-null price_usd. Ties all qualify. Domains whose offers all lack a USD
// price yield no rows.
func (r *OfferRepository) BestPerDomain(ctx context.Context, domainIDs []int64) ([]models.OfferDetail, error) {
	if len(domainIDs) == 0 {
		return []models.OfferDetail{}, nil
	}

	query := `
		SELECT ` + offerDetailColumns + `
		FROM offers o
		JOIN domains d ON d.id = o.domain_id
		JOIN marketplaces m ON m.id = o.marketplace_id
		JOIN (
			SELECT domain_id, MIN(price_usd) AS min_price
			FROM offers
			WHERE domain_id = ANY($1) AND price_usd IS NOT NULL
			GROUP BY domain_id
		) best ON best.domain_id = o.domain_id AND best.min_price = o.price_usd
		ORDER BY d.root_domain, m.slug
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(domainIDs))
	if err != nil {
		return nil, fmt.Errorf("query best offers: %w", err)
	}
	defer rows.Close()

	return scanOfferDetails(rows)
}

func scanOfferDetails(rows *sql.Rows) ([]models.OfferDetail, error) {
	offers := make([]models.OfferDetail, 0)
	for rows.Next() {
		var o models.OfferDetail
		err := rows.Scan(
			&o.ID, &o.DomainID, &o.MarketplaceID, &o.ListingURL, &o.PriceAmount,
			&o.PriceCurrency, &o.PriceUSD, &o.IncludesContent, &o.Dofollow,
			&o.FirstSeenAt, &o.LastSeenAt,
			&o.RootDomain, &o.MarketplaceName, &o.MarketplaceSlug,
		)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		offers = append(offers, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offers: %w", err)
	}
	return offers, nil
}

// LookupStats summarizes the whole offer inventory.
type LookupStats struct {
	TotalDomains      int64               `json:"total_domains"`
	TotalOffers       int64               `json:"total_offers"`
	TotalMarketplaces int64               `json:"total_marketplaces"`
	AvgPriceUSD       decimal.NullDecimal `json:"avg_price_usd"`
}

func (r *OfferRepository) Stats(ctx context.Context) (*LookupStats, error) {
	query := `
		SELECT (SELECT COUNT(*) FROM domains),
		       COUNT(*),
		       COUNT(DISTINCT marketplace_id),
		       AVG(price_usd)
		FROM offers
	`

	stats := &LookupStats{}
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalDomains,
		&stats.TotalOffers,
		&stats.TotalMarketplaces,
		&stats.AvgPriceUSD,
	)
	if err != nil {
		return nil, fmt.Errorf("query offer stats: %w", err)
	}
	return stats, nil
}
