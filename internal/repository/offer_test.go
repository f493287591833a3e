package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/gobacklinks/internal/logger"
	"github.com/jonesrussell/gobacklinks/internal/models"
)

func testOffer() *models.Offer {
	return &models.Offer{
		DomainID:      1,
		MarketplaceID: 2,
		PriceAmount:   decimal.RequireFromString("50"),
		PriceCurrency: "EUR",
		PriceUSD:      decimal.NewNullDecimal(decimal.RequireFromString("45.00")),
		Dofollow:      true,
	}
}

func TestOfferRepository_Upsert_CreatesAndAppendsHistory(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOfferRepository(db, logger.NewNop())

	offer := testOffer()
	mock.ExpectQuery("SELECT id, price_amount, price_currency, price_usd, first_seen_at").
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "price_amount", "price_currency", "price_usd", "first_seen_at"}))
	mock.ExpectQuery("INSERT INTO offers").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectExec("INSERT INTO price_history").
		WithArgs(int64(11), offer.PriceAmount, "EUR", offer.PriceUSD, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	created, err := repo.Upsert(context.Background(), db, offer)
	require.NoError(t, err)

	assert.True(t, created)
	assert.Equal(t, int64(11), offer.ID)
	assert.False(t, offer.FirstSeenAt.IsZero())
	assert.Equal(t, offer.FirstSeenAt, offer.LastSeenAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOfferRepository_Upsert_UpdatesInPlaceWithoutHistoryWhenPriceUnchanged(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOfferRepository(db, logger.NewNop())

	offer := testOffer()
	firstSeen := time.Now().UTC().Add(-24 * time.Hour)
	mock.ExpectQuery("SELECT id, price_amount, price_currency, price_usd, first_seen_at").
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "price_amount", "price_currency", "price_usd", "first_seen_at"}).
			AddRow(int64(11), "50", "EUR", "45.00", firstSeen))
	mock.ExpectExec("UPDATE offers").
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := repo.Upsert(context.Background(), db, offer)
	require.NoError(t, err)

	assert.False(t, created)
	assert.Equal(t, int64(11), offer.ID)
	// first_seen_at survives the update untouched.
	assert.Equal(t, firstSeen, offer.FirstSeenAt)
	assert.True(t, offer.LastSeenAt.After(firstSeen))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOfferRepository_Upsert_AppendsHistoryOnPriceChange(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOfferRepository(db, logger.NewNop())

	offer := testOffer()
	offer.PriceAmount = decimal.RequireFromString("60")
	offer.PriceUSD = decimal.NewNullDecimal(decimal.RequireFromString("54.00"))

	firstSeen := time.Now().UTC().Add(-24 * time.Hour)
	mock.ExpectQuery("SELECT id, price_amount, price_currency, price_usd, first_seen_at").
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "price_amount", "price_currency", "price_usd", "first_seen_at"}).
			AddRow(int64(11), "50", "EUR", "45.00", firstSeen))
	mock.ExpectExec("UPDATE offers").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO price_history").
		WithArgs(int64(11), offer.PriceAmount, "EUR", offer.PriceUSD, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	created, err := repo.Upsert(context.Background(), db, offer)
	require.NoError(t, err)

	assert.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOfferRepository_Upsert_LostInsertRaceFallsBackToUpdate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOfferRepository(db, logger.NewNop())

	offer := testOffer()
	firstSeen := time.Now().UTC()
	mock.ExpectQuery("SELECT id, price_amount, price_currency, price_usd, first_seen_at").
		WillReturnRows(sqlmock.NewRows([]string{"id", "price_amount", "price_currency", "price_usd", "first_seen_at"}))
	mock.ExpectQuery("INSERT INTO offers").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("SELECT id, price_amount, price_currency, price_usd, first_seen_at").
		WillReturnRows(sqlmock.NewRows([]string{"id", "price_amount", "price_currency", "price_usd", "first_seen_at"}).
			AddRow(int64(11), "50", "EUR", "45.00", firstSeen))
	mock.ExpectExec("UPDATE offers").
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := repo.Upsert(context.Background(), db, offer)
	require.NoError(t, err)

	assert.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOfferRepository_ForDomains_AppliesFilters(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOfferRepository(db, logger.NewNop())

	minPrice := decimal.RequireFromString("5")
	maxPrice := decimal.RequireFromString("100")

	rows := sqlmock.NewRows([]string{
		"id", "domain_id", "marketplace_id", "listing_url", "price_amount",
		"price_currency", "price_usd", "includes_content", "dofollow",
		"first_seen_at", "last_seen_at", "root_domain", "name", "slug",
	}).AddRow(
		int64(11), int64(1), int64(2), nil, "50", "EUR", "45.00", false, true,
		time.Now().UTC(), time.Now().UTC(), "example.com", "Acme Links", "acme",
	)

	mock.ExpectQuery("SELECT(.|\n)+FROM offers o(.|\n)+slug = ANY(.|\n)+price_usd >=(.|\n)+price_usd <=").
		WillReturnRows(rows)

	details, err := repo.ForDomains(context.Background(), []int64{1}, OfferFilters{
		MarketplaceSlugs: []string{"acme"},
		MinPriceUSD:      &minPrice,
		MaxPriceUSD:      &maxPrice,
	})
	require.NoError(t, err)

	require.Len(t, details, 1)
	assert.Equal(t, "example.com", details[0].RootDomain)
	assert.Equal(t, "acme", details[0].MarketplaceSlug)
	assert.True(t, details[0].PriceUSD.Decimal.Equal(decimal.RequireFromString("45.00")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOfferRepository_ForDomains_EmptySetSkipsQuery(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOfferRepository(db, logger.NewNop())

	details, err := repo.ForDomains(context.Background(), nil, OfferFilters{})
	require.NoError(t, err)

	assert.Empty(t, details)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOfferRepository_BestPerDomain(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOfferRepository(db, logger.NewNop())

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "domain_id", "marketplace_id", "listing_url", "price_amount",
		"price_currency", "price_usd", "includes_content", "dofollow",
		"first_seen_at", "last_seen_at", "root_domain", "name", "slug",
	}).
		AddRow(int64(1), int64(1), int64(2), nil, "8", "USD", "8.00", false, true, now, now, "example.com", "A", "a").
		AddRow(int64(2), int64(1), int64(3), nil, "8", "USD", "8.00", false, true, now, now, "example.com", "B", "b")

	mock.ExpectQuery("MIN").WillReturnRows(rows)

	details, err := repo.BestPerDomain(context.Background(), []int64{1})
	require.NoError(t, err)

	// Ties at the minimum all come back.
	require.Len(t, details, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOfferRepository_Stats(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOfferRepository(db, logger.NewNop())

	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{"domains", "offers", "marketplaces", "avg"}).
			AddRow(int64(100), int64(250), int64(4), "19.99"))

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(100), stats.TotalDomains)
	assert.Equal(t, int64(250), stats.TotalOffers)
	assert.Equal(t, int64(4), stats.TotalMarketplaces)
	require.True(t, stats.AvgPriceUSD.Valid)
	require.NoError(t, mock.ExpectationsWereMet())
}
