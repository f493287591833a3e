package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/gobacklinks/internal/importer"
	"github.com/jonesrussell/gobacklinks/internal/logger"
	"github.com/jonesrussell/gobacklinks/internal/models"
)

type fakeStore struct {
	domains    map[string]*models.Domain
	offers     map[string]*models.Offer
	nextID     int64
	batchCalls int
	commitErr  error
	failDomain string
	batchOpen  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		domains: make(map[string]*models.Domain),
		offers:  make(map[string]*models.Offer),
	}
}

func (s *fakeStore) InBatch(_ context.Context, fn func(Batch) error) error {
	s.batchCalls++
	s.batchOpen = true
	defer func() { s.batchOpen = false }()
	if err := fn(s); err != nil {
		return err
	}
	return s.commitErr
}

func (s *fakeStore) ResolveOrCreateDomain(_ context.Context, rootDomain string) (*models.Domain, bool, error) {
	if rootDomain == s.failDomain {
		return nil, false, errors.New("constraint violation")
	}
	if d, ok := s.domains[rootDomain]; ok {
		return d, false, nil
	}
	s.nextID++
	d := &models.Domain{ID: s.nextID, RootDomain: rootDomain, ETLD1: rootDomain, CreatedAt: time.Now()}
	s.domains[rootDomain] = d
	return d, true, nil
}

func (s *fakeStore) UpsertOffer(_ context.Context, offer *models.Offer) (bool, error) {
	key := fmt.Sprintf("%d/%d", offer.DomainID, offer.MarketplaceID)
	if existing, ok := s.offers[key]; ok {
		offer.ID = existing.ID
		offer.FirstSeenAt = existing.FirstSeenAt
		s.offers[key] = offer
		return false, nil
	}
	s.nextID++
	offer.ID = s.nextID
	offer.FirstSeenAt = time.Now()
	s.offers[key] = offer
	return true, nil
}

type fakeMarketplaces struct {
	err     error
	calls   int
	created bool
}

func (m *fakeMarketplaces) GetOrCreate(_ context.Context, name, slug string, region *string) (*models.Marketplace, bool, error) {
	m.calls++
	if m.err != nil {
		return nil, false, m.err
	}
	return &models.Marketplace{ID: 7, Name: name, Slug: slug, Region: region}, m.created, nil
}

type fakeConverter struct {
	rates     map[string]string
	onConvert func()
}

func (c *fakeConverter) ToUSD(_ context.Context, amount decimal.Decimal, currency string, _ time.Time) (decimal.Decimal, error) {
	if c.onConvert != nil {
		c.onConvert()
	}
	if currency == "USD" {
		return amount.Round(2), nil
	}
	rate, ok := c.rates[currency]
	if !ok {
		return decimal.Zero, errors.New("rate unavailable")
	}
	r, _ := decimal.NewFromString(rate)
	return amount.Mul(r).Round(2), nil
}

type fakePublisher struct {
	slug        string
	result      *Result
	createdSlug string
}

func (p *fakePublisher) ImportCompleted(_ context.Context, slug string, result *Result) {
	p.slug = slug
	p.result = result
}

func (p *fakePublisher) MarketplaceCreated(_ int64, _, slug string) {
	p.createdSlug = slug
}

func parseTable(t *testing.T, csv string) *importer.Table {
	t.Helper()
	table, err := importer.ReadCSV(strings.NewReader(csv))
	require.NoError(t, err)
	return table
}

func testConfig() Config {
	return Config{
		MarketplaceName: "Link Market",
		MarketplaceSlug: "link-market",
		Columns: ColumnMapping{
			Domain:   "domain",
			Price:    "price",
			Currency: "currency",
			URL:      "url",
			Dofollow: "dofollow",
		},
		Defaults: Defaults{Currency: "USD", Dofollow: true},
	}
}

func newTestPipeline(store *fakeStore, pub Publisher) (*Pipeline, *fakeMarketplaces) {
	marketplaces := &fakeMarketplaces{}
	converter := &fakeConverter{rates: map[string]string{"EUR": "0.9"}}
	return NewPipeline(store, marketplaces, converter, pub, logger.NewNop()), marketplaces
}

func TestRunImportsRows(t *testing.T) {
	table := parseTable(t, strings.Join([]string{
		"domain,price,currency,url,dofollow",
		"https://example.com/page,100,USD,https://m.test/1,yes",
		"shop.de,50,EUR,,no",
		"Example.COM,120,USD,,",
	}, "\n"))

	store := newFakeStore()
	pub := &fakePublisher{}
	pipeline, _ := newTestPipeline(store, pub)

	result, err := pipeline.Run(context.Background(), table, testConfig())
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalRows)
	assert.Equal(t, 3, result.Successful)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 0, result.Skipped)
	// example.com appears twice under different spellings but is one domain.
	assert.Equal(t, 2, result.NewDomains)
	assert.Equal(t, 1, result.ReusedDomains)
	assert.Equal(t, 2, result.NewOffers)
	assert.Equal(t, 1, result.UpdatedOffers)
	assert.Empty(t, result.Errors)

	// EUR converted at 0.9.
	offer := store.offers["3/7"]
	require.NotNil(t, offer)
	require.True(t, offer.PriceUSD.Valid)
	assert.True(t, offer.PriceUSD.Decimal.Equal(decimal.RequireFromString("45.00")),
		"got %s", offer.PriceUSD.Decimal)
	assert.False(t, offer.Dofollow)

	// Publisher observed the finished upload.
	assert.Equal(t, "link-market", pub.slug)
	require.NotNil(t, pub.result)
	assert.Equal(t, 3, pub.result.Successful)
}

func TestRunSkipsPlaceholderRows(t *testing.T) {
	table := parseTable(t, strings.Join([]string{
		"domain,price,currency",
		",100,USD",
		"example.com,,USD",
		"example.com,0,USD",
		"example.com,-5,USD",
	}, "\n"))

	store := newFakeStore()
	pipeline, _ := newTestPipeline(store, nil)

	result, err := pipeline.Run(context.Background(), table, testConfig())
	require.NoError(t, err)

	assert.Equal(t, 4, result.TotalRows)
	assert.Equal(t, 4, result.Skipped)
	assert.Equal(t, 0, result.Successful)
	assert.Equal(t, 0, result.Failed)
	assert.Empty(t, store.offers)
}

func TestRunRecordsRowFailures(t *testing.T) {
	table := parseTable(t, strings.Join([]string{
		"domain,price,currency",
		"not a domain,100,USD",
		"example.com,abc,USD",
		"good.org,10,USD",
	}, "\n"))

	store := newFakeStore()
	pipeline, _ := newTestPipeline(store, nil)

	result, err := pipeline.Run(context.Background(), table, testConfig())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 1, result.Successful)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "row 2")
	assert.Contains(t, result.Errors[0], "not a domain")
	assert.Contains(t, result.Errors[1], "row 3")
	assert.Contains(t, result.Errors[1], "abc")
}

func TestRunCapsReportedErrors(t *testing.T) {
	lines := []string{"domain,price,currency"}
	for i := 0; i < 15; i++ {
		lines = append(lines, "not a domain,100,USD")
	}
	table := parseTable(t, strings.Join(lines, "\n"))

	store := newFakeStore()
	pipeline, _ := newTestPipeline(store, nil)

	result, err := pipeline.Run(context.Background(), table, testConfig())
	require.NoError(t, err)

	assert.Equal(t, 15, result.Failed)
	assert.Len(t, result.Errors, maxReportedErrors)
}

func TestRunLeavesUSDNullWhenRateUnavailable(t *testing.T) {
	table := parseTable(t, "domain,price,currency\nexample.com,500,GBP")

	store := newFakeStore()
	pipeline, _ := newTestPipeline(store, nil)

	result, err := pipeline.Run(context.Background(), table, testConfig())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Successful)
	offer := store.offers["1/7"]
	require.NotNil(t, offer)
	assert.False(t, offer.PriceUSD.Valid)
	assert.Equal(t, "GBP", offer.PriceCurrency)
	assert.True(t, offer.PriceAmount.Equal(decimal.NewFromInt(500)))
}

func TestRunIsIdempotent(t *testing.T) {
	csv := "domain,price,currency\nexample.com,100,USD\nshop.de,50,EUR"
	store := newFakeStore()
	pipeline, _ := newTestPipeline(store, nil)

	first, err := pipeline.Run(context.Background(), parseTable(t, csv), testConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, first.NewOffers)
	assert.Equal(t, 2, first.NewDomains)

	second, err := pipeline.Run(context.Background(), parseTable(t, csv), testConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, second.Successful)
	assert.Equal(t, 0, second.NewOffers)
	assert.Equal(t, 0, second.NewDomains)
	assert.Equal(t, 2, second.UpdatedOffers)
	assert.Equal(t, 2, second.ReusedDomains)
}

func TestRunBatchesCommits(t *testing.T) {
	lines := []string{"domain,price,currency"}
	for i := 0; i < 5; i++ {
		lines = append(lines, fmt.Sprintf("site%d.com,10,USD", i))
	}
	table := parseTable(t, strings.Join(lines, "\n"))

	store := newFakeStore()
	pipeline, _ := newTestPipeline(store, nil)

	cfg := testConfig()
	cfg.BatchSize = 2
	result, err := pipeline.Run(context.Background(), table, cfg)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Successful)
	assert.Equal(t, 3, store.batchCalls)
}

func TestRunConvertsCurrenciesBeforeBatchOpens(t *testing.T) {
	table := parseTable(t, strings.Join([]string{
		"domain,price,currency",
		"example.com,100,EUR",
		"shop.de,50,EUR",
		"blog.io,30,USD",
	}, "\n"))

	store := newFakeStore()
	conversions := 0
	converter := &fakeConverter{
		rates: map[string]string{"EUR": "0.9"},
		onConvert: func() {
			conversions++
			// The rate fetch may hit the network; no transaction may be
			// outstanding while it runs.
			assert.False(t, store.batchOpen)
		},
	}
	pipeline := NewPipeline(store, &fakeMarketplaces{}, converter, nil, logger.NewNop())

	result, err := pipeline.Run(context.Background(), table, testConfig())
	require.NoError(t, err)

	assert.Equal(t, 3, conversions)
	assert.Equal(t, 3, result.Successful)
}

func TestRunCommitFailureIsFatal(t *testing.T) {
	table := parseTable(t, "domain,price,currency\nexample.com,100,USD")

	store := newFakeStore()
	store.commitErr = errors.New("connection reset")
	pipeline, _ := newTestPipeline(store, nil)

	result, err := pipeline.Run(context.Background(), table, testConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit batch")
	require.NotNil(t, result)
}

func TestRunMarketplaceFailureIsFatal(t *testing.T) {
	table := parseTable(t, "domain,price,currency\nexample.com,100,USD")

	store := newFakeStore()
	pipeline, marketplaces := newTestPipeline(store, nil)
	marketplaces.err = errors.New("database down")

	_, err := pipeline.Run(context.Background(), table, testConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve marketplace")
	assert.Equal(t, 0, store.batchCalls)
}

func TestRunPublishesMarketplaceCreated(t *testing.T) {
	table := parseTable(t, "domain,price,currency\nexample.com,100,USD")

	store := newFakeStore()
	pub := &fakePublisher{}
	pipeline, marketplaces := newTestPipeline(store, pub)
	marketplaces.created = true

	_, err := pipeline.Run(context.Background(), table, testConfig())
	require.NoError(t, err)
	assert.Equal(t, "link-market", pub.createdSlug)
}

func TestRunStorageFailureDoesNotAbortBatch(t *testing.T) {
	table := parseTable(t, strings.Join([]string{
		"domain,price,currency",
		"broken.com,10,USD",
		"fine.com,20,USD",
	}, "\n"))

	store := newFakeStore()
	store.failDomain = "broken.com"
	pipeline, _ := newTestPipeline(store, nil)

	result, err := pipeline.Run(context.Background(), table, testConfig())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Successful)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "broken.com")
}

func TestConfigValidation(t *testing.T) {
	cfg := testConfig()
	cfg.MarketplaceSlug = ""
	pipeline, _ := newTestPipeline(newFakeStore(), nil)

	_, err := pipeline.Run(context.Background(), parseTable(t, "domain,price\na.com,1"), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slug")

	cfg = testConfig()
	cfg.Columns.Price = ""
	_, err = pipeline.Run(context.Background(), parseTable(t, "domain,price\na.com,1"), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "price column")
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"100", "100", true},
		{"1,250.50", "1250.50", true},
		{"$99.99", "99.99", true},
		{"€45", "45", true},
		{" 80.5 ", "80.5", true},
		{"abc", "", false},
		{"10 EUR", "", false},
	}
	for _, tt := range tests {
		got, err := parsePrice(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "parsePrice(%q) = %s", tt.in, got)
	}
}
