// Package ingest reconciles parsed marketplace datasets into the offer
// inventory. Each row becomes a create, update, skip, or failure; writes are
// grouped into fixed-size batch transactions.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jonesrussell/gobacklinks/internal/domains"
	"github.com/jonesrussell/gobacklinks/internal/importer"
	"github.com/jonesrussell/gobacklinks/internal/logger"
	"github.com/jonesrussell/gobacklinks/internal/models"
)

const (
	// DefaultBatchSize bounds the rows written per transaction.
	DefaultBatchSize = 100
	// maxReportedErrors caps the error strings returned to the caller.
	// Counters still track the true failure total.
	maxReportedErrors = 10
)

// Store is the persistence surface the pipeline writes through.
type Store interface {
	InBatch(ctx context.Context, fn func(Batch) error) error
}

// Batch is one open batch transaction. A failing operation must leave the
// batch usable for subsequent rows.
type Batch interface {
	ResolveOrCreateDomain(ctx context.Context, rootDomain string) (*models.Domain, bool, error)
	UpsertOffer(ctx context.Context, offer *models.Offer) (bool, error)
}

// MarketplaceResolver resolves or creates the upload's target marketplace.
type MarketplaceResolver interface {
	GetOrCreate(ctx context.Context, name, slug string, region *string) (*models.Marketplace, bool, error)
}

// Converter turns an amount in a source currency into USD.
type Converter interface {
	ToUSD(ctx context.Context, amount decimal.Decimal, currency string, asOf time.Time) (decimal.Decimal, error)
}

// Publisher is notified when an upload finishes. Implementations must accept
// the call without blocking row processing.
type Publisher interface {
	ImportCompleted(ctx context.Context, marketplaceSlug string, result *Result)
	MarketplaceCreated(marketplaceID int64, name, slug string)
}

// ColumnMapping names the table columns the pipeline reads. Domain and Price
// are required; the rest fall back to per-upload defaults when empty or
// absent from the table.
type ColumnMapping struct {
	Domain   string `json:"domain_column" yaml:"domain_column"`
	Price    string `json:"price_column" yaml:"price_column"`
	Currency string `json:"currency_column" yaml:"currency_column"`
	URL      string `json:"url_column" yaml:"url_column"`
	Content  string `json:"content_column" yaml:"content_column"`
	Dofollow string `json:"dofollow_column" yaml:"dofollow_column"`
}

// Defaults apply when an optional column is unmapped or a cell is blank.
type Defaults struct {
	Currency string `json:"currency" yaml:"currency"`
	Content  bool   `json:"includes_content" yaml:"includes_content"`
	Dofollow bool   `json:"dofollow" yaml:"dofollow"`
}

// Config describes one upload.
type Config struct {
	MarketplaceName   string
	MarketplaceSlug   string
	MarketplaceRegion *string
	Columns           ColumnMapping
	Defaults          Defaults
	BatchSize         int
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.MarketplaceName) == "" {
		return fmt.Errorf("marketplace name is required")
	}
	if strings.TrimSpace(c.MarketplaceSlug) == "" {
		return fmt.Errorf("marketplace slug is required")
	}
	if c.Columns.Domain == "" {
		return fmt.Errorf("domain column is required")
	}
	if c.Columns.Price == "" {
		return fmt.Errorf("price column is required")
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Defaults.Currency == "" {
		c.Defaults.Currency = "USD"
	}
	c.Defaults.Currency = strings.ToUpper(c.Defaults.Currency)
	return nil
}

// Result aggregates one upload.
type Result struct {
	TotalRows      int           `json:"total_rows_processed"`
	Successful     int           `json:"successful_imports"`
	Failed         int           `json:"failed_imports"`
	Skipped        int           `json:"skipped_rows"`
	NewDomains     int           `json:"new_domains_added"`
	ReusedDomains  int           `json:"existing_domains_reused"`
	NewOffers      int           `json:"new_offers_added"`
	UpdatedOffers  int           `json:"updated_offers"`
	Errors         []string      `json:"errors"`
	ProcessingTime time.Duration `json:"-"`
}

func (r *Result) recordError(line int, err error) {
	r.Failed++
	if len(r.Errors) < maxReportedErrors {
		r.Errors = append(r.Errors, fmt.Sprintf("row %d: %v", line, err))
	}
}

type Pipeline struct {
	store        Store
	marketplaces MarketplaceResolver
	fx           Converter
	publisher    Publisher
	logger       logger.Logger
}

func NewPipeline(store Store, marketplaces MarketplaceResolver, fx Converter, publisher Publisher, log logger.Logger) *Pipeline {
	return &Pipeline{
		store:        store,
		marketplaces: marketplaces,
		fx:           fx,
		publisher:    publisher,
		logger:       log,
	}
}

// Run ingests one parsed table. Marketplace resolution failure and batch
// commit failure abort the upload; everything else is per-row and the upload
// continues. The returned Result is valid even when err is non-nil and
// reflects the rows processed up to the failure.
func (p *Pipeline) Run(ctx context.Context, table *importer.Table, cfg Config) (*Result, error) {
	start := time.Now()
	result := &Result{Errors: []string{}}

	if err := cfg.validate(); err != nil {
		return result, err
	}

	marketplace, created, err := p.marketplaces.GetOrCreate(ctx, cfg.MarketplaceName, cfg.MarketplaceSlug, cfg.MarketplaceRegion)
	if err != nil {
		return result, fmt.Errorf("resolve marketplace: %w", err)
	}
	if created && p.publisher != nil {
		p.publisher.MarketplaceCreated(marketplace.ID, marketplace.Name, marketplace.Slug)
	}

	p.logger.Info("starting import",
		logger.String("marketplace", marketplace.Slug),
		logger.Int("rows", len(table.Rows)),
		logger.Int("batch_size", cfg.BatchSize),
	)

	for offset := 0; offset < len(table.Rows); offset += cfg.BatchSize {
		end := offset + cfg.BatchSize
		if end > len(table.Rows) {
			end = len(table.Rows)
		}

		// Parse and convert before the batch opens; the FX resolver may
		// fetch a rate remotely and must not run inside the transaction.
		prepared := make([]preparedRow, 0, end-offset)
		for _, row := range table.Rows[offset:end] {
			if pr, ok := p.prepareRow(ctx, row, &cfg, result); ok {
				prepared = append(prepared, pr)
			}
		}
		if len(prepared) == 0 {
			continue
		}

		err := p.store.InBatch(ctx, func(batch Batch) error {
			for _, pr := range prepared {
				p.writeRow(ctx, batch, marketplace.ID, pr, result)
			}
			return nil
		})
		if err != nil {
			result.ProcessingTime = time.Since(start)
			return result, fmt.Errorf("commit batch: %w", err)
		}
	}

	result.ProcessingTime = time.Since(start)
	p.logger.Info("import finished",
		logger.String("marketplace", marketplace.Slug),
		logger.Int("successful", result.Successful),
		logger.Int("failed", result.Failed),
		logger.Int("skipped", result.Skipped),
		logger.Duration("took", result.ProcessingTime),
	)

	if p.publisher != nil {
		p.publisher.ImportCompleted(ctx, marketplace.Slug, result)
	}
	return result, nil
}

// preparedRow is one parsed and converted row, ready to write.
type preparedRow struct {
	line       int
	rootDomain string
	offer      *models.Offer
}

// prepareRow parses and converts one row without touching the store. It
// returns false when the row was consumed as a skip or a failure; writeRow
// settles the remaining outcomes.
func (p *Pipeline) prepareRow(ctx context.Context, row importer.Row, cfg *Config, result *Result) (preparedRow, bool) {
	result.TotalRows++

	rawDomain := row.Get(cfg.Columns.Domain)
	rawPrice := row.Get(cfg.Columns.Price)
	if rawDomain == "" || rawPrice == "" {
		result.Skipped++
		return preparedRow{}, false
	}

	rootDomain, err := domains.Normalize(rawDomain)
	if err != nil {
		result.recordError(row.Line, fmt.Errorf("invalid domain %q: %w", rawDomain, err))
		return preparedRow{}, false
	}

	amount, err := parsePrice(rawPrice)
	if err != nil {
		result.recordError(row.Line, fmt.Errorf("invalid price %q: %w", rawPrice, err))
		return preparedRow{}, false
	}
	// Zero and negative prices are placeholder rows, not errors.
	if amount.Sign() <= 0 {
		result.Skipped++
		return preparedRow{}, false
	}

	currency := cfg.Defaults.Currency
	if cfg.Columns.Currency != "" {
		if cell := row.Get(cfg.Columns.Currency); cell != "" {
			currency = strings.ToUpper(cell)
		}
	}

	offer := &models.Offer{
		PriceAmount:     amount,
		PriceCurrency:   currency,
		IncludesContent: parseBool(rowValue(row, cfg.Columns.Content), cfg.Defaults.Content),
		Dofollow:        parseBool(rowValue(row, cfg.Columns.Dofollow), cfg.Defaults.Dofollow),
	}
	if cfg.Columns.URL != "" {
		if cell := row.Get(cfg.Columns.URL); cell != "" {
			offer.ListingURL = &cell
		}
	}

	if usd, convErr := p.fx.ToUSD(ctx, amount, currency, time.Now().UTC()); convErr == nil {
		offer.PriceUSD = decimal.NewNullDecimal(usd)
	} else {
		// Never invent a rate: keep the original amount and leave the
		// USD column null.
		p.logger.Warn("usd conversion unavailable",
			logger.String("currency", currency),
			logger.Error(convErr),
		)
	}

	return preparedRow{line: row.Line, rootDomain: rootDomain, offer: offer}, true
}

// writeRow stores one prepared row inside the open batch. Outcomes are
// mutually exclusive with prepareRow's: across both phases a row is counted
// exactly once as skipped, failed, or successful.
func (p *Pipeline) writeRow(ctx context.Context, batch Batch, marketplaceID int64, pr preparedRow, result *Result) {
	domain, createdDomain, err := batch.ResolveOrCreateDomain(ctx, pr.rootDomain)
	if err != nil {
		result.recordError(pr.line, fmt.Errorf("resolve domain %q: %w", pr.rootDomain, err))
		return
	}
	if createdDomain {
		result.NewDomains++
	} else {
		result.ReusedDomains++
	}

	pr.offer.DomainID = domain.ID
	pr.offer.MarketplaceID = marketplaceID
	createdOffer, err := batch.UpsertOffer(ctx, pr.offer)
	if err != nil {
		result.recordError(pr.line, fmt.Errorf("store offer for %q: %w", pr.rootDomain, err))
		return
	}
	if createdOffer {
		result.NewOffers++
	} else {
		result.UpdatedOffers++
	}
	result.Successful++
}

func rowValue(row importer.Row, column string) string {
	if column == "" {
		return ""
	}
	return row.Get(column)
}

// parsePrice accepts plain decimals plus the thousands separators and
// currency signs marketplace exports tend to carry.
func parsePrice(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.TrimPrefix(cleaned, "€")
	cleaned = strings.TrimPrefix(cleaned, "£")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	return decimal.NewFromString(cleaned)
}

func parseBool(cell string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "true", "yes", "y", "1":
		return true
	case "false", "no", "n", "0":
		return false
	default:
		return fallback
	}
}
