// Package lookup answers multi-domain offer searches: it normalizes the
// requested domains, fetches their offers, and flags the cheapest USD price
// per domain.
package lookup

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jonesrussell/gobacklinks/internal/domains"
	"github.com/jonesrussell/gobacklinks/internal/logger"
	"github.com/jonesrussell/gobacklinks/internal/models"
	"github.com/jonesrussell/gobacklinks/internal/repository"
)

// ErrNoValidDomains is returned when every requested domain fails
// normalization. No query is issued in that case.
var ErrNoValidDomains = errors.New("no valid domains to search")

// DomainSource resolves normalized domain keys to existing rows. Lookups are
// read-only; searching never creates domain rows.
type DomainSource interface {
	ResolveExisting(ctx context.Context, keys []string) ([]models.Domain, error)
}

// OfferSource fetches filtered offers for a set of domains.
type OfferSource interface {
	ForDomains(ctx context.Context, domainIDs []int64, filters repository.OfferFilters) ([]models.OfferDetail, error)
}

// Request is one search.
type Request struct {
	Domains       []string         `json:"domains" binding:"required"`
	Marketplaces  []string         `json:"marketplaces,omitempty"`
	MinPriceUSD   *decimal.Decimal `json:"min_price_usd,omitempty"`
	MaxPriceUSD   *decimal.Decimal `json:"max_price_usd,omitempty"`
	BestPriceOnly bool             `json:"best_price_only,omitempty"`
}

// OfferResult is one offer row in a search response.
type OfferResult struct {
	models.OfferDetail
	IsBestPrice bool `json:"is_best_price"`
}

// Summary carries the aggregate counts of one search.
type Summary struct {
	DomainsSearched   int           `json:"domains_searched"`
	DomainsWithOffers int           `json:"domains_with_offers"`
	TotalOffers       int           `json:"total_offers"`
	ElapsedTime       time.Duration `json:"-"`
}

type Response struct {
	Offers  []OfferResult `json:"offers"`
	Summary Summary       `json:"summary"`
}

type Aggregator struct {
	domains DomainSource
	offers  OfferSource
	logger  logger.Logger
}

func NewAggregator(domainSource DomainSource, offerSource OfferSource, log logger.Logger) *Aggregator {
	return &Aggregator{
		domains: domainSource,
		offers:  offerSource,
		logger:  log,
	}
}

// Search runs one lookup. Domains that fail normalization are dropped from
// the search set; an entirely invalid set fails with ErrNoValidDomains.
// Unknown domains simply contribute no offers.
func (a *Aggregator) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	keys := a.normalizeSet(req.Domains)
	if len(keys) == 0 {
		return nil, ErrNoValidDomains
	}

	resolved, err := a.domains.ResolveExisting(ctx, keys)
	if err != nil {
		return nil, err
	}

	domainIDs := make([]int64, 0, len(resolved))
	for _, d := range resolved {
		domainIDs = append(domainIDs, d.ID)
	}

	details, err := a.offers.ForDomains(ctx, domainIDs, repository.OfferFilters{
		MarketplaceSlugs: req.Marketplaces,
		MinPriceUSD:      req.MinPriceUSD,
		MaxPriceUSD:      req.MaxPriceUSD,
	})
	if err != nil {
		return nil, err
	}

	// Counted before the best-price filter: a domain whose matching offers
	// all lack a USD price still has offers.
	withOffers := make(map[int64]struct{}, len(details))
	for _, d := range details {
		withOffers[d.DomainID] = struct{}{}
	}

	offers := flagBestPrices(details)
	if req.BestPriceOnly {
		filtered := offers[:0]
		for _, o := range offers {
			if o.IsBestPrice {
				filtered = append(filtered, o)
			}
		}
		offers = filtered
	}

	resp := &Response{
		Offers: offers,
		Summary: Summary{
			// Distinct normalized domains; duplicate inputs collapse.
			DomainsSearched:   len(keys),
			DomainsWithOffers: len(withOffers),
			TotalOffers:       len(offers),
			ElapsedTime:       time.Since(start),
		},
	}

	a.logger.Debug("lookup finished",
		logger.Int("domains_searched", resp.Summary.DomainsSearched),
		logger.Int("offers", resp.Summary.TotalOffers),
		logger.Duration("took", resp.Summary.ElapsedTime),
	)
	return resp, nil
}

// normalizeSet normalizes and deduplicates the requested domains, keeping
// first-seen order. Invalid entries are dropped.
func (a *Aggregator) normalizeSet(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	keys := make([]string, 0, len(raw))
	for _, input := range raw {
		key, err := domains.Normalize(input)
		if err != nil {
			a.logger.Debug("dropping invalid lookup domain", logger.String("input", input))
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

// flagBestPrices marks, per domain, every offer whose price_usd equals the
// domain's minimum non-null price_usd. Ties all qualify. Offers with a null
// USD price are never flagged.
func flagBestPrices(details []models.OfferDetail) []OfferResult {
	minByDomain := make(map[int64]decimal.Decimal)
	for _, d := range details {
		if !d.PriceUSD.Valid {
			continue
		}
		current, ok := minByDomain[d.DomainID]
		if !ok || d.PriceUSD.Decimal.LessThan(current) {
			minByDomain[d.DomainID] = d.PriceUSD.Decimal
		}
	}

	offers := make([]OfferResult, 0, len(details))
	for _, d := range details {
		best := false
		if d.PriceUSD.Valid {
			if minPrice, ok := minByDomain[d.DomainID]; ok && d.PriceUSD.Decimal.Equal(minPrice) {
				best = true
			}
		}
		offers = append(offers, OfferResult{OfferDetail: d, IsBestPrice: best})
	}

	sort.SliceStable(offers, func(i, j int) bool {
		if offers[i].RootDomain != offers[j].RootDomain {
			return offers[i].RootDomain < offers[j].RootDomain
		}
		return offers[i].IsBestPrice && !offers[j].IsBestPrice
	})
	return offers
}
