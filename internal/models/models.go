// Package models defines the row types shared by the repositories, the
// ingestion pipeline, and the lookup aggregator.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Domain is a canonical registrable domain. RootDomain is always the output
// of domains.Normalize and is unique; it is never re-derived from ETLD1.
type Domain struct {
	ID         int64     `json:"id" db:"id"`
	RootDomain string    `json:"root_domain" db:"root_domain"`
	ETLD1      string    `json:"etld1" db:"etld1"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Marketplace is a backlink marketplace. Slug is the stable identity key;
// name and region may be refreshed in place on re-ingestion.
type Marketplace struct {
	ID        int64      `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	Slug      string     `json:"slug" db:"slug"`
	Region    *string    `json:"region,omitempty" db:"region"`
	Notes     *string    `json:"notes,omitempty" db:"notes"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// Offer is one marketplace's listing for one domain. At most one row exists
// per (DomainID, MarketplaceID); re-ingestion updates it in place.
type Offer struct {
	ID              int64               `json:"id" db:"id"`
	DomainID        int64               `json:"domain_id" db:"domain_id"`
	MarketplaceID   int64               `json:"marketplace_id" db:"marketplace_id"`
	ListingURL      *string             `json:"listing_url,omitempty" db:"listing_url"`
	PriceAmount     decimal.Decimal     `json:"price_amount" db:"price_amount"`
	PriceCurrency   string              `json:"price_currency" db:"price_currency"`
	PriceUSD        decimal.NullDecimal `json:"price_usd" db:"price_usd"`
	IncludesContent bool                `json:"includes_content" db:"includes_content"`
	Dofollow        bool                `json:"dofollow" db:"dofollow"`
	FirstSeenAt     time.Time           `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt      time.Time           `json:"last_seen_at" db:"last_seen_at"`
}

// PriceEquals reports whether two offers carry the same observed price.
// Used by the upsert to decide whether a price history row must be appended.
func (o *Offer) PriceEquals(amount decimal.Decimal, currency string, usd decimal.NullDecimal) bool {
	if !o.PriceAmount.Equal(amount) {
		return false
	}
	if o.PriceCurrency != currency {
		return false
	}
	if o.PriceUSD.Valid != usd.Valid {
		return false
	}
	if o.PriceUSD.Valid && !o.PriceUSD.Decimal.Equal(usd.Decimal) {
		return false
	}
	return true
}

// OfferDetail is an offer joined with its domain and marketplace, as served
// by the read paths.
type OfferDetail struct {
	Offer
	RootDomain      string `json:"root_domain" db:"root_domain"`
	MarketplaceName string `json:"marketplace_name" db:"marketplace_name"`
	MarketplaceSlug string `json:"marketplace_slug" db:"marketplace_slug"`
}

// PricePoint is one entry in the append-only price ledger for an offer.
type PricePoint struct {
	ID            int64               `json:"id" db:"id"`
	OfferID       int64               `json:"offer_id" db:"offer_id"`
	PriceAmount   decimal.Decimal     `json:"price_amount" db:"price_amount"`
	PriceCurrency string              `json:"price_currency" db:"price_currency"`
	PriceUSD      decimal.NullDecimal `json:"price_usd" db:"price_usd"`
	SeenAt        time.Time           `json:"seen_at" db:"seen_at"`
}

// FXRate is the stored USD multiplier for a currency on a given day.
// Rows are immutable once written; (Date, Currency) is unique.
type FXRate struct {
	ID        int64           `json:"id" db:"id"`
	Date      time.Time       `json:"date" db:"date"`
	Currency  string          `json:"currency" db:"currency"`
	RateToUSD decimal.Decimal `json:"rate_to_usd" db:"rate_to_usd"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
