// Package fx resolves (currency, date) pairs to USD multipliers, backed by a
// persisted rate table with a lazy remote fetch on miss.
package fx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jonesrussell/gobacklinks/internal/logger"
)

const (
	// ratePrecision is the stored scale of rate_to_usd.
	ratePrecision = 6
	// usdPrecision is the scale of converted USD amounts. Rounding is
	// half-up (half away from zero): 1.005 -> 1.01.
	usdPrecision = 2
)

// ErrRateUnavailable means no rate could be obtained for the currency right
// now. Callers must degrade price_usd to null rather than fail.
var ErrRateUnavailable = errors.New("fx: rate unavailable")

// RateStore persists daily rates. Get reports found=false on a cache miss.
// Insert must ignore the write when a concurrent caller already inserted the
// same (date, currency) pair.
type RateStore interface {
	GetRate(ctx context.Context, currency string, date time.Time) (decimal.Decimal, bool, error)
	InsertRate(ctx context.Context, date time.Time, currency string, rate decimal.Decimal) error
}

// RateSource is the remote rate provider.
type RateSource interface {
	USDRate(ctx context.Context, currency string) (decimal.Decimal, error)
}

// Resolver converts amounts to USD using the store-first strategy: at most
// one remote call per (currency, date) miss, and no database transaction is
// held while the remote call is in flight.
type Resolver struct {
	store  RateStore
	source RateSource
	logger logger.Logger
}

func NewResolver(store RateStore, source RateSource, log logger.Logger) *Resolver {
	return &Resolver{
		store:  store,
		source: source,
		logger: log,
	}
}

// Rate returns the USD multiplier for currency on asOf.
func (r *Resolver) Rate(ctx context.Context, currency string, asOf time.Time) (decimal.Decimal, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "USD" {
		return decimal.NewFromInt(1), nil
	}

	rate, found, err := r.store.GetRate(ctx, currency, asOf)
	if err != nil {
		return decimal.Zero, fmt.Errorf("read rate: %w", err)
	}
	if found {
		return rate, nil
	}

	rate, err = r.source.USDRate(ctx, currency)
	if err != nil {
		r.logger.Warn("Rate fetch failed",
			logger.String("currency", currency),
			logger.Error(err),
		)
		return decimal.Zero, fmt.Errorf("%w: %s", ErrRateUnavailable, currency)
	}
	rate = rate.Round(ratePrecision)

	// A concurrent insert of the same (date, currency) wins; the stored row
	// stays immutable either way.
	if insertErr := r.store.InsertRate(ctx, asOf, currency, rate); insertErr != nil {
		r.logger.Warn("Rate insert failed",
			logger.String("currency", currency),
			logger.Error(insertErr),
		)
	}

	return rate, nil
}

// ToUSD converts amount from currency to USD as of the given date, rounded
// half-up to 2 decimal digits. Returns ErrRateUnavailable when no rate can be
// obtained.
func (r *Resolver) ToUSD(ctx context.Context, amount decimal.Decimal, currency string, asOf time.Time) (decimal.Decimal, error) {
	rate, err := r.Rate(ctx, currency, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate).Round(usdPrecision), nil
}
