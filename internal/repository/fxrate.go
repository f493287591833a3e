package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jonesrussell/gobacklinks/internal/logger"
)

// FXRateRepository persists one USD rate per (date, currency).
type FXRateRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewFXRateRepository(db *sql.DB, log logger.Logger) *FXRateRepository {
	return &FXRateRepository{
		db:     db,
		logger: log,
	}
}

func (r *FXRateRepository) GetRate(ctx context.Context, currency string, date time.Time) (decimal.Decimal, bool, error) {
	query := `SELECT rate_to_usd FROM fx_rates WHERE currency = $1 AND date = $2`

	var rate decimal.Decimal
	err := r.db.QueryRowContext(ctx, query, currency, date.Format("2006-01-02")).Scan(&rate)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Decimal{}, false, nil
	}
	if err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("get fx rate: %w", err)
	}
	return rate, true, nil
}

// InsertRate records a freshly fetched rate. A concurrent insert for the same
// (date, currency) wins silently; the stored value is equally fresh.
func (r *FXRateRepository) InsertRate(ctx context.Context, date time.Time, currency string, rate decimal.Decimal) error {
	insert := `
		INSERT INTO fx_rates (date, currency, rate_to_usd)
		VALUES ($1, $2, $3)
		ON CONFLICT (date, currency) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, insert, date.Format("2006-01-02"), currency, rate)
	if err != nil {
		return fmt.Errorf("insert fx rate: %w", err)
	}
	return nil
}
