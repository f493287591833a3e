package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jonesrussell/gobacklinks/internal/ingest"
	"github.com/jonesrussell/gobacklinks/internal/logger"
	"github.com/jonesrussell/gobacklinks/internal/models"
)

// Store bundles the repositories behind one handle and provides the batch
// transaction used by ingestion.
type Store struct {
	db           *sql.DB
	Domains      *DomainRepository
	Marketplaces *MarketplaceRepository
	Offers       *OfferRepository
	FXRates      *FXRateRepository
	logger       logger.Logger
}

var _ ingest.Store = (*Store)(nil)

func NewStore(db *sql.DB, log logger.Logger) *Store {
	return &Store{
		db:           db,
		Domains:      NewDomainRepository(db, log),
		Marketplaces: NewMarketplaceRepository(db, log),
		Offers:       NewOfferRepository(db, log),
		FXRates:      NewFXRateRepository(db, log),
		logger:       log,
	}
}

// InBatch runs fn inside a single transaction. fn returning an error rolls
// the whole batch back; otherwise the batch commits atomically.
func (s *Store) InBatch(ctx context.Context, fn func(ingest.Batch) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}

	batch := &txBatch{tx: tx, store: s}
	if err := fn(batch); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("failed to roll back batch", logger.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// txBatch exposes the per-row operations of one batch transaction. Each
// operation runs under a savepoint so a failed row leaves the remainder of
// the batch usable.
type txBatch struct {
	tx    *sql.Tx
	store *Store
	seq   int
}

func (b *txBatch) ResolveOrCreateDomain(ctx context.Context, rootDomain string) (*models.Domain, bool, error) {
	var (
		domain  *models.Domain
		created bool
	)
	err := b.withSavepoint(ctx, func() error {
		var opErr error
		domain, created, opErr = b.store.Domains.ResolveOrCreate(ctx, b.tx, rootDomain)
		return opErr
	})
	if err != nil {
		return nil, false, err
	}
	return domain, created, nil
}

func (b *txBatch) UpsertOffer(ctx context.Context, offer *models.Offer) (bool, error) {
	var created bool
	err := b.withSavepoint(ctx, func() error {
		var opErr error
		created, opErr = b.store.Offers.Upsert(ctx, b.tx, offer)
		return opErr
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// withSavepoint wraps fn in a savepoint. On failure the savepoint is rolled
// back, clearing the aborted state so subsequent rows can still execute.
func (b *txBatch) withSavepoint(ctx context.Context, fn func() error) error {
	b.seq++
	name := fmt.Sprintf("row_%d", b.seq)

	if _, err := b.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}

	if err := fn(); err != nil {
		if _, rbErr := b.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("rollback to savepoint: %w", rbErr)
		}
		return err
	}

	if _, err := b.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}
