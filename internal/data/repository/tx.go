package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"isp-portal/pkg/database"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Transactor runs fn inside a single database transaction. The *Repository
// handed to fn is bound to that transaction; returning an error rolls back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(tx *Repository) error) error
}

type transactor struct {
	db     database.Querier
	log    *zap.Logger
	delays []time.Duration
}

func NewTransactor(db database.Querier, log *zap.Logger) Transactor {
	return &transactor{
		db:     db,
		log:    log.With(zap.String("repository", "tx")),
		delays: []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
	}
}

func (t *transactor) WithinTx(ctx context.Context, fn func(tx *Repository) error) error {
	var err error

	for i := 0; i <= len(t.delays); i++ {
		err = t.runOnce(ctx, fn)
		if err == nil || !IsRetryable(err) || i == len(t.delays) {
			break
		}

		t.log.Warn("Retrying transaction", zap.Int("attempt", i+1), zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.delays[i]):
		}
	}

	return err
}

func (t *transactor) runOnce(ctx context.Context, fn func(tx *Repository) error) error {
	tx, err := t.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// no-op once committed
	defer tx.Rollback(ctx)

	if err := fn(NewRepository(tx, t.log)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// IsRetryable reports serialization failures, deadlocks and dropped
// connections, the errors worth replaying a whole transaction for.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer")
}

// IsUniqueViolation reports a unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
