package repository

import (
	"context"
	"fmt"
	"time"

	"isp-portal/internal/data/entity"
	"isp-portal/pkg/database"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type LoyaltyRepository interface {
	FindByPhone(ctx context.Context, phone string) (*entity.CustomerLoyalty, error)
	FindByPhoneForUpdate(ctx context.Context, phone string) (*entity.CustomerLoyalty, error)
	// EnsureAccount seeds an empty account so there is always a row to lock.
	EnsureAccount(ctx context.Context, phone string, now time.Time) error
	Save(ctx context.Context, l *entity.CustomerLoyalty) error
	// InsertTransaction returns false when the order was already awarded.
	InsertTransaction(ctx context.Context, t *entity.LoyaltyTransaction) (bool, error)
}

type loyaltyRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewLoyaltyRepository(db database.Querier, log *zap.Logger) LoyaltyRepository {
	return &loyaltyRepository{
		db:  db,
		log: log.With(zap.String("repository", "loyalty")),
	}
}

func (r *loyaltyRepository) FindByPhone(ctx context.Context, phone string) (*entity.CustomerLoyalty, error) {
	return r.find(ctx, phone, false)
}

func (r *loyaltyRepository) FindByPhoneForUpdate(ctx context.Context, phone string) (*entity.CustomerLoyalty, error) {
	return r.find(ctx, phone, true)
}

func (r *loyaltyRepository) find(ctx context.Context, phone string, lock bool) (*entity.CustomerLoyalty, error) {
	query := `
		SELECT phone_number, total_points, points_earned_total, tier, lifetime_spend, total_transactions,
		       average_transaction_value, is_high_value, is_vip, is_platinum, last_transaction_at,
		       created_at, updated_at
		FROM customer_loyalty
		WHERE phone_number = $1
	`
	if lock {
		query += ` FOR UPDATE`
	}

	var l entity.CustomerLoyalty
	err := r.db.QueryRow(ctx, query, phone).Scan(
		&l.PhoneNumber,
		&l.TotalPoints,
		&l.PointsEarnedTotal,
		&l.Tier,
		&l.LifetimeSpend,
		&l.TotalTransactions,
		&l.AverageTransactionValue,
		&l.IsHighValue,
		&l.IsVIP,
		&l.IsPlatinum,
		&l.LastTransactionAt,
		&l.CreatedAt,
		&l.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find loyalty record", zap.Error(err))
		return nil, fmt.Errorf("find loyalty record: %w", err)
	}

	return &l, nil
}

func (r *loyaltyRepository) EnsureAccount(ctx context.Context, phone string, now time.Time) error {
	query := `
		INSERT INTO customer_loyalty (phone_number, tier, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (phone_number) DO NOTHING
	`

	if _, err := r.db.Exec(ctx, query, phone, entity.TierBronze, now); err != nil {
		r.log.Error("Failed to seed loyalty record", zap.Error(err), zap.String("phone", phone))
		return fmt.Errorf("seed loyalty record %s: %w", phone, err)
	}

	return nil
}

func (r *loyaltyRepository) Save(ctx context.Context, l *entity.CustomerLoyalty) error {
	query := `
		INSERT INTO customer_loyalty (
			phone_number, total_points, points_earned_total, tier, lifetime_spend, total_transactions,
			average_transaction_value, is_high_value, is_vip, is_platinum, last_transaction_at,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (phone_number) DO UPDATE SET
			total_points              = EXCLUDED.total_points,
			points_earned_total       = EXCLUDED.points_earned_total,
			tier                      = EXCLUDED.tier,
			lifetime_spend            = EXCLUDED.lifetime_spend,
			total_transactions        = EXCLUDED.total_transactions,
			average_transaction_value = EXCLUDED.average_transaction_value,
			is_high_value             = EXCLUDED.is_high_value,
			is_vip                    = EXCLUDED.is_vip,
			is_platinum               = EXCLUDED.is_platinum,
			last_transaction_at       = EXCLUDED.last_transaction_at,
			updated_at                = EXCLUDED.updated_at
	`

	_, err := r.db.Exec(ctx, query,
		l.PhoneNumber,
		l.TotalPoints,
		l.PointsEarnedTotal,
		l.Tier,
		l.LifetimeSpend,
		l.TotalTransactions,
		l.AverageTransactionValue,
		l.IsHighValue,
		l.IsVIP,
		l.IsPlatinum,
		l.LastTransactionAt,
		l.CreatedAt,
		l.UpdatedAt,
	)

	if err != nil {
		r.log.Error("Failed to save loyalty record", zap.Error(err))
		return fmt.Errorf("save loyalty record: %w", err)
	}

	return nil
}

func (r *loyaltyRepository) InsertTransaction(ctx context.Context, t *entity.LoyaltyTransaction) (bool, error) {
	query := `
		INSERT INTO loyalty_transactions (id, order_id, phone_number, amount, points, tier_at_award, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_id) DO NOTHING
	`

	result, err := r.db.Exec(ctx, query,
		t.ID,
		t.OrderID,
		t.PhoneNumber,
		t.Amount,
		t.Points,
		t.TierAtAward,
		t.CreatedAt,
	)

	if err != nil {
		r.log.Error("Failed to insert loyalty transaction",
			zap.Error(err),
			zap.String("order_id", t.OrderID),
		)
		return false, fmt.Errorf("insert loyalty transaction %s: %w", t.OrderID, err)
	}

	return result.RowsAffected() > 0, nil
}
