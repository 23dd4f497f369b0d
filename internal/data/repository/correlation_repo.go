package repository

import (
	"context"
	"fmt"

	"isp-portal/internal/data/entity"
	"isp-portal/pkg/database"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// CorrelationRepository keeps what was known about an order when the
// customer started paying, so the webhook never has to decode the order id.
type CorrelationRepository interface {
	Create(ctx context.Context, c *entity.OrderCorrelation) error
	FindByOrderID(ctx context.Context, orderID string) (*entity.OrderCorrelation, error)
	UpdateGateway(ctx context.Context, orderID, reference, paymentURL string) error
	UpdateStatus(ctx context.Context, orderID string, status entity.CorrelationStatus) error
}

type correlationRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewCorrelationRepository(db database.Querier, log *zap.Logger) CorrelationRepository {
	return &correlationRepository{
		db:  db,
		log: log.With(zap.String("repository", "correlation")),
	}
}

func (r *correlationRepository) Create(ctx context.Context, c *entity.OrderCorrelation) error {
	query := `
		INSERT INTO order_correlations (order_id, phone_number, package_id, amount, customer_name, email, gateway, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Exec(ctx, query,
		c.OrderID,
		c.PhoneNumber,
		c.PackageID,
		c.Amount,
		c.CustomerName,
		c.Email,
		c.Gateway,
		c.Status,
		c.CreatedAt,
		c.UpdatedAt,
	)

	if err != nil {
		r.log.Error("Failed to create order correlation",
			zap.Error(err),
			zap.String("order_id", c.OrderID),
		)
		return fmt.Errorf("create correlation %s: %w", c.OrderID, err)
	}

	return nil
}

func (r *correlationRepository) FindByOrderID(ctx context.Context, orderID string) (*entity.OrderCorrelation, error) {
	query := `
		SELECT order_id, phone_number, package_id, amount, customer_name, email, gateway,
		       gateway_reference, payment_url, status, created_at, updated_at
		FROM order_correlations
		WHERE order_id = $1
	`

	var c entity.OrderCorrelation
	err := r.db.QueryRow(ctx, query, orderID).Scan(
		&c.OrderID,
		&c.PhoneNumber,
		&c.PackageID,
		&c.Amount,
		&c.CustomerName,
		&c.Email,
		&c.Gateway,
		&c.GatewayReference,
		&c.PaymentURL,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find correlation",
			zap.Error(err),
			zap.String("order_id", orderID),
		)
		return nil, fmt.Errorf("find correlation %s: %w", orderID, err)
	}

	return &c, nil
}

func (r *correlationRepository) UpdateGateway(ctx context.Context, orderID, reference, paymentURL string) error {
	query := `
		UPDATE order_correlations
		SET gateway_reference = NULLIF($2, ''), payment_url = NULLIF($3, ''), updated_at = NOW()
		WHERE order_id = $1
	`

	if _, err := r.db.Exec(ctx, query, orderID, reference, paymentURL); err != nil {
		r.log.Error("Failed to store gateway reference",
			zap.Error(err),
			zap.String("order_id", orderID),
		)
		return fmt.Errorf("update correlation gateway %s: %w", orderID, err)
	}

	return nil
}

func (r *correlationRepository) UpdateStatus(ctx context.Context, orderID string, status entity.CorrelationStatus) error {
	query := `UPDATE order_correlations SET status = $2, updated_at = NOW() WHERE order_id = $1`

	if _, err := r.db.Exec(ctx, query, orderID, status); err != nil {
		r.log.Error("Failed to update correlation status",
			zap.Error(err),
			zap.String("order_id", orderID),
			zap.String("status", string(status)),
		)
		return fmt.Errorf("update correlation status %s: %w", orderID, err)
	}

	return nil
}
