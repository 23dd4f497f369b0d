package repository

import (
	"context"
	"fmt"

	"isp-portal/internal/data/entity"
	"isp-portal/pkg/database"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type PaymentRepository interface {
	CreatePending(ctx context.Context, payment *entity.Payment) error
	FindByOrderID(ctx context.Context, orderID string) (*entity.Payment, error)
	FindByOrderIDForUpdate(ctx context.Context, orderID string) (*entity.Payment, error)

	// Business queries. Both return false when the payment is already terminal.
	Complete(ctx context.Context, payment *entity.Payment) (bool, error)
	Fail(ctx context.Context, payment *entity.Payment) (bool, error)
	UpdateGatewayReference(ctx context.Context, orderID, reference string) error
}

type paymentRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewPaymentRepository(db database.Querier, log *zap.Logger) PaymentRepository {
	return &paymentRepository{
		db:  db,
		log: log.With(zap.String("repository", "payment")),
	}
}

const paymentColumns = `id, order_id, invoice_id, customer_id, amount, currency, method, gateway,
	phone_number, status, gateway_transaction_id, gateway_reference, payment_channel,
	failure_reason, created_at, updated_at, processed_at, confirmed_at`

func scanPayment(row pgx.Row) (*entity.Payment, error) {
	var p entity.Payment
	err := row.Scan(
		&p.ID,
		&p.OrderID,
		&p.InvoiceID,
		&p.CustomerID,
		&p.Amount,
		&p.Currency,
		&p.Method,
		&p.Gateway,
		&p.PhoneNumber,
		&p.Status,
		&p.GatewayTransactionID,
		&p.GatewayReference,
		&p.PaymentChannel,
		&p.FailureReason,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.ProcessedAt,
		&p.ConfirmedAt,
	)
	return &p, err
}

// CreatePending records an initiated payment. A second initiation for the
// same order id is a no-op.
func (r *paymentRepository) CreatePending(ctx context.Context, payment *entity.Payment) error {
	query := `
		INSERT INTO payments (id, order_id, amount, currency, method, gateway, phone_number, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'PENDING', $8, $9)
		ON CONFLICT (order_id) DO NOTHING
	`

	_, err := r.db.Exec(ctx, query,
		payment.ID,
		payment.OrderID,
		payment.Amount,
		payment.Currency,
		payment.Method,
		payment.Gateway,
		payment.PhoneNumber,
		payment.CreatedAt,
		payment.UpdatedAt,
	)

	if err != nil {
		r.log.Error("Failed to create pending payment",
			zap.Error(err),
			zap.String("order_id", payment.OrderID),
		)
		return fmt.Errorf("create payment for order %s: %w", payment.OrderID, err)
	}

	return nil
}

func (r *paymentRepository) FindByOrderID(ctx context.Context, orderID string) (*entity.Payment, error) {
	return r.findByOrderID(ctx, orderID, false)
}

func (r *paymentRepository) FindByOrderIDForUpdate(ctx context.Context, orderID string) (*entity.Payment, error) {
	return r.findByOrderID(ctx, orderID, true)
}

func (r *paymentRepository) findByOrderID(ctx context.Context, orderID string, lock bool) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	payment, err := scanPayment(r.db.QueryRow(ctx, query, orderID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find payment by order ID",
			zap.Error(err),
			zap.String("order_id", orderID),
		)
		return nil, fmt.Errorf("find payment by order %s: %w", orderID, err)
	}

	return payment, nil
}

// Complete upserts the payment as COMPLETED. Only a missing or PENDING row is
// written.
func (r *paymentRepository) Complete(ctx context.Context, payment *entity.Payment) (bool, error) {
	query := `
		INSERT INTO payments (
			id, order_id, invoice_id, customer_id, amount, currency, method, gateway, phone_number,
			status, gateway_transaction_id, gateway_reference, payment_channel,
			created_at, updated_at, processed_at, confirmed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'COMPLETED', $10, $11, $12, $13, $13, $14, $14)
		ON CONFLICT (order_id) DO UPDATE SET
			invoice_id             = EXCLUDED.invoice_id,
			customer_id            = EXCLUDED.customer_id,
			amount                 = EXCLUDED.amount,
			status                 = 'COMPLETED',
			gateway_transaction_id = COALESCE(EXCLUDED.gateway_transaction_id, payments.gateway_transaction_id),
			gateway_reference      = COALESCE(EXCLUDED.gateway_reference, payments.gateway_reference),
			payment_channel        = COALESCE(EXCLUDED.payment_channel, payments.payment_channel),
			failure_reason         = NULL,
			updated_at             = EXCLUDED.updated_at,
			processed_at           = EXCLUDED.processed_at,
			confirmed_at           = EXCLUDED.confirmed_at
		WHERE payments.status = 'PENDING'
	`

	result, err := r.db.Exec(ctx, query,
		payment.ID,
		payment.OrderID,
		payment.InvoiceID,
		payment.CustomerID,
		payment.Amount,
		payment.Currency,
		payment.Method,
		payment.Gateway,
		payment.PhoneNumber,
		payment.GatewayTransactionID,
		payment.GatewayReference,
		payment.PaymentChannel,
		payment.UpdatedAt,
		payment.ConfirmedAt,
	)

	if err != nil {
		r.log.Error("Failed to complete payment",
			zap.Error(err),
			zap.String("order_id", payment.OrderID),
		)
		return false, fmt.Errorf("complete payment %s: %w", payment.OrderID, err)
	}

	return result.RowsAffected() > 0, nil
}

// Fail upserts the payment as FAILED with its reason. Terminal rows are left
// untouched.
func (r *paymentRepository) Fail(ctx context.Context, payment *entity.Payment) (bool, error) {
	query := `
		INSERT INTO payments (
			id, order_id, amount, currency, method, gateway, phone_number,
			status, gateway_transaction_id, gateway_reference, payment_channel, failure_reason,
			created_at, updated_at, processed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'FAILED', $8, $9, $10, $11, $12, $12, $12)
		ON CONFLICT (order_id) DO UPDATE SET
			status                 = 'FAILED',
			gateway_transaction_id = COALESCE(EXCLUDED.gateway_transaction_id, payments.gateway_transaction_id),
			gateway_reference      = COALESCE(EXCLUDED.gateway_reference, payments.gateway_reference),
			payment_channel        = COALESCE(EXCLUDED.payment_channel, payments.payment_channel),
			failure_reason         = EXCLUDED.failure_reason,
			updated_at             = EXCLUDED.updated_at,
			processed_at           = EXCLUDED.processed_at
		WHERE payments.status = 'PENDING'
	`

	result, err := r.db.Exec(ctx, query,
		payment.ID,
		payment.OrderID,
		payment.Amount,
		payment.Currency,
		payment.Method,
		payment.Gateway,
		payment.PhoneNumber,
		payment.GatewayTransactionID,
		payment.GatewayReference,
		payment.PaymentChannel,
		payment.FailureReason,
		payment.UpdatedAt,
	)

	if err != nil {
		r.log.Error("Failed to mark payment failed",
			zap.Error(err),
			zap.String("order_id", payment.OrderID),
		)
		return false, fmt.Errorf("fail payment %s: %w", payment.OrderID, err)
	}

	return result.RowsAffected() > 0, nil
}

func (r *paymentRepository) UpdateGatewayReference(ctx context.Context, orderID, reference string) error {
	query := `
		UPDATE payments
		SET gateway_reference = $2, updated_at = NOW()
		WHERE order_id = $1
	`

	if _, err := r.db.Exec(ctx, query, orderID, reference); err != nil {
		r.log.Error("Failed to update gateway reference",
			zap.Error(err),
			zap.String("order_id", orderID),
		)
		return fmt.Errorf("update gateway reference %s: %w", orderID, err)
	}

	return nil
}
