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

type VoucherRepository interface {
	// Create returns false when the voucher code is already taken; the
	// caller retries with a fresh code.
	Create(ctx context.Context, voucher *entity.Voucher) (bool, error)
	FindByCode(ctx context.Context, code string) (*entity.Voucher, error)
	FindByCodeForUpdate(ctx context.Context, code string) (*entity.Voucher, error)
	FindByOrderID(ctx context.Context, orderID string) (*entity.Voucher, error)
	List(ctx context.Context, status string, limit, offset int) ([]*entity.Voucher, error)
	Count(ctx context.Context, status string) (int64, error)

	// Business queries
	MarkAccessReady(ctx context.Context, code string, at time.Time) error
	MarkUsed(ctx context.Context, code, activatedBy string, at time.Time) (bool, error)
	Cancel(ctx context.Context, code, cancelledBy string) (bool, error)
	Expire(ctx context.Context, code string) error
	ExpireOverdueUnused(ctx context.Context, now time.Time, limit int) ([]string, error)
}

type voucherRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewVoucherRepository(db database.Querier, log *zap.Logger) VoucherRepository {
	return &voucherRepository{
		db:  db,
		log: log.With(zap.String("repository", "voucher")),
	}
}

const voucherColumns = `id, voucher_code, order_id, package_id, package_name, duration_days, amount, currency,
	customer_name, customer_phone, customer_email, status, usage_status, expires_at,
	activated_at, activated_by, access_ready_at, cancelled_by, payment_reference,
	transaction_id, payment_channel, created_at, updated_at`

func scanVoucher(row pgx.Row) (*entity.Voucher, error) {
	var v entity.Voucher
	err := row.Scan(
		&v.ID,
		&v.VoucherCode,
		&v.OrderID,
		&v.PackageID,
		&v.PackageName,
		&v.DurationDays,
		&v.Amount,
		&v.Currency,
		&v.CustomerName,
		&v.CustomerPhone,
		&v.CustomerEmail,
		&v.Status,
		&v.UsageStatus,
		&v.ExpiresAt,
		&v.ActivatedAt,
		&v.ActivatedBy,
		&v.AccessReadyAt,
		&v.CancelledBy,
		&v.PaymentReference,
		&v.TransactionID,
		&v.PaymentChannel,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	return &v, err
}

func (r *voucherRepository) Create(ctx context.Context, v *entity.Voucher) (bool, error) {
	query := `
		INSERT INTO vouchers (
			id, voucher_code, order_id, package_id, package_name, duration_days, amount, currency,
			customer_name, customer_phone, customer_email, status, usage_status, expires_at,
			payment_reference, transaction_id, payment_channel, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (voucher_code) DO NOTHING
	`

	result, err := r.db.Exec(ctx, query,
		v.ID,
		v.VoucherCode,
		v.OrderID,
		v.PackageID,
		v.PackageName,
		v.DurationDays,
		v.Amount,
		v.Currency,
		v.CustomerName,
		v.CustomerPhone,
		v.CustomerEmail,
		v.Status,
		v.UsageStatus,
		v.ExpiresAt,
		v.PaymentReference,
		v.TransactionID,
		v.PaymentChannel,
		v.CreatedAt,
		v.UpdatedAt,
	)

	if err != nil {
		r.log.Error("Failed to create voucher",
			zap.Error(err),
			zap.String("order_id", v.OrderID),
		)
		return false, fmt.Errorf("create voucher for order %s: %w", v.OrderID, err)
	}

	return result.RowsAffected() > 0, nil
}

func (r *voucherRepository) FindByCode(ctx context.Context, code string) (*entity.Voucher, error) {
	return r.findOne(ctx, `WHERE voucher_code = $1`, code)
}

// FindByCodeForUpdate locks the voucher row for the rest of the transaction.
func (r *voucherRepository) FindByCodeForUpdate(ctx context.Context, code string) (*entity.Voucher, error) {
	return r.findOne(ctx, `WHERE voucher_code = $1 FOR UPDATE`, code)
}

func (r *voucherRepository) FindByOrderID(ctx context.Context, orderID string) (*entity.Voucher, error) {
	return r.findOne(ctx, `WHERE order_id = $1`, orderID)
}

func (r *voucherRepository) findOne(ctx context.Context, where string, arg any) (*entity.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers ` + where

	voucher, err := scanVoucher(r.db.QueryRow(ctx, query, arg))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find voucher",
			zap.Error(err),
			zap.Any("key", arg),
		)
		return nil, fmt.Errorf("find voucher %v: %w", arg, err)
	}

	return voucher, nil
}

// List returns vouchers newest first. An empty status lists all.
func (r *voucherRepository) List(ctx context.Context, status string, limit, offset int) ([]*entity.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, status, limit, offset)
	if err != nil {
		r.log.Error("Failed to list vouchers",
			zap.Error(err),
			zap.String("status", status),
		)
		return nil, fmt.Errorf("list vouchers: %w", err)
	}
	defer rows.Close()

	var vouchers []*entity.Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			r.log.Error("Failed to scan voucher row", zap.Error(err))
			return nil, fmt.Errorf("scan voucher row: %w", err)
		}
		vouchers = append(vouchers, v)
	}

	return vouchers, rows.Err()
}

func (r *voucherRepository) Count(ctx context.Context, status string) (int64, error) {
	query := `SELECT COUNT(*) FROM vouchers WHERE ($1 = '' OR status = $1)`

	var count int64
	if err := r.db.QueryRow(ctx, query, status).Scan(&count); err != nil {
		r.log.Error("Failed to count vouchers", zap.Error(err))
		return 0, fmt.Errorf("count vouchers: %w", err)
	}

	return count, nil
}

// MarkAccessReady records that the RADIUS credential exists. A pending
// voucher becomes ACTIVE; expired or cancelled vouchers are left alone.
func (r *voucherRepository) MarkAccessReady(ctx context.Context, code string, at time.Time) error {
	query := `
		UPDATE vouchers
		SET status          = CASE WHEN status = 'ISSUED_ACCESS_PENDING' THEN 'ACTIVE' ELSE status END,
		    access_ready_at = COALESCE(access_ready_at, $2),
		    updated_at      = $2
		WHERE voucher_code = $1 AND status IN ('ISSUED_ACCESS_PENDING', 'ACTIVE')
	`

	if _, err := r.db.Exec(ctx, query, code, at); err != nil {
		r.log.Error("Failed to mark voucher access ready",
			zap.Error(err),
			zap.String("voucher_code", code),
		)
		return fmt.Errorf("mark voucher %s access ready: %w", code, err)
	}

	return nil
}

// MarkUsed flips an UNUSED voucher to USED. Access is provisioned at this
// point, so a pending voucher is promoted to ACTIVE as well.
func (r *voucherRepository) MarkUsed(ctx context.Context, code, activatedBy string, at time.Time) (bool, error) {
	query := `
		UPDATE vouchers
		SET usage_status    = 'USED',
		    activated_at    = $3,
		    activated_by    = $2,
		    status          = CASE WHEN status = 'ISSUED_ACCESS_PENDING' THEN 'ACTIVE' ELSE status END,
		    access_ready_at = COALESCE(access_ready_at, $3),
		    updated_at      = $3
		WHERE voucher_code = $1 AND usage_status = 'UNUSED'
		  AND status IN ('ISSUED_ACCESS_PENDING', 'ACTIVE')
	`

	result, err := r.db.Exec(ctx, query, code, activatedBy, at)
	if err != nil {
		r.log.Error("Failed to mark voucher used",
			zap.Error(err),
			zap.String("voucher_code", code),
		)
		return false, fmt.Errorf("mark voucher %s used: %w", code, err)
	}

	return result.RowsAffected() > 0, nil
}

func (r *voucherRepository) Cancel(ctx context.Context, code, cancelledBy string) (bool, error) {
	query := `
		UPDATE vouchers
		SET status = 'CANCELLED', cancelled_by = $2, updated_at = NOW()
		WHERE voucher_code = $1 AND status IN ('ISSUED_ACCESS_PENDING', 'ACTIVE')
	`

	result, err := r.db.Exec(ctx, query, code, cancelledBy)
	if err != nil {
		r.log.Error("Failed to cancel voucher",
			zap.Error(err),
			zap.String("voucher_code", code),
		)
		return false, fmt.Errorf("cancel voucher %s: %w", code, err)
	}

	return result.RowsAffected() > 0, nil
}

func (r *voucherRepository) Expire(ctx context.Context, code string) error {
	query := `
		UPDATE vouchers
		SET status       = 'EXPIRED',
		    usage_status = CASE WHEN usage_status = 'UNUSED' THEN 'EXPIRED' ELSE usage_status END,
		    updated_at   = NOW()
		WHERE voucher_code = $1 AND status IN ('ISSUED_ACCESS_PENDING', 'ACTIVE')
	`

	if _, err := r.db.Exec(ctx, query, code); err != nil {
		r.log.Error("Failed to expire voucher",
			zap.Error(err),
			zap.String("voucher_code", code),
		)
		return fmt.Errorf("expire voucher %s: %w", code, err)
	}

	return nil
}

// ExpireOverdueUnused expires never-activated vouchers whose validity has
// lapsed and returns their codes.
func (r *voucherRepository) ExpireOverdueUnused(ctx context.Context, now time.Time, limit int) ([]string, error) {
	query := `
		UPDATE vouchers
		SET status = 'EXPIRED', usage_status = 'EXPIRED', updated_at = $1
		WHERE id IN (
			SELECT id FROM vouchers
			WHERE usage_status = 'UNUSED'
			  AND status IN ('ISSUED_ACCESS_PENDING', 'ACTIVE')
			  AND expires_at <= $1
			ORDER BY expires_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING voucher_code
	`

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		r.log.Error("Failed to expire overdue vouchers", zap.Error(err))
		return nil, fmt.Errorf("expire overdue vouchers: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan expired voucher code: %w", err)
		}
		codes = append(codes, code)
	}

	return codes, rows.Err()
}
