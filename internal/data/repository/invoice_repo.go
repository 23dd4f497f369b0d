package repository

import (
	"context"
	"fmt"

	"isp-portal/internal/data/entity"
	"isp-portal/pkg/database"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type InvoiceRepository interface {
	Create(ctx context.Context, invoice *entity.Invoice) error
	FindByOrderID(ctx context.Context, orderID string) (*entity.Invoice, error)
}

type invoiceRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewInvoiceRepository(db database.Querier, log *zap.Logger) InvoiceRepository {
	return &invoiceRepository{
		db:  db,
		log: log.With(zap.String("repository", "invoice")),
	}
}

func (r *invoiceRepository) Create(ctx context.Context, invoice *entity.Invoice) error {
	query := `
		INSERT INTO invoices (id, invoice_number, order_id, customer_id, package_id, amount, currency, status, issued_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Exec(ctx, query,
		invoice.ID,
		invoice.InvoiceNumber,
		invoice.OrderID,
		invoice.CustomerID,
		invoice.PackageID,
		invoice.Amount,
		invoice.Currency,
		invoice.Status,
		invoice.IssuedAt,
		invoice.CreatedAt,
	)

	if err != nil {
		r.log.Error("Failed to create invoice",
			zap.Error(err),
			zap.String("order_id", invoice.OrderID),
			zap.String("invoice_number", invoice.InvoiceNumber),
		)
		return fmt.Errorf("create invoice for order %s: %w", invoice.OrderID, err)
	}

	return nil
}

func (r *invoiceRepository) FindByOrderID(ctx context.Context, orderID string) (*entity.Invoice, error) {
	query := `
		SELECT id, invoice_number, order_id, customer_id, package_id, amount, currency, status, issued_at, created_at
		FROM invoices
		WHERE order_id = $1
	`

	var inv entity.Invoice
	err := r.db.QueryRow(ctx, query, orderID).Scan(
		&inv.ID,
		&inv.InvoiceNumber,
		&inv.OrderID,
		&inv.CustomerID,
		&inv.PackageID,
		&inv.Amount,
		&inv.Currency,
		&inv.Status,
		&inv.IssuedAt,
		&inv.CreatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find invoice",
			zap.Error(err),
			zap.String("order_id", orderID),
		)
		return nil, fmt.Errorf("find invoice for order %s: %w", orderID, err)
	}

	return &inv, nil
}
