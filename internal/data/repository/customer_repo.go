package repository

import (
	"context"
	"fmt"

	"isp-portal/internal/data/entity"
	"isp-portal/pkg/database"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type CustomerRepository interface {
	FindByPhone(ctx context.Context, phone string) (*entity.Customer, error)
	// Upsert creates the customer or refreshes name/email on the existing
	// row. customer.ID is replaced by the stored id.
	Upsert(ctx context.Context, customer *entity.Customer) (created bool, err error)
}

type customerRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewCustomerRepository(db database.Querier, log *zap.Logger) CustomerRepository {
	return &customerRepository{
		db:  db,
		log: log.With(zap.String("repository", "customer")),
	}
}

func (r *customerRepository) FindByPhone(ctx context.Context, phone string) (*entity.Customer, error) {
	query := `
		SELECT id, phone_number, full_name, email, created_at, updated_at
		FROM customers
		WHERE phone_number = $1
	`

	var c entity.Customer
	err := r.db.QueryRow(ctx, query, phone).Scan(
		&c.ID,
		&c.PhoneNumber,
		&c.FullName,
		&c.Email,
		&c.CreatedAt,
		&c.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find customer by phone", zap.Error(err))
		return nil, fmt.Errorf("find customer by phone: %w", err)
	}

	return &c, nil
}

func (r *customerRepository) Upsert(ctx context.Context, customer *entity.Customer) (bool, error) {
	query := `
		INSERT INTO customers (id, phone_number, full_name, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (phone_number) DO UPDATE SET
			full_name  = COALESCE(EXCLUDED.full_name, customers.full_name),
			email      = COALESCE(EXCLUDED.email, customers.email),
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, (xmax = 0) AS inserted
	`

	var inserted bool
	err := r.db.QueryRow(ctx, query,
		customer.ID,
		customer.PhoneNumber,
		customer.FullName,
		customer.Email,
		customer.CreatedAt,
		customer.UpdatedAt,
	).Scan(&customer.ID, &customer.CreatedAt, &inserted)

	if err != nil {
		r.log.Error("Failed to upsert customer", zap.Error(err))
		return false, fmt.Errorf("upsert customer: %w", err)
	}

	return inserted, nil
}
