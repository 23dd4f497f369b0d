package repository

import (
	"context"
	"fmt"

	"isp-portal/internal/data/entity"
	"isp-portal/pkg/database"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type PackageRepository interface {
	Create(ctx context.Context, pkg *entity.Package) error
	FindByID(ctx context.Context, id int64) (*entity.Package, error)
	FindAllActive(ctx context.Context) ([]*entity.Package, error)
	SetActive(ctx context.Context, id int64, active bool) (bool, error)
}

type packageRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewPackageRepository(db database.Querier, log *zap.Logger) PackageRepository {
	return &packageRepository{
		db:  db,
		log: log.With(zap.String("repository", "package")),
	}
}

const packageColumns = `id, name, description, price, currency, duration_days, download_kbps, upload_kbps, is_active, created_at, updated_at`

func scanPackage(row pgx.Row) (*entity.Package, error) {
	var p entity.Package
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Price,
		&p.Currency,
		&p.DurationDays,
		&p.DownloadKbps,
		&p.UploadKbps,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return &p, err
}

// Create inserts the package and fills in its generated id.
func (r *packageRepository) Create(ctx context.Context, pkg *entity.Package) error {
	query := `
		INSERT INTO packages (name, description, price, currency, duration_days, download_kbps, upload_kbps, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	err := r.db.QueryRow(ctx, query,
		pkg.Name,
		pkg.Description,
		pkg.Price,
		pkg.Currency,
		pkg.DurationDays,
		pkg.DownloadKbps,
		pkg.UploadKbps,
		pkg.IsActive,
		pkg.CreatedAt,
		pkg.UpdatedAt,
	).Scan(&pkg.ID)

	if err != nil {
		r.log.Error("Failed to create package",
			zap.Error(err),
			zap.String("name", pkg.Name),
		)
		return fmt.Errorf("create package %s: %w", pkg.Name, err)
	}

	return nil
}

func (r *packageRepository) FindByID(ctx context.Context, id int64) (*entity.Package, error) {
	query := `SELECT ` + packageColumns + ` FROM packages WHERE id = $1`

	pkg, err := scanPackage(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find package by ID",
			zap.Error(err),
			zap.Int64("package_id", id),
		)
		return nil, fmt.Errorf("find package by ID %d: %w", id, err)
	}

	return pkg, nil
}

func (r *packageRepository) FindAllActive(ctx context.Context) ([]*entity.Package, error) {
	query := `SELECT ` + packageColumns + ` FROM packages WHERE is_active = TRUE ORDER BY price ASC, id ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.log.Error("Failed to list active packages", zap.Error(err))
		return nil, fmt.Errorf("list active packages: %w", err)
	}
	defer rows.Close()

	var packages []*entity.Package
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			r.log.Error("Failed to scan package row", zap.Error(err))
			return nil, fmt.Errorf("scan package row: %w", err)
		}
		packages = append(packages, pkg)
	}

	return packages, rows.Err()
}

func (r *packageRepository) SetActive(ctx context.Context, id int64, active bool) (bool, error) {
	query := `UPDATE packages SET is_active = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, active)
	if err != nil {
		r.log.Error("Failed to toggle package",
			zap.Error(err),
			zap.Int64("package_id", id),
			zap.Bool("active", active),
		)
		return false, fmt.Errorf("set package %d active=%t: %w", id, active, err)
	}

	return result.RowsAffected() > 0, nil
}
