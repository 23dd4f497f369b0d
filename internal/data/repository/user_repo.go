package repository

import (
	"context"
	"errors"
	"fmt"

	"isp-portal/internal/data/entity"
	"isp-portal/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var ErrUserExists = errors.New("username or email already registered")

type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error)
	FindByLogin(ctx context.Context, login string) (*entity.User, error)
	FindAll(ctx context.Context, limit, offset int) ([]*entity.User, error)
	CountAll(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type userRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewUserRepository(db database.Querier, log *zap.Logger) UserRepository {
	return &userRepository{
		db:  db,
		log: log.With(zap.String("repository", "user")),
	}
}

const userColumns = `id, username, email, password, phone, role, is_active, created_at, updated_at, deleted_at`

func scanUser(row pgx.Row) (*entity.User, error) {
	var user entity.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Phone,
		&user.Role,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.DeletedAt,
	)
	return &user, err
}

// Create inserts a new operator account
func (ur *userRepository) Create(ctx context.Context, user *entity.User) error {
	query := `
		INSERT INTO users (id, username, email, password, phone, role, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := ur.db.Exec(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Phone,
		user.Role,
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if IsUniqueViolation(err) {
		return ErrUserExists
	}
	if err != nil {
		ur.log.Error("Failed to create user",
			zap.Error(err),
			zap.String("username", user.Username),
		)
		return fmt.Errorf("create user %s: %w", user.Username, err)
	}

	return nil
}

func (ur *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND deleted_at IS NULL`

	user, err := scanUser(ur.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		ur.log.Error("Failed to find user by ID",
			zap.Error(err),
			zap.String("user_id", id.String()),
		)
		return nil, fmt.Errorf("find user by ID %s: %w", id.String(), err)
	}

	return user, nil
}

// FindByLogin matches either the username or the email.
func (ur *userRepository) FindByLogin(ctx context.Context, login string) (*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE (username = $1 OR email = $1) AND deleted_at IS NULL
		LIMIT 1`

	user, err := scanUser(ur.db.QueryRow(ctx, query, login))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		ur.log.Error("Failed to find user by login",
			zap.Error(err),
			zap.String("login", login),
		)
		return nil, fmt.Errorf("find user by login %s: %w", login, err)
	}

	return user, nil
}

// FindAll retrieves paginated list of operators
func (ur *userRepository) FindAll(ctx context.Context, limit, offset int) ([]*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := ur.db.Query(ctx, query, limit, offset)
	if err != nil {
		ur.log.Error("Failed to get all users",
			zap.Error(err),
			zap.Int("limit", limit),
			zap.Int("offset", offset),
		)
		return nil, fmt.Errorf("find all users limit %d offset %d: %w", limit, offset, err)
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			ur.log.Error("Failed to scan user row", zap.Error(err))
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		ur.log.Error("Rows iteration error", zap.Error(err))
		return nil, fmt.Errorf("iterate users rows: %w", err)
	}

	return users, nil
}

func (ur *userRepository) CountAll(ctx context.Context) (int64, error) {
	query := `SELECT COUNT(*) FROM users WHERE deleted_at IS NULL`

	var count int64
	if err := ur.db.QueryRow(ctx, query).Scan(&count); err != nil {
		ur.log.Error("Database error counting users", zap.Error(err))
		return 0, fmt.Errorf("count all users: %w", err)
	}

	return count, nil
}

func (ur *userRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE users SET deleted_at = NOW(), is_active = false WHERE id = $1 AND deleted_at IS NULL`

	result, err := ur.db.Exec(ctx, query, id)
	if err != nil {
		ur.log.Error("Failed to delete user",
			zap.Error(err),
			zap.String("id", id.String()),
		)
		return fmt.Errorf("delete user %s: %w", id.String(), err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("user %s not found", id.String())
	}

	ur.log.Info("User deleted", zap.String("id", id.String()))
	return nil
}
