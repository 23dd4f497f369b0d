package repository

import (
	"context"
	"fmt"
	"strconv"

	"isp-portal/internal/data/entity"
	"isp-portal/pkg/database"

	"go.uber.org/zap"
)

const (
	DefaultDownloadBps = 10_000_000
	DefaultUploadBps   = 5_000_000

	// FreeRADIUS Expiration attribute format
	radiusExpirationLayout = "Jan 02 2006 15:04:05"
)

// RadiusRepository writes hotspot credentials into the FreeRADIUS SQL
// tables (radcheck / radreply).
type RadiusRepository interface {
	// ProvisionUser replaces every attribute of the user. Safe to repeat.
	ProvisionUser(ctx context.Context, u entity.RadiusUser) error
	RemoveUser(ctx context.Context, username string) error
}

type radiusRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewRadiusRepository(db database.Querier, log *zap.Logger) RadiusRepository {
	return &radiusRepository{
		db:  db,
		log: log.With(zap.String("repository", "radius")),
	}
}

// RadiusAttributes builds the radcheck and radreply rows for a user.
func RadiusAttributes(u entity.RadiusUser) (check, reply []entity.RadiusAttribute) {
	down := u.DownloadBps
	if down <= 0 {
		down = DefaultDownloadBps
	}
	up := u.UploadBps
	if up <= 0 {
		up = DefaultUploadBps
	}

	check = []entity.RadiusAttribute{
		{Attribute: "Cleartext-Password", Op: ":=", Value: u.Password},
		{Attribute: "Expiration", Op: ":=", Value: u.ExpiresAt.UTC().Format(radiusExpirationLayout)},
		{Attribute: "Simultaneous-Use", Op: ":=", Value: "1"},
	}

	reply = []entity.RadiusAttribute{
		{Attribute: "WISPr-Bandwidth-Max-Down", Op: "=", Value: strconv.FormatInt(down, 10)},
		{Attribute: "WISPr-Bandwidth-Max-Up", Op: "=", Value: strconv.FormatInt(up, 10)},
	}
	if u.SessionTimeout > 0 {
		reply = append(reply, entity.RadiusAttribute{
			Attribute: "Session-Timeout", Op: "=", Value: strconv.FormatInt(u.SessionTimeout, 10),
		})
	}
	reply = append(reply, entity.RadiusAttribute{
		Attribute: "Mikrotik-Rate-Limit", Op: "=", Value: fmt.Sprintf("%dM/%dM", down/1_000_000, up/1_000_000),
	})

	return check, reply
}

func (r *radiusRepository) ProvisionUser(ctx context.Context, u entity.RadiusUser) error {
	check, reply := RadiusAttributes(u)

	// nested inside a caller's transaction this becomes a savepoint
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin radius provisioning: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := deleteRadiusUser(ctx, tx, u.Username); err != nil {
		r.log.Error("Failed to clear radius user",
			zap.Error(err),
			zap.String("username", u.Username),
		)
		return err
	}

	for _, a := range check {
		if _, err := tx.Exec(ctx,
			`INSERT INTO radcheck (username, attribute, op, value) VALUES ($1, $2, $3, $4)`,
			u.Username, a.Attribute, a.Op, a.Value,
		); err != nil {
			r.log.Error("Failed to insert radcheck",
				zap.Error(err),
				zap.String("username", u.Username),
				zap.String("attribute", a.Attribute),
			)
			return fmt.Errorf("insert radcheck %s for %s: %w", a.Attribute, u.Username, err)
		}
	}

	for _, a := range reply {
		if _, err := tx.Exec(ctx,
			`INSERT INTO radreply (username, attribute, op, value) VALUES ($1, $2, $3, $4)`,
			u.Username, a.Attribute, a.Op, a.Value,
		); err != nil {
			r.log.Error("Failed to insert radreply",
				zap.Error(err),
				zap.String("username", u.Username),
				zap.String("attribute", a.Attribute),
			)
			return fmt.Errorf("insert radreply %s for %s: %w", a.Attribute, u.Username, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit radius provisioning for %s: %w", u.Username, err)
	}

	r.log.Info("Radius user provisioned",
		zap.String("username", u.Username),
		zap.Time("expires_at", u.ExpiresAt),
	)
	return nil
}

func (r *radiusRepository) RemoveUser(ctx context.Context, username string) error {
	if err := deleteRadiusUser(ctx, r.db, username); err != nil {
		r.log.Error("Failed to remove radius user",
			zap.Error(err),
			zap.String("username", username),
		)
		return err
	}

	r.log.Info("Radius user removed", zap.String("username", username))
	return nil
}

func deleteRadiusUser(ctx context.Context, db database.Querier, username string) error {
	if _, err := db.Exec(ctx, `DELETE FROM radcheck WHERE username = $1`, username); err != nil {
		return fmt.Errorf("delete radcheck for %s: %w", username, err)
	}
	if _, err := db.Exec(ctx, `DELETE FROM radreply WHERE username = $1`, username); err != nil {
		return fmt.Errorf("delete radreply for %s: %w", username, err)
	}
	return nil
}
