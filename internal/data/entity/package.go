package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type Package struct {
	ID           int64           `db:"id"`
	Name         string          `db:"name"`
	Description  *string         `db:"description"`
	Price        decimal.Decimal `db:"price"`
	Currency     string          `db:"currency"`
	DurationDays int             `db:"duration_days"`
	DownloadKbps int             `db:"download_kbps"`
	UploadKbps   int             `db:"upload_kbps"`
	IsActive     bool            `db:"is_active"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// EffectiveDurationDays falls back to def when the package has no duration.
func (p *Package) EffectiveDurationDays(def int) int {
	if p.DurationDays > 0 {
		return p.DurationDays
	}
	return def
}
