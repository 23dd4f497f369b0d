package response

import (
	"isp-portal/internal/data/entity"

	"github.com/shopspring/decimal"
)

type PackageResponse struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Description  *string         `json:"description,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	DurationDays int             `json:"duration_days"`
	DownloadKbps int             `json:"download_kbps"`
	UploadKbps   int             `json:"upload_kbps"`
	IsActive     bool            `json:"is_active"`
}

func PackageToResponse(p *entity.Package) PackageResponse {
	return PackageResponse{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		Price:        p.Price,
		Currency:     p.Currency,
		DurationDays: p.DurationDays,
		DownloadKbps: p.DownloadKbps,
		UploadKbps:   p.UploadKbps,
		IsActive:     p.IsActive,
	}
}
