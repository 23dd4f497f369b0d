package request

import "github.com/shopspring/decimal"

type CreatePackageRequest struct {
	Name         string          `json:"name" validate:"required,min=2,max=100"`
	Description  *string         `json:"description,omitempty" validate:"omitempty,max=500"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency,omitempty" validate:"omitempty,len=3"`
	DurationDays int             `json:"duration_days" validate:"min=0,max=365"`
	DownloadKbps int             `json:"download_kbps" validate:"min=0"`
	UploadKbps   int             `json:"upload_kbps" validate:"min=0"`
}

type SetPackageActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}
