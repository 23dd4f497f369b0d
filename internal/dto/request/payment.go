package request

type InitiatePaymentRequest struct {
	PackageID    int64   `json:"package_id" validate:"required,gt=0"`
	PhoneNumber  string  `json:"phone_number" validate:"required,msisdn"`
	CustomerName *string `json:"customer_name,omitempty" validate:"omitempty,max=100"`
	Email        *string `json:"email,omitempty" validate:"omitempty,email"`
}
