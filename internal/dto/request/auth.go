package request

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
}

type CreateOperatorRequest struct {
	Username string  `json:"username" validate:"required,min=3,max=50"`
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,msisdn"`
	Role     string  `json:"role" validate:"required,oneof=admin operator"`
}
