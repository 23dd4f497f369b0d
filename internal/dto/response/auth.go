package response

import (
	"time"

	"isp-portal/internal/data/entity"
)

type AuthResponse struct {
	UserID    string          `json:"user_id"`
	Username  string          `json:"username"`
	Role      entity.UserRole `json:"role"`
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
}

type UserResponse struct {
	ID        string          `json:"id"`
	Username  string          `json:"username"`
	Email     string          `json:"email"`
	Phone     *string         `json:"phone,omitempty"`
	Role      entity.UserRole `json:"role"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
}

// Helper converters
func UserToResponse(user *entity.User) UserResponse {
	return UserResponse{
		ID:        user.ID.String(),
		Username:  user.Username,
		Email:     user.Email,
		Phone:     user.Phone,
		Role:      user.Role,
		IsActive:  user.IsActive,
		CreatedAt: user.CreatedAt,
	}
}
