package entity

type UserRole string

const (
	RoleOperator UserRole = "operator"
	RoleAdmin    UserRole = "admin"
)

// User is a portal operator account. Customers are identified by phone and
// never log in.
type User struct {
	Base
	Username     string   `db:"username"`
	Email        string   `db:"email"`
	PasswordHash string   `db:"password"`
	Phone        *string  `db:"phone"`
	Role         UserRole `db:"role"`
	IsActive     bool     `db:"is_active"`
}
