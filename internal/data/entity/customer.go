package entity

type Customer struct {
	BaseNoDelete
	PhoneNumber string  `db:"phone_number"`
	FullName    *string `db:"full_name"`
	Email       *string `db:"email"`
}
