package repository

import (
	"isp-portal/pkg/database"

	"go.uber.org/zap"
)

type Repository struct {
	User         UserRepository
	Session      SessionRepository
	Package      PackageRepository
	Customer     CustomerRepository
	Correlation  CorrelationRepository
	Invoice      InvoiceRepository
	Payment      PaymentRepository
	Voucher      VoucherRepository
	VoucherSess  VoucherSessionRepository
	Loyalty      LoyaltyRepository
	WebhookEvent WebhookEventRepository
	Task         TaskRepository
	Radius       RadiusRepository

	// Tx runs a callback against repositories bound to one transaction.
	Tx Transactor
}

func NewRepository(db database.Querier, log *zap.Logger) *Repository {
	return &Repository{
		User:         NewUserRepository(db, log),
		Session:      NewSessionRepository(db, log),
		Package:      NewPackageRepository(db, log),
		Customer:     NewCustomerRepository(db, log),
		Correlation:  NewCorrelationRepository(db, log),
		Invoice:      NewInvoiceRepository(db, log),
		Payment:      NewPaymentRepository(db, log),
		Voucher:      NewVoucherRepository(db, log),
		VoucherSess:  NewVoucherSessionRepository(db, log),
		Loyalty:      NewLoyaltyRepository(db, log),
		WebhookEvent: NewWebhookEventRepository(db, log),
		Task:         NewTaskRepository(db, log),
		Radius:       NewRadiusRepository(db, log),
		Tx:           NewTransactor(db, log),
	}
}
