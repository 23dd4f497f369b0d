package usecase

import (
	"isp-portal/internal/data/repository"
	"isp-portal/internal/gateway"
	"isp-portal/internal/sms"
	"isp-portal/pkg/cache"
	"isp-portal/pkg/utils"

	"go.uber.org/zap"
)

// Deps are the outside systems the services talk to. Gateway may be nil.
type Deps struct {
	Gateway      gateway.Gateway
	Locker       cache.Locker
	SessionCache cache.SessionCache
	SMS          sms.Sender
}

type Service struct {
	Auth         AuthService
	User         UserService
	Package      PackageService
	Payment      PaymentService
	Webhook      WebhookService
	Voucher      VoucherService
	Session      SessionService
	Loyalty      LoyaltyService
	Task         TaskService
	Notification NotificationService
}

func NewService(repo *repository.Repository, deps Deps, config *utils.Config, log *zap.Logger) *Service {
	if deps.Locker == nil {
		deps.Locker = cache.NewLocalLocker()
	}
	if deps.SessionCache == nil {
		deps.SessionCache = cache.NopSessionCache{}
	}
	if deps.SMS == nil {
		deps.SMS = sms.NewLogSender(log)
	}

	tasks := NewTaskService(repo, config, log)
	notify := NewNotificationService(deps.SMS, log)
	webhook := NewWebhookService(repo, tasks, notify, config, log)

	return &Service{
		Auth:         NewAuthService(repo, config, log),
		User:         NewUserService(repo.User, repo.Session, log),
		Package:      NewPackageService(repo, config, log),
		Payment:      NewPaymentService(repo, deps.Gateway, webhook, config, log),
		Webhook:      webhook,
		Voucher:      NewVoucherService(repo, tasks, notify, deps.Locker, deps.SessionCache, config, log),
		Session:      NewSessionService(repo, tasks, deps.SessionCache, log),
		Loyalty:      NewLoyaltyService(repo, log),
		Task:         tasks,
		Notification: notify,
	}
}
