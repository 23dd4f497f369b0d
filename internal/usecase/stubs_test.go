package usecase

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"isp-portal/internal/data/entity"
	"isp-portal/internal/data/repository"
	"isp-portal/pkg/cache"
	"isp-portal/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// memStore backs every in-memory repository. Values are stored by copy so a
// failed transaction can be rolled back by restoring a snapshot.
type memStore struct {
	mu sync.Mutex

	users         map[uuid.UUID]entity.User
	authSessions  map[uuid.UUID]entity.Session
	packages      map[int64]entity.Package
	nextPackageID int64
	customers     map[string]entity.Customer
	correlations  map[string]entity.OrderCorrelation
	invoices      map[string]entity.Invoice
	payments      map[string]entity.Payment
	vouchers      map[string]entity.Voucher
	sessions      map[string]entity.VoucherSession
	loyalty       map[string]entity.CustomerLoyalty
	loyaltyTx     map[string]entity.LoyaltyTransaction
	events        map[string]entity.WebhookEvent
	tasks         map[uuid.UUID]entity.Task
	radius        map[string]entity.RadiusUser

	radiusErr error
}

func newMemStore() *memStore {
	return &memStore{
		users:        map[uuid.UUID]entity.User{},
		authSessions: map[uuid.UUID]entity.Session{},
		packages:     map[int64]entity.Package{},
		customers:    map[string]entity.Customer{},
		correlations: map[string]entity.OrderCorrelation{},
		invoices:     map[string]entity.Invoice{},
		payments:     map[string]entity.Payment{},
		vouchers:     map[string]entity.Voucher{},
		sessions:     map[string]entity.VoucherSession{},
		loyalty:      map[string]entity.CustomerLoyalty{},
		loyaltyTx:    map[string]entity.LoyaltyTransaction{},
		events:       map[string]entity.WebhookEvent{},
		tasks:        map[uuid.UUID]entity.Task{},
		radius:       map[string]entity.RadiusUser{},
	}
}

func (s *memStore) snapshot() *memStore {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &memStore{
		users:         maps.Clone(s.users),
		authSessions:  maps.Clone(s.authSessions),
		packages:      maps.Clone(s.packages),
		nextPackageID: s.nextPackageID,
		customers:     maps.Clone(s.customers),
		correlations:  maps.Clone(s.correlations),
		invoices:      maps.Clone(s.invoices),
		payments:      maps.Clone(s.payments),
		vouchers:      maps.Clone(s.vouchers),
		sessions:      make(map[string]entity.VoucherSession, len(s.sessions)),
		loyalty:       maps.Clone(s.loyalty),
		loyaltyTx:     maps.Clone(s.loyaltyTx),
		events:        maps.Clone(s.events),
		tasks:         maps.Clone(s.tasks),
		radius:        maps.Clone(s.radius),
	}
	for k, v := range s.sessions {
		snap.sessions[k] = cloneSession(v)
	}
	return snap
}

func (s *memStore) restore(snap *memStore) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = snap.users
	s.authSessions = snap.authSessions
	s.packages = snap.packages
	s.nextPackageID = snap.nextPackageID
	s.customers = snap.customers
	s.correlations = snap.correlations
	s.invoices = snap.invoices
	s.payments = snap.payments
	s.vouchers = snap.vouchers
	s.sessions = snap.sessions
	s.loyalty = snap.loyalty
	s.loyaltyTx = snap.loyaltyTx
	s.events = snap.events
	s.tasks = snap.tasks
	s.radius = snap.radius
}

func cloneSession(v entity.VoucherSession) entity.VoucherSession {
	v.AllowedMacAddresses = append([]string(nil), v.AllowedMacAddresses...)
	v.AllowedIPAddresses = append([]string(nil), v.AllowedIPAddresses...)
	return v
}

// tasksOfType lists queued tasks of one type, oldest first.
func (s *memStore) tasksOfType(taskType entity.TaskType) []entity.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []entity.Task
	for _, t := range s.tasks {
		if t.Type == taskType {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *memStore) addPackage(name string, price int64, days int) entity.Package {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextPackageID++
	p := entity.Package{
		ID:           s.nextPackageID,
		Name:         name,
		Price:        decimal.NewFromInt(price),
		Currency:     "TZS",
		DurationDays: days,
		DownloadKbps: 2048,
		UploadKbps:   1024,
		IsActive:     true,
	}
	s.packages[p.ID] = p
	return p
}

func (s *memStore) putVoucher(v entity.Voucher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vouchers[v.VoucherCode] = v
}

func (s *memStore) voucher(code string) entity.Voucher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vouchers[code]
}

func (s *memStore) putSession(v entity.VoucherSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[v.SessionToken] = cloneSession(v)
}

func (s *memStore) session(token string) entity.VoucherSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSession(s.sessions[token])
}

// ==================== Transactor ====================

type memTx struct {
	store *memStore
	repo  *repository.Repository
}

func (t *memTx) WithinTx(ctx context.Context, fn func(tx *repository.Repository) error) error {
	snap := t.store.snapshot()
	if err := fn(t.repo); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

func newMemRepository(store *memStore) *repository.Repository {
	repo := &repository.Repository{
		User:         &memUserRepo{store},
		Session:      &memAuthSessionRepo{store},
		Package:      &memPackageRepo{store},
		Customer:     &memCustomerRepo{store},
		Correlation:  &memCorrelationRepo{store},
		Invoice:      &memInvoiceRepo{store},
		Payment:      &memPaymentRepo{store},
		Voucher:      &memVoucherRepo{store},
		VoucherSess:  &memVoucherSessionRepo{store},
		Loyalty:      &memLoyaltyRepo{store},
		WebhookEvent: &memWebhookEventRepo{store},
		Task:         &memTaskRepo{store},
		Radius:       &memRadiusRepo{store},
	}
	repo.Tx = &memTx{store: store, repo: repo}
	return repo
}

// ==================== Fixture ====================

type fixture struct {
	store  *memStore
	repo   *repository.Repository
	config *utils.Config
	sms    *recordingSender
	svc    *Service
}

func newFixture() *fixture {
	store := newMemStore()
	repo := newMemRepository(store)
	config := testConfig()
	sender := &recordingSender{}

	svc := NewService(repo, Deps{
		Locker:       cache.NewLocalLocker(),
		SessionCache: cache.NopSessionCache{},
		SMS:          sender,
	}, config, zap.NewNop())

	return &fixture{store: store, repo: repo, config: config, sms: sender, svc: svc}
}

func testConfig() *utils.Config {
	return &utils.Config{
		App: utils.AppConfig{Name: "isp-portal-test"},
		JWT: utils.JWTConfig{Secret: "test-secret", ExpiryHours: 1},
		Gateway: utils.GatewayConfig{
			Currency:   "TZS",
			WebhookURL: "https://portal.example/api/webhooks/payment",
		},
		Voucher: utils.VoucherConfig{
			CodeLength:          8,
			DefaultDurationDays: 30,
			ActivationLockTTL:   30 * time.Second,
		},
		Worker: utils.WorkerConfig{
			PollInterval:    10 * time.Millisecond,
			BatchSize:       10,
			MaxAttempts:     3,
			Lease:           time.Minute,
			MonitorInterval: time.Minute,
		},
	}
}

type sentSMS struct {
	Phone     string
	Message   string
	MessageID string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentSMS
	err  error
}

func (r *recordingSender) Send(_ context.Context, phone, message, messageID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.sent = append(r.sent, sentSMS{Phone: phone, Message: message, MessageID: messageID})
	return "provider-" + messageID, nil
}

func (r *recordingSender) messages() []sentSMS {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentSMS(nil), r.sent...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event, key string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event+":"+key)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

// ==================== Users & auth sessions ====================

type memUserRepo struct{ s *memStore }

func (r *memUserRepo) Create(_ context.Context, user *entity.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.DeletedAt == nil && (u.Username == user.Username || u.Email == user.Email) {
			return repository.ErrUserExists
		}
	}
	r.s.users[user.ID] = *user
	return nil
}

func (r *memUserRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok || u.DeletedAt != nil {
		return nil, nil
	}
	return &u, nil
}

func (r *memUserRepo) FindByLogin(_ context.Context, login string) (*entity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.DeletedAt == nil && (u.Username == login || u.Email == login) {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) FindAll(_ context.Context, limit, offset int) ([]*entity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []*entity.User
	for _, u := range r.s.users {
		if u.DeletedAt == nil {
			u := u
			all = append(all, &u)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Username < all[j].Username })
	return page(all, limit, offset), nil
}

func (r *memUserRepo) CountAll(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, u := range r.s.users {
		if u.DeletedAt == nil {
			n++
		}
	}
	return n, nil
}

func (r *memUserRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u := r.s.users[id]
	now := time.Now()
	u.DeletedAt = &now
	r.s.users[id] = u
	return nil
}

type memAuthSessionRepo struct{ s *memStore }

func (r *memAuthSessionRepo) Create(_ context.Context, session *entity.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.authSessions[session.ID] = *session
	return nil
}

func (r *memAuthSessionRepo) FindValidSession(_ context.Context, id uuid.UUID) (*entity.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.authSessions[id]
	if !ok || !sess.IsValid(time.Now()) {
		return nil, nil
	}
	return &sess, nil
}

func (r *memAuthSessionRepo) Revoke(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess := r.s.authSessions[id]
	now := time.Now()
	sess.RevokedAt = &now
	r.s.authSessions[id] = sess
	return nil
}

func (r *memAuthSessionRepo) RevokeAllUserSessions(_ context.Context, userID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now()
	for id, sess := range r.s.authSessions {
		if sess.UserID == userID && sess.RevokedAt == nil {
			sess.RevokedAt = &now
			r.s.authSessions[id] = sess
		}
	}
	return nil
}

func (r *memAuthSessionRepo) CleanExpiredSessions(context.Context) (int64, error) { return 0, nil }

// ==================== Catalogue & customers ====================

type memPackageRepo struct{ s *memStore }

func (r *memPackageRepo) Create(_ context.Context, pkg *entity.Package) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextPackageID++
	pkg.ID = r.s.nextPackageID
	r.s.packages[pkg.ID] = *pkg
	return nil
}

func (r *memPackageRepo) FindByID(_ context.Context, id int64) (*entity.Package, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.packages[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *memPackageRepo) FindAllActive(_ context.Context) ([]*entity.Package, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Package
	for _, p := range r.s.packages {
		if p.IsActive {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	return out, nil
}

func (r *memPackageRepo) SetActive(_ context.Context, id int64, active bool) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.packages[id]
	if !ok {
		return false, nil
	}
	p.IsActive = active
	r.s.packages[id] = p
	return true, nil
}

type memCustomerRepo struct{ s *memStore }

func (r *memCustomerRepo) FindByPhone(_ context.Context, phone string) (*entity.Customer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.customers[phone]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *memCustomerRepo) Upsert(_ context.Context, customer *entity.Customer) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.customers[customer.PhoneNumber]
	if !ok {
		r.s.customers[customer.PhoneNumber] = *customer
		return true, nil
	}
	customer.ID = existing.ID
	if customer.FullName == nil {
		customer.FullName = existing.FullName
	}
	if customer.Email == nil {
		customer.Email = existing.Email
	}
	r.s.customers[customer.PhoneNumber] = *customer
	return false, nil
}

type memCorrelationRepo struct{ s *memStore }

func (r *memCorrelationRepo) Create(_ context.Context, c *entity.OrderCorrelation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.correlations[c.OrderID] = *c
	return nil
}

func (r *memCorrelationRepo) FindByOrderID(_ context.Context, orderID string) (*entity.OrderCorrelation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.correlations[orderID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *memCorrelationRepo) UpdateGateway(_ context.Context, orderID, reference, paymentURL string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := r.s.correlations[orderID]
	c.GatewayReference = &reference
	c.PaymentURL = &paymentURL
	r.s.correlations[orderID] = c
	return nil
}

func (r *memCorrelationRepo) UpdateStatus(_ context.Context, orderID string, status entity.CorrelationStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.correlations[orderID]
	if ok {
		c.Status = status
		r.s.correlations[orderID] = c
	}
	return nil
}

// ==================== Money ====================

type memInvoiceRepo struct{ s *memStore }

func (r *memInvoiceRepo) Create(_ context.Context, invoice *entity.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.invoices[invoice.OrderID] = *invoice
	return nil
}

func (r *memInvoiceRepo) FindByOrderID(_ context.Context, orderID string) (*entity.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i, ok := r.s.invoices[orderID]
	if !ok {
		return nil, nil
	}
	return &i, nil
}

type memPaymentRepo struct{ s *memStore }

func (r *memPaymentRepo) CreatePending(_ context.Context, payment *entity.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.payments[payment.OrderID]; !ok {
		r.s.payments[payment.OrderID] = *payment
	}
	return nil
}

func (r *memPaymentRepo) FindByOrderID(_ context.Context, orderID string) (*entity.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[orderID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *memPaymentRepo) FindByOrderIDForUpdate(ctx context.Context, orderID string) (*entity.Payment, error) {
	return r.FindByOrderID(ctx, orderID)
}

func (r *memPaymentRepo) Complete(_ context.Context, payment *entity.Payment) (bool, error) {
	return r.finalize(payment, entity.PaymentStatusCompleted)
}

func (r *memPaymentRepo) Fail(_ context.Context, payment *entity.Payment) (bool, error) {
	return r.finalize(payment, entity.PaymentStatusFailed)
}

func (r *memPaymentRepo) finalize(payment *entity.Payment, status entity.PaymentStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing, ok := r.s.payments[payment.OrderID]; ok {
		if existing.Status != entity.PaymentStatusPending {
			return false, nil
		}
		payment.ID = existing.ID
	}
	payment.Status = status
	r.s.payments[payment.OrderID] = *payment
	return true, nil
}

func (r *memPaymentRepo) UpdateGatewayReference(_ context.Context, orderID, reference string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[orderID]
	if ok {
		p.GatewayReference = &reference
		r.s.payments[orderID] = p
	}
	return nil
}

// ==================== Vouchers & sessions ====================

type memVoucherRepo struct{ s *memStore }

func openVoucher(v entity.Voucher) bool {
	return v.Status == entity.VoucherIssuedAccessPending || v.Status == entity.VoucherActive
}

func (r *memVoucherRepo) Create(_ context.Context, voucher *entity.Voucher) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, taken := r.s.vouchers[voucher.VoucherCode]; taken {
		return false, nil
	}
	r.s.vouchers[voucher.VoucherCode] = *voucher
	return true, nil
}

func (r *memVoucherRepo) FindByCode(_ context.Context, code string) (*entity.Voucher, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.vouchers[code]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (r *memVoucherRepo) FindByCodeForUpdate(ctx context.Context, code string) (*entity.Voucher, error) {
	return r.FindByCode(ctx, code)
}

func (r *memVoucherRepo) FindByOrderID(_ context.Context, orderID string) (*entity.Voucher, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, v := range r.s.vouchers {
		if v.OrderID == orderID {
			return &v, nil
		}
	}
	return nil, nil
}

func (r *memVoucherRepo) filtered(status string) []*entity.Voucher {
	var out []*entity.Voucher
	for _, v := range r.s.vouchers {
		if status == "" || string(v.Status) == status {
			v := v
			out = append(out, &v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VoucherCode < out[j].VoucherCode })
	return out
}

func (r *memVoucherRepo) List(_ context.Context, status string, limit, offset int) ([]*entity.Voucher, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return page(r.filtered(status), limit, offset), nil
}

func (r *memVoucherRepo) Count(_ context.Context, status string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.filtered(status))), nil
}

func (r *memVoucherRepo) MarkAccessReady(_ context.Context, code string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.vouchers[code]
	if !ok || !openVoucher(v) {
		return nil
	}
	v.Status = entity.VoucherActive
	if v.AccessReadyAt == nil {
		v.AccessReadyAt = &at
	}
	r.s.vouchers[code] = v
	return nil
}

func (r *memVoucherRepo) MarkUsed(_ context.Context, code, activatedBy string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.vouchers[code]
	if !ok || !openVoucher(v) || v.UsageStatus != entity.VoucherUnused {
		return false, nil
	}
	v.UsageStatus = entity.VoucherUsed
	v.Status = entity.VoucherActive
	v.ActivatedAt = &at
	v.ActivatedBy = &activatedBy
	if v.AccessReadyAt == nil {
		v.AccessReadyAt = &at
	}
	r.s.vouchers[code] = v
	return true, nil
}

func (r *memVoucherRepo) Cancel(_ context.Context, code, cancelledBy string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.vouchers[code]
	if !ok || !openVoucher(v) {
		return false, nil
	}
	v.Status = entity.VoucherCancelled
	v.CancelledBy = &cancelledBy
	r.s.vouchers[code] = v
	return true, nil
}

func (r *memVoucherRepo) Expire(_ context.Context, code string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.vouchers[code]
	if !ok || !openVoucher(v) {
		return nil
	}
	v.Status = entity.VoucherExpired
	if v.UsageStatus == entity.VoucherUnused {
		v.UsageStatus = entity.VoucherUsageExpire
	}
	r.s.vouchers[code] = v
	return nil
}

func (r *memVoucherRepo) ExpireOverdueUnused(_ context.Context, now time.Time, limit int) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var codes []string
	for code, v := range r.s.vouchers {
		if len(codes) >= limit {
			break
		}
		if v.UsageStatus == entity.VoucherUnused && openVoucher(v) && !v.ExpiresAt.After(now) {
			v.Status = entity.VoucherExpired
			v.UsageStatus = entity.VoucherUsageExpire
			r.s.vouchers[code] = v
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes, nil
}

type memVoucherSessionRepo struct{ s *memStore }

func liveSession(v entity.VoucherSession) bool {
	return v.Status == entity.SessionActive || v.Status == entity.SessionPaused || v.Status == entity.SessionReconnecting
}

func (r *memVoucherSessionRepo) Create(_ context.Context, session *entity.VoucherSession) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.sessions {
		if existing.VoucherCode == session.VoucherCode && liveSession(existing) {
			return repository.ErrLiveSessionExists
		}
	}
	r.s.sessions[session.SessionToken] = cloneSession(*session)
	return nil
}

func (r *memVoucherSessionRepo) Update(_ context.Context, session *entity.VoucherSession, seen time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.sessions[session.SessionToken]
	if !ok || !stored.UpdatedAt.Equal(seen) || stored.Status.IsTerminal() {
		return repository.ErrSessionChanged
	}
	r.s.sessions[session.SessionToken] = cloneSession(*session)
	return nil
}

func (r *memVoucherSessionRepo) FindByToken(_ context.Context, token string) (*entity.VoucherSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.sessions[token]
	if !ok {
		return nil, nil
	}
	v = cloneSession(v)
	return &v, nil
}

func (r *memVoucherSessionRepo) FindLiveByVoucher(_ context.Context, code string) (*entity.VoucherSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, v := range r.s.sessions {
		if v.VoucherCode == code && liveSession(v) {
			v = cloneSession(v)
			return &v, nil
		}
	}
	return nil, nil
}

func (r *memVoucherSessionRepo) FindByTokenForUpdate(ctx context.Context, token string) (*entity.VoucherSession, error) {
	return r.FindByToken(ctx, token)
}

func (r *memVoucherSessionRepo) FindLiveByVoucherForUpdate(ctx context.Context, code string) (*entity.VoucherSession, error) {
	return r.FindLiveByVoucher(ctx, code)
}

func (r *memVoucherSessionRepo) FindLatestByVoucher(_ context.Context, code string) (*entity.VoucherSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var latest *entity.VoucherSession
	for _, v := range r.s.sessions {
		if v.VoucherCode != code {
			continue
		}
		if latest == nil || v.CreatedAt.After(latest.CreatedAt) {
			v = cloneSession(v)
			latest = &v
		}
	}
	return latest, nil
}

func (r *memVoucherSessionRepo) ListExpiredLive(_ context.Context, now time.Time, limit int) ([]*entity.VoucherSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.VoucherSession
	for _, v := range r.s.sessions {
		if liveSession(v) && !v.ExpiresAt.After(now) {
			v = cloneSession(v)
			out = append(out, &v)
		}
	}
	return page(out, limit, 0), nil
}

func (r *memVoucherSessionRepo) ListConnectedActive(_ context.Context, limit int) ([]*entity.VoucherSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.VoucherSession
	for _, v := range r.s.sessions {
		if v.Status == entity.SessionActive && v.IsConnected {
			v = cloneSession(v)
			out = append(out, &v)
		}
	}
	return page(out, limit, 0), nil
}

// ==================== Loyalty ====================

type memLoyaltyRepo struct{ s *memStore }

func (r *memLoyaltyRepo) FindByPhone(_ context.Context, phone string) (*entity.CustomerLoyalty, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.loyalty[phone]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

// FindByPhoneForUpdate fails on a missing row: SELECT ... FOR UPDATE locks
// nothing there.
func (r *memLoyaltyRepo) FindByPhoneForUpdate(ctx context.Context, phone string) (*entity.CustomerLoyalty, error) {
	l, err := r.FindByPhone(ctx, phone)
	if err == nil && l == nil {
		return nil, fmt.Errorf("no loyalty row to lock for %s", phone)
	}
	return l, err
}

func (r *memLoyaltyRepo) EnsureAccount(_ context.Context, phone string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.loyalty[phone]; ok {
		return nil
	}
	r.s.loyalty[phone] = entity.CustomerLoyalty{
		PhoneNumber:             phone,
		Tier:                    entity.TierBronze,
		LifetimeSpend:           decimal.Zero,
		AverageTransactionValue: decimal.Zero,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	return nil
}

func (r *memLoyaltyRepo) Save(_ context.Context, l *entity.CustomerLoyalty) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.loyalty[l.PhoneNumber] = *l
	return nil
}

func (r *memLoyaltyRepo) InsertTransaction(_ context.Context, t *entity.LoyaltyTransaction) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.loyaltyTx[t.OrderID]; ok {
		return false, nil
	}
	r.s.loyaltyTx[t.OrderID] = *t
	return true, nil
}

// ==================== Webhook events & tasks ====================

type memWebhookEventRepo struct{ s *memStore }

func (r *memWebhookEventRepo) Reserve(_ context.Context, e *entity.WebhookEvent) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := e.OrderID + "|" + e.EventKey
	if _, ok := r.s.events[key]; ok {
		return false, nil
	}
	r.s.events[key] = *e
	return true, nil
}

func (r *memWebhookEventRepo) FindByKey(_ context.Context, orderID, eventKey string) (*entity.WebhookEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[orderID+"|"+eventKey]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *memWebhookEventRepo) MarkProcessed(_ context.Context, id uuid.UUID, resultStatus string, result []byte, errMsg *string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for key, e := range r.s.events {
		if e.ID == id {
			e.Processed = true
			e.ResultStatus = &resultStatus
			e.Result = append([]byte(nil), result...)
			e.ErrorMessage = errMsg
			e.ProcessedAt = &at
			r.s.events[key] = e
		}
	}
	return nil
}

type memTaskRepo struct{ s *memStore }

func (r *memTaskRepo) Enqueue(_ context.Context, t *entity.Task) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.tasks {
		if existing.DedupeKey == t.DedupeKey {
			return false, nil
		}
	}
	t.Status = entity.TaskPending
	r.s.tasks[t.ID] = *t
	return true, nil
}

func (r *memTaskRepo) ClaimDue(_ context.Context, now time.Time, limit int, lease time.Duration) ([]*entity.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var due []entity.Task
	for _, t := range r.s.tasks {
		pending := t.Status == entity.TaskPending && !t.RunAt.After(now)
		lapsed := t.Status == entity.TaskRunning && t.LockedUntil != nil && t.LockedUntil.Before(now)
		if pending || lapsed {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].RunAt.Before(due[j].RunAt) })

	var out []*entity.Task
	for _, t := range due {
		if len(out) >= limit {
			break
		}
		until := now.Add(lease)
		t.Status = entity.TaskRunning
		t.LockedUntil = &until
		r.s.tasks[t.ID] = t
		t := t
		out = append(out, &t)
	}
	return out, nil
}

func (r *memTaskRepo) update(id uuid.UUID, fn func(t *entity.Task)) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return
	}
	fn(&t)
	r.s.tasks[id] = t
}

func (r *memTaskRepo) MarkDone(_ context.Context, id uuid.UUID) error {
	r.update(id, func(t *entity.Task) {
		t.Status = entity.TaskDone
		t.LockedUntil = nil
		t.LastError = nil
	})
	return nil
}

func (r *memTaskRepo) Reschedule(_ context.Context, id uuid.UUID, attempts int, runAt time.Time, lastErr string) error {
	r.update(id, func(t *entity.Task) {
		t.Status = entity.TaskPending
		t.Attempts = attempts
		t.RunAt = runAt
		t.LastError = &lastErr
		t.LockedUntil = nil
	})
	return nil
}

func (r *memTaskRepo) MarkFailed(_ context.Context, id uuid.UUID, attempts int, lastErr string) error {
	r.update(id, func(t *entity.Task) {
		t.Status = entity.TaskFailed
		t.Attempts = attempts
		t.LastError = &lastErr
		t.LockedUntil = nil
	})
	return nil
}

func (r *memTaskRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *memTaskRepo) filtered(status string) []*entity.Task {
	var out []*entity.Task
	for _, t := range r.s.tasks {
		if status == "" || string(t.Status) == status {
			t := t
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *memTaskRepo) List(_ context.Context, status string, limit, offset int) ([]*entity.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return page(r.filtered(status), limit, offset), nil
}

func (r *memTaskRepo) Count(_ context.Context, status string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.filtered(status))), nil
}

func (r *memTaskRepo) Requeue(_ context.Context, id uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok || t.Status != entity.TaskFailed {
		return false, nil
	}
	t.Status = entity.TaskPending
	t.Attempts = 0
	t.RunAt = time.Now()
	r.s.tasks[id] = t
	return true, nil
}

// ==================== RADIUS ====================

type memRadiusRepo struct{ s *memStore }

func (r *memRadiusRepo) ProvisionUser(_ context.Context, u entity.RadiusUser) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.radiusErr != nil {
		return r.s.radiusErr
	}
	r.s.radius[u.Username] = u
	return nil
}

func (r *memRadiusRepo) RemoveUser(_ context.Context, username string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.radiusErr != nil {
		return r.s.radiusErr
	}
	delete(r.s.radius, username)
	return nil
}

func page[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}
