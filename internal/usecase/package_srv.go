package usecase

import (
	"context"
	"strings"
	"time"

	"isp-portal/internal/data/entity"
	"isp-portal/internal/data/repository"
	"isp-portal/internal/dto/request"
	"isp-portal/internal/dto/response"
	"isp-portal/pkg/utils"

	"go.uber.org/zap"
)

type PackageService interface {
	ListActive(ctx context.Context) ([]response.PackageResponse, error)
	GetPackage(ctx context.Context, id int64) (*response.PackageResponse, error)
	CreatePackage(ctx context.Context, req *request.CreatePackageRequest) (*response.PackageResponse, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

type packageService struct {
	repo   *repository.Repository
	config *utils.Config
	log    *zap.Logger
}

func NewPackageService(repo *repository.Repository, config *utils.Config, log *zap.Logger) PackageService {
	return &packageService{
		repo:   repo,
		config: config,
		log:    log.With(zap.String("service", "package")),
	}
}

func (s *packageService) ListActive(ctx context.Context) ([]response.PackageResponse, error) {
	packages, err := s.repo.Package.FindAllActive(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]response.PackageResponse, len(packages))
	for i, p := range packages {
		result[i] = response.PackageToResponse(p)
	}
	return result, nil
}

func (s *packageService) GetPackage(ctx context.Context, id int64) (*response.PackageResponse, error) {
	pkg, err := s.repo.Package.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, ErrPackageNotFound
	}

	resp := response.PackageToResponse(pkg)
	return &resp, nil
}

func (s *packageService) CreatePackage(ctx context.Context, req *request.CreatePackageRequest) (*response.PackageResponse, error) {
	// 1. Validate
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, fieldErrors(errs)
	}
	if !req.Price.IsPositive() {
		return nil, fieldErrors(map[string]string{"price": "Price must be greater than zero"})
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = s.config.Gateway.Currency
	}

	// 2. Persist
	now := time.Now()
	pkg := &entity.Package{
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		Price:        req.Price,
		Currency:     currency,
		DurationDays: req.DurationDays,
		DownloadKbps: req.DownloadKbps,
		UploadKbps:   req.UploadKbps,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Package.Create(ctx, pkg); err != nil {
		return nil, err
	}

	s.log.Info("Package created",
		zap.Int64("package_id", pkg.ID),
		zap.String("name", pkg.Name),
		zap.String("price", pkg.Price.String()),
	)

	resp := response.PackageToResponse(pkg)
	return &resp, nil
}

func (s *packageService) SetActive(ctx context.Context, id int64, active bool) error {
	ok, err := s.repo.Package.SetActive(ctx, id, active)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPackageNotFound
	}

	s.log.Info("Package availability changed", zap.Int64("package_id", id), zap.Bool("active", active))
	return nil
}
