package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"isp-portal/internal/data/entity"
	"isp-portal/internal/data/repository"
	"isp-portal/internal/dto/request"
	"isp-portal/internal/dto/response"
	"isp-portal/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type UserService interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*response.UserResponse, error)
	ListOperators(ctx context.Context, page, perPage int) (*response.PaginatedResponse[response.UserResponse], error)
	CreateOperator(ctx context.Context, req *request.CreateOperatorRequest) (*response.UserResponse, error)
	DeleteOperator(ctx context.Context, userID uuid.UUID, principal utils.Principal) error
}

type userService struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	log         *zap.Logger
}

func NewUserService(userRepo repository.UserRepository, sessionRepo repository.SessionRepository, log *zap.Logger) UserService {
	return &userService{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		log:         log.With(zap.String("service", "user")),
	}
}

func (us *userService) GetProfile(ctx context.Context, userID uuid.UUID) (*response.UserResponse, error) {
	user, err := us.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	resp := response.UserToResponse(user)
	return &resp, nil
}

func (us *userService) ListOperators(ctx context.Context, page, perPage int) (*response.PaginatedResponse[response.UserResponse], error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}

	users, err := us.userRepo.FindAll(ctx, perPage, utils.CalculateOffset(page, perPage))
	if err != nil {
		return nil, err
	}

	total, err := us.userRepo.CountAll(ctx)
	if err != nil {
		return nil, err
	}

	data := make([]response.UserResponse, len(users))
	for i, user := range users {
		data[i] = response.UserToResponse(user)
	}

	return response.NewPaginatedResponse(data, page, perPage, total), nil
}

func (us *userService) CreateOperator(ctx context.Context, req *request.CreateOperatorRequest) (*response.UserResponse, error) {
	// 1. Validate
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, fieldErrors(errs)
	}

	// 2. Hash password
	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	// 3. Save
	now := time.Now()
	user := &entity.User{
		Base:         entity.Base{ID: utils.GenerateUUID(), CreatedAt: now, UpdatedAt: now},
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hashed,
		Phone:        req.Phone,
		Role:         entity.UserRole(req.Role),
		IsActive:     true,
	}
	if err := us.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	us.log.Info("Operator created",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username),
		zap.String("role", string(user.Role)),
	)

	resp := response.UserToResponse(user)
	return &resp, nil
}

func (us *userService) DeleteOperator(ctx context.Context, userID uuid.UUID, principal utils.Principal) error {
	if userID == principal.UserID {
		return ErrCannotDeleteMe
	}

	user, err := us.userRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	if err := us.userRepo.Delete(ctx, userID); err != nil {
		return err
	}

	// outstanding tokens die with the account
	if err := us.sessionRepo.RevokeAllUserSessions(ctx, userID); err != nil {
		us.log.Warn("Failed to revoke sessions of deleted operator", zap.Error(err), zap.String("user_id", userID.String()))
	}

	us.log.Info("Operator deleted",
		zap.String("user_id", userID.String()),
		zap.String("username", user.Username),
		zap.String("deleted_by", principal.Actor()),
	)
	return nil
}
