package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"isp-portal/internal/data/entity"
	"isp-portal/internal/data/repository"
	"isp-portal/internal/dto/request"
	"isp-portal/internal/dto/response"
	"isp-portal/pkg/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TokenClaims are carried by operator access tokens. ID (jti) is the
// auth_sessions row so a token dies with its session.
type TokenClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// LoginMeta describes the client performing a login.
type LoginMeta struct {
	UserAgent string
	IPAddress string
}

type AuthService interface {
	Login(ctx context.Context, req *request.LoginRequest, meta LoginMeta) (*response.AuthResponse, error)
	Logout(ctx context.Context, principal utils.Principal) error
	// Authenticate turns a bearer token into a principal, checking both the
	// signature and the backing session.
	Authenticate(ctx context.Context, token string) (utils.Principal, error)
}

type authService struct {
	repo   *repository.Repository
	config *utils.Config
	log    *zap.Logger
}

func NewAuthService(
	repo *repository.Repository,
	config *utils.Config,
	log *zap.Logger,
) AuthService {
	return &authService{
		repo:   repo,
		config: config,
		log:    log.With(zap.String("service", "auth")),
	}
}

func (s *authService) Login(ctx context.Context, req *request.LoginRequest, meta LoginMeta) (*response.AuthResponse, error) {
	// 1. Validate
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, fieldErrors(errs)
	}

	// 2. Find operator by username or email
	user, err := s.repo.User.FindByLogin(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		s.log.Warn("Login for unknown operator", zap.String("identifier", req.Username))
		return nil, ErrInvalidCredentials
	}

	// 3. Check password
	if !utils.CheckPasswordHash(req.Password, user.PasswordHash) {
		s.log.Warn("Invalid password", zap.String("user_id", user.ID.String()))
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		s.log.Warn("Inactive operator tried to login", zap.String("user_id", user.ID.String()))
		return nil, ErrAccountInactive
	}

	// 4. Session row, then the token that points at it
	now := time.Now()
	session := &entity.Session{
		BaseSimple: entity.BaseSimple{ID: utils.GenerateUUID(), CreatedAt: now},
		UserID:     user.ID,
		UserAgent:  optionalString(meta.UserAgent),
		IPAddress:  optionalString(meta.IPAddress),
		ExpiresAt:  now.Add(s.tokenTTL()),
	}
	if err := s.repo.Session.Create(ctx, session); err != nil {
		return nil, err
	}

	token, err := s.signToken(user, session)
	if err != nil {
		return nil, err
	}

	s.log.Info("Operator logged in",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username),
	)

	return &response.AuthResponse{
		UserID:    user.ID.String(),
		Username:  user.Username,
		Role:      user.Role,
		Token:     token,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

func (s *authService) Logout(ctx context.Context, principal utils.Principal) error {
	if err := s.repo.Session.Revoke(ctx, principal.SessionID); err != nil {
		return err
	}

	s.log.Info("Operator logged out",
		zap.String("user_id", principal.UserID.String()),
		zap.String("session_id", principal.SessionID.String()),
	)
	return nil
}

func (s *authService) Authenticate(ctx context.Context, token string) (utils.Principal, error) {
	claims := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(s.config.JWT.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return utils.Principal{}, ErrUnauthorized
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return utils.Principal{}, ErrUnauthorized
	}
	sessionID, err := uuid.Parse(claims.ID)
	if err != nil {
		return utils.Principal{}, ErrUnauthorized
	}

	session, err := s.repo.Session.FindValidSession(ctx, sessionID)
	if err != nil {
		return utils.Principal{}, err
	}
	if session == nil || session.UserID != userID {
		return utils.Principal{}, ErrUnauthorized
	}

	return utils.Principal{
		UserID:    userID,
		Username:  claims.Username,
		Role:      claims.Role,
		SessionID: sessionID,
	}, nil
}

func (s *authService) signToken(user *entity.User, session *entity.Session) (string, error) {
	if s.config.JWT.Secret == "" {
		return "", errors.New("jwt secret is not configured")
	}

	claims := TokenClaims{
		Username: user.Username,
		Role:     string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ID:        session.ID.String(),
			Issuer:    s.config.App.Name,
			IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.JWT.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *authService) tokenTTL() time.Duration {
	if s.config.JWT.ExpiryHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(s.config.JWT.ExpiryHours) * time.Hour
}
