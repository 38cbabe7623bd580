package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"canditrack/internal/common"
	"canditrack/internal/common/security"
	"canditrack/internal/domain/model"
	"canditrack/internal/domain/repository"

	"github.com/google/uuid"
)

type AuthService struct {
	userRepo     repository.UserRepository
	settingsRepo repository.SettingsRepository
	tokens       *security.TokenIssuer
	logger       *slog.Logger
}

func NewAuthService(userRepo repository.UserRepository, settingsRepo repository.SettingsRepository, tokens *security.TokenIssuer, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{userRepo: userRepo, settingsRepo: settingsRepo, tokens: tokens, logger: logger}
}

type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	LoginField string `json:"login_field"` // Can be username or email
	Password   string `json:"password"`
}

type AuthResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// Signup registers an operator. The first account becomes the admin; later
// ones are recruiters. Concurrent first signups race on the bootstrap admin
// setting, so exactly one of them is promoted.
func (s *AuthService) Signup(ctx context.Context, req SignupRequest) (*AuthResponse, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return nil, fmt.Errorf("username, email and password are required: %w", common.ErrBadRequest)
	}
	if len(req.Password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters: %w", common.ErrValidation)
	}

	hashedPassword, err := security.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		ID:             uuid.NewString(),
		Username:       req.Username,
		Email:          req.Email,
		HashedPassword: hashedPassword,
		Role:           model.RoleRecruiter,
	}

	claimed, err := s.claimBootstrapAdmin(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if claimed {
		user.Role = model.RoleAdmin
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if claimed {
			s.releaseBootstrapAdmin(ctx, user.ID)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.logger.Info("user signed up", "user_id", user.ID, "role", user.Role)

	token, err := s.tokens.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	user.HashedPassword = ""
	return &AuthResponse{User: user, Token: token}, nil
}

// claimBootstrapAdmin reports whether userID won the admin role. Only an empty
// users table is eligible; the insert-if-absent settles concurrent winners.
func (s *AuthService) claimBootstrapAdmin(ctx context.Context, userID string) (bool, error) {
	existing, err := s.userRepo.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to count users: %w", err)
	}
	if existing > 0 {
		return false, nil
	}
	claimed, err := s.settingsRepo.SetIfAbsent(ctx, model.SettingBootstrapAdmin, userID)
	if err != nil {
		return false, fmt.Errorf("failed to claim admin role: %w", err)
	}
	return claimed, nil
}

// releaseBootstrapAdmin frees the claim when the winning user was never stored.
func (s *AuthService) releaseBootstrapAdmin(ctx context.Context, userID string) {
	ctx = context.WithoutCancel(ctx)
	setting, err := s.settingsRepo.Get(ctx, model.SettingBootstrapAdmin)
	if err != nil || setting.Value != userID {
		return
	}
	if err := s.settingsRepo.Delete(ctx, model.SettingBootstrapAdmin); err != nil {
		s.logger.Error("failed to release admin claim", "user_id", userID, "err", err)
	}
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if req.LoginField == "" || req.Password == "" {
		return nil, common.ErrBadRequest
	}

	user, err := s.userRepo.FindByEmail(ctx, strings.ToLower(req.LoginField))
	if errors.Is(err, common.ErrNotFound) {
		user, err = s.userRepo.FindByUsername(ctx, req.LoginField)
	}
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized // Generic message for security
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if !security.CheckPasswordHash(req.Password, user.HashedPassword) {
		return nil, common.ErrUnauthorized
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	user.HashedPassword = ""
	return &AuthResponse{User: user, Token: token}, nil
}
