package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joshua-takyi/eventix/internal/clock"
	"github.com/joshua-takyi/eventix/internal/helpers"
	"github.com/joshua-takyi/eventix/internal/mailer"
	"github.com/joshua-takyi/eventix/internal/models"
	"github.com/supabase-community/gotrue-go/types"
)

const verificationCodeTTL = 10 * time.Minute

type UserService struct {
	userRepo  models.UserRepo
	tokens    *helpers.TokenIssuer
	mailer    mailer.Mailer
	refresher models.SessionRefresher
	clock     clock.Clock
	logger    *slog.Logger
}

func NewUserService(userRepo models.UserRepo, tokens *helpers.TokenIssuer, m mailer.Mailer, refresher models.SessionRefresher, clk clock.Clock, logger *slog.Logger) *UserService {
	return &UserService{
		userRepo:  userRepo,
		tokens:    tokens,
		mailer:    m,
		refresher: refresher,
		clock:     clk,
		logger:    logger,
	}
}

type SignupInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name" binding:"max=120"`
	Code     string `json:"code" binding:"required,len=6,numeric"`
}

// AuthResult is a signed in user and the access token issued for them.
type AuthResult struct {
	User      *models.User `json:"user"`
	Token     string       `json:"accessToken"`
	ExpiresIn int          `json:"expiresIn"`
}

func (us *UserService) RequestSignupCode(ctx context.Context, email string) error {
	if err := models.Validate.Var(email, "required,email"); err != nil {
		return models.ValidationError("invalid email format")
	}
	if _, err := us.userRepo.GetUserByEmail(ctx, email); err == nil {
		return models.ErrEmailTaken
	} else if !errors.Is(err, models.ErrUserNotFound) {
		return err
	}

	code, err := helpers.GenerateCode(6)
	if err != nil {
		return err
	}
	now := us.clock.Now()
	if err := us.userRepo.SaveVerificationCode(ctx, email, code, now.Add(verificationCodeTTL), now); err != nil {
		return err
	}
	if err := us.mailer.SendVerificationCode(ctx, email, code, verificationCodeTTL); err != nil {
		return fmt.Errorf("failed to send verification code: %w", err)
	}
	return nil
}

func (us *UserService) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	if !helpers.IsPasswordStrong(in.Password) {
		return nil, models.ValidationError("password is not strong enough")
	}
	now := us.clock.Now()
	if err := us.userRepo.ConsumeVerificationCode(ctx, in.Email, in.Code, now); err != nil {
		return nil, err
	}

	hash, err := helpers.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: hash,
		Provider:     models.ProviderCredentials,
		Role:         models.RoleUser,
		IsVerified:   true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := models.Validate.Struct(user); err != nil {
		return nil, err
	}
	if err := us.userRepo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	us.logger.Info("User signed up", "user_id", user.ID.Hex())
	return us.issue(user, now)
}

func (us *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := us.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == "" || !helpers.CheckPassword(user.PasswordHash, password) {
		return nil, models.ErrInvalidCredentials
	}
	return us.issue(user, us.clock.Now())
}

func (us *UserService) issue(user *models.User, now time.Time) (*AuthResult, error) {
	token, err := us.tokens.Issue(user, now)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Token: token, ExpiresIn: int(us.tokens.TTL().Seconds())}, nil
}

// RefreshSession renews a Supabase session from its refresh token.
func (us *UserService) RefreshSession(ctx context.Context, refreshToken string) (*types.TokenResponse, error) {
	if refreshToken == "" {
		return nil, models.ErrUnauthorized
	}
	if us.refresher == nil {
		return nil, fmt.Errorf("oauth sessions are not enabled: %w", models.ErrUnauthorized)
	}
	res, err := us.refresher.RefreshSession(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	return res, nil
}

// ResolveOAuthUser links a Supabase identity to a local user by email.
func (us *UserService) ResolveOAuthUser(ctx context.Context, claims *helpers.CustomClaims) (*models.User, error) {
	provider := claims.AppMetadata.Provider
	if provider == "" {
		provider = "supabase"
	}
	return us.userRepo.LinkOAuthUser(ctx, claims.Email, claims.DisplayName(), provider, claims.Subject, us.clock.Now())
}

func (us *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	oid, err := models.ParseObjectID(id)
	if err != nil {
		return nil, err
	}
	return us.userRepo.GetUserByID(ctx, oid)
}

func (us *UserService) ListUsers(ctx context.Context, role models.Role, page, limit int) ([]*models.User, int64, error) {
	if role != "" && !role.Valid() {
		return nil, 0, models.ValidationError("unknown role %q", role)
	}
	_, limit, offset := Pagination(page, limit)
	return us.userRepo.ListUsers(ctx, role, offset, limit)
}

func (us *UserService) UpdateUser(ctx context.Context, id string, update models.UserUpdate) (*models.User, error) {
	oid, err := models.ParseObjectID(id)
	if err != nil {
		return nil, err
	}
	if update.Empty() {
		return nil, models.ValidationError("no fields to update")
	}
	if err := models.Validate.Struct(update); err != nil {
		return nil, err
	}
	return us.userRepo.UpdateUser(ctx, oid, update, us.clock.Now())
}

func (us *UserService) DeleteUser(ctx context.Context, id string) error {
	oid, err := models.ParseObjectID(id)
	if err != nil {
		return err
	}
	return us.userRepo.DeleteUser(ctx, oid)
}

func (us *UserService) SetRole(ctx context.Context, id string, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, models.ValidationError("unknown role %q", role)
	}
	oid, err := models.ParseObjectID(id)
	if err != nil {
		return nil, err
	}
	user, err := us.userRepo.SetUserRole(ctx, oid, role, us.clock.Now())
	if err != nil {
		return nil, err
	}
	us.logger.Info("User role changed", "user_id", id, "role", role)
	return user, nil
}
