// Package service contains the application services: account management,
// conversation CRUD, and the chat relay. Services validate input, enforce
// ownership through the repositories, and translate failures onto the errs
// sentinels; they never touch HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/errs"
	"github.com/parley-chat/parley/internal/limiter"
	"github.com/parley-chat/parley/internal/models"
	"github.com/parley-chat/parley/internal/repository"
)

const (
	usernameMinLen = 3
	usernameMaxLen = 50
	passwordMinLen = 8
	// bcrypt ignores everything past 72 bytes, so longer passwords are
	// rejected rather than silently truncated.
	passwordMaxBytes = 72
)

// Session is the outcome of a successful registration or login.
type Session struct {
	User      models.PublicUser
	Token     string
	ExpiresAt time.Time
}

// ProfileUpdate is a partial profile change. Nil fields stay untouched.
type ProfileUpdate struct {
	Username *string
	Email    *string
	Theme    *string
	Language *string
}

// Empty reports whether the update carries no field.
func (p ProfileUpdate) Empty() bool {
	return p.Username == nil && p.Email == nil && p.Theme == nil && p.Language == nil
}

// AuthService handles accounts and credentials.
type AuthService interface {
	Register(ctx context.Context, username, email, password string) (*Session, error)
	Login(ctx context.Context, email, password, ip string) (*Session, error)
	Profile(ctx context.Context, userID uuid.UUID) (models.PublicUser, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, upd ProfileUpdate) (models.PublicUser, error)
}

type authService struct {
	users      repository.UserRepository
	tokens     *auth.Manager
	lim        limiter.Limiter
	bcryptCost int
	logger     *zap.Logger
}

func NewAuthService(users repository.UserRepository, tokens *auth.Manager, lim limiter.Limiter, bcryptCost int, logger *zap.Logger) AuthService {
	return &authService{
		users:      users,
		tokens:     tokens,
		lim:        lim,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

func (s *authService) Register(ctx context.Context, username, email, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	email = normalizeEmail(email)

	v := errs.NewValidation()
	validateUsername(v, username)
	validateEmail(v, email)
	validatePassword(v, password)
	if err := v.Err(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &models.User{
		ID:               uuid.New(),
		Username:         username,
		Email:            email,
		PasswordHash:     string(hash),
		SubscriptionTier: "free",
		IsActive:         true,
		Preferences:      models.DefaultPreferences(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.String("user_id", u.ID.String()))
	return s.newSession(u)
}

func (s *authService) Login(ctx context.Context, email, password, ip string) (*Session, error) {
	email = normalizeEmail(email)

	allowed, retry, err := s.lim.Allow(ctx, email, ip)
	if err != nil {
		return nil, fmt.Errorf("limiter: %w", err)
	}
	if !allowed {
		return nil, fmt.Errorf("%w, retry in %s", errs.ErrRateLimited, retry.Round(time.Second))
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			// Record the miss and answer exactly like a bad password, so
			// login cannot be used to probe which emails exist.
			return nil, s.recordFailure(ctx, email, ip)
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, s.recordFailure(ctx, email, ip)
	}
	if !u.IsActive {
		return nil, fmt.Errorf("account disabled: %w", errs.ErrUnauthorized)
	}

	if err := s.lim.Success(ctx, email, ip); err != nil {
		s.logger.Warn("limiter reset failed", zap.Error(err))
	}

	now := time.Now().UTC()
	if err := s.users.UpdateLastLogin(ctx, u.ID, now); err != nil {
		s.logger.Warn("last login not recorded", zap.String("user_id", u.ID.String()), zap.Error(err))
	} else {
		u.LastLogin = &now
	}

	return s.newSession(u)
}

func (s *authService) recordFailure(ctx context.Context, email, ip string) error {
	if blocked, retry, err := s.lim.Failure(ctx, email, ip); err != nil {
		s.logger.Warn("limiter record failed", zap.Error(err))
	} else if blocked {
		return fmt.Errorf("%w, retry in %s", errs.ErrRateLimited, retry.Round(time.Second))
	}
	return fmt.Errorf("invalid credentials: %w", errs.ErrUnauthorized)
}

func (s *authService) Profile(ctx context.Context, userID uuid.UUID) (models.PublicUser, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return models.PublicUser{}, err
	}
	return u.Public(), nil
}

func (s *authService) UpdateProfile(ctx context.Context, userID uuid.UUID, upd ProfileUpdate) (models.PublicUser, error) {
	if upd.Empty() {
		return models.PublicUser{}, errs.Validation("body", "no fields to update")
	}

	v := errs.NewValidation()
	if upd.Username != nil {
		*upd.Username = strings.TrimSpace(*upd.Username)
		validateUsername(v, *upd.Username)
	}
	if upd.Email != nil {
		*upd.Email = normalizeEmail(*upd.Email)
		validateEmail(v, *upd.Email)
	}
	if upd.Theme != nil && strings.TrimSpace(*upd.Theme) == "" {
		v.Add("preferences.theme", "must not be empty")
	}
	if upd.Language != nil && strings.TrimSpace(*upd.Language) == "" {
		v.Add("preferences.language", "must not be empty")
	}
	if err := v.Err(); err != nil {
		return models.PublicUser{}, err
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return models.PublicUser{}, err
	}

	if upd.Username != nil {
		u.Username = *upd.Username
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.Theme != nil {
		u.Preferences.Theme = strings.TrimSpace(*upd.Theme)
	}
	if upd.Language != nil {
		u.Preferences.Language = strings.TrimSpace(*upd.Language)
	}

	if err := s.users.Update(ctx, u); err != nil {
		return models.PublicUser{}, err
	}
	return u.Public(), nil
}

func (s *authService) newSession(u *models.User) (*Session, error) {
	token, exp, err := s.tokens.Generate(u.ID, u.Email)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{User: u.Public(), Token: token, ExpiresAt: exp}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateUsername(v *errs.ValidationError, username string) {
	n := len([]rune(username))
	switch {
	case n == 0:
		v.Add("username", "is required")
	case n < usernameMinLen:
		v.Addf("username", "must be at least %d characters", usernameMinLen)
	case n > usernameMaxLen:
		v.Addf("username", "must be at most %d characters", usernameMaxLen)
	}
}

func validateEmail(v *errs.ValidationError, email string) {
	if email == "" {
		v.Add("email", "is required")
		return
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		v.Add("email", "must be a valid email address")
	}
}

func validatePassword(v *errs.ValidationError, password string) {
	switch {
	case password == "":
		v.Add("password", "is required")
	case len([]rune(password)) < passwordMinLen:
		v.Addf("password", "must be at least %d characters", passwordMinLen)
	case len(password) > passwordMaxBytes:
		v.Addf("password", "must be at most %d bytes", passwordMaxBytes)
	}
}
