package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"actpath-backend/internal/model"
	"actpath-backend/internal/repository"
	"actpath-backend/utilities"
)

const (
	minPasswordLength = 8
	// DefaultMaxMFAAttempts is the number of wrong codes that drops a pending code.
	DefaultMaxMFAAttempts = 5
)

// CodeSender delivers a one-time MFA code to the user.
type CodeSender interface {
	SendCode(ctx context.Context, user *model.User, code string) error
}

// LogCodeSender writes codes to the log. Development only.
type LogCodeSender struct{}

func (LogCodeSender) SendCode(_ context.Context, user *model.User, code string) error {
	log.Info().Str("email", user.Email).Str("code", code).Msg("mfa code issued")
	return nil
}

type AuthOptions struct {
	// MFATTL is how long a login code stays valid.
	MFATTL time.Duration
	// ExposeMFACode echoes the code in the login response.
	ExposeMFACode bool
	// MaxMFAAttempts is the number of wrong codes that drops the pending code.
	MaxMFAAttempts int
	BcryptCost     int
	Sender         CodeSender
	Now            func() time.Time
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     model.Role
	License  string
	ClinicID *uint
}

type AuthResult struct {
	User         *model.User `json:"user"`
	AccessToken  string      `json:"token"`
	RefreshToken string      `json:"refreshToken,omitempty"`
}

// LoginChallenge is returned by Login; the caller must follow up with VerifyMFA.
type LoginChallenge struct {
	Message string `json:"message"`
	Email   string `json:"email"`
	Code    string `json:"tempCode,omitempty"`
}

// AuthService interface
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*LoginChallenge, error)
	VerifyMFA(ctx context.Context, email, code string) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*AuthResult, error)
}

type authService struct {
	userRepo repository.UserRepository
	issuer   *utilities.TokenIssuer
	opts     AuthOptions
}

// NewAuthService initializes authentication service
func NewAuthService(userRepo repository.UserRepository, issuer *utilities.TokenIssuer, opts AuthOptions) AuthService {
	if opts.MFATTL <= 0 {
		opts.MFATTL = 10 * time.Minute
	}
	if opts.MaxMFAAttempts <= 0 {
		opts.MaxMFAAttempts = DefaultMaxMFAAttempts
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Sender == nil {
		opts.Sender = LogCodeSender{}
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &authService{userRepo: userRepo, issuer: issuer, opts: opts}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *authService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if in.Name == "" {
		return nil, invalid("name is required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, invalid("a valid email is required")
	}
	if len(in.Password) < minPasswordLength {
		return nil, invalid("password must be at least %d characters", minPasswordLength)
	}
	if in.Role == "" {
		in.Role = model.RoleClient
	}
	if in.Role != model.RoleClient && in.Role != model.RoleTherapist {
		return nil, invalid("role must be CLIENT or THERAPIST")
	}

	if _, err := s.userRepo.GetUserByEmail(ctx, in.Email); err == nil {
		return nil, conflict("user already exists")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, storage("failed to look up user", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.opts.BcryptCost)
	if err != nil {
		return nil, storage("failed to hash password", err)
	}

	user := &model.User{
		Name:           in.Name,
		Email:          in.Email,
		Password:       string(hashed),
		Role:           in.Role,
		License:        strings.TrimSpace(in.License),
		ClinicID:       in.ClinicID,
		CurrentSession: 1,
	}
	if err := s.userRepo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, conflict("user already exists")
		}
		return nil, storage("failed to store user in database", err)
	}

	token, err := s.issuer.GenerateAccessToken(user)
	if err != nil {
		return nil, storage("failed to issue token", err)
	}

	log.Info().Uint("user_id", user.ID).Str("role", string(user.Role)).Msg("user registered")
	return &AuthResult{User: user, AccessToken: token}, nil
}

// Login checks the password and starts an MFA challenge.
func (s *authService) Login(ctx context.Context, email, password string) (*LoginChallenge, error) {
	email = normalizeEmail(email)
	user, err := s.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, unauthorized("invalid credentials")
		}
		return nil, storage("failed to look up user", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, unauthorized("invalid credentials")
	}

	code, err := generateMFACode()
	if err != nil {
		return nil, storage("failed to generate mfa code", err)
	}
	expires := s.opts.Now().Add(s.opts.MFATTL)
	if err := s.userRepo.UpdateUser(ctx, user.ID, map[string]any{
		"mfa_code":            code,
		"mfa_expires_at":      expires,
		"mfa_failed_attempts": 0,
	}); err != nil {
		return nil, storage("failed to store mfa code", err)
	}
	if err := s.opts.Sender.SendCode(ctx, user, code); err != nil {
		return nil, storage("failed to send mfa code", err)
	}

	challenge := &LoginChallenge{Message: "MFA Required", Email: user.Email}
	if s.opts.ExposeMFACode {
		challenge.Code = code
	}
	return challenge, nil
}

func (s *authService) VerifyMFA(ctx context.Context, email, code string) (*AuthResult, error) {
	user, err := s.userRepo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, unauthorized("invalid mfa code")
		}
		return nil, storage("failed to look up user", err)
	}
	if user.MFACode == "" {
		return nil, unauthorized("invalid mfa code")
	}
	if subtle.ConstantTimeCompare([]byte(user.MFACode), []byte(strings.TrimSpace(code))) != 1 {
		return nil, s.recordFailedMFA(ctx, user)
	}
	if user.MFAExpiresAt == nil || s.opts.Now().After(*user.MFAExpiresAt) {
		return nil, unauthorized("mfa code has expired")
	}

	if err := s.userRepo.UpdateUser(ctx, user.ID, map[string]any{
		"mfa_code":            "",
		"mfa_expires_at":      nil,
		"mfa_failed_attempts": 0,
	}); err != nil {
		return nil, storage("failed to clear mfa code", err)
	}
	user.MFACode, user.MFAExpiresAt = "", nil

	access, refresh, err := s.issuer.GenerateTokens(user)
	if err != nil {
		return nil, storage("failed to issue tokens", err)
	}
	return &AuthResult{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

// recordFailedMFA counts a wrong code and drops the pending code once the
// limit is reached. It always returns an error for the caller.
func (s *authService) recordFailedMFA(ctx context.Context, user *model.User) error {
	attempts := user.MFAFailedAttempts + 1
	updates := map[string]any{"mfa_failed_attempts": attempts}
	if attempts >= s.opts.MaxMFAAttempts {
		updates = map[string]any{
			"mfa_code":            "",
			"mfa_expires_at":      nil,
			"mfa_failed_attempts": 0,
		}
		log.Warn().Uint("user_id", user.ID).Int("attempts", attempts).Msg("mfa code invalidated after repeated failures")
	}
	if err := s.userRepo.UpdateUser(ctx, user.ID, updates); err != nil {
		return storage("failed to record mfa attempt", err)
	}
	return unauthorized("invalid mfa code")
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.issuer.ValidateToken(refreshToken, true)
	if err != nil {
		return nil, unauthorized("invalid or expired refresh token")
	}
	user, err := s.userRepo.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, unauthorized("invalid or expired refresh token")
		}
		return nil, storage("failed to look up user", err)
	}

	access, refresh, err := s.issuer.GenerateTokens(user)
	if err != nil {
		return nil, storage("failed to generate new tokens", err)
	}
	return &AuthResult{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

func generateMFACode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
