package utilities

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"actpath-backend/internal/model"
)

// Default token lifetimes.
const (
	AccessTokenExpiry  = time.Minute * 60
	RefreshTokenExpiry = time.Hour * 24 * 7
)

var (
	ErrInvalidToken = errors.New("invalid or malformed token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims struct
type Claims struct {
	UserID uint       `json:"user_id"`
	Role   model.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 access and refresh tokens.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokenIssuer builds an issuer. Zero TTLs fall back to the defaults.
func NewTokenIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) (*TokenIssuer, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("jwt secrets must not be empty")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if accessTTL <= 0 {
		accessTTL = AccessTokenExpiry
	}
	if refreshTTL <= 0 {
		refreshTTL = RefreshTokenExpiry
	}
	return &TokenIssuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}, nil
}

// GenerateTokens creates both access and refresh tokens
func (ti *TokenIssuer) GenerateTokens(user *model.User) (string, string, error) {
	accessToken, err := ti.GenerateAccessToken(user)
	if err != nil {
		return "", "", err
	}

	refreshToken, err := ti.generateToken(user, ti.refreshSecret, ti.refreshTTL)
	if err != nil {
		return "", "", err
	}

	return accessToken, refreshToken, nil
}

func (ti *TokenIssuer) GenerateAccessToken(user *model.User) (string, error) {
	return ti.generateToken(user, ti.accessSecret, ti.accessTTL)
}

// ValidateToken verifies the token and extracts claims
func (ti *TokenIssuer) ValidateToken(tokenStr string, isRefresh bool) (*Claims, error) {
	secret := ti.accessSecret
	if isRefresh {
		secret = ti.refreshSecret
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ti.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Helper function to generate JWT token
func (ti *TokenIssuer) generateToken(user *model.User, secret []byte, expiry time.Duration) (string, error) {
	now := ti.now()
	claims := &Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   user.Email,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
