package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"actpath-backend/internal/model"
	"actpath-backend/internal/repository"
	"actpath-backend/internal/testutil"
	"actpath-backend/utilities"
)

type captureSender struct {
	mu    sync.Mutex
	codes map[string]string
}

func (c *captureSender) SendCode(_ context.Context, user *model.User, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.codes == nil {
		c.codes = map[string]string{}
	}
	c.codes[user.Email] = code
	return nil
}

func (c *captureSender) code(email string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[email]
}

type authFixture struct {
	svc    AuthService
	issuer *utilities.TokenIssuer
	sender *captureSender
	now    time.Time
}

func newAuthFixture(t *testing.T, expose bool) *authFixture {
	t.Helper()
	gdb := testutil.NewDB(t)
	issuer, err := utilities.NewTokenIssuer("access", "refresh", time.Hour, 24*time.Hour)
	require.NoError(t, err)

	f := &authFixture{issuer: issuer, sender: &captureSender{}, now: time.Now().UTC()}
	f.svc = NewAuthService(repository.NewUserRepository(gdb), issuer, AuthOptions{
		MFATTL:        5 * time.Minute,
		ExposeMFACode: expose,
		BcryptCost:    bcrypt.MinCost,
		Sender:        f.sender,
		Now:           func() time.Time { return f.now },
	})
	return f
}

func (f *authFixture) register(t *testing.T, email string) *AuthResult {
	t.Helper()
	res, err := f.svc.Register(context.Background(), RegisterInput{Name: "Ada", Email: email, Password: "correct-horse"})
	require.NoError(t, err)
	return res
}

func TestAuthService_Register(t *testing.T) {
	f := newAuthFixture(t, false)
	ctx := context.Background()

	res := f.register(t, " Ada@Example.com ")
	assert.Equal(t, "ada@example.com", res.User.Email)
	assert.Equal(t, model.RoleClient, res.User.Role)
	assert.Equal(t, 1, res.User.CurrentSession)
	assert.NotEqual(t, "correct-horse", res.User.Password)

	claims, err := f.issuer.ValidateToken(res.AccessToken, false)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.UserID)

	_, err = f.svc.Register(ctx, RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "another-one"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestAuthService_RegisterValidation(t *testing.T) {
	f := newAuthFixture(t, false)
	cases := map[string]RegisterInput{
		"no name":        {Email: "a@example.com", Password: "long-enough"},
		"bad email":      {Name: "A", Email: "nope", Password: "long-enough"},
		"short password": {Name: "A", Email: "a@example.com", Password: "short"},
		"admin role":     {Name: "A", Email: "a@example.com", Password: "long-enough", Role: model.RoleAdmin},
		"unknown role":   {Name: "A", Email: "a@example.com", Password: "long-enough", Role: "PILOT"},
	}
	for name, in := range cases {
		_, err := f.svc.Register(context.Background(), in)
		assert.ErrorIs(t, err, ErrValidation, name)
	}
}

func TestAuthService_LoginAndVerify(t *testing.T) {
	f := newAuthFixture(t, false)
	ctx := context.Background()
	f.register(t, "ada@example.com")

	challenge, err := f.svc.Login(ctx, "ADA@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "MFA Required", challenge.Message)
	assert.Empty(t, challenge.Code)

	code := f.sender.code("ada@example.com")
	require.Len(t, code, 6)

	_, err = f.svc.VerifyMFA(ctx, "ada@example.com", "000000")
	assert.ErrorIs(t, err, ErrUnauthorized)

	res, err := f.svc.VerifyMFA(ctx, "ada@example.com", code)
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)

	_, err = f.svc.VerifyMFA(ctx, "ada@example.com", code)
	assert.ErrorIs(t, err, ErrUnauthorized, "codes are single use")
}

func TestAuthService_LoginFailures(t *testing.T) {
	f := newAuthFixture(t, false)
	ctx := context.Background()
	f.register(t, "ada@example.com")

	_, err := f.svc.Login(ctx, "ada@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.svc.Login(ctx, "nobody@example.com", "correct-horse")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.svc.VerifyMFA(ctx, "nobody@example.com", "123456")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthService_WrongCodesDropChallenge(t *testing.T) {
	f := newAuthFixture(t, false)
	ctx := context.Background()
	f.register(t, "ada@example.com")

	_, err := f.svc.Login(ctx, "ada@example.com", "correct-horse")
	require.NoError(t, err)
	code := f.sender.code("ada@example.com")

	for i := 0; i < DefaultMaxMFAAttempts; i++ {
		_, err = f.svc.VerifyMFA(ctx, "ada@example.com", "000000")
		require.ErrorIs(t, err, ErrUnauthorized)
	}
	_, err = f.svc.VerifyMFA(ctx, "ada@example.com", code)
	assert.ErrorIs(t, err, ErrUnauthorized, "the right code no longer works")

	// A fresh login starts a new challenge with a clean counter.
	_, err = f.svc.Login(ctx, "ada@example.com", "correct-horse")
	require.NoError(t, err)
	for i := 0; i < DefaultMaxMFAAttempts-1; i++ {
		_, err = f.svc.VerifyMFA(ctx, "ada@example.com", "000000")
		require.ErrorIs(t, err, ErrUnauthorized)
	}
	res, err := f.svc.VerifyMFA(ctx, "ada@example.com", f.sender.code("ada@example.com"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
}

func TestAuthService_ExpiredCode(t *testing.T) {
	f := newAuthFixture(t, true)
	ctx := context.Background()
	f.register(t, "ada@example.com")

	challenge, err := f.svc.Login(ctx, "ada@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, f.sender.code("ada@example.com"), challenge.Code)

	f.now = f.now.Add(6 * time.Minute)
	_, err = f.svc.VerifyMFA(ctx, "ada@example.com", challenge.Code)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthService_Refresh(t *testing.T) {
	f := newAuthFixture(t, true)
	ctx := context.Background()
	f.register(t, "ada@example.com")

	challenge, err := f.svc.Login(ctx, "ada@example.com", "correct-horse")
	require.NoError(t, err)
	res, err := f.svc.VerifyMFA(ctx, "ada@example.com", challenge.Code)
	require.NoError(t, err)

	refreshed, err := f.svc.Refresh(ctx, res.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, refreshed.User.ID)
	assert.NotEmpty(t, refreshed.AccessToken)

	_, err = f.svc.Refresh(ctx, res.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestGenerateMFACode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generateMFACode()
		require.NoError(t, err)
		assert.Len(t, code, 6)
		assert.GreaterOrEqual(t, code, "100000")
		assert.LessOrEqual(t, code, "999999")
	}
}
