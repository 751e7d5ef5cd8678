package service

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/coachdesk/academy-api/internal/models"
	"github.com/coachdesk/academy-api/pkg/config"
	appErrors "github.com/coachdesk/academy-api/pkg/errors"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*models.User)}
}

func (f *fakeUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := f.FindByEmail(ctx, email)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (f *fakeUserRepo) Create(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user.ID == "" {
		user.ID = "user-" + user.Email
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	user.PasswordHash = passwordHash
	return nil
}

func (f *fakeUserRepo) UpdateLastLogin(_ context.Context, id string, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[id]; ok {
		user.LastLogin = &ts
	}
	return nil
}

type fakeOTPRepo struct {
	codes map[string]string
}

func (f *fakeOTPRepo) Store(_ context.Context, email, code string, _ time.Duration) error {
	if f.codes == nil {
		f.codes = make(map[string]string)
	}
	f.codes[email] = code
	return nil
}

func (f *fakeOTPRepo) Verify(_ context.Context, email, code string) (bool, error) {
	stored, ok := f.codes[email]
	if !ok || stored != code {
		return false, nil
	}
	delete(f.codes, email)
	return true, nil
}

type captureSender struct {
	toEmail string
	subject string
	body    string
}

func (c *captureSender) Send(_ context.Context, _, toEmail, subject, body string) error {
	c.toEmail = toEmail
	c.subject = subject
	c.body = body
	return nil
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "test-secret", Expiration: time.Hour, Issuer: "coachdesk-test"}
}

func newAuthService(users *fakeUserRepo, otps *fakeOTPRepo, mail *captureSender) *AuthService {
	return NewAuthService(users, nil, nil, otps, mail, testJWTConfig(), config.OTPConfig{TTL: 10 * time.Minute, Length: 6}, nil, zap.NewNop())
}

func TestRegisterAndLogin(t *testing.T) {
	users := newFakeUserRepo()
	svc := newAuthService(users, &fakeOTPRepo{}, &captureSender{})

	user, err := svc.Register(context.Background(), RegisterRequest{
		FullName: "Ada Admin",
		Email:    "Ada@Example.com",
		Password: "s3cret-pass",
		Role:     "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.NotEqual(t, "s3cret-pass", user.PasswordHash)

	result, err := svc.Login(context.Background(), LoginRequest{Email: "ada@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, user.ID, result.User.ID)

	claims, err := svc.ValidateToken(result.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	users := newFakeUserRepo()
	svc := newAuthService(users, &fakeOTPRepo{}, &captureSender{})

	req := RegisterRequest{FullName: "Ada Admin", Email: "ada@example.com", Password: "s3cret-pass", Role: "ADMIN"}
	_, err := svc.Register(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), req)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	users := newFakeUserRepo()
	hash, _ := bcrypt.GenerateFromPassword([]byte("correct-pass"), bcrypt.MinCost)
	require.NoError(t, users.Create(context.Background(), &models.User{
		Email: "ada@example.com", PasswordHash: string(hash), Role: models.RoleAdmin, Active: true,
	}))
	svc := newAuthService(users, &fakeOTPRepo{}, &captureSender{})

	_, err := svc.Login(context.Background(), LoginRequest{Email: "ada@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), LoginRequest{Email: "nobody@example.com", Password: "whatever"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	users := newFakeUserRepo()
	hash, _ := bcrypt.GenerateFromPassword([]byte("correct-pass"), bcrypt.MinCost)
	require.NoError(t, users.Create(context.Background(), &models.User{
		Email: "ada@example.com", PasswordHash: string(hash), Role: models.RoleAdmin, Active: false,
	}))
	svc := newAuthService(users, &fakeOTPRepo{}, &captureSender{})

	_, err := svc.Login(context.Background(), LoginRequest{Email: "ada@example.com", Password: "correct-pass"})
	assert.ErrorIs(t, err, appErrors.ErrInactiveAccount)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := newAuthService(newFakeUserRepo(), &fakeOTPRepo{}, &captureSender{})
	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)
}

func TestPasswordResetFlow(t *testing.T) {
	users := newFakeUserRepo()
	hash, _ := bcrypt.GenerateFromPassword([]byte("old-password"), bcrypt.MinCost)
	require.NoError(t, users.Create(context.Background(), &models.User{
		Email: "ada@example.com", FullName: "Ada", PasswordHash: string(hash), Role: models.RoleAdmin, Active: true,
	}))
	otps := &fakeOTPRepo{}
	mail := &captureSender{}
	svc := newAuthService(users, otps, mail)

	require.NoError(t, svc.RequestPasswordReset(context.Background(), "ada@example.com"))
	assert.Equal(t, "ada@example.com", mail.toEmail)
	code := otps.codes["ada@example.com"]
	require.Len(t, code, 6)
	assert.Contains(t, mail.body, code)

	require.NoError(t, svc.ResetPassword(context.Background(), ResetPasswordRequest{
		Email:       "ada@example.com",
		Code:        code,
		NewPassword: "new-password-1",
	}))

	_, err := svc.Login(context.Background(), LoginRequest{Email: "ada@example.com", Password: "new-password-1"})
	require.NoError(t, err)

	// A consumed code cannot be replayed.
	err = svc.ResetPassword(context.Background(), ResetPasswordRequest{
		Email:       "ada@example.com",
		Code:        code,
		NewPassword: "another-password",
	})
	assert.ErrorIs(t, err, appErrors.ErrInvalidOTP)
}

func TestPasswordResetUnknownEmailIsSilent(t *testing.T) {
	mail := &captureSender{}
	svc := newAuthService(newFakeUserRepo(), &fakeOTPRepo{}, mail)
	require.NoError(t, svc.RequestPasswordReset(context.Background(), "ghost@example.com"))
	assert.Empty(t, mail.toEmail)
}

func TestPasswordResetRejectsWrongCode(t *testing.T) {
	users := newFakeUserRepo()
	require.NoError(t, users.Create(context.Background(), &models.User{
		Email: "ada@example.com", Role: models.RoleAdmin, Active: true,
	}))
	otps := &fakeOTPRepo{}
	svc := newAuthService(users, otps, &captureSender{})

	require.NoError(t, svc.RequestPasswordReset(context.Background(), "ada@example.com"))
	otps.codes["ada@example.com"] = "123456"
	err := svc.ResetPassword(context.Background(), ResetPasswordRequest{
		Email:       "ada@example.com",
		Code:        "654321",
		NewPassword: "new-password-1",
	})
	assert.ErrorIs(t, err, appErrors.ErrInvalidOTP)
}
