package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/prudhvinik1/syncengine/internal/mock"
	"github.com/prudhvinik1/syncengine/internal/models"
	"github.com/prudhvinik1/syncengine/internal/repositories"
	"github.com/prudhvinik1/syncengine/internal/utils"
)

const (
	testSecret   = "test-secret"
	testPassword = "correct horse battery"
)

type authMocks struct {
	accounts *mock.MockAccountRepository
	devices  *mock.MockDeviceRepository
	sessions *mock.MockSessionRepository
	clock    *fakeClock
}

func newMockedAuth(t *testing.T) (*AuthService, *authMocks) {
	ctrl := gomock.NewController(t)
	m := &authMocks{
		accounts: mock.NewMockAccountRepository(ctrl),
		devices:  mock.NewMockDeviceRepository(ctrl),
		sessions: mock.NewMockSessionRepository(ctrl),
		clock:    newFakeClock(testNow),
	}
	return NewAuthService(m.accounts, m.devices, m.sessions, m.clock, testSecret, time.Hour), m
}

func testAccountWithPassword(t *testing.T) *models.Account {
	t.Helper()
	hash, err := utils.HashPassword(testPassword)
	require.NoError(t, err)
	return &models.Account{ID: testAccount, Email: "user@example.com", PasswordHash: hash}
}

// login issues a token for testAccount and returns it with the session that
// was stored for it.
func login(t *testing.T, svc *AuthService, m *authMocks, deviceID string) (*LoginResponse, *models.Session) {
	t.Helper()
	m.accounts.EXPECT().GetByEmail(gomock.Any(), "user@example.com").Return(testAccountWithPassword(t), nil)

	var stored *models.Session
	m.sessions.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, s *models.Session) error {
			stored = s
			return nil
		})

	resp, err := svc.Login(context.Background(), LoginRequest{Email: "User@Example.com", Password: testPassword, DeviceID: deviceID})
	require.NoError(t, err)
	return resp, stored
}

func TestAuthService_Register(t *testing.T) {
	svc, m := newMockedAuth(t)

	m.accounts.EXPECT().GetByEmail(gomock.Any(), "new@example.com").Return(nil, repositories.ErrNotFound)
	m.accounts.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, a *models.Account) error {
			assert.Equal(t, "new@example.com", a.Email)
			assert.True(t, utils.CheckPassword(a.PasswordHash, testPassword))
			a.ID = "acc-new"
			return nil
		})

	account, err := svc.Register(context.Background(), "  New@Example.com ", testPassword)

	require.NoError(t, err)
	assert.Equal(t, "acc-new", account.ID)
}

func TestAuthService_RegisterRejects(t *testing.T) {
	t.Run("invalid email", func(t *testing.T) {
		svc, _ := newMockedAuth(t)
		_, err := svc.Register(context.Background(), "not-an-email", testPassword)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("short password", func(t *testing.T) {
		svc, m := newMockedAuth(t)
		m.accounts.EXPECT().GetByEmail(gomock.Any(), gomock.Any()).Return(nil, repositories.ErrNotFound)

		_, err := svc.Register(context.Background(), "a@example.com", "short")
		assert.ErrorIs(t, err, ErrValidation)
		assert.ErrorIs(t, err, utils.ErrPasswordTooShort)
	})

	t.Run("existing email", func(t *testing.T) {
		svc, m := newMockedAuth(t)
		m.accounts.EXPECT().GetByEmail(gomock.Any(), gomock.Any()).Return(&models.Account{ID: "x"}, nil)

		_, err := svc.Register(context.Background(), "a@example.com", testPassword)
		assert.ErrorIs(t, err, ErrEmailExists)
	})

	t.Run("email taken concurrently", func(t *testing.T) {
		svc, m := newMockedAuth(t)
		m.accounts.EXPECT().GetByEmail(gomock.Any(), gomock.Any()).Return(nil, repositories.ErrNotFound)
		m.accounts.EXPECT().Create(gomock.Any(), gomock.Any()).Return(repositories.ErrEmailExists)

		_, err := svc.Register(context.Background(), "a@example.com", testPassword)
		assert.ErrorIs(t, err, ErrEmailExists)
	})
}

func TestAuthService_Login(t *testing.T) {
	svc, m := newMockedAuth(t)

	resp, session := login(t, svc, m, "")

	assert.Equal(t, testAccount, resp.AccountID)
	assert.Equal(t, testNow.Add(time.Hour), resp.ExpiresAt)
	assert.Equal(t, testAccount, session.AccountID)
	assert.Equal(t, resp.ExpiresAt, session.ExpiresAt)
	assert.NotEmpty(t, session.ID)

	claims, err := svc.VerifyToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, testAccount, claims.AccountID)
	assert.Equal(t, session.ID, claims.SessionID)
	assert.Empty(t, claims.DeviceID)
}

func TestAuthService_LoginBindsDevice(t *testing.T) {
	svc, m := newMockedAuth(t)
	m.devices.EXPECT().GetByID(gomock.Any(), "d1").
		Return(&models.Device{DeviceID: "d1", AccountID: testAccount, IsActive: true}, nil)

	resp, session := login(t, svc, m, "d1")

	assert.Equal(t, "d1", resp.DeviceID)
	assert.Equal(t, "d1", session.DeviceID)

	claims, err := svc.VerifyToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "d1", claims.DeviceID)
}

func TestAuthService_LoginFailures(t *testing.T) {
	t.Run("unknown email", func(t *testing.T) {
		svc, m := newMockedAuth(t)
		m.accounts.EXPECT().GetByEmail(gomock.Any(), gomock.Any()).Return(nil, repositories.ErrNotFound)

		_, err := svc.Login(context.Background(), LoginRequest{Email: "x@example.com", Password: testPassword})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("wrong password", func(t *testing.T) {
		svc, m := newMockedAuth(t)
		m.accounts.EXPECT().GetByEmail(gomock.Any(), gomock.Any()).Return(testAccountWithPassword(t), nil)

		_, err := svc.Login(context.Background(), LoginRequest{Email: "user@example.com", Password: "wrong password!"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("device of another account", func(t *testing.T) {
		svc, m := newMockedAuth(t)
		m.accounts.EXPECT().GetByEmail(gomock.Any(), gomock.Any()).Return(testAccountWithPassword(t), nil)
		m.devices.EXPECT().GetByID(gomock.Any(), "d9").Return(&models.Device{DeviceID: "d9", AccountID: otherAccount}, nil)

		_, err := svc.Login(context.Background(), LoginRequest{Email: "user@example.com", Password: testPassword, DeviceID: "d9"})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("unknown device", func(t *testing.T) {
		svc, m := newMockedAuth(t)
		m.accounts.EXPECT().GetByEmail(gomock.Any(), gomock.Any()).Return(testAccountWithPassword(t), nil)
		m.devices.EXPECT().GetByID(gomock.Any(), "ghost").Return(nil, repositories.ErrNotFound)

		_, err := svc.Login(context.Background(), LoginRequest{Email: "user@example.com", Password: testPassword, DeviceID: "ghost"})
		assert.ErrorIs(t, err, ErrDeviceNotFound)
	})

	t.Run("session store failure", func(t *testing.T) {
		svc, m := newMockedAuth(t)
		m.accounts.EXPECT().GetByEmail(gomock.Any(), gomock.Any()).Return(testAccountWithPassword(t), nil)
		m.sessions.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("redis down"))

		_, err := svc.Login(context.Background(), LoginRequest{Email: "user@example.com", Password: testPassword})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create session")
	})
}

func TestAuthService_VerifyToken(t *testing.T) {
	svc, m := newMockedAuth(t)
	resp, _ := login(t, svc, m, "")

	t.Run("tampered signature", func(t *testing.T) {
		other := NewAuthService(nil, nil, nil, m.clock, "another-secret", time.Hour)
		_, err := other.VerifyToken(resp.Token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": testAccount, "jti": "s"})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = svc.VerifyToken(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing session id", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": testAccount,
			"exp": testNow.Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = svc.VerifyToken(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		m.clock.Advance(2 * time.Hour)
		_, err := svc.VerifyToken(resp.Token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestAuthService_Authenticate(t *testing.T) {
	svc, m := newMockedAuth(t)
	resp, session := login(t, svc, m, "")

	m.sessions.EXPECT().GetByID(gomock.Any(), session.ID).Return(session, nil)
	claims, err := svc.Authenticate(context.Background(), resp.Token)
	require.NoError(t, err)
	assert.Equal(t, testAccount, claims.AccountID)

	m.sessions.EXPECT().GetByID(gomock.Any(), session.ID).Return(nil, repositories.ErrNotFound)
	_, err = svc.Authenticate(context.Background(), resp.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	m.sessions.EXPECT().GetByID(gomock.Any(), session.ID).
		Return(&models.Session{ID: session.ID, AccountID: otherAccount}, nil)
	_, err = svc.Authenticate(context.Background(), resp.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_Logout(t *testing.T) {
	svc, m := newMockedAuth(t)
	resp, session := login(t, svc, m, "")

	m.sessions.EXPECT().Delete(gomock.Any(), session.ID).Return(nil)
	require.NoError(t, svc.Logout(context.Background(), resp.Token))

	m.sessions.EXPECT().DeleteAllForAccount(gomock.Any(), testAccount).Return(nil)
	require.NoError(t, svc.LogoutAll(context.Background(), resp.Token))

	assert.ErrorIs(t, svc.Logout(context.Background(), "garbage"), ErrInvalidToken)
}
