package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/prudhvinik1/syncengine/internal/logger"
	"github.com/prudhvinik1/syncengine/internal/models"
	"github.com/prudhvinik1/syncengine/internal/repositories"
	"github.com/prudhvinik1/syncengine/internal/utils"
)

type AuthService struct {
	accountRepo repositories.AccountRepository
	deviceRepo  repositories.DeviceRepository
	sessionRepo repositories.SessionRepository
	clock       Clock
	jwtSecret   string
	jwtExpiry   time.Duration
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// DeviceID optionally binds the session to an already registered device.
	DeviceID string `json:"deviceId,omitempty"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	AccountID string    `json:"accountId"`
	DeviceID  string    `json:"deviceId,omitempty"`
}

type TokenClaims struct {
	AccountID string
	DeviceID  string
	SessionID string
}

func NewAuthService(
	accountRepo repositories.AccountRepository,
	deviceRepo repositories.DeviceRepository,
	sessionRepo repositories.SessionRepository,
	clock Clock,
	jwtSecret string,
	jwtExpiry time.Duration,
) *AuthService {
	return &AuthService{
		accountRepo: accountRepo,
		deviceRepo:  deviceRepo,
		sessionRepo: sessionRepo,
		clock:       clock,
		jwtSecret:   jwtSecret,
		jwtExpiry:   jwtExpiry,
	}
}

func (s *AuthService) Register(ctx context.Context, email, password string) (*models.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", ErrValidation)
	}

	existing, err := s.accountRepo.GetByEmail(ctx, email)
	if err == nil && existing != nil {
		return nil, ErrEmailExists
	}
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	hashedPassword, err := utils.HashPassword(password)
	if errors.Is(err, utils.ErrPasswordTooShort) {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &models.Account{
		Email:        email,
		PasswordHash: hashedPassword,
	}

	err = s.accountRepo.Create(ctx, account)
	if errors.Is(err, repositories.ErrEmailExists) {
		return nil, ErrEmailExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	logger.FromContext(ctx).Info().
		Str("func", "AuthService.Register").
		Str("account_id", account.ID).
		Msg("account registered")

	return account, nil
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	account, err := s.accountRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if !utils.CheckPassword(account.PasswordHash, req.Password) {
		return nil, ErrInvalidCredentials
	}

	if req.DeviceID != "" {
		device, err := s.deviceRepo.GetByID(ctx, req.DeviceID)
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrDeviceNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get device: %w", err)
		}
		if device.AccountID != account.ID {
			return nil, ErrForbidden
		}
	}

	now := s.clock.Now()
	session := &models.Session{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		DeviceID:  req.DeviceID,
		ExpiresAt: now.Add(s.jwtExpiry),
		CreatedAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	token, err := s.generateToken(session, now)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &LoginResponse{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		AccountID: account.ID,
		DeviceID:  req.DeviceID,
	}, nil
}

func (s *AuthService) generateToken(session *models.Session, issuedAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub": session.AccountID,
		"jti": session.ID,
		"exp": session.ExpiresAt.Unix(),
		"iat": issuedAt.Unix(),
	}
	if session.DeviceID != "" {
		claims["device_id"] = session.DeviceID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

// VerifyToken checks the signature and expiry of the token. It does not
// consult the session store; use Authenticate for that.
func (s *AuthService) VerifyToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	}, jwt.WithTimeFunc(s.clock.Now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	accountID, ok := claims["sub"].(string)
	if !ok || accountID == "" {
		return nil, ErrInvalidToken
	}

	sessionID, ok := claims["jti"].(string)
	if !ok || sessionID == "" {
		return nil, ErrInvalidToken
	}

	// device binding is optional
	deviceID, _ := claims["device_id"].(string)

	return &TokenClaims{
		AccountID: accountID,
		DeviceID:  deviceID,
		SessionID: sessionID,
	}, nil
}

// Authenticate verifies the token and that its session is still live.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*TokenClaims, error) {
	claims, err := s.VerifyToken(tokenString)
	if err != nil {
		return nil, err
	}

	session, err := s.sessionRepo.GetByID(ctx, claims.SessionID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session.AccountID != claims.AccountID {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (s *AuthService) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.VerifyToken(tokenString)
	if err != nil {
		return err
	}

	if err := s.sessionRepo.Delete(ctx, claims.SessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *AuthService) LogoutAll(ctx context.Context, tokenString string) error {
	claims, err := s.VerifyToken(tokenString)
	if err != nil {
		return err
	}

	if err := s.sessionRepo.DeleteAllForAccount(ctx, claims.AccountID); err != nil {
		return fmt.Errorf("failed to logout all sessions: %w", err)
	}
	return nil
}
