// Package handlers exposes the sync engine over HTTP/JSON. Every route
// except registration, login and health requires a bearer token; the
// account it authenticates scopes all reads and writes.
package handlers

import (
	"context"

	"github.com/prudhvinik1/syncengine/internal/logger"
	"github.com/prudhvinik1/syncengine/internal/models"
	"github.com/prudhvinik1/syncengine/internal/services"
)

type PushService interface {
	Push(ctx context.Context, accountID string, req *models.PushRequest) (*models.PushResponse, error)
}

type PullService interface {
	Pull(ctx context.Context, accountID string, req *models.PullRequest) (*models.PullResponse, error)
	Snapshot(ctx context.Context, accountID, deviceID string) (*models.SnapshotResponse, error)
}

type DeviceService interface {
	Register(ctx context.Context, accountID string, req *models.RegisterDeviceRequest) (*models.Device, error)
	Deactivate(ctx context.Context, accountID, deviceID string) error
	Get(ctx context.Context, accountID, deviceID string) (*models.Device, error)
	List(ctx context.Context, accountID string) ([]models.DeviceStatus, error)
	Heartbeat(ctx context.Context, accountID, deviceID string) error
}

type ConflictService interface {
	Resolve(ctx context.Context, accountID string, req *models.ResolveConflictRequest) (*models.ResolveConflictResponse, error)
	ListUnresolved(ctx context.Context, accountID, entityType string) ([]*models.Conflict, error)
}

type AuthService interface {
	Register(ctx context.Context, email, password string) (*models.Account, error)
	Login(ctx context.Context, req services.LoginRequest) (*services.LoginResponse, error)
	Authenticate(ctx context.Context, token string) (*services.TokenClaims, error)
	Logout(ctx context.Context, token string) error
	LogoutAll(ctx context.Context, token string) error
}

// Services groups what the HTTP layer calls into.
type Services struct {
	Push      PushService
	Pull      PullService
	Devices   DeviceService
	Conflicts ConflictService
	Auth      AuthService
}

type Handler struct {
	services *Services

	logger *logger.Logger
}

func NewHandler(services *Services, logger *logger.Logger) *Handler {
	logger.Info().Msg("http handler created")
	return &Handler{
		services: services,
		logger:   logger,
	}
}
