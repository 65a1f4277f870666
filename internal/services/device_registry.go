package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prudhvinik1/syncengine/internal/logger"
	"github.com/prudhvinik1/syncengine/internal/models"
	"github.com/prudhvinik1/syncengine/internal/repositories"
)

// DeviceRegistry tracks the devices of each account and their presence.
type DeviceRegistry struct {
	devices  repositories.DeviceRepository
	presence repositories.PresenceRepository
	clock    Clock
}

func NewDeviceRegistry(
	devices repositories.DeviceRepository,
	presence repositories.PresenceRepository,
	clock Clock,
) *DeviceRegistry {
	return &DeviceRegistry{
		devices:  devices,
		presence: presence,
		clock:    clock,
	}
}

// Register creates the device or refreshes its descriptive fields.
// Registering an already known device reactivates it.
func (r *DeviceRegistry) Register(ctx context.Context, accountID string, req *models.RegisterDeviceRequest) (*models.Device, error) {
	if strings.TrimSpace(req.DeviceID) == "" {
		return nil, fmt.Errorf("%w: deviceId is required", ErrValidation)
	}
	if strings.TrimSpace(req.DeviceName) == "" {
		return nil, fmt.Errorf("%w: deviceName is required", ErrValidation)
	}
	if strings.TrimSpace(req.Platform) == "" {
		return nil, fmt.Errorf("%w: platform is required", ErrValidation)
	}

	device := &models.Device{
		DeviceID:    req.DeviceID,
		AccountID:   accountID,
		DisplayName: req.DeviceName,
		Platform:    req.Platform,
		AppVersion:  req.AppVersion,
		LastSeenAt:  r.clock.Now(),
	}

	err := r.devices.Upsert(ctx, device)
	if errors.Is(err, repositories.ErrForeignDevice) {
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, fmt.Errorf("failed to register device: %w", err)
	}

	touchPresence(ctx, r.presence, accountID, device.DeviceID)

	logger.FromContext(ctx).Info().
		Str("func", "DeviceRegistry.Register").
		Str("account_id", accountID).
		Str("device_id", device.DeviceID).
		Msg("device registered")

	return device, nil
}

// Deactivate soft-deletes the device. Its history stays in the log.
func (r *DeviceRegistry) Deactivate(ctx context.Context, accountID, deviceID string) error {
	if _, err := r.Get(ctx, accountID, deviceID); err != nil {
		return err
	}

	if err := r.devices.Deactivate(ctx, deviceID); err != nil {
		return fmt.Errorf("failed to deactivate device: %w", err)
	}

	if r.presence != nil {
		if err := r.presence.DeletePresence(ctx, deviceID); err != nil {
			logger.FromContext(ctx).Warn().Err(err).
				Str("func", "DeviceRegistry.Deactivate").
				Str("device_id", deviceID).
				Msg("failed to clear presence")
		}
	}
	return nil
}

// Get returns the device if it belongs to the account, active or not.
func (r *DeviceRegistry) Get(ctx context.Context, accountID, deviceID string) (*models.Device, error) {
	device, err := r.devices.GetByID(ctx, deviceID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	if device.AccountID != accountID {
		return nil, ErrForbidden
	}
	return device, nil
}

// List returns every device of the account with its online status.
// Presence lookups are best effort: when Redis fails, devices are listed
// as offline.
func (r *DeviceRegistry) List(ctx context.Context, accountID string) ([]models.DeviceStatus, error) {
	devices, err := r.devices.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		ids = append(ids, d.DeviceID)
	}

	var presence map[string]models.Presence
	if r.presence != nil && len(ids) > 0 {
		presence, err = r.presence.GetBulkPresence(ctx, ids)
		if err != nil {
			logger.FromContext(ctx).Warn().Err(err).
				Str("func", "DeviceRegistry.List").
				Str("account_id", accountID).
				Msg("failed to read presence")
		}
	}

	statuses := make([]models.DeviceStatus, 0, len(devices))
	for _, d := range devices {
		p, ok := presence[d.DeviceID]
		statuses = append(statuses, models.DeviceStatus{
			Device: d,
			Online: ok && p.Status == string(models.StatusOnline),
		})
	}
	return statuses, nil
}

// Heartbeat records that an active device is still reachable.
func (r *DeviceRegistry) Heartbeat(ctx context.Context, accountID, deviceID string) error {
	if _, err := authorizeDevice(ctx, r.devices, accountID, deviceID); err != nil {
		return err
	}

	if err := r.devices.Touch(ctx, deviceID, r.clock.Now()); err != nil {
		return fmt.Errorf("failed to touch device: %w", err)
	}

	touchPresence(ctx, r.presence, accountID, deviceID)
	return nil
}

// authorizeDevice loads the acting device and checks that it may sync on
// behalf of the account.
func authorizeDevice(ctx context.Context, devices repositories.DeviceRepository, accountID, deviceID string) (*models.Device, error) {
	device, err := devices.GetByID(ctx, deviceID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	if device.AccountID != accountID {
		return nil, ErrForbidden
	}
	if !device.IsActive {
		return nil, ErrDeviceInactive
	}
	return device, nil
}

func touchPresence(ctx context.Context, presence repositories.PresenceRepository, accountID, deviceID string) {
	if presence == nil {
		return
	}
	err := presence.SetPresence(ctx, &models.Presence{
		AccountID: accountID,
		DeviceID:  deviceID,
		Status:    string(models.StatusOnline),
	})
	if err != nil {
		logger.FromContext(ctx).Warn().Err(err).
			Str("func", "touchPresence").
			Str("device_id", deviceID).
			Msg("failed to refresh presence")
	}
}
