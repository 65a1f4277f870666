package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prudhvinik1/syncengine/internal/logger"
	"github.com/prudhvinik1/syncengine/internal/models"
)

const (
	deviceColumns = `device_id, account_id, display_name, platform, app_version,
	                 last_sync_sequence, last_pulled_sequence, last_sync_at, last_seen_at, is_active, created_at`

	// re-registering refreshes the descriptive fields and reactivates the
	// device, but never moves it to another account
	upsertDevice = `INSERT INTO devices (device_id, account_id, display_name, platform, app_version, last_seen_at, is_active, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, TRUE, $6)
	          ON CONFLICT (device_id) DO UPDATE
	          SET display_name = EXCLUDED.display_name,
	              platform = EXCLUDED.platform,
	              app_version = EXCLUDED.app_version,
	              last_seen_at = EXCLUDED.last_seen_at,
	              is_active = TRUE
	          WHERE devices.account_id = EXCLUDED.account_id
	          RETURNING last_sync_sequence, last_pulled_sequence, last_sync_at, created_at`

	getDevice = `SELECT ` + deviceColumns + ` FROM devices WHERE device_id = $1`

	listAccountDevices = `SELECT ` + deviceColumns + `
	          FROM devices
	          WHERE account_id = $1
	          ORDER BY created_at ASC, device_id ASC`

	deactivateDevice = `UPDATE devices SET is_active = FALSE WHERE device_id = $1`

	updateDeviceCursor = `UPDATE devices
	          SET last_sync_sequence = $2, last_sync_at = $3, last_seen_at = $3
	          WHERE device_id = $1`

	markDevicePulled = `UPDATE devices
	          SET last_sync_sequence = $2, last_pulled_sequence = $2, last_sync_at = $3, last_seen_at = $3
	          WHERE device_id = $1`

	touchDevice = `UPDATE devices SET last_seen_at = $2 WHERE device_id = $1`

	minActiveCursor = `SELECT MIN(last_pulled_sequence) FROM devices WHERE account_id = $1 AND is_active = TRUE`
)

type PostgresDeviceRepository struct {
	q dbtx
}

func NewPostgresDeviceRepository(q dbtx) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{q: q}
}

func (r *PostgresDeviceRepository) Upsert(ctx context.Context, device *models.Device) error {
	err := r.q.QueryRowContext(ctx, upsertDevice,
		device.DeviceID,
		device.AccountID,
		device.DisplayName,
		device.Platform,
		device.AppVersion,
		device.LastSeenAt,
	).Scan(&device.LastSyncSequence, &device.LastPulledSequence, &device.LastSyncAt, &device.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return ErrForeignDevice
	}
	if err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "PostgresDeviceRepository.Upsert").
			Str("device_id", device.DeviceID).
			Msg("failed to upsert device")
		return fmt.Errorf("failed to upsert device: %w", err)
	}

	device.IsActive = true
	return nil
}

func (r *PostgresDeviceRepository) GetByID(ctx context.Context, deviceID string) (*models.Device, error) {
	device, err := scanDevice(r.q.QueryRowContext(ctx, getDevice, deviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return device, nil
}

func (r *PostgresDeviceRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.Device, error) {
	rows, err := r.q.QueryContext(ctx, listAccountDevices, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	devices := make([]*models.Device, 0)
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}
	return devices, nil
}

func (r *PostgresDeviceRepository) Deactivate(ctx context.Context, deviceID string) error {
	return r.exec(ctx, "deactivate", deactivateDevice, deviceID)
}

func (r *PostgresDeviceRepository) UpdateCursor(ctx context.Context, deviceID string, sequence int64, at time.Time) error {
	return r.exec(ctx, "update cursor of", updateDeviceCursor, deviceID, sequence, at)
}

func (r *PostgresDeviceRepository) MarkPulled(ctx context.Context, deviceID string, sequence int64, at time.Time) error {
	return r.exec(ctx, "mark pulled", markDevicePulled, deviceID, sequence, at)
}

func (r *PostgresDeviceRepository) Touch(ctx context.Context, deviceID string, at time.Time) error {
	return r.exec(ctx, "touch", touchDevice, deviceID, at)
}

func (r *PostgresDeviceRepository) exec(ctx context.Context, action, query string, args ...any) error {
	result, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s device: %w", action, err)
	}
	return requireAffected(result)
}

func (r *PostgresDeviceRepository) MinActiveCursor(ctx context.Context, accountID string) (int64, bool, error) {
	var cursor sql.NullInt64
	if err := r.q.QueryRowContext(ctx, minActiveCursor, accountID).Scan(&cursor); err != nil {
		return 0, false, fmt.Errorf("failed to get min device cursor: %w", err)
	}
	return cursor.Int64, cursor.Valid, nil
}

func scanDevice(row rowScanner) (*models.Device, error) {
	var device models.Device
	err := row.Scan(
		&device.DeviceID,
		&device.AccountID,
		&device.DisplayName,
		&device.Platform,
		&device.AppVersion,
		&device.LastSyncSequence,
		&device.LastPulledSequence,
		&device.LastSyncAt,
		&device.LastSeenAt,
		&device.IsActive,
		&device.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &device, nil
}
