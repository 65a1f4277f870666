package repositories

import (
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prudhvinik1/syncengine/internal/models"
)

var deviceRowColumns = []string{
	"device_id", "account_id", "display_name", "platform", "app_version",
	"last_sync_sequence", "last_pulled_sequence", "last_sync_at", "last_seen_at", "is_active", "created_at",
}

func TestDeviceRepository_Upsert_Created(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresDeviceRepository(db)
	device := &models.Device{
		DeviceID:    "dev-a",
		AccountID:   "acc-1",
		DisplayName: "Laptop",
		Platform:    "macos",
		AppVersion:  "1.2.0",
		LastSeenAt:  testTime,
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO devices")).
		WithArgs("dev-a", "acc-1", "Laptop", "macos", "1.2.0", testTime).
		WillReturnRows(sqlmock.NewRows([]string{"last_sync_sequence", "last_pulled_sequence", "last_sync_at", "created_at"}).
			AddRow(int64(0), int64(0), nil, testTime))

	err := repo.Upsert(testContext(), device)

	require.NoError(t, err)
	assert.True(t, device.IsActive)
	assert.Nil(t, device.LastSyncAt)
	assert.Equal(t, testTime, device.CreatedAt)
}

func TestDeviceRepository_Upsert_OwnedByAnotherAccount(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresDeviceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO devices")).
		WillReturnRows(sqlmock.NewRows([]string{"last_sync_sequence", "last_pulled_sequence", "last_sync_at", "created_at"}))

	err := repo.Upsert(testContext(), &models.Device{DeviceID: "dev-a", AccountID: "acc-2"})

	assert.ErrorIs(t, err, ErrForeignDevice)
}

func TestDeviceRepository_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresDeviceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM devices WHERE device_id = $1")).
		WithArgs("dev-a").
		WillReturnRows(sqlmock.NewRows(deviceRowColumns).
			AddRow("dev-a", "acc-1", "Laptop", "macos", "", int64(9), int64(4), testTime, testTime, true, testTime))

	device, err := repo.GetByID(testContext(), "dev-a")

	require.NoError(t, err)
	assert.Equal(t, int64(9), device.LastSyncSequence)
	assert.Equal(t, int64(4), device.LastPulledSequence)
	require.NotNil(t, device.LastSyncAt)
	assert.Equal(t, testTime, *device.LastSyncAt)
	assert.True(t, device.IsActive)
}

func TestDeviceRepository_GetByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresDeviceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM devices")).
		WillReturnRows(sqlmock.NewRows(deviceRowColumns))

	_, err := repo.GetByID(testContext(), "missing")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeviceRepository_ListByAccount(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresDeviceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE account_id = $1")).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows(deviceRowColumns).
			AddRow("dev-a", "acc-1", "Laptop", "macos", "", int64(3), int64(3), nil, testTime, true, testTime).
			AddRow("dev-b", "acc-1", "Phone", "ios", "", int64(0), int64(0), nil, testTime, false, testTime))

	devices, err := repo.ListByAccount(testContext(), "acc-1")

	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.False(t, devices[1].IsActive)
}

func TestDeviceRepository_Deactivate_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresDeviceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE devices SET is_active = FALSE")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Deactivate(testContext(), "missing")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeviceRepository_UpdateCursor(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresDeviceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET last_sync_sequence = $2")).
		WithArgs("dev-a", int64(17), testTime).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateCursor(testContext(), "dev-a", 17, testTime))
}

func TestDeviceRepository_MarkPulled(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresDeviceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET last_sync_sequence = $2, last_pulled_sequence = $2")).
		WithArgs("dev-a", int64(21), testTime).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("last_pulled_sequence = $2")).
		WithArgs("missing", int64(21), testTime).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkPulled(testContext(), "dev-a", 21, testTime))
	assert.ErrorIs(t, repo.MarkPulled(testContext(), "missing", 21, testTime), ErrNotFound)
}

func TestDeviceRepository_MinActiveCursor(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresDeviceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT MIN(last_pulled_sequence)")).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(int64(12)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT MIN(last_pulled_sequence)")).
		WithArgs("acc-2").
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(nil))

	cursor, ok, err := repo.MinActiveCursor(testContext(), "acc-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(12), cursor)

	_, ok, err = repo.MinActiveCursor(testContext(), "acc-2")
	require.NoError(t, err)
	assert.False(t, ok)
}
