package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/prudhvinik1/syncengine/internal/mock"
	"github.com/prudhvinik1/syncengine/internal/models"
	"github.com/prudhvinik1/syncengine/internal/repositories"
)

func newMockedRegistry(t *testing.T) (*DeviceRegistry, *mock.MockDeviceRepository, *mock.MockPresenceRepository) {
	ctrl := gomock.NewController(t)
	devices := mock.NewMockDeviceRepository(ctrl)
	presence := mock.NewMockPresenceRepository(ctrl)
	return NewDeviceRegistry(devices, presence, newFakeClock(testNow)), devices, presence
}

func TestDeviceRegistry_Register(t *testing.T) {
	registry, devices, presence := newMockedRegistry(t)

	devices.EXPECT().Upsert(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, d *models.Device) error {
			assert.Equal(t, "phone", d.DeviceID)
			assert.Equal(t, testAccount, d.AccountID)
			assert.Equal(t, "My Phone", d.DisplayName)
			assert.Equal(t, "android", d.Platform)
			assert.Equal(t, testNow, d.LastSeenAt)
			d.IsActive = true
			d.CreatedAt = testNow
			return nil
		})
	presence.EXPECT().SetPresence(gomock.Any(), &models.Presence{
		AccountID: testAccount,
		DeviceID:  "phone",
		Status:    string(models.StatusOnline),
	}).Return(nil)

	device, err := registry.Register(context.Background(), testAccount, &models.RegisterDeviceRequest{
		DeviceID:   "phone",
		DeviceName: "My Phone",
		Platform:   "android",
		AppVersion: "1.4.0",
	})

	require.NoError(t, err)
	assert.True(t, device.IsActive)
	assert.Equal(t, "1.4.0", device.AppVersion)
}

func TestDeviceRegistry_RegisterValidation(t *testing.T) {
	tests := []struct {
		name string
		req  models.RegisterDeviceRequest
	}{
		{name: "missing device id", req: models.RegisterDeviceRequest{DeviceName: "n", Platform: "ios"}},
		{name: "blank device name", req: models.RegisterDeviceRequest{DeviceID: "d", DeviceName: "  ", Platform: "ios"}},
		{name: "missing platform", req: models.RegisterDeviceRequest{DeviceID: "d", DeviceName: "n"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry, _, _ := newMockedRegistry(t)
			_, err := registry.Register(context.Background(), testAccount, &tt.req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestDeviceRegistry_RegisterForeignDevice(t *testing.T) {
	registry, devices, _ := newMockedRegistry(t)
	devices.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(repositories.ErrForeignDevice)

	_, err := registry.Register(context.Background(), testAccount, &models.RegisterDeviceRequest{
		DeviceID: "taken", DeviceName: "n", Platform: "ios",
	})

	assert.ErrorIs(t, err, ErrForbidden)
}

func TestDeviceRegistry_RegisterSurvivesPresenceFailure(t *testing.T) {
	registry, devices, presence := newMockedRegistry(t)
	devices.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)
	presence.EXPECT().SetPresence(gomock.Any(), gomock.Any()).Return(errors.New("redis: connection refused"))

	_, err := registry.Register(context.Background(), testAccount, &models.RegisterDeviceRequest{
		DeviceID: "d1", DeviceName: "n", Platform: "ios",
	})

	assert.NoError(t, err)
}

func TestDeviceRegistry_Deactivate(t *testing.T) {
	registry, devices, presence := newMockedRegistry(t)

	gomock.InOrder(
		devices.EXPECT().GetByID(gomock.Any(), "d1").
			Return(&models.Device{DeviceID: "d1", AccountID: testAccount, IsActive: true}, nil),
		devices.EXPECT().Deactivate(gomock.Any(), "d1").Return(nil),
		presence.EXPECT().DeletePresence(gomock.Any(), "d1").Return(nil),
	)

	require.NoError(t, registry.Deactivate(context.Background(), testAccount, "d1"))
}

func TestDeviceRegistry_DeactivateChecksOwnership(t *testing.T) {
	registry, devices, _ := newMockedRegistry(t)

	devices.EXPECT().GetByID(gomock.Any(), "d1").
		Return(&models.Device{DeviceID: "d1", AccountID: otherAccount, IsActive: true}, nil)
	devices.EXPECT().GetByID(gomock.Any(), "ghost").Return(nil, repositories.ErrNotFound)

	assert.ErrorIs(t, registry.Deactivate(context.Background(), testAccount, "d1"), ErrForbidden)
	assert.ErrorIs(t, registry.Deactivate(context.Background(), testAccount, "ghost"), ErrDeviceNotFound)
}

func TestDeviceRegistry_List(t *testing.T) {
	registry, devices, presence := newMockedRegistry(t)

	devices.EXPECT().ListByAccount(gomock.Any(), testAccount).Return([]*models.Device{
		{DeviceID: "d1", AccountID: testAccount, IsActive: true},
		{DeviceID: "d2", AccountID: testAccount, IsActive: true},
	}, nil)
	presence.EXPECT().GetBulkPresence(gomock.Any(), []string{"d1", "d2"}).Return(map[string]models.Presence{
		"d2": {DeviceID: "d2", Status: string(models.StatusOnline)},
	}, nil)

	statuses, err := registry.List(context.Background(), testAccount)

	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.False(t, statuses[0].Online)
	assert.True(t, statuses[1].Online)
	assert.Equal(t, "d2", statuses[1].DeviceID)
}

func TestDeviceRegistry_ListWithoutPresence(t *testing.T) {
	registry, devices, presence := newMockedRegistry(t)

	devices.EXPECT().ListByAccount(gomock.Any(), testAccount).Return([]*models.Device{
		{DeviceID: "d1", AccountID: testAccount, IsActive: true},
	}, nil)
	presence.EXPECT().GetBulkPresence(gomock.Any(), gomock.Any()).Return(nil, errors.New("redis down"))

	statuses, err := registry.List(context.Background(), testAccount)

	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.False(t, statuses[0].Online)
}

func TestDeviceRegistry_ListEmptyAccount(t *testing.T) {
	registry, devices, _ := newMockedRegistry(t)
	devices.EXPECT().ListByAccount(gomock.Any(), testAccount).Return(nil, nil)

	statuses, err := registry.List(context.Background(), testAccount)

	require.NoError(t, err)
	assert.Empty(t, statuses)
	assert.NotNil(t, statuses)
}

func TestDeviceRegistry_Heartbeat(t *testing.T) {
	registry, devices, presence := newMockedRegistry(t)

	devices.EXPECT().GetByID(gomock.Any(), "d1").
		Return(&models.Device{DeviceID: "d1", AccountID: testAccount, IsActive: true}, nil)
	devices.EXPECT().Touch(gomock.Any(), "d1", testNow).Return(nil)
	presence.EXPECT().SetPresence(gomock.Any(), gomock.Any()).Return(nil)

	require.NoError(t, registry.Heartbeat(context.Background(), testAccount, "d1"))
}

func TestDeviceRegistry_HeartbeatFromInactiveDevice(t *testing.T) {
	registry, devices, _ := newMockedRegistry(t)

	devices.EXPECT().GetByID(gomock.Any(), "d1").
		Return(&models.Device{DeviceID: "d1", AccountID: testAccount, IsActive: false}, nil)

	assert.ErrorIs(t, registry.Heartbeat(context.Background(), testAccount, "d1"), ErrDeviceInactive)
}
