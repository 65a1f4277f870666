package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prudhvinik1/syncengine/internal/config"
	"github.com/prudhvinik1/syncengine/internal/models"
)

const (
	testAccount  = "acc-1"
	otherAccount = "acc-2"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var testSyncConfig = config.Sync{MaxPushBatch: 500, DefaultPullLimit: 100, MaxPullLimit: 1000}

// harness wires the coordinators against one in-memory store.
type harness struct {
	store     *memStore
	clock     *fakeClock
	push      *PushCoordinator
	pull      *PullCoordinator
	conflicts *ConflictManager
	devices   *DeviceRegistry
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := newMemStore()
	clock := newFakeClock(testNow)
	reads := store.Repositories()
	conflicts := NewConflictManager(store, reads.Conflicts, clock)

	return &harness{
		store:     store,
		clock:     clock,
		push:      NewPushCoordinator(store, conflicts, nil, clock, testSyncConfig, nil),
		pull:      NewPullCoordinator(store, reads, nil, clock, testSyncConfig, nil),
		conflicts: conflicts,
		devices:   NewDeviceRegistry(reads.Devices, nil, clock),
	}
}

func (h *harness) register(t *testing.T, accountID, deviceID string) {
	t.Helper()
	_, err := h.devices.Register(context.Background(), accountID, &models.RegisterDeviceRequest{
		DeviceID:   deviceID,
		DeviceName: deviceID,
		Platform:   "ios",
	})
	require.NoError(t, err)
}

func (h *harness) mustPush(t *testing.T, accountID, deviceID string, events ...models.PushEvent) *models.PushResponse {
	t.Helper()
	resp, err := h.push.Push(context.Background(), accountID, &models.PushRequest{DeviceID: deviceID, Events: events})
	require.NoError(t, err)
	return resp
}

func (h *harness) mustPull(t *testing.T, accountID, deviceID string, since int64, limit int) *models.PullResponse {
	t.Helper()
	resp, err := h.pull.Pull(context.Background(), accountID, &models.PullRequest{DeviceID: deviceID, SinceVersion: since, Limit: limit})
	require.NoError(t, err)
	return resp
}

func (h *harness) entity(t *testing.T, accountID, entityType, entityID string) models.VersionedEntity {
	t.Helper()
	key := models.EntityKey{AccountID: accountID, EntityType: entityType, EntityID: entityID}
	e, ok := h.store.snapshot().entities[key]
	require.True(t, ok, "entity %v not in ledger", key)
	return e
}

func taskEvent(eventID, entityID string, op models.Operation, base int64, payload string) models.PushEvent {
	var raw json.RawMessage
	if payload != "" {
		raw = json.RawMessage(payload)
	}
	return models.PushEvent{
		EventID:         eventID,
		EntityType:      "task",
		EntityID:        entityID,
		Operation:       op,
		Payload:         raw,
		BaseVersion:     base,
		ClientTimestamp: testNow.Add(-time.Minute),
	}
}
