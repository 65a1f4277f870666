package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/prudhvinik1/syncengine/internal/config"
	"github.com/prudhvinik1/syncengine/internal/logger"
	"github.com/prudhvinik1/syncengine/internal/models"
	"github.com/prudhvinik1/syncengine/internal/observability"
	"github.com/prudhvinik1/syncengine/internal/repositories"
)

// PushCoordinator applies batches of client changes. Every batch is
// decided and written inside one transaction holding the account lock.
type PushCoordinator struct {
	store     repositories.Transactor
	conflicts *ConflictManager
	presence  repositories.PresenceRepository
	clock     Clock
	maxBatch  int
	metrics   *observability.SyncMetrics
}

func NewPushCoordinator(
	store repositories.Transactor,
	conflicts *ConflictManager,
	presence repositories.PresenceRepository,
	clock Clock,
	cfg config.Sync,
	metrics *observability.SyncMetrics,
) *PushCoordinator {
	return &PushCoordinator{
		store:     store,
		conflicts: conflicts,
		presence:  presence,
		clock:     clock,
		maxBatch:  cfg.MaxPushBatch,
		metrics:   metrics,
	}
}

func (p *PushCoordinator) Push(ctx context.Context, accountID string, req *models.PushRequest) (resp *models.PushResponse, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "PushCoordinator", "Push",
		attribute.String("account.id", accountID),
		attribute.String("device.id", req.DeviceID),
		attribute.Int("push.events", len(req.Events)),
	)
	defer func() { observability.EndSpan(span, err) }()

	if strings.TrimSpace(req.DeviceID) == "" {
		return nil, fmt.Errorf("%w: deviceId is required", ErrValidation)
	}
	if len(req.Events) > p.maxBatch {
		return nil, fmt.Errorf("%w: %d events, at most %d allowed", ErrBatchTooLarge, len(req.Events), p.maxBatch)
	}

	err = p.store.WithinAccount(ctx, accountID, func(ctx context.Context, repos repositories.Repositories) error {
		// a retried transaction starts over from a fresh batch state
		b := newPushBatch(accountID, req.DeviceID, p.clock.Now())
		var err error
		resp, err = p.apply(ctx, repos, b, req.Events)
		return err
	})
	if err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "PushCoordinator.Push").
			Str("account_id", accountID).
			Str("device_id", req.DeviceID).
			Msg("push failed")
		return nil, err
	}

	touchPresence(ctx, p.presence, accountID, req.DeviceID)
	p.metrics.RecordPush(ctx, resp.Accepted, len(resp.Conflicts), len(resp.Rejected))

	logger.FromContext(ctx).Info().
		Str("func", "PushCoordinator.Push").
		Str("account_id", accountID).
		Str("device_id", req.DeviceID).
		Int("accepted", resp.Accepted).
		Int("conflicts", len(resp.Conflicts)).
		Int("rejected", len(resp.Rejected)).
		Int64("new_version", resp.NewVersion).
		Msg("push applied")

	return resp, nil
}

// pushBatch is the decision state of one attempt at applying a batch.
type pushBatch struct {
	accountID string
	deviceID  string
	now       time.Time

	// overlay holds the entity state produced by earlier items of the batch
	overlay map[models.EntityKey]*models.VersionedEntity
	// seen maps the event ids decided in this batch to whether they were accepted
	seen    map[string]bool
	entries []*models.SyncLogEntry
	resp    *models.PushResponse
}

func newPushBatch(accountID, deviceID string, now time.Time) *pushBatch {
	return &pushBatch{
		accountID: accountID,
		deviceID:  deviceID,
		now:       now,
		overlay:   make(map[models.EntityKey]*models.VersionedEntity),
		seen:      make(map[string]bool),
		resp:      &models.PushResponse{Conflicts: []models.ConflictSummary{}},
	}
}

func (p *PushCoordinator) apply(ctx context.Context, repos repositories.Repositories, b *pushBatch, events []models.PushEvent) (*models.PushResponse, error) {
	device, err := authorizeDevice(ctx, repos.Devices, b.accountID, b.deviceID)
	if err != nil {
		return nil, err
	}

	recorded := map[string]*models.SyncLogEntry{}
	if ids := eventIDs(events); len(ids) > 0 {
		recorded, err = repos.Log.GetByEventIDs(ctx, b.accountID, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to check recorded events: %w", err)
		}
	}

	for i := range events {
		event := &events[i]

		if reason := validatePushEvent(event); reason != "" {
			b.resp.Rejected = append(b.resp.Rejected, models.RejectedEvent{EventID: event.EventID, Reason: reason})
			continue
		}

		if _, ok := recorded[event.EventID]; ok {
			b.resp.Accepted++
			continue
		}
		if accepted, ok := b.seen[event.EventID]; ok {
			// a repeat of a conflicted event is already reported by its first occurrence
			if accepted {
				b.resp.Accepted++
			}
			continue
		}

		accepted, err := p.decide(ctx, repos, b, event)
		if err != nil {
			return nil, err
		}
		b.seen[event.EventID] = accepted
	}

	if len(b.entries) > 0 {
		if err := repos.Log.Append(ctx, b.accountID, b.entries); err != nil {
			return nil, fmt.Errorf("failed to append events: %w", err)
		}
		for _, entry := range b.entries {
			if err := applyToLedger(ctx, repos.Ledger, entry); err != nil {
				return nil, err
			}
		}
	}

	latest, err := repos.Log.MaxSequence(ctx, b.accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest sequence: %w", err)
	}

	cursor := device.LastSyncSequence
	if n := len(b.entries); n > 0 && b.entries[n-1].Sequence > cursor {
		cursor = b.entries[n-1].Sequence
	}
	if err := repos.Devices.UpdateCursor(ctx, b.deviceID, cursor, b.now); err != nil {
		return nil, fmt.Errorf("failed to update device cursor: %w", err)
	}

	b.resp.NewVersion = latest
	b.resp.Success = len(b.resp.Conflicts) == 0
	return b.resp, nil
}

// decide accepts the event into the batch or records a conflict for it. It
// reports whether the event was accepted.
func (p *PushCoordinator) decide(ctx context.Context, repos repositories.Repositories, b *pushBatch, event *models.PushEvent) (bool, error) {
	key := models.EntityKey{AccountID: b.accountID, EntityType: event.EntityType, EntityID: event.EntityID}

	current, ok := b.overlay[key]
	if !ok {
		var err error
		current, err = repos.Ledger.Get(ctx, key)
		if errors.Is(err, repositories.ErrNotFound) {
			current = nil
		} else if err != nil {
			return false, fmt.Errorf("failed to read ledger: %w", err)
		}
	}

	if current != nil && event.BaseVersion < current.CurrentVersion {
		conflict, err := p.conflicts.Record(ctx, repos.Conflicts, b.deviceID, event, current, b.now)
		if err != nil {
			return false, err
		}
		b.resp.Conflicts = append(b.resp.Conflicts, models.ConflictSummary{
			EventID:       event.EventID,
			EntityID:      event.EntityID,
			EntityType:    event.EntityType,
			ServerVersion: current.CurrentVersion,
			ServerData:    current.CurrentSnapshot,
			ConflictID:    conflict.ID,
		})
		return false, nil
	}

	var newVersion int64 = 1
	if current != nil {
		newVersion = current.CurrentVersion + 1
	}

	entry := &models.SyncLogEntry{
		EventID:         event.EventID,
		AccountID:       b.accountID,
		DeviceID:        b.deviceID,
		EntityType:      event.EntityType,
		EntityID:        event.EntityID,
		Operation:       event.Operation,
		Payload:         event.Payload,
		BaseVersion:     event.BaseVersion,
		NewVersion:      newVersion,
		ClientTimestamp: event.ClientTimestamp,
		ServerTimestamp: b.now,
	}
	if entry.Operation == models.OperationDelete {
		entry.Payload = nil
	}
	b.entries = append(b.entries, entry)

	b.overlay[key] = &models.VersionedEntity{
		AccountID:       b.accountID,
		EntityType:      event.EntityType,
		EntityID:        event.EntityID,
		CurrentVersion:  newVersion,
		CurrentSnapshot: entry.Payload,
		LastModifiedBy:  b.deviceID,
		LastModifiedAt:  b.now,
		IsDeleted:       entry.Operation == models.OperationDelete,
	}
	b.resp.Accepted++
	return true, nil
}

// validatePushEvent returns why the event cannot be applied, or "".
func validatePushEvent(event *models.PushEvent) string {
	switch {
	case strings.TrimSpace(event.EventID) == "":
		return "eventId is required"
	case strings.HasPrefix(event.EventID, resolveEventPrefix):
		return fmt.Sprintf("eventId prefix %q is reserved", resolveEventPrefix)
	case strings.TrimSpace(event.EntityType) == "":
		return "entityType is required"
	case strings.TrimSpace(event.EntityID) == "":
		return "entityId is required"
	case !event.Operation.Valid():
		return fmt.Sprintf("unknown operation %q", event.Operation)
	case event.BaseVersion < 0:
		return "baseVersion must not be negative"
	case len(event.Payload) > 0 && !json.Valid(event.Payload):
		return "payload is not valid JSON"
	}
	return ""
}

func eventIDs(events []models.PushEvent) []string {
	ids := make([]string, 0, len(events))
	for _, e := range events {
		if e.EventID != "" {
			ids = append(ids, e.EventID)
		}
	}
	return ids
}
