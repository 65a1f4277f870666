package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/prudhvinik1/syncengine/internal/logger"
	"github.com/prudhvinik1/syncengine/internal/models"
	"github.com/prudhvinik1/syncengine/internal/observability"
	"github.com/prudhvinik1/syncengine/internal/repositories"
)

// resolveEventPrefix marks log entries written by a conflict resolution.
const resolveEventPrefix = "resolve:"

// ConflictManager records rejected writes and applies their resolutions.
type ConflictManager struct {
	store     repositories.Transactor
	conflicts repositories.ConflictRepository
	clock     Clock
}

// NewConflictManager wires the manager. conflicts serves reads outside the
// account lock; writes go through store.
func NewConflictManager(store repositories.Transactor, conflicts repositories.ConflictRepository, clock Clock) *ConflictManager {
	return &ConflictManager{
		store:     store,
		conflicts: conflicts,
		clock:     clock,
	}
}

// Record stores a conflict for a push event that lost against the current
// ledger state. It must run inside the account transaction that made the
// decision.
func (m *ConflictManager) Record(
	ctx context.Context,
	conflicts repositories.ConflictRepository,
	deviceID string,
	event *models.PushEvent,
	current *models.VersionedEntity,
	at time.Time,
) (*models.Conflict, error) {
	conflict := &models.Conflict{
		ID:                      uuid.NewString(),
		AccountID:               current.AccountID,
		EntityType:              current.EntityType,
		EntityID:                current.EntityID,
		OriginatingEventID:      event.EventID,
		DeviceID:                deviceID,
		ServerVersionAtConflict: current.CurrentVersion,
		LocalPayload:            event.Payload,
		ServerPayload:           current.CurrentSnapshot,
		ConflictingFieldNames:   ConflictingFields(event.Payload, current.CurrentSnapshot),
		CreatedAt:               at,
	}

	if err := conflicts.Create(ctx, conflict); err != nil {
		return nil, fmt.Errorf("failed to record conflict: %w", err)
	}

	logger.FromContext(ctx).Info().
		Str("func", "ConflictManager.Record").
		Str("account_id", conflict.AccountID).
		Str("conflict_id", conflict.ID).
		Str("event_id", event.EventID).
		Int64("base_version", event.BaseVersion).
		Int64("server_version", current.CurrentVersion).
		Msg("conflict recorded")

	return conflict, nil
}

// Resolve applies the chosen strategy as a new write to the entity and
// marks the conflict resolved, atomically.
func (m *ConflictManager) Resolve(ctx context.Context, accountID string, req *models.ResolveConflictRequest) (resp *models.ResolveConflictResponse, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "ConflictManager", "Resolve",
		attribute.String("account.id", accountID),
		attribute.String("conflict.id", req.ConflictID),
		attribute.String("conflict.strategy", string(req.Strategy)),
	)
	defer func() { observability.EndSpan(span, err) }()

	if err := validateResolution(req); err != nil {
		return nil, err
	}

	err = m.store.WithinAccount(ctx, accountID, func(ctx context.Context, repos repositories.Repositories) error {
		var err error
		resp, err = m.resolve(ctx, repos, accountID, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info().
		Str("func", "ConflictManager.Resolve").
		Str("account_id", accountID).
		Str("conflict_id", req.ConflictID).
		Str("strategy", string(req.Strategy)).
		Int64("entity_version", resp.EntityVersion).
		Msg("conflict resolved")

	return resp, nil
}

func validateResolution(req *models.ResolveConflictRequest) error {
	if strings.TrimSpace(req.ConflictID) == "" {
		return fmt.Errorf("%w: conflictId is required", ErrValidation)
	}
	if !req.Strategy.Valid() {
		return fmt.Errorf("%w: unknown strategy %q", ErrValidation, req.Strategy)
	}
	if strings.TrimSpace(req.ResolvingDeviceID) == "" {
		return fmt.Errorf("%w: resolvingDeviceId is required", ErrValidation)
	}
	if req.Strategy.RequiresPayload() && isEmptyPayload(req.ResolvedData) {
		return ErrResolvedPayloadRequired
	}
	if len(req.ResolvedData) > 0 && !json.Valid(req.ResolvedData) {
		return fmt.Errorf("%w: resolvedData is not valid JSON", ErrValidation)
	}
	return nil
}

func (m *ConflictManager) resolve(ctx context.Context, repos repositories.Repositories, accountID string, req *models.ResolveConflictRequest) (*models.ResolveConflictResponse, error) {
	if _, err := authorizeDevice(ctx, repos.Devices, accountID, req.ResolvingDeviceID); err != nil {
		return nil, err
	}

	conflict, err := repos.Conflicts.GetByID(ctx, accountID, req.ConflictID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrConflictNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conflict: %w", err)
	}
	if conflict.IsResolved() {
		return nil, ErrConflictAlreadyResolved
	}

	payload := resolvedPayload(conflict, req)
	key := models.EntityKey{AccountID: accountID, EntityType: conflict.EntityType, EntityID: conflict.EntityID}

	var baseVersion int64
	current, err := repos.Ledger.Get(ctx, key)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	default:
		baseVersion = current.CurrentVersion
	}

	op := models.OperationUpdate
	switch {
	case isEmptyPayload(payload):
		op = models.OperationDelete
		payload = nil
	case current == nil || current.IsDeleted:
		op = models.OperationCreate
	}

	now := m.clock.Now()
	entry := &models.SyncLogEntry{
		EventID:         resolveEventPrefix + conflict.ID,
		AccountID:       accountID,
		DeviceID:        req.ResolvingDeviceID,
		EntityType:      conflict.EntityType,
		EntityID:        conflict.EntityID,
		Operation:       op,
		Payload:         payload,
		BaseVersion:     baseVersion,
		NewVersion:      baseVersion + 1,
		ClientTimestamp: now,
		ServerTimestamp: now,
	}

	if err := repos.Log.Append(ctx, accountID, []*models.SyncLogEntry{entry}); err != nil {
		return nil, fmt.Errorf("failed to append resolution: %w", err)
	}
	if err := applyToLedger(ctx, repos.Ledger, entry); err != nil {
		return nil, err
	}

	strategy := req.Strategy
	resolver := req.ResolvingDeviceID
	conflict.ResolutionStrategy = &strategy
	conflict.ResolvedPayload = payload
	conflict.ResolvedByDevice = &resolver
	conflict.ResolvedAt = &now

	err = repos.Conflicts.MarkResolved(ctx, conflict)
	if errors.Is(err, repositories.ErrAlreadyResolved) {
		return nil, ErrConflictAlreadyResolved
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark conflict resolved: %w", err)
	}

	return &models.ResolveConflictResponse{
		Conflict:      conflict,
		EntityVersion: entry.NewVersion,
		Sequence:      entry.Sequence,
	}, nil
}

// resolvedPayload picks the state the entity ends up with. An explicit
// payload always wins; otherwise local and remote fall back to the sides
// captured when the conflict was recorded.
func resolvedPayload(conflict *models.Conflict, req *models.ResolveConflictRequest) json.RawMessage {
	if !isEmptyPayload(req.ResolvedData) {
		return req.ResolvedData
	}
	switch req.Strategy {
	case models.ResolutionLocal:
		return conflict.LocalPayload
	case models.ResolutionRemote:
		return conflict.ServerPayload
	}
	return nil
}

// ListUnresolved returns the open conflicts of the account, optionally
// restricted to one entity type.
func (m *ConflictManager) ListUnresolved(ctx context.Context, accountID, entityType string) ([]*models.Conflict, error) {
	conflicts, err := m.conflicts.ListUnresolved(ctx, accountID, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	return conflicts, nil
}

func isEmptyPayload(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}

// applyToLedger moves the entity to the state produced by entry.
func applyToLedger(ctx context.Context, ledger repositories.VersionLedger, entry *models.SyncLogEntry) error {
	var err error
	if entry.Operation == models.OperationDelete {
		err = ledger.MarkDeleted(ctx, entry.Key(), entry.NewVersion, entry.DeviceID, entry.ServerTimestamp)
	} else {
		err = ledger.Upsert(ctx, entry.Key(), entry.NewVersion, entry.Payload, entry.DeviceID, entry.ServerTimestamp)
	}
	if err != nil {
		return fmt.Errorf("failed to update ledger: %w", err)
	}
	return nil
}
