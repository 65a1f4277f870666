package services

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/prudhvinik1/syncengine/internal/config"
	"github.com/prudhvinik1/syncengine/internal/logger"
	"github.com/prudhvinik1/syncengine/internal/models"
	"github.com/prudhvinik1/syncengine/internal/observability"
	"github.com/prudhvinik1/syncengine/internal/repositories"
)

// PullCoordinator serves the sync log to devices. Pulls read one
// consistent snapshot without taking the account lock.
type PullCoordinator struct {
	store    repositories.Transactor
	reads    repositories.Repositories
	presence repositories.PresenceRepository
	clock    Clock
	cfg      config.Sync
	metrics  *observability.SyncMetrics
}

func NewPullCoordinator(
	store repositories.Transactor,
	reads repositories.Repositories,
	presence repositories.PresenceRepository,
	clock Clock,
	cfg config.Sync,
	metrics *observability.SyncMetrics,
) *PullCoordinator {
	return &PullCoordinator{
		store:    store,
		reads:    reads,
		presence: presence,
		clock:    clock,
		cfg:      cfg,
		metrics:  metrics,
	}
}

// Pull returns the log entries after req.SinceVersion, oldest first, and
// moves the device cursor to the last one returned.
func (p *PullCoordinator) Pull(ctx context.Context, accountID string, req *models.PullRequest) (resp *models.PullResponse, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "PullCoordinator", "Pull",
		attribute.String("account.id", accountID),
		attribute.String("device.id", req.DeviceID),
		attribute.Int64("pull.since", req.SinceVersion),
	)
	defer func() { observability.EndSpan(span, err) }()

	if strings.TrimSpace(req.DeviceID) == "" {
		return nil, fmt.Errorf("%w: deviceId is required", ErrValidation)
	}
	if req.SinceVersion < 0 {
		return nil, fmt.Errorf("%w: sinceVersion must not be negative", ErrValidation)
	}

	if _, err := authorizeDevice(ctx, p.reads.Devices, accountID, req.DeviceID); err != nil {
		return nil, err
	}

	var (
		entries []*models.SyncLogEntry
		hasMore bool
		latest  int64
	)
	// a prune committing between the watermark check and the read would
	// otherwise leave a silent gap in the page
	err = p.store.ReadSnapshot(ctx, func(ctx context.Context, repos repositories.Repositories) error {
		watermark, err := repos.Log.PrunedThrough(ctx, accountID)
		if err != nil {
			return fmt.Errorf("failed to read retention watermark: %w", err)
		}
		if req.SinceVersion < watermark {
			return fmt.Errorf("%w: entries up to %d were pruned", ErrCursorExpired, watermark)
		}

		entries, hasMore, err = repos.Log.ReadSince(ctx, accountID, req.SinceVersion, p.limit(req.Limit))
		if err != nil {
			return fmt.Errorf("failed to read sync log: %w", err)
		}

		latest, err = repos.Log.MaxSequence(ctx, accountID)
		if err != nil {
			return fmt.Errorf("failed to read latest sequence: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	cursor := req.SinceVersion
	events := make([]models.PullEvent, 0, len(entries))
	for _, e := range entries {
		events = append(events, models.NewPullEvent(e))
		cursor = e.Sequence
	}

	if err := p.reads.Devices.MarkPulled(ctx, req.DeviceID, cursor, p.clock.Now()); err != nil {
		return nil, fmt.Errorf("failed to update device cursor: %w", err)
	}

	touchPresence(ctx, p.presence, accountID, req.DeviceID)
	p.metrics.RecordPull(ctx, len(events))

	logger.FromContext(ctx).Debug().
		Str("func", "PullCoordinator.Pull").
		Str("account_id", accountID).
		Str("device_id", req.DeviceID).
		Int64("since", req.SinceVersion).
		Int("events", len(events)).
		Bool("has_more", hasMore).
		Msg("pull served")

	return &models.PullResponse{
		Events:        events,
		HasMore:       hasMore,
		LatestVersion: latest,
	}, nil
}

func (p *PullCoordinator) limit(requested int) int {
	switch {
	case requested <= 0:
		return p.cfg.DefaultPullLimit
	case requested > p.cfg.MaxPullLimit:
		return p.cfg.MaxPullLimit
	}
	return requested
}

// Snapshot returns every live entity together with the sequence the state
// corresponds to. It runs under the account lock so no push can land
// between the two reads. The device cursor is moved to that sequence.
func (p *PullCoordinator) Snapshot(ctx context.Context, accountID, deviceID string) (resp *models.SnapshotResponse, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "PullCoordinator", "Snapshot",
		attribute.String("account.id", accountID),
		attribute.String("device.id", deviceID),
	)
	defer func() { observability.EndSpan(span, err) }()

	if strings.TrimSpace(deviceID) == "" {
		return nil, fmt.Errorf("%w: deviceId is required", ErrValidation)
	}

	err = p.store.WithinAccount(ctx, accountID, func(ctx context.Context, repos repositories.Repositories) error {
		if _, err := authorizeDevice(ctx, repos.Devices, accountID, deviceID); err != nil {
			return err
		}

		entities, err := repos.Ledger.ListByAccount(ctx, accountID)
		if err != nil {
			return fmt.Errorf("failed to list entities: %w", err)
		}

		latest, err := repos.Log.MaxSequence(ctx, accountID)
		if err != nil {
			return fmt.Errorf("failed to read latest sequence: %w", err)
		}

		if err := repos.Devices.MarkPulled(ctx, deviceID, latest, p.clock.Now()); err != nil {
			return fmt.Errorf("failed to update device cursor: %w", err)
		}

		resp = &models.SnapshotResponse{Entities: entities, LatestVersion: latest}
		return nil
	})
	if err != nil {
		return nil, err
	}

	touchPresence(ctx, p.presence, accountID, deviceID)
	return resp, nil
}
