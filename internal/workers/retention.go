package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prudhvinik1/syncengine/internal/config"
	"github.com/prudhvinik1/syncengine/internal/logger"
	"github.com/prudhvinik1/syncengine/internal/repositories"
	"github.com/prudhvinik1/syncengine/internal/services"
)

// RetentionWorker periodically prunes sync log entries that every active
// device of an account has already pulled and that are older than the
// configured max age. Pruned history is no longer available to Pull; a
// device whose cursor falls behind the watermark has to bootstrap from a
// snapshot.
type RetentionWorker struct {
	store    repositories.Transactor
	accounts repositories.SyncLogRepository
	clock    services.Clock
	cfg      config.Retention
	logger   *logger.Logger
}

func NewRetentionWorker(
	store repositories.Transactor,
	accounts repositories.SyncLogRepository,
	clock services.Clock,
	cfg config.Retention,
	logger *logger.Logger,
) *RetentionWorker {
	return &RetentionWorker{
		store:    store,
		accounts: accounts,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

func (w *RetentionWorker) Run(ctx context.Context) error {
	if w.cfg.Interval <= 0 {
		w.logger.Info().Msg("log retention disabled")
		return nil
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.logger.Info().
		Dur("interval", w.cfg.Interval).
		Dur("max_age", w.cfg.MaxAge).
		Msg("log retention started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			deleted, err := w.RunOnce(ctx)
			if err != nil {
				w.logger.Err(err).Int64("deleted", deleted).Msg("log retention pass failed")
				continue
			}
			w.logger.Info().Int64("deleted", deleted).Msg("log retention pass finished")
		}
	}
}

// RunOnce prunes every account once and returns the number of deleted
// entries. A failing account does not stop the pass.
func (w *RetentionWorker) RunOnce(ctx context.Context) (int64, error) {
	accountIDs, err := w.accounts.ListAccounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list accounts: %w", err)
	}

	olderThan := w.clock.Now().Add(-w.cfg.MaxAge)

	var (
		total int64
		errs  []error
	)
	for _, accountID := range accountIDs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		deleted, err := w.pruneAccount(ctx, accountID, olderThan)
		if err != nil {
			errs = append(errs, fmt.Errorf("account %s: %w", accountID, err))
			continue
		}
		total += deleted
	}
	return total, errors.Join(errs...)
}

func (w *RetentionWorker) pruneAccount(ctx context.Context, accountID string, olderThan time.Time) (int64, error) {
	var deleted int64
	err := w.store.WithinAccount(ctx, accountID, func(ctx context.Context, repos repositories.Repositories) error {
		deleted = 0

		through, ok, err := repos.Devices.MinActiveCursor(ctx, accountID)
		if err != nil {
			return fmt.Errorf("failed to read device cursors: %w", err)
		}
		if !ok {
			// no active device is waiting for history
			through, err = repos.Log.MaxSequence(ctx, accountID)
			if err != nil {
				return fmt.Errorf("failed to read max sequence: %w", err)
			}
		}
		if through <= 0 {
			return nil
		}

		deleted, err = repos.Log.PruneThrough(ctx, accountID, through, olderThan)
		if err != nil {
			return fmt.Errorf("failed to prune log: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		w.logger.Debug().
			Str("account_id", accountID).
			Int64("deleted", deleted).
			Msg("pruned sync log")
	}
	return deleted, nil
}
