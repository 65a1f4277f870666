package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/prudhvinik1/syncengine/internal/logger"
	"github.com/prudhvinik1/syncengine/internal/models"
)

const (
	logColumns = `account_id, sequence, event_id, device_id, entity_type, entity_id, operation,
	              payload, base_version, new_version, client_timestamp, server_timestamp`

	// allocateSequences reserves n sequences and returns the last one
	allocateSequences = `INSERT INTO account_sequences (account_id, last_sequence)
	          VALUES ($1, $2)
	          ON CONFLICT (account_id) DO UPDATE
	          SET last_sequence = account_sequences.last_sequence + EXCLUDED.last_sequence
	          RETURNING last_sequence`

	insertLogEntry = `INSERT INTO sync_log (` + logColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	readLogSince = `SELECT ` + logColumns + `
	          FROM sync_log
	          WHERE account_id = $1 AND sequence > $2
	          ORDER BY sequence ASC
	          LIMIT $3`

	getMaxSequence   = `SELECT last_sequence FROM account_sequences WHERE account_id = $1`
	getPrunedThrough = `SELECT pruned_through FROM account_sequences WHERE account_id = $1`
	listLogAccounts  = `SELECT account_id FROM account_sequences ORDER BY account_id ASC`
	deleteLogEntries = `DELETE FROM sync_log WHERE account_id = $1 AND sequence <= $2 AND server_timestamp < $3`
	advanceWatermark = `UPDATE account_sequences
	          SET pruned_through = GREATEST(pruned_through,
	              COALESCE((SELECT MIN(sequence) - 1 FROM sync_log WHERE account_id = $1), last_sequence))
	          WHERE account_id = $1`

	constraintLogEvent         = "uq_sync_log_event"
	constraintLogEntityVersion = "uq_sync_log_entity_version"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PostgresSyncLogRepository struct {
	q dbtx
}

func NewPostgresSyncLogRepository(q dbtx) *PostgresSyncLogRepository {
	return &PostgresSyncLogRepository{q: q}
}

func (r *PostgresSyncLogRepository) Append(ctx context.Context, accountID string, entries []*models.SyncLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	log := logger.FromContext(ctx)

	var last int64
	err := r.q.QueryRowContext(ctx, allocateSequences, accountID, int64(len(entries))).Scan(&last)
	if err != nil {
		log.Err(err).
			Str("func", "PostgresSyncLogRepository.Append").
			Str("account_id", accountID).
			Int("entries", len(entries)).
			Msg("failed to allocate sequences")
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	first := last - int64(len(entries)) + 1
	for i, entry := range entries {
		entry.AccountID = accountID
		entry.Sequence = first + int64(i)

		_, err := r.q.ExecContext(ctx, insertLogEntry,
			entry.AccountID,
			entry.Sequence,
			entry.EventID,
			entry.DeviceID,
			entry.EntityType,
			entry.EntityID,
			string(entry.Operation),
			nullableJSON(entry.Payload),
			entry.BaseVersion,
			entry.NewVersion,
			entry.ClientTimestamp,
			entry.ServerTimestamp,
		)
		if err != nil {
			if constraint, ok := uniqueViolation(err); ok {
				switch constraint {
				case constraintLogEvent:
					return fmt.Errorf("%w: %s", ErrDuplicateEvent, entry.EventID)
				case constraintLogEntityVersion:
					return fmt.Errorf("%w: %s/%s v%d", ErrVersionTaken, entry.EntityType, entry.EntityID, entry.NewVersion)
				}
			}
			log.Err(err).
				Str("func", "PostgresSyncLogRepository.Append").
				Str("account_id", accountID).
				Str("event_id", entry.EventID).
				Int64("sequence", entry.Sequence).
				Msg("failed to insert log entry")
			return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
		}
	}

	return nil
}

// ReadSince returns up to limit entries with sequence > sequence, in
// sequence order, and whether more entries follow.
func (r *PostgresSyncLogRepository) ReadSince(ctx context.Context, accountID string, sequence int64, limit int) ([]*models.SyncLogEntry, bool, error) {
	rows, err := r.q.QueryContext(ctx, readLogSince, accountID, sequence, limit+1)
	if err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "PostgresSyncLogRepository.ReadSince").
			Str("account_id", accountID).
			Int64("since", sequence).
			Msg("failed to read log")
		return nil, false, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	entries, err := scanLogEntries(rows)
	if err != nil {
		return nil, false, err
	}

	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}
	return entries, hasMore, nil
}

func (r *PostgresSyncLogRepository) MaxSequence(ctx context.Context, accountID string) (int64, error) {
	return r.counter(ctx, getMaxSequence, accountID)
}

// PrunedThrough returns the retention watermark: entries at or below it
// may no longer be in the log.
func (r *PostgresSyncLogRepository) PrunedThrough(ctx context.Context, accountID string) (int64, error) {
	return r.counter(ctx, getPrunedThrough, accountID)
}

func (r *PostgresSyncLogRepository) counter(ctx context.Context, query, accountID string) (int64, error) {
	var value int64
	err := r.q.QueryRowContext(ctx, query, accountID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}
	return value, nil
}

func (r *PostgresSyncLogRepository) GetByEventIDs(ctx context.Context, accountID string, eventIDs []string) (map[string]*models.SyncLogEntry, error) {
	found := make(map[string]*models.SyncLogEntry, len(eventIDs))
	if len(eventIDs) == 0 {
		return found, nil
	}

	query, args, err := psql.Select(logColumns).
		From("sync_log").
		Where(sq.Eq{"account_id": accountID, "event_id": eventIDs}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "PostgresSyncLogRepository.GetByEventIDs").
			Str("account_id", accountID).
			Int("event_ids", len(eventIDs)).
			Msg("failed to look up events")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	entries, err := scanLogEntries(rows)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		found[entry.EventID] = entry
	}
	return found, nil
}

// PruneThrough deletes entries at or below sequence that were written
// before olderThan and moves the watermark up to the first surviving entry.
func (r *PostgresSyncLogRepository) PruneThrough(ctx context.Context, accountID string, sequence int64, olderThan time.Time) (int64, error) {
	result, err := r.q.ExecContext(ctx, deleteLogEntries, accountID, sequence, olderThan)
	if err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "PostgresSyncLogRepository.PruneThrough").
			Str("account_id", accountID).
			Int64("through", sequence).
			Msg("failed to prune log")
		return 0, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	if deleted == 0 {
		return 0, nil
	}

	if _, err := r.q.ExecContext(ctx, advanceWatermark, accountID); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	return deleted, nil
}

func (r *PostgresSyncLogRepository) ListAccounts(ctx context.Context) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, listLogAccounts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	var accounts []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, err)
		}
		accounts = append(accounts, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, err)
	}
	return accounts, nil
}

func scanLogEntries(rows *sql.Rows) ([]*models.SyncLogEntry, error) {
	entries := make([]*models.SyncLogEntry, 0)
	for rows.Next() {
		var (
			entry     models.SyncLogEntry
			operation string
			payload   []byte
		)
		err := rows.Scan(
			&entry.AccountID,
			&entry.Sequence,
			&entry.EventID,
			&entry.DeviceID,
			&entry.EntityType,
			&entry.EntityID,
			&operation,
			&payload,
			&entry.BaseVersion,
			&entry.NewVersion,
			&entry.ClientTimestamp,
			&entry.ServerTimestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, err)
		}
		entry.Operation = models.Operation(operation)
		entry.Payload = rawJSON(payload)
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, err)
	}
	return entries, nil
}
