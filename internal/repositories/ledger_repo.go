package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prudhvinik1/syncengine/internal/logger"
	"github.com/prudhvinik1/syncengine/internal/models"
)

const (
	entityColumns = `account_id, entity_type, entity_id, current_version, current_snapshot,
	                 last_modified_by, last_modified_at, is_deleted`

	getEntity = `SELECT ` + entityColumns + `
	          FROM versioned_entities
	          WHERE account_id = $1 AND entity_type = $2 AND entity_id = $3`

	listLiveEntities = `SELECT ` + entityColumns + `
	          FROM versioned_entities
	          WHERE account_id = $1 AND is_deleted = FALSE
	          ORDER BY entity_type ASC, entity_id ASC`

	// the WHERE guard keeps current_version from ever moving backwards
	upsertEntity = `INSERT INTO versioned_entities (` + entityColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	          ON CONFLICT (account_id, entity_type, entity_id) DO UPDATE
	          SET current_version = EXCLUDED.current_version,
	              current_snapshot = EXCLUDED.current_snapshot,
	              last_modified_by = EXCLUDED.last_modified_by,
	              last_modified_at = EXCLUDED.last_modified_at,
	              is_deleted = EXCLUDED.is_deleted
	          WHERE versioned_entities.current_version < EXCLUDED.current_version`
)

type PostgresVersionLedger struct {
	q dbtx
}

func NewPostgresVersionLedger(q dbtx) *PostgresVersionLedger {
	return &PostgresVersionLedger{q: q}
}

func (r *PostgresVersionLedger) Get(ctx context.Context, key models.EntityKey) (*models.VersionedEntity, error) {
	row := r.q.QueryRowContext(ctx, getEntity, key.AccountID, key.EntityType, key.EntityID)

	entity, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "PostgresVersionLedger.Get").
			Str("entity_type", key.EntityType).
			Str("entity_id", key.EntityID).
			Msg("failed to get entity")
		return nil, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}
	return entity, nil
}

func (r *PostgresVersionLedger) Upsert(ctx context.Context, key models.EntityKey, newVersion int64, snapshot json.RawMessage, authorDeviceID string, at time.Time) error {
	return r.write(ctx, key, newVersion, snapshot, authorDeviceID, at, false)
}

// MarkDeleted writes a tombstone. The row stays so later version
// comparisons against the entity remain valid.
func (r *PostgresVersionLedger) MarkDeleted(ctx context.Context, key models.EntityKey, newVersion int64, authorDeviceID string, at time.Time) error {
	return r.write(ctx, key, newVersion, nil, authorDeviceID, at, true)
}

func (r *PostgresVersionLedger) write(ctx context.Context, key models.EntityKey, newVersion int64, snapshot json.RawMessage, authorDeviceID string, at time.Time, deleted bool) error {
	result, err := r.q.ExecContext(ctx, upsertEntity,
		key.AccountID,
		key.EntityType,
		key.EntityID,
		newVersion,
		nullableJSON(snapshot),
		authorDeviceID,
		at,
		deleted,
	)
	if err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "PostgresVersionLedger.write").
			Str("entity_type", key.EntityType).
			Str("entity_id", key.EntityID).
			Int64("new_version", newVersion).
			Msg("failed to write entity")
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *PostgresVersionLedger) ListByAccount(ctx context.Context, accountID string) ([]*models.VersionedEntity, error) {
	rows, err := r.q.QueryContext(ctx, listLiveEntities, accountID)
	if err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "PostgresVersionLedger.ListByAccount").
			Str("account_id", accountID).
			Msg("failed to query entities")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	entities := make([]*models.VersionedEntity, 0)
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, err)
		}
		entities = append(entities, entity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, err)
	}
	return entities, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*models.VersionedEntity, error) {
	var (
		entity   models.VersionedEntity
		snapshot []byte
	)
	err := row.Scan(
		&entity.AccountID,
		&entity.EntityType,
		&entity.EntityID,
		&entity.CurrentVersion,
		&snapshot,
		&entity.LastModifiedBy,
		&entity.LastModifiedAt,
		&entity.IsDeleted,
	)
	if err != nil {
		return nil, err
	}
	entity.CurrentSnapshot = rawJSON(snapshot)
	return &entity, nil
}

// nullableJSON turns an empty payload into SQL NULL.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func rawJSON(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}
