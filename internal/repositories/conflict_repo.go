package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/prudhvinik1/syncengine/internal/logger"
	"github.com/prudhvinik1/syncengine/internal/models"
)

const (
	conflictColumns = `id, account_id, entity_type, entity_id, originating_event_id, device_id,
	                   server_version, local_payload, server_payload, conflicting_fields, created_at,
	                   resolution_strategy, resolved_payload, resolved_by_device, resolved_at`

	insertConflict = `INSERT INTO conflicts (id, account_id, entity_type, entity_id, originating_event_id, device_id,
	                   server_version, local_payload, server_payload, conflicting_fields, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	getConflict = `SELECT ` + conflictColumns + ` FROM conflicts WHERE id = $1 AND account_id = $2`

	resolveConflict = `UPDATE conflicts
	          SET resolution_strategy = $3, resolved_payload = $4, resolved_by_device = $5, resolved_at = $6
	          WHERE id = $1 AND account_id = $2 AND resolved_at IS NULL`
)

type PostgresConflictRepository struct {
	q dbtx
}

func NewPostgresConflictRepository(q dbtx) *PostgresConflictRepository {
	return &PostgresConflictRepository{q: q}
}

func (r *PostgresConflictRepository) Create(ctx context.Context, conflict *models.Conflict) error {
	fields := conflict.ConflictingFieldNames
	if fields == nil {
		fields = []string{}
	}
	encodedFields, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncodingJSON, err)
	}

	_, err = r.q.ExecContext(ctx, insertConflict,
		conflict.ID,
		conflict.AccountID,
		conflict.EntityType,
		conflict.EntityID,
		conflict.OriginatingEventID,
		conflict.DeviceID,
		conflict.ServerVersionAtConflict,
		nullableJSON(conflict.LocalPayload),
		nullableJSON(conflict.ServerPayload),
		encodedFields,
		conflict.CreatedAt,
	)
	if err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "PostgresConflictRepository.Create").
			Str("entity_type", conflict.EntityType).
			Str("entity_id", conflict.EntityID).
			Msg("failed to insert conflict")
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	return nil
}

func (r *PostgresConflictRepository) GetByID(ctx context.Context, accountID, id string) (*models.Conflict, error) {
	conflict, err := scanConflict(r.q.QueryRowContext(ctx, getConflict, id, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}
	return conflict, nil
}

// ListUnresolved returns the open conflicts of an account, oldest first.
// An empty entityType lists every type.
func (r *PostgresConflictRepository) ListUnresolved(ctx context.Context, accountID, entityType string) ([]*models.Conflict, error) {
	builder := psql.Select(conflictColumns).
		From("conflicts").
		Where(sq.Eq{"account_id": accountID}).
		Where("resolved_at IS NULL").
		OrderBy("created_at ASC", "id ASC")
	if entityType != "" {
		builder = builder.Where(sq.Eq{"entity_type": entityType})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "PostgresConflictRepository.ListUnresolved").
			Str("account_id", accountID).
			Msg("failed to query conflicts")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	conflicts := make([]*models.Conflict, 0)
	for rows.Next() {
		conflict, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, err)
		}
		conflicts = append(conflicts, conflict)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, err)
	}
	return conflicts, nil
}

// MarkResolved stores the resolution fields. A conflict can be resolved
// once; a second attempt returns ErrAlreadyResolved.
func (r *PostgresConflictRepository) MarkResolved(ctx context.Context, conflict *models.Conflict) error {
	if conflict.ResolutionStrategy == nil || conflict.ResolvedAt == nil {
		return fmt.Errorf("conflict %s has no resolution", conflict.ID)
	}

	result, err := r.q.ExecContext(ctx, resolveConflict,
		conflict.ID,
		conflict.AccountID,
		string(*conflict.ResolutionStrategy),
		nullableJSON(conflict.ResolvedPayload),
		conflict.ResolvedByDevice,
		*conflict.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	if affected == 0 {
		return ErrAlreadyResolved
	}
	return nil
}

func scanConflict(row rowScanner) (*models.Conflict, error) {
	var (
		conflict                    models.Conflict
		localPayload, serverPayload []byte
		fields, resolvedPayload     []byte
		strategy                    sql.NullString
	)
	err := row.Scan(
		&conflict.ID,
		&conflict.AccountID,
		&conflict.EntityType,
		&conflict.EntityID,
		&conflict.OriginatingEventID,
		&conflict.DeviceID,
		&conflict.ServerVersionAtConflict,
		&localPayload,
		&serverPayload,
		&fields,
		&conflict.CreatedAt,
		&strategy,
		&resolvedPayload,
		&conflict.ResolvedByDevice,
		&conflict.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}

	conflict.LocalPayload = rawJSON(localPayload)
	conflict.ServerPayload = rawJSON(serverPayload)
	conflict.ResolvedPayload = rawJSON(resolvedPayload)
	conflict.ConflictingFieldNames = []string{}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &conflict.ConflictingFieldNames); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEncodingJSON, err)
		}
	}
	if strategy.Valid {
		s := models.ResolutionStrategy(strategy.String)
		conflict.ResolutionStrategy = &s
	}
	return &conflict, nil
}
