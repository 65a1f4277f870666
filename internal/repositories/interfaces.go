package repositories

//go:generate mockgen -source=interfaces.go -destination=../mock/repositories_mock.go -package=mock

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prudhvinik1/syncengine/internal/models"
)

type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	Update(ctx context.Context, account *models.Account) error
	Delete(ctx context.Context, id string) error
}

type DeviceRepository interface {
	Upsert(ctx context.Context, device *models.Device) error
	GetByID(ctx context.Context, deviceID string) (*models.Device, error)
	ListByAccount(ctx context.Context, accountID string) ([]*models.Device, error)
	Deactivate(ctx context.Context, deviceID string) error
	UpdateCursor(ctx context.Context, deviceID string, sequence int64, at time.Time) error
	// MarkPulled moves both the sync cursor and the pulled cursor.
	MarkPulled(ctx context.Context, deviceID string, sequence int64, at time.Time) error
	Touch(ctx context.Context, deviceID string, at time.Time) error
	// MinActiveCursor returns the lowest pulled cursor among the active
	// devices of the account; ok is false when the account has none.
	MinActiveCursor(ctx context.Context, accountID string) (cursor int64, ok bool, err error)
}

// VersionLedger maps an entity key to its current version and snapshot.
// It does not arbitrate conflicts: callers pass a newVersion strictly
// greater than the one they observed.
type VersionLedger interface {
	Get(ctx context.Context, key models.EntityKey) (*models.VersionedEntity, error)
	Upsert(ctx context.Context, key models.EntityKey, newVersion int64, snapshot json.RawMessage, authorDeviceID string, at time.Time) error
	MarkDeleted(ctx context.Context, key models.EntityKey, newVersion int64, authorDeviceID string, at time.Time) error
	ListByAccount(ctx context.Context, accountID string) ([]*models.VersionedEntity, error)
}

// SyncLogRepository is the append-only, per-account ordered change log.
type SyncLogRepository interface {
	// Append assigns consecutive sequences to entries and stores them.
	Append(ctx context.Context, accountID string, entries []*models.SyncLogEntry) error
	ReadSince(ctx context.Context, accountID string, sequence int64, limit int) ([]*models.SyncLogEntry, bool, error)
	MaxSequence(ctx context.Context, accountID string) (int64, error)
	GetByEventIDs(ctx context.Context, accountID string, eventIDs []string) (map[string]*models.SyncLogEntry, error)
	PrunedThrough(ctx context.Context, accountID string) (int64, error)
	PruneThrough(ctx context.Context, accountID string, sequence int64, olderThan time.Time) (int64, error)
	ListAccounts(ctx context.Context) ([]string, error)
}

type ConflictRepository interface {
	Create(ctx context.Context, conflict *models.Conflict) error
	GetByID(ctx context.Context, accountID, id string) (*models.Conflict, error)
	ListUnresolved(ctx context.Context, accountID, entityType string) ([]*models.Conflict, error)
	MarkResolved(ctx context.Context, conflict *models.Conflict) error
}

type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	ListByAccountID(ctx context.Context, accountID string) ([]*models.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteAllForAccount(ctx context.Context, accountID string) error
}

type PresenceRepository interface {
	SetPresence(ctx context.Context, presence *models.Presence) error
	GetPresence(ctx context.Context, deviceID string) (*models.Presence, error)
	DeletePresence(ctx context.Context, deviceID string) error
	GetBulkPresence(ctx context.Context, deviceIDs []string) (map[string]models.Presence, error)
}

// Repositories groups the sync repositories bound to one connection or
// transaction.
type Repositories struct {
	Ledger    VersionLedger
	Log       SyncLogRepository
	Devices   DeviceRepository
	Conflicts ConflictRepository
}

type TxFunc func(ctx context.Context, repos Repositories) error

// Transactor runs fn with repositories bound to a transaction.
// WithinAccount holds the account's exclusive lock and may invoke fn more
// than once when the transaction is retried. ReadSnapshot is read-only and
// lock-free; all reads in fn see one consistent snapshot.
type Transactor interface {
	WithinAccount(ctx context.Context, accountID string, fn TxFunc) error
	ReadSnapshot(ctx context.Context, fn TxFunc) error
}
