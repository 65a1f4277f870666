package services

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/prudhvinik1/syncengine/internal/models"
	"github.com/prudhvinik1/syncengine/internal/repositories"
)

// memState mirrors the Postgres tables the sync repositories work on.
type memState struct {
	entities  map[models.EntityKey]models.VersionedEntity
	logs      map[string][]models.SyncLogEntry
	sequences map[string]int64
	pruned    map[string]int64
	devices   map[string]models.Device
	conflicts map[string]models.Conflict
}

func newMemState() *memState {
	return &memState{
		entities:  make(map[models.EntityKey]models.VersionedEntity),
		logs:      make(map[string][]models.SyncLogEntry),
		sequences: make(map[string]int64),
		pruned:    make(map[string]int64),
		devices:   make(map[string]models.Device),
		conflicts: make(map[string]models.Conflict),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.entities {
		c.entities[k] = v
	}
	for k, v := range s.logs {
		c.logs[k] = append([]models.SyncLogEntry(nil), v...)
	}
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	for k, v := range s.pruned {
		c.pruned[k] = v
	}
	for k, v := range s.devices {
		c.devices[k] = v
	}
	for k, v := range s.conflicts {
		c.conflicts[k] = v
	}
	return c
}

// memStore is an in-memory repositories.Transactor. A transaction works on
// a copy of the state that replaces the committed state only when fn
// succeeds. Transactions are serialized by a single mutex.
type memStore struct {
	mu    sync.Mutex
	state *memState

	// replays runs fn that many extra times on throwaway copies before the
	// attempt that commits, like a retried transaction would
	replays int
}

func newMemStore() *memStore {
	return &memStore{state: newMemState()}
}

func (m *memStore) WithinAccount(ctx context.Context, _ string, fn repositories.TxFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := 0; i < m.replays; i++ {
		_ = fn(ctx, m.bind(m.state.clone()))
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.state.clone()
	if err := fn(ctx, m.bind(work)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.state = work
	return nil
}

// ReadSnapshot runs fn against a private copy of the committed state. Writes
// made by fn are discarded.
func (m *memStore) ReadSnapshot(ctx context.Context, fn repositories.TxFunc) error {
	m.mu.Lock()
	view := m.state.clone()
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, m.bind(view))
}

// Repositories returns repositories reading and writing committed state.
func (m *memStore) Repositories() repositories.Repositories {
	return m.bind(nil)
}

func (m *memStore) bind(tx *memState) repositories.Repositories {
	v := memView{store: m, tx: tx}
	return repositories.Repositories{
		Ledger:    &memLedger{v},
		Log:       &memLog{v},
		Devices:   &memDevices{v},
		Conflicts: &memConflicts{v},
	}
}

// snapshot returns a copy of the committed state for assertions.
func (m *memStore) snapshot() *memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

type memView struct {
	store *memStore
	tx    *memState
}

func (v memView) with(fn func(s *memState) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.state)
}

type memLedger struct{ memView }

func (l *memLedger) Get(_ context.Context, key models.EntityKey) (*models.VersionedEntity, error) {
	var out *models.VersionedEntity
	err := l.with(func(s *memState) error {
		e, ok := s.entities[key]
		if !ok {
			return repositories.ErrNotFound
		}
		out = &e
		return nil
	})
	return out, err
}

func (l *memLedger) Upsert(_ context.Context, key models.EntityKey, newVersion int64, snapshot json.RawMessage, author string, at time.Time) error {
	return l.write(key, newVersion, snapshot, author, at, false)
}

func (l *memLedger) MarkDeleted(_ context.Context, key models.EntityKey, newVersion int64, author string, at time.Time) error {
	return l.write(key, newVersion, nil, author, at, true)
}

func (l *memLedger) write(key models.EntityKey, newVersion int64, snapshot json.RawMessage, author string, at time.Time, deleted bool) error {
	return l.with(func(s *memState) error {
		if e, ok := s.entities[key]; ok && e.CurrentVersion >= newVersion {
			return repositories.ErrVersionConflict
		}
		s.entities[key] = models.VersionedEntity{
			AccountID:       key.AccountID,
			EntityType:      key.EntityType,
			EntityID:        key.EntityID,
			CurrentVersion:  newVersion,
			CurrentSnapshot: snapshot,
			LastModifiedBy:  author,
			LastModifiedAt:  at,
			IsDeleted:       deleted,
		}
		return nil
	})
}

func (l *memLedger) ListByAccount(_ context.Context, accountID string) ([]*models.VersionedEntity, error) {
	out := make([]*models.VersionedEntity, 0)
	err := l.with(func(s *memState) error {
		for _, e := range s.entities {
			if e.AccountID == accountID && !e.IsDeleted {
				e := e
				out = append(out, &e)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityType != out[j].EntityType {
			return out[i].EntityType < out[j].EntityType
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out, err
}

type memLog struct{ memView }

func (l *memLog) Append(_ context.Context, accountID string, entries []*models.SyncLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return l.with(func(s *memState) error {
		events := make(map[string]struct{})
		versions := make(map[models.EntityKey]map[int64]struct{})
		for _, e := range s.logs[accountID] {
			events[e.EventID] = struct{}{}
			if versions[e.Key()] == nil {
				versions[e.Key()] = make(map[int64]struct{})
			}
			versions[e.Key()][e.NewVersion] = struct{}{}
		}
		for _, e := range entries {
			if _, dup := events[e.EventID]; dup {
				return repositories.ErrDuplicateEvent
			}
			events[e.EventID] = struct{}{}
			if versions[e.Key()] == nil {
				versions[e.Key()] = make(map[int64]struct{})
			}
			if _, taken := versions[e.Key()][e.NewVersion]; taken {
				return repositories.ErrVersionTaken
			}
			versions[e.Key()][e.NewVersion] = struct{}{}
		}

		first := s.sequences[accountID] + 1
		for i, e := range entries {
			e.Sequence = first + int64(i)
			s.logs[accountID] = append(s.logs[accountID], *e)
		}
		s.sequences[accountID] += int64(len(entries))
		return nil
	})
}

func (l *memLog) ReadSince(_ context.Context, accountID string, sequence int64, limit int) ([]*models.SyncLogEntry, bool, error) {
	out := make([]*models.SyncLogEntry, 0)
	hasMore := false
	err := l.with(func(s *memState) error {
		for _, e := range s.logs[accountID] {
			if e.Sequence <= sequence {
				continue
			}
			if len(out) == limit {
				hasMore = true
				break
			}
			e := e
			out = append(out, &e)
		}
		return nil
	})
	return out, hasMore, err
}

func (l *memLog) MaxSequence(_ context.Context, accountID string) (int64, error) {
	var seq int64
	err := l.with(func(s *memState) error {
		seq = s.sequences[accountID]
		return nil
	})
	return seq, err
}

func (l *memLog) GetByEventIDs(_ context.Context, accountID string, eventIDs []string) (map[string]*models.SyncLogEntry, error) {
	wanted := make(map[string]struct{}, len(eventIDs))
	for _, id := range eventIDs {
		wanted[id] = struct{}{}
	}
	out := make(map[string]*models.SyncLogEntry)
	err := l.with(func(s *memState) error {
		for _, e := range s.logs[accountID] {
			if _, ok := wanted[e.EventID]; ok {
				e := e
				out[e.EventID] = &e
			}
		}
		return nil
	})
	return out, err
}

func (l *memLog) PrunedThrough(_ context.Context, accountID string) (int64, error) {
	var seq int64
	err := l.with(func(s *memState) error {
		seq = s.pruned[accountID]
		return nil
	})
	return seq, err
}

func (l *memLog) PruneThrough(_ context.Context, accountID string, sequence int64, olderThan time.Time) (int64, error) {
	var deleted int64
	err := l.with(func(s *memState) error {
		kept := make([]models.SyncLogEntry, 0, len(s.logs[accountID]))
		for _, e := range s.logs[accountID] {
			if e.Sequence <= sequence && e.ServerTimestamp.Before(olderThan) {
				deleted++
				continue
			}
			kept = append(kept, e)
		}
		s.logs[accountID] = kept
		if deleted == 0 {
			return nil
		}

		watermark := s.sequences[accountID]
		if len(kept) > 0 {
			watermark = kept[0].Sequence - 1
		}
		if watermark > s.pruned[accountID] {
			s.pruned[accountID] = watermark
		}
		return nil
	})
	return deleted, err
}

func (l *memLog) ListAccounts(_ context.Context) ([]string, error) {
	out := make([]string, 0)
	err := l.with(func(s *memState) error {
		for id := range s.sequences {
			out = append(out, id)
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

type memDevices struct{ memView }

func (d *memDevices) Upsert(_ context.Context, device *models.Device) error {
	return d.with(func(s *memState) error {
		existing, ok := s.devices[device.DeviceID]
		if ok && existing.AccountID != device.AccountID {
			return repositories.ErrForeignDevice
		}
		if ok {
			existing.DisplayName = device.DisplayName
			existing.Platform = device.Platform
			existing.AppVersion = device.AppVersion
			existing.LastSeenAt = device.LastSeenAt
			existing.IsActive = true
		} else {
			existing = *device
			existing.IsActive = true
			existing.CreatedAt = device.LastSeenAt
		}
		s.devices[device.DeviceID] = existing

		device.LastSyncSequence = existing.LastSyncSequence
		device.LastPulledSequence = existing.LastPulledSequence
		device.LastSyncAt = existing.LastSyncAt
		device.CreatedAt = existing.CreatedAt
		device.IsActive = true
		return nil
	})
}

func (d *memDevices) GetByID(_ context.Context, deviceID string) (*models.Device, error) {
	var out *models.Device
	err := d.with(func(s *memState) error {
		dev, ok := s.devices[deviceID]
		if !ok {
			return repositories.ErrNotFound
		}
		out = &dev
		return nil
	})
	return out, err
}

func (d *memDevices) ListByAccount(_ context.Context, accountID string) ([]*models.Device, error) {
	out := make([]*models.Device, 0)
	err := d.with(func(s *memState) error {
		for _, dev := range s.devices {
			if dev.AccountID == accountID {
				dev := dev
				out = append(out, &dev)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, err
}

func (d *memDevices) update(deviceID string, fn func(dev *models.Device)) error {
	return d.with(func(s *memState) error {
		dev, ok := s.devices[deviceID]
		if !ok {
			return repositories.ErrNotFound
		}
		fn(&dev)
		s.devices[deviceID] = dev
		return nil
	})
}

func (d *memDevices) Deactivate(_ context.Context, deviceID string) error {
	return d.update(deviceID, func(dev *models.Device) { dev.IsActive = false })
}

func (d *memDevices) UpdateCursor(_ context.Context, deviceID string, sequence int64, at time.Time) error {
	return d.update(deviceID, func(dev *models.Device) {
		dev.LastSyncSequence = sequence
		dev.LastSyncAt = &at
		dev.LastSeenAt = at
	})
}

func (d *memDevices) MarkPulled(_ context.Context, deviceID string, sequence int64, at time.Time) error {
	return d.update(deviceID, func(dev *models.Device) {
		dev.LastSyncSequence = sequence
		dev.LastPulledSequence = sequence
		dev.LastSyncAt = &at
		dev.LastSeenAt = at
	})
}

func (d *memDevices) Touch(_ context.Context, deviceID string, at time.Time) error {
	return d.update(deviceID, func(dev *models.Device) { dev.LastSeenAt = at })
}

func (d *memDevices) MinActiveCursor(_ context.Context, accountID string) (int64, bool, error) {
	var (
		cursor int64
		found  bool
	)
	err := d.with(func(s *memState) error {
		for _, dev := range s.devices {
			if dev.AccountID != accountID || !dev.IsActive {
				continue
			}
			if !found || dev.LastPulledSequence < cursor {
				cursor = dev.LastPulledSequence
				found = true
			}
		}
		return nil
	})
	return cursor, found, err
}

type memConflicts struct{ memView }

func (c *memConflicts) Create(_ context.Context, conflict *models.Conflict) error {
	return c.with(func(s *memState) error {
		s.conflicts[conflict.ID] = *conflict
		return nil
	})
}

func (c *memConflicts) GetByID(_ context.Context, accountID, id string) (*models.Conflict, error) {
	var out *models.Conflict
	err := c.with(func(s *memState) error {
		conflict, ok := s.conflicts[id]
		if !ok || conflict.AccountID != accountID {
			return repositories.ErrNotFound
		}
		out = &conflict
		return nil
	})
	return out, err
}

func (c *memConflicts) ListUnresolved(_ context.Context, accountID, entityType string) ([]*models.Conflict, error) {
	out := make([]*models.Conflict, 0)
	err := c.with(func(s *memState) error {
		for _, conflict := range s.conflicts {
			if conflict.AccountID != accountID || conflict.IsResolved() {
				continue
			}
			if entityType != "" && conflict.EntityType != entityType {
				continue
			}
			conflict := conflict
			out = append(out, &conflict)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].OriginatingEventID < out[j].OriginatingEventID
	})
	return out, err
}

func (c *memConflicts) MarkResolved(_ context.Context, conflict *models.Conflict) error {
	return c.with(func(s *memState) error {
		existing, ok := s.conflicts[conflict.ID]
		if !ok || existing.AccountID != conflict.AccountID || existing.IsResolved() {
			return repositories.ErrAlreadyResolved
		}
		existing.ResolutionStrategy = conflict.ResolutionStrategy
		existing.ResolvedPayload = conflict.ResolvedPayload
		existing.ResolvedByDevice = conflict.ResolvedByDevice
		existing.ResolvedAt = conflict.ResolvedAt
		s.conflicts[conflict.ID] = existing
		return nil
	})
}

// fakeClock is a settable Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
