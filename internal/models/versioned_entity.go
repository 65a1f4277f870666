package models

import (
	"encoding/json"
	"time"
)

// EntityKey identifies one tracked entity inside an account.
type EntityKey struct {
	AccountID  string
	EntityType string
	EntityID   string
}

// VersionedEntity is the ledger row of an entity: its current version and
// the last accepted snapshot. Deleted entities keep their row as a
// tombstone so version comparisons stay valid.
type VersionedEntity struct {
	AccountID       string          `json:"accountId"`
	EntityType      string          `json:"entityType"`
	EntityID        string          `json:"entityId"`
	CurrentVersion  int64           `json:"version"`
	CurrentSnapshot json.RawMessage `json:"data"`
	LastModifiedBy  string          `json:"lastModifiedBy"`
	LastModifiedAt  time.Time       `json:"lastModifiedAt"`
	IsDeleted       bool            `json:"isDeleted"`
}

func (e *VersionedEntity) Key() EntityKey {
	return EntityKey{AccountID: e.AccountID, EntityType: e.EntityType, EntityID: e.EntityID}
}
