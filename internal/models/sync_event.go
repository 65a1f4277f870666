package models

import (
	"encoding/json"
	"time"
)

type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

func (o Operation) Valid() bool {
	switch o {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// SyncLogEntry is one accepted change. Sequence is assigned by the log on
// append and is strictly increasing per account; NewVersion is the entity
// version the change produced.
type SyncLogEntry struct {
	EventID         string          `json:"eventId"`
	AccountID       string          `json:"accountId"`
	DeviceID        string          `json:"deviceId"`
	EntityType      string          `json:"entityType"`
	EntityID        string          `json:"entityId"`
	Operation       Operation       `json:"operation"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	BaseVersion     int64           `json:"baseVersion"`
	NewVersion      int64           `json:"newVersion"`
	Sequence        int64           `json:"sequence"`
	ClientTimestamp time.Time       `json:"clientTimestamp"`
	ServerTimestamp time.Time       `json:"serverTimestamp"`
}

func (e *SyncLogEntry) Key() EntityKey {
	return EntityKey{AccountID: e.AccountID, EntityType: e.EntityType, EntityID: e.EntityID}
}
