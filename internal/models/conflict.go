package models

import (
	"encoding/json"
	"time"
)

type ResolutionStrategy string

const (
	ResolutionLocal  ResolutionStrategy = "local"
	ResolutionRemote ResolutionStrategy = "remote"
	ResolutionManual ResolutionStrategy = "manual"
	ResolutionMerge  ResolutionStrategy = "merge"
)

func (s ResolutionStrategy) Valid() bool {
	switch s {
	case ResolutionLocal, ResolutionRemote, ResolutionManual, ResolutionMerge:
		return true
	}
	return false
}

// RequiresPayload reports whether the caller has to supply the resolved
// payload for this strategy.
func (s ResolutionStrategy) RequiresPayload() bool {
	return s == ResolutionManual || s == ResolutionMerge
}

// Conflict is a rejected push item awaiting resolution. It is immutable
// once ResolvedAt is set.
type Conflict struct {
	ID                      string          `json:"id"`
	AccountID               string          `json:"accountId"`
	EntityType              string          `json:"entityType"`
	EntityID                string          `json:"entityId"`
	OriginatingEventID      string          `json:"eventId"`
	DeviceID                string          `json:"deviceId"`
	ServerVersionAtConflict int64           `json:"serverVersion"`
	LocalPayload            json.RawMessage `json:"localData,omitempty"`
	ServerPayload           json.RawMessage `json:"serverData,omitempty"`
	ConflictingFieldNames   []string        `json:"conflictingFields"`
	CreatedAt               time.Time       `json:"createdAt"`

	ResolutionStrategy *ResolutionStrategy `json:"resolutionStrategy,omitempty"`
	ResolvedPayload    json.RawMessage     `json:"resolvedData,omitempty"`
	ResolvedByDevice   *string             `json:"resolvedByDevice,omitempty"`
	ResolvedAt         *time.Time          `json:"resolvedAt,omitempty"`
}

func (c *Conflict) IsResolved() bool {
	return c.ResolvedAt != nil
}
