package models

import (
	"encoding/json"
	"time"
)

type PushEvent struct {
	EventID         string          `json:"eventId"`
	EntityType      string          `json:"entityType"`
	EntityID        string          `json:"entityId"`
	Operation       Operation       `json:"operation"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	BaseVersion     int64           `json:"baseVersion"`
	ClientTimestamp time.Time       `json:"clientTimestamp"`
}

type PushRequest struct {
	DeviceID string      `json:"deviceId"`
	Events   []PushEvent `json:"events"`
}

type ConflictSummary struct {
	EventID       string          `json:"eventId"`
	EntityID      string          `json:"entityId"`
	EntityType    string          `json:"entityType"`
	ServerVersion int64           `json:"serverVersion"`
	ServerData    json.RawMessage `json:"serverData,omitempty"`
	ConflictID    string          `json:"conflictId"`
}

// RejectedEvent is a push item that failed validation and was skipped.
type RejectedEvent struct {
	EventID string `json:"eventId"`
	Reason  string `json:"reason"`
}

type PushResponse struct {
	Success    bool              `json:"success"`
	Accepted   int               `json:"accepted"`
	Conflicts  []ConflictSummary `json:"conflicts"`
	Rejected   []RejectedEvent   `json:"rejected,omitempty"`
	NewVersion int64             `json:"newVersion"`
}

type PullRequest struct {
	DeviceID     string `json:"deviceId"`
	SinceVersion int64  `json:"sinceVersion"`
	Limit        int    `json:"limit,omitempty"`
}

// PullEvent is a log entry as delivered to a device. Version is the log
// sequence, EntityVersion the entity version the change produced.
type PullEvent struct {
	EventID       string          `json:"eventId"`
	EntityType    string          `json:"entityType"`
	EntityID      string          `json:"entityId"`
	Operation     Operation       `json:"operation"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Version       int64           `json:"version"`
	EntityVersion int64           `json:"entityVersion"`
	DeviceID      string          `json:"deviceId"`
	Timestamp     time.Time       `json:"timestamp"`
}

func NewPullEvent(e *SyncLogEntry) PullEvent {
	return PullEvent{
		EventID:       e.EventID,
		EntityType:    e.EntityType,
		EntityID:      e.EntityID,
		Operation:     e.Operation,
		Payload:       e.Payload,
		Version:       e.Sequence,
		EntityVersion: e.NewVersion,
		DeviceID:      e.DeviceID,
		Timestamp:     e.ServerTimestamp,
	}
}

type PullResponse struct {
	Events        []PullEvent `json:"events"`
	HasMore       bool        `json:"hasMore"`
	LatestVersion int64       `json:"latestVersion"`
}

// SnapshotResponse carries every live entity of an account together with
// the log sequence the snapshot is consistent with.
type SnapshotResponse struct {
	Entities      []*VersionedEntity `json:"entities"`
	LatestVersion int64              `json:"latestVersion"`
}

type RegisterDeviceRequest struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	Platform   string `json:"platform"`
	AppVersion string `json:"appVersion,omitempty"`
}

type ResolveConflictRequest struct {
	ConflictID        string             `json:"conflictId"`
	Strategy          ResolutionStrategy `json:"strategy"`
	ResolvedData      json.RawMessage    `json:"resolvedData,omitempty"`
	ResolvingDeviceID string             `json:"resolvingDeviceId"`
}

type ResolveConflictResponse struct {
	Conflict      *Conflict `json:"conflict"`
	EntityVersion int64     `json:"entityVersion"`
	Sequence      int64     `json:"sequence"`
}
