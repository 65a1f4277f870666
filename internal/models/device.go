package models

import (
	"time"
)

// Device is one registered client of an account. Devices are never hard
// deleted; Deactivate clears IsActive.
//
// LastSyncSequence moves on push and pull. LastPulledSequence moves only on
// pull and snapshot and is what log retention honors.
type Device struct {
	DeviceID           string     `json:"deviceId"`
	AccountID          string     `json:"accountId"`
	DisplayName        string     `json:"deviceName"`
	Platform           string     `json:"platform"`
	AppVersion         string     `json:"appVersion,omitempty"`
	LastSyncSequence   int64      `json:"lastSyncSequence"`
	LastPulledSequence int64      `json:"lastPulledSequence"`
	LastSyncAt         *time.Time `json:"lastSyncAt,omitempty"`
	LastSeenAt         time.Time  `json:"lastSeenAt"`
	IsActive           bool       `json:"isActive"`
	CreatedAt          time.Time  `json:"createdAt"`
}

// DeviceStatus is a device as listed to clients, with its presence.
type DeviceStatus struct {
	*Device
	Online bool `json:"online"`
}
