package services

import "errors"

var (
	ErrValidation              = errors.New("invalid request")
	ErrBatchTooLarge           = errors.New("push batch too large")
	ErrDeviceNotFound          = errors.New("device not found")
	ErrForbidden               = errors.New("resource belongs to another account")
	ErrDeviceInactive          = errors.New("device is deactivated")
	ErrConflictNotFound        = errors.New("conflict not found")
	ErrConflictAlreadyResolved = errors.New("conflict already resolved")
	ErrResolvedPayloadRequired = errors.New("resolved data is required for this strategy")

	// ErrCursorExpired is returned when the requested cursor points into the
	// pruned part of the sync log; the device has to bootstrap from a
	// snapshot.
	ErrCursorExpired = errors.New("sync cursor expired")
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailExists        = errors.New("email already exists")
	ErrInvalidToken       = errors.New("invalid token")
)
