package handlers

import "errors"

// Sentinel errors raised while parsing the "Authorization" header and
// request bodies.
var (
	ErrEmptyAuthorizationHeader   = errors.New("empty `Authorization` header")
	ErrInvalidAuthorizationHeader = errors.New("invalid `Authorization` header")
	ErrEmptyToken                 = errors.New("empty token in `Authorization` header")
	ErrInvalidJSON                = errors.New("invalid JSON was passed")
	ErrNoAccountID                = errors.New("no account ID in request context")
)
