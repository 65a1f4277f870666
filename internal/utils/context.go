// Package utils holds small helpers shared by the HTTP layer and services:
// context keys, JSON responses and password hashing.
package utils

import "context"

// contextKey keeps our context values from colliding with other packages.
type contextKey string

func (c contextKey) String() string {
	return string(c)
}

var (
	AccountIDCtxKey = contextKey("accountID")
	SessionIDCtxKey = contextKey("sessionID")
)

// GetAccountIDFromContext returns the authenticated account id placed in the
// context by the auth middleware.
func GetAccountIDFromContext(ctx context.Context) (string, bool) {
	accountID, ok := ctx.Value(AccountIDCtxKey).(string)
	return accountID, ok && accountID != ""
}

func GetSessionIDFromContext(ctx context.Context) (string, bool) {
	sessionID, ok := ctx.Value(SessionIDCtxKey).(string)
	return sessionID, ok && sessionID != ""
}
