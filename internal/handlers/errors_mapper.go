package handlers

import (
	"errors"
	"net/http"

	"github.com/prudhvinik1/syncengine/internal/logger"
	"github.com/prudhvinik1/syncengine/internal/repositories"
	"github.com/prudhvinik1/syncengine/internal/services"
)

var errorStatusMap = map[error]int{
	services.ErrValidation:              http.StatusBadRequest,
	services.ErrBatchTooLarge:           http.StatusBadRequest,
	services.ErrResolvedPayloadRequired: http.StatusBadRequest,
	services.ErrDeviceNotFound:          http.StatusNotFound,
	services.ErrConflictNotFound:        http.StatusNotFound,
	services.ErrForbidden:               http.StatusForbidden,
	services.ErrDeviceInactive:          http.StatusForbidden,
	services.ErrConflictAlreadyResolved: http.StatusConflict,
	services.ErrEmailExists:             http.StatusConflict,
	services.ErrCursorExpired:           http.StatusGone,
	services.ErrInvalidCredentials:      http.StatusUnauthorized,
	services.ErrInvalidToken:            http.StatusUnauthorized,

	repositories.ErrNotFound: http.StatusNotFound,

	ErrInvalidJSON: http.StatusBadRequest,
	ErrNoAccountID: http.StatusUnauthorized,
}

func statusFromError(err error) int {
	for target, status := range errorStatusMap {
		if errors.Is(err, target) {
			return status
		}
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError logs err and answers with its mapped status. Internal
// failures are reported without their details.
func writeError(w http.ResponseWriter, r *http.Request, fn string, err error) {
	status := statusFromError(err)

	log := logger.FromRequest(r)
	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).Str("func", fn).Int("status", status).Send()

	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	writeJSON(w, r, errorResponse{Error: message}, status)
}
