package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prudhvinik1/syncengine/internal/logger"
	"github.com/prudhvinik1/syncengine/internal/utils"
)

const maxBodyBytes = 8 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, r *http.Request, data any, status int) {
	if _, err := utils.WriteJSON(w, data, status); err != nil {
		logger.FromRequest(r).Err(err).Str("func", "writeJSON").Msg("failed to write response")
	}
}

func accountIDFromRequest(r *http.Request) (string, error) {
	accountID, ok := utils.GetAccountIDFromContext(r.Context())
	if !ok {
		return "", ErrNoAccountID
	}
	return accountID, nil
}
