package handlers

import (
	"net/http"

	"github.com/prudhvinik1/syncengine/internal/models"
)

func (h *Handler) push(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromRequest(r)
	if err != nil {
		writeError(w, r, "*Handler.push", err)
		return
	}

	var req models.PushRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "*Handler.push", err)
		return
	}

	resp, err := h.services.Push.Push(r.Context(), accountID, &req)
	if err != nil {
		writeError(w, r, "*Handler.push", err)
		return
	}

	writeJSON(w, r, resp, http.StatusOK)
}

func (h *Handler) pull(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromRequest(r)
	if err != nil {
		writeError(w, r, "*Handler.pull", err)
		return
	}

	var req models.PullRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "*Handler.pull", err)
		return
	}

	resp, err := h.services.Pull.Pull(r.Context(), accountID, &req)
	if err != nil {
		writeError(w, r, "*Handler.pull", err)
		return
	}

	writeJSON(w, r, resp, http.StatusOK)
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromRequest(r)
	if err != nil {
		writeError(w, r, "*Handler.snapshot", err)
		return
	}

	resp, err := h.services.Pull.Snapshot(r.Context(), accountID, r.URL.Query().Get("deviceId"))
	if err != nil {
		writeError(w, r, "*Handler.snapshot", err)
		return
	}

	writeJSON(w, r, resp, http.StatusOK)
}
