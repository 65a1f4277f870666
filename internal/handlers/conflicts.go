package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prudhvinik1/syncengine/internal/models"
)

type conflictListResponse struct {
	Conflicts []*models.Conflict `json:"conflicts"`
}

func (h *Handler) listConflicts(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromRequest(r)
	if err != nil {
		writeError(w, r, "*Handler.listConflicts", err)
		return
	}

	conflicts, err := h.services.Conflicts.ListUnresolved(r.Context(), accountID, r.URL.Query().Get("entityType"))
	if err != nil {
		writeError(w, r, "*Handler.listConflicts", err)
		return
	}
	if conflicts == nil {
		conflicts = []*models.Conflict{}
	}

	writeJSON(w, r, conflictListResponse{Conflicts: conflicts}, http.StatusOK)
}

func (h *Handler) resolveConflict(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromRequest(r)
	if err != nil {
		writeError(w, r, "*Handler.resolveConflict", err)
		return
	}

	var req models.ResolveConflictRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "*Handler.resolveConflict", err)
		return
	}
	// the path wins over whatever id the body carries
	req.ConflictID = chi.URLParam(r, "conflictID")

	resp, err := h.services.Conflicts.Resolve(r.Context(), accountID, &req)
	if err != nil {
		writeError(w, r, "*Handler.resolveConflict", err)
		return
	}

	writeJSON(w, r, resp, http.StatusOK)
}
