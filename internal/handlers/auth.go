package handlers

import (
	"net/http"

	"github.com/prudhvinik1/syncengine/internal/services"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "*Handler.register", err)
		return
	}

	account, err := h.services.Auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, "*Handler.register", err)
		return
	}

	writeJSON(w, r, account, http.StatusCreated)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "*Handler.login", err)
		return
	}

	resp, err := h.services.Auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, r, "*Handler.login", err)
		return
	}

	writeJSON(w, r, resp, http.StatusOK)
}

// logout ends the current session, or every session of the account when
// called with ?all=true.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	tokenString, err := getTokenFromAuthHeader(r.Header.Get("Authorization"))
	if err != nil {
		writeJSON(w, r, errorResponse{Error: err.Error()}, http.StatusUnauthorized)
		return
	}

	if r.URL.Query().Get("all") == "true" {
		err = h.services.Auth.LogoutAll(r.Context(), tokenString)
	} else {
		err = h.services.Auth.Logout(r.Context(), tokenString)
	}
	if err != nil {
		writeError(w, r, "*Handler.logout", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
