package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prudhvinik1/syncengine/internal/models"
)

type deviceListResponse struct {
	Devices []models.DeviceStatus `json:"devices"`
}

func (h *Handler) registerDevice(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromRequest(r)
	if err != nil {
		writeError(w, r, "*Handler.registerDevice", err)
		return
	}

	var req models.RegisterDeviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "*Handler.registerDevice", err)
		return
	}

	device, err := h.services.Devices.Register(r.Context(), accountID, &req)
	if err != nil {
		writeError(w, r, "*Handler.registerDevice", err)
		return
	}

	writeJSON(w, r, device, http.StatusOK)
}

func (h *Handler) listDevices(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromRequest(r)
	if err != nil {
		writeError(w, r, "*Handler.listDevices", err)
		return
	}

	devices, err := h.services.Devices.List(r.Context(), accountID)
	if err != nil {
		writeError(w, r, "*Handler.listDevices", err)
		return
	}

	writeJSON(w, r, deviceListResponse{Devices: devices}, http.StatusOK)
}

func (h *Handler) getDevice(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromRequest(r)
	if err != nil {
		writeError(w, r, "*Handler.getDevice", err)
		return
	}

	device, err := h.services.Devices.Get(r.Context(), accountID, chi.URLParam(r, "deviceID"))
	if err != nil {
		writeError(w, r, "*Handler.getDevice", err)
		return
	}

	writeJSON(w, r, device, http.StatusOK)
}

func (h *Handler) deactivateDevice(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromRequest(r)
	if err != nil {
		writeError(w, r, "*Handler.deactivateDevice", err)
		return
	}

	if err := h.services.Devices.Deactivate(r.Context(), accountID, chi.URLParam(r, "deviceID")); err != nil {
		writeError(w, r, "*Handler.deactivateDevice", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) heartbeat(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromRequest(r)
	if err != nil {
		writeError(w, r, "*Handler.heartbeat", err)
		return
	}

	if err := h.services.Devices.Heartbeat(r.Context(), accountID, chi.URLParam(r, "deviceID")); err != nil {
		writeError(w, r, "*Handler.heartbeat", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
