package handlers

import (
	"log/slog"
	"net/http"

	"github.com/kozaktomas/attendance-kiosk/internal/camera"
)

// CameraHandler handles the camera run state.
type CameraHandler struct {
	manager *camera.Manager
}

// NewCameraHandler creates a new camera handler
func NewCameraHandler(manager *camera.Manager) *CameraHandler {
	return &CameraHandler{manager: manager}
}

// ToggleRequest turns the dashboard feed on or off and selects the camera.
type ToggleRequest struct {
	Status      bool `json:"status"`
	CameraIndex int  `json:"camera_index"`
}

// ToggleResponse reports the resulting run state.
type ToggleResponse struct {
	Status      string `json:"status"`
	Running     bool   `json:"running"`
	CameraIndex int    `json:"camera_index"`
}

// Toggle handles POST /api/toggle_camera. The camera is switched only when
// the requested index differs from the active one.
func (h *CameraHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.CameraIndex < 0 {
		respondError(w, http.StatusBadRequest, "camera_index must not be negative")
		return
	}

	state := h.manager.State()
	if req.CameraIndex != state.ActiveIndex() {
		h.manager.Switch(req.CameraIndex)
	}
	state.SetStreaming(req.Status)
	slog.Info("camera toggled", "running", req.Status, "camera_index", state.ActiveIndex())

	respondJSON(w, http.StatusOK, ToggleResponse{
		Status:      "success",
		Running:     state.StreamingEnabled(),
		CameraIndex: state.ActiveIndex(),
	})
}

// Status handles GET /api/camera.
func (h *CameraHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.manager.Status())
}
