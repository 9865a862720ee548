package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/kozaktomas/attendance-kiosk/internal/enrollment"
)

// Enroller enrolls a person from the live camera.
type Enroller interface {
	Enroll(ctx context.Context, req enrollment.Request) enrollment.Response
}

// RegisterHandler handles enrollment requests.
type RegisterHandler struct {
	enroller Enroller
}

// NewRegisterHandler creates a new register handler
func NewRegisterHandler(enroller Enroller) *RegisterHandler {
	return &RegisterHandler{enroller: enroller}
}

// Register handles POST /api/register. Outcomes are always reported as
// {success, message} with status 200.
func (h *RegisterHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req enrollment.Request
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	resp := h.enroller.Enroll(r.Context(), req)
	if resp.Success {
		slog.Info("person registered", "person_id", sanitizeForLog(req.PersonID))
	} else {
		slog.Info("registration rejected", "person_id", sanitizeForLog(req.PersonID), "reason", resp.Message)
	}
	respondJSON(w, http.StatusOK, resp)
}
