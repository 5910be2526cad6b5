package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hemogrid/internal/donor/models"
	id "hemogrid/pkg/domain"
	dErrors "hemogrid/pkg/domain-errors"
	"hemogrid/pkg/platform/httputil"
	request "hemogrid/pkg/platform/middleware/request"
	"hemogrid/pkg/requestcontext"
)

// Service defines the donor directory operations exposed over HTTP.
type Service interface {
	Get(ctx context.Context, userID id.UserID) (*models.Donor, error)
	SetAvailability(ctx context.Context, userID id.UserID, availability string) (*models.Donor, error)
	ListAvailable(ctx context.Context, bloodGroup string) ([]*models.Donor, error)
}

// Handler serves donor directory endpoints. Routes expect RequireAuth upstream.
type Handler struct {
	donors Service
	logger *slog.Logger
}

func New(donors Service, logger *slog.Logger) *Handler {
	return &Handler{donors: donors, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/donors", h.handleListAvailable)
	r.Get("/me", h.handleGetMe)
	r.Patch("/me/availability", h.handleSetAvailability)
}

type availabilityRequest struct {
	AvailabilityStatus string `json:"availability_status"`
}

// donorResponse hides the email from other users.
type donorResponse struct {
	ID                 string `json:"id"`
	FullName           string `json:"full_name"`
	BloodGroup         string `json:"blood_group,omitempty"`
	AvailabilityStatus string `json:"availability_status"`
	IsVerified         bool   `json:"is_verified"`
}

func toDonorResponse(d *models.Donor) donorResponse {
	return donorResponse{
		ID:                 d.ID.String(),
		FullName:           d.FullName,
		BloodGroup:         string(d.BloodGroup),
		AvailabilityStatus: string(d.Availability),
		IsVerified:         d.IsVerified,
	}
}

func (h *Handler) handleListAvailable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	donors, err := h.donors.ListAvailable(ctx, r.URL.Query().Get("blood_group"))
	if err != nil {
		h.writeError(ctx, w, "failed to list donors", err)
		return
	}
	out := make([]donorResponse, 0, len(donors))
	for _, d := range donors {
		out = append(out, toDonorResponse(d))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d, err := h.donors.Get(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.writeError(ctx, w, "failed to load profile", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) handleSetAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req availabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	d, err := h.donors.SetAvailability(ctx, requestcontext.UserID(ctx), req.AvailabilityStatus)
	if err != nil {
		h.writeError(ctx, w, "failed to update availability", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDonorResponse(d))
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "error", err, "request_id", request.GetRequestID(ctx))
	} else {
		h.logger.WarnContext(ctx, msg, "error", err, "request_id", request.GetRequestID(ctx))
	}
	httputil.WriteError(w, err)
}
