package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"hemogrid/internal/bloodrequest/models"
	id "hemogrid/pkg/domain"
	dErrors "hemogrid/pkg/domain-errors"
	"hemogrid/pkg/platform/httputil"
	request "hemogrid/pkg/platform/middleware/request"
)

// Service is the request lifecycle surface served over HTTP.
type Service interface {
	Create(ctx context.Context, attrs models.NewRequest) (*models.BloodRequest, error)
	Get(ctx context.Context, requestID id.RequestID) (*models.BloodRequest, error)
	ListActive(ctx context.Context, in models.FilterInput) ([]*models.BloodRequest, error)
	ListMine(ctx context.Context) ([]*models.BloodRequest, error)
	ListMyDonations(ctx context.Context) ([]*models.Donation, error)
	Accept(ctx context.Context, requestID id.RequestID) (*models.DonationHistory, error)
	Complete(ctx context.Context, requestID id.RequestID) (*models.BloodRequest, error)
	Cancel(ctx context.Context, requestID id.RequestID) (*models.BloodRequest, error)
	UpdateStatus(ctx context.Context, requestID id.RequestID, status string) (*models.BloodRequest, error)
	GetContact(ctx context.Context, requestID id.RequestID) (models.Contact, error)
}

// Handler serves blood request endpoints. Routes expect RequireAuth upstream;
// the actor is read from the request context by the service.
type Handler struct {
	requests Service
	logger   *slog.Logger
}

func New(requests Service, logger *slog.Logger) *Handler {
	return &Handler{requests: requests, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/requests", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleListActive)
		r.Get("/mine", h.handleListMine)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Post("/accept", h.handleAccept)
			r.Post("/complete", h.handleComplete)
			r.Post("/cancel", h.handleCancel)
			r.Patch("/status", h.handleUpdateStatus)
			r.Get("/contact", h.handleGetContact)
		})
	})
	r.Get("/donations/mine", h.handleListMyDonations)
}

type createRequest struct {
	BloodGroup  string     `json:"blood_group" validate:"required"`
	Quantity    int        `json:"quantity" validate:"required,gt=0,lte=50"`
	Location    string     `json:"location" validate:"required,max=255"`
	ContactInfo string     `json:"contact_info" validate:"required,max=255"`
	Details     string     `json:"details" validate:"max=2000"`
	Urgency     string     `json:"urgency" validate:"omitempty,oneof=low medium high"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

func (c createRequest) toModel() models.NewRequest {
	return models.NewRequest{
		BloodGroup:  c.BloodGroup,
		Quantity:    c.Quantity,
		Location:    c.Location,
		ContactInfo: c.ContactInfo,
		Details:     c.Details,
		Urgency:     c.Urgency,
		ExpiresAt:   c.ExpiresAt,
	}
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	created, err := h.requests.Create(ctx, req.toModel())
	if err != nil {
		h.writeError(ctx, w, "failed to create blood request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleListActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"), "limit")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	offset, err := queryInt(q.Get("offset"), "offset")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	list, err := h.requests.ListActive(ctx, models.FilterInput{
		BloodGroup: q.Get("blood_group"),
		Urgency:    q.Get("urgency"),
		Search:     q.Get("search"),
		Ordering:   q.Get("ordering"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		h.writeError(ctx, w, "failed to list blood requests", err)
		return
	}
	writeList(w, list)
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.requests.ListMine(ctx)
	if err != nil {
		h.writeError(ctx, w, "failed to list own blood requests", err)
		return
	}
	writeList(w, list)
}

func (h *Handler) handleListMyDonations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.requests.ListMyDonations(ctx)
	if err != nil {
		h.writeError(ctx, w, "failed to list donations", err)
		return
	}
	if list == nil {
		list = []*models.Donation{}
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, ok := h.requestID(w, r)
	if !ok {
		return
	}
	req, err := h.requests.Get(ctx, requestID)
	if err != nil {
		h.writeError(ctx, w, "failed to load blood request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, ok := h.requestID(w, r)
	if !ok {
		return
	}
	donation, err := h.requests.Accept(ctx, requestID)
	if err != nil {
		h.writeError(ctx, w, "failed to accept blood request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, donation)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "failed to complete blood request", h.requests.Complete)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "failed to cancel blood request", h.requests.Cancel)
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body statusRequest
	if err := httputil.DecodeJSON(w, r, &body); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.transition(w, r, "failed to update blood request status",
		func(ctx context.Context, requestID id.RequestID) (*models.BloodRequest, error) {
			return h.requests.UpdateStatus(ctx, requestID, body.Status)
		})
}

func (h *Handler) handleGetContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, ok := h.requestID(w, r)
	if !ok {
		return
	}
	contact, err := h.requests.GetContact(ctx, requestID)
	if err != nil {
		h.writeError(ctx, w, "failed to load contact details", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, contact)
}

func (h *Handler) transition(
	w http.ResponseWriter,
	r *http.Request,
	msg string,
	fn func(ctx context.Context, requestID id.RequestID) (*models.BloodRequest, error),
) {
	ctx := r.Context()
	requestID, ok := h.requestID(w, r)
	if !ok {
		return
	}
	req, err := fn(ctx, requestID)
	if err != nil {
		h.writeError(ctx, w, msg, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) requestID(w http.ResponseWriter, r *http.Request) (id.RequestID, bool) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.RequestID{}, false
	}
	return requestID, true
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "error", err, "request_id", request.GetRequestID(ctx))
	} else {
		h.logger.WarnContext(ctx, msg, "error", err, "request_id", request.GetRequestID(ctx))
	}
	httputil.WriteError(w, err)
}

func writeList(w http.ResponseWriter, list []*models.BloodRequest) {
	if list == nil {
		list = []*models.BloodRequest{}
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func queryInt(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.NewField(dErrors.CodeValidation, field, field+" must be an integer")
	}
	return n, nil
}
