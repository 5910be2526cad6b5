package admin

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"hemogrid/internal/bloodrequest/models"
	id "hemogrid/pkg/domain"
	dErrors "hemogrid/pkg/domain-errors"
	"hemogrid/pkg/platform/httputil"
	"hemogrid/pkg/platform/middleware/auth"
	request "hemogrid/pkg/platform/middleware/request"
	"hemogrid/pkg/requestcontext"
)

// Handler serves the /admin routes. Routes expect RequireAuth upstream and
// enforce the admin role themselves.
type Handler struct {
	admin  *Service
	logger *slog.Logger
}

func NewHandler(admin *Service, logger *slog.Logger) *Handler {
	return &Handler{admin: admin, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.RequireRole(requestcontext.RoleAdmin, h.logger))
		r.Get("/stats", h.handleStats)
		r.Get("/requests", h.handleListRequests)
		r.Post("/users", h.handleRegisterUser)
		r.Post("/users/{id}/verify", h.handleVerifyUser)
	})
}

type registerUserRequest struct {
	UserID     string `json:"user_id" validate:"omitempty,uuid"`
	Email      string `json:"email" validate:"required,email,max=255"`
	FullName   string `json:"full_name" validate:"max=255"`
	Role       string `json:"role" validate:"omitempty,oneof=requester donor admin"`
	BloodGroup string `json:"blood_group"`
	Verified   bool   `json:"verified"`
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.admin.Stats(ctx)
	if err != nil {
		h.writeError(ctx, w, "failed to compute stats", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toStatsResponse(stats))
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	var page models.Page
	for field, dst := range map[string]*int{"limit": &page.Limit, "offset": &page.Offset} {
		raw := q.Get(field)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.NewField(dErrors.CodeValidation, field, field+" must be an integer"))
			return
		}
		*dst = n
	}
	list, err := h.admin.ListRequests(ctx, q.Get("status"), page)
	if err != nil {
		h.writeError(ctx, w, "failed to list requests", err)
		return
	}
	if list == nil {
		list = []*models.BloodRequest{}
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req registerUserRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	in := NewUser{
		Email:      req.Email,
		FullName:   req.FullName,
		Role:       req.Role,
		BloodGroup: req.BloodGroup,
		Verified:   req.Verified,
	}
	if req.UserID != "" {
		userID, err := id.ParseUserID(req.UserID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		in.UserID = userID
	}
	u, err := h.admin.RegisterUser(ctx, in)
	if err != nil {
		h.writeError(ctx, w, "failed to register user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toUserResponse(u))
}

func (h *Handler) handleVerifyUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	u, err := h.admin.VerifyUser(ctx, userID)
	if err != nil {
		h.writeError(ctx, w, "failed to verify user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "error", err, "request_id", request.GetRequestID(ctx))
	} else {
		h.logger.WarnContext(ctx, msg, "error", err, "request_id", request.GetRequestID(ctx))
	}
	httputil.WriteError(w, err)
}
