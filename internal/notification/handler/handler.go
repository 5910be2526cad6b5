package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hemogrid/internal/notification/models"
	id "hemogrid/pkg/domain"
	dErrors "hemogrid/pkg/domain-errors"
	"hemogrid/pkg/platform/httputil"
	request "hemogrid/pkg/platform/middleware/request"
	platformstrings "hemogrid/pkg/platform/strings"
	"hemogrid/pkg/requestcontext"
)

type Service interface {
	List(ctx context.Context, recipient id.UserID, unreadOnly bool) ([]*models.Notification, error)
	MarkRead(ctx context.Context, recipient id.UserID, ids []id.NotificationID) (int64, error)
	UnreadCount(ctx context.Context, recipient id.UserID) (int, error)
}

// Handler serves the recipient's notification inbox.
type Handler struct {
	notifications Service
	logger        *slog.Logger
}

func New(notifications Service, logger *slog.Logger) *Handler {
	return &Handler{notifications: notifications, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/notifications", h.handleList)
	r.Get("/notifications/unread-count", h.handleUnreadCount)
	r.Post("/notifications/read", h.handleMarkRead)
}

type markReadRequest struct {
	IDs []string `json:"ids"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	unreadOnly := r.URL.Query().Get("unread") == "true"
	list, err := h.notifications.List(ctx, requestcontext.UserID(ctx), unreadOnly)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list notifications", "error", err, "request_id", request.GetRequestID(ctx))
		httputil.WriteError(w, err)
		return
	}
	if list == nil {
		list = []*models.Notification{}
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	count, err := h.notifications.UnreadCount(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to count notifications", "error", err, "request_id", request.GetRequestID(ctx))
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"unread": count})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req markReadRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
	}
	rawIDs := platformstrings.DedupeAndTrim(req.IDs)
	ids := make([]id.NotificationID, 0, len(rawIDs))
	for _, raw := range rawIDs {
		nid, err := id.ParseNotificationID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		ids = append(ids, nid)
	}

	changed, err := h.notifications.MarkRead(ctx, requestcontext.UserID(ctx), ids)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to mark notifications read", "error", err, "request_id", request.GetRequestID(ctx))
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int64{"updated": changed})
}
