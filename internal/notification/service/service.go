package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"hemogrid/internal/notification/models"
	id "hemogrid/pkg/domain"
	dErrors "hemogrid/pkg/domain-errors"
	"hemogrid/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByRecipient(ctx context.Context, recipient id.UserID, unreadOnly bool) ([]*models.Notification, error)
	MarkRead(ctx context.Context, recipient id.UserID, ids []id.NotificationID) (int64, error)
	CountUnread(ctx context.Context, recipient id.UserID) (int, error)
}

// Publisher delivers a persisted notification to an external channel.
type Publisher interface {
	Publish(ctx context.Context, n *models.Notification) error
}

// Service is the notification sink. Persisting is the durable step; publishing
// is best-effort and its failures are logged and counted only.
type Service struct {
	store           Store
	publisher       Publisher
	logger          *slog.Logger
	publishFailures prometheus.Counter
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithRegisterer registers the publish failure counter on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Service) {
		s.publishFailures = promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "hemogrid_notification_publish_failures_total",
			Help: "Notifications persisted but not delivered to the publisher",
		})
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue persists a notification for recipient and hands it to the publisher.
func (s *Service) Enqueue(ctx context.Context, recipient id.UserID, requestID id.RequestID, message string) error {
	n, err := models.NewNotification(id.NotificationID(uuid.New()), recipient, requestID, message, requestcontext.Now(ctx))
	if err != nil {
		return err
	}
	if err := s.store.Create(ctx, n); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store notification")
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, n); err != nil {
			if s.publishFailures != nil {
				s.publishFailures.Inc()
			}
			s.logger.WarnContext(ctx, "notification publish failed",
				"notification_id", n.ID,
				"recipient_id", recipient,
				"error", err,
			)
		}
	}
	return nil
}

// List returns the recipient's notifications, newest first.
func (s *Service) List(ctx context.Context, recipient id.UserID, unreadOnly bool) ([]*models.Notification, error) {
	out, err := s.store.ListByRecipient(ctx, recipient, unreadOnly)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list notifications")
	}
	return out, nil
}

// MarkRead flags the recipient's notifications as read. Foreign IDs are
// silently ignored since the store scopes updates to the recipient.
func (s *Service) MarkRead(ctx context.Context, recipient id.UserID, ids []id.NotificationID) (int64, error) {
	n, err := s.store.MarkRead(ctx, recipient, ids)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark notifications read")
	}
	return n, nil
}

func (s *Service) UnreadCount(ctx context.Context, recipient id.UserID) (int, error) {
	n, err := s.store.CountUnread(ctx, recipient)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count notifications")
	}
	return n, nil
}
