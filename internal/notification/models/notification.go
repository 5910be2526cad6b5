package models

import (
	"time"

	id "hemogrid/pkg/domain"
	dErrors "hemogrid/pkg/domain-errors"
)

// Notification is a message addressed to one recipient about one request.
// Only the recipient may flip IsRead; nothing else mutates it.
type Notification struct {
	ID          id.NotificationID `json:"id"`
	RecipientID id.UserID         `json:"recipient_id"`
	RequestID   id.RequestID      `json:"blood_request_id"`
	Message     string            `json:"message"`
	IsRead      bool              `json:"is_read"`
	CreatedAt   time.Time         `json:"created_at"`
}

func NewNotification(notificationID id.NotificationID, recipient id.UserID, requestID id.RequestID, message string, now time.Time) (*Notification, error) {
	if recipient.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "notification recipient is required")
	}
	if message == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "notification message is required")
	}
	return &Notification{
		ID:          notificationID,
		RecipientID: recipient,
		RequestID:   requestID,
		Message:     message,
		CreatedAt:   now,
	}, nil
}
