package models

import (
	"strings"
	"time"

	id "hemogrid/pkg/domain"
	dErrors "hemogrid/pkg/domain-errors"
)

// BloodRequest is the aggregate root of the lifecycle.
//
// Invariants:
//   - IsActive == Status.IsActive() (pending only) after every construction and transition
//   - RequesterID and CreatedAt never change after construction
//   - Quantity > 0 and BloodGroup is one of the eight supported groups
//   - a pending request whose ExpiresAt has passed is cancelled before any
//     read path returns it
type BloodRequest struct {
	ID          id.RequestID  `json:"id"`
	RequesterID id.UserID     `json:"requester_id"`
	BloodGroup  id.BloodGroup `json:"blood_group"`
	Quantity    int           `json:"quantity"`
	Location    string        `json:"location"`
	ContactInfo string        `json:"-"`
	Details     string        `json:"details"`
	Status      Status        `json:"status"`
	Urgency     Urgency       `json:"urgency"`
	IsActive    bool          `json:"is_active"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	ExpiresAt   *time.Time    `json:"expires_at,omitempty"`
}

// NewRequest carries requester-supplied attributes.
type NewRequest struct {
	BloodGroup  string
	Quantity    int
	Location    string
	ContactInfo string
	Details     string
	Urgency     string
	ExpiresAt   *time.Time
}

// NewBloodRequest validates attrs and builds a pending, active request.
// Validation failures carry the offending field.
func NewBloodRequest(requestID id.RequestID, requester id.UserID, attrs NewRequest, now time.Time) (*BloodRequest, error) {
	if requester.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "requester is required")
	}
	group, err := id.ParseBloodGroup(attrs.BloodGroup)
	if err != nil {
		return nil, err
	}
	if attrs.Quantity <= 0 {
		return nil, dErrors.NewField(dErrors.CodeValidation, "quantity", "quantity must be a positive number of units")
	}
	urgency, err := ParseUrgency(attrs.Urgency)
	if err != nil {
		return nil, err
	}
	if attrs.ExpiresAt != nil && !attrs.ExpiresAt.After(now) {
		return nil, dErrors.NewField(dErrors.CodeValidation, "expires_at", "expiry must be in the future")
	}

	return &BloodRequest{
		ID:          requestID,
		RequesterID: requester,
		BloodGroup:  group,
		Quantity:    attrs.Quantity,
		Location:    strings.TrimSpace(attrs.Location),
		ContactInfo: strings.TrimSpace(attrs.ContactInfo),
		Details:     strings.TrimSpace(attrs.Details),
		Status:      StatusPending,
		Urgency:     urgency,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   attrs.ExpiresAt,
	}, nil
}

// IsOwnedBy reports whether actor posted the request.
func (r *BloodRequest) IsOwnedBy(actor id.UserID) bool {
	return r.RequesterID == actor
}

// IsExpired reports whether a pending request has passed its deadline.
// Accepted requests stop the expiry clock.
func (r *BloodRequest) IsExpired(now time.Time) bool {
	return r.Status == StatusPending && r.ExpiresAt != nil && r.ExpiresAt.Before(now)
}

// CanTransitionTo returns CodeInvalidTransition when target is not an edge
// from the current status.
func (r *BloodRequest) CanTransitionTo(target Status) error {
	if !target.IsValid() {
		return dErrors.NewField(dErrors.CodeValidation, "status", "unknown status "+string(target))
	}
	if !r.Status.CanTransitionTo(target) {
		return dErrors.New(dErrors.CodeInvalidTransition,
			"cannot move request from "+string(r.Status)+" to "+string(target))
	}
	return nil
}

// ApplyTransition sets the status and recomputes IsActive. Call
// CanTransitionTo first.
func (r *BloodRequest) ApplyTransition(target Status, now time.Time) {
	r.Status = target
	r.IsActive = target.IsActive()
	r.UpdatedAt = now
}

// Contact is what an authorised party may see to coordinate a donation.
type Contact struct {
	RequestID   id.RequestID `json:"blood_request_id"`
	RequesterID id.UserID    `json:"requester_id"`
	ContactInfo string       `json:"contact_info"`
	Location    string       `json:"location"`
}

func (r *BloodRequest) Contact() Contact {
	return Contact{
		RequestID:   r.ID,
		RequesterID: r.RequesterID,
		ContactInfo: r.ContactInfo,
		Location:    r.Location,
	}
}
