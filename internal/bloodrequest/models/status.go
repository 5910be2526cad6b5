package models

import dErrors "hemogrid/pkg/domain-errors"

// Status is the lifecycle state of a blood request.
//
//	pending ──► accepted ──► completed
//	   │            │
//	   └──► cancelled ◄──┘
//
// completed and cancelled are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:  {StatusAccepted, StatusCancelled},
	StatusAccepted: {StatusCompleted, StatusCancelled},
}

// ParseStatus parses a status from external input.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", dErrors.NewField(dErrors.CodeValidation, "status", "unknown status "+s)
	}
	return st, nil
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether a request in this status is open for acceptance.
// Acceptance closes the request even though it is not yet terminal.
func (s Status) IsActive() bool {
	return s == StatusPending
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether target is an edge of the lifecycle graph.
func (s Status) CanTransitionTo(target Status) bool {
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// Urgency is informational only. It never affects transitions or matching.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// ParseUrgency parses an urgency. Empty input defaults to medium.
func ParseUrgency(s string) (Urgency, error) {
	switch u := Urgency(s); u {
	case "":
		return UrgencyMedium, nil
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return u, nil
	}
	return "", dErrors.NewField(dErrors.CodeValidation, "urgency", "urgency must be one of low, medium, high")
}

// DonationStatus tracks the donor's side of an acceptance for audit.
type DonationStatus string

const (
	DonationAccepted  DonationStatus = "accepted"
	DonationCompleted DonationStatus = "completed"
	DonationCancelled DonationStatus = "cancelled"
)
