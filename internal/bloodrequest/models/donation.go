package models

import (
	"time"

	id "hemogrid/pkg/domain"
)

// DonationHistory records a donor's acceptance of a request. At most one row
// exists per (donor, request) and, because creation moves the request out of
// pending, at most one per request.
type DonationHistory struct {
	ID         id.DonationID  `json:"id"`
	DonorID    id.UserID      `json:"donor_id"`
	RequestID  id.RequestID   `json:"blood_request_id"`
	Status     DonationStatus `json:"status"`
	AcceptedAt time.Time      `json:"accepted_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func NewDonation(donationID id.DonationID, donor id.UserID, requestID id.RequestID, now time.Time) *DonationHistory {
	return &DonationHistory{
		ID:         donationID,
		DonorID:    donor,
		RequestID:  requestID,
		Status:     DonationAccepted,
		AcceptedAt: now,
		UpdatedAt:  now,
	}
}

// DonationStatusFor maps a request's terminal status onto the donor side.
func DonationStatusFor(s Status) (DonationStatus, bool) {
	switch s {
	case StatusCompleted:
		return DonationCompleted, true
	case StatusCancelled:
		return DonationCancelled, true
	}
	return "", false
}

// Donation pairs an acceptance record with the request it refers to.
type Donation struct {
	*DonationHistory
	Request *BloodRequest `json:"blood_request"`
}

// DonorCount ranks donors by the number of acceptances recorded.
type DonorCount struct {
	DonorID id.UserID `json:"donor_id"`
	Count   int       `json:"donations"`
}
