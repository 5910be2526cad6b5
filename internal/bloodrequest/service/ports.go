package service

import (
	"context"
	"time"

	"hemogrid/internal/bloodrequest/models"
	id "hemogrid/pkg/domain"
)

// RequestStore persists blood requests. UpdateStatus is a compare-and-set on
// status and returns sentinel.ErrConflict when the stored status moved.
type RequestStore interface {
	Create(ctx context.Context, r *models.BloodRequest) error
	FindByID(ctx context.Context, requestID id.RequestID) (*models.BloodRequest, error)
	FindByIDForUpdate(ctx context.Context, requestID id.RequestID) (*models.BloodRequest, error)
	UpdateStatus(ctx context.Context, r *models.BloodRequest, expected models.Status) error
	ListActive(ctx context.Context, filter models.ListFilter) ([]*models.BloodRequest, error)
	ListByRequester(ctx context.Context, requester id.UserID) ([]*models.BloodRequest, error)
	ListByIDs(ctx context.Context, ids []id.RequestID) (map[id.RequestID]*models.BloodRequest, error)
	ExpirePending(ctx context.Context, now time.Time) ([]id.RequestID, error)
	ListAll(ctx context.Context, status models.Status, page models.Page) ([]*models.BloodRequest, error)
	CountByStatus(ctx context.Context) (map[models.Status]int, error)
}

// DonationStore persists acceptances. Create returns sentinel.ErrAlreadyUsed
// for a repeat (donor, request) pair and sentinel.ErrConflict when the
// request already has a donation from someone else.
type DonationStore interface {
	Create(ctx context.Context, d *models.DonationHistory) error
	Exists(ctx context.Context, donor id.UserID, requestID id.RequestID) (bool, error)
	FindByRequest(ctx context.Context, requestID id.RequestID) (*models.DonationHistory, error)
	ListByDonor(ctx context.Context, donor id.UserID) ([]*models.DonationHistory, error)
	UpdateStatus(ctx context.Context, requestID id.RequestID, status models.DonationStatus, now time.Time) error
	TopDonors(ctx context.Context, limit int) ([]models.DonorCount, error)
}

// DonorDirectory resolves who can be asked to donate.
type DonorDirectory interface {
	FindEligibleDonors(ctx context.Context, bloodGroup id.BloodGroup, exclude id.UserID) ([]id.UserID, error)
	PromoteToDonor(ctx context.Context, userID id.UserID) error
}

// NotificationSink delivers a message about a request to one user.
type NotificationSink interface {
	Enqueue(ctx context.Context, recipient id.UserID, requestID id.RequestID, message string) error
}
