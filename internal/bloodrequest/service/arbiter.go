package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"hemogrid/internal/bloodrequest/models"
	id "hemogrid/pkg/domain"
	dErrors "hemogrid/pkg/domain-errors"
	"hemogrid/pkg/platform/sentinel"
	"hemogrid/pkg/requestcontext"
)

// Accept records the caller as the single donor for a pending request.
//
// The request row is locked for the whole check-and-write, so of any number
// of concurrent callers exactly one commits; the rest see the request as
// accepted (conflict) or no longer active (not found).
func (s *Service) Accept(ctx context.Context, requestID id.RequestID) (_ *models.DonationHistory, err error) {
	donor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "bloodrequest.Accept", requestID)
	defer func() {
		s.metrics.IncrementAcceptOutcome(acceptOutcome(err))
		endSpan(span, err)
	}()

	now := requestcontext.Now(ctx)
	var (
		donation *models.DonationHistory
		accepted *models.BloodRequest
	)
	err = s.runInTx(withTxRequest(ctx, requestID), "accept", func(txCtx context.Context) error {
		req, err := s.requests.FindByIDForUpdate(txCtx, requestID)
		if err != nil {
			return wrapRequestErr(err, "failed to load blood request")
		}
		if req.IsOwnedBy(donor) {
			return dErrors.New(dErrors.CodeSelfAcceptance, "you cannot accept your own blood request")
		}
		exists, err := s.donations.Exists(txCtx, donor, requestID)
		if err != nil {
			return wrapDonationErr(err, "failed to check existing donation")
		}
		if exists {
			return dErrors.New(dErrors.CodeDuplicateAcceptance, "you have already accepted this blood request")
		}
		switch {
		case req.Status == models.StatusAccepted:
			return dErrors.New(dErrors.CodeConflict, "blood request has already been accepted")
		case !req.IsActive:
			return dErrors.New(dErrors.CodeNotFound, "blood request is no longer active")
		case req.IsExpired(now):
			return dErrors.New(dErrors.CodeNotFound, "blood request has expired")
		}

		d := models.NewDonation(id.DonationID(uuid.New()), donor, requestID, now)
		if err := s.donations.Create(txCtx, d); err != nil {
			return wrapDonationErr(err, "failed to record donation")
		}
		if err := req.CanTransitionTo(models.StatusAccepted); err != nil {
			return err
		}
		req.ApplyTransition(models.StatusAccepted, now)
		if err := s.requests.UpdateStatus(txCtx, req, models.StatusPending); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "blood request has already been accepted")
			}
			return wrapRequestErr(err, "failed to accept blood request")
		}
		donation, accepted = d, req
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementTransition(string(models.StatusAccepted))
	s.logger.InfoContext(ctx, "blood request accepted",
		"blood_request_id", requestID,
		"donor_id", donor,
		"donation_id", donation.ID,
		"request_id", requestcontext.RequestID(ctx),
	)

	s.notify(ctx, accepted.RequesterID, requestID,
		fmt.Sprintf("A donor accepted your request for %s blood.", accepted.BloodGroup))
	s.notify(ctx, donor, requestID,
		fmt.Sprintf("You accepted a request for %s blood at %s. Contact the requester to arrange the donation.",
			accepted.BloodGroup, accepted.Location))
	return donation, nil
}

// Complete closes an accepted request. The requester and the accepting donor
// may both do this.
func (s *Service) Complete(ctx context.Context, requestID id.RequestID) (*models.BloodRequest, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	authorize := func(req *models.BloodRequest, donation *models.DonationHistory) error {
		if req.IsOwnedBy(actor) || (donation != nil && donation.DonorID == actor) {
			return nil
		}
		return dErrors.New(dErrors.CodeForbidden, "only the requester or the accepting donor can complete this request")
	}
	res, err := s.transition(ctx, "complete", requestID, models.StatusCompleted, authorize)
	if err != nil {
		return nil, err
	}
	if res.donation != nil {
		other := res.donation.DonorID
		if actor == other {
			other = res.request.RequesterID
		}
		s.notify(ctx, other, requestID,
			fmt.Sprintf("The request for %s blood has been marked completed.", res.request.BloodGroup))
	}
	return res.request, nil
}

// Cancel withdraws a pending or accepted request. Only the requester or an
// admin may cancel.
func (s *Service) Cancel(ctx context.Context, requestID id.RequestID) (*models.BloodRequest, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	authorize := func(req *models.BloodRequest, _ *models.DonationHistory) error {
		if req.IsOwnedBy(actor) || requestcontext.IsAdmin(ctx) {
			return nil
		}
		return dErrors.New(dErrors.CodeForbidden, "only the requester or an admin can cancel this request")
	}
	res, err := s.transition(ctx, "cancel", requestID, models.StatusCancelled, authorize)
	if err != nil {
		return nil, err
	}
	if res.previous == models.StatusAccepted && res.donation != nil {
		s.notify(ctx, res.donation.DonorID, requestID,
			fmt.Sprintf("The request for %s blood you accepted was cancelled.", res.request.BloodGroup))
	}
	return res.request, nil
}

// UpdateStatus lets the requester move their request along the lifecycle
// graph. Acceptance is only reachable through Accept.
func (s *Service) UpdateStatus(ctx context.Context, requestID id.RequestID, status string) (*models.BloodRequest, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	target, err := models.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	authorize := func(req *models.BloodRequest, _ *models.DonationHistory) error {
		if !req.IsOwnedBy(actor) {
			return dErrors.New(dErrors.CodeForbidden, "only the requester can update the status of this request")
		}
		if target == models.StatusAccepted {
			return dErrors.New(dErrors.CodeInvalidTransition, "a request is accepted by a donor, not set to accepted directly")
		}
		return nil
	}
	res, err := s.transition(ctx, "update_status", requestID, target, authorize)
	if err != nil {
		return nil, err
	}
	return res.request, nil
}

type transitionResult struct {
	request  *models.BloodRequest
	donation *models.DonationHistory
	previous models.Status
}

// transition is the locked validate-and-write shared by every status change
// except acceptance: load and lock, authorize, check the edge, write with a
// status guard and mirror terminal states onto the donation.
func (s *Service) transition(
	ctx context.Context,
	op string,
	requestID id.RequestID,
	target models.Status,
	authorize func(*models.BloodRequest, *models.DonationHistory) error,
) (_ *transitionResult, err error) {
	ctx, span := s.startSpan(ctx, "bloodrequest."+op, requestID)
	defer func() { endSpan(span, err) }()

	now := requestcontext.Now(ctx)
	var res *transitionResult
	err = s.runInTx(withTxRequest(ctx, requestID), op, func(txCtx context.Context) error {
		req, err := s.requests.FindByIDForUpdate(txCtx, requestID)
		if err != nil {
			return wrapRequestErr(err, "failed to load blood request")
		}
		donation, err := s.donations.FindByRequest(txCtx, requestID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return wrapDonationErr(err, "failed to load donation")
		}
		if err := authorize(req, donation); err != nil {
			return err
		}
		if err := req.CanTransitionTo(target); err != nil {
			return err
		}

		previous := req.Status
		req.ApplyTransition(target, now)
		if err := s.requests.UpdateStatus(txCtx, req, previous); err != nil {
			return wrapRequestErr(err, "failed to update blood request")
		}
		if donationStatus, ok := models.DonationStatusFor(target); ok && donation != nil {
			if err := s.donations.UpdateStatus(txCtx, requestID, donationStatus, now); err != nil {
				return wrapDonationErr(err, "failed to update donation")
			}
			donation.Status = donationStatus
			donation.UpdatedAt = now
		}
		res = &transitionResult{request: req, donation: donation, previous: previous}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementTransition(string(target))
	s.logger.InfoContext(ctx, "blood request status changed",
		"blood_request_id", requestID,
		"from", res.previous,
		"to", target,
		"actor_id", requestcontext.UserID(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
	return res, nil
}

// wrapDonationErr maps donation store sentinels. Unique violations tell a
// repeat acceptance apart from a lost race.
func wrapDonationErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeDuplicateAcceptance, "you have already accepted this blood request")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "blood request has already been accepted")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "donation not found")
	case errors.Is(err, sentinel.ErrUnavailable):
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func acceptOutcome(err error) string {
	if err == nil {
		return "won"
	}
	switch dErrors.CodeOf(err) {
	case dErrors.CodeConflict:
		return "lost"
	case dErrors.CodeDuplicateAcceptance:
		return "duplicate"
	case dErrors.CodeSelfAcceptance:
		return "self"
	case dErrors.CodeNotFound:
		return "not_found"
	}
	return "error"
}
