package service

import (
	"context"
	"fmt"

	"hemogrid/internal/bloodrequest/models"
	id "hemogrid/pkg/domain"
	dErrors "hemogrid/pkg/domain-errors"
	"hemogrid/pkg/requestcontext"
)

// Expiry triggers, used as metric labels.
const (
	TriggerSweeper = "sweeper"
	TriggerRead    = "read"
)

// Get returns a single request. A pending request past its deadline is
// cancelled before it is returned.
func (s *Service) Get(ctx context.Context, requestID id.RequestID) (*models.BloodRequest, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, wrapRequestErr(err, "failed to load blood request")
	}
	now := requestcontext.Now(ctx)
	if !req.IsExpired(now) {
		return req, nil
	}

	expired := false
	err = s.runInTx(withTxRequest(ctx, requestID), "expire", func(txCtx context.Context) error {
		locked, err := s.requests.FindByIDForUpdate(txCtx, requestID)
		if err != nil {
			return wrapRequestErr(err, "failed to load blood request")
		}
		req = locked
		if !locked.IsExpired(now) {
			return nil
		}
		locked.ApplyTransition(models.StatusCancelled, now)
		if err := s.requests.UpdateStatus(txCtx, locked, models.StatusPending); err != nil {
			return wrapRequestErr(err, "failed to expire blood request")
		}
		expired = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		s.afterExpiry(ctx, TriggerRead, []id.RequestID{requestID})
	}
	return req, nil
}

// GetContact reveals how to reach the requester. Only the requester and a
// donor who accepted the request may see it.
func (s *Service) GetContact(ctx context.Context, requestID id.RequestID) (models.Contact, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return models.Contact{}, err
	}
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return models.Contact{}, wrapRequestErr(err, "failed to load blood request")
	}
	if req.IsOwnedBy(actor) {
		return req.Contact(), nil
	}
	accepted, err := s.donations.Exists(ctx, actor, requestID)
	if err != nil {
		return models.Contact{}, wrapDonationErr(err, "failed to check donation")
	}
	if !accepted {
		return models.Contact{}, dErrors.New(dErrors.CodeForbidden, "contact details are only visible to the requester and the accepting donor")
	}
	return req.Contact(), nil
}

// ListActive lists open requests from other users. Overdue requests are
// cancelled in the same transaction as the read, so a response never holds
// an active request past its deadline.
func (s *Service) ListActive(ctx context.Context, in models.FilterInput) ([]*models.BloodRequest, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	filter, err := models.ParseFilter(in, actor, s.listLimit)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var (
		out     []*models.BloodRequest
		expired []id.RequestID
	)
	err = s.runInTx(ctx, "list_active", func(txCtx context.Context) error {
		var err error
		if expired, err = s.requests.ExpirePending(txCtx, now); err != nil {
			return wrapRequestErr(err, "failed to expire overdue requests")
		}
		out, err = s.requests.ListActive(txCtx, filter)
		return wrapRequestErr(err, "failed to list blood requests")
	})
	if err != nil {
		return nil, err
	}
	s.afterExpiry(ctx, TriggerRead, expired)
	return out, nil
}

// ListMine lists the caller's own requests, newest first.
func (s *Service) ListMine(ctx context.Context) ([]*models.BloodRequest, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	var (
		out     []*models.BloodRequest
		expired []id.RequestID
	)
	err = s.runInTx(ctx, "list_mine", func(txCtx context.Context) error {
		var err error
		if expired, err = s.requests.ExpirePending(txCtx, now); err != nil {
			return wrapRequestErr(err, "failed to expire overdue requests")
		}
		out, err = s.requests.ListByRequester(txCtx, actor)
		return wrapRequestErr(err, "failed to list blood requests")
	})
	if err != nil {
		return nil, err
	}
	s.afterExpiry(ctx, TriggerRead, expired)
	return out, nil
}

// ListMyDonations lists the caller's acceptances with the request each
// refers to, newest first.
func (s *Service) ListMyDonations(ctx context.Context) ([]*models.Donation, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	history, err := s.donations.ListByDonor(ctx, actor)
	if err != nil {
		return nil, wrapDonationErr(err, "failed to list donations")
	}
	ids := make([]id.RequestID, 0, len(history))
	for _, d := range history {
		ids = append(ids, d.RequestID)
	}
	requests, err := s.requests.ListByIDs(ctx, ids)
	if err != nil {
		return nil, wrapRequestErr(err, "failed to load donated requests")
	}
	out := make([]*models.Donation, 0, len(history))
	for _, d := range history {
		out = append(out, &models.Donation{DonationHistory: d, Request: requests[d.RequestID]})
	}
	return out, nil
}

// ExpireOverdue cancels every pending request past its deadline and returns
// how many it cancelled. The periodic sweeper calls this.
func (s *Service) ExpireOverdue(ctx context.Context) (_ int, err error) {
	ctx, span := s.startSpan(ctx, "bloodrequest.ExpireOverdue", id.RequestID{})
	defer func() { endSpan(span, err) }()

	now := requestcontext.Now(ctx)
	var expired []id.RequestID
	err = s.runInTx(ctx, "expire_overdue", func(txCtx context.Context) error {
		var err error
		expired, err = s.requests.ExpirePending(txCtx, now)
		return wrapRequestErr(err, "failed to expire overdue requests")
	})
	if err != nil {
		return 0, err
	}
	s.afterExpiry(ctx, TriggerSweeper, expired)
	return len(expired), nil
}

// afterExpiry records and announces requests a sweep cancelled. Requesters
// are told their request lapsed; failures here never affect the sweep.
func (s *Service) afterExpiry(ctx context.Context, trigger string, expired []id.RequestID) {
	if len(expired) == 0 {
		return
	}
	s.metrics.AddExpired(trigger, len(expired))
	s.logger.InfoContext(ctx, "expired overdue blood requests",
		"trigger", trigger,
		"count", len(expired),
	)

	requests, err := s.requests.ListByIDs(ctx, expired)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load expired requests for notification", "error", err)
		return
	}
	for _, requestID := range expired {
		req, ok := requests[requestID]
		if !ok {
			continue
		}
		s.notify(ctx, req.RequesterID, requestID,
			fmt.Sprintf("Your request for %s blood expired before a donor accepted it.", req.BloodGroup))
	}
}

// ListAll pages through every request regardless of status. Empty status
// means any. Overdue requests are cancelled before the page is read.
func (s *Service) ListAll(ctx context.Context, status string, page models.Page) ([]*models.BloodRequest, error) {
	var filter models.Status
	if status != "" {
		parsed, err := models.ParseStatus(status)
		if err != nil {
			return nil, err
		}
		filter = parsed
	}
	if page.Offset < 0 {
		return nil, dErrors.NewField(dErrors.CodeValidation, "offset", "offset must not be negative")
	}
	if page.Limit <= 0 || page.Limit > s.listLimit {
		page.Limit = s.listLimit
	}
	now := requestcontext.Now(ctx)
	var (
		out     []*models.BloodRequest
		expired []id.RequestID
	)
	err := s.runInTx(ctx, "list_all", func(txCtx context.Context) error {
		var err error
		if expired, err = s.requests.ExpirePending(txCtx, now); err != nil {
			return wrapRequestErr(err, "failed to expire overdue requests")
		}
		out, err = s.requests.ListAll(txCtx, filter, page)
		return wrapRequestErr(err, "failed to list blood requests")
	})
	if err != nil {
		return nil, err
	}
	s.afterExpiry(ctx, TriggerRead, expired)
	return out, nil
}

// Summarize counts requests by status and ranks the top donors. Overdue
// requests are cancelled first so they count as cancelled.
func (s *Service) Summarize(ctx context.Context, topDonors int) (models.Summary, error) {
	now := requestcontext.Now(ctx)
	var (
		byStatus map[models.Status]int
		expired  []id.RequestID
	)
	err := s.runInTx(ctx, "summarize", func(txCtx context.Context) error {
		var err error
		if expired, err = s.requests.ExpirePending(txCtx, now); err != nil {
			return wrapRequestErr(err, "failed to expire overdue requests")
		}
		byStatus, err = s.requests.CountByStatus(txCtx)
		return wrapRequestErr(err, "failed to count blood requests")
	})
	if err != nil {
		return models.Summary{}, err
	}
	s.afterExpiry(ctx, TriggerRead, expired)
	top, err := s.donations.TopDonors(ctx, topDonors)
	if err != nil {
		return models.Summary{}, wrapDonationErr(err, "failed to rank donors")
	}
	summary := models.Summary{
		ByStatus:  byStatus,
		Completed: byStatus[models.StatusCompleted],
		TopDonors: top,
	}
	for _, n := range byStatus {
		summary.Total += n
	}
	return summary, nil
}
