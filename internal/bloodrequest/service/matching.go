package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"hemogrid/internal/bloodrequest/models"
	id "hemogrid/pkg/domain"
	"hemogrid/pkg/requestcontext"
)

// Create posts a new request for the caller. The caller is promoted to donor
// in the same transaction that stores the request; eligible donors are
// notified after commit.
func (s *Service) Create(ctx context.Context, attrs models.NewRequest) (_ *models.BloodRequest, err error) {
	requester, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	req, err := models.NewBloodRequest(id.RequestID(uuid.New()), requester, attrs, now)
	if err != nil {
		return nil, err
	}

	ctx, span := s.startSpan(ctx, "bloodrequest.Create", req.ID)
	defer func() { endSpan(span, err) }()

	err = s.runInTx(withTxRequest(ctx, req.ID), "create", func(txCtx context.Context) error {
		if err := s.directory.PromoteToDonor(txCtx, requester); err != nil {
			return err
		}
		return wrapRequestErr(s.requests.Create(txCtx, req), "failed to create blood request")
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementTransition(string(models.StatusPending))
	s.logger.InfoContext(ctx, "blood request created",
		"blood_request_id", req.ID,
		"requester_id", requester,
		"blood_group", req.BloodGroup,
		"urgency", req.Urgency,
		"request_id", requestcontext.RequestID(ctx),
	)

	s.dispatchFanOut(ctx, req)
	return req, nil
}

// dispatchFanOut runs the fan-out detached from the caller's cancellation
// but bounded by its own timeout.
func (s *Service) dispatchFanOut(ctx context.Context, req *models.BloodRequest) {
	fanCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fanOutTimeout)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		defer cancel()
		s.fanOut(fanCtx, req)
	}()
}

// fanOut notifies every eligible donor except the requester. Each
// notification is independent: a failed write is logged and the rest go on.
func (s *Service) fanOut(ctx context.Context, req *models.BloodRequest) int {
	start := time.Now()
	donors, err := s.directory.FindEligibleDonors(ctx, req.BloodGroup, req.RequesterID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to find eligible donors",
			"blood_request_id", req.ID,
			"blood_group", req.BloodGroup,
			"error", err,
		)
		return 0
	}

	message := fanOutMessage(req)
	g := new(errgroup.Group)
	g.SetLimit(s.fanOutLimit)
	for _, donor := range donors {
		g.Go(func() error {
			s.notify(ctx, donor, req.ID, message)
			return nil
		})
	}
	_ = g.Wait()

	s.metrics.ObserveFanOut(len(donors), time.Since(start))
	s.logger.InfoContext(ctx, "eligible donors notified",
		"blood_request_id", req.ID,
		"blood_group", req.BloodGroup,
		"recipients", len(donors),
	)
	return len(donors)
}

func fanOutMessage(req *models.BloodRequest) string {
	return fmt.Sprintf("Urgent: a %s request needs %d unit(s) of %s blood at %s.",
		req.Urgency, req.Quantity, req.BloodGroup, req.Location)
}
