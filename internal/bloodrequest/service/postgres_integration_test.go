//go:build integration

package service_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"hemogrid/internal/bloodrequest/models"
	"hemogrid/internal/bloodrequest/service"
	"hemogrid/internal/bloodrequest/store/donation"
	"hemogrid/internal/bloodrequest/store/request"
	donormodels "hemogrid/internal/donor/models"
	donorsvc "hemogrid/internal/donor/service"
	donorstore "hemogrid/internal/donor/store"
	notificationsvc "hemogrid/internal/notification/service"
	notificationstore "hemogrid/internal/notification/store"
	"hemogrid/internal/platform/postgres"
	id "hemogrid/pkg/domain"
	dErrors "hemogrid/pkg/domain-errors"
	"hemogrid/pkg/requestcontext"
	"hemogrid/pkg/testutil/containers"
)

// PostgresLifecycleSuite runs the engine against real row locks and
// constraints, where the single-winner guarantee actually has to hold
// across connections.
type PostgresLifecycleSuite struct {
	suite.Suite
	postgres      *containers.PostgresContainer
	directory     *donorsvc.Service
	notifications *notificationsvc.Service
	requests      *request.PostgresStore
	donations     *donation.PostgresStore
	svc           *service.Service
}

func TestPostgresLifecycleSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresLifecycleSuite))
}

func (s *PostgresLifecycleSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	db := s.postgres.DB
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.directory = donorsvc.New(donorstore.NewPostgres(db), donorsvc.WithLogger(logger))
	s.notifications = notificationsvc.New(notificationstore.NewPostgres(db), notificationsvc.WithLogger(logger))
	s.requests = request.NewPostgres(db)
	s.donations = donation.NewPostgres(db)

	var err error
	s.svc, err = service.New(s.requests, s.donations, s.directory, s.notifications,
		service.WithLogger(logger),
		service.WithTx(postgres.NewTxRunner(db, 10*time.Second, 5*time.Second)),
		service.WithRetry(5, 10*time.Millisecond),
	)
	s.Require().NoError(err)
}

func (s *PostgresLifecycleSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "notifications", "donations", "blood_requests", "users"))
}

func (s *PostgresLifecycleSuite) TearDownTest() {
	s.svc.Wait()
}

func (s *PostgresLifecycleSuite) register(email, role, group string) *donormodels.Donor {
	d, err := s.directory.Register(context.Background(), donorsvc.RegisterInput{
		Email:      email,
		Role:       role,
		BloodGroup: group,
		Verified:   true,
	})
	s.Require().NoError(err)
	return d
}

func as(userID id.UserID) context.Context {
	return requestcontext.WithActor(context.Background(), userID, requestcontext.RoleUser)
}

func (s *PostgresLifecycleSuite) TestConcurrentAcceptHasSingleWinner() {
	requester := s.register("requester@example.com", "requester", "AB+")
	req, err := s.svc.Create(as(requester.ID), models.NewRequest{BloodGroup: "AB+", Quantity: 1, Location: "North Clinic"})
	s.Require().NoError(err)

	const donors = 30
	ids := make([]id.UserID, 0, donors)
	for i := range donors {
		ids = append(ids, s.register(fmt.Sprintf("donor%d@example.com", i), "donor", "AB+").ID)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		losers  = make(map[dErrors.Code]int)
	)
	start := make(chan struct{})
	for _, donor := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.svc.Accept(as(donor), req.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners++
				return
			}
			losers[dErrors.CodeOf(err)]++
		}()
	}
	close(start)
	wg.Wait()

	s.Equal(1, winners)
	s.Equal(donors-1, losers[dErrors.CodeConflict]+losers[dErrors.CodeNotFound], "losers: %v", losers)

	var rows int
	err = s.postgres.DB.QueryRow(`SELECT COUNT(*) FROM donations WHERE blood_request_id = $1`, req.ID.String()).Scan(&rows)
	s.Require().NoError(err)
	s.Equal(1, rows)

	got, err := s.requests.FindByID(context.Background(), req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusAccepted, got.Status)
	s.False(got.IsActive)
}

func (s *PostgresLifecycleSuite) TestFanOutPersistsNotifications() {
	requester := s.register("r@example.com", "requester", "O-")
	match := s.register("match@example.com", "donor", "O-")
	s.register("other@example.com", "donor", "A-")

	req, err := s.svc.Create(as(requester.ID), models.NewRequest{BloodGroup: "O-", Quantity: 3, Location: "East Ward"})
	s.Require().NoError(err)
	s.svc.Wait()

	got, err := s.notifications.List(context.Background(), match.ID, true)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(req.ID, got[0].RequestID)

	promoted, err := s.directory.Get(context.Background(), requester.ID)
	s.Require().NoError(err)
	s.Equal(donormodels.RoleDonor, promoted.Role)
}

func (s *PostgresLifecycleSuite) TestListingSweepsOverdueRequests() {
	requester := s.register("r@example.com", "requester", "B+")
	viewer := s.register("v@example.com", "donor", "A+")

	created := time.Now().UTC()
	deadline := created.Add(time.Hour)
	ctx := requestcontext.WithTime(as(requester.ID), created)
	req, err := s.svc.Create(ctx, models.NewRequest{BloodGroup: "B+", Quantity: 1, ExpiresAt: &deadline})
	s.Require().NoError(err)

	later := requestcontext.WithTime(as(viewer.ID), deadline.Add(time.Minute))
	listed, err := s.svc.ListActive(later, models.FilterInput{})
	s.Require().NoError(err)
	for _, r := range listed {
		s.NotEqual(req.ID, r.ID)
	}

	got, err := s.requests.FindByID(context.Background(), req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCancelled, got.Status)
	s.False(got.IsActive)
}

func (s *PostgresLifecycleSuite) TestDuplicateAndSelfAcceptance() {
	requester := s.register("r@example.com", "requester", "A+")
	donor := s.register("d@example.com", "donor", "A+")
	req, err := s.svc.Create(as(requester.ID), models.NewRequest{BloodGroup: "A+", Quantity: 1})
	s.Require().NoError(err)

	_, err = s.svc.Accept(as(requester.ID), req.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeSelfAcceptance))

	_, err = s.svc.Accept(as(donor.ID), req.ID)
	s.Require().NoError(err)

	_, err = s.svc.Accept(as(donor.ID), req.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateAcceptance))

	_, err = s.svc.Complete(as(donor.ID), req.ID)
	s.Require().NoError(err)

	_, err = s.svc.Cancel(as(requester.ID), req.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
}
