package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"hemogrid/internal/donor/models"
	"hemogrid/internal/donor/store"
	id "hemogrid/pkg/domain"
	dErrors "hemogrid/pkg/domain-errors"
)

type ServiceSuite struct {
	suite.Suite
	svc *Service
	ctx context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.svc = New(store.NewInMemory())
	s.ctx = context.Background()
}

func (s *ServiceSuite) register(email, role, group string, verified bool) *models.Donor {
	d, err := s.svc.Register(s.ctx, RegisterInput{
		Email:      email,
		Role:       role,
		BloodGroup: group,
		Verified:   verified,
	})
	s.Require().NoError(err)
	return d
}

func (s *ServiceSuite) TestFindEligibleDonors() {
	match := s.register("match@example.com", "donor", "O+", true)
	s.register("unverified@example.com", "donor", "O+", false)
	s.register("other-group@example.com", "donor", "A+", true)
	s.register("requester@example.com", "requester", "O+", true)
	busy := s.register("busy@example.com", "donor", "O+", true)
	_, err := s.svc.SetAvailability(s.ctx, busy.ID, "busy")
	s.Require().NoError(err)

	ids, err := s.svc.FindEligibleDonors(s.ctx, id.BloodGroupOPos, id.UserID{})
	s.Require().NoError(err)
	s.Equal([]id.UserID{match.ID}, ids)

	ids, err = s.svc.FindEligibleDonors(s.ctx, id.BloodGroupOPos, match.ID)
	s.Require().NoError(err)
	s.Empty(ids)
}

func (s *ServiceSuite) TestPromoteToDonor() {
	s.Run("requester becomes available donor", func() {
		u := s.register("r1@example.com", "requester", "B+", true)
		s.Require().NoError(s.svc.PromoteToDonor(s.ctx, u.ID))

		got, err := s.svc.Get(s.ctx, u.ID)
		s.Require().NoError(err)
		s.Equal(models.RoleDonor, got.Role)
		s.Equal(models.AvailabilityAvailable, got.Availability)
	})

	s.Run("second call is a no-op", func() {
		u := s.register("r2@example.com", "donor", "B+", true)
		_, err := s.svc.SetAvailability(s.ctx, u.ID, "not_available")
		s.Require().NoError(err)

		s.Require().NoError(s.svc.PromoteToDonor(s.ctx, u.ID))
		got, err := s.svc.Get(s.ctx, u.ID)
		s.Require().NoError(err)
		s.Equal(models.AvailabilityNotAvailable, got.Availability)
	})

	s.Run("unknown user", func() {
		err := s.svc.PromoteToDonor(s.ctx, id.UserID(uuid.New()))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestRegisterRejectsDuplicateEmail() {
	s.register("dup@example.com", "", "", false)
	_, err := s.svc.Register(s.ctx, RegisterInput{Email: "DUP@example.com"})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestRegisterValidatesBloodGroup() {
	_, err := s.svc.Register(s.ctx, RegisterInput{Email: "x@example.com", BloodGroup: "Z"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal("blood_group", dErrors.FieldOf(err))
}

func (s *ServiceSuite) TestVerifyAndCounts() {
	u := s.register("v@example.com", "donor", "AB-", false)
	s.register("plain@example.com", "requester", "", false)

	_, err := s.svc.Verify(s.ctx, u.ID)
	s.Require().NoError(err)
	_, err = s.svc.Verify(s.ctx, u.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	counts, err := s.svc.Counts(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.Counts{TotalUsers: 2, VerifiedDonors: 1}, counts)
}

func (s *ServiceSuite) TestListAvailable() {
	s.register("a@example.com", "donor", "A+", false)
	s.register("b@example.com", "donor", "B+", false)

	all, err := s.svc.ListAvailable(s.ctx, "")
	s.Require().NoError(err)
	s.Len(all, 2)

	onlyA, err := s.svc.ListAvailable(s.ctx, "A+")
	s.Require().NoError(err)
	s.Len(onlyA, 1)

	_, err = s.svc.ListAvailable(s.ctx, "Q")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}
