package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"hemogrid/internal/donor/models"
	id "hemogrid/pkg/domain"
	dErrors "hemogrid/pkg/domain-errors"
	"hemogrid/pkg/platform/sentinel"
	"hemogrid/pkg/requestcontext"
)

// Store is the persistence port for the donor directory.
type Store interface {
	Create(ctx context.Context, d *models.Donor) error
	FindByID(ctx context.Context, userID id.UserID) (*models.Donor, error)
	FindEligible(ctx context.Context, bloodGroup id.BloodGroup, exclude id.UserID) ([]id.UserID, error)
	ListAvailable(ctx context.Context, bloodGroup id.BloodGroup) ([]*models.Donor, error)
	Execute(ctx context.Context, userID id.UserID, validate func(*models.Donor) error, mutate func(*models.Donor)) (*models.Donor, error)
	Count(ctx context.Context) (models.Counts, error)
}

// Service is the donor directory consumed by the matching engine and the
// admin surface.
type Service struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterInput describes a directory entry mirrored from the identity provider.
type RegisterInput struct {
	UserID     id.UserID
	Email      string
	FullName   string
	Role       string
	BloodGroup string
	Verified   bool
}

// Register adds a user to the directory.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.Donor, error) {
	role, err := models.ParseRole(in.Role)
	if err != nil {
		return nil, err
	}
	var bloodGroup id.BloodGroup
	if in.BloodGroup != "" {
		if bloodGroup, err = id.ParseBloodGroup(in.BloodGroup); err != nil {
			return nil, err
		}
	}
	userID := in.UserID
	if userID.IsNil() {
		userID = id.UserID(uuid.New())
	}

	d, err := models.NewDonor(userID, in.Email, in.FullName, role, bloodGroup, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	d.IsVerified = in.Verified

	if err := s.store.Create(ctx, d); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.NewField(dErrors.CodeConflict, "email", "user already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register user")
	}
	return d, nil
}

func (s *Service) Get(ctx context.Context, userID id.UserID) (*models.Donor, error) {
	d, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return nil, wrapDonorErr(err, "failed to load user")
	}
	return d, nil
}

// FindEligibleDonors returns verified, available donors of bloodGroup,
// excluding one user (the requester).
func (s *Service) FindEligibleDonors(ctx context.Context, bloodGroup id.BloodGroup, exclude id.UserID) ([]id.UserID, error) {
	ids, err := s.store.FindEligible(ctx, bloodGroup, exclude)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to query eligible donors")
	}
	return ids, nil
}

// PromoteToDonor upgrades a requester to an available donor. Calling it for
// an existing donor or admin changes nothing.
func (s *Service) PromoteToDonor(ctx context.Context, userID id.UserID) error {
	now := requestcontext.Now(ctx)
	promoted := false
	_, err := s.store.Execute(ctx, userID,
		func(*models.Donor) error { return nil },
		func(d *models.Donor) {
			promoted = d.NeedsPromotion()
			d.ApplyPromotion(now)
		},
	)
	if err != nil {
		return wrapDonorErr(err, "failed to promote user")
	}
	if promoted {
		s.logger.InfoContext(ctx, "user promoted to donor",
			"user_id", userID,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return nil
}

// SetAvailability records the caller's availability.
func (s *Service) SetAvailability(ctx context.Context, userID id.UserID, availability string) (*models.Donor, error) {
	a, err := models.ParseAvailability(availability)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	d, err := s.store.Execute(ctx, userID,
		func(*models.Donor) error { return nil },
		func(d *models.Donor) { d.ApplyAvailability(a, now) },
	)
	if err != nil {
		return nil, wrapDonorErr(err, "failed to update availability")
	}
	return d, nil
}

// ListAvailable lists donors that are currently available, optionally
// narrowed to a blood group.
func (s *Service) ListAvailable(ctx context.Context, bloodGroup string) ([]*models.Donor, error) {
	var group id.BloodGroup
	if bloodGroup != "" {
		var err error
		if group, err = id.ParseBloodGroup(bloodGroup); err != nil {
			return nil, err
		}
	}
	donors, err := s.store.ListAvailable(ctx, group)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list donors")
	}
	return donors, nil
}

// Verify marks a user as verified.
func (s *Service) Verify(ctx context.Context, userID id.UserID) (*models.Donor, error) {
	now := requestcontext.Now(ctx)
	d, err := s.store.Execute(ctx, userID,
		func(d *models.Donor) error {
			if d.IsVerified {
				return dErrors.New(dErrors.CodeConflict, "user is already verified")
			}
			return nil
		},
		func(d *models.Donor) { d.ApplyVerification(now) },
	)
	if err != nil {
		return nil, wrapDonorErr(err, "failed to verify user")
	}
	return d, nil
}

func (s *Service) Counts(ctx context.Context) (models.Counts, error) {
	counts, err := s.store.Count(ctx)
	if err != nil {
		return models.Counts{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count users")
	}
	return counts, nil
}

func wrapDonorErr(err error, msg string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
