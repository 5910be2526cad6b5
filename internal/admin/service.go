// Package admin serves platform statistics and user management to
// administrators.
package admin

import (
	"context"
	"errors"
	"log/slog"

	"hemogrid/internal/bloodrequest/models"
	id "hemogrid/pkg/domain"
	dErrors "hemogrid/pkg/domain-errors"
	"hemogrid/pkg/requestcontext"
)

// topDonorLimit is how many donors the statistics rank.
const topDonorLimit = 5

// Directory is the user directory as seen by admins.
type Directory interface {
	Register(ctx context.Context, in NewUser) (*User, error)
	Verify(ctx context.Context, userID id.UserID) (*User, error)
	Counts(ctx context.Context) (DirectoryCounts, error)
}

// Requests is the reporting surface of the request lifecycle engine.
type Requests interface {
	ListAll(ctx context.Context, status string, page models.Page) ([]*models.BloodRequest, error)
	Summarize(ctx context.Context, topDonors int) (models.Summary, error)
}

// Stats is the platform-wide summary.
type Stats struct {
	TotalUsers        int
	VerifiedDonors    int
	TotalRequests     int
	CompletedRequests int
	FulfillmentRate   float64
	ByStatus          map[models.Status]int
	TopDonors         []models.DonorCount
}

type Service struct {
	directory Directory
	requests  Requests
	logger    *slog.Logger
}

// Option configures the admin service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(directory Directory, requests Requests, opts ...Option) (*Service, error) {
	if directory == nil {
		return nil, errors.New("directory is required")
	}
	if requests == nil {
		return nil, errors.New("request service is required")
	}
	s := &Service{
		directory: directory,
		requests:  requests,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Stats aggregates directory and request counts.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	if err := requireAdmin(ctx); err != nil {
		return Stats{}, err
	}
	counts, err := s.directory.Counts(ctx)
	if err != nil {
		return Stats{}, err
	}
	summary, err := s.requests.Summarize(ctx, topDonorLimit)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		TotalUsers:        counts.TotalUsers,
		VerifiedDonors:    counts.VerifiedDonors,
		TotalRequests:     summary.Total,
		CompletedRequests: summary.Completed,
		FulfillmentRate:   summary.FulfillmentRate(),
		ByStatus:          summary.ByStatus,
		TopDonors:         summary.TopDonors,
	}, nil
}

// ListRequests pages through all requests, optionally filtered by status.
func (s *Service) ListRequests(ctx context.Context, status string, page models.Page) ([]*models.BloodRequest, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.requests.ListAll(ctx, status, page)
}

// VerifyUser marks a user verified so they can be matched as a donor.
func (s *Service) VerifyUser(ctx context.Context, userID id.UserID) (*User, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	u, err := s.directory.Verify(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user verified",
		"user_id", userID,
		"actor_id", requestcontext.UserID(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
	return u, nil
}

// RegisterUser mirrors a user from the identity provider into the directory.
func (s *Service) RegisterUser(ctx context.Context, in NewUser) (*User, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	u, err := s.directory.Register(ctx, in)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user registered",
		"user_id", u.ID,
		"role", u.Role,
		"actor_id", requestcontext.UserID(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
	return u, nil
}

func requireAdmin(ctx context.Context) error {
	if !requestcontext.IsAdmin(ctx) {
		return dErrors.New(dErrors.CodeForbidden, "admin role required")
	}
	return nil
}
