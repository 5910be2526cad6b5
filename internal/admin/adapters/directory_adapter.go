package adapters

import (
	"context"

	"hemogrid/internal/admin"
	donorModels "hemogrid/internal/donor/models"
	donorService "hemogrid/internal/donor/service"
	id "hemogrid/pkg/domain"
)

// DonorDirectory is the subset of the donor service the admin surface uses.
type DonorDirectory interface {
	Register(ctx context.Context, in donorService.RegisterInput) (*donorModels.Donor, error)
	Verify(ctx context.Context, userID id.UserID) (*donorModels.Donor, error)
	Counts(ctx context.Context) (donorModels.Counts, error)
}

// DirectoryAdapter adapts the donor directory to admin's Directory interface.
type DirectoryAdapter struct {
	donors DonorDirectory
}

// NewDirectoryAdapter creates a new adapter wrapping the donor directory.
func NewDirectoryAdapter(donors DonorDirectory) *DirectoryAdapter {
	return &DirectoryAdapter{donors: donors}
}

// Register adds a user and returns it mapped to the admin type.
func (a *DirectoryAdapter) Register(ctx context.Context, in admin.NewUser) (*admin.User, error) {
	d, err := a.donors.Register(ctx, donorService.RegisterInput{
		UserID:     in.UserID,
		Email:      in.Email,
		FullName:   in.FullName,
		Role:       in.Role,
		BloodGroup: in.BloodGroup,
		Verified:   in.Verified,
	})
	if err != nil {
		return nil, err
	}
	return mapDonor(d), nil
}

// Verify marks a user verified and returns it mapped to the admin type.
func (a *DirectoryAdapter) Verify(ctx context.Context, userID id.UserID) (*admin.User, error) {
	d, err := a.donors.Verify(ctx, userID)
	if err != nil {
		return nil, err
	}
	return mapDonor(d), nil
}

func (a *DirectoryAdapter) Counts(ctx context.Context) (admin.DirectoryCounts, error) {
	c, err := a.donors.Counts(ctx)
	if err != nil {
		return admin.DirectoryCounts{}, err
	}
	return admin.DirectoryCounts{TotalUsers: c.TotalUsers, VerifiedDonors: c.VerifiedDonors}, nil
}

func mapDonor(d *donorModels.Donor) *admin.User {
	return &admin.User{
		ID:         d.ID,
		Email:      d.Email,
		FullName:   d.FullName,
		Role:       string(d.Role),
		BloodGroup: string(d.BloodGroup),
		Verified:   d.IsVerified,
	}
}
