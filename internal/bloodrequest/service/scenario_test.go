package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hemogrid/internal/bloodrequest/models"
	"hemogrid/internal/bloodrequest/store/donation"
	"hemogrid/internal/bloodrequest/store/request"
	donormodels "hemogrid/internal/donor/models"
	donorsvc "hemogrid/internal/donor/service"
	donorstore "hemogrid/internal/donor/store"
	notificationsvc "hemogrid/internal/notification/service"
	notificationstore "hemogrid/internal/notification/store"
	dErrors "hemogrid/pkg/domain-errors"
	"hemogrid/pkg/requestcontext"
)

// TestDonationScenario walks one O+ request from creation to completion
// against the real directory and notification sink.
func TestDonationScenario(t *testing.T) {
	ctx := requestcontext.WithTime(context.Background(), time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC))
	directory := donorsvc.New(donorstore.NewInMemory())
	notifications := notificationsvc.New(notificationstore.NewInMemory())
	svc, err := New(request.NewInMemory(), donation.NewInMemory(), directory, notifications)
	require.NoError(t, err)

	requester, err := directory.Register(ctx, donorsvc.RegisterInput{Email: "req@example.com", Role: "requester", BloodGroup: "A+"})
	require.NoError(t, err)
	donorA, err := directory.Register(ctx, donorsvc.RegisterInput{Email: "a@example.com", Role: "donor", BloodGroup: "O+", Verified: true})
	require.NoError(t, err)
	donorB, err := directory.Register(ctx, donorsvc.RegisterInput{Email: "b@example.com", Role: "donor", BloodGroup: "O+", Verified: true})
	require.NoError(t, err)
	unverified, err := directory.Register(ctx, donorsvc.RegisterInput{Email: "c@example.com", Role: "donor", BloodGroup: "O+"})
	require.NoError(t, err)
	otherGroup, err := directory.Register(ctx, donorsvc.RegisterInput{Email: "d@example.com", Role: "donor", BloodGroup: "B+", Verified: true})
	require.NoError(t, err)

	as := func(u *donormodels.Donor) context.Context {
		return requestcontext.WithActor(ctx, u.ID, requestcontext.RoleUser)
	}

	req, err := svc.Create(as(requester), models.NewRequest{BloodGroup: "O+", Quantity: 2, Location: "General"})
	require.NoError(t, err)
	svc.Wait()
	assert.Equal(t, models.StatusPending, req.Status)
	assert.True(t, req.IsActive)

	promoted, err := directory.Get(ctx, requester.ID)
	require.NoError(t, err)
	assert.Equal(t, donormodels.RoleDonor, promoted.Role)

	for _, u := range []*donormodels.Donor{donorA, donorB} {
		got, err := notifications.List(ctx, u.ID, false)
		require.NoError(t, err)
		require.Len(t, got, 1, "matching donor %s", u.Email)
		assert.Contains(t, got[0].Message, "O+")
	}
	for _, u := range []*donormodels.Donor{unverified, otherGroup, requester} {
		got, err := notifications.List(ctx, u.ID, false)
		require.NoError(t, err)
		assert.Empty(t, got, "non-matching user %s", u.Email)
	}

	d, err := svc.Accept(as(donorA), req.ID)
	require.NoError(t, err)
	assert.Equal(t, donorA.ID, d.DonorID)

	_, err = svc.Accept(as(donorB), req.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict) || dErrors.HasCode(err, dErrors.CodeNotFound))

	completed, err := svc.Complete(as(requester), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, completed.Status)

	_, err = svc.Cancel(as(requester), req.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
}
