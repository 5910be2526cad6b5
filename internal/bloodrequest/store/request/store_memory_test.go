package request

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hemogrid/internal/bloodrequest/models"
	id "hemogrid/pkg/domain"
	"hemogrid/pkg/platform/sentinel"
)

var now = time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *InMemoryStore, requester id.UserID, expiresAt *time.Time) *models.BloodRequest {
	t.Helper()
	r, err := models.NewBloodRequest(id.RequestID(uuid.New()), requester, models.NewRequest{
		BloodGroup: "O-",
		Quantity:   1,
		ExpiresAt:  expiresAt,
	}, now)
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), r))
	return r
}

func TestUpdateStatusIsConditional(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	r := seed(t, s, id.UserID(uuid.New()), nil)

	r.ApplyTransition(models.StatusAccepted, now)
	require.NoError(t, s.UpdateStatus(ctx, r, models.StatusPending))

	r.ApplyTransition(models.StatusCancelled, now)
	err := s.UpdateStatus(ctx, r, models.StatusPending)
	require.ErrorIs(t, err, sentinel.ErrConflict)

	got, err := s.FindByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, got.Status)
}

func TestReturnedRequestsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	deadline := now.Add(time.Hour)
	r := seed(t, s, id.UserID(uuid.New()), &deadline)

	got, err := s.FindByID(ctx, r.ID)
	require.NoError(t, err)
	got.Status = models.StatusCompleted
	*got.ExpiresAt = now

	again, err := s.FindByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, again.Status)
	assert.Equal(t, deadline, *again.ExpiresAt)
}

func TestExpirePending(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	deadline := now.Add(time.Hour)
	overdue := seed(t, s, id.UserID(uuid.New()), &deadline)
	accepted := seed(t, s, id.UserID(uuid.New()), &deadline)
	seed(t, s, id.UserID(uuid.New()), nil)

	accepted.ApplyTransition(models.StatusAccepted, now)
	require.NoError(t, s.UpdateStatus(ctx, accepted, models.StatusPending))

	expired, err := s.ExpirePending(ctx, deadline.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, []id.RequestID{overdue.ID}, expired)

	got, err := s.FindByID(ctx, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.False(t, got.IsActive)

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[models.Status]int{
		models.StatusCancelled: 1,
		models.StatusAccepted:  1,
		models.StatusPending:   1,
	}, counts)
}

func TestListAllPaginates(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	for range 5 {
		seed(t, s, id.UserID(uuid.New()), nil)
	}

	page, err := s.ListAll(ctx, "", models.Page{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, page, 1)

	page, err = s.ListAll(ctx, models.StatusAccepted, models.Page{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestPagingIsStableForEqualTimestamps(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	for range 7 {
		seed(t, s, id.UserID(uuid.New()), nil)
	}

	collect := func(fetch func(page models.Page) ([]*models.BloodRequest, error)) []string {
		var ids []string
		for offset := 0; ; offset += 2 {
			page, err := fetch(models.Page{Limit: 2, Offset: offset})
			require.NoError(t, err)
			if len(page) == 0 {
				return ids
			}
			for _, r := range page {
				ids = append(ids, r.ID.String())
			}
		}
	}

	t.Run("newest first ties break on descending id", func(t *testing.T) {
		ids := collect(func(p models.Page) ([]*models.BloodRequest, error) {
			return s.ListAll(ctx, "", p)
		})
		require.Len(t, ids, 7)
		assert.IsDecreasing(t, ids)
	})

	t.Run("oldest first ties break on ascending id", func(t *testing.T) {
		ids := collect(func(p models.Page) ([]*models.BloodRequest, error) {
			return s.ListActive(ctx, models.ListFilter{Order: models.OrderOldestFirst, Limit: p.Limit, Offset: p.Offset})
		})
		require.Len(t, ids, 7)
		assert.IsIncreasing(t, ids)
	})
}
