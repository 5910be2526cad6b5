package request

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"hemogrid/internal/bloodrequest/models"
	id "hemogrid/pkg/domain"
	"hemogrid/pkg/platform/sentinel"
)

// InMemoryStore keeps requests in a map guarded by a RWMutex. Entries are
// copied on the way in and out so callers never share state.
type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[id.RequestID]*models.BloodRequest
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{requests: make(map[id.RequestID]*models.BloodRequest)}
}

func (s *InMemoryStore) Create(_ context.Context, r *models.BloodRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[r.ID]; exists {
		return fmt.Errorf("request %s: %w", r.ID, sentinel.ErrAlreadyUsed)
	}
	s.requests[r.ID] = clone(r)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, requestID id.RequestID) (*models.BloodRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(r), nil
}

// FindByIDForUpdate is FindByID. Writers are serialised by the caller's
// transaction runner.
func (s *InMemoryStore) FindByIDForUpdate(ctx context.Context, requestID id.RequestID) (*models.BloodRequest, error) {
	return s.FindByID(ctx, requestID)
}

// UpdateStatus writes r only if the stored status still equals expected.
func (s *InMemoryStore) UpdateStatus(_ context.Context, r *models.BloodRequest, expected models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.requests[r.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Status != expected {
		return fmt.Errorf("request %s is %s, expected %s: %w", r.ID, current.Status, expected, sentinel.ErrConflict)
	}
	s.requests[r.ID] = clone(r)
	return nil
}

func (s *InMemoryStore) ListActive(_ context.Context, filter models.ListFilter) ([]*models.BloodRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.BloodRequest
	for _, r := range s.requests {
		if filter.Matches(r) {
			out = append(out, clone(r))
		}
	}
	sortByCreated(out, filter.Order == models.OrderOldestFirst)
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (s *InMemoryStore) ListByRequester(_ context.Context, requester id.UserID) ([]*models.BloodRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.BloodRequest
	for _, r := range s.requests {
		if r.RequesterID == requester {
			out = append(out, clone(r))
		}
	}
	sortByCreated(out, false)
	return out, nil
}

func (s *InMemoryStore) ListByIDs(_ context.Context, ids []id.RequestID) (map[id.RequestID]*models.BloodRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.RequestID]*models.BloodRequest, len(ids))
	for _, requestID := range ids {
		if r, ok := s.requests[requestID]; ok {
			out[requestID] = clone(r)
		}
	}
	return out, nil
}

// ExpirePending cancels every pending request whose deadline is before now
// and returns their IDs.
func (s *InMemoryStore) ExpirePending(_ context.Context, now time.Time) ([]id.RequestID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []id.RequestID
	for requestID, r := range s.requests {
		if !r.IsExpired(now) {
			continue
		}
		r.ApplyTransition(models.StatusCancelled, now)
		expired = append(expired, requestID)
	}
	return expired, nil
}

func (s *InMemoryStore) ListAll(_ context.Context, status models.Status, page models.Page) ([]*models.BloodRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.BloodRequest
	for _, r := range s.requests {
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, clone(r))
	}
	sortByCreated(out, false)
	return paginate(out, page.Limit, page.Offset), nil
}

func (s *InMemoryStore) CountByStatus(_ context.Context) (map[models.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.Status]int)
	for _, r := range s.requests {
		counts[r.Status]++
	}
	return counts, nil
}

func clone(r *models.BloodRequest) *models.BloodRequest {
	cp := *r
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		cp.ExpiresAt = &t
	}
	return &cp
}

// sortByCreated orders by creation time, then by ID in the same direction,
// matching the Postgres store's ORDER BY created_at, id.
func sortByCreated(rs []*models.BloodRequest, ascending bool) {
	sort.Slice(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if !ascending {
			a, b = b, a
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}

func paginate(rs []*models.BloodRequest, limit, offset int) []*models.BloodRequest {
	if offset >= len(rs) {
		return nil
	}
	rs = rs[offset:]
	if limit > 0 && limit < len(rs) {
		rs = rs[:limit]
	}
	return rs
}
