package donation

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

type donorRequestKey struct {
	donor   id.UserID
	request id.RequestID
}

// InMemoryStore enforces the same two uniqueness rules as the donations
// table: one row per (donor, request) and one row per request.
type InMemoryStore struct {
	mu        sync.RWMutex
	donations map[id.DonationID]*models.DonationHistory
	byPair    map[donorRequestKey]id.DonationID
	byRequest map[id.RequestID]id.DonationID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		donations: make(map[id.DonationID]*models.DonationHistory),
		byPair:    make(map[donorRequestKey]id.DonationID),
		byRequest: make(map[id.RequestID]id.DonationID),
	}
}

// Create returns sentinel.ErrAlreadyUsed when the donor already accepted this
// request and sentinel.ErrConflict when someone else did.
func (s *InMemoryStore) Create(_ context.Context, d *models.DonationHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := donorRequestKey{donor: d.DonorID, request: d.RequestID}
	if _, exists := s.byPair[key]; exists {
		return fmt.Errorf("donation by %s for %s: %w", d.DonorID, d.RequestID, sentinel.ErrAlreadyUsed)
	}
	if _, exists := s.byRequest[d.RequestID]; exists {
		return fmt.Errorf("donation for %s: %w", d.RequestID, sentinel.ErrConflict)
	}
	cp := *d
	s.donations[d.ID] = &cp
	s.byPair[key] = d.ID
	s.byRequest[d.RequestID] = d.ID
	return nil
}

func (s *InMemoryStore) Exists(_ context.Context, donor id.UserID, requestID id.RequestID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byPair[donorRequestKey{donor: donor, request: requestID}]
	return ok, nil
}

func (s *InMemoryStore) FindByRequest(_ context.Context, requestID id.RequestID) (*models.DonationHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	donationID, ok := s.byRequest[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.donations[donationID]
	return &cp, nil
}

func (s *InMemoryStore) ListByDonor(_ context.Context, donor id.UserID) ([]*models.DonationHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.DonationHistory
	for _, d := range s.donations {
		if d.DonorID == donor {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AcceptedAt.After(out[j].AcceptedAt)
	})
	return out, nil
}

// UpdateStatus sets the status of the donation recorded against requestID.
// A request nobody accepted has no row and is not an error.
func (s *InMemoryStore) UpdateStatus(_ context.Context, requestID id.RequestID, status models.DonationStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	donationID, ok := s.byRequest[requestID]
	if !ok {
		return nil
	}
	d := s.donations[donationID]
	d.Status = status
	d.UpdatedAt = now
	return nil
}

func (s *InMemoryStore) TopDonors(_ context.Context, limit int) ([]models.DonorCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[id.UserID]int)
	for _, d := range s.donations {
		counts[d.DonorID]++
	}
	out := make([]models.DonorCount, 0, len(counts))
	for donor, n := range counts {
		out = append(out, models.DonorCount{DonorID: donor, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].DonorID.String() < out[j].DonorID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
