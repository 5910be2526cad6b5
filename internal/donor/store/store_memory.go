package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"hemogrid/internal/donor/models"
	id "hemogrid/pkg/domain"
	"hemogrid/pkg/platform/sentinel"
)

// InMemoryStore keeps the directory in a map guarded by a RWMutex.
// Entries are copied on the way in and out so callers never share state.
type InMemoryStore struct {
	mu     sync.RWMutex
	donors map[id.UserID]*models.Donor
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{donors: make(map[id.UserID]*models.Donor)}
}

func (s *InMemoryStore) Create(_ context.Context, d *models.Donor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.donors[d.ID]; exists {
		return fmt.Errorf("user %s: %w", d.ID, sentinel.ErrAlreadyUsed)
	}
	for _, existing := range s.donors {
		if existing.Email == d.Email {
			return fmt.Errorf("email %s: %w", d.Email, sentinel.ErrAlreadyUsed)
		}
	}
	cp := *d
	s.donors[d.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, userID id.UserID) (*models.Donor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.donors[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *InMemoryStore) FindEligible(_ context.Context, bloodGroup id.BloodGroup, exclude id.UserID) ([]id.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Donor
	for _, d := range s.donors {
		if d.ID == exclude || !d.IsEligibleFor(bloodGroup) {
			continue
		}
		out = append(out, d)
	}
	sortByCreated(out)
	ids := make([]id.UserID, 0, len(out))
	for _, d := range out {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (s *InMemoryStore) ListAvailable(_ context.Context, bloodGroup id.BloodGroup) ([]*models.Donor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Donor
	for _, d := range s.donors {
		if d.Role != models.RoleDonor || !d.IsCurrentlyAvailable() {
			continue
		}
		if bloodGroup != "" && d.BloodGroup != bloodGroup {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sortByCreated(out)
	return out, nil
}

// Execute runs validate and mutate while holding the write lock.
func (s *InMemoryStore) Execute(_ context.Context, userID id.UserID, validate func(*models.Donor) error, mutate func(*models.Donor)) (*models.Donor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.donors[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *d
	if err := validate(&cp); err != nil {
		return nil, err
	}
	mutate(&cp)
	s.donors[userID] = &cp
	out := cp
	return &out, nil
}

func (s *InMemoryStore) Count(_ context.Context) (models.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := models.Counts{TotalUsers: len(s.donors)}
	for _, d := range s.donors {
		if d.Role == models.RoleDonor && d.IsVerified {
			counts.VerifiedDonors++
		}
	}
	return counts, nil
}

func sortByCreated(ds []*models.Donor) {
	sort.SliceStable(ds, func(i, j int) bool {
		return ds[i].CreatedAt.Before(ds[j].CreatedAt)
	})
}
