package store

import (
	"context"
	"sort"
	"sync"

	"hemogrid/internal/notification/models"
	id "hemogrid/pkg/domain"
)

// InMemoryStore keeps notifications indexed by recipient.
type InMemoryStore struct {
	mu          sync.RWMutex
	byRecipient map[id.UserID][]*models.Notification
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{byRecipient: make(map[id.UserID][]*models.Notification)}
}

func (s *InMemoryStore) Create(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	s.byRecipient[n.RecipientID] = append(s.byRecipient[n.RecipientID], &cp)
	return nil
}

// ListByRecipient returns newest first.
func (s *InMemoryStore) ListByRecipient(_ context.Context, recipient id.UserID, unreadOnly bool) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Notification
	for _, n := range s.byRecipient[recipient] {
		if unreadOnly && n.IsRead {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// MarkRead flags the given notifications as read. An empty ids slice marks
// every notification of the recipient. Returns the number of rows changed.
func (s *InMemoryStore) MarkRead(_ context.Context, recipient id.UserID, ids []id.NotificationID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[id.NotificationID]bool, len(ids))
	for _, nid := range ids {
		wanted[nid] = true
	}
	var changed int64
	for _, n := range s.byRecipient[recipient] {
		if n.IsRead {
			continue
		}
		if len(ids) > 0 && !wanted[n.ID] {
			continue
		}
		n.IsRead = true
		changed++
	}
	return changed, nil
}

func (s *InMemoryStore) CountUnread(_ context.Context, recipient id.UserID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.byRecipient[recipient] {
		if !n.IsRead {
			count++
		}
	}
	return count, nil
}
