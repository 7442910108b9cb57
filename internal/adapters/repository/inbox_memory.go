package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/civicflow/internal/domain/model"
)

// MemoryNotifications is an in-memory NotificationStore.
type MemoryNotifications struct {
	mu   sync.RWMutex
	rows map[string]*model.Notification
}

// NewMemoryNotifications creates an empty inbox store.
func NewMemoryNotifications() *MemoryNotifications {
	return &MemoryNotifications{rows: make(map[string]*model.Notification)}
}

func (s *MemoryNotifications) Insert(_ context.Context, n *model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[n.ID]; ok {
		return fmt.Errorf("%w: notification %s", ErrDuplicate, n.ID)
	}
	c := *n
	s.rows[n.ID] = &c
	return nil
}

func (s *MemoryNotifications) ListByRecipient(_ context.Context, recipientID string, page, size int) ([]model.Notification, error) {
	s.mu.RLock()
	var all []model.Notification
	for _, n := range s.rows {
		if n.RecipientID == recipientID {
			all = append(all, *n)
		}
	}
	s.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	start, end := pageBounds(page, size, len(all))
	return all[start:end], nil
}

func (s *MemoryNotifications) UnreadCount(_ context.Context, recipientID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, row := range s.rows {
		if row.RecipientID == recipientID && !row.Read {
			n++
		}
	}
	return n, nil
}

func (s *MemoryNotifications) MarkRead(_ context.Context, id, recipientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rows[id]
	if !ok || n.RecipientID != recipientID {
		return fmt.Errorf("%w: notification %s", ErrNotFound, id)
	}
	n.Read = true
	return nil
}

func (s *MemoryNotifications) MarkAllRead(_ context.Context, recipientID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed int64
	for _, n := range s.rows {
		if n.RecipientID == recipientID && !n.Read {
			n.Read = true
			changed++
		}
	}
	return changed, nil
}
