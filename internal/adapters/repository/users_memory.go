package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/civicflow/internal/domain/model"
)

// MemoryUsers is an in-memory UserStore.
type MemoryUsers struct {
	mu    sync.RWMutex
	users map[string]*model.User
}

// NewMemoryUsers creates an empty in-memory points ledger.
func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: make(map[string]*model.User)}
}

// ensureLocked returns the user, creating it if needed. Callers hold s.mu.
func (s *MemoryUsers) ensureLocked(id string, periodStart, at time.Time) *model.User {
	u, ok := s.users[id]
	if !ok {
		u = &model.User{ID: id, LastMonthlyReset: periodStart, CreatedAt: at, UpdatedAt: at}
		s.users[id] = u
	}
	return u
}

func (s *MemoryUsers) Ensure(_ context.Context, id string, periodStart, at time.Time) error {
	s.mu.Lock()
	s.ensureLocked(id, periodStart, at)
	s.mu.Unlock()
	return nil
}

func (s *MemoryUsers) Get(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	c := *u
	return &c, nil
}

func (s *MemoryUsers) AddPoints(_ context.Context, d model.PointsDelta, periodStart, at time.Time) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.ensureLocked(d.UserID, periodStart, at)
	if u.LastMonthlyReset.Before(periodStart) {
		u.MonthlyPoints = 0
		u.LastMonthlyReset = periodStart
	}
	u.LifetimePoints += d.Lifetime
	u.MonthlyPoints += d.Monthly
	u.UpdatedAt = at
	c := *u
	return &c, nil
}

func (s *MemoryUsers) ResetMonthly(_ context.Context, periodStart, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.users {
		if u.LastMonthlyReset.Before(periodStart) {
			u.MonthlyPoints = 0
			u.LastMonthlyReset = periodStart
			u.UpdatedAt = at
			n++
		}
	}
	return n, nil
}

func (s *MemoryUsers) SetDeviceToken(_ context.Context, id, token string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	u.DeviceToken = token
	u.UpdatedAt = at
	return nil
}

func (s *MemoryUsers) List(_ context.Context) ([]model.User, error) {
	s.mu.RLock()
	out := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
