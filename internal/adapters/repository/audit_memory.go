package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/okian/civicflow/internal/domain/model"
)

// MemoryAudit is an append-only in-memory AuditStore.
type MemoryAudit struct {
	mu      sync.RWMutex
	entries []model.AuditEntry
}

// NewMemoryAudit creates an empty audit log.
func NewMemoryAudit() *MemoryAudit {
	return &MemoryAudit{}
}

func (s *MemoryAudit) Append(_ context.Context, e *model.AuditEntry) error {
	s.mu.Lock()
	s.entries = append(s.entries, *e)
	s.mu.Unlock()
	return nil
}

func (s *MemoryAudit) ListByReport(_ context.Context, reportID string) ([]model.AuditEntry, error) {
	s.mu.RLock()
	var out []model.AuditEntry
	for _, e := range s.entries {
		if e.ReportID == reportID {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
