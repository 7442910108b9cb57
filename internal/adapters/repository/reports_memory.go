package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/okian/civicflow/internal/domain/lifecycle"
	"github.com/okian/civicflow/internal/domain/model"
)

// MemoryReports is a ReportStore held in process memory. A single mutex makes
// every mutation atomic, which is the same guarantee the document store gives
// per record.
type MemoryReports struct {
	mu      sync.RWMutex
	reports map[string]*model.Report
}

// NewMemoryReports creates an empty in-memory report store.
func NewMemoryReports() *MemoryReports {
	return &MemoryReports{reports: make(map[string]*model.Report)}
}

func (s *MemoryReports) Create(_ context.Context, r *model.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[r.ID]; ok {
		return fmt.Errorf("%w: report %s", ErrDuplicate, r.ID)
	}
	s.reports[r.ID] = r.Clone()
	return nil
}

func (s *MemoryReports) Get(_ context.Context, id string) (*model.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, fmt.Errorf("%w: report %s", ErrNotFound, id)
	}
	return r.Clone(), nil
}

func (s *MemoryReports) Transition(_ context.Context, id string, t lifecycle.Transition) (*model.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, fmt.Errorf("%w: report %s", ErrNotFound, id)
	}
	if !t.Matches(r) {
		return r.Clone(), fmt.Errorf("%w: %s report %s", ErrConditionFailed, t.Action, id)
	}
	t.Apply(r)
	return r.Clone(), nil
}

func (s *MemoryReports) ToggleUpvote(_ context.Context, id, actor string, at time.Time) (*model.Report, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, false, fmt.Errorf("%w: report %s", ErrNotFound, id)
	}
	if r.Status == model.StatusDeleted {
		return nil, false, fmt.Errorf("%w: report %s is deleted", model.ErrInvalidState, id)
	}
	upvoted := false
	if i := slices.Index(r.UpvotedBy, actor); i >= 0 {
		r.UpvotedBy = slices.Delete(r.UpvotedBy, i, i+1)
		r.Upvotes--
	} else {
		r.UpvotedBy = append(r.UpvotedBy, actor)
		r.Upvotes++
		upvoted = true
	}
	r.UpdatedAt = at
	return r.Clone(), upvoted, nil
}

func (s *MemoryReports) MergeClassification(_ context.Context, id string, res model.ClassificationResult, at time.Time) (*model.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, fmt.Errorf("%w: report %s", ErrNotFound, id)
	}
	res.Apply(r)
	r.UpdatedAt = at
	return r.Clone(), nil
}

func matchesFilter(r *model.Report, f model.ReportFilter) bool {
	if f.Status == "" {
		if r.Status == model.StatusDeleted {
			return false
		}
	} else if r.Status != f.Status {
		return false
	}
	if f.Department != "" && r.Department != f.Department {
		return false
	}
	if f.Severity != "" && r.Severity != f.Severity {
		return false
	}
	if f.SubmittedBy != "" && r.SubmittedBy != f.SubmittedBy {
		return false
	}
	return true
}

// snapshot copies every report matching keep, newest first.
func (s *MemoryReports) snapshot(keep func(*model.Report) bool) []*model.Report {
	s.mu.RLock()
	out := make([]*model.Report, 0, len(s.reports))
	for _, r := range s.reports {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *MemoryReports) List(_ context.Context, f model.ReportFilter, page, limit int) ([]*model.Report, int64, error) {
	all := s.snapshot(func(r *model.Report) bool { return matchesFilter(r, f) })
	start, end := pageBounds(page, limit, len(all))
	return all[start:end], int64(len(all)), nil
}

func (s *MemoryReports) Near(_ context.Context, lat, lng, radiusMeters float64, department string, limit int) ([]*model.Report, error) {
	type hit struct {
		r *model.Report
		d float64
	}
	var hits []hit
	for _, r := range s.snapshot(func(r *model.Report) bool {
		return r.Status != model.StatusDeleted && (department == "" || r.Department == department)
	}) {
		if d := distanceMeters(lat, lng, r.Location.Lat(), r.Location.Lng()); d <= radiusMeters {
			hits = append(hits, hit{r, d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].d < hits[j].d })
	out := make([]*model.Report, 0, min(len(hits), limit))
	for i := 0; i < len(hits) && i < limit; i++ {
		out = append(out, hits[i].r)
	}
	return out, nil
}

func (s *MemoryReports) WithinBounds(_ context.Context, sw, ne model.Location, limit int) ([]*model.Report, error) {
	all := s.snapshot(func(r *model.Report) bool {
		return r.Status != model.StatusDeleted && inBounds(r.Location, sw, ne)
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryReports) Stats(_ context.Context) (model.ReportStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st model.ReportStats
	for _, r := range s.reports {
		switch r.Status {
		case model.StatusSubmitted, model.StatusAcknowledged:
			st.Total++
			st.Active++
		case model.StatusResolved:
			st.Total++
			st.Resolved++
		}
	}
	return st, nil
}

func (s *MemoryReports) ResolvedCountsSince(_ context.Context, since time.Time) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int64)
	for _, r := range s.reports {
		if r.Status == model.StatusResolved && r.ResolvedAt != nil && !r.ResolvedAt.Before(since) {
			counts[r.SubmittedBy]++
		}
	}
	return counts, nil
}
