// Package dedupe tracks side-effect task keys so a replayed lifecycle action
// does not run the same effect twice in one process.
package dedupe

import (
	"context"
	"strings"
	"sync"
)

// Deduper records task keys for at-most-once effect scheduling.
type Deduper interface {
	// SeenAndRecord atomically checks whether key was seen and records it if not.
	// Returns true if key was already seen.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so the effect may be scheduled again, e.g. after the
	// task queue refused it.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// Key joins parts into a task key such as "notify:acknowledged:<reportId>".
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

type slot struct {
	key string
	gen uint64
}

// inMemoryDeduper keeps the most recent maxSize keys. Eviction is oldest first
// through a ring of slots; a slot whose generation no longer matches the map
// was unrecorded earlier and is skipped.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]uint64
	ring    []slot
	next    int
	gen     uint64
	maxSize int
}

// NewInMemoryDeduper creates an in-memory deduper. A non-positive max size
// keeps every key forever.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: 50_000}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]uint64)
	if d.maxSize > 0 {
		d.ring = make([]slot, d.maxSize)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}
	d.gen++
	if d.ring != nil {
		old := d.ring[d.next]
		if old.key != "" && d.seen[old.key] == old.gen {
			delete(d.seen, old.key)
		}
		d.ring[d.next] = slot{key: key, gen: d.gen}
		d.next = (d.next + 1) % len(d.ring)
	}
	d.seen[key] = d.gen
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	delete(d.seen, key)
	d.mu.Unlock()
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
