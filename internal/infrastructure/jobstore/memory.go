package jobstore

import (
	"context"
	"sync"
	"time"

	"koru/internal/domain/ingest"
)

// MemoryGroupStore is the in-process GroupStore used when the worker runs
// without Redis, and in tests.
type MemoryGroupStore struct {
	mu        sync.Mutex
	groups    map[string]*memoryGroup
	retention time.Duration
	now       func() time.Time
}

type memoryGroup struct {
	progress  ingest.GroupProgress
	expiresAt time.Time
}

var _ GroupStore = (*MemoryGroupStore)(nil)

func NewMemoryGroupStore(retention time.Duration) *MemoryGroupStore {
	return &MemoryGroupStore{
		groups:    make(map[string]*memoryGroup),
		retention: retention,
		now:       time.Now,
	}
}

func (s *MemoryGroupStore) Create(_ context.Context, groupID string, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[groupID] = &memoryGroup{
		progress:  ingest.GroupProgress{Total: total},
		expiresAt: s.now().Add(s.retention),
	}
	return nil
}

func (s *MemoryGroupStore) MarkDone(_ context.Context, groupID string, taskErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.live(groupID)
	if g == nil {
		// Unknown or expired group: nothing left to report on.
		return nil
	}
	if taskErr != nil {
		g.progress.Failed++
	} else {
		g.progress.Completed++
	}
	g.expiresAt = s.now().Add(s.retention)
	return nil
}

func (s *MemoryGroupStore) Status(_ context.Context, groupID string) (*ingest.GroupProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.live(groupID)
	if g == nil {
		return nil, nil
	}
	p := g.progress
	return &p, nil
}

// live returns the group or nil if it is missing or expired. Caller holds mu.
func (s *MemoryGroupStore) live(groupID string) *memoryGroup {
	g, ok := s.groups[groupID]
	if !ok {
		return nil
	}
	if !s.now().Before(g.expiresAt) {
		delete(s.groups, groupID)
		return nil
	}
	return g
}
