package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adrecon/backend/internal/domain/workflow"
)

type progressEntry struct {
	snap      workflow.ProgressSnapshot
	expiresAt time.Time
}

// InMemoryProgressStore implements workflow.ProgressStore and workflow.VersionBumper
// in process. State is not shared across instances; it backs inline mode and tests.
type InMemoryProgressStore struct {
	mu        sync.RWMutex
	entries   map[uuid.UUID]progressEntry
	versions  map[uuid.UUID]int64
	ttl       time.Duration
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryProgressStore creates the store and starts its expiry sweep
func NewInMemoryProgressStore(ttl time.Duration) *InMemoryProgressStore {
	if ttl <= 0 {
		ttl = DefaultProgressTTL
	}
	s := &InMemoryProgressStore{
		entries:  make(map[uuid.UUID]progressEntry),
		versions: make(map[uuid.UUID]int64),
		ttl:      ttl,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.cleanupLoop()
	return s
}

// SetProgress stores a copy of snap
func (s *InMemoryProgressStore) SetProgress(_ context.Context, snap *workflow.ProgressSnapshot) error {
	cp := *snap
	cp.Sources = make(map[workflow.SourceType]*workflow.SourceProgress, len(snap.Sources))
	for k, v := range snap.Sources {
		sp := *v
		cp.Sources[k] = &sp
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[snap.ExecutionID] = progressEntry{snap: cp, expiresAt: s.now().Add(s.ttl)}
	return nil
}

// GetProgress returns nil, nil for missing or expired snapshots
func (s *InMemoryProgressStore) GetProgress(_ context.Context, executionID uuid.UUID) (*workflow.ProgressSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[executionID]
	if !ok || s.now().After(e.expiresAt) {
		return nil, nil
	}
	snap := e.snap
	return &snap, nil
}

// BumpVersion increments the tenant's version
func (s *InMemoryProgressStore) BumpVersion(_ context.Context, tenantID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[tenantID]++
	return s.versions[tenantID], nil
}

// Close stops the sweep. Safe to call multiple times.
func (s *InMemoryProgressStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *InMemoryProgressStore) cleanupLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *InMemoryProgressStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
		}
	}
}

// Size returns the number of stored snapshots
func (s *InMemoryProgressStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var (
	_ workflow.ProgressStore = (*InMemoryProgressStore)(nil)
	_ workflow.VersionBumper = (*InMemoryProgressStore)(nil)
)
