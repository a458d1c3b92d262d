package genstore

import (
	"context"
	"sync"
	"time"
)

type genEntry struct {
	gen      uint64
	bumpedAt time.Time
}

// LocalOptions configure a LocalGenStore. The zero value disables the cleanup loop.
type LocalOptions struct {
	// CleanupInterval runs Cleanup(Retention) periodically when both are > 0.
	CleanupInterval time.Duration
	// Retention must exceed the longest response TTL: a pruned key reads as
	// generation 0 again.
	Retention time.Duration
	Now       func() time.Time // nil => time.Now
}

// LocalGenStore keeps generations in process memory.
type LocalGenStore struct {
	mu   sync.RWMutex
	gens map[string]genEntry
	now  func() time.Time

	ticker    *time.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ GenStore = (*LocalGenStore)(nil)

func NewLocal(opts LocalOptions) *LocalGenStore {
	s := &LocalGenStore{
		gens: make(map[string]genEntry),
		now:  opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.CleanupInterval > 0 && opts.Retention > 0 {
		s.ticker = time.NewTicker(opts.CleanupInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go s.loop(opts.Retention)
	}
	return s
}

func (s *LocalGenStore) loop(retention time.Duration) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ticker.C:
			s.Cleanup(retention)
		case <-s.stopCh:
			return
		}
	}
}

func (s *LocalGenStore) Snapshot(_ context.Context, k string) (uint64, error) {
	s.mu.RLock()
	e := s.gens[k]
	s.mu.RUnlock()
	return e.gen, nil
}

func (s *LocalGenStore) Bump(_ context.Context, k string) (uint64, error) {
	now := s.now()
	s.mu.Lock()
	e := s.gens[k]
	e.gen++
	e.bumpedAt = now
	s.gens[k] = e
	s.mu.Unlock()
	return e.gen, nil
}

// Len returns how many keys currently carry a generation.
func (s *LocalGenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.gens)
}

func (s *LocalGenStore) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := s.now().Add(-retention)

	s.mu.Lock()
	for k, e := range s.gens {
		if e.bumpedAt.Before(cutoff) {
			delete(s.gens, k)
		}
	}
	s.mu.Unlock()
}

func (s *LocalGenStore) Close(_ context.Context) error {
	s.closeOnce.Do(func() {
		if s.stopCh != nil {
			close(s.stopCh)
			s.ticker.Stop()
			s.wg.Wait()
		}
	})
	return nil
}
