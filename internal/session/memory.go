package session

import (
	"context"
	"sync"
	"time"

	"github.com/ytget/yt-saver-bot/internal/model"
)

type item struct {
	sess    model.Session
	touched time.Time
}

// MemoryStore evicts sessions idle for longer than ttl and, once more than
// max sessions are held, the least recently touched ones. Sessions with a
// download in flight live for the downloading ttl and are never evicted for
// capacity.
type MemoryStore struct {
	mu    sync.Mutex
	items map[int64]*item
	ttl   time.Duration
	busy  time.Duration
	max   int
	now   func() time.Time
}

func NewMemoryStore(ttl time.Duration, max int) *MemoryStore {
	return &MemoryStore{
		items: make(map[int64]*item),
		ttl:   ttl,
		busy:  DownloadingTTL,
		max:   max,
		now:   time.Now,
	}
}

// SetDownloadingTTL overrides DownloadingTTL.
func (m *MemoryStore) SetDownloadingTTL(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = d
}

func (m *MemoryStore) Load(_ context.Context, id int64) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	if m.expired(it) {
		delete(m.items, id)
		return nil, ErrNotFound
	}
	s := it.sess
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[s.ID] = &item{sess: *s, touched: m.now()}
	if m.max > 0 && len(m.items) > m.max {
		m.evictOldest(len(m.items) - m.max)
	}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

// Len returns the number of held sessions, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Sweep drops expired sessions and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, it := range m.items {
		if m.expired(it) {
			delete(m.items, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (m *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

func (m *MemoryStore) expired(it *item) bool {
	ttl := lifetime(&it.sess, m.ttl, m.busy)
	return ttl > 0 && m.now().Sub(it.touched) > ttl
}

// evictOldest removes the n least recently touched sessions.
func (m *MemoryStore) evictOldest(n int) {
	for ; n > 0; n-- {
		var (
			oldestID int64
			oldest   time.Time
			found    bool
		)
		for id, it := range m.items {
			if downloading(&it.sess) {
				continue
			}
			if !found || it.touched.Before(oldest) {
				oldestID, oldest, found = id, it.touched, true
			}
		}
		if !found {
			return
		}
		delete(m.items, oldestID)
	}
}
