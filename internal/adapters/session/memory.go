package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/circle/pkg/metrics"
)

// Default store configuration constants.
const (
	defaultTTL           = 30 * time.Minute
	defaultSweepInterval = time.Minute
)

type entry struct {
	values   map[string][]byte
	lastSeen time.Time
}

// InMemoryStore implements Store with a map and a background sweeper.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*entry
	closed   bool

	ttl           time.Duration
	sweepInterval time.Duration
	onExpire      func(sid string)
	now           func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewInMemoryStore creates a store. Call Start to run the sweeper.
func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{
		sessions:      make(map[string]*entry),
		ttl:           defaultTTL,
		sweepInterval: defaultSweepInterval,
		now:           time.Now,
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the sweeper until ctx is canceled or Close is called.
func (s *InMemoryStore) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

func (s *InMemoryStore) Get(_ context.Context, sid, key string) ([]byte, bool) {
	s.mu.Lock()
	e, ok, expired := s.live(sid)
	var out []byte
	if ok {
		e.lastSeen = s.now()
		var v []byte
		if v, ok = e.values[key]; ok {
			out = make([]byte, len(v))
			copy(out, v)
		}
	}
	s.mu.Unlock()

	if expired {
		s.notifyExpired(sid)
	}
	return out, ok
}

func (s *InMemoryStore) Put(_ context.Context, sid, key string, value []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("put %q: %w", key, ErrClosed)
	}
	e, ok, expired := s.live(sid)
	if !ok {
		e = &entry{values: make(map[string][]byte)}
		s.sessions[sid] = e
		metrics.UpdateActiveSessions(len(s.sessions))
	}
	v := make([]byte, len(value))
	copy(v, value)
	e.values[key] = v
	e.lastSeen = s.now()
	s.mu.Unlock()

	if expired {
		s.notifyExpired(sid)
	}
	return nil
}

func (s *InMemoryStore) Touch(_ context.Context, sid string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("touch %q: %w", sid, ErrClosed)
	}
	e, ok, expired := s.live(sid)
	if !ok {
		e = &entry{values: make(map[string][]byte)}
		s.sessions[sid] = e
		metrics.UpdateActiveSessions(len(s.sessions))
	}
	e.lastSeen = s.now()
	s.mu.Unlock()

	if expired {
		s.notifyExpired(sid)
	}
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sid)
	metrics.UpdateActiveSessions(len(s.sessions))
}

func (s *InMemoryStore) Count(_ context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes every expired session and reports how many it removed.
func (s *InMemoryStore) Sweep(_ context.Context) int {
	s.mu.Lock()
	now := s.now()
	var expired []string
	for sid, e := range s.sessions {
		if now.Sub(e.lastSeen) >= s.ttl {
			expired = append(expired, sid)
			delete(s.sessions, sid)
		}
	}
	metrics.UpdateActiveSessions(len(s.sessions))
	s.mu.Unlock()

	for _, sid := range expired {
		s.notifyExpired(sid)
	}
	return len(expired)
}

// notifyExpired reports a removed session. Must be called without s.mu
// held; the hook may call back into the store.
func (s *InMemoryStore) notifyExpired(sid string) {
	metrics.RecordSessionExpired()
	if s.onExpire != nil {
		s.onExpire(sid)
	}
}

// Close stops the sweeper and rejects further writes.
func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.stopCh) })
	return nil
}

// live returns the session if it exists and has not expired. An expired
// session is dropped on the spot and reported through the third result.
// Must be called with s.mu held.
func (s *InMemoryStore) live(sid string) (e *entry, ok, expired bool) {
	e, ok = s.sessions[sid]
	if !ok {
		return nil, false, false
	}
	if s.now().Sub(e.lastSeen) >= s.ttl {
		delete(s.sessions, sid)
		metrics.UpdateActiveSessions(len(s.sessions))
		return nil, false, true
	}
	return e, true, false
}
