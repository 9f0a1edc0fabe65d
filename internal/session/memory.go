package session

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a bounded in-process session cache. Sessions idle for longer
// than the TTL are dropped by Sweep, and the least recently used session is
// evicted when the capacity cap is reached.
type MemoryStore struct {
	opts options

	mu    sync.Mutex
	lru   *list.List // front = most recently used
	items map[string]*list.Element
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{
		opts:  o,
		lru:   list.New(),
		items: make(map[string]*list.Element),
	}
}

func (s *MemoryStore) GetOrCreate(_ context.Context, id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return copySession(s.touch(id)), nil
}

func (s *MemoryStore) AppendTurn(_ context.Context, id, userMessage, agentReply string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.touch(id)
	sess.Turns = append(sess.Turns, Turn{
		UserMessage: userMessage,
		AgentReply:  agentReply,
		At:          sess.LastSeen,
	})
	if over := len(sess.Turns) - s.opts.maxTurns; over > 0 {
		sess.Turns = append([]Turn(nil), sess.Turns[over:]...)
	}
	return nil
}

func (s *MemoryStore) RenderContext(_ context.Context, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[id]
	if !ok || s.expired(el.Value.(*Session), s.opts.now()) {
		return "", nil
	}
	return Render(el.Value.(*Session).Turns, s.opts.maxContextTurns), nil
}

// Sweep removes every session idle for longer than the TTL and returns how
// many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.now()
	removed := 0
	// Least recently used sessions sit at the back.
	for el := s.lru.Back(); el != nil; {
		sess := el.Value.(*Session)
		if !s.expired(sess, now) {
			break
		}
		prev := el.Prev()
		s.remove(el)
		removed++
		el = prev
	}

	if removed > 0 {
		s.opts.metrics.ObserveSessionsEvicted(removed)
		s.opts.logger.Debug().Int("removed", removed).Int("remaining", s.lru.Len()).Msg("expired sessions swept")
	}
	return removed
}

// Run sweeps on every tick until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Len reports the number of live sessions, expired or not yet swept included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// touch returns the session for id, creating it if needed or if the stored
// one has expired, and marks it most recently used. Callers hold s.mu.
func (s *MemoryStore) touch(id string) *Session {
	now := s.opts.now()

	if el, ok := s.items[id]; ok {
		sess := el.Value.(*Session)
		if !s.expired(sess, now) {
			sess.LastSeen = now
			s.lru.MoveToFront(el)
			return sess
		}
		s.remove(el)
		s.opts.metrics.ObserveSessionsEvicted(1)
	}

	for s.lru.Len() >= s.opts.maxSessions {
		oldest := s.lru.Back()
		s.opts.logger.Debug().Str("session_id", oldest.Value.(*Session).ID).Msg("evicting least recently used session")
		s.remove(oldest)
		s.opts.metrics.ObserveSessionsEvicted(1)
	}

	sess := &Session{ID: id, CreatedAt: now, LastSeen: now}
	s.items[id] = s.lru.PushFront(sess)
	return sess
}

func (s *MemoryStore) expired(sess *Session, now time.Time) bool {
	return now.Sub(sess.LastSeen) > s.opts.ttl
}

func (s *MemoryStore) remove(el *list.Element) {
	sess := s.lru.Remove(el).(*Session)
	delete(s.items, sess.ID)
}

func copySession(sess *Session) *Session {
	out := *sess
	out.Turns = append([]Turn(nil), sess.Turns...)
	return &out
}
