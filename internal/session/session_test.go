package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRender(t *testing.T) {
	turns := []Turn{
		{UserMessage: "u1", AgentReply: "r1"},
		{UserMessage: "u2", AgentReply: "r2"},
	}
	assert.Equal(t, "Usuário: u1\nAssistente: r1\nUsuário: u2\nAssistente: r2\n", Render(turns, 0))

	assert.Equal(t, "Usuário: u2\nAssistente: r2\n", Render(turns, 1))
	assert.Equal(t, "Usuário: pending\n", Render([]Turn{{UserMessage: "pending"}}, 0))
	assert.Empty(t, Render(nil, 5))
}

// storeContract runs the behavior every Store must provide.
func storeContract(t *testing.T, newStore func(opts ...Option) Store) {
	ctx := context.Background()

	t.Run("render fidelity", func(t *testing.T) {
		s := newStore()
		require.NoError(t, s.AppendTurn(ctx, "s1", "u1", "r1"))
		require.NoError(t, s.AppendTurn(ctx, "s1", "u2", "r2"))

		got, err := s.RenderContext(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "Usuário: u1\nAssistente: r1\nUsuário: u2\nAssistente: r2\n", got)
	})

	t.Run("get or create is lazy and idempotent", func(t *testing.T) {
		s := newStore()
		first, err := s.GetOrCreate(ctx, "fresh")
		require.NoError(t, err)
		assert.Empty(t, first.Turns)

		require.NoError(t, s.AppendTurn(ctx, "fresh", "oi", "olá"))
		again, err := s.GetOrCreate(ctx, "fresh")
		require.NoError(t, err)
		require.Len(t, again.Turns, 1)
		assert.Equal(t, "oi", again.Turns[0].UserMessage)
		assert.True(t, !again.CreatedAt.After(first.CreatedAt))
	})

	t.Run("sessions are isolated", func(t *testing.T) {
		s := newStore()
		require.NoError(t, s.AppendTurn(ctx, "a", "from a", "reply a"))
		require.NoError(t, s.AppendTurn(ctx, "b", "from b", "reply b"))

		got, err := s.RenderContext(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "Usuário: from a\nAssistente: reply a\n", got)
	})

	t.Run("unknown session renders empty", func(t *testing.T) {
		s := newStore()
		got, err := s.RenderContext(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("render is bounded", func(t *testing.T) {
		s := newStore(WithMaxContextTurns(2))
		for i := 1; i <= 5; i++ {
			require.NoError(t, s.AppendTurn(ctx, "long", fmt.Sprintf("u%d", i), fmt.Sprintf("r%d", i)))
		}
		got, err := s.RenderContext(ctx, "long")
		require.NoError(t, err)
		assert.Equal(t, "Usuário: u4\nAssistente: r4\nUsuário: u5\nAssistente: r5\n", got)
	})

	t.Run("empty id", func(t *testing.T) {
		s := newStore()
		_, err := s.GetOrCreate(ctx, " ")
		assert.ErrorIs(t, err, ErrInvalidID)
		assert.ErrorIs(t, s.AppendTurn(ctx, "", "u", "r"), ErrInvalidID)
	})

	t.Run("concurrent appends keep every turn", func(t *testing.T) {
		s := newStore()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, s.AppendTurn(ctx, "busy", fmt.Sprintf("u%d", i), "r"))
			}(i)
		}
		wg.Wait()

		sess, err := s.GetOrCreate(ctx, "busy")
		require.NoError(t, err)
		assert.Len(t, sess.Turns, 50)
	})
}

func TestMemoryStore_Contract(t *testing.T) {
	storeContract(t, func(opts ...Option) Store { return NewMemoryStore(opts...) })
}

func TestRedisStore_Contract(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	storeContract(t, func(opts ...Option) Store {
		mr.FlushAll()
		return NewRedisStore(client, opts...)
	})
}

func TestMemoryStore_SweepEvictsIdleSessions(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(WithTTL(10*time.Minute), WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, s.AppendTurn(ctx, "old", "u", "r"))
	clock.Advance(6 * time.Minute)
	require.NoError(t, s.AppendTurn(ctx, "new", "u", "r"))
	clock.Advance(6 * time.Minute)

	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 1, s.Len())

	got, err := s.RenderContext(ctx, "new")
	require.NoError(t, err)
	assert.NotEmpty(t, got)

	got, err = s.RenderContext(ctx, "old")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStore_ExpiredSessionStartsFresh(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(WithTTL(time.Minute), WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, s.AppendTurn(ctx, "s", "u", "r"))
	clock.Advance(2 * time.Minute)

	got, err := s.RenderContext(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, got)

	sess, err := s.GetOrCreate(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, sess.Turns)
}

func TestMemoryStore_LRUCap(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(WithMaxSessions(2), WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, s.AppendTurn(ctx, "a", "u", "r"))
	require.NoError(t, s.AppendTurn(ctx, "b", "u", "r"))
	// Touch a so b becomes least recently used.
	_, err := s.GetOrCreate(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, s.AppendTurn(ctx, "c", "u", "r"))

	assert.Equal(t, 2, s.Len())
	got, err := s.RenderContext(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, got)
	got, err = s.RenderContext(ctx, "a")
	require.NoError(t, err)
	assert.NotEmpty(t, got)
}

func TestMemoryStore_MaxTurnsTrimsOldest(t *testing.T) {
	s := NewMemoryStore(WithMaxTurns(3))
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.AppendTurn(ctx, "s", fmt.Sprintf("u%d", i), ""))
	}
	sess, err := s.GetOrCreate(ctx, "s")
	require.NoError(t, err)
	require.Len(t, sess.Turns, 3)
	assert.Equal(t, "u3", sess.Turns[0].UserMessage)
}

func TestMemoryStore_RunStopsWithContext(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(WithTTL(time.Minute), WithClock(clock.Now))
	require.NoError(t, s.AppendTurn(context.Background(), "s", "u", "r"))
	clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRedisStore_AppendSlidesTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewRedisStore(client, WithTTL(10*time.Minute))
	ctx := context.Background()

	require.NoError(t, s.AppendTurn(ctx, "s", "u1", "r1"))
	assert.Equal(t, 10*time.Minute, mr.TTL(turnsKey("s")))

	mr.FastForward(8 * time.Minute)
	require.NoError(t, s.AppendTurn(ctx, "s", "u2", "r2"))
	assert.Equal(t, 10*time.Minute, mr.TTL(turnsKey("s")))

	mr.FastForward(11 * time.Minute)
	got, err := s.RenderContext(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, got, "idle session expires in redis")
}
