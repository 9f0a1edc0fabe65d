package appointment

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSlotLocker_SerializesSameKey(t *testing.T) {
	l := NewLocalSlotLocker()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithSlotLock(context.Background(), "doc-1|2026-10-15|09:00", func(context.Context) error {
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Zero(t, l.held())
}

func TestLocalSlotLocker_DistinctKeysDoNotBlock(t *testing.T) {
	l := NewLocalSlotLocker()

	err := l.WithSlotLock(context.Background(), "a", func(ctx context.Context) error {
		return l.WithSlotLock(ctx, "b", func(context.Context) error { return nil })
	})
	require.NoError(t, err)
	assert.Zero(t, l.held())
}

func TestLocalSlotLocker_CancelledContext(t *testing.T) {
	l := NewLocalSlotLocker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := l.WithSlotLock(ctx, "a", func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
