package appointment

import (
	"context"
	"sync"
)

// Locker guards the check-and-reserve critical section of one slot.
// redisclient.NewRedisSlotLocker provides a distributed implementation.
type Locker interface {
	WithSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// LocalSlotLocker serializes callers per slot key inside one process.
// Entries are reference counted and dropped once no caller holds them.
type LocalSlotLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewLocalSlotLocker() *LocalSlotLocker {
	return &LocalSlotLocker{locks: make(map[string]*keyLock)}
}

func (l *LocalSlotLocker) WithSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()
	defer func() {
		kl.mu.Unlock()
		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}()

	return fn(ctx)
}

// held reports how many keys currently have callers; used by tests.
func (l *LocalSlotLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
