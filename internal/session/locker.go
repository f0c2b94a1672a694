package session

import (
	"context"
	"sync"
)

type keyLock struct {
	held    bool
	waiters []chan struct{}
	refs    int
}

// Locker is a keyed mutex. Holders of different keys never block each
// other; waiters on the same key are granted the lock in arrival order.
// Entries are dropped once no goroutine holds or waits for a key.
type Locker struct {
	mu   sync.Mutex
	keys map[string]*keyLock
}

// NewLocker creates an empty Locker.
func NewLocker() *Locker {
	return &Locker{keys: make(map[string]*keyLock)}
}

// Lock blocks until key is free or ctx ends. The returned function releases
// the lock and must be called exactly once.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.keys[key]
	if !ok {
		kl = &keyLock{}
		l.keys[key] = kl
	}
	kl.refs++
	if !kl.held {
		kl.held = true
		l.mu.Unlock()
		return l.releaser(key, kl), nil
	}
	ready := make(chan struct{})
	kl.waiters = append(kl.waiters, ready)
	l.mu.Unlock()

	select {
	case <-ready:
		return l.releaser(key, kl), nil
	case <-ctx.Done():
	}

	l.mu.Lock()
	for i, ch := range kl.waiters {
		if ch == ready {
			kl.waiters = append(kl.waiters[:i], kl.waiters[i+1:]...)
			kl.refs--
			if kl.refs == 0 {
				delete(l.keys, key)
			}
			l.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	l.mu.Unlock()
	// The lock was handed over while ctx ended; pass it on.
	l.release(key, kl)
	return nil, ctx.Err()
}

func (l *Locker) releaser(key string, kl *keyLock) func() {
	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, kl) })
	}
}

func (l *Locker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(kl.waiters) > 0 {
		next := kl.waiters[0]
		kl.waiters = kl.waiters[1:]
		close(next)
	} else {
		kl.held = false
	}
	kl.refs--
	if kl.refs == 0 {
		delete(l.keys, key)
	}
}

// Len returns how many keys are currently held or awaited.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
