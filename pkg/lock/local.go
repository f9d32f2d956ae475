package lock

import (
	"context"
	"fmt"
	"sync"
)

// LocalLocker is an in-process lock table guarded by a mutex
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]uint64
	seq  uint64
}

// NewLocalLocker creates an empty lock table
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]uint64)}
}

// TryAcquire implements Locker
func (l *LocalLocker) TryAcquire(ctx context.Context, key string) (ReleaseFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, fmt.Errorf("%s: %w", key, ErrLocked)
	}
	l.seq++
	token := l.seq
	l.held[key] = token

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.held[key] == token {
				delete(l.held, key)
			}
		})
	}, nil
}

// Held implements Locker
func (l *LocalLocker) Held(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok, nil
}

// Len returns the number of held keys
func (l *LocalLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}
