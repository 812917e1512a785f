// Package keylock provides single-writer leases on dedup keys for stores without a
// uniqueness constraint.
package keylock

import (
	"context"
	"sync"

	"example.com/studysync/internal/domain"
)

// Locker grants non-blocking leases on keys. TryAcquire returns domain.ErrKeyLocked when
// another holder owns the key.
type Locker interface {
	TryAcquire(ctx context.Context, key string) (release func(), err error)
}

// Noop grants every lease. It is the default when the remote store enforces uniqueness.
type Noop struct{}

// TryAcquire implements Locker.
func (Noop) TryAcquire(context.Context, string) (func(), error) { return func() {}, nil }

// Local guards keys within one process.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocal constructs an empty Local locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

// TryAcquire implements Locker.
func (l *Local) TryAcquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, domain.ErrKeyLocked
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
