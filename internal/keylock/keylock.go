// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package keylock serializes work per key inside one process.
package keylock

import (
	"context"
	"sync"
)

// Locker hands out one lock per key and forgets keys nobody holds or
// waits for.
type Locker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	held chan struct{}
	refs int
}

func New() *Locker {
	return &Locker{slots: make(map[string]*slot)}
}

// Lock waits until key is free or ctx is done. On success it returns the
// matching unlock func, which must be called exactly once.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{held: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.held <- struct{}{}:
		return func() {
			<-s.held
			l.release(key, s)
		}, nil
	case <-ctx.Done():
		l.release(key, s)
		return nil, ctx.Err()
	}
}

func (l *Locker) release(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
