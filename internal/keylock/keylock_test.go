// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package keylock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockSerializesSameKey(t *testing.T) {
	l := New()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for range 100 {
		wg.Go(func() {
			unlock, err := l.Lock(ctx, "same")
			if !assert.NoError(t, err) {
				return
			}
			counter++
			unlock()
		})
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
	assert.Empty(t, l.slots)
}

func TestLockIndependentKeys(t *testing.T) {
	l := New()
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestLockGivesUpWhenContextEnds(t *testing.T) {
	l := New()

	unlock, err := l.Lock(context.Background(), "voter")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "voter")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.Empty(t, l.slots)

	// The key is usable again after the abandoned wait.
	unlock, err = l.Lock(context.Background(), "voter")
	require.NoError(t, err)
	unlock()
}

func TestLockCancelledContext(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Lock(ctx, "voter")
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, l.slots)
}
