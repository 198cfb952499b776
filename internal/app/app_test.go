package app

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycle_StartThenStop(t *testing.T) {
	var l lifecycle
	var started, stopped int

	running, err := l.start(func() error { started++; return nil })
	require.NoError(t, err)
	assert.True(t, running)

	l.stop(func() { stopped++ })
	l.stop(func() { stopped++ })

	assert.Equal(t, 1, started)
	assert.Equal(t, 1, stopped)
}

func TestLifecycle_StopBeforeStart(t *testing.T) {
	var l lifecycle
	var calls int

	l.stop(func() { calls++ })
	running, err := l.start(func() error { calls++; return nil })

	require.NoError(t, err)
	assert.False(t, running)
	assert.Zero(t, calls)
}

func TestLifecycle_FailedStartIsNotStopped(t *testing.T) {
	var l lifecycle
	errBoom := errors.New("boom")

	running, err := l.start(func() error { return errBoom })
	require.ErrorIs(t, err, errBoom)
	assert.False(t, running)

	stopped := false
	l.stop(func() { stopped = true })
	assert.False(t, stopped)
}

func TestLifecycle_ConcurrentStartAndStop(t *testing.T) {
	for range 50 {
		var (
			l                lifecycle
			mu               sync.Mutex
			started, stopped bool
			wg               sync.WaitGroup
		)

		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = l.start(func() error {
				mu.Lock()
				started = true
				mu.Unlock()
				return nil
			})
		}()
		go func() {
			defer wg.Done()
			l.stop(func() {
				mu.Lock()
				stopped = true
				mu.Unlock()
			})
		}()
		wg.Wait()

		// Workers that were started are always stopped.
		assert.Equal(t, started, stopped)
	}
}
