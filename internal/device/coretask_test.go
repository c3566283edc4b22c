package device

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCoreTaskRunnerRunsJobAndReturnsItsError(t *testing.T) {
	r := NewCoreTaskRunner()
	defer r.Stop()

	require.NoError(t, r.Run(context.Background(), func() error { return nil }))

	sentinel := errors.New("boom")
	err := r.Run(context.Background(), func() error { return sentinel })
	require.ErrorIs(t, err, sentinel)
}

func TestCoreTaskRunnerSerializesConcurrentCalls(t *testing.T) {
	r := NewCoreTaskRunner()
	defer r.Stop()

	var inFlight int32
	var sawOverlap int32
	const n = 20

	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func() {
			err := r.Run(context.Background(), func() error {
				if atomic.AddInt32(&inFlight, 1) > 1 {
					atomic.StoreInt32(&sawOverlap, 1)
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
			require.NoError(t, err)
			done <- struct{}{}
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}
	require.Equal(t, int32(0), atomic.LoadInt32(&sawOverlap))
}

func TestCoreTaskRunnerRunRespectsContextCancellation(t *testing.T) {
	r := NewCoreTaskRunner()
	defer r.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	block := make(chan struct{})
	defer close(block)
	go r.Run(context.Background(), func() error {
		<-block
		return nil
	})

	err := r.Run(ctx, func() error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestCoreTaskRunnerRunAfterStopReturnsCanceled(t *testing.T) {
	r := NewCoreTaskRunner()
	r.Stop()

	err := r.Run(context.Background(), func() error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}
