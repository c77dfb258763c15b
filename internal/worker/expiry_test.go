package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeExpirer struct {
	mu    sync.Mutex
	calls []time.Duration
	n     int
	err   error
}

func (f *fakeExpirer) CancelExpired(ctx context.Context, olderThan time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, olderThan)
	return f.n, f.err
}

func (f *fakeExpirer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestExpirySweeper_SweepOnce(t *testing.T) {
	orders := &fakeExpirer{n: 3}
	sweeper := NewExpirySweeper(orders, 24*time.Hour, time.Minute, zaptest.NewLogger(t))

	n := sweeper.SweepOnce(context.Background())

	assert.Equal(t, 3, n)
	assert.Equal(t, []time.Duration{24 * time.Hour}, orders.calls)
}

func TestExpirySweeper_SweepOnce_ReportsPartialProgress(t *testing.T) {
	orders := &fakeExpirer{n: 1, err: errors.New("order 9: database is locked")}
	sweeper := NewExpirySweeper(orders, time.Hour, time.Minute, zaptest.NewLogger(t))

	assert.Equal(t, 1, sweeper.SweepOnce(context.Background()))
}

func TestExpirySweeper_Run(t *testing.T) {
	orders := &fakeExpirer{}
	sweeper := NewExpirySweeper(orders, time.Hour, 5*time.Millisecond, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return orders.callCount() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
