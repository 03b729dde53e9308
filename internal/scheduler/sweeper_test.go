package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stubRefunder struct {
	calls int32
	err   error
}

func (s *stubRefunder) RefundOverdueMilestones(ctx context.Context) (int, error) {
	atomic.AddInt32(&s.calls, 1)
	return 1, s.err
}

func TestSweeper_Run_SweepsUntilCancelled(t *testing.T) {
	refunder := &stubRefunder{}
	sweeper := NewSweeper(refunder, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&refunder.calls) >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("планировщик не остановился после отмены контекста")
	}
}

func TestSweeper_Run_ContinuesAfterError(t *testing.T) {
	refunder := &stubRefunder{err: errors.New("временный сбой хранилища")}
	sweeper := NewSweeper(refunder, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweeper.Run(ctx)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&refunder.calls) >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestNewSweeper_DefaultInterval(t *testing.T) {
	sweeper := NewSweeper(&stubRefunder{}, 0)
	assert.Equal(t, 10*time.Minute, sweeper.interval)
}
