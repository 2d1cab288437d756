package janitor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSweeper struct {
	calls   atomic.Int32
	removed int
	err     error
	block   chan struct{}
}

func (f *fakeSweeper) Sweep(ctx context.Context) (int, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return f.removed, f.err
}

func TestNewRunnerRejectsBadSchedule(t *testing.T) {
	_, err := NewRunner(Config{Schedule: "every tuesday"}, &fakeSweeper{}, zap.NewNop())
	assert.Error(t, err)
}

func TestNewRunnerDefaults(t *testing.T) {
	r, err := NewRunner(Config{}, &fakeSweeper{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "@hourly", r.config.Schedule)
	assert.Equal(t, 10*time.Minute, r.config.Timeout)
}

func TestRunNow(t *testing.T) {
	s := &fakeSweeper{removed: 3}
	r, err := NewRunner(Config{}, s, zap.NewNop())
	require.NoError(t, err)

	n, err := r.RunNow()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	s.err = errors.New("disk gone")
	_, err = r.RunNow()
	assert.EqualError(t, err, "disk gone")
	assert.Equal(t, int32(2), s.calls.Load())
}

func TestRunNowSkipsOverlap(t *testing.T) {
	s := &fakeSweeper{block: make(chan struct{})}
	r, err := NewRunner(Config{}, s, zap.NewNop())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		r.RunNow()
		close(done)
	}()
	require.Eventually(t, func() bool { return s.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	n, err := r.RunNow()
	assert.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int32(1), s.calls.Load())

	close(s.block)
	<-done
}

func TestStartStop(t *testing.T) {
	s := &fakeSweeper{}
	r, err := NewRunner(Config{Schedule: "@every 1s"}, s, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, r.Start())
	assert.True(t, r.IsRunning())
	assert.Error(t, r.Start())

	assert.Eventually(t, func() bool { return s.calls.Load() > 0 }, 3*time.Second, 10*time.Millisecond)

	r.Stop()
	assert.False(t, r.IsRunning())
	r.Stop()
}
