package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func waitIdle(t *testing.T, s *Throttler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
}

func TestThrottlerRunsTasksInOrder(t *testing.T) {
	rec := &sleepRecorder{}
	s := New(WithDelay(10*time.Millisecond, 30*time.Millisecond), WithSleep(rec.sleep))

	var mu sync.Mutex
	var order []string
	add := func(name string) {
		require.NoError(t, s.Add(func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}))
	}

	add("A")
	add("B")
	add("C")
	waitIdle(t, s)

	assert.Equal(t, []string{"A", "B", "C"}, order)

	delays := rec.recorded()
	require.Len(t, delays, 3)
	for _, d := range delays {
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 30*time.Millisecond)
	}
	assert.False(t, s.Draining())
	assert.Equal(t, 0, s.Len())
}

func TestThrottlerRestartsAfterDrain(t *testing.T) {
	s := New(WithDelay(0, 0))

	var count atomic.Int32
	require.NoError(t, s.Add(func() { count.Add(1) }))
	waitIdle(t, s)
	assert.Equal(t, int32(1), count.Load())

	require.NoError(t, s.Add(func() { count.Add(1) }))
	waitIdle(t, s)
	assert.Equal(t, int32(2), count.Load())
}

func TestThrottlerSingleDrainUnderConcurrentAdds(t *testing.T) {
	s := New(WithDelay(0, 0))

	var running atomic.Int32
	var overlapped atomic.Bool
	var done atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Add(func() {
				if running.Add(1) > 1 {
					overlapped.Store(true)
				}
				time.Sleep(100 * time.Microsecond)
				running.Add(-1)
				done.Add(1)
			})
		}()
	}
	wg.Wait()

	// Every Add happened before this Wait, so idle means all tasks ran.
	waitIdle(t, s)
	assert.False(t, overlapped.Load())
	assert.Equal(t, int32(50), done.Load())
}

func TestThrottlerDelayBounds(t *testing.T) {
	tests := []struct {
		name     string
		random   float64
		expected time.Duration
	}{
		{"lower bound", 0, time.Second},
		{"midpoint", 0.5, 2 * time.Second},
		{"near upper bound", 0.999, time.Second + time.Duration(0.999*float64(2*time.Second))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(WithRand(func() float64 { return tt.random }))
			assert.Equal(t, tt.expected, s.Delay())
		})
	}

	lo, hi := New().Bounds()
	assert.Equal(t, DefaultMinDelay, lo)
	assert.Equal(t, DefaultMaxDelay, hi)
}

func TestWithDelayNormalizesRange(t *testing.T) {
	s := New(WithDelay(-time.Second, -2*time.Second))
	lo, hi := s.Bounds()
	assert.Equal(t, time.Duration(0), lo)
	assert.Equal(t, time.Duration(0), hi)
}

func TestThrottlerClose(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s := New(WithDelay(time.Hour, time.Hour))

	var ran atomic.Int32
	require.NoError(t, s.Add(func() {
		ran.Add(1)
		close(started)
		<-release
	}))
	require.NoError(t, s.Add(func() { ran.Add(1) }))

	<-started
	s.Close()
	close(release)
	waitIdle(t, s)

	assert.Equal(t, int32(1), ran.Load())
	assert.ErrorIs(t, s.Add(func() {}), ErrClosed)
}

func TestWaitHonoursContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	s := New(WithDelay(0, 0))
	require.NoError(t, s.Add(func() { <-block }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)
}
