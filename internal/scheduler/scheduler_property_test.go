//go:build property
// +build property

package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestThrottlerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("delay stays within bounds", prop.ForAll(
		func(lo, span int64, r float64) bool {
			minDelay := time.Duration(lo) * time.Millisecond
			maxDelay := minDelay + time.Duration(span)*time.Millisecond
			s := New(WithDelay(minDelay, maxDelay), WithRand(func() float64 { return r }))
			d := s.Delay()
			return d >= minDelay && d <= maxDelay
		},
		gen.Int64Range(0, 5000),
		gen.Int64Range(0, 5000),
		gen.Float64Range(0, 0.999999),
	))

	properties.Property("tasks run once each in submission order", prop.ForAll(
		func(n int) bool {
			rec := &sleepRecorder{}
			s := New(WithDelay(time.Millisecond, 3*time.Millisecond), WithSleep(rec.sleep))
			defer s.Close()

			var mu sync.Mutex
			var order []int
			for i := 0; i < n; i++ {
				if err := s.Add(func() {
					mu.Lock()
					order = append(order, i)
					mu.Unlock()
				}); err != nil {
					return false
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Wait(ctx); err != nil {
				return false
			}

			mu.Lock()
			defer mu.Unlock()
			if len(order) != n {
				return false
			}
			for i, v := range order {
				if v != i {
					return false
				}
			}
			// One pause follows every task.
			return len(rec.recorded()) == n
		},
		gen.IntRange(0, 40),
	))

	properties.Property("closed throttler rejects tasks", prop.ForAll(
		func(n int) bool {
			s := New(WithSleep(func(time.Duration) {}))
			s.Close()
			for i := 0; i < n; i++ {
				if s.Add(func() {}) != ErrClosed {
					return false
				}
			}
			return s.Len() == 0
		},
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}
