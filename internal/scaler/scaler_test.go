package scaler_test

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magickw/linkDAO-sub004/internal/events"
	"github.com/magickw/linkDAO-sub004/internal/logging"
	"github.com/magickw/linkDAO-sub004/internal/metrics"
	"github.com/magickw/linkDAO-sub004/internal/registry"
	"github.com/magickw/linkDAO-sub004/internal/scaler"
	"github.com/magickw/linkDAO-sub004/internal/types"
)

// stubSource returns a fixed snapshot; tests steer decisions through it.
type stubSource struct {
	snap metrics.Snapshot
}

func (s *stubSource) GetSnapshot() metrics.Snapshot { return s.snap }

type fixture struct {
	scaler   *scaler.Scaler
	registry *registry.Registry
	source   *stubSource
	clock    *clockwork.FakeClock
	events   chan types.Event
}

func testPolicy() types.AutoScalingPolicy {
	p := types.DefaultAutoScalingPolicy()
	p.Enabled = true
	p.MinInstances = 1
	p.MaxInstances = 5
	p.ScaleUpCooldown = 5 * time.Minute
	p.ScaleDownCooldown = 10 * time.Minute
	return p
}

func newFixture(t *testing.T, policy types.AutoScalingPolicy) *fixture {
	t.Helper()
	clk := clockwork.NewFakeClock()
	bus := events.New(logging.NewNop())
	t.Cleanup(bus.Close)
	reg := registry.New(30*time.Second, clk, bus, logging.NewNop())
	src := &stubSource{}
	ch := bus.Subscribe()
	t.Cleanup(func() { bus.Unsubscribe(ch) })
	return &fixture{
		scaler:   scaler.New(time.Minute, policy, reg, src, clk, bus, logging.NewNop()),
		registry: reg,
		source:   src,
		clock:    clk,
		events:   ch,
	}
}

func (f *fixture) addServers(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, f.registry.Add(types.ServerSpec{
			ID: string(rune('a' + i)), Host: "10.0.0.1", Port: 8080 + i, Weight: 1, MaxConns: 10,
		}))
	}
}

// nextScaleEvent skips lifecycle events from registry mutations.
func (f *fixture) nextScaleEvent() (types.Event, bool) {
	for {
		select {
		case ev := <-f.events:
			if ev.Type == types.EventScaleUpRequested || ev.Type == types.EventScaleDownRequested {
				return ev, true
			}
		default:
			return types.Event{}, false
		}
	}
}

func TestScaleUp(t *testing.T) {
	t.Run("slow responses trigger a scale-up", func(t *testing.T) {
		f := newFixture(t, testPolicy())
		f.addServers(t, 2)
		f.source.snap = metrics.Snapshot{AvgResponseTimeMs: 1500}

		f.scaler.Evaluate()

		ev, ok := f.nextScaleEvent()
		require.True(t, ok)
		assert.Equal(t, types.EventScaleUpRequested, ev.Type)
		assert.Equal(t, 2, ev.CurrentCount)
		assert.Equal(t, 3, ev.TargetCount)
	})

	t.Run("elevated error rate triggers a scale-up", func(t *testing.T) {
		f := newFixture(t, testPolicy())
		f.addServers(t, 2)
		f.source.snap = metrics.Snapshot{ErrorRate: 0.10}

		f.scaler.Evaluate()

		ev, ok := f.nextScaleEvent()
		require.True(t, ok)
		assert.Equal(t, types.EventScaleUpRequested, ev.Type)
	})

	t.Run("high utilization triggers a scale-up", func(t *testing.T) {
		f := newFixture(t, testPolicy())
		f.addServers(t, 1)
		for i := 0; i < 9; i++ {
			require.NoError(t, f.registry.Acquire("a"))
		}

		f.scaler.Evaluate()

		ev, ok := f.nextScaleEvent()
		require.True(t, ok)
		assert.Equal(t, types.EventScaleUpRequested, ev.Type)
	})

	t.Run("capped at max instances", func(t *testing.T) {
		f := newFixture(t, testPolicy())
		f.addServers(t, 5)
		f.source.snap = metrics.Snapshot{AvgResponseTimeMs: 1500}

		f.scaler.Evaluate()

		_, ok := f.nextScaleEvent()
		assert.False(t, ok)
	})

	t.Run("disabled policy never acts", func(t *testing.T) {
		p := testPolicy()
		p.Enabled = false
		f := newFixture(t, p)
		f.addServers(t, 2)
		f.source.snap = metrics.Snapshot{AvgResponseTimeMs: 1500}

		f.scaler.Evaluate()

		_, ok := f.nextScaleEvent()
		assert.False(t, ok)
	})
}

func TestScaleDown(t *testing.T) {
	t.Run("idle pool drains the least connected server", func(t *testing.T) {
		f := newFixture(t, testPolicy())
		f.addServers(t, 3)
		require.NoError(t, f.registry.Acquire("a"))
		require.NoError(t, f.registry.Acquire("b"))
		f.source.snap = metrics.Snapshot{AvgResponseTimeMs: 50}

		f.scaler.Evaluate()

		ev, ok := f.nextScaleEvent()
		require.True(t, ok)
		assert.Equal(t, types.EventScaleDownRequested, ev.Type)
		assert.Equal(t, "c", ev.ServerID)
		assert.Equal(t, 3, ev.CurrentCount)
		assert.Equal(t, 2, ev.TargetCount)

		// The victim drains rather than disappearing.
		draining := f.registry.List(types.ListFilter{Status: types.StatusDraining})
		require.Len(t, draining, 1)
		assert.Equal(t, "c", draining[0].ID)
	})

	t.Run("holds at min instances", func(t *testing.T) {
		f := newFixture(t, testPolicy())
		f.addServers(t, 1)
		f.source.snap = metrics.Snapshot{AvgResponseTimeMs: 50}

		f.scaler.Evaluate()

		_, ok := f.nextScaleEvent()
		assert.False(t, ok)
	})

	t.Run("slow responses block a scale-down", func(t *testing.T) {
		f := newFixture(t, testPolicy())
		f.addServers(t, 3)
		f.source.snap = metrics.Snapshot{AvgResponseTimeMs: 500}

		f.scaler.Evaluate()

		_, ok := f.nextScaleEvent()
		assert.False(t, ok)
	})
}

func TestCooldown(t *testing.T) {
	t.Run("suppresses actions until the cooldown elapses", func(t *testing.T) {
		f := newFixture(t, testPolicy())
		f.addServers(t, 2)
		f.source.snap = metrics.Snapshot{AvgResponseTimeMs: 1500}

		f.scaler.Evaluate()
		_, ok := f.nextScaleEvent()
		require.True(t, ok)

		f.clock.Advance(time.Minute)
		f.scaler.Evaluate()
		_, ok = f.nextScaleEvent()
		assert.False(t, ok, "still inside the cooldown")

		f.clock.Advance(4 * time.Minute)
		f.scaler.Evaluate()
		_, ok = f.nextScaleEvent()
		assert.True(t, ok)
	})

	t.Run("a scale-down blocks both directions for its cooldown", func(t *testing.T) {
		f := newFixture(t, testPolicy())
		f.addServers(t, 3)
		f.source.snap = metrics.Snapshot{AvgResponseTimeMs: 50}

		f.scaler.Evaluate()
		ev, ok := f.nextScaleEvent()
		require.True(t, ok)
		require.Equal(t, types.EventScaleDownRequested, ev.Type)

		// A load spike inside the scale-down cooldown is still suppressed.
		f.source.snap = metrics.Snapshot{AvgResponseTimeMs: 2000}
		f.clock.Advance(6 * time.Minute)
		f.scaler.Evaluate()
		_, ok = f.nextScaleEvent()
		assert.False(t, ok)

		f.clock.Advance(4 * time.Minute)
		f.scaler.Evaluate()
		_, ok = f.nextScaleEvent()
		assert.True(t, ok)
	})
}

func TestSetPolicy(t *testing.T) {
	f := newFixture(t, testPolicy())

	t.Run("rejects inconsistent policies", func(t *testing.T) {
		p := testPolicy()
		p.MaxInstances = 0
		var verr types.ValidationError
		err := f.scaler.SetPolicy(p)
		require.Error(t, err)
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("accepts and exposes a valid policy", func(t *testing.T) {
		p := testPolicy()
		p.MaxInstances = 8
		require.NoError(t, f.scaler.SetPolicy(p))
		assert.Equal(t, 8, f.scaler.Policy().MaxInstances)
	})
}
