package health_test

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magickw/linkDAO-sub004/internal/events"
	"github.com/magickw/linkDAO-sub004/internal/health"
	"github.com/magickw/linkDAO-sub004/internal/logging"
	"github.com/magickw/linkDAO-sub004/internal/registry"
	"github.com/magickw/linkDAO-sub004/internal/types"
)

type fixture struct {
	registry *registry.Registry
	checker  *health.Checker
	bus      *events.Bus
	clock    *clockwork.FakeClock
}

func newFixture(t *testing.T, cfg health.Config) *fixture {
	t.Helper()
	clk := clockwork.NewFakeClock()
	bus := events.New(logging.NewNop())
	t.Cleanup(bus.Close)
	reg := registry.New(30*time.Second, clk, bus, logging.NewNop())
	return &fixture{
		registry: reg,
		checker:  health.New(cfg, reg, clk, bus, logging.NewNop()),
		bus:      bus,
		clock:    clk,
	}
}

// register points a pool entry at the given test server.
func (f *fixture) register(t *testing.T, id string, ts *httptest.Server) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(ts.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	require.NoError(t, f.registry.Add(types.ServerSpec{
		ID: id, Host: host, Port: port, Weight: 1, MaxConns: 100,
	}))
}

func (f *fixture) status(id string) types.ServerStatus {
	for _, srv := range f.registry.List(types.ListFilter{}) {
		if srv.ID == id {
			return srv.Status
		}
	}
	return ""
}

func TestCheckAll(t *testing.T) {
	t.Run("passing probe keeps the server healthy", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/health", r.URL.Path)
			assert.Equal(t, http.MethodGet, r.Method)
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		f := newFixture(t, health.Config{})
		f.register(t, "a", ts)

		f.checker.CheckAll(context.Background())
		assert.Equal(t, types.StatusHealthy, f.status("a"))
	})

	t.Run("unexpected status marks the server unhealthy", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer ts.Close()

		f := newFixture(t, health.Config{})
		f.register(t, "a", ts)
		ch := f.bus.Subscribe()
		defer f.bus.Unsubscribe(ch)

		f.checker.CheckAll(context.Background())
		assert.Equal(t, types.StatusUnhealthy, f.status("a"))

		select {
		case ev := <-ch:
			assert.Equal(t, types.EventServerUnhealthy, ev.Type)
			assert.Equal(t, "a", ev.ServerID)
			assert.Contains(t, ev.Reason, "503")
		default:
			t.Fatal("expected an unhealthy event")
		}
	})

	t.Run("connection refusal marks the server unhealthy", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		f := newFixture(t, health.Config{})
		f.register(t, "a", ts)
		ts.Close()

		f.checker.CheckAll(context.Background())
		assert.Equal(t, types.StatusUnhealthy, f.status("a"))
	})

	t.Run("recovery flips the server back and emits once", func(t *testing.T) {
		var healthy atomic.Bool
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if healthy.Load() {
				w.WriteHeader(http.StatusOK)
			} else {
				w.WriteHeader(http.StatusInternalServerError)
			}
		}))
		defer ts.Close()

		f := newFixture(t, health.Config{})
		f.register(t, "a", ts)

		f.checker.CheckAll(context.Background())
		require.Equal(t, types.StatusUnhealthy, f.status("a"))

		ch := f.bus.Subscribe()
		defer f.bus.Unsubscribe(ch)
		healthy.Store(true)

		f.checker.CheckAll(context.Background())
		assert.Equal(t, types.StatusHealthy, f.status("a"))

		select {
		case ev := <-ch:
			assert.Equal(t, types.EventServerRecovered, ev.Type)
		default:
			t.Fatal("expected a recovery event")
		}

		// A second passing round stays quiet.
		f.checker.CheckAll(context.Background())
		select {
		case ev := <-ch:
			t.Fatalf("unexpected event %s", ev.Type)
		default:
		}
	})

	t.Run("draining servers are not probed", func(t *testing.T) {
		var hits atomic.Int64
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		f := newFixture(t, health.Config{})
		f.register(t, "a", ts)
		require.NoError(t, f.registry.Remove("a"))

		f.checker.CheckAll(context.Background())
		assert.Zero(t, hits.Load())
	})

	t.Run("custom path and expected status", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/ready" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		}))
		defer ts.Close()

		f := newFixture(t, health.Config{Path: "/ready", ExpectedStatus: http.StatusNoContent})
		f.register(t, "a", ts)

		f.checker.CheckAll(context.Background())
		assert.Equal(t, types.StatusHealthy, f.status("a"))
	})
}

func TestProbeLoop(t *testing.T) {
	var hits atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	f := newFixture(t, health.Config{Interval: 30 * time.Second})
	f.register(t, "a", ts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.checker.Start(ctx)
	defer f.checker.Stop()

	f.clock.BlockUntil(1)
	f.clock.Advance(30 * time.Second)
	require.Eventually(t, func() bool {
		return hits.Load() >= 1
	}, time.Second, 10*time.Millisecond)
}
