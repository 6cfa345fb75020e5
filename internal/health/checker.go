// Package health implements the active probe loop that flips servers
// between healthy and unhealthy.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/magickw/linkDAO-sub004/internal/events"
	"github.com/magickw/linkDAO-sub004/internal/registry"
	"github.com/magickw/linkDAO-sub004/internal/types"
)

// Checker probes every registered server on a fixed interval. Probes within
// a round run concurrently; one slow or failing probe never delays another.
// Probe failures stay internal: they drive status flips and events, and are
// never surfaced to request-path callers.
type Checker struct {
	interval     time.Duration
	timeout      time.Duration
	path         string
	expectStatus int

	client   *http.Client
	clock    clockwork.Clock
	registry *registry.Registry
	bus      *events.Bus
	logger   types.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// Config carries the probe parameters.
type Config struct {
	Interval       time.Duration
	Timeout        time.Duration
	Path           string
	ExpectedStatus int
}

// New creates a health checker. Zero config fields fall back to the stock
// 30s interval, 5s timeout, /health path and 200 expected status.
func New(cfg Config, reg *registry.Registry, clock clockwork.Clock, bus *events.Bus, logger types.Logger) *Checker {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Path == "" {
		cfg.Path = "/health"
	}
	if cfg.ExpectedStatus == 0 {
		cfg.ExpectedStatus = http.StatusOK
	}

	return &Checker{
		interval:     cfg.Interval,
		timeout:      cfg.Timeout,
		path:         cfg.Path,
		expectStatus: cfg.ExpectedStatus,
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		clock:    clock,
		registry: reg,
		bus:      bus,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the probe loop. It returns immediately.
func (c *Checker) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := c.clock.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.Chan():
				c.CheckAll(ctx)
			}
		}
	}()
}

// Stop terminates the probe loop and waits for in-flight probes.
func (c *Checker) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// CheckAll probes every registered server once, concurrently. Draining
// servers are skipped; they are already leaving the pool.
func (c *Checker) CheckAll(ctx context.Context) {
	servers := c.registry.List(types.ListFilter{})

	var round sync.WaitGroup
	for _, srv := range servers {
		if srv.Status == types.StatusDraining {
			continue
		}
		round.Add(1)
		go func(srv types.ServerInstance) {
			defer round.Done()
			c.probe(ctx, srv)
		}(srv)
	}
	round.Wait()
}

// probe issues one health request and folds the result into the registry.
func (c *Checker) probe(ctx context.Context, srv types.ServerInstance) {
	url := fmt.Sprintf("http://%s%s", srv.Address(), c.path)

	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		c.recordFailure(srv.ID, err.Error())
		return
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.recordFailure(srv.ID, err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != c.expectStatus {
		c.recordFailure(srv.ID, fmt.Sprintf("unexpected status: %d", resp.StatusCode))
		return
	}

	rttMs := float64(time.Since(start).Milliseconds())
	recovered, err := c.registry.RecordProbeSuccess(srv.ID, rttMs)
	if err != nil {
		return // purged mid-round
	}
	c.logger.Debug("health probe passed",
		"server_id", srv.ID,
		"url", url,
		"rtt_ms", rttMs,
	)
	if recovered {
		c.logger.Info("server recovered", "server_id", srv.ID)
		c.bus.Publish(types.Event{Type: types.EventServerRecovered, ServerID: srv.ID})
	}
}

func (c *Checker) recordFailure(id, reason string) {
	flipped, err := c.registry.RecordProbeFailure(id)
	if err != nil {
		return
	}
	if flipped {
		c.logger.Warn("server unhealthy",
			"server_id", id,
			"reason", reason,
		)
		c.bus.Publish(types.Event{Type: types.EventServerUnhealthy, ServerID: id, Reason: reason})
	} else {
		c.logger.Debug("health probe failed",
			"server_id", id,
			"reason", reason,
		)
	}
}
