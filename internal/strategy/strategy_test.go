package strategy_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magickw/linkDAO-sub004/internal/logging"
	"github.com/magickw/linkDAO-sub004/internal/strategy"
	"github.com/magickw/linkDAO-sub004/internal/types"
)

func makeServers(count int) []types.ServerInstance {
	servers := make([]types.ServerInstance, count)
	for i := 0; i < count; i++ {
		servers[i] = types.ServerInstance{
			ID:     fmt.Sprintf("server-%d", i+1),
			Host:   fmt.Sprintf("10.0.0.%d", i+1),
			Port:   8080,
			Weight: 1,
			Status: types.StatusHealthy,
		}
	}
	return servers
}

func TestRoundRobin(t *testing.T) {
	t.Run("distributes one selection per server per cycle", func(t *testing.T) {
		rr := strategy.NewRoundRobin()
		servers := makeServers(3)

		counts := make(map[string]int)
		for i := 0; i < 6; i++ {
			selected, err := rr.Select(servers, "")
			require.NoError(t, err)
			assert.Equal(t, servers[i%3].ID, selected.ID)
			counts[selected.ID]++
		}
		for _, s := range servers {
			assert.Equal(t, 2, counts[s.ID])
		}
	})

	t.Run("cursor advances across shrinking sets", func(t *testing.T) {
		rr := strategy.NewRoundRobin()
		servers := makeServers(3)

		_, err := rr.Select(servers, "")
		require.NoError(t, err)

		// Set shrinks; selection still succeeds deterministically.
		selected, err := rr.Select(servers[:2], "")
		require.NoError(t, err)
		assert.Equal(t, "server-2", selected.ID)
	})
}

func TestWeightedRoundRobin(t *testing.T) {
	t.Run("respects 3:1 weights over multiples of four", func(t *testing.T) {
		wrr := strategy.NewWeightedRoundRobin()
		servers := makeServers(2)
		servers[0].Weight = 3
		servers[1].Weight = 1

		counts := make(map[string]int)
		for i := 0; i < 8; i++ {
			selected, err := wrr.Select(servers, "")
			require.NoError(t, err)
			counts[selected.ID]++
		}
		assert.Equal(t, 6, counts["server-1"])
		assert.Equal(t, 2, counts["server-2"])
	})

	t.Run("weight zero excludes a server", func(t *testing.T) {
		wrr := strategy.NewWeightedRoundRobin()
		servers := makeServers(2)
		servers[0].Weight = 0

		for i := 0; i < 4; i++ {
			selected, err := wrr.Select(servers, "")
			require.NoError(t, err)
			assert.Equal(t, "server-2", selected.ID)
		}
	})

	t.Run("all weights zero means no server", func(t *testing.T) {
		wrr := strategy.NewWeightedRoundRobin()
		servers := makeServers(1)
		servers[0].Weight = 0

		_, err := wrr.Select(servers, "")
		assert.ErrorIs(t, err, types.ErrNoServerAvailable)
	})
}

func TestLeastConnections(t *testing.T) {
	t.Run("picks the least loaded server", func(t *testing.T) {
		lc := strategy.NewLeastConnections()
		servers := makeServers(2)
		servers[0].ActiveConns = 2
		servers[1].ActiveConns = 0

		selected, err := lc.Select(servers, "")
		require.NoError(t, err)
		assert.Equal(t, "server-2", selected.ID)
	})

	t.Run("ties break by registry order", func(t *testing.T) {
		lc := strategy.NewLeastConnections()
		servers := makeServers(3)

		for i := 0; i < 3; i++ {
			selected, err := lc.Select(servers, "")
			require.NoError(t, err)
			assert.Equal(t, "server-1", selected.ID)
		}
	})
}

func TestLeastResponseTime(t *testing.T) {
	lrt := strategy.NewLeastResponseTime()
	servers := makeServers(3)
	servers[0].ResponseTimeMs = 300
	servers[1].ResponseTimeMs = 50
	servers[2].ResponseTimeMs = 120

	selected, err := lrt.Select(servers, "")
	require.NoError(t, err)
	assert.Equal(t, "server-2", selected.ID)
}

func TestIPHash(t *testing.T) {
	t.Run("same key maps to same server for a fixed set", func(t *testing.T) {
		ih := strategy.NewIPHash()
		servers := makeServers(4)

		first, err := ih.Select(servers, "192.168.1.42")
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			selected, err := ih.Select(servers, "192.168.1.42")
			require.NoError(t, err)
			assert.Equal(t, first.ID, selected.ID)
		}
	})

	t.Run("empty key falls back to round robin", func(t *testing.T) {
		ih := strategy.NewIPHash()
		servers := makeServers(2)

		a, err := ih.Select(servers, "")
		require.NoError(t, err)
		b, err := ih.Select(servers, "")
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
	})
}

func TestResourceScore(t *testing.T) {
	t.Run("prefers idle fast servers", func(t *testing.T) {
		rs := strategy.NewResourceScore(strategy.DefaultScoreWeights())
		servers := makeServers(2)
		servers[0].MaxConns = 10
		servers[0].ActiveConns = 9
		servers[0].ResponseTimeMs = 800
		servers[1].MaxConns = 10
		servers[1].ActiveConns = 1
		servers[1].ResponseTimeMs = 40

		selected, err := rs.Select(servers, "")
		require.NoError(t, err)
		assert.Equal(t, "server-2", selected.ID)
	})

	t.Run("error rate drags the score down", func(t *testing.T) {
		rs := strategy.NewResourceScore(strategy.DefaultScoreWeights())
		servers := makeServers(2)
		servers[0].ErrorRate = 0.9
		servers[1].ErrorRate = 0.0

		selected, err := rs.Select(servers, "")
		require.NoError(t, err)
		assert.Equal(t, "server-2", selected.ID)
	})
}

func TestEngine(t *testing.T) {
	t.Run("rejects unknown strategy names", func(t *testing.T) {
		e := strategy.NewEngine(strategy.ScoreWeights{}, logging.NewNop())
		err := e.SetStrategy("best_effort")
		assert.ErrorIs(t, err, types.ErrUnknownStrategy)
		assert.Equal(t, strategy.RoundRobin, e.ActiveName())
	})

	t.Run("switches take effect on the next selection", func(t *testing.T) {
		e := strategy.NewEngine(strategy.ScoreWeights{}, logging.NewNop())
		servers := makeServers(2)
		servers[0].ActiveConns = 5

		require.NoError(t, e.SetStrategy(strategy.LeastConnections))
		selected, err := e.Select("", servers, "")
		require.NoError(t, err)
		assert.Equal(t, "server-2", selected.ID)
	})

	t.Run("a named selection overrides the active strategy", func(t *testing.T) {
		e := strategy.NewEngine(strategy.ScoreWeights{}, logging.NewNop())
		servers := makeServers(2)
		servers[0].ActiveConns = 5

		selected, err := e.Select(strategy.LeastConnections, servers, "")
		require.NoError(t, err)
		assert.Equal(t, "server-2", selected.ID)
		assert.Equal(t, strategy.RoundRobin, e.ActiveName())
	})

	t.Run("selecting with an unknown name fails before the set is touched", func(t *testing.T) {
		e := strategy.NewEngine(strategy.ScoreWeights{}, logging.NewNop())
		_, err := e.Select("best_effort", makeServers(2), "")
		assert.ErrorIs(t, err, types.ErrUnknownStrategy)
	})

	t.Run("resolve falls back to the active strategy for an empty name", func(t *testing.T) {
		e := strategy.NewEngine(strategy.ScoreWeights{}, logging.NewNop())

		s, err := e.Resolve("")
		require.NoError(t, err)
		assert.Equal(t, strategy.RoundRobin, s.Name())

		s, err = e.Resolve(strategy.IPHash)
		require.NoError(t, err)
		assert.Equal(t, strategy.IPHash, s.Name())

		_, err = e.Resolve("best_effort")
		assert.ErrorIs(t, err, types.ErrUnknownStrategy)
	})

	t.Run("empty eligible set is a first-class result", func(t *testing.T) {
		e := strategy.NewEngine(strategy.ScoreWeights{}, logging.NewNop())
		_, err := e.Select("", nil, "")
		assert.ErrorIs(t, err, types.ErrNoServerAvailable)
	})
}
