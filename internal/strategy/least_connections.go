package strategy

import (
	"github.com/magickw/linkDAO-sub004/internal/types"
)

// leastConnections picks the server with the fewest in-flight connections.
// Ties go to the earliest server in registry order, keeping the choice
// deterministic.
type leastConnections struct{}

// NewLeastConnections creates a least-connections strategy.
func NewLeastConnections() types.Strategy {
	return leastConnections{}
}

func (leastConnections) Name() string { return LeastConnections }

func (leastConnections) Select(eligible []types.ServerInstance, _ string) (types.ServerInstance, error) {
	best := eligible[0]
	for _, s := range eligible[1:] {
		if s.ActiveConns < best.ActiveConns {
			best = s
		}
	}
	return best, nil
}
