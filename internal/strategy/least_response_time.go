package strategy

import (
	"github.com/magickw/linkDAO-sub004/internal/types"
)

// leastResponseTime picks the server with the lowest smoothed response
// time. Ties go to the earliest server in registry order.
type leastResponseTime struct{}

// NewLeastResponseTime creates a least-response-time strategy.
func NewLeastResponseTime() types.Strategy {
	return leastResponseTime{}
}

func (leastResponseTime) Name() string { return LeastResponseTime }

func (leastResponseTime) Select(eligible []types.ServerInstance, _ string) (types.ServerInstance, error) {
	best := eligible[0]
	for _, s := range eligible[1:] {
		if s.ResponseTimeMs < best.ResponseTimeMs {
			best = s
		}
	}
	return best, nil
}
