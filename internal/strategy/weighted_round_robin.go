package strategy

import (
	"sync/atomic"

	"github.com/magickw/linkDAO-sub004/internal/types"
)

// weightedRoundRobin expands the eligible set into weight-repeated entries
// and round-robins over the expansion. A weight of zero excludes a server
// without removing it from the pool.
type weightedRoundRobin struct {
	counter atomic.Uint64
}

// NewWeightedRoundRobin creates a weighted round-robin strategy.
func NewWeightedRoundRobin() types.Strategy {
	return &weightedRoundRobin{}
}

func (wrr *weightedRoundRobin) Name() string { return WeightedRoundRobin }

func (wrr *weightedRoundRobin) Select(eligible []types.ServerInstance, _ string) (types.ServerInstance, error) {
	totalWeight := 0
	for _, s := range eligible {
		if s.Weight > 0 {
			totalWeight += s.Weight
		}
	}
	if totalWeight == 0 {
		return types.ServerInstance{}, types.ErrNoServerAvailable
	}

	count := wrr.counter.Add(1)
	slot := int((count - 1) % uint64(totalWeight))
	for _, s := range eligible {
		if s.Weight <= 0 {
			continue
		}
		if slot < s.Weight {
			return s, nil
		}
		slot -= s.Weight
	}
	// Unreachable: slot < totalWeight by construction.
	return eligible[0], nil
}
