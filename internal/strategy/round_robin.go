package strategy

import (
	"sync/atomic"

	"github.com/magickw/linkDAO-sub004/internal/types"
)

// roundRobin cycles through the eligible set in stable registry order.
// The cursor advances on every call regardless of outcome.
type roundRobin struct {
	counter atomic.Uint64
}

// NewRoundRobin creates a round-robin strategy.
func NewRoundRobin() types.Strategy {
	return &roundRobin{}
}

func (rr *roundRobin) Name() string { return RoundRobin }

func (rr *roundRobin) Select(eligible []types.ServerInstance, _ string) (types.ServerInstance, error) {
	count := rr.counter.Add(1)
	return eligible[(count-1)%uint64(len(eligible))], nil
}
