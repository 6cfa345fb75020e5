package strategy

import (
	"hash/crc32"

	"github.com/magickw/linkDAO-sub004/internal/types"
)

// ipHash maps a caller-supplied affinity key onto the eligible set with a
// deterministic hash. The same key always lands on the same server for a
// fixed eligible set; affinity breaks when the set changes. Calls without a
// key fall back to round robin.
type ipHash struct {
	fallback types.Strategy
}

// NewIPHash creates a consistent-hash strategy.
func NewIPHash() types.Strategy {
	return &ipHash{fallback: NewRoundRobin()}
}

func (ih *ipHash) Name() string { return IPHash }

func (ih *ipHash) Select(eligible []types.ServerInstance, affinityKey string) (types.ServerInstance, error) {
	if affinityKey == "" {
		return ih.fallback.Select(eligible, affinityKey)
	}
	sum := crc32.ChecksumIEEE([]byte(affinityKey))
	return eligible[sum%uint32(len(eligible))], nil
}
