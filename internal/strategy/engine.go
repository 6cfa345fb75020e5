// Package strategy implements the pluggable selection algorithms operating
// over the registry's eligible set.
package strategy

import (
	"sync"

	"github.com/magickw/linkDAO-sub004/internal/types"
)

// Strategy names accepted by SetStrategy.
const (
	RoundRobin         = "round_robin"
	WeightedRoundRobin = "weighted_round_robin"
	LeastConnections   = "least_connections"
	LeastResponseTime  = "least_response_time"
	IPHash             = "ip_hash"
	ResourceScore      = "resource_score"
)

// Engine dispatches selections to the active algorithm. The active strategy
// is switchable at runtime and takes effect on the next selection.
type Engine struct {
	mu     sync.RWMutex
	active types.Strategy
	byName map[string]types.Strategy
	logger types.Logger
}

// NewEngine registers all built-in strategies, with round robin active.
func NewEngine(score ScoreWeights, logger types.Logger) *Engine {
	all := []types.Strategy{
		NewRoundRobin(),
		NewWeightedRoundRobin(),
		NewLeastConnections(),
		NewLeastResponseTime(),
		NewIPHash(),
		NewResourceScore(score),
	}

	byName := make(map[string]types.Strategy, len(all))
	for _, s := range all {
		byName[s.Name()] = s
	}
	return &Engine{
		active: byName[RoundRobin],
		byName: byName,
		logger: logger,
	}
}

// SetStrategy switches the active algorithm by name.
func (e *Engine) SetStrategy(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.byName[name]
	if !ok {
		return types.ErrUnknownStrategy
	}
	e.active = s
	e.logger.Info("selection strategy changed", "strategy", name)
	return nil
}

// ActiveName returns the name of the active strategy.
func (e *Engine) ActiveName() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active.Name()
}

// Resolve returns the strategy registered under name, or the active one for
// an empty name. An unrecognized name is a configuration error.
func (e *Engine) Resolve(name string) (types.Strategy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if name == "" {
		return e.active, nil
	}
	s, ok := e.byName[name]
	if !ok {
		return nil, types.ErrUnknownStrategy
	}
	return s, nil
}

// Select applies the named strategy to the eligible set. An empty name uses
// the active strategy; selections with a name never disturb it.
func (e *Engine) Select(name string, eligible []types.ServerInstance, affinityKey string) (types.ServerInstance, error) {
	s, err := e.Resolve(name)
	if err != nil {
		return types.ServerInstance{}, err
	}
	if len(eligible) == 0 {
		return types.ServerInstance{}, types.ErrNoServerAvailable
	}
	return s.Select(eligible, affinityKey)
}
