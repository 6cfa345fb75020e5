package strategy

import (
	"github.com/magickw/linkDAO-sub004/internal/types"
)

// ScoreWeights are the coefficients of the resource-score linear
// combination. They are policy defaults, not fixed behavior.
type ScoreWeights struct {
	Utilization  float64
	ResponseTime float64
	ErrorRate    float64
	Weight       float64
}

// DefaultScoreWeights returns the stock 0.4/0.3/0.2/0.1 split.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		Utilization:  0.4,
		ResponseTime: 0.3,
		ErrorRate:    0.2,
		Weight:       0.1,
	}
}

// resourceScore ranks servers by a weighted combination of free capacity,
// smoothed response time, smoothed error rate, and configured weight, and
// picks the arg-max. Ties go to the earliest server in registry order.
type resourceScore struct {
	weights ScoreWeights
}

// NewResourceScore creates a resource-based scoring strategy.
func NewResourceScore(weights ScoreWeights) types.Strategy {
	zero := ScoreWeights{}
	if weights == zero {
		weights = DefaultScoreWeights()
	}
	return &resourceScore{weights: weights}
}

func (rs *resourceScore) Name() string { return ResourceScore }

func (rs *resourceScore) Select(eligible []types.ServerInstance, _ string) (types.ServerInstance, error) {
	best := eligible[0]
	bestScore := rs.score(best)
	for _, s := range eligible[1:] {
		if score := rs.score(s); score > bestScore {
			best = s
			bestScore = score
		}
	}
	return best, nil
}

func (rs *resourceScore) score(s types.ServerInstance) float64 {
	rtFactor := 1 - s.ResponseTimeMs/1000
	if rtFactor < 0 {
		rtFactor = 0
	}
	errFactor := 1 - s.ErrorRate
	if errFactor < 0 {
		errFactor = 0
	}
	return rs.weights.Utilization*(1-s.Utilization()) +
		rs.weights.ResponseTime*rtFactor +
		rs.weights.ErrorRate*errFactor +
		rs.weights.Weight*float64(s.Weight)/10
}
