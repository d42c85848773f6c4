package operator

import (
	"fmt"

	"github.com/eenlars/evoflow/pkg/models"
)

// Weights combine the fitness components into one ranking score. Each weight
// must lie in [0,1]. The sum is deliberately not forced to 1; configuration
// is trusted as-is and the engine logs when the sum drifts.
type Weights struct {
	Score float64 `json:"score" mapstructure:"score"`
	Time  float64 `json:"time" mapstructure:"time"`
	Cost  float64 `json:"cost" mapstructure:"cost"`
}

// DefaultWeights favor raw quality with a light budget pressure.
var DefaultWeights = Weights{Score: 0.7, Time: 0.15, Cost: 0.15}

// Validate checks each weight lies in [0,1]. It does not check the sum.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{"score": w.Score, "time": w.Time, "cost": w.Cost} {
		if v < 0 || v > 1 {
			return fmt.Errorf("weight %s must be in [0,1], got %v", name, v)
		}
	}
	return nil
}

// Sum returns the raw weight sum for drift reporting.
func (w Weights) Sum() float64 {
	return w.Score + w.Time + w.Cost
}

// Baselines anchor the time and cost components. A value at or below the
// baseline scores a full 1; between baseline and threshold it decays
// linearly; beyond the threshold the component keeps falling below zero
// rather than being clipped, so runaway genomes are actively penalized.
type Baselines struct {
	TimeSecondsBaseline  float64 `json:"timeSecondsBaseline" mapstructure:"time_seconds_baseline"`
	TimeSecondsThreshold float64 `json:"timeSecondsThreshold" mapstructure:"time_seconds_threshold"`
	CostUSDBaseline      float64 `json:"costUsdBaseline" mapstructure:"cost_usd_baseline"`
	CostUSDThreshold     float64 `json:"costUsdThreshold" mapstructure:"cost_usd_threshold"`
}

// DefaultBaselines suit short question-answering workflows.
var DefaultBaselines = Baselines{
	TimeSecondsBaseline:  30,
	TimeSecondsThreshold: 300,
	CostUSDBaseline:      0.05,
	CostUSDThreshold:     0.50,
}

func normalizeBudget(v, baseline, threshold float64) float64 {
	if threshold <= baseline {
		if v <= baseline {
			return 1
		}
		return 0
	}
	if v <= baseline {
		return 1
	}
	return 1 - (v-baseline)/(threshold-baseline)
}

// CombinedScore ranks a fitness record as the weighted sum of the raw score
// and the normalized time and cost components.
func CombinedScore(f models.Fitness, w Weights, b Baselines) float64 {
	return w.Score*f.Score +
		w.Time*normalizeBudget(f.TotalTimeSeconds, b.TimeSecondsBaseline, b.TimeSecondsThreshold) +
		w.Cost*normalizeBudget(f.TotalCostUSD, b.CostUSDBaseline, b.CostUSDThreshold)
}
