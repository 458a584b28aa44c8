// Package fwi derives simplified fire-weather indices from current weather.
//
// These are linear approximations, not the recursive Canadian FWI system.
// Two variants exist: Estimate is used when serving predictions and ignores
// rainfall; TrainingIndices is used by the dataset builder and does account
// for rainfall. Models trained on builder output therefore see features from
// a different formula than the one used at serve time.
package fwi

import (
	"math"

	"github.com/bobby-s-dev/firerisk/internal/models"
)

// Upper bounds of the published index ranges.
const (
	MaxFFMC = 96.2
	MaxDMC  = 291.3
	MaxDC   = 860.6
	MaxISI  = 56.1
)

// Estimate computes the serving-time indices. Each value is floored at zero
// and then capped at its upper bound.
func Estimate(obs models.Observation) models.Indices {
	dryness := 100 - obs.Humidity

	return models.Indices{
		FFMC: clamp(85+dryness*0.15, MaxFFMC),
		DMC:  clamp(obs.Temperature*2+dryness*0.5, MaxDMC),
		DC:   clamp(obs.Temperature*10+dryness*2, MaxDC),
		ISI:  clamp(obs.WindSpeed*0.7+dryness*0.05, MaxISI),
	}
}

// TrainingIndices computes the indices used when building the custom
// training dataset. Rain reduces DMC and DC here; no upper clamp is applied.
func TrainingIndices(obs models.Observation) models.Indices {
	dryness := 100 - obs.Humidity
	ffmc := 85 + (dryness/100)*11

	return models.Indices{
		FFMC: ffmc,
		DMC:  math.Max(0, obs.Temperature*1.5+dryness*0.8-obs.Rain*15),
		DC:   math.Max(0, obs.Temperature*5+dryness*4-obs.Rain*50),
		ISI:  math.Sqrt(math.Max(0, obs.WindSpeed)) * (ffmc / 30),
	}
}

func clamp(v, upper float64) float64 {
	return math.Min(upper, math.Max(0, v))
}
