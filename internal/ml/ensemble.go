package ml

import (
	"fmt"
	"math"
)

type Kind string

const (
	KindRandomForest     Kind = "random_forest"
	KindGradientBoosting Kind = "gradient_boosting"
	KindXGBoost          Kind = "xgboost"
)

// Ensemble is a fitted tree ensemble for binary classification.
//
// A random forest averages leaf probabilities. The boosted kinds sum leaf
// margins, scale them by LearningRate, add BaseScore, and apply a sigmoid.
type Ensemble struct {
	Kind         Kind      `json:"kind"`
	NFeatures    int       `json:"n_features"`
	BaseScore    float64   `json:"base_score"`
	LearningRate float64   `json:"learning_rate"`
	Trees        []Tree    `json:"trees"`
	Importances  []float64 `json:"feature_importances"`
}

// PredictProba returns the probability of the positive (fire) class.
func (e *Ensemble) PredictProba(x []float64) float64 {
	if e.Kind == KindRandomForest {
		var sum float64
		for i := range e.Trees {
			sum += e.Trees[i].Predict(x)
		}
		return sum / float64(len(e.Trees))
	}

	margin := e.BaseScore
	for i := range e.Trees {
		margin += e.LearningRate * e.Trees[i].Predict(x)
	}
	return sigmoid(margin)
}

// PredictLabel thresholds PredictProba; ties go to the negative class.
func (e *Ensemble) PredictLabel(x []float64) int {
	if e.PredictProba(x) > 0.5 {
		return 1
	}
	return 0
}

func (e *Ensemble) validate(width int) error {
	switch e.Kind {
	case KindRandomForest, KindGradientBoosting, KindXGBoost:
	default:
		return fmt.Errorf("ml: unknown ensemble kind %q", e.Kind)
	}
	if e.NFeatures != width {
		return fmt.Errorf("%w: ensemble fitted on %d features, want %d", ErrDimension, e.NFeatures, width)
	}
	if len(e.Trees) == 0 {
		return fmt.Errorf("ml: ensemble has no trees")
	}
	for i := range e.Trees {
		if err := e.Trees[i].validate(width); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// normalize scales v in place so it sums to one.
func normalize(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	if sum <= 0 {
		return v
	}
	for i := range v {
		v[i] /= sum
	}
	return v
}
