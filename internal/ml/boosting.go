package ml

import (
	"fmt"
	"math"
)

type BoostingParams struct {
	NEstimators     int     `yaml:"n_estimators"`
	LearningRate    float64 `yaml:"learning_rate"`
	MaxDepth        int     `yaml:"max_depth"`
	MinSamplesSplit int     `yaml:"min_samples_split"`
	MinSamplesLeaf  int     `yaml:"min_samples_leaf"`
}

func DefaultBoostingParams() BoostingParams {
	return BoostingParams{
		NEstimators:     200,
		LearningRate:    0.1,
		MaxDepth:        5,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
	}
}

// GradientBoosting fits log-loss boosting in the style of scikit-learn:
// trees split on squared error of the residuals, and each leaf takes a
// single Newton step.
type GradientBoosting struct {
	Params BoostingParams
}

func NewGradientBoosting(p BoostingParams) *GradientBoosting {
	return &GradientBoosting{Params: p}
}

func (b *GradientBoosting) Name() string { return "Gradient Boosting" }

func (b *GradientBoosting) Fit(X [][]float64, y []int) (*Ensemble, error) {
	if err := checkDataset(X, y); err != nil {
		return nil, err
	}
	if b.Params.NEstimators <= 0 || b.Params.LearningRate <= 0 {
		return nil, fmt.Errorf("ml: gradient boosting needs n_estimators and learning_rate > 0")
	}

	var pos float64
	for _, label := range y {
		pos += float64(label)
	}
	prior := math.Min(math.Max(pos/float64(len(y)), 1e-6), 1-1e-6)
	base := math.Log(prior / (1 - prior))

	params := TreeParams{
		MaxDepth:        b.Params.MaxDepth,
		MinSamplesSplit: b.Params.MinSamplesSplit,
		MinSamplesLeaf:  b.Params.MinSamplesLeaf,
	}
	obj := newtonObjective{}

	return boost(X, y, KindGradientBoosting, base, b.Params.NEstimators, b.Params.LearningRate, params, obj,
		func(p float64, label int) stats {
			return stats{p - float64(label), 1, p * (1 - p)}
		})
}

type XGBoostParams struct {
	NEstimators    int     `yaml:"n_estimators"`
	LearningRate   float64 `yaml:"learning_rate"`
	MaxDepth       int     `yaml:"max_depth"`
	ScalePosWeight float64 `yaml:"scale_pos_weight"`
	Lambda         float64 `yaml:"lambda"`
	MinChildWeight float64 `yaml:"min_child_weight"`
}

func DefaultXGBoostParams() XGBoostParams {
	return XGBoostParams{
		NEstimators:    200,
		LearningRate:   0.1,
		MaxDepth:       6,
		ScalePosWeight: 2,
		Lambda:         1,
		MinChildWeight: 1,
	}
}

// XGBoost fits second-order boosting with L2-regularized leaves, a minimum
// hessian per child, and extra weight on positive samples.
type XGBoost struct {
	Params XGBoostParams
}

func NewXGBoost(p XGBoostParams) *XGBoost {
	return &XGBoost{Params: p}
}

func (b *XGBoost) Name() string { return "XGBoost" }

func (b *XGBoost) Fit(X [][]float64, y []int) (*Ensemble, error) {
	if err := checkDataset(X, y); err != nil {
		return nil, err
	}
	if b.Params.NEstimators <= 0 || b.Params.LearningRate <= 0 {
		return nil, fmt.Errorf("ml: xgboost needs n_estimators and learning_rate > 0")
	}

	posWeight := b.Params.ScalePosWeight
	if posWeight <= 0 {
		posWeight = 1
	}
	params := TreeParams{
		MaxDepth:        b.Params.MaxDepth,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
	}
	obj := newtonObjective{lambda: b.Params.Lambda, minChildWeight: b.Params.MinChildWeight}

	// base_score 0.5 is a zero margin
	return boost(X, y, KindXGBoost, 0, b.Params.NEstimators, b.Params.LearningRate, params, obj,
		func(p float64, label int) stats {
			w := 1.0
			if label == 1 {
				w = posWeight
			}
			h := w * p * (1 - p)
			return stats{w * (p - float64(label)), h, h}
		})
}

func boost(X [][]float64, y []int, kind Kind, base float64, rounds int, lr float64, params TreeParams, obj objective, gradient func(p float64, label int) stats) (*Ensemble, error) {
	width := len(X[0])
	margin := make([]float64, len(y))
	for i := range margin {
		margin[i] = base
	}

	idx := make([]int, len(y))
	for i := range idx {
		idx[i] = i
	}

	sampleStat := make([]stats, len(y))
	importance := make([]float64, width)
	trees := make([]Tree, 0, rounds)

	for r := 0; r < rounds; r++ {
		for i, label := range y {
			sampleStat[i] = gradient(sigmoid(margin[i]), label)
		}
		tree := growTree(X, sampleStat, idx, params, obj, nil, importance)
		for i := range margin {
			margin[i] += lr * tree.Predict(X[i])
		}
		trees = append(trees, tree)
	}

	return &Ensemble{
		Kind:         kind,
		NFeatures:    width,
		BaseScore:    base,
		LearningRate: lr,
		Trees:        trees,
		Importances:  normalize(importance),
	}, nil
}
