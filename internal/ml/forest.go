package ml

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Trainer fits one candidate classifier configuration.
type Trainer interface {
	Name() string
	Fit(X [][]float64, y []int) (*Ensemble, error)
}

// ForestParams configure a random forest. MaxFeatures zero means
// floor(sqrt(width)).
type ForestParams struct {
	NEstimators     int    `yaml:"n_estimators"`
	MaxDepth        int    `yaml:"max_depth"`
	MinSamplesSplit int    `yaml:"min_samples_split"`
	MinSamplesLeaf  int    `yaml:"min_samples_leaf"`
	MaxFeatures     int    `yaml:"max_features"`
	ClassWeight     string `yaml:"class_weight"`
	Seed            int64  `yaml:"seed"`
	Workers         int    `yaml:"workers"`
}

func DefaultForestParams() ForestParams {
	return ForestParams{
		NEstimators:     300,
		MaxDepth:        15,
		MinSamplesSplit: 5,
		MinSamplesLeaf:  2,
		ClassWeight:     "balanced",
		Seed:            42,
	}
}

type RandomForest struct {
	Params ForestParams
}

func NewRandomForest(p ForestParams) *RandomForest {
	return &RandomForest{Params: p}
}

func (f *RandomForest) Name() string { return "Random Forest" }

// Fit grows NEstimators bootstrapped trees. Per-tree seeds are drawn before
// any tree starts, so the result does not depend on worker scheduling.
func (f *RandomForest) Fit(X [][]float64, y []int) (*Ensemble, error) {
	if err := checkDataset(X, y); err != nil {
		return nil, err
	}
	if f.Params.NEstimators <= 0 {
		return nil, fmt.Errorf("ml: random forest needs n_estimators > 0")
	}

	width := len(X[0])
	maxFeatures := f.Params.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = max(1, int(math.Sqrt(float64(width))))
	}
	params := TreeParams{
		MaxDepth:        f.Params.MaxDepth,
		MinSamplesSplit: f.Params.MinSamplesSplit,
		MinSamplesLeaf:  f.Params.MinSamplesLeaf,
		MaxFeatures:     maxFeatures,
	}

	w0, w1 := 1.0, 1.0
	if f.Params.ClassWeight == "balanced" {
		w0, w1 = balancedWeights(y)
	}
	sampleStat := make([]stats, len(y))
	for i, label := range y {
		if label == 1 {
			sampleStat[i] = stats{0, w1, 0}
		} else {
			sampleStat[i] = stats{w0, 0, 0}
		}
	}

	seeder := rand.New(rand.NewSource(f.Params.Seed))
	seeds := make([]int64, f.Params.NEstimators)
	for i := range seeds {
		seeds[i] = seeder.Int63()
	}

	trees := make([]Tree, f.Params.NEstimators)
	importances := make([][]float64, f.Params.NEstimators)

	var g errgroup.Group
	g.SetLimit(workers(f.Params.Workers))
	for t := range trees {
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seeds[t]))
			idx := make([]int, len(y))
			for i := range idx {
				idx[i] = rng.Intn(len(y))
			}
			importances[t] = make([]float64, width)
			trees[t] = growTree(X, sampleStat, idx, params, giniObjective{}, rng, importances[t])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// sklearn-style importance: each tree normalized, then averaged
	total := make([]float64, width)
	for _, imp := range importances {
		normalize(imp)
		for j, v := range imp {
			total[j] += v / float64(len(importances))
		}
	}

	return &Ensemble{
		Kind:        KindRandomForest,
		NFeatures:   width,
		Trees:       trees,
		Importances: normalize(total),
	}, nil
}

// balancedWeights mirrors class_weight="balanced": n / (2 * n_class).
func balancedWeights(y []int) (float64, float64) {
	var pos int
	for _, label := range y {
		pos += label
	}
	neg := len(y) - pos
	n := float64(len(y))
	w0, w1 := 1.0, 1.0
	if neg > 0 {
		w0 = n / (2 * float64(neg))
	}
	if pos > 0 {
		w1 = n / (2 * float64(pos))
	}
	return w0, w1
}

func workers(n int) int {
	if n > 0 {
		return n
	}
	return runtime.NumCPU()
}

func checkDataset(X [][]float64, y []int) error {
	if len(X) == 0 {
		return ErrEmptyDataset
	}
	if len(X) != len(y) {
		return fmt.Errorf("ml: %d rows but %d labels", len(X), len(y))
	}
	width := len(X[0])
	for i, row := range X {
		if len(row) != width {
			return fmt.Errorf("row %d: %w", i, ErrDimension)
		}
	}
	for i, label := range y {
		if label != 0 && label != 1 {
			return fmt.Errorf("ml: label %d at row %d is not binary", label, i)
		}
	}
	return nil
}
