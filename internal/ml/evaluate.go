package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// Accuracy is the share of rows whose predicted label matches y.
func Accuracy(e *Ensemble, X [][]float64, y []int) float64 {
	if len(y) == 0 {
		return 0
	}
	var correct int
	for i, row := range X {
		if e.PredictLabel(row) == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(y))
}

// StratifiedSplit partitions row indices into train and test sets with the
// class ratio preserved in both. The same seed always yields the same split.
func StratifiedSplit(y []int, testSize float64, seed int64) (train, test []int, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("ml: test size %.2f must be in (0, 1)", testSize)
	}
	rng := rand.New(rand.NewSource(seed))

	for _, class := range byClass(y) {
		rng.Shuffle(len(class), func(i, j int) { class[i], class[j] = class[j], class[i] })
		nTest := int(math.Round(float64(len(class)) * testSize))
		if nTest == 0 && len(class) > 1 {
			nTest = 1
		}
		test = append(test, class[:nTest]...)
		train = append(train, class[nTest:]...)
	}
	if len(train) == 0 || len(test) == 0 {
		return nil, nil, fmt.Errorf("ml: %d rows are too few to split", len(y))
	}

	rng.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	rng.Shuffle(len(test), func(i, j int) { test[i], test[j] = test[j], test[i] })
	return train, test, nil
}

// StratifiedKFold returns k test folds. Rows of each class are dealt out in
// order into contiguous, near-equal chunks.
func StratifiedKFold(y []int, k int) ([][]int, error) {
	if k < 2 {
		return nil, fmt.Errorf("ml: need at least 2 folds, got %d", k)
	}
	folds := make([][]int, k)
	for _, class := range byClass(y) {
		if len(class) < k {
			return nil, fmt.Errorf("ml: class has %d rows, fewer than %d folds", len(class), k)
		}
		start := 0
		for f := 0; f < k; f++ {
			size := len(class) / k
			if f < len(class)%k {
				size++
			}
			folds[f] = append(folds[f], class[start:start+size]...)
			start += size
		}
	}
	for _, fold := range folds {
		sort.Ints(fold)
	}
	return folds, nil
}

// CVResult holds per-fold accuracy.
type CVResult struct {
	Scores []float64
	Mean   float64
	Std    float64
}

// CrossValidate refits trainer on each k-1 fold combination and scores it on
// the held-out fold. Folds run concurrently.
func CrossValidate(trainer Trainer, X [][]float64, y []int, k int) (CVResult, error) {
	folds, err := StratifiedKFold(y, k)
	if err != nil {
		return CVResult{}, err
	}

	scores := make([]float64, k)
	var g errgroup.Group
	g.SetLimit(workers(0))
	for f := range folds {
		g.Go(func() error {
			held := make(map[int]bool, len(folds[f]))
			for _, i := range folds[f] {
				held[i] = true
			}
			var trX, teX [][]float64
			var trY, teY []int
			for i := range y {
				if held[i] {
					teX, teY = append(teX, X[i]), append(teY, y[i])
				} else {
					trX, trY = append(trX, X[i]), append(trY, y[i])
				}
			}
			model, err := trainer.Fit(trX, trY)
			if err != nil {
				return fmt.Errorf("fold %d: %w", f, err)
			}
			scores[f] = Accuracy(model, teX, teY)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return CVResult{}, err
	}

	mean, std := stat.PopMeanStdDev(scores, nil)
	return CVResult{Scores: scores, Mean: mean, Std: std}, nil
}

func byClass(y []int) [][]int {
	var neg, pos []int
	for i, label := range y {
		if label == 1 {
			pos = append(pos, i)
		} else {
			neg = append(neg, i)
		}
	}
	return [][]int{neg, pos}
}

// Rows gathers the listed rows of X and y.
func Rows(X [][]float64, y []int, idx []int) ([][]float64, []int) {
	outX := make([][]float64, len(idx))
	outY := make([]int, len(idx))
	for k, i := range idx {
		outX[k] = X[i]
		outY[k] = y[i]
	}
	return outX, outY
}
