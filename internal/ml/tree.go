package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Node is one entry of a flattened binary tree. Leaves have Left < 0.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
}

// Tree is a fitted decision tree. Node 0 is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict walks x down to a leaf and returns its value.
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for t.Nodes[i].Left >= 0 {
		n := t.Nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.Nodes[i].Value
}

func (t *Tree) validate(width int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("ml: tree has no nodes")
	}
	for i, n := range t.Nodes {
		if n.Left < 0 {
			continue
		}
		if n.Feature < 0 || n.Feature >= width {
			return fmt.Errorf("ml: node %d splits on feature %d of %d", i, n.Feature, width)
		}
		// children always come after their parent
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("ml: node %d has invalid children %d/%d", i, n.Left, n.Right)
		}
	}
	return nil
}

// TreeParams bound the growth of a single tree. Zero MaxDepth means unlimited;
// zero MaxFeatures means every feature is tried at each split.
type TreeParams struct {
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int
	MinChildWeight  float64
	Lambda          float64
}

// objective turns per-sample statistics into split gains and leaf values.
// Statistics are additive, so children are scored from running sums.
type objective interface {
	gain(left, right, total stats) float64
	leaf(total stats) float64
	admissible(child stats) bool
}

type stats [3]float64

func (s *stats) add(o stats) {
	s[0] += o[0]
	s[1] += o[1]
	s[2] += o[2]
}

func (s stats) sub(o stats) stats {
	return stats{s[0] - o[0], s[1] - o[1], s[2] - o[2]}
}

// giniObjective grows classification trees. stats = (weight of class 0,
// weight of class 1, unused); leaves hold the weighted fraction of class 1.
type giniObjective struct{}

func (giniObjective) impurity(s stats) float64 {
	w := s[0] + s[1]
	if w <= 0 {
		return 0
	}
	p0, p1 := s[0]/w, s[1]/w
	return w * (1 - p0*p0 - p1*p1)
}

func (g giniObjective) gain(left, right, total stats) float64 {
	return g.impurity(total) - g.impurity(left) - g.impurity(right)
}

func (giniObjective) leaf(total stats) float64 {
	w := total[0] + total[1]
	if w <= 0 {
		return 0
	}
	return total[1] / w
}

func (giniObjective) admissible(stats) bool { return true }

// newtonObjective grows regression trees on log-loss gradients.
// stats = (gradient, hessian used for split scoring, hessian used for leaves).
type newtonObjective struct {
	lambda         float64
	minChildWeight float64
}

func (o newtonObjective) score(g, h float64) float64 {
	d := h + o.lambda
	if d <= 1e-12 {
		return 0
	}
	return g * g / d
}

func (o newtonObjective) gain(left, right, total stats) float64 {
	return o.score(left[0], left[1]) + o.score(right[0], right[1]) - o.score(total[0], total[1])
}

func (o newtonObjective) leaf(total stats) float64 {
	d := total[2] + o.lambda
	if d <= 1e-12 {
		return 0
	}
	return -total[0] / d
}

func (o newtonObjective) admissible(child stats) bool {
	return child[1] >= o.minChildWeight
}

type grower struct {
	X          [][]float64
	sampleStat []stats
	params     TreeParams
	obj        objective
	rng        *rand.Rand
	nodes      []Node
	importance []float64
}

// growTree fits one tree over the rows in idx. idx may contain repeats
// (bootstrap samples). importance receives the gain credited to each feature.
func growTree(X [][]float64, sampleStat []stats, idx []int, params TreeParams, obj objective, rng *rand.Rand, importance []float64) Tree {
	g := &grower{
		X:          X,
		sampleStat: sampleStat,
		params:     params,
		obj:        obj,
		rng:        rng,
		importance: importance,
	}
	g.build(idx, 0)
	return Tree{Nodes: g.nodes}
}

func (g *grower) build(idx []int, depth int) int {
	var total stats
	for _, i := range idx {
		total.add(g.sampleStat[i])
	}

	id := len(g.nodes)
	g.nodes = append(g.nodes, Node{Left: -1, Right: -1, Value: g.obj.leaf(total)})

	if g.params.MaxDepth > 0 && depth >= g.params.MaxDepth {
		return id
	}
	if len(idx) < g.params.MinSamplesSplit || len(idx) < 2*max(1, g.params.MinSamplesLeaf) {
		return id
	}

	feature, threshold, gain, ok := g.bestSplit(idx, total)
	if !ok || gain <= 1e-12 {
		return id
	}

	var left, right []int
	for _, i := range idx {
		if g.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	if g.importance != nil {
		g.importance[feature] += gain
	}

	l := g.build(left, depth+1)
	r := g.build(right, depth+1)
	g.nodes[id].Feature = feature
	g.nodes[id].Threshold = threshold
	g.nodes[id].Left = l
	g.nodes[id].Right = r
	return id
}

func (g *grower) candidateFeatures() []int {
	width := len(g.X[0])
	if g.params.MaxFeatures <= 0 || g.params.MaxFeatures >= width || g.rng == nil {
		all := make([]int, width)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return g.rng.Perm(width)[:g.params.MaxFeatures]
}

func (g *grower) bestSplit(idx []int, total stats) (int, float64, float64, bool) {
	minLeaf := max(1, g.params.MinSamplesLeaf)
	sorted := make([]int, len(idx))

	bestFeature, bestThreshold, bestGain := -1, 0.0, math.Inf(-1)
	for _, f := range g.candidateFeatures() {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, b int) bool { return g.X[sorted[a]][f] < g.X[sorted[b]][f] })

		var left stats
		for k := 0; k < len(sorted)-1; k++ {
			left.add(g.sampleStat[sorted[k]])
			lo, hi := g.X[sorted[k]][f], g.X[sorted[k+1]][f]
			if lo == hi {
				continue
			}
			nLeft := k + 1
			if nLeft < minLeaf || len(sorted)-nLeft < minLeaf {
				continue
			}
			right := total.sub(left)
			if !g.obj.admissible(left) || !g.obj.admissible(right) {
				continue
			}
			gain := g.obj.gain(left, right, total)
			if gain > bestGain {
				threshold := lo + (hi-lo)/2
				if threshold >= hi {
					threshold = lo
				}
				bestFeature, bestThreshold, bestGain = f, threshold, gain
			}
		}
	}

	return bestFeature, bestThreshold, bestGain, bestFeature >= 0
}
