package model

import (
	"math/rand"
	"sort"
)

// node is a flattened CART node. Leaves have Left == -1.
type node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
}

type tree struct {
	Nodes []node `json:"nodes"`
}

type treeParams struct {
	maxFeatures    int
	maxDepth       int
	minSamplesLeaf int
}

type treeBuilder struct {
	params     treeParams
	x          [][]float64
	y          []float64
	rng        *rand.Rand
	nodes      []node
	importance []float64
}

// growTree fits a regression tree on the rows in sample by greedy variance
// reduction. For a 0/1 target the leaf means are class probabilities and the
// criterion is equivalent to Gini impurity.
func growTree(x [][]float64, y []float64, sample []int, p treeParams, rng *rand.Rand) (tree, []float64) {
	b := &treeBuilder{
		params:     p,
		x:          x,
		y:          y,
		rng:        rng,
		importance: make([]float64, len(x[0])),
	}
	b.build(sample, 0)
	return tree{Nodes: b.nodes}, b.importance
}

func (b *treeBuilder) build(rows []int, depth int) int {
	id := len(b.nodes)
	mean, sse := stats(b.y, rows)
	b.nodes = append(b.nodes, node{Left: -1, Right: -1, Value: mean})

	if len(rows) < 2*b.params.minSamplesLeaf || sse <= 1e-12 ||
		(b.params.maxDepth > 0 && depth >= b.params.maxDepth) {
		return id
	}

	feature, threshold, gain, ok := b.bestSplit(rows, sse)
	if !ok {
		return id
	}
	b.importance[feature] += gain

	var left, right []int
	for _, r := range rows {
		if b.x[r][feature] <= threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[id].Feature = feature
	b.nodes[id].Threshold = threshold
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}

func (b *treeBuilder) bestSplit(rows []int, parentSSE float64) (int, float64, float64, bool) {
	nFeatures := len(b.x[0])
	candidates := b.rng.Perm(nFeatures)[:b.params.maxFeatures]

	bestFeature, bestThreshold, bestSSE := -1, 0.0, parentSSE
	order := make([]int, len(rows))
	minLeaf := b.params.minSamplesLeaf
	for _, f := range candidates {
		copy(order, rows)
		sort.Slice(order, func(i, j int) bool { return b.x[order[i]][f] < b.x[order[j]][f] })

		totalSum, totalSq := 0.0, 0.0
		for _, r := range order {
			totalSum += b.y[r]
			totalSq += b.y[r] * b.y[r]
		}
		leftSum, leftSq := 0.0, 0.0
		for i := 0; i < len(order)-1; i++ {
			v := b.y[order[i]]
			leftSum += v
			leftSq += v * v
			nl := float64(i + 1)
			nr := float64(len(order) - i - 1)
			if i+1 < minLeaf || len(order)-i-1 < minLeaf {
				continue
			}
			cur, next := b.x[order[i]][f], b.x[order[i+1]][f]
			if cur == next {
				continue
			}
			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			if sse < bestSSE-1e-12 {
				bestFeature, bestThreshold, bestSSE = f, (cur+next)/2, sse
			}
		}
	}
	if bestFeature < 0 {
		return 0, 0, 0, false
	}
	return bestFeature, bestThreshold, parentSSE - bestSSE, true
}

func stats(y []float64, rows []int) (mean, sse float64) {
	for _, r := range rows {
		mean += y[r]
	}
	mean /= float64(len(rows))
	for _, r := range rows {
		d := y[r] - mean
		sse += d * d
	}
	return mean, sse
}

func (t tree) predict(row []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left < 0 {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}
