// Package testutils provides utilities for testing, including synthetic
// ranking datasets with a known consensus. These components are intended for
// internal use within the project's test suites and tools and are not part
// of the public API.
package testutils

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/ahrav/go-rankagg/internal/domain"
)

// NewRand returns a deterministic PCG-backed generator for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Labels returns the label universe 1..n.
func Labels(n int) []int {
	labels := make([]int, n)
	for i := range labels {
		labels[i] = i + 1
	}
	return labels
}

// RandomTotalOrder returns a uniformly random strict order over labels.
func RandomTotalOrder(rng *rand.Rand, labels []int) domain.Ranking {
	order := slices.Clone(labels)
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	return domain.MustTotalOrder(order...)
}

// NoisyPermutation perturbs reference with swaps random adjacent
// transpositions, so small swap counts stay close to reference in Kendall
// distance.
func NoisyPermutation(rng *rand.Rand, reference []int, swaps int) domain.Ranking {
	order := slices.Clone(reference)
	if len(order) < 2 {
		return domain.MustTotalOrder(order...)
	}
	for range swaps {
		i := rng.IntN(len(order) - 1)
		order[i], order[i+1] = order[i+1], order[i]
	}
	return domain.MustTotalOrder(order...)
}

// NoisyDataset draws voters noisy permutations of reference and merges
// identical ones.
func NoisyDataset(rng *rand.Rand, reference []int, voters, swaps int) (*domain.RankAggregationDataset, error) {
	if voters <= 0 {
		return nil, fmt.Errorf("voters must be positive, got %d", voters)
	}
	b := domain.NewDatasetBuilder(reference)
	for range voters {
		b.Add(NoisyPermutation(rng, reference, swaps), 1)
	}
	return b.Build()
}

// RandomWeakOrder returns a random order over labels in which each boundary
// is a tie with probability tieProb and strict otherwise.
func RandomWeakOrder(rng *rand.Rand, labels []int, tieProb float64) domain.Ranking {
	order := slices.Clone(labels)
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	ops := domain.CompareOperatorsFor(order)
	for i := range ops {
		if rng.Float64() < tieProb {
			ops[i] = domain.OperatorTie
		}
	}
	r, err := domain.NewRanking(order, ops)
	if err != nil {
		panic(err)
	}
	return r
}

// TopK truncates a strict ranking to its first k objects.
func TopK(r domain.Ranking, k int) domain.Ranking {
	objects := r.Objects()
	if k < len(objects) {
		objects = objects[:k]
	}
	return domain.MustTotalOrder(objects...)
}
