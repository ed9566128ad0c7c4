package units

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"slices"

	"gonum.org/v1/gonum/stat/combin"
)

// Kemeny search strategy names accepted by KemenyYoungConfig.Strategy.
const (
	StrategyExhaustive     = "exhaustive"
	StrategyBranchAndBound = "branch_and_bound"
)

// Label count limits for the search strategies. Exhaustive enumeration
// scores n! orders, which stops being practical past about ten labels;
// branch and bound tracks remaining labels in a uint64 bitmask.
const (
	maxExhaustiveLabels     = 10
	maxBranchAndBoundLabels = 64
)

// ErrTooManyLabels is returned when a search strategy cannot handle the
// requested number of labels.
var ErrTooManyLabels = errors.New("too many labels for search strategy")

// KemenySearch finds an order of n items minimising the Kemeny cost of a
// pairwise preference matrix. prefs[i][j] is the total weight of voters
// ranking item i above item j.
type KemenySearch interface {
	// Name returns the strategy identifier.
	Name() string

	// Search returns an optimal order of item indices and its cost.
	// Among equally optimal orders the first one met is returned, so the
	// result is deterministic for a given matrix.
	Search(ctx context.Context, prefs [][]float64) ([]int, float64, error)
}

// NewKemenySearch returns the search strategy registered under name.
func NewKemenySearch(name string) (KemenySearch, error) {
	switch name {
	case StrategyExhaustive:
		return ExhaustiveSearch{}, nil
	case StrategyBranchAndBound:
		return BranchAndBoundSearch{}, nil
	default:
		return nil, fmt.Errorf("unknown kemeny search strategy %q", name)
	}
}

// kemenyCost sums, over every pair placed in order, the weight of voters
// that prefer the later item.
func kemenyCost(order []int, prefs [][]float64) float64 {
	var cost float64
	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			cost += prefs[order[j]][order[i]]
		}
	}
	return cost
}

// ExhaustiveSearch evaluates every permutation in lexicographic order.
// It is exact and runs in O(n!·n²).
type ExhaustiveSearch struct{}

// Name implements KemenySearch.
func (ExhaustiveSearch) Name() string { return StrategyExhaustive }

// Search implements KemenySearch.
func (ExhaustiveSearch) Search(ctx context.Context, prefs [][]float64) ([]int, float64, error) {
	n := len(prefs)
	if n > maxExhaustiveLabels {
		return nil, 0, fmt.Errorf("%w: %s supports at most %d labels, got %d",
			ErrTooManyLabels, StrategyExhaustive, maxExhaustiveLabels, n)
	}
	if n <= 1 {
		return identityOrder(n), 0, nil
	}

	gen := combin.NewPermutationGenerator(n, n)
	perm := make([]int, n)
	var best []int
	bestCost := math.Inf(1)
	for visited := 0; gen.Next(); visited++ {
		if visited%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}
		}
		perm = gen.Permutation(perm)
		if cost := kemenyCost(perm, prefs); cost < bestCost {
			bestCost = cost
			best = slices.Clone(perm)
		}
	}
	return best, bestCost, nil
}

// BranchAndBoundSearch is an exact depth-first search over order prefixes.
// A prefix is pruned when its cost plus the unavoidable cost of the
// remaining pairs cannot beat the incumbent, which is seeded with the
// order sorted by net pairwise wins.
type BranchAndBoundSearch struct{}

// Name implements KemenySearch.
func (BranchAndBoundSearch) Name() string { return StrategyBranchAndBound }

// Search implements KemenySearch.
func (BranchAndBoundSearch) Search(ctx context.Context, prefs [][]float64) ([]int, float64, error) {
	n := len(prefs)
	if n > maxBranchAndBoundLabels {
		return nil, 0, fmt.Errorf("%w: %s supports at most %d labels, got %d",
			ErrTooManyLabels, StrategyBranchAndBound, maxBranchAndBoundLabels, n)
	}
	if n <= 1 {
		return identityOrder(n), 0, nil
	}

	s := &bnbState{
		ctx:    ctx,
		prefs:  prefs,
		prefix: make([]int, 0, n),
	}
	s.best = netWinsOrder(prefs)
	s.bestCost = kemenyCost(s.best, prefs)

	var remaining uint64
	var bound float64
	for i := 0; i < n; i++ {
		remaining |= 1 << uint(i)
		for j := i + 1; j < n; j++ {
			bound += math.Min(prefs[i][j], prefs[j][i])
		}
	}

	if err := s.descend(remaining, 0, bound); err != nil {
		return nil, 0, err
	}
	return s.best, s.bestCost, nil
}

type bnbState struct {
	ctx      context.Context
	prefs    [][]float64
	prefix   []int
	best     []int
	bestCost float64
	nodes    int
}

// descend extends the prefix with each remaining item in ascending index
// order. cost is the exact cost of pairs with at least one placed item and
// bound is the minimum possible cost of pairs among the remaining items.
func (s *bnbState) descend(remaining uint64, cost, bound float64) error {
	if remaining == 0 {
		if cost < s.bestCost {
			s.bestCost = cost
			s.best = slices.Clone(s.prefix)
		}
		return nil
	}

	s.nodes++
	if s.nodes%4096 == 0 {
		if err := s.ctx.Err(); err != nil {
			return err
		}
	}

	for rest := remaining; rest != 0; rest &= rest - 1 {
		x := bits.TrailingZeros64(rest)
		after := remaining &^ (1 << uint(x))

		// Placing x first among the remaining items fixes its relation to
		// every other remaining item.
		added, relaxed := 0.0, 0.0
		for others := after; others != 0; others &= others - 1 {
			y := bits.TrailingZeros64(others)
			added += s.prefs[y][x]
			relaxed += math.Min(s.prefs[x][y], s.prefs[y][x])
		}

		nextCost := cost + added
		nextBound := bound - relaxed
		if nextCost+nextBound >= s.bestCost {
			continue
		}

		s.prefix = append(s.prefix, x)
		err := s.descend(after, nextCost, nextBound)
		s.prefix = s.prefix[:len(s.prefix)-1]
		if err != nil {
			return err
		}
	}
	return nil
}

// netWinsOrder orders items by descending net pairwise preference weight,
// breaking ties by index.
func netWinsOrder(prefs [][]float64) []int {
	n := len(prefs)
	net := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				net[i] += prefs[i][j] - prefs[j][i]
			}
		}
	}
	return orderByScore(identityOrder(n), func(i int) float64 { return net[i] })
}

func identityOrder(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}
