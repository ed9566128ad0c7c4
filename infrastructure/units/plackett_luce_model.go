package units

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/ahrav/go-rankagg/internal/domain"
)

// ErrInvalidStrength is returned when a Plackett-Luce strength is not a
// positive finite number.
var ErrInvalidStrength = errors.New("strength must be positive and finite")

// PlackettLuceModel is a fitted Plackett-Luce distribution over rankings of
// a label universe. Each label carries a positive strength; the probability
// of a strict ranking o1 > o2 > ... > ok is the product over positions t of
// w(ot) / Σ_{s≥t} w(os).
//
// The model is immutable and safe for concurrent use. Sample and
// SampleDataset draw from a caller-supplied *rand.Rand, which must not be
// shared between goroutines.
type PlackettLuceModel struct {
	*consensusModel
	strengths  map[int]float64
	iterations int
	converged  bool
}

// NewPlackettLuceModel builds a model from explicit strengths. Strengths
// need not be normalised.
func NewPlackettLuceModel(strengths map[int]float64) (*PlackettLuceModel, error) {
	if len(strengths) == 0 {
		return nil, fmt.Errorf("%w: no labels", ErrInvalidStrength)
	}
	labels := slices.Sorted(maps.Keys(strengths))
	for _, l := range labels {
		w := strengths[l]
		if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%w: label %d has strength %v", ErrInvalidStrength, l, w)
		}
	}
	return newPlackettLuceModel(labels, maps.Clone(strengths), 0, true)
}

func newPlackettLuceModel(labels []int, strengths map[int]float64, iterations int, converged bool) (*PlackettLuceModel, error) {
	order := slices.Clone(labels)
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(strengths[b], strengths[a])
	})
	base, err := newConsensusModel(AlgorithmPlackettLuce, labels, order)
	if err != nil {
		return nil, err
	}
	return &PlackettLuceModel{
		consensusModel: base,
		strengths:      strengths,
		iterations:     iterations,
		converged:      converged,
	}, nil
}

// Strengths returns a copy of the per-label strengths.
func (m *PlackettLuceModel) Strengths() map[int]float64 { return maps.Clone(m.strengths) }

// Strength returns the strength of label l and whether l is known.
func (m *PlackettLuceModel) Strength(l int) (float64, bool) {
	w, ok := m.strengths[l]
	return w, ok
}

// Labels returns the label universe in ascending order.
func (m *PlackettLuceModel) Labels() []int { return slices.Clone(m.labels) }

// Iterations returns the number of MM updates performed during training,
// or 0 for a model built from explicit strengths.
func (m *PlackettLuceModel) Iterations() int { return m.iterations }

// Converged reports whether training stopped because the largest strength
// change fell below the configured threshold.
func (m *PlackettLuceModel) Converged() bool { return m.converged }

// Probability returns the probability of observing the strict ranking r.
// Partial rankings are scored over the objects they contain.
func (m *PlackettLuceModel) Probability(r domain.Ranking) (float64, error) {
	lp, err := m.logProbability(r)
	if err != nil {
		return 0, err
	}
	return math.Exp(lp), nil
}

func (m *PlackettLuceModel) logProbability(r domain.Ranking) (float64, error) {
	if r.IsZero() {
		return 0, fmt.Errorf("%w: empty ranking", domain.ErrInvalidRanking)
	}
	if !r.IsTotalOrder() {
		return 0, fmt.Errorf("%w: got %q", ErrStrictOrderRequired, r.String())
	}

	objects := r.Objects()
	weights := make([]float64, len(objects))
	var tail float64
	for i, obj := range objects {
		w, ok := m.strengths[obj]
		if !ok {
			return 0, fmt.Errorf("object %d is not a label of the model", obj)
		}
		weights[i] = w
		tail += w
	}

	var lp float64
	for _, w := range weights[:len(weights)-1] {
		lp += math.Log(w) - math.Log(tail)
		tail -= w
	}
	return lp, nil
}

// LogLikelihood returns the count-weighted log-likelihood of a dataset of
// strict rankings.
func (m *PlackettLuceModel) LogLikelihood(ds *domain.RankAggregationDataset) (float64, error) {
	var ll float64
	for i, inst := range ds.Instances() {
		lp, err := m.logProbability(inst.Ranking)
		if err != nil {
			return 0, fmt.Errorf("instance %d: %w", i, err)
		}
		ll += float64(inst.Count) * lp
	}
	return ll, nil
}

// Sample draws one complete strict ranking. Labels are drawn without
// replacement with probability proportional to their strength.
func (m *PlackettLuceModel) Sample(rng *rand.Rand) domain.Ranking {
	pool := slices.Clone(m.labels)
	weights := make([]float64, len(pool))
	var total float64
	for i, l := range pool {
		weights[i] = m.strengths[l]
		total += weights[i]
	}

	order := make([]int, 0, len(pool))
	for len(pool) > 0 {
		pick := len(pool) - 1
		u := rng.Float64() * total
		for i, w := range weights {
			if u < w {
				pick = i
				break
			}
			u -= w
		}
		order = append(order, pool[pick])
		total -= weights[pick]
		pool = slices.Delete(pool, pick, pick+1)
		weights = slices.Delete(weights, pick, pick+1)
	}
	return domain.MustTotalOrder(order...)
}

// SampleDataset draws n rankings and merges identical ones into counted
// instances.
func (m *PlackettLuceModel) SampleDataset(rng *rand.Rand, n int) (*domain.RankAggregationDataset, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: sample size must be positive, got %d", domain.ErrInvalidDataset, n)
	}
	builder := domain.NewDatasetBuilder(m.labels)
	for i := 0; i < n; i++ {
		builder.Add(m.Sample(rng), 1)
	}
	return builder.Build()
}
