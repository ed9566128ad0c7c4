package units

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ahrav/go-rankagg/internal/domain"
)

// ErrInvalidWeight is returned when a loss pair carries a negative or
// non-finite weight.
var ErrInvalidWeight = errors.New("loss weight must be finite and non-negative")

// LossPair is one (expected, predicted) comparison in a batch. Weight is
// typically the multiplicity of the expected ranking in its dataset.
type LossPair struct {
	Expected  domain.Ranking
	Predicted domain.Ranking
	Weight    float64
}

// scratchLoss is implemented by loss functions that can reuse a
// CorrelationScratch across the pairs of a batch.
type scratchLoss interface {
	LossWithScratch(expected, predicted domain.Ranking, scratch *CorrelationScratch) (float64, error)
}

// WeightedLossPairs pairs every instance of expected with predicted,
// weighted by instance count.
func WeightedLossPairs(expected *domain.RankAggregationDataset, predicted domain.Ranking) []LossPair {
	pairs := make([]LossPair, 0, expected.NumberOfInstances())
	for _, inst := range expected.Instances() {
		pairs = append(pairs, LossPair{
			Expected:  inst.Ranking,
			Predicted: predicted,
			Weight:    float64(inst.Count),
		})
	}
	return pairs
}

// MeanLoss scores every pair with fn and returns Σ w·loss / Σ w. When no
// pair carries a positive weight the plain mean is returned instead.
//
// The batch fails as a whole on the first pair that cannot be scored; no
// partial aggregate is returned.
func MeanLoss(fn domain.LossFunction, pairs []LossPair) (float64, error) {
	if len(pairs) == 0 {
		return 0, ErrNoLossPairs
	}

	losses := make([]float64, len(pairs))
	weights := make([]float64, len(pairs))
	weighted := false
	scratch := &CorrelationScratch{}
	for i, p := range pairs {
		if p.Weight < 0 || math.IsNaN(p.Weight) || math.IsInf(p.Weight, 0) {
			return 0, fmt.Errorf("pair %d: %w: got %v", i, ErrInvalidWeight, p.Weight)
		}
		weights[i] = p.Weight
		weighted = weighted || p.Weight > 0

		var (
			loss float64
			err  error
		)
		if sl, ok := fn.(scratchLoss); ok {
			loss, err = sl.LossWithScratch(p.Expected, p.Predicted, scratch)
		} else {
			loss, err = fn.Loss(p.Expected, p.Predicted)
		}
		if err != nil {
			return 0, fmt.Errorf("pair %d: %w", i, err)
		}
		losses[i] = loss
	}

	if !weighted {
		weights = nil
	}
	return stat.Mean(losses, weights), nil
}
