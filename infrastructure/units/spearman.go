package units

import "github.com/ahrav/go-rankagg/internal/domain"

// MetricSpearman is the registry type and metric name of Spearman's rank
// correlation.
const MetricSpearman = "spearman"

var _ domain.LossFunction = Spearman{}

// Spearman is Spearman's rank correlation between an expected ranking and a
// predicted ranking restricted to the expected objects:
// 1 - 6·Σd² / (n(n²-1)), where d is the per-object rank difference and n
// the number of reconciled objects.
type Spearman struct{}

// Name implements domain.LossFunction.
func (Spearman) Name() string { return MetricSpearman }

// Loss implements domain.LossFunction.
func (s Spearman) Loss(expected, predicted domain.Ranking) (float64, error) {
	return s.LossWithScratch(expected, predicted, nil)
}

// LossWithScratch is Loss reusing the buffers of scratch.
func (Spearman) LossWithScratch(expected, predicted domain.Ranking, scratch *CorrelationScratch) (float64, error) {
	ranks, err := ReconcileRankings(MetricSpearman, expected, predicted, scratch)
	if err != nil {
		return 0, err
	}
	return spearman(ranks), nil
}

func spearman(r ReconciledRanks) float64 {
	var sumSq float64
	for i := range r.Expected {
		d := r.Expected[i] - r.Predicted[i]
		sumSq += d * d
	}
	n := float64(r.Len())
	return 1 - 6*sumSq/(n*(n*n-1))
}
