package units

import "github.com/ahrav/go-rankagg/internal/domain"

// MetricKendallsTau is the registry type and metric name of Kendall's Tau.
const MetricKendallsTau = "kendalls_tau"

var _ domain.LossFunction = KendallsTau{}

// KendallsTau is the Kendall rank correlation between an expected ranking
// and a predicted ranking restricted to the expected objects.
//
// With D the number of discordant pairs among the N reconciled objects and
// n the length of the predicted ranking before restriction, the score is
// 1 - 4D / (n(n-1)). A prediction that agrees on every expected pair scores
// 1 no matter how many extra objects it ranks. Pairs tied in either ranking
// are neither concordant nor discordant.
type KendallsTau struct{}

// Name implements domain.LossFunction.
func (KendallsTau) Name() string { return MetricKendallsTau }

// Loss implements domain.LossFunction.
func (k KendallsTau) Loss(expected, predicted domain.Ranking) (float64, error) {
	return k.LossWithScratch(expected, predicted, nil)
}

// LossWithScratch is Loss reusing the buffers of scratch.
func (KendallsTau) LossWithScratch(expected, predicted domain.Ranking, scratch *CorrelationScratch) (float64, error) {
	ranks, err := ReconcileRankings(MetricKendallsTau, expected, predicted, scratch)
	if err != nil {
		return 0, err
	}
	return kendallsTau(ranks), nil
}

func kendallsTau(r ReconciledRanks) float64 {
	discordant := 0
	for i := 0; i < r.Len(); i++ {
		for j := i + 1; j < r.Len(); j++ {
			if (r.Expected[i]-r.Expected[j])*(r.Predicted[i]-r.Predicted[j]) < 0 {
				discordant++
			}
		}
	}
	n := float64(r.OriginalLength)
	return 1 - 4*float64(discordant)/(n*(n-1))
}
