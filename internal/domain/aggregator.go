package domain

import "context"

// RankAggregator defines the interface for learning a consensus ranking
// from a RankAggregationDataset. Implementations provide different
// aggregation strategies such as Borda Count, Kemeny-Young, or
// Plackett-Luce maximum likelihood.
type RankAggregator interface {
	// Train consumes the dataset read-only and returns a trained model.
	//
	// Implementations must check the dataset against their algorithmic
	// assumptions before starting the main computation and report a
	// violation as a *TrainingError. The context is checked before the
	// computation starts; aggregation itself is synchronous and CPU-bound.
	//
	// Example:
	//
	//	model, err := aggregator.Train(ctx, dataset)
	//	if err != nil {
	//	    return err
	//	}
	//	consensus := model.Predict()
	Train(ctx context.Context, dataset *RankAggregationDataset) (RankAggregationModel, error)
}

// RankAggregationModel is a trained, population-level consensus model.
type RankAggregationModel interface {
	// Algorithm returns the name of the algorithm that produced the model.
	Algorithm() string

	// Predict returns the dataset-level consensus ranking.
	Predict() Ranking

	// PredictInstance returns the same global consensus for a query
	// instance. It fails with a *PredictionError when the instance ranks
	// an object outside the model's label universe.
	PredictInstance(instance RankingInstance) (Ranking, error)
}

// LossFunction scores how well a predicted ranking matches an expected one.
// Implementations are stateless and safe for concurrent use.
type LossFunction interface {
	// Name returns the metric identifier, e.g. "kendalls_tau".
	Name() string

	// Loss compares expected against predicted. The predicted ranking may
	// be a superset of the expected one; failures are reported as
	// *LossComputationError.
	Loss(expected, predicted Ranking) (float64, error)
}
