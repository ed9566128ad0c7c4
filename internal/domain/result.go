package domain

import (
	"time"
)

// Consensus is the output of an aggregator unit: the dataset-level
// consensus ranking and provenance information.
type Consensus struct {
	// Unit identifies the aggregator unit that produced the consensus.
	Unit string `json:"unit" yaml:"unit"`

	// Algorithm names the aggregation algorithm, e.g. "borda_count".
	Algorithm string `json:"algorithm" yaml:"algorithm"`

	// Pipeline identifies the pipeline the unit ran in, if any.
	Pipeline string `json:"pipeline,omitempty" yaml:"pipeline,omitempty"`

	// Ranking is the consensus ranking over the dataset's label universe.
	Ranking Ranking `json:"-" yaml:"-"`

	// Rendered is Ranking.String(), kept for serialisation.
	Rendered string `json:"ranking" yaml:"ranking"`

	// Strengths holds fitted per-label parameters for models that have
	// them, such as Plackett-Luce.
	Strengths map[int]float64 `json:"strengths,omitempty" yaml:"strengths,omitempty"`

	// Iterations is the number of optimisation rounds used by iterative
	// algorithms.
	Iterations int `json:"iterations,omitempty" yaml:"iterations,omitempty"`

	// Timestamp records when training finished.
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// NewConsensus creates a Consensus stamped with the current time.
func NewConsensus(unit, algorithm string, r Ranking) *Consensus {
	return &Consensus{
		Unit:      unit,
		Algorithm: algorithm,
		Ranking:   r,
		Rendered:  r.String(),
		Timestamp: time.Now(),
	}
}

// Evaluation is the aggregated loss of one consensus against a set of
// expected rankings.
type Evaluation struct {
	// Metric names the loss function, e.g. "spearman".
	Metric string `json:"metric" yaml:"metric"`

	// Unit identifies the loss unit that computed the value.
	Unit string `json:"unit" yaml:"unit"`

	// Consensus identifies the aggregator unit whose output was scored.
	Consensus string `json:"consensus" yaml:"consensus"`

	// Pipeline identifies the pipeline the evaluation ran in, if any.
	Pipeline string `json:"pipeline,omitempty" yaml:"pipeline,omitempty"`

	// Value is the (weighted) mean loss over all pairs.
	Value float64 `json:"value" yaml:"value"`

	// Pairs is the number of (expected, predicted) pairs scored.
	Pairs int `json:"pairs" yaml:"pairs"`

	// TotalWeight is the sum of pair weights used for the mean.
	TotalWeight float64 `json:"total_weight" yaml:"total_weight"`
}
