// Package units provides the rank aggregation and ranking loss units that
// implement the ports.Unit interface for the go-rankagg experiment engine.
package units

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-rankagg/internal/domain"
)

// Common errors returned by units.
var (
	// ErrEmptyUnitName is returned when attempting to create a unit with an empty name.
	ErrEmptyUnitName = errors.New("unit name cannot be empty")

	// ErrDatasetNotFound is returned when an aggregator unit runs on a state
	// without a training dataset.
	ErrDatasetNotFound = fmt.Errorf("dataset %w", domain.ErrKeyNotFound)

	// ErrConsensusNotFound is returned when a loss unit runs before any
	// aggregator produced a consensus.
	ErrConsensusNotFound = fmt.Errorf("consensus %w", domain.ErrKeyNotFound)

	// ErrNoLossPairs is returned when a batch loss is requested for zero pairs.
	ErrNoLossPairs = errors.New("no ranking pairs to score")

	// ErrStrictOrderRequired is returned when an algorithm that only accepts
	// strict preferences meets a tie, incomparability or bracket group.
	ErrStrictOrderRequired = errors.New("ranking must be a strict order")
)

// Package-level validator instance for configuration validation.
// Uses go-playground/validator v10 for struct tag-based validation.
var validate = validator.New()

// loggerOrNop returns l, or a no-op logger when l is nil.
func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// loggerFromConfig extracts an injected *zap.Logger from a factory config map.
func loggerFromConfig(config map[string]any) *zap.Logger {
	if l, ok := config["logger"].(*zap.Logger); ok {
		return l
	}
	return nil
}

// decodeConfigMap overlays a factory config map onto dst, which should
// already hold defaults. Injected dependencies are skipped and unknown
// parameters are rejected.
func decodeConfigMap(config map[string]any, dst any) error {
	params := maps.Clone(config)
	delete(params, "logger")
	if len(params) == 0 {
		return nil
	}

	data, err := yaml.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// requireStrictRankings fails with a TrainingError naming the first
// instance whose ranking contains a tie, incomparability or group.
func requireStrictRankings(algorithm string, ds *domain.RankAggregationDataset) error {
	for i := 0; i < ds.NumberOfInstances(); i++ {
		r := ds.InstanceAt(i).Ranking
		if !r.IsTotalOrder() {
			return domain.NewTrainingError(algorithm, i,
				fmt.Errorf("%w: got %q", ErrStrictOrderRequired, r.String()))
		}
	}
	return nil
}

// consensusModel is a population-level model returning one fixed
// consensus for every query.
type consensusModel struct {
	algorithm string
	labels    []int
	consensus domain.Ranking
}

var _ domain.RankAggregationModel = (*consensusModel)(nil)

func newConsensusModel(algorithm string, labels []int, order []int) (*consensusModel, error) {
	consensus, err := domain.NewTotalOrder(order...)
	if err != nil {
		return nil, fmt.Errorf("failed to build consensus ranking: %w", err)
	}
	return &consensusModel{
		algorithm: algorithm,
		labels:    labels,
		consensus: consensus,
	}, nil
}

// Algorithm implements domain.RankAggregationModel.
func (m *consensusModel) Algorithm() string { return m.algorithm }

// Predict implements domain.RankAggregationModel.
func (m *consensusModel) Predict() domain.Ranking { return m.consensus }

// PredictInstance implements domain.RankAggregationModel. The query only
// has to stay inside the label universe; the answer is the global consensus.
func (m *consensusModel) PredictInstance(instance domain.RankingInstance) (domain.Ranking, error) {
	if instance.Ranking.IsZero() {
		return domain.Ranking{}, domain.NewPredictionError(m.algorithm,
			fmt.Errorf("%w: query instance has no ranking", domain.ErrInvalidRanking))
	}
	for _, obj := range instance.Ranking.Objects() {
		if _, found := slices.BinarySearch(m.labels, obj); !found {
			return domain.Ranking{}, domain.NewPredictionError(m.algorithm,
				fmt.Errorf("object %d is not a label of the trained model", obj))
		}
	}
	return m.consensus, nil
}

// aggregatorTrainer is the subset of an aggregator unit used by
// executeAggregator.
type aggregatorTrainer interface {
	Name() string
	Train(ctx context.Context, ds *domain.RankAggregationDataset) (domain.RankAggregationModel, error)
}

// executeAggregator trains agg on the state's dataset and records the
// resulting consensus.
func executeAggregator(
	ctx context.Context,
	state domain.State,
	agg aggregatorTrainer,
	decorate func(*domain.Consensus, domain.RankAggregationModel),
) (domain.State, error) {
	ds, ok := domain.Get(state, domain.KeyDataset)
	if !ok || ds == nil {
		return state, domain.NewStateError(domain.KeyDataset.Name(), "get", ErrDatasetNotFound)
	}

	model, err := agg.Train(ctx, ds)
	if err != nil {
		return state, fmt.Errorf("aggregation failed: %w", err)
	}

	consensus := domain.NewConsensus(agg.Name(), model.Algorithm(), model.Predict())
	if pipelineID, ok := domain.Get(state, domain.KeyPipelineID); ok {
		consensus.Pipeline = pipelineID
	}
	if decorate != nil {
		decorate(consensus, model)
	}

	history, _ := domain.Get(state, domain.KeyConsensuses)
	return state.WithMultiple(map[string]any{
		domain.KeyConsensus.Name():   consensus,
		domain.KeyConsensuses.Name(): append(history, consensus),
	}), nil
}

// orderByScore returns labels sorted by descending score. Equal scores keep
// the relative order of the input slice.
func orderByScore(labels []int, score func(label int) float64) []int {
	order := slices.Clone(labels)
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(score(b), score(a))
	})
	return order
}
