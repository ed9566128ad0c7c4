package units

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-rankagg/internal/domain"
	"github.com/ahrav/go-rankagg/internal/ports"
)

// AlgorithmKemenyYoung is the registry type and model algorithm name of the
// Kemeny-Young aggregator.
const AlgorithmKemenyYoung = "kemeny_young"

var (
	_ ports.Unit            = (*KemenyYoungUnit)(nil)
	_ domain.RankAggregator = (*KemenyYoungUnit)(nil)
)

// KemenyYoungUnit finds the total order over all labels that minimises the
// count-weighted number of pairwise disagreements with the dataset.
//
// Preconditions: every ranking must be a strict total order over the full
// label universe. Partial rankings, ties, incomparabilities and bracket
// groups are rejected with a *domain.TrainingError before any search runs.
//
// Labels are mapped to search indices in ascending label order, so among
// equally optimal orders the result depends only on the dataset and the
// configured strategy.
//
// Complexity: the exhaustive strategy is factorial in the number of labels
// and refuses datasets with more than 10 of them (ErrTooManyLabels).
// branch_and_bound is exact as well, handles up to 64 labels, and prunes
// most of the search space on datasets with a clear consensus. Set it for
// anything larger than a handful of labels.
type KemenyYoungUnit struct {
	name   string
	config KemenyYoungConfig
	search KemenySearch
	logger *zap.Logger
}

// KemenyYoungConfig configures the Kemeny-Young search.
type KemenyYoungConfig struct {
	// Strategy selects the search algorithm.
	// "exhaustive": enumerate every permutation
	// "branch_and_bound": depth-first search with lower-bound pruning
	Strategy string `yaml:"strategy" json:"strategy" validate:"required,oneof=exhaustive branch_and_bound"`
}

// DefaultKemenyYoungConfig returns the exhaustive search configuration.
func DefaultKemenyYoungConfig() KemenyYoungConfig {
	return KemenyYoungConfig{Strategy: StrategyExhaustive}
}

// NewKemenyYoungUnit creates a Kemeny-Young aggregator with a validated
// configuration. A nil logger disables logging.
func NewKemenyYoungUnit(name string, config KemenyYoungConfig, logger *zap.Logger) (*KemenyYoungUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	search, err := NewKemenySearch(config.Strategy)
	if err != nil {
		return nil, err
	}
	return &KemenyYoungUnit{
		name:   name,
		config: config,
		search: search,
		logger: loggerOrNop(logger),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (u *KemenyYoungUnit) Name() string { return u.name }

// Execute trains on domain.KeyDataset and stores the consensus under
// domain.KeyConsensus and domain.KeyConsensuses.
func (u *KemenyYoungUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	return executeAggregator(ctx, state, u, nil)
}

// Validate verifies the unit's configuration.
func (u *KemenyYoungUnit) Validate() error {
	if err := validate.Struct(u.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// Train implements domain.RankAggregator.
func (u *KemenyYoungUnit) Train(ctx context.Context, ds *domain.RankAggregationDataset) (domain.RankAggregationModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ds == nil {
		return nil, domain.NewTrainingError(AlgorithmKemenyYoung, -1, ErrDatasetNotFound)
	}
	if err := requireStrictRankings(AlgorithmKemenyYoung, ds); err != nil {
		return nil, err
	}

	labels := ds.Labels()
	n := len(labels)
	for i := 0; i < ds.NumberOfInstances(); i++ {
		if l := ds.InstanceAt(i).Ranking.Len(); l != n {
			return nil, domain.NewTrainingError(AlgorithmKemenyYoung, i,
				fmt.Errorf("ranking covers %d of %d labels, a complete ranking is required", l, n))
		}
	}

	prefs := PairwisePreferences(ds)
	order, cost, err := u.search.Search(ctx, prefs)
	if err != nil {
		return nil, domain.NewTrainingError(AlgorithmKemenyYoung, -1, err)
	}

	consensus := make([]int, n)
	for i, idx := range order {
		consensus[i] = labels[idx]
	}

	u.logger.Debug("kemeny-young trained",
		zap.String("unit", u.name),
		zap.String("strategy", u.search.Name()),
		zap.Int("labels", n),
		zap.Float64("cost", cost),
		zap.Ints("order", consensus))

	return newConsensusModel(AlgorithmKemenyYoung, labels, consensus)
}

// PairwisePreferences builds the count-weighted preference matrix of a
// dataset of strict rankings. Rows and columns follow ds.Labels(); entry
// [i][j] is the number of voters ranking label i above label j.
func PairwisePreferences(ds *domain.RankAggregationDataset) [][]float64 {
	labels := ds.Labels()
	index := make(map[int]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}

	prefs := make([][]float64, len(labels))
	for i := range prefs {
		prefs[i] = make([]float64, len(labels))
	}
	for _, inst := range ds.Instances() {
		objects := inst.Ranking.Objects()
		for a := 0; a < len(objects); a++ {
			for b := a + 1; b < len(objects); b++ {
				prefs[index[objects[a]]][index[objects[b]]] += float64(inst.Count)
			}
		}
	}
	return prefs
}

// UnmarshalParameters decodes and validates YAML parameters, replacing the
// current configuration on success.
func (u *KemenyYoungUnit) UnmarshalParameters(params yaml.Node) error {
	config := DefaultKemenyYoungConfig()
	if err := params.Decode(&config); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}
	search, err := NewKemenySearch(config.Strategy)
	if err != nil {
		return err
	}
	u.config = config
	u.search = search
	return nil
}

// NewKemenyYoungFromConfig creates a KemenyYoungUnit from a configuration map.
// This is the boundary adapter for YAML/JSON configuration.
func NewKemenyYoungFromConfig(id string, config map[string]any) (ports.Unit, error) {
	logger := loggerFromConfig(config)
	cfg := DefaultKemenyYoungConfig()
	if err := decodeConfigMap(config, &cfg); err != nil {
		return nil, err
	}
	return NewKemenyYoungUnit(id, cfg, logger)
}
