package units

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-rankagg/internal/domain"
	"github.com/ahrav/go-rankagg/internal/ports"
)

var _ ports.Unit = (*LossUnit)(nil)

// LossUnit scores a consensus against the expected rankings of the state
// with one loss function and appends a domain.Evaluation.
//
// State requirements:
//   - domain.KeyConsensuses or domain.KeyConsensus: the ranking to score
//   - domain.KeyExpectedRankings: ground truth, falling back to
//     domain.KeyDataset when absent
type LossUnit struct {
	name   string
	metric domain.LossFunction
	config LossConfig
	logger *zap.Logger
}

// LossConfig controls how a LossUnit builds its batch.
type LossConfig struct {
	// Weighted weights each expected ranking by its instance count. When
	// false every instance counts once.
	Weighted bool `yaml:"weighted" json:"weighted"`

	// Consensus selects the aggregator unit whose consensus is scored.
	// Empty scores the most recent consensus.
	Consensus string `yaml:"consensus,omitempty" json:"consensus,omitempty" validate:"omitempty,min=1"`
}

// DefaultLossConfig returns a count-weighted configuration scoring the
// latest consensus.
func DefaultLossConfig() LossConfig {
	return LossConfig{Weighted: true}
}

// NewLossUnit creates a loss unit around metric. A nil logger disables
// logging.
func NewLossUnit(name string, metric domain.LossFunction, config LossConfig, logger *zap.Logger) (*LossUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if metric == nil {
		return nil, fmt.Errorf("loss unit %s: metric cannot be nil", name)
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &LossUnit{name: name, metric: metric, config: config, logger: loggerOrNop(logger)}, nil
}

// Name returns the unique identifier for this unit instance.
func (u *LossUnit) Name() string { return u.name }

// Metric returns the wrapped loss function.
func (u *LossUnit) Metric() domain.LossFunction { return u.metric }

// Execute implements ports.Unit.
func (u *LossUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	if err := ctx.Err(); err != nil {
		return state, err
	}

	consensus, err := u.selectConsensus(state)
	if err != nil {
		return state, err
	}

	expected, ok := domain.Get(state, domain.KeyExpectedRankings)
	if !ok || expected == nil {
		expected, ok = domain.Get(state, domain.KeyDataset)
		if !ok || expected == nil {
			return state, domain.NewStateError(domain.KeyExpectedRankings.Name(), "get", ErrDatasetNotFound)
		}
	}

	pairs := WeightedLossPairs(expected, consensus.Ranking)
	totalWeight := 0.0
	for i := range pairs {
		if !u.config.Weighted {
			pairs[i].Weight = 0
		}
		totalWeight += pairs[i].Weight
	}
	if !u.config.Weighted {
		totalWeight = float64(len(pairs))
	}

	value, err := MeanLoss(u.metric, pairs)
	if err != nil {
		return state, fmt.Errorf("%s failed for consensus %s: %w", u.metric.Name(), consensus.Unit, err)
	}

	ev := domain.Evaluation{
		Metric:      u.metric.Name(),
		Unit:        u.name,
		Consensus:   consensus.Unit,
		Value:       value,
		Pairs:       len(pairs),
		TotalWeight: totalWeight,
	}
	if pipelineID, ok := domain.Get(state, domain.KeyPipelineID); ok {
		ev.Pipeline = pipelineID
	}

	u.logger.Debug("loss computed",
		zap.String("unit", u.name),
		zap.String("metric", ev.Metric),
		zap.String("consensus", ev.Consensus),
		zap.Float64("value", ev.Value),
		zap.Int("pairs", ev.Pairs))

	return state.AppendEvaluation(ev), nil
}

func (u *LossUnit) selectConsensus(state domain.State) (*domain.Consensus, error) {
	if u.config.Consensus == "" {
		c, ok := domain.Get(state, domain.KeyConsensus)
		if !ok || c == nil {
			return nil, domain.NewStateError(domain.KeyConsensus.Name(), "get", ErrConsensusNotFound)
		}
		return c, nil
	}

	history, _ := domain.Get(state, domain.KeyConsensuses)
	for i := len(history) - 1; i >= 0; i-- {
		if history[i] != nil && history[i].Unit == u.config.Consensus {
			return history[i], nil
		}
	}
	return nil, domain.NewStateError(domain.KeyConsensuses.Name(), "get",
		fmt.Errorf("%w: no consensus from unit %q", ErrConsensusNotFound, u.config.Consensus))
}

// Validate verifies the unit's configuration.
func (u *LossUnit) Validate() error {
	if err := validate.Struct(u.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// UnmarshalParameters decodes and validates YAML parameters, replacing the
// current configuration on success.
func (u *LossUnit) UnmarshalParameters(params yaml.Node) error {
	config := DefaultLossConfig()
	if err := params.Decode(&config); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}
	u.config = config
	return nil
}

// NewKendallsTauFromConfig creates a Kendall's Tau LossUnit from a
// configuration map.
func NewKendallsTauFromConfig(id string, config map[string]any) (ports.Unit, error) {
	return newLossUnitFromConfig(id, KendallsTau{}, config)
}

// NewSpearmanFromConfig creates a Spearman LossUnit from a configuration map.
func NewSpearmanFromConfig(id string, config map[string]any) (ports.Unit, error) {
	return newLossUnitFromConfig(id, Spearman{}, config)
}

func newLossUnitFromConfig(id string, metric domain.LossFunction, config map[string]any) (ports.Unit, error) {
	logger := loggerFromConfig(config)
	cfg := DefaultLossConfig()
	if err := decodeConfigMap(config, &cfg); err != nil {
		return nil, err
	}
	return NewLossUnit(id, metric, cfg, logger)
}
