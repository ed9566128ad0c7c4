package units

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-rankagg/internal/domain"
	"github.com/ahrav/go-rankagg/internal/ports"
)

// AlgorithmPlackettLuce is the registry type and model algorithm name of the
// Plackett-Luce aggregator.
const AlgorithmPlackettLuce = "plackett_luce"

// minStrength replaces the MM update of labels that were never preferred
// over anything, whose maximum-likelihood strength is zero.
const minStrength = 1e-12

var (
	_ ports.Unit            = (*PlackettLuceUnit)(nil)
	_ domain.RankAggregator = (*PlackettLuceUnit)(nil)
)

// PlackettLuceUnit fits Plackett-Luce strengths by maximum likelihood and
// returns the labels ordered by descending strength as consensus.
//
// Algorithm: the minorization-maximization (MM) iteration for generalized
// Bradley-Terry models. Each round sets every label's strength to its win
// count divided by the sum, over all choice stages it took part in, of
// count / (total strength remaining at that stage). Strengths are then
// normalised to sum to one.
//
// Termination: stops when the largest absolute strength change of a round
// is below MinimumRequiredChangeOnUpdate, or after
// ceil(IterationsSampleSetSizeMultiplier × number of instances) rounds.
//
// Preconditions: every ranking must be strict; partial strict rankings are
// accepted. Labels that appear in no ranking keep their initial strength.
type PlackettLuceUnit struct {
	name   string
	config PlackettLuceConfig
	logger *zap.Logger
}

// PlackettLuceConfig controls the MM fit.
type PlackettLuceConfig struct {
	// MinimumRequiredChangeOnUpdate is the convergence threshold on the
	// largest absolute per-label strength change of one round. It must be
	// positive; zero would never be reached before the iteration cap.
	MinimumRequiredChangeOnUpdate float64 `yaml:"minimum_required_change_on_update" json:"minimum_required_change_on_update" validate:"gt=0"`

	// IterationsSampleSetSizeMultiplier scales the number of distinct
	// instances into the iteration cap.
	IterationsSampleSetSizeMultiplier float64 `yaml:"iterations_sample_set_size_multiplier" json:"iterations_sample_set_size_multiplier" validate:"gt=0"`
}

// DefaultPlackettLuceConfig returns defaults suited to datasets of a few
// hundred distinct rankings.
func DefaultPlackettLuceConfig() PlackettLuceConfig {
	return PlackettLuceConfig{
		MinimumRequiredChangeOnUpdate:     1e-7,
		IterationsSampleSetSizeMultiplier: 10,
	}
}

// NewPlackettLuceUnit creates a Plackett-Luce aggregator with a validated
// configuration. A nil logger disables logging.
func NewPlackettLuceUnit(name string, config PlackettLuceConfig, logger *zap.Logger) (*PlackettLuceUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &PlackettLuceUnit{name: name, config: config, logger: loggerOrNop(logger)}, nil
}

// Name returns the unique identifier for this unit instance.
func (u *PlackettLuceUnit) Name() string { return u.name }

// Execute trains on domain.KeyDataset and stores the consensus, with the
// fitted strengths and iteration count attached, under domain.KeyConsensus
// and domain.KeyConsensuses.
func (u *PlackettLuceUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	return executeAggregator(ctx, state, u, func(c *domain.Consensus, m domain.RankAggregationModel) {
		if pl, ok := m.(*PlackettLuceModel); ok {
			c.Strengths = pl.Strengths()
			c.Iterations = pl.Iterations()
		}
	})
}

// Validate verifies the unit's configuration.
func (u *PlackettLuceUnit) Validate() error {
	if err := validate.Struct(u.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// MaxIterations returns the iteration cap for a dataset with the given
// number of distinct instances.
func (u *PlackettLuceUnit) MaxIterations(instances int) int {
	return max(1, int(math.Ceil(u.config.IterationsSampleSetSizeMultiplier*float64(instances))))
}

// Train implements domain.RankAggregator. The returned model is a
// *PlackettLuceModel.
func (u *PlackettLuceUnit) Train(ctx context.Context, ds *domain.RankAggregationDataset) (domain.RankAggregationModel, error) {
	return u.Fit(ctx, ds)
}

// Fit is Train with a concrete return type.
func (u *PlackettLuceUnit) Fit(ctx context.Context, ds *domain.RankAggregationDataset) (*PlackettLuceModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ds == nil {
		return nil, domain.NewTrainingError(AlgorithmPlackettLuce, -1, ErrDatasetNotFound)
	}
	if err := requireStrictRankings(AlgorithmPlackettLuce, ds); err != nil {
		return nil, err
	}

	labels := ds.Labels()
	n := len(labels)
	index := make(map[int]int, n)
	for i, l := range labels {
		index[l] = i
	}

	type observation struct {
		items []int
		count float64
	}
	observations := make([]observation, 0, ds.NumberOfInstances())
	wins := make([]float64, n)
	for _, inst := range ds.Instances() {
		objects := inst.Ranking.Objects()
		if len(objects) < 2 {
			continue
		}
		items := make([]int, len(objects))
		for i, obj := range objects {
			items[i] = index[obj]
		}
		count := float64(inst.Count)
		for _, it := range items[:len(items)-1] {
			wins[it] += count
		}
		observations = append(observations, observation{items: items, count: count})
	}

	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	denom := make([]float64, n)
	next := make([]float64, n)

	maxIter := u.MaxIterations(ds.NumberOfInstances())
	iterations, converged := 0, false
	for iterations < maxIter {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		clear(denom)
		for _, obs := range observations {
			k := len(obs.items)
			var tail float64
			for _, it := range obs.items {
				tail += w[it]
			}
			// stage t contributes count/tail_t to every item at position ≥ t.
			var acc float64
			for t, it := range obs.items {
				if t < k-1 {
					acc += obs.count / tail
					tail -= w[it]
				}
				denom[it] += acc
			}
		}

		var sum float64
		for i := range next {
			switch {
			case denom[i] == 0:
				next[i] = w[i]
			case wins[i] == 0:
				next[i] = minStrength
			default:
				next[i] = wins[i] / denom[i]
			}
			sum += next[i]
		}

		var change float64
		for i := range next {
			next[i] /= sum
			change = math.Max(change, math.Abs(next[i]-w[i]))
		}
		w, next = next, w
		iterations++

		if change < u.config.MinimumRequiredChangeOnUpdate {
			converged = true
			break
		}
	}

	strengths := make(map[int]float64, n)
	for i, l := range labels {
		strengths[l] = w[i]
	}

	u.logger.Debug("plackett-luce trained",
		zap.String("unit", u.name),
		zap.Int("labels", n),
		zap.Int("instances", ds.NumberOfInstances()),
		zap.Int("iterations", iterations),
		zap.Int("max_iterations", maxIter),
		zap.Bool("converged", converged))
	if !converged {
		u.logger.Warn("plackett-luce stopped at iteration cap",
			zap.String("unit", u.name),
			zap.Int("iterations", iterations))
	}

	return newPlackettLuceModel(labels, strengths, iterations, converged)
}

// UnmarshalParameters decodes and validates YAML parameters, replacing the
// current configuration on success.
func (u *PlackettLuceUnit) UnmarshalParameters(params yaml.Node) error {
	config := DefaultPlackettLuceConfig()
	if err := params.Decode(&config); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}
	u.config = config
	return nil
}

// NewPlackettLuceFromConfig creates a PlackettLuceUnit from a configuration
// map. This is the boundary adapter for YAML/JSON configuration.
func NewPlackettLuceFromConfig(id string, config map[string]any) (ports.Unit, error) {
	logger := loggerFromConfig(config)
	cfg := DefaultPlackettLuceConfig()
	if err := decodeConfigMap(config, &cfg); err != nil {
		return nil, err
	}
	return NewPlackettLuceUnit(id, cfg, logger)
}
