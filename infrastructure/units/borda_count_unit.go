package units

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ahrav/go-rankagg/internal/domain"
	"github.com/ahrav/go-rankagg/internal/ports"
)

// AlgorithmBordaCount is the registry type and model algorithm name of the
// Borda Count aggregator.
const AlgorithmBordaCount = "borda_count"

var (
	_ ports.Unit            = (*BordaCountUnit)(nil)
	_ domain.RankAggregator = (*BordaCountUnit)(nil)
)

// BordaCountUnit aggregates strict rankings by positional scoring.
//
// Scoring: with N labels in the dataset, the object at position p of a
// ranking earns (N-1-p) points multiplied by the instance count. Rankings
// may be partial; objects a ranking omits receive nothing from it.
//
// Ordering: labels are sorted by descending total score. Equal totals keep
// the order in which the labels first appear in the dataset, and labels that
// appear in no ranking follow in ascending order.
//
// Concurrency: stateless and safe for concurrent use.
type BordaCountUnit struct {
	name   string
	logger *zap.Logger
}

// NewBordaCountUnit creates a Borda Count aggregator. A nil logger disables
// logging.
func NewBordaCountUnit(name string, logger *zap.Logger) (*BordaCountUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	return &BordaCountUnit{name: name, logger: loggerOrNop(logger)}, nil
}

// Name returns the unique identifier for this unit instance.
func (u *BordaCountUnit) Name() string { return u.name }

// Execute trains on domain.KeyDataset and stores the consensus under
// domain.KeyConsensus and domain.KeyConsensuses.
func (u *BordaCountUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	return executeAggregator(ctx, state, u, nil)
}

// Validate implements ports.Unit. Borda Count has no parameters.
func (u *BordaCountUnit) Validate() error { return nil }

// Train implements domain.RankAggregator.
func (u *BordaCountUnit) Train(ctx context.Context, ds *domain.RankAggregationDataset) (domain.RankAggregationModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ds == nil {
		return nil, domain.NewTrainingError(AlgorithmBordaCount, -1, ErrDatasetNotFound)
	}
	if err := requireStrictRankings(AlgorithmBordaCount, ds); err != nil {
		return nil, err
	}

	labels := ds.Labels()
	scores := make(map[int]float64, len(labels))
	firstSeen := make([]int, 0, len(labels))
	top := len(labels) - 1
	for _, inst := range ds.Instances() {
		for pos, obj := range inst.Ranking.Objects() {
			if _, seen := scores[obj]; !seen {
				firstSeen = append(firstSeen, obj)
			}
			scores[obj] += float64((top - pos) * inst.Count)
		}
	}

	candidates := firstSeen
	for _, l := range labels {
		if _, seen := scores[l]; !seen {
			candidates = append(candidates, l)
		}
	}

	order := orderByScore(candidates, func(l int) float64 { return scores[l] })
	u.logger.Debug("borda count trained",
		zap.String("unit", u.name),
		zap.Int("labels", len(labels)),
		zap.Int("instances", ds.NumberOfInstances()),
		zap.Ints("order", order))

	return newConsensusModel(AlgorithmBordaCount, labels, order)
}

// NewBordaCountFromConfig creates a BordaCountUnit from a configuration map.
// The only accepted entry is an injected "logger".
func NewBordaCountFromConfig(id string, config map[string]any) (ports.Unit, error) {
	for k := range config {
		if k != "logger" {
			return nil, fmt.Errorf("borda_count accepts no parameters, got %q", k)
		}
	}
	return NewBordaCountUnit(id, loggerFromConfig(config))
}
