package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ahrav/go-rankagg/internal/domain"
)

// ExperimentReport summarises one run of an experiment.
type ExperimentReport struct {
	ExperimentID string    `json:"experiment_id" yaml:"experiment_id"`
	Name         string    `json:"name" yaml:"name"`
	ConfigHash   string    `json:"config_hash" yaml:"config_hash"`
	StartedAt    time.Time `json:"started_at" yaml:"started_at"`
	Duration     string    `json:"duration" yaml:"duration"`

	// Consensuses lists every consensus produced, grouped by pipeline in
	// configuration order.
	Consensuses []*domain.Consensus `json:"consensuses" yaml:"consensuses"`

	// Evaluations lists every loss computed, in the same order.
	Evaluations []domain.Evaluation `json:"evaluations" yaml:"evaluations"`
}

// ExperimentRunner executes compiled experiments.
type ExperimentRunner struct {
	logger *zap.Logger
	newID  func() string
}

// NewExperimentRunner creates a runner. A nil logger disables logging.
func NewExperimentRunner(logger *zap.Logger) *ExperimentRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExperimentRunner{logger: logger, newID: uuid.NewString}
}

// Run executes every pipeline of exp against a fresh state seeded with the
// datasets and a new experiment ID, and collects the results.
func (r *ExperimentRunner) Run(ctx context.Context, exp *Experiment) (*ExperimentReport, error) {
	if exp == nil {
		return nil, fmt.Errorf("experiment cannot be nil")
	}

	id := r.newID()
	logger := r.logger.With(
		zap.String("experiment_id", id),
		zap.String("experiment", exp.Name()),
	)

	state := domain.With(domain.NewState(), domain.KeyDataset, exp.Dataset)
	if exp.Expected != nil {
		state = domain.With(state, domain.KeyExpectedRankings, exp.Expected)
	}
	state = state.WithMultiple(map[string]any{
		domain.KeyExperimentID.Name():   id,
		domain.KeyExperimentName.Name(): exp.Name(),
	})

	logger.Debug("initial state", zap.Strings("keys", state.Keys()))
	logger.Info("experiment started",
		zap.Int("pipelines", len(exp.Pipelines())),
		zap.Int("labels", exp.Dataset.NumberOfLabels()),
		zap.Int("instances", exp.Dataset.NumberOfInstances()))

	start := time.Now()
	out, err := exp.layer.Execute(ctx, state)
	elapsed := time.Since(start)
	if err != nil {
		logger.Error("experiment failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return nil, fmt.Errorf("experiment %s: %w", exp.Name(), err)
	}

	consensuses, _ := domain.Get(out, domain.KeyConsensuses)
	evaluations, _ := domain.Get(out, domain.KeyEvaluations)
	for _, ev := range evaluations {
		logger.Info("loss computed",
			zap.String("pipeline", ev.Pipeline),
			zap.String("metric", ev.Metric),
			zap.String("consensus", ev.Consensus),
			zap.Float64("value", ev.Value))
	}
	logger.Info("experiment finished",
		zap.Duration("elapsed", elapsed),
		zap.Int("consensuses", len(consensuses)),
		zap.Int("evaluations", len(evaluations)))

	return &ExperimentReport{
		ExperimentID: id,
		Name:         exp.Name(),
		ConfigHash:   exp.Hash,
		StartedAt:    start,
		Duration:     elapsed.String(),
		Consensuses:  consensuses,
		Evaluations:  evaluations,
	}, nil
}
