package application

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-rankagg/internal/domain"
)

// ExperimentConfig defines a complete rank-aggregation experiment and is the
// primary configuration entry point for the system.
// An experiment trains one or more aggregators on an inline dataset and
// scores their consensus with loss units, organised into pipelines that
// run concurrently.
type ExperimentConfig struct {
	// Version specifies the configuration schema version using semantic
	// versioning to ensure compatibility across system updates.
	Version string `yaml:"version" validate:"required,semver"`
	// Metadata contains descriptive information about the experiment.
	Metadata Metadata `yaml:"metadata" validate:"required"`
	// Units defines the aggregators and loss functions available to the
	// pipelines, each with its own parameters.
	Units []UnitConfig `yaml:"units" validate:"required,min=1,dive"`
	// Dataset is the training data every aggregator consumes.
	Dataset DatasetConfig `yaml:"dataset" validate:"required"`
	// Expected holds the rankings losses are computed against. When
	// omitted, losses score the consensus against the training dataset.
	Expected *DatasetConfig `yaml:"expected,omitempty" validate:"omitempty"`
	// Pipelines lists the sequential unit chains. Pipelines are
	// independent of each other and may run concurrently.
	Pipelines []PipelineConfig `yaml:"pipelines" validate:"required,min=1,dive"`
	// Parallelism caps the number of pipelines running at once. Zero
	// selects a default based on the number of CPUs.
	Parallelism int `yaml:"parallelism,omitempty" validate:"omitempty,min=1,max=256"`
}

// Metadata provides descriptive information about an experiment to support
// organisation and reporting.
type Metadata struct {
	// Name is the human-readable identifier for this experiment.
	Name string `yaml:"name" validate:"required,min=1,max=255"`
	// Description explains the experiment's purpose.
	Description string `yaml:"description,omitempty" validate:"max=1000"`
	// Tags are categorical labels for filtering and grouping experiments.
	Tags []string `yaml:"tags,omitempty" validate:"max=20,dive,min=1,max=50"`
	// Labels are arbitrary key-value pairs for external systems.
	Labels map[string]string `yaml:"labels,omitempty" validate:"max=50"`
}

// UnitConfig defines a single aggregator or loss unit.
type UnitConfig struct {
	// ID is the unique identifier for this unit within the experiment and
	// must be alphanumeric for safe referencing from pipelines.
	ID string `yaml:"id" validate:"required,alphanum,min=1,max=100"`
	// Type selects the unit implementation and determines which
	// parameters are accepted.
	Type string `yaml:"type" validate:"required,oneof=borda_count kemeny_young plackett_luce kendalls_tau spearman"`
	// Parameters contains type-specific configuration validated according
	// to the unit type.
	Parameters yaml.Node `yaml:"parameters,omitempty"`
}

// DatasetConfig is the inline representation of a RankAggregationDataset.
type DatasetConfig struct {
	// Labels is the label universe. Every ranked object must be a label.
	Labels []int `yaml:"labels" validate:"required,min=1,unique"`
	// Rankings lists the observed rankings with their multiplicities.
	Rankings []RankingConfig `yaml:"rankings" validate:"required,min=1,dive"`
}

// RankingConfig is one dataset instance. Ranking uses the textual form
// produced by domain.Ranking.String, for example "1 > {2 = 3} > 4".
type RankingConfig struct {
	Ranking string `yaml:"ranking" validate:"required"`
	// Count is the number of voters that produced the ranking. Zero is
	// read as one.
	Count int `yaml:"count,omitempty" validate:"omitempty,min=1"`
}

// PipelineConfig defines a sequential chain of units where each unit sees
// the state produced by the previous one.
type PipelineConfig struct {
	// ID is the unique identifier for this pipeline.
	ID string `yaml:"id" validate:"required,alphanum,min=1,max=100"`
	// Units lists unit IDs in execution order.
	Units []string `yaml:"units" validate:"required,min=1,dive,alphanum"`
}

// Build parses every ranking and assembles the dataset. Structurally equal
// rankings are merged with their counts added.
func (c DatasetConfig) Build() (*domain.RankAggregationDataset, error) {
	b := domain.NewDatasetBuilder(c.Labels)
	for i, rc := range c.Rankings {
		r, err := domain.ParseRanking(rc.Ranking)
		if err != nil {
			return nil, fmt.Errorf("ranking %d: %w", i, err)
		}
		count := rc.Count
		if count == 0 {
			count = 1
		}
		b.Add(r, count)
	}
	return b.Build()
}

// DatasetConfigFromDataset renders ds in its inline configuration form.
func DatasetConfigFromDataset(ds *domain.RankAggregationDataset) DatasetConfig {
	cfg := DatasetConfig{
		Labels:   ds.Labels(),
		Rankings: make([]RankingConfig, 0, ds.NumberOfInstances()),
	}
	for _, inst := range ds.Instances() {
		cfg.Rankings = append(cfg.Rankings, RankingConfig{
			Ranking: inst.Ranking.String(),
			Count:   inst.Count,
		})
	}
	return cfg
}
