package application

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-rankagg/internal/domain"
	"github.com/ahrav/go-rankagg/internal/ports"
)

// Experiment is a compiled, ready-to-run experiment. Experiments returned by
// ExperimentLoader are cached and shared; they must not be modified.
type Experiment struct {
	// Config is the validated configuration the experiment was built from.
	Config *ExperimentConfig
	// Hash is the SHA-256 of the normalised configuration.
	Hash string
	// Dataset is the training dataset.
	Dataset *domain.RankAggregationDataset
	// Expected is the dataset losses score against, or nil to score
	// against Dataset.
	Expected *domain.RankAggregationDataset

	layer *Layer
}

// Name returns the configured experiment name.
func (e *Experiment) Name() string { return e.Config.Metadata.Name }

// Pipelines returns the experiment's pipelines in configuration order.
func (e *Experiment) Pipelines() []ports.Executable { return e.layer.Executables() }

// ExperimentLoader parses, validates and compiles experiment YAML into
// runnable Experiments. Compiled experiments are cached by the SHA-256 of
// the normalised configuration, and concurrent loads of the same
// configuration share one compilation.
type ExperimentLoader struct {
	validator    *validator.Validate
	unitRegistry ports.UnitRegistry
	// cache maps configuration hashes to compiled experiments.
	cache   map[string]*Experiment
	cacheMu sync.RWMutex
	sf      singleflight.Group
}

// NewExperimentLoader creates a loader that builds units through
// unitRegistry.
func NewExperimentLoader(unitRegistry ports.UnitRegistry) (*ExperimentLoader, error) {
	if unitRegistry == nil {
		return nil, fmt.Errorf("unit registry cannot be nil")
	}
	v := validator.New()
	if err := registerCustomValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}
	return &ExperimentLoader{
		validator:    v,
		unitRegistry: unitRegistry,
		cache:        make(map[string]*Experiment),
	}, nil
}

// LoadFromFile loads an experiment from a YAML file. A missing file is
// reported as a *ports.ConfigError wrapping ports.ErrConfigNotFound.
func (el *ExperimentLoader) LoadFromFile(ctx context.Context, path string) (*Experiment, error) {
	cleanPath := filepath.Clean(path)

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ports.NewConfigError(cleanPath, fmt.Errorf("%w: %v", ports.ErrConfigNotFound, err))
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return el.load(ctx, data)
}

// LoadFromReader loads an experiment from r.
func (el *ExperimentLoader) LoadFromReader(ctx context.Context, r io.Reader) (*Experiment, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	return el.load(ctx, data)
}

func (el *ExperimentLoader) load(ctx context.Context, data []byte) (*Experiment, error) {
	config, err := parseExperimentYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	hash, err := calculateConfigHash(config)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}

	v, err, _ := el.sf.Do(hash, func() (any, error) {
		if exp, ok := el.cached(hash); ok {
			return exp, nil
		}
		if err := el.validateConfig(config); err != nil {
			return nil, fmt.Errorf("validation failed: %w", err)
		}
		exp, err := el.build(ctx, config, hash)
		if err != nil {
			return nil, fmt.Errorf("failed to build experiment: %w", err)
		}

		el.cacheMu.Lock()
		el.cache[hash] = exp
		el.cacheMu.Unlock()
		return exp, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Experiment), nil
}

// parseExperimentYAML decodes data strictly so that misspelled keys are
// reported instead of silently ignored.
func parseExperimentYAML(data []byte) (*ExperimentConfig, error) {
	var config ExperimentConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ports.NewConfigError("experiment", ports.ErrConfigNotFound)
		}
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}
	return &config, nil
}

func (el *ExperimentLoader) validateConfig(config *ExperimentConfig) error {
	if err := el.validator.Struct(config); err != nil {
		return fmt.Errorf("struct validation failed: %w", err)
	}
	if err := validateSemantics(config); err != nil {
		return fmt.Errorf("semantic validation failed: %w", err)
	}
	return nil
}

// build creates the datasets, instantiates every unit through the registry
// and assembles one Pipeline per configured pipeline inside a Layer.
func (el *ExperimentLoader) build(ctx context.Context, config *ExperimentConfig, hash string) (*Experiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dataset, err := config.Dataset.Build()
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	var expected *domain.RankAggregationDataset
	if config.Expected != nil {
		if expected, err = config.Expected.Build(); err != nil {
			return nil, fmt.Errorf("expected: %w", err)
		}
	}

	built := make(map[string]ports.Unit, len(config.Units))
	for _, uc := range config.Units {
		params, err := parametersToMap(uc.Parameters)
		if err != nil {
			return nil, fmt.Errorf("unit %s: %w", uc.ID, err)
		}
		unit, err := el.unitRegistry.CreateUnit(uc.Type, uc.ID, params)
		if err != nil {
			return nil, err
		}
		if err := unit.Validate(); err != nil {
			return nil, fmt.Errorf("unit %s: %w", uc.ID, err)
		}
		built[uc.ID] = unit
	}

	layer := NewLayer("experiment")
	if config.Parallelism > 0 {
		layer.SetConcurrencyLimit(config.Parallelism)
	}
	for _, pc := range config.Pipelines {
		pipeline := NewPipeline(pc.ID)
		for _, unitID := range pc.Units {
			if err := pipeline.Add(NewUnitAdapter(built[unitID], unitID)); err != nil {
				return nil, fmt.Errorf("pipeline %s: %w", pc.ID, err)
			}
		}
		if err := layer.Add(pipeline); err != nil {
			return nil, err
		}
	}

	return &Experiment{
		Config:   config,
		Hash:     hash,
		Dataset:  dataset,
		Expected: expected,
		layer:    layer,
	}, nil
}

// calculateConfigHash hashes the re-encoded configuration so that
// formatting differences do not produce distinct cache entries.
func calculateConfigHash(config *ExperimentConfig) (string, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(config); err != nil {
		return "", fmt.Errorf("failed to encode config for hashing: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return "", fmt.Errorf("failed to encode config for hashing: %w", err)
	}

	hash := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(hash[:]), nil
}

func (el *ExperimentLoader) cached(hash string) (*Experiment, bool) {
	el.cacheMu.RLock()
	defer el.cacheMu.RUnlock()
	exp, ok := el.cache[hash]
	return exp, ok
}

// ClearCache drops every compiled experiment.
func (el *ExperimentLoader) ClearCache() {
	el.cacheMu.Lock()
	defer el.cacheMu.Unlock()
	el.cache = make(map[string]*Experiment)
}
