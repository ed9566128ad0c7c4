package application

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-rankagg/internal/domain"
	"github.com/ahrav/go-rankagg/internal/ports"
)

var (
	_ ports.Pipeline      = (*Pipeline)(nil)
	_ ports.Layer         = (*Layer)(nil)
	_ ports.MergeStrategy = CollectingMergeStrategy{}
)

// Pipeline is a sequential execution container that processes executables
// in strict order, where each executable's output becomes the input for
// the next executable in the sequence.
// A Pipeline stamps its ID into domain.KeyPipelineID before the first
// executable runs so results can be attributed to it.
type Pipeline struct {
	// id is the unique identifier for this pipeline within the experiment.
	id string
	// executables contains the ordered list of components that will execute
	// sequentially, with data flowing from one to the next.
	executables []ports.Executable
	// idSet tracks executable IDs for O(1) duplicate detection.
	idSet map[string]struct{}
	mu    sync.RWMutex
}

// NewPipeline creates a new sequential execution pipeline with the specified
// identifier, ready to accept executable components.
func NewPipeline(id string) *Pipeline {
	return &Pipeline{
		id:    id,
		idSet: make(map[string]struct{}),
	}
}

// Execute processes all executables in this pipeline sequentially,
// passing the output state from each executable as input to the next.
// Execute returns immediately if the context is cancelled between
// executables, and wraps the first failure with the executable's ID.
func (p *Pipeline) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	executables := p.Executables()

	currentState := domain.With(state, domain.KeyPipelineID, p.id)
	for _, exec := range executables {
		if err := ctx.Err(); err != nil {
			return currentState, err
		}
		newState, err := exec.Execute(ctx, currentState)
		if err != nil {
			return currentState, fmt.Errorf("pipeline %s: execution failed at %s: %w", p.id, exec.ID(), err)
		}
		currentState = newState
	}

	return currentState, nil
}

// ID returns the unique string identifier for this pipeline.
func (p *Pipeline) ID() string { return p.id }

// Add appends an executable to the end of this pipeline.
// Add returns an error if the executable is nil or if an executable
// with the same ID already exists in the pipeline.
func (p *Pipeline) Add(exec ports.Executable) error {
	if exec == nil {
		return fmt.Errorf("cannot add nil executable to pipeline")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	execID := exec.ID()
	if _, exists := p.idSet[execID]; exists {
		return fmt.Errorf("executable with ID %s already exists in pipeline", execID)
	}

	p.executables = append(p.executables, exec)
	p.idSet[execID] = struct{}{}
	return nil
}

// Executables returns a copy of the ordered executables in this pipeline.
func (p *Pipeline) Executables() []ports.Executable {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.executables)
}

// Layer is a parallel execution container that runs independent
// executables concurrently, each receiving the same input state.
// Successful outputs are merged in the order the executables were added,
// so the merged result does not depend on scheduling.
type Layer struct {
	id          string
	executables []ports.Executable
	idSet       map[string]struct{}
	// mergeStrategy combines branch outputs. If nil,
	// CollectingMergeStrategy is used.
	mergeStrategy ports.MergeStrategy
	// concurrencyLimit caps concurrent executions. Values <= 0 select
	// runtime.NumCPU() * 2.
	concurrencyLimit int
	mu               sync.RWMutex
}

// NewLayer creates a new parallel execution layer with the specified
// identifier.
func NewLayer(id string) *Layer {
	return &Layer{
		id:               id,
		idSet:            make(map[string]struct{}),
		concurrencyLimit: runtime.NumCPU() * 2,
	}
}

// Execute runs all executables concurrently through an errgroup bounded
// by the concurrency limit. Every executable runs to completion; if any
// fail, their errors are joined in executable order and the input state is
// returned unchanged. Otherwise the outputs are merged.
func (l *Layer) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	l.mu.RLock()
	executables := slices.Clone(l.executables)
	limit := l.concurrencyLimit
	strategy := l.mergeStrategy
	l.mu.RUnlock()

	if len(executables) == 0 {
		return state, nil
	}
	if limit <= 0 {
		limit = runtime.NumCPU() * 2
	}
	if strategy == nil {
		strategy = CollectingMergeStrategy{}
	}

	states := make([]domain.State, len(executables))
	errs := make([]error, len(executables))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, exec := range executables {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = fmt.Errorf("executable %s: %w", exec.ID(), err)
				return errs[i]
			}
			out, err := exec.Execute(ctx, state)
			if err != nil {
				errs[i] = fmt.Errorf("executable %s: %w", exec.ID(), err)
				return errs[i]
			}
			states[i] = out
			return nil
		})
	}

	if g.Wait() != nil {
		failed := slices.DeleteFunc(errs, func(err error) bool { return err == nil })
		return state, fmt.Errorf("layer %s failed with %d errors: %w", l.id, len(failed), errors.Join(failed...))
	}

	merged, err := strategy.Merge(state, states)
	if err != nil {
		return state, fmt.Errorf("layer %s: merge failed: %w", l.id, err)
	}
	return merged, nil
}

// ID returns the unique string identifier for this layer.
func (l *Layer) ID() string { return l.id }

// Add includes an executable in this layer's parallel execution group.
// Add returns an error if the executable is nil or its ID is already used.
func (l *Layer) Add(exec ports.Executable) error {
	if exec == nil {
		return fmt.Errorf("cannot add nil executable to layer")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	execID := exec.ID()
	if _, exists := l.idSet[execID]; exists {
		return fmt.Errorf("executable with ID %s already exists in layer", execID)
	}

	l.executables = append(l.executables, exec)
	l.idSet[execID] = struct{}{}
	return nil
}

// Executables returns a copy of the layer's executables in the order they
// were added, which is also the merge order.
func (l *Layer) Executables() []ports.Executable {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.executables)
}

// SetMergeStrategy configures how branch outputs are combined.
func (l *Layer) SetMergeStrategy(strategy ports.MergeStrategy) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mergeStrategy = strategy
}

// SetConcurrencyLimit configures the maximum number of executables that
// run at once. Values <= 0 select runtime.NumCPU() * 2.
func (l *Layer) SetConcurrencyLimit(limit int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.concurrencyLimit = limit
}

// CollectingMergeStrategy merges branch outputs by appending, in branch
// order, the consensus history and evaluations each branch added on top of
// the base state. KeyConsensus is set to the last collected consensus.
// Any other key a branch wrote, including its pipeline ID, is discarded.
type CollectingMergeStrategy struct{}

// Merge implements ports.MergeStrategy.
func (CollectingMergeStrategy) Merge(base domain.State, states []domain.State) (domain.State, error) {
	baseHistory, _ := domain.Get(base, domain.KeyConsensuses)
	baseEvals, _ := domain.Get(base, domain.KeyEvaluations)

	history := slices.Clone(baseHistory)
	evals := slices.Clone(baseEvals)
	for i, s := range states {
		h, _ := domain.Get(s, domain.KeyConsensuses)
		if len(h) < len(baseHistory) {
			return base, fmt.Errorf("branch %d dropped consensus history (%d < %d)", i, len(h), len(baseHistory))
		}
		history = append(history, h[len(baseHistory):]...)

		e, _ := domain.Get(s, domain.KeyEvaluations)
		if len(e) < len(baseEvals) {
			return base, fmt.Errorf("branch %d dropped evaluations (%d < %d)", i, len(e), len(baseEvals))
		}
		evals = append(evals, e[len(baseEvals):]...)
	}

	updates := make(map[string]any, 3)
	if len(history) > len(baseHistory) {
		updates[domain.KeyConsensuses.Name()] = history
		updates[domain.KeyConsensus.Name()] = history[len(history)-1]
	}
	if len(evals) > len(baseEvals) {
		updates[domain.KeyEvaluations.Name()] = evals
	}
	if len(updates) == 0 {
		return base, nil
	}
	return base.WithMultiple(updates), nil
}
