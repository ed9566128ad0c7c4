package ports

import (
	"context"

	"github.com/ahrav/go-rankagg/internal/domain"
)

// Executable is anything that transforms an experiment State: a single
// unit, a pipeline of units, or a layer of pipelines.
type Executable interface {
	// Execute returns a new state derived from state. The input state may
	// be shared with other goroutines and must not be modified; use
	// domain.With or State.WithMultiple to derive the result.
	Execute(ctx context.Context, state domain.State) (domain.State, error)

	// ID returns an identifier that is stable for the executable's
	// lifetime and unique within its experiment.
	ID() string
}

// Pipeline runs executables one after another, feeding each one the state
// produced by the previous one. A typical pipeline trains an aggregator
// and then scores its consensus with one or more loss units.
type Pipeline interface {
	Executable

	// Add appends exec to the end of the pipeline. It fails on a nil
	// executable or an ID already present in the pipeline.
	Add(exec Executable) error

	// Executables returns the steps in execution order. Callers must not
	// modify the returned slice.
	Executables() []Executable
}

// MergeStrategy folds the states of a layer's branches back into one.
type MergeStrategy interface {
	// Merge combines states, given in branch-add order, with base, the
	// state every branch started from. It must be deterministic for a given
	// input order and must not modify its arguments.
	Merge(base domain.State, states []domain.State) (domain.State, error)
}

// Layer runs independent executables concurrently on the same input state
// and merges their results.
type Layer interface {
	Executable

	// Add registers exec as a branch. It fails on a nil executable or a
	// duplicate ID.
	Add(exec Executable) error

	// Executables returns the branches in the order they were added, which
	// is also the order their results are merged in. Callers must not
	// modify the returned slice.
	Executables() []Executable

	// SetMergeStrategy replaces the merge strategy. The default collects
	// every branch's new consensuses and evaluations in branch order. It
	// must be called before Execute.
	SetMergeStrategy(strategy MergeStrategy)
}
