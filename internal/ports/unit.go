// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"context"

	"github.com/ahrav/go-rankagg/internal/domain"
)

// Unit represents the fundamental building block of an aggregation
// experiment. Each Unit performs a specific transformation on the State,
// such as training an aggregator on the dataset or scoring a consensus.
// Units should be stateless between executions and safe for concurrent use.
type Unit interface {
	// Name returns a unique identifier for this unit.
	// The name is used for logging, debugging, and configuration.
	Name() string

	// Execute performs the unit's transformation on the provided State.
	// It returns a new State containing the results of the transformation.
	// The original State should not be modified (immutability principle).
	// Any errors during execution should be returned rather than panicking.
	//
	// Example:
	//
	//	newState, err := unit.Execute(ctx, state)
	//	if err != nil {
	//	    return state, fmt.Errorf("unit %s failed: %w", unit.Name(), err)
	//	}
	Execute(ctx context.Context, state domain.State) (domain.State, error)

	// Validate checks if the unit is properly configured and ready for execution.
	// It is typically called during pipeline construction or before execution.
	// Return nil if validation passes, or an error describing what is invalid.
	Validate() error
}

// UnitFactory creates a unit instance from its identifier and a flat
// configuration map decoded from the unit's YAML parameters.
type UnitFactory func(id string, config map[string]any) (Unit, error)

// UnitRegistry maps unit type names to factories.
type UnitRegistry interface {
	// CreateUnit instantiates a unit of the given type.
	CreateUnit(unitType string, id string, config map[string]any) (Unit, error)

	// RegisterUnitFactory adds or replaces the factory for unitType.
	RegisterUnitFactory(unitType string, factory UnitFactory) error

	// GetSupportedTypes lists all registered unit types.
	GetSupportedTypes() []string
}
