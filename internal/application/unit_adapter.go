package application

import (
	"context"
	"fmt"

	"github.com/ahrav/go-rankagg/internal/domain"
	"github.com/ahrav/go-rankagg/internal/ports"
)

var _ ports.Executable = (*UnitAdapter)(nil)

// UnitAdapter wraps a ports.Unit so it can be placed in a Pipeline or
// Layer. The adapter's ID is the unit's configured ID, which may differ
// from the name the unit reports when middleware wraps it.
type UnitAdapter struct {
	unit ports.Unit
	id   string
}

// NewUnitAdapter creates an adapter for unit under the given ID.
func NewUnitAdapter(unit ports.Unit, id string) *UnitAdapter {
	return &UnitAdapter{unit: unit, id: id}
}

// Execute runs the wrapped unit and tags failures with the adapter ID.
func (ua *UnitAdapter) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	out, err := ua.unit.Execute(ctx, state)
	if err != nil {
		return state, fmt.Errorf("unit %s: %w", ua.id, err)
	}
	return out, nil
}

// ID returns the adapter's identifier.
func (ua *UnitAdapter) ID() string { return ua.id }

// Unit returns the wrapped unit.
func (ua *UnitAdapter) Unit() ports.Unit { return ua.unit }
