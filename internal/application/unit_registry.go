package application

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/ahrav/go-rankagg/infrastructure/units"
	"github.com/ahrav/go-rankagg/internal/ports"
)

// Verify interface compliance at compile time.
var _ ports.UnitRegistry = (*DefaultUnitRegistry)(nil)

// DefaultUnitRegistry implements ports.UnitRegistry with the built-in
// aggregator and loss units pre-registered. It injects a per-unit logger
// into every factory call and wraps created units with the configured
// middleware.
type DefaultUnitRegistry struct {
	factories  map[string]ports.UnitFactory
	logger     *zap.Logger
	middleware []func(ports.Unit) ports.Unit
	mu         sync.RWMutex
}

// RegistryOption configures a DefaultUnitRegistry.
type RegistryOption func(*DefaultUnitRegistry)

// WithLogger sets the logger handed to created units. Each unit receives a
// child logger carrying its ID.
func WithLogger(logger *zap.Logger) RegistryOption {
	return func(r *DefaultUnitRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithUnitMiddleware wraps every created unit. The first middleware is the
// outermost wrapper.
func WithUnitMiddleware(mw ...func(ports.Unit) ports.Unit) RegistryOption {
	return func(r *DefaultUnitRegistry) {
		r.middleware = append(r.middleware, mw...)
	}
}

// NewDefaultUnitRegistry creates a registry with the built-in unit types:
// borda_count, kemeny_young, plackett_luce, kendalls_tau and spearman.
func NewDefaultUnitRegistry(opts ...RegistryOption) *DefaultUnitRegistry {
	r := &DefaultUnitRegistry{
		factories: map[string]ports.UnitFactory{
			units.AlgorithmBordaCount:   units.NewBordaCountFromConfig,
			units.AlgorithmKemenyYoung:  units.NewKemenyYoungFromConfig,
			units.AlgorithmPlackettLuce: units.NewPlackettLuceFromConfig,
			units.MetricKendallsTau:     units.NewKendallsTauFromConfig,
			units.MetricSpearman:        units.NewSpearmanFromConfig,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateUnit creates a unit of the given type. The caller's config map is
// not modified.
func (r *DefaultUnitRegistry) CreateUnit(
	unitType string,
	id string,
	config map[string]any,
) (ports.Unit, error) {
	r.mu.RLock()
	factory, exists := r.factories[unitType]
	logger := r.logger
	middleware := r.middleware
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ports.ErrUnsupportedUnitType, unitType)
	}
	if id == "" {
		return nil, fmt.Errorf("unit ID cannot be empty")
	}

	cfg := maps.Clone(config)
	if cfg == nil {
		cfg = make(map[string]any, 1)
	}
	cfg["logger"] = logger.With(zap.String("unit", id), zap.String("type", unitType))

	unit, err := factory(id, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create unit %s of type %s: %w", id, unitType, err)
	}

	for i := len(middleware) - 1; i >= 0; i-- {
		unit = middleware[i](unit)
	}
	return unit, nil
}

// RegisterUnitFactory adds or replaces the factory for a unit type.
func (r *DefaultUnitRegistry) RegisterUnitFactory(
	unitType string,
	factory ports.UnitFactory,
) error {
	if unitType == "" {
		return fmt.Errorf("unit type cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory function cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[unitType] = factory
	return nil
}

// GetSupportedTypes returns the registered unit types in sorted order.
func (r *DefaultUnitRegistry) GetSupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}
