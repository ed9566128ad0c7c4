package application

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-rankagg/infrastructure/units"
	"github.com/ahrav/go-rankagg/internal/domain"
	"github.com/ahrav/go-rankagg/internal/ports"
)

var paramValidator = validator.New()

// ValidateUnitParameters validates the parameters for a specific unit type
// by strictly decoding them over the unit's defaults and applying the
// unit configuration's validation rules. Unknown keys are rejected.
func ValidateUnitParameters(unitType string, params yaml.Node) error {
	switch unitType {
	case units.AlgorithmBordaCount:
		var empty struct{}
		return decodeParameters(params, &empty)
	case units.AlgorithmKemenyYoung:
		cfg := units.DefaultKemenyYoungConfig()
		return decodeAndValidate(params, &cfg)
	case units.AlgorithmPlackettLuce:
		cfg := units.DefaultPlackettLuceConfig()
		return decodeAndValidate(params, &cfg)
	case units.MetricKendallsTau, units.MetricSpearman:
		cfg := units.DefaultLossConfig()
		return decodeAndValidate(params, &cfg)
	default:
		return fmt.Errorf("%w: %s", ports.ErrUnsupportedUnitType, unitType)
	}
}

func decodeAndValidate(params yaml.Node, dst any) error {
	if err := decodeParameters(params, dst); err != nil {
		return err
	}
	if err := paramValidator.Struct(dst); err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}
	return nil
}

// decodeParameters decodes params into dst, failing on unknown fields.
// An absent or null node leaves dst untouched.
func decodeParameters(params yaml.Node, dst any) error {
	if params.IsZero() {
		return nil
	}
	data, err := yaml.Marshal(&params)
	if err != nil {
		return fmt.Errorf("failed to encode parameters: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	return nil
}

// parametersToMap converts a parameters node into the flat map consumed by
// unit factories.
func parametersToMap(params yaml.Node) (map[string]any, error) {
	out := make(map[string]any)
	if params.IsZero() {
		return out, nil
	}
	if err := params.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode parameters: %w", err)
	}
	if out == nil {
		out = make(map[string]any)
	}
	return out, nil
}

func isAggregatorType(unitType string) bool {
	switch unitType {
	case units.AlgorithmBordaCount, units.AlgorithmKemenyYoung, units.AlgorithmPlackettLuce:
		return true
	}
	return false
}

// validateSemantics checks rules that struct tags cannot express: unique
// IDs, pipeline references, unit parameters and the requirement that a
// loss unit only scores an aggregator that ran earlier in its pipeline.
// Every violation is reported in a single domain.ValidationError.
func validateSemantics(config *ExperimentConfig) error {
	verr := domain.NewValidationError("experiment")

	unitTypes := make(map[string]string, len(config.Units))
	lossTargets := make(map[string]string)
	for _, u := range config.Units {
		if _, exists := unitTypes[u.ID]; exists {
			verr.AddError(fmt.Sprintf("duplicate unit ID %q", u.ID))
			continue
		}
		unitTypes[u.ID] = u.Type

		if err := ValidateUnitParameters(u.Type, u.Parameters); err != nil {
			verr.AddError(fmt.Sprintf("unit %s parameter validation failed: %v", u.ID, err))
			continue
		}
		if !isAggregatorType(u.Type) {
			cfg := units.DefaultLossConfig()
			if err := decodeParameters(u.Parameters, &cfg); err != nil {
				verr.AddError(fmt.Sprintf("unit %s: %v", u.ID, err))
				continue
			}
			lossTargets[u.ID] = cfg.Consensus
		}
	}

	pipelineIDs := make(map[string]struct{}, len(config.Pipelines))
	for _, p := range config.Pipelines {
		if _, exists := pipelineIDs[p.ID]; exists {
			verr.AddError(fmt.Sprintf("duplicate pipeline ID %q", p.ID))
		}
		if _, clash := unitTypes[p.ID]; clash {
			verr.AddError(fmt.Sprintf("pipeline ID %q is already used by a unit", p.ID))
		}
		pipelineIDs[p.ID] = struct{}{}

		ran := make(map[string]struct{}, len(p.Units))
		aggregated := false
		for _, unitID := range p.Units {
			unitType, exists := unitTypes[unitID]
			if !exists {
				verr.AddError(fmt.Sprintf("pipeline %s references non-existent unit: %s", p.ID, unitID))
				continue
			}
			if _, dup := ran[unitID]; dup {
				verr.AddError(fmt.Sprintf("pipeline %s lists unit %s more than once", p.ID, unitID))
				continue
			}
			ran[unitID] = struct{}{}

			if isAggregatorType(unitType) {
				aggregated = true
				continue
			}
			if !aggregated {
				verr.AddError(fmt.Sprintf("pipeline %s: loss unit %s runs before any aggregator", p.ID, unitID))
				continue
			}
			if target := lossTargets[unitID]; target != "" {
				if _, ok := ran[target]; !ok || !isAggregatorType(unitTypes[target]) {
					verr.AddError(fmt.Sprintf("pipeline %s: loss unit %s scores %q, which is not an earlier aggregator",
						p.ID, unitID, target))
				}
			}
		}
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

// registerCustomValidators registers validation functions beyond the
// validator's built-in tags.
func registerCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("semver", validateSemver); err != nil {
		return fmt.Errorf("failed to register semver validator: %w", err)
	}
	return nil
}

// validateSemver reports whether a field holds a MAJOR.MINOR.PATCH version
// of non-negative integers.
func validateSemver(fl validator.FieldLevel) bool {
	parts := strings.Split(fl.Field().String(), ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return false
		}
	}
	return true
}
