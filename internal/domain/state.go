// Package domain contains pure, dependency-free domain models and types
// for rank aggregation: rankings, weighted ranking datasets, aggregation
// and loss contracts, and the immutable State passed between units.
package domain

import (
	"fmt"
	"maps"
	"reflect"
	"time"
)

// Key represents a type-safe generic key for accessing values in State.
// The type parameter T ensures compile-time type safety when getting and
// setting values, eliminating the need for runtime type assertions.
type Key[T any] struct{ name string }

// NewKey creates a new Key with the specified name and type.
// This function is provided for creating keys outside of the domain package.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Name returns the key's string identifier, for use with WithMultiple.
func (k Key[T]) Name() string { return k.name }

// Predefined state keys used throughout an aggregation experiment.
// Each key is strongly typed to ensure type safety at compile time.
var (
	// KeyDataset stores the training dataset consumed by aggregator units.
	KeyDataset = Key[*RankAggregationDataset]{"dataset"}

	// KeyExpectedRankings stores the ground-truth rankings, weighted by
	// count, that loss units score the consensus against. When absent,
	// loss units fall back to KeyDataset.
	KeyExpectedRankings = Key[*RankAggregationDataset]{"expected_rankings"}

	// KeyConsensus stores the consensus produced by the last aggregator.
	KeyConsensus = Key[*Consensus]{"consensus"}

	// KeyConsensuses stores every consensus produced so far, in execution
	// order. Layers merge the histories of their branches.
	KeyConsensuses = Key[[]*Consensus]{"consensuses"}

	// KeyEvaluations stores every loss computed so far, in execution order.
	KeyEvaluations = Key[[]Evaluation]{"evaluations"}

	// Execution context keys for tracking metadata across pipeline runs.

	// KeyExperimentID stores the unique identifier of the running
	// experiment, used for tracing and correlation.
	KeyExperimentID = Key[string]{"execution.experiment_id"}

	// KeyExperimentName stores the configured experiment name.
	KeyExperimentName = Key[string]{"execution.experiment_name"}

	// KeyPipelineID stores the identifier of the pipeline currently
	// executing.
	KeyPipelineID = Key[string]{"execution.pipeline_id"}
)

// immutableValue is implemented by domain types whose values never change
// after construction and may be shared without copying.
type immutableValue interface {
	immutable()
}

func (Ranking) immutable()                 {}
func (*RankAggregationDataset) immutable() {}

// deepCopyValue creates a deep copy of a value to ensure true immutability.
// It handles slices, maps, and other reference types that would otherwise
// allow external modification of State data.
func deepCopyValue(value any) any {
	if value == nil {
		return nil
	}

	// time.Time is immutable and can be returned directly.
	if val, ok := value.(time.Time); ok {
		return val
	}
	if _, ok := value.(immutableValue); ok {
		return value
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Slice:
		newSlice := reflect.MakeSlice(v.Type(), v.Len(), v.Cap())
		for i := 0; i < v.Len(); i++ {
			newSlice.Index(i).Set(reflect.ValueOf(deepCopyValue(v.Index(i).Interface())))
		}
		return newSlice.Interface()

	case reflect.Map:
		newMap := reflect.MakeMap(v.Type())
		for _, key := range v.MapKeys() {
			copiedKey := deepCopyValue(key.Interface())
			copiedValue := deepCopyValue(v.MapIndex(key).Interface())
			newMap.SetMapIndex(reflect.ValueOf(copiedKey), reflect.ValueOf(copiedValue))
		}
		return newMap.Interface()

	case reflect.Ptr:
		if v.IsNil() {
			return v.Interface()
		}
		newPtr := reflect.New(v.Elem().Type())
		newPtr.Elem().Set(reflect.ValueOf(deepCopyValue(v.Elem().Interface())))
		return newPtr.Interface()

	case reflect.Struct:
		// This performs a shallow copy for unexported fields but deep copies
		// exported fields.
		newStruct := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			if newStruct.Field(i).CanSet() {
				newStruct.Field(i).Set(reflect.ValueOf(deepCopyValue(v.Field(i).Interface())))
			}
		}
		return newStruct.Interface()

	default:
		// Primitive types are returned as-is since they are copied by value.
		return value
	}
}

// State represents an immutable collection of experiment data that flows
// through the pipeline. It uses copy-on-write semantics to ensure
// thread-safety and prevent unintended mutations. State is the primary
// data structure for passing information between Units.
type State struct {
	// data holds the key-value pairs that make up the state.
	// It is unexported to maintain immutability guarantees.
	data map[string]any
}

// NewState creates a new empty State.
// The returned State is ready to use and can be safely shared across
// goroutines.
func NewState() State {
	return State{
		data: make(map[string]any),
	}
}

// Get retrieves a value from the State with compile-time type safety.
// It returns the value and a boolean indicating whether the key exists
// and contains a value of the correct type. The returned value is a deep
// copy to maintain immutability.
//
// Example:
//
//	consensus, ok := Get(state, KeyConsensus)
//	if !ok {
//	    // handle missing value
//	}
//	// consensus is typed as *Consensus, no type assertion needed
func Get[T any](s State, key Key[T]) (T, bool) {
	var zero T
	value, exists := s.data[key.name]
	if !exists {
		return zero, false
	}

	copied := deepCopyValue(value)
	val, ok := copied.(T)
	return val, ok
}

// With creates a new State with the specified key-value pair added or
// updated. It implements copy-on-write semantics, returning a new State
// instance while leaving the original unchanged. This function is the
// primary way to add or update data in a State.
//
// Example:
//
//	newState := With(state, KeyDataset, dataset)
func With[T any](s State, key Key[T], value T) State {
	newData := maps.Clone(s.data)
	newData[key.name] = deepCopyValue(value)
	return State{data: newData}
}

// WithMultiple creates a new State with multiple key-value pairs added
// or updated. It is more efficient than chaining multiple With calls as
// it performs a single clone operation. The updates map uses string keys
// for flexibility when updating multiple values at once.
//
// Example:
//
//	updates := map[string]any{
//	    KeyPipelineID.name: "borda",
//	    KeyExperimentName.name: "weather-poll",
//	}
//	newState := state.WithMultiple(updates)
func (s State) WithMultiple(updates map[string]any) State {
	newData := maps.Clone(s.data)
	for k, v := range updates {
		newData[k] = deepCopyValue(v)
	}
	return State{data: newData}
}

// Keys returns all keys present in the State.
// The returned slice can be used to iterate over all stored values and
// is safe to modify without affecting the original State.
func (s State) Keys() []string {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// String returns a string representation of the State for debugging purposes.
func (s State) String() string {
	return fmt.Sprintf("State%v", s.data)
}

// ExecutionContext contains metadata about the current experiment run
// that flows through the State. It provides consistent access to
// execution metadata for middleware and observability.
type ExecutionContext struct {
	// ExperimentID is a unique identifier for this specific run.
	ExperimentID string

	// ExperimentName is the configured, human-readable experiment name.
	ExperimentName string

	// PipelineID identifies the pipeline being executed.
	PipelineID string
}

// WithExecutionContext creates a new State with execution context metadata
// included. It should be called before a pipeline starts executing.
func (s State) WithExecutionContext(ctx ExecutionContext) State {
	updates := map[string]any{
		KeyExperimentID.name:   ctx.ExperimentID,
		KeyExperimentName.name: ctx.ExperimentName,
		KeyPipelineID.name:     ctx.PipelineID,
	}
	return s.WithMultiple(updates)
}

// GetExecutionContext extracts execution context metadata from the State.
// It returns the execution context and a boolean indicating whether all
// required context fields are present.
func (s State) GetExecutionContext() (ExecutionContext, bool) {
	experimentID, ok1 := Get(s, KeyExperimentID)
	name, ok2 := Get(s, KeyExperimentName)
	pipelineID, ok3 := Get(s, KeyPipelineID)

	if !ok1 || !ok2 || !ok3 {
		return ExecutionContext{}, false
	}

	return ExecutionContext{
		ExperimentID:   experimentID,
		ExperimentName: name,
		PipelineID:     pipelineID,
	}, true
}

// AppendEvaluation returns a new State with ev appended to KeyEvaluations.
func (s State) AppendEvaluation(ev Evaluation) State {
	evals, _ := Get(s, KeyEvaluations)
	return With(s, KeyEvaluations, append(evals, ev))
}
