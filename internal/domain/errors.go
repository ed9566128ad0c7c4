package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Common domain errors that can occur during aggregation and evaluation.
var (
	// ErrKeyNotFound indicates that a required State key is absent.
	ErrKeyNotFound = errors.New("key not found")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidRanking indicates that a Ranking violates its structural invariants.
	ErrInvalidRanking = errors.New("invalid ranking")

	// ErrInvalidDataset indicates that a RankAggregationDataset violates its invariants.
	ErrInvalidDataset = errors.New("invalid rank aggregation dataset")

	// ErrTrainingFailed indicates that a dataset is incompatible with the
	// assumptions of the chosen aggregation algorithm.
	ErrTrainingFailed = errors.New("training failed")

	// ErrPredictionFailed indicates a malformed or incompatible query instance.
	ErrPredictionFailed = errors.New("prediction failed")

	// ErrLossComputation indicates that two rankings cannot be compared by a
	// loss function.
	ErrLossComputation = errors.New("loss computation failed")
)

// StateError represents an error that occurred during State operations.
// It provides context about which key and operation caused the error.
type StateError struct {
	// Key is the name of the state key that was involved in the failed operation.
	Key string

	// Operation describes what operation was being performed when the error occurred.
	Operation string

	// Err is the underlying error that caused the operation to fail.
	Err error
}

// Error implements the error interface for StateError.
func (e *StateError) Error() string {
	return fmt.Sprintf("state error: operation=%s, key=%s, err=%v", e.Operation, e.Key, e.Err)
}

// Unwrap returns the underlying error, supporting Go 1.13+ error unwrapping.
func (e *StateError) Unwrap() error { return e.Err }

// NewStateError creates a new StateError with the given details.
func NewStateError(key string, operation string, err error) *StateError {
	return &StateError{
		Key:       key,
		Operation: operation,
		Err:       err,
	}
}

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// Unwrap lets callers match validation failures with ErrInvalidConfiguration.
func (e *ValidationError) Unwrap() error { return ErrInvalidConfiguration }

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}

// TrainingError reports that an aggregation algorithm rejected its dataset.
// It is always raised before the algorithm starts its main computation.
type TrainingError struct {
	// Algorithm names the aggregation algorithm, e.g. "kemeny_young".
	Algorithm string

	// Instance is the offending dataset instance index, or -1 if the failure
	// is not tied to a single instance.
	Instance int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface for TrainingError.
func (e *TrainingError) Error() string {
	if e.Instance >= 0 {
		return fmt.Sprintf("training error: algorithm=%s, instance=%d, err=%v", e.Algorithm, e.Instance, e.Err)
	}
	return fmt.Sprintf("training error: algorithm=%s, err=%v", e.Algorithm, e.Err)
}

// Unwrap returns the underlying error.
func (e *TrainingError) Unwrap() error { return e.Err }

// Is makes every TrainingError match ErrTrainingFailed.
func (e *TrainingError) Is(target error) bool { return target == ErrTrainingFailed }

// NewTrainingError creates a TrainingError for the given dataset instance.
// Pass -1 when no single instance is at fault.
func NewTrainingError(algorithm string, instance int, err error) *TrainingError {
	return &TrainingError{
		Algorithm: algorithm,
		Instance:  instance,
		Err:       err,
	}
}

// PredictionError reports a query instance the model cannot answer.
type PredictionError struct {
	// Algorithm names the model's aggregation algorithm.
	Algorithm string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface for PredictionError.
func (e *PredictionError) Error() string {
	return fmt.Sprintf("prediction error: algorithm=%s, err=%v", e.Algorithm, e.Err)
}

// Unwrap returns the underlying error.
func (e *PredictionError) Unwrap() error { return e.Err }

// Is makes every PredictionError match ErrPredictionFailed.
func (e *PredictionError) Is(target error) bool { return target == ErrPredictionFailed }

// NewPredictionError creates a new PredictionError.
func NewPredictionError(algorithm string, err error) *PredictionError {
	return &PredictionError{Algorithm: algorithm, Err: err}
}

// LossComputationError reports that an expected and a predicted ranking
// could not be reconciled for scoring.
type LossComputationError struct {
	// Metric names the loss function, e.g. "kendalls_tau".
	Metric string

	// Missing lists expected objects absent from the predicted ranking.
	Missing []int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface for LossComputationError.
func (e *LossComputationError) Error() string {
	msg := fmt.Sprintf("loss computation error: metric=%s, err=%v", e.Metric, e.Err)
	if len(e.Missing) > 0 {
		ids := make([]string, len(e.Missing))
		for i, id := range e.Missing {
			ids[i] = fmt.Sprint(id)
		}
		msg += ", missing=[" + strings.Join(ids, " ") + "]"
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *LossComputationError) Unwrap() error { return e.Err }

// Is makes every LossComputationError match ErrLossComputation.
func (e *LossComputationError) Is(target error) bool { return target == ErrLossComputation }

// NewLossComputationError creates a new LossComputationError.
func NewLossComputationError(metric string, missing []int, err error) *LossComputationError {
	return &LossComputationError{Metric: metric, Missing: missing, Err: err}
}
