package units

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ahrav/go-rankagg/internal/domain"
)

// Reconciliation errors. Both are wrapped in *domain.LossComputationError.
var (
	// ErrMissingObjects indicates that the predicted ranking lacks objects of
	// the expected ranking.
	ErrMissingObjects = errors.New("predicted ranking is missing expected objects")

	// ErrTooFewObjects indicates that fewer than two objects remain after
	// reconciliation, which leaves no pair to correlate.
	ErrTooFewObjects = errors.New("at least two objects are required for rank correlation")
)

// ReconciledRanks holds rank positions of the expected objects in both
// rankings, aligned by expected order. Tied objects share the rank of the
// first object of their tie run.
type ReconciledRanks struct {
	// Expected[i] is the rank of the i-th expected object in the expected
	// ranking.
	Expected []float64

	// Predicted[i] is the rank of the same object in the predicted ranking
	// restricted to expected objects.
	Predicted []float64

	// OriginalLength is the length of the predicted ranking before
	// restriction.
	OriginalLength int
}

// Len returns the number of reconciled objects.
func (r ReconciledRanks) Len() int { return len(r.Expected) }

// CorrelationScratch holds reusable buffers for rank reconciliation. A
// scratch may be reused across calls by one goroutine at a time; rank
// slices returned by a previous call are overwritten by the next one.
// The zero value is ready to use.
type CorrelationScratch struct {
	position  map[int]int
	runs      []int
	projected []int
	sorted    []int
	ranks     []float64
	expected  []float64
	predicted []float64
}

func (s *CorrelationScratch) reset(predictedLen, expectedLen int) {
	if s.position == nil {
		s.position = make(map[int]int, predictedLen)
	} else {
		clear(s.position)
	}
	s.runs = slices.Grow(s.runs[:0], predictedLen)
	s.projected = slices.Grow(s.projected[:0], expectedLen)
	s.sorted = slices.Grow(s.sorted[:0], expectedLen)
	if cap(s.ranks) < predictedLen {
		s.ranks = make([]float64, predictedLen)
	}
	s.ranks = s.ranks[:predictedLen]
	s.expected = slices.Grow(s.expected[:0], expectedLen)
	s.predicted = slices.Grow(s.predicted[:0], expectedLen)
}

// ReconcileRankings restricts predicted to the objects of expected and
// returns aligned ranks for both. The predicted ranking may rank extra
// objects; the optimistic view discards them, so a prediction is never
// penalised for ranking more than what was asked.
//
// Incomparability and bracket groups carry no rank information and are
// treated like strict preference; only ties make objects share a rank.
//
// Failures are *domain.LossComputationError values wrapping
// ErrMissingObjects or ErrTooFewObjects. A nil scratch allocates fresh
// buffers.
func ReconcileRankings(metric string, expected, predicted domain.Ranking, scratch *CorrelationScratch) (ReconciledRanks, error) {
	if scratch == nil {
		scratch = &CorrelationScratch{}
	}
	scratch.reset(predicted.Len(), expected.Len())

	run := 0
	for i := 0; i < predicted.Len(); i++ {
		if i > 0 && predicted.OperatorAt(i-1) != domain.OperatorTie {
			run++
		}
		scratch.position[predicted.ObjectAt(i)] = i
		scratch.runs = append(scratch.runs, run)
	}

	var missing []int
	for i := 0; i < expected.Len(); i++ {
		obj := expected.ObjectAt(i)
		pos, ok := scratch.position[obj]
		if !ok {
			missing = append(missing, obj)
			continue
		}
		scratch.projected = append(scratch.projected, pos)
	}
	if len(missing) > 0 {
		return ReconciledRanks{}, domain.NewLossComputationError(metric, missing,
			fmt.Errorf("%w: %d of %d", ErrMissingObjects, len(missing), expected.Len()))
	}
	if len(scratch.projected) < 2 {
		return ReconciledRanks{}, domain.NewLossComputationError(metric, nil,
			fmt.Errorf("%w: got %d", ErrTooFewObjects, len(scratch.projected)))
	}

	// Predicted positions in ascending order give the restricted ranking.
	sorted := append(scratch.sorted, scratch.projected...)
	slices.Sort(sorted)
	for j, pos := range sorted {
		if j > 0 && scratch.runs[pos] == scratch.runs[sorted[j-1]] {
			scratch.ranks[pos] = scratch.ranks[sorted[j-1]]
			continue
		}
		scratch.ranks[pos] = float64(j)
	}
	scratch.sorted = sorted

	for i := 0; i < expected.Len(); i++ {
		if i > 0 && expected.OperatorAt(i-1) == domain.OperatorTie {
			scratch.expected = append(scratch.expected, scratch.expected[i-1])
		} else {
			scratch.expected = append(scratch.expected, float64(i))
		}
		scratch.predicted = append(scratch.predicted, scratch.ranks[scratch.projected[i]])
	}

	return ReconciledRanks{
		Expected:       scratch.expected,
		Predicted:      scratch.predicted,
		OriginalLength: predicted.Len(),
	}, nil
}
