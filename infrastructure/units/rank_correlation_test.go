package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ahrav/go-rankagg/internal/domain"
	"github.com/ahrav/go-rankagg/internal/testutils"
)

// TestReconcileRankings verifies projection of the predicted ranking onto
// the expected objects and tie-sharing ranks on both sides.
func TestReconcileRankings(t *testing.T) {
	tests := []struct {
		name          string
		expected      string
		predicted     string
		wantExpected  []float64
		wantPredicted []float64
		wantOriginal  int
	}{
		{
			name:          "identical",
			expected:      "1 > 2 > 3",
			predicted:     "1 > 2 > 3",
			wantExpected:  []float64{0, 1, 2},
			wantPredicted: []float64{0, 1, 2},
			wantOriginal:  3,
		},
		{
			name:          "extra predicted objects are dropped",
			expected:      "1 > 2 > 3",
			predicted:     "5 > 2 > 4 > 1 > 3",
			wantExpected:  []float64{0, 1, 2},
			wantPredicted: []float64{1, 0, 2},
			wantOriginal:  5,
		},
		{
			name:          "expected ties share a rank",
			expected:      "1 = 2 > 3",
			predicted:     "1 > 2 > 3",
			wantExpected:  []float64{0, 0, 2},
			wantPredicted: []float64{0, 1, 2},
			wantOriginal:  3,
		},
		{
			name:          "predicted tie chain survives projection",
			expected:      "1 > 2 > 3",
			predicted:     "1 = 4 = 2 > 3",
			wantExpected:  []float64{0, 1, 2},
			wantPredicted: []float64{0, 0, 2},
			wantOriginal:  4,
		},
		{
			name:          "tie broken by a removed object",
			expected:      "1 > 2",
			predicted:     "1 = 4 > 2",
			wantExpected:  []float64{0, 1},
			wantPredicted: []float64{0, 1},
			wantOriginal:  3,
		},
		{
			name:          "incomparability ranks like strict order",
			expected:      "2 > 1",
			predicted:     "1 | 2",
			wantExpected:  []float64{0, 1},
			wantPredicted: []float64{1, 0},
			wantOriginal:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReconcileRankings("test", domain.MustParseRanking(tt.expected), domain.MustParseRanking(tt.predicted), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantExpected, got.Expected)
			assert.Equal(t, tt.wantPredicted, got.Predicted)
			assert.Equal(t, tt.wantOriginal, got.OriginalLength)
		})
	}
}

// TestReconcileRankings_Failures verifies missing objects are named and
// single-object comparisons are refused.
func TestReconcileRankings_Failures(t *testing.T) {
	_, err := ReconcileRankings("kendalls_tau", domain.MustTotalOrder(1, 2, 6, 7), domain.MustTotalOrder(1, 2, 3), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLossComputation)
	assert.ErrorIs(t, err, ErrMissingObjects)

	var lce *domain.LossComputationError
	require.ErrorAs(t, err, &lce)
	assert.Equal(t, []int{6, 7}, lce.Missing)
	assert.Equal(t, "kendalls_tau", lce.Metric)
	assert.Contains(t, err.Error(), "missing=[6 7]")

	_, err = ReconcileRankings("spearman", domain.MustTotalOrder(1), domain.MustTotalOrder(1, 2), nil)
	assert.ErrorIs(t, err, ErrTooFewObjects)
	assert.ErrorIs(t, err, domain.ErrLossComputation)
}

// TestReconcileRankings_ScratchReuse verifies a scratch buffer can be reused
// across rankings of different lengths.
func TestReconcileRankings_ScratchReuse(t *testing.T) {
	scratch := &CorrelationScratch{}

	long, err := ReconcileRankings("test", domain.MustTotalOrder(5, 4, 3, 2, 1), domain.MustTotalOrder(1, 2, 3, 4, 5, 6), scratch)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 3, 2, 1, 0}, long.Predicted)

	short, err := ReconcileRankings("test", domain.MustTotalOrder(2, 1), domain.MustTotalOrder(2, 1), scratch)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, short.Expected)
	assert.Equal(t, []float64{0, 1}, short.Predicted)
	assert.Equal(t, 2, short.Len())
}

// TestRankCorrelation_Values checks both metrics on hand-computed cases.
func TestRankCorrelation_Values(t *testing.T) {
	tests := []struct {
		name         string
		expected     string
		predicted    string
		wantKendall  float64
		wantSpearman float64
	}{
		{
			name:         "superset prediction is scored optimistically",
			expected:     "1 > 2 > 3",
			predicted:    "1 > 2 > 3 > 4 > 5",
			wantKendall:  1,
			wantSpearman: 1,
		},
		{
			name:         "reversed",
			expected:     "1 > 2 > 3",
			predicted:    "3 > 2 > 1",
			wantKendall:  -1,
			wantSpearman: -1,
		},
		{
			name:         "one swap inside a longer prediction",
			expected:     "1 > 2 > 3",
			predicted:    "2 > 1 > 3 > 4 > 5",
			wantKendall:  0.8, // 1 - 4·1/(5·4)
			wantSpearman: 0.5, // 1 - 6·2/(3·8)
		},
		{
			name:         "expected tie is neither concordant nor discordant",
			expected:     "1 = 2 > 3",
			predicted:    "1 > 2 > 3",
			wantKendall:  1,
			wantSpearman: 0.75,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expected := domain.MustParseRanking(tt.expected)
			predicted := domain.MustParseRanking(tt.predicted)

			kt, err := KendallsTau{}.Loss(expected, predicted)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantKendall, kt, 1e-12)

			sp, err := Spearman{}.Loss(expected, predicted)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantSpearman, sp, 1e-12)
		})
	}
}

// TestRankCorrelation_MissingObject verifies neither metric returns a score
// when the prediction omits an expected object.
func TestRankCorrelation_MissingObject(t *testing.T) {
	expected := domain.MustTotalOrder(1, 2, 9)
	predicted := domain.MustTotalOrder(1, 2, 3, 4)

	for _, fn := range []domain.LossFunction{KendallsTau{}, Spearman{}} {
		t.Run(fn.Name(), func(t *testing.T) {
			_, err := fn.Loss(expected, predicted)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMissingObjects)
		})
	}
}

// TestRankCorrelation_Properties checks range and identity properties on
// random strict orders, and the Kendall range on weak orders.
func TestRankCorrelation_Properties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(2, 9).Draw(rt, "labels")
		extra := rapid.IntRange(0, 4).Draw(rt, "extra")
		rng := testutils.NewRand(rapid.Uint64().Draw(rt, "seed"))

		expected := testutils.RandomTotalOrder(rng, testutils.Labels(n))
		predicted := testutils.RandomTotalOrder(rng, testutils.Labels(n+extra))

		for _, fn := range []domain.LossFunction{KendallsTau{}, Spearman{}} {
			v, err := fn.Loss(expected, predicted)
			if err != nil {
				rt.Fatalf("%s: %v", fn.Name(), err)
			}
			if v < -1-1e-9 || v > 1+1e-9 {
				rt.Fatalf("%s out of range: %v", fn.Name(), v)
			}

			self, err := fn.Loss(expected, expected)
			if err != nil {
				rt.Fatalf("%s self: %v", fn.Name(), err)
			}
			if self != 1 {
				rt.Fatalf("%s of a ranking with itself = %v, want 1", fn.Name(), self)
			}
		}

		weak := testutils.RandomWeakOrder(rng, testutils.Labels(n+extra), 0.3)
		kt, err := KendallsTau{}.Loss(expected, weak)
		if err != nil {
			rt.Fatalf("kendall on weak order: %v", err)
		}
		if kt < -1-1e-9 || kt > 1+1e-9 {
			rt.Fatalf("kendall out of range on weak order: %v", kt)
		}

		superset := append(expected.Objects(), testutils.Labels(n + extra)[n:]...)
		kt, err = KendallsTau{}.Loss(expected, domain.MustTotalOrder(superset...))
		if err != nil || kt != 1 {
			rt.Fatalf("kendall of an order extended at the tail = %v (%v), want 1", kt, err)
		}
	})
}
