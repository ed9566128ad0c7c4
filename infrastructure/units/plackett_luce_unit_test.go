package units

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-rankagg/internal/domain"
	"github.com/ahrav/go-rankagg/internal/testutils"
)

// TestPlackettLuceUnit_RecoversStrengths samples a large dataset from known
// strengths and checks the fit lands close to them.
func TestPlackettLuceUnit_RecoversStrengths(t *testing.T) {
	truth := map[int]float64{1: 0.2, 2: 0.1, 3: 0.1, 4: 0.1, 5: 0.25, 6: 0.25}
	source, err := NewPlackettLuceModel(truth)
	require.NoError(t, err)

	ds, err := source.SampleDataset(testutils.NewRand(42), 3000)
	require.NoError(t, err)
	assert.Equal(t, 3000, ds.TotalCount())

	unit, err := NewPlackettLuceUnit("pl", DefaultPlackettLuceConfig(), nil)
	require.NoError(t, err)

	fitted, err := unit.Fit(context.Background(), ds)
	require.NoError(t, err)
	assert.True(t, fitted.Converged())
	assert.Positive(t, fitted.Iterations())

	var sum float64
	for label, want := range truth {
		got, ok := fitted.Strength(label)
		require.True(t, ok)
		assert.InDelta(t, want, got, 0.1, "label %d", label)
		sum += got
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	top := fitted.Predict().Objects()[:2]
	assert.ElementsMatch(t, []int{5, 6}, top)

	fittedLL, err := fitted.LogLikelihood(ds)
	require.NoError(t, err)
	uniform, err := NewPlackettLuceModel(map[int]float64{1: 1, 2: 1, 3: 1, 4: 1, 5: 1, 6: 1})
	require.NoError(t, err)
	uniformLL, err := uniform.LogLikelihood(ds)
	require.NoError(t, err)
	assert.Greater(t, fittedLL, uniformLL)
}

// TestPlackettLuceUnit_Train_PartialAndUnseen verifies partial rankings are
// accepted, never-winning labels sink to the bottom and labels absent from
// every ranking keep their initial strength.
func TestPlackettLuceUnit_Train_PartialAndUnseen(t *testing.T) {
	unit, err := NewPlackettLuceUnit("pl", DefaultPlackettLuceConfig(), nil)
	require.NoError(t, err)

	model, err := unit.Fit(context.Background(), buildDataset(t, []int{1, 2, 3}, "1 > 2", 4))
	require.NoError(t, err)
	assert.Equal(t, "1 > 3 > 2", model.Predict().String())

	w2, _ := model.Strength(2)
	assert.Less(t, w2, 1e-6)
}

// TestPlackettLuceUnit_Train_Rejects verifies non-strict rankings fail
// before fitting.
func TestPlackettLuceUnit_Train_Rejects(t *testing.T) {
	unit, err := NewPlackettLuceUnit("pl", DefaultPlackettLuceConfig(), nil)
	require.NoError(t, err)

	_, err = unit.Train(context.Background(), buildDataset(t, []int{1, 2, 3}, "1 > 2 = 3", 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTrainingFailed)
	assert.ErrorIs(t, err, ErrStrictOrderRequired)

	_, err = unit.Train(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrTrainingFailed)
}

// TestPlackettLuceUnit_IterationCap verifies the cap scales with the number
// of distinct instances and that hitting it is logged.
func TestPlackettLuceUnit_IterationCap(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	unit, err := NewPlackettLuceUnit("pl", PlackettLuceConfig{
		MinimumRequiredChangeOnUpdate:     1e-300,
		IterationsSampleSetSizeMultiplier: 1.5,
	}, zap.New(core))
	require.NoError(t, err)

	assert.Equal(t, 1, unit.MaxIterations(0))
	assert.Equal(t, 2, unit.MaxIterations(1))
	assert.Equal(t, 5, unit.MaxIterations(3))

	ds := buildDataset(t, []int{1, 2, 3}, "1 > 2 > 3", 3, "2 > 1 > 3", 1, "3 > 1 > 2", 1)
	model, err := unit.Fit(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, 5, model.Iterations())
	assert.False(t, model.Converged())
	assert.Equal(t, 1, logs.FilterMessage("plackett-luce stopped at iteration cap").Len())
}

// TestPlackettLuceConfig_Validation verifies both tuning parameters must be
// strictly positive.
func TestPlackettLuceConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  PlackettLuceConfig
		wantErr bool
	}{
		{name: "defaults", config: DefaultPlackettLuceConfig()},
		{name: "zero tolerance", config: PlackettLuceConfig{MinimumRequiredChangeOnUpdate: 0, IterationsSampleSetSizeMultiplier: 1}, wantErr: true},
		{name: "negative tolerance", config: PlackettLuceConfig{MinimumRequiredChangeOnUpdate: -1, IterationsSampleSetSizeMultiplier: 1}, wantErr: true},
		{name: "zero multiplier", config: PlackettLuceConfig{MinimumRequiredChangeOnUpdate: 1e-6, IterationsSampleSetSizeMultiplier: 0}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPlackettLuceUnit("pl", tt.config, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

// TestPlackettLuceUnit_UnmarshalParameters verifies YAML overlays defaults.
func TestPlackettLuceUnit_UnmarshalParameters(t *testing.T) {
	unit, err := NewPlackettLuceUnit("pl", DefaultPlackettLuceConfig(), nil)
	require.NoError(t, err)

	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte("iterations_sample_set_size_multiplier: 3"), &node))
	require.NoError(t, unit.UnmarshalParameters(*node.Content[0]))
	assert.Equal(t, 3.0, unit.config.IterationsSampleSetSizeMultiplier)
	assert.Equal(t, DefaultPlackettLuceConfig().MinimumRequiredChangeOnUpdate, unit.config.MinimumRequiredChangeOnUpdate)

	u, err := NewPlackettLuceFromConfig("pl", map[string]any{"minimum_required_change_on_update": 0.01})
	require.NoError(t, err)
	assert.Equal(t, 0.01, u.(*PlackettLuceUnit).config.MinimumRequiredChangeOnUpdate)

	_, err = NewPlackettLuceFromConfig("pl", map[string]any{"minimum_required_change_on_update": -1.0})
	assert.Error(t, err)

	// A zero tolerance could only stop at the iteration cap.
	_, err = NewPlackettLuceFromConfig("pl", map[string]any{"minimum_required_change_on_update": 0.0})
	assert.ErrorContains(t, err, "MinimumRequiredChangeOnUpdate")
}

// TestPlackettLuceUnit_Execute verifies strengths and iteration counts are
// attached to the recorded consensus.
func TestPlackettLuceUnit_Execute(t *testing.T) {
	unit, err := NewPlackettLuceUnit("pl", DefaultPlackettLuceConfig(), nil)
	require.NoError(t, err)

	state := domain.With(domain.NewState(), domain.KeyDataset,
		buildDataset(t, []int{1, 2, 3}, "2 > 1 > 3", 5, "1 > 2 > 3", 2))
	out, err := unit.Execute(context.Background(), state)
	require.NoError(t, err)

	consensus, ok := domain.Get(out, domain.KeyConsensus)
	require.True(t, ok)
	assert.Equal(t, AlgorithmPlackettLuce, consensus.Algorithm)
	assert.Equal(t, "2 > 1 > 3", consensus.Rendered)
	assert.Len(t, consensus.Strengths, 3)
	assert.Positive(t, consensus.Iterations)
}

// TestPlackettLuceModel_Probability verifies the closed-form probability
// and that probabilities over all orders of three labels sum to one.
func TestPlackettLuceModel_Probability(t *testing.T) {
	model, err := NewPlackettLuceModel(map[int]float64{1: 0.5, 2: 0.3, 3: 0.2})
	require.NoError(t, err)

	p, err := model.Probability(domain.MustTotalOrder(1, 2, 3))
	require.NoError(t, err)
	assert.InDelta(t, 0.5*(0.3/0.5), p, 1e-12)

	partial, err := model.Probability(domain.MustTotalOrder(3, 1))
	require.NoError(t, err)
	assert.InDelta(t, 0.2/0.7, partial, 1e-12)

	var total float64
	for _, order := range [][]int{{1, 2, 3}, {1, 3, 2}, {2, 1, 3}, {2, 3, 1}, {3, 1, 2}, {3, 2, 1}} {
		p, err := model.Probability(domain.MustTotalOrder(order...))
		require.NoError(t, err)
		total += p
	}
	assert.InDelta(t, 1.0, total, 1e-12)

	_, err = model.Probability(domain.MustTotalOrder(1, 4))
	assert.Error(t, err)
	_, err = model.Probability(domain.MustParseRanking("1 = 2 > 3"))
	assert.ErrorIs(t, err, ErrStrictOrderRequired)
}

// TestPlackettLuceModel_Predict verifies strength ordering with ascending
// label order among equal strengths.
func TestPlackettLuceModel_Predict(t *testing.T) {
	model, err := NewPlackettLuceModel(map[int]float64{4: 0.1, 2: 0.5, 3: 0.4, 1: 0.1})
	require.NoError(t, err)
	assert.Equal(t, "2 > 3 > 1 > 4", model.Predict().String())
	assert.Equal(t, []int{1, 2, 3, 4}, model.Labels())

	strengths := model.Strengths()
	strengths[2] = 99
	w, _ := model.Strength(2)
	assert.Equal(t, 0.5, w, "strengths are copied on access")
}

// TestNewPlackettLuceModel_Invalid verifies strength validation.
func TestNewPlackettLuceModel_Invalid(t *testing.T) {
	for name, strengths := range map[string]map[int]float64{
		"empty":    {},
		"zero":     {1: 0, 2: 1},
		"negative": {1: -1},
		"nan":      {1: math.NaN()},
		"inf":      {1: math.Inf(1)},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewPlackettLuceModel(strengths)
			assert.ErrorIs(t, err, ErrInvalidStrength)
		})
	}
}

// TestPlackettLuceModel_Sample verifies samples are complete strict orders
// and reproducible for a fixed seed.
func TestPlackettLuceModel_Sample(t *testing.T) {
	model, err := NewPlackettLuceModel(map[int]float64{1: 0.7, 2: 0.2, 3: 0.1})
	require.NoError(t, err)

	a := model.Sample(testutils.NewRand(7))
	b := model.Sample(testutils.NewRand(7))
	assert.True(t, a.Equal(b))
	assert.True(t, a.IsTotalOrder())
	assert.ElementsMatch(t, []int{1, 2, 3}, a.Objects())

	rng := testutils.NewRand(8)
	firsts := 0
	for range 2000 {
		if model.Sample(rng).ObjectAt(0) == 1 {
			firsts++
		}
	}
	assert.InDelta(t, 0.7, float64(firsts)/2000, 0.05)

	_, err = model.SampleDataset(rng, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidDataset)
}
