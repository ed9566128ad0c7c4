package application

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-rankagg/infrastructure/units"
	"github.com/ahrav/go-rankagg/internal/domain"
)

// TestExperimentRunner_Run runs the example experiment end to end and
// checks every pipeline's consensus and losses.
func TestExperimentRunner_Run(t *testing.T) {
	exp, err := newTestLoader(t).LoadFromFile(context.Background(), "testdata/poll.yaml")
	require.NoError(t, err)

	core, logs := observer.New(zap.InfoLevel)
	runner := NewExperimentRunner(zap.New(core))
	runner.newID = func() string { return "run-1" }

	report, err := runner.Run(context.Background(), exp)
	require.NoError(t, err)

	assert.Equal(t, "run-1", report.ExperimentID)
	assert.Equal(t, "poll", report.Name)
	assert.Equal(t, exp.Hash, report.ConfigHash)

	require.Len(t, report.Consensuses, 3)
	for i, want := range []struct{ pipeline, unit, algorithm string }{
		{"scorebased", "borda", units.AlgorithmBordaCount},
		{"optimal", "kemeny", units.AlgorithmKemenyYoung},
		{"probabilistic", "pl", units.AlgorithmPlackettLuce},
	} {
		c := report.Consensuses[i]
		assert.Equal(t, want.pipeline, c.Pipeline)
		assert.Equal(t, want.unit, c.Unit)
		assert.Equal(t, want.algorithm, c.Algorithm)
		assert.Equal(t, "1 > 2 > 3 > 4", c.Rendered, "pipeline %s", want.pipeline)
	}
	assert.Len(t, report.Consensuses[2].Strengths, 4)

	require.Len(t, report.Evaluations, 4)
	tau := report.Evaluations[0]
	assert.Equal(t, "scorebased", tau.Pipeline)
	assert.Equal(t, units.MetricKendallsTau, tau.Metric)
	assert.Equal(t, "borda", tau.Consensus)
	// 5 exact votes and 5 votes one swap away (tau 2/3).
	assert.InDelta(t, (5*1.0+5*(2.0/3))/10, tau.Value, 1e-12)

	rho := report.Evaluations[1]
	assert.Equal(t, units.MetricSpearman, rho.Metric)
	assert.Equal(t, 3.0, rho.TotalWeight, "unweighted losses count each instance once")
	// One exact ranking and two with an adjacent swap (rho 0.8).
	assert.InDelta(t, (1+0.8+0.8)/3, rho.Value, 1e-12)

	assert.Equal(t, "optimal", report.Evaluations[2].Pipeline)
	assert.Equal(t, "kemeny", report.Evaluations[2].Consensus)
	assert.Equal(t, "probabilistic", report.Evaluations[3].Pipeline)
	assert.Equal(t, "pl", report.Evaluations[3].Consensus)

	assert.Equal(t, 1, logs.FilterMessage("experiment started").Len())
	assert.Equal(t, 4, logs.FilterMessage("loss computed").Len())
	finished := logs.FilterMessage("experiment finished").All()
	require.Len(t, finished, 1)
	assert.Equal(t, "run-1", finished[0].ContextMap()["experiment_id"])
}

// TestExperimentRunner_Run_Expected verifies losses use the expected
// rankings when configured.
func TestExperimentRunner_Run_Expected(t *testing.T) {
	doc := experimentHeader + `expected:
  labels: [1, 2, 3, 4]
  rankings:
    - ranking: "4 > 3 > 2 > 1"
units:
  - id: borda
    type: borda_count
  - id: tau
    type: kendalls_tau
pipelines:
  - id: p
    units: [borda, tau]
`
	exp, err := newTestLoader(t).LoadFromReader(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)

	report, err := NewExperimentRunner(nil).Run(context.Background(), exp)
	require.NoError(t, err)
	require.Len(t, report.Evaluations, 1)
	assert.InDelta(t, -1.0, report.Evaluations[0].Value, 1e-12)
	assert.NotEmpty(t, report.ExperimentID)
}

// TestExperimentRunner_Run_Failure verifies training failures surface with
// the pipeline and unit that failed.
func TestExperimentRunner_Run_Failure(t *testing.T) {
	doc := strings.Replace(experimentHeader, `"1 > 3 > 2 > 4"`, `"1 > 3 = 2 > 4"`, 1) + `units:
  - id: kemeny
    type: kemeny_young
pipelines:
  - id: p
    units: [kemeny]
`
	exp, err := newTestLoader(t).LoadFromReader(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)

	_, err = NewExperimentRunner(nil).Run(context.Background(), exp)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTrainingFailed)
	assert.Contains(t, err.Error(), "pipeline p: execution failed at kemeny")

	_, err = NewExperimentRunner(nil).Run(context.Background(), nil)
	assert.Error(t, err)
}

// TestExperimentReport_YAML verifies the report renders rankings as text.
func TestExperimentReport_YAML(t *testing.T) {
	exp, err := newTestLoader(t).LoadFromFile(context.Background(), "testdata/poll.yaml")
	require.NoError(t, err)
	report, err := NewExperimentRunner(nil).Run(context.Background(), exp)
	require.NoError(t, err)

	out, err := yaml.Marshal(report)
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, "ranking: 1 > 2 > 3 > 4")
	assert.Contains(t, text, "pipeline: probabilistic")
	assert.Contains(t, text, "metric: kendalls_tau")
}
