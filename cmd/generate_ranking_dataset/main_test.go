package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-rankagg/internal/application"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "defaults", args: nil},
		{name: "noisy top", args: []string{"-model", "noisy", "-top", "2"}},
		{name: "one label", args: []string{"-labels", "1"}, wantErr: "at least two labels"},
		{name: "bad model", args: []string{"-model", "mallows"}, wantErr: `unknown model "mallows"`},
		{name: "negative top", args: []string{"-top", "-1"}, wantErr: "-top cannot be negative"},
		{name: "unknown flag", args: []string{"-graph"}, wantErr: "flag provided but not defined"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFlags(tt.args, &bytes.Buffer{})
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

// TestRun_OutputRunsEndToEnd loads each generated experiment and runs it, so
// every emitted pipeline must accept the dataset it was written with.
func TestRun_OutputRunsEndToEnd(t *testing.T) {
	tests := []struct {
		name            string
		args            []string
		wantPipelines   []string
		wantEvaluations int
	}{
		{
			name:            "complete plackett luce",
			args:            []string{"-labels", "5", "-voters", "60"},
			wantPipelines:   []string{"scorebased", "probabilistic", "optimal"},
			wantEvaluations: 6,
		},
		{
			name:            "top three plackett luce",
			args:            []string{"-labels", "5", "-voters", "60", "-top", "3"},
			wantPipelines:   []string{"scorebased", "probabilistic"},
			wantEvaluations: 4,
		},
		{
			name:            "top three noisy",
			args:            []string{"-labels", "5", "-voters", "60", "-model", "noisy", "-top", "3"},
			wantPipelines:   []string{"scorebased", "probabilistic"},
			wantEvaluations: 4,
		},
		{
			name:            "top covering every label",
			args:            []string{"-labels", "4", "-voters", "30", "-top", "4"},
			wantPipelines:   []string{"scorebased", "probabilistic", "optimal"},
			wantEvaluations: 6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "synthetic.yaml")
			args := append([]string{"-seed", "7", "-output", path}, tt.args...)

			var stdout bytes.Buffer
			require.NoError(t, run(args, &stdout))
			assert.Contains(t, stdout.String(), "- Path: "+path)

			loader, err := application.NewExperimentLoader(application.NewDefaultUnitRegistry())
			require.NoError(t, err)
			exp, err := loader.LoadFromFile(context.Background(), path)
			require.NoError(t, err)

			var ids []string
			for _, p := range exp.Pipelines() {
				ids = append(ids, p.ID())
			}
			assert.Equal(t, tt.wantPipelines, ids)

			report, err := application.NewExperimentRunner(nil).Run(context.Background(), exp)
			require.NoError(t, err)
			assert.Len(t, report.Evaluations, tt.wantEvaluations)
			assert.Len(t, report.Consensuses, len(tt.wantPipelines))
		})
	}
}
