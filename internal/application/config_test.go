package application

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-rankagg/internal/domain"
	"github.com/ahrav/go-rankagg/internal/ports"
	"github.com/ahrav/go-rankagg/internal/testutils"
)

func TestDatasetConfig_Build(t *testing.T) {
	cfg := DatasetConfig{
		Labels: []int{1, 2, 3},
		Rankings: []RankingConfig{
			{Ranking: "1 > 2 > 3", Count: 2},
			{Ranking: "3 > {1 = 2}"},
			{Ranking: "1 > 2 > 3", Count: 1},
		},
	}

	ds, err := cfg.Build()
	require.NoError(t, err)
	require.Equal(t, 2, ds.NumberOfInstances(), "equal rankings merge")
	assert.Equal(t, 3, ds.InstanceAt(0).Count)
	assert.Equal(t, 1, ds.InstanceAt(1).Count)
	assert.Equal(t, "3 > {1 = 2}", ds.InstanceAt(1).Ranking.String())

	_, err = DatasetConfig{Labels: []int{1, 2}, Rankings: []RankingConfig{{Ranking: "1 > 5"}}}.Build()
	assert.ErrorIs(t, err, domain.ErrInvalidDataset)

	_, err = DatasetConfig{Labels: []int{1, 2}, Rankings: []RankingConfig{{Ranking: "one > two"}}}.Build()
	assert.ErrorContains(t, err, "ranking 0")
}

// TestDatasetConfigFromDataset verifies the inline form rebuilds an equal
// dataset.
func TestDatasetConfigFromDataset(t *testing.T) {
	b := domain.NewDatasetBuilder([]int{3, 1, 2})
	b.Add(domain.MustParseRanking("2 > 1 | 3"), 4)
	b.Add(domain.MustTotalOrder(1, 2), 1)
	ds, err := b.Build()
	require.NoError(t, err)

	cfg := DatasetConfigFromDataset(ds)
	assert.Equal(t, []int{1, 2, 3}, cfg.Labels)

	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	var decoded DatasetConfig
	require.NoError(t, yaml.Unmarshal(data, &decoded))

	again, err := decoded.Build()
	require.NoError(t, err)
	require.Equal(t, ds.NumberOfInstances(), again.NumberOfInstances())
	for i := range ds.NumberOfInstances() {
		assert.True(t, ds.InstanceAt(i).Ranking.Equal(again.InstanceAt(i).Ranking))
		assert.Equal(t, ds.InstanceAt(i).Count, again.InstanceAt(i).Count)
	}
}

// TestDatasetConfig_Tags verifies the struct rules report yaml field names.
func TestDatasetConfig_Tags(t *testing.T) {
	v := testutils.NewTestValidator()

	require.NoError(t, v.Struct(DatasetConfig{Labels: []int{1, 2}, Rankings: []RankingConfig{{Ranking: "1 > 2"}}}))

	err := v.Struct(DatasetConfig{Labels: []int{1, 1}, Rankings: []RankingConfig{{Ranking: "1", Count: -2}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'labels' failed on the 'unique' tag")
	assert.Contains(t, err.Error(), "'count' failed on the 'min' tag")
}

func TestValidateSemver(t *testing.T) {
	v := validator.New()
	require.NoError(t, registerCustomValidators(v))

	type versioned struct {
		Version string `validate:"semver"`
	}
	for version, ok := range map[string]bool{
		"1.0.0":  true,
		"0.12.3": true,
		"1.0":    false,
		"1.0.x":  false,
		"v1.0.0": false,
		"1.-1.0": false,
		"":       false,
	} {
		err := v.Struct(versioned{Version: version})
		assert.Equal(t, ok, err == nil, "version %q", version)
	}
}

func TestValidateUnitParameters(t *testing.T) {
	node := func(t *testing.T, doc string) yaml.Node {
		t.Helper()
		var n yaml.Node
		require.NoError(t, yaml.Unmarshal([]byte(doc), &n))
		return *n.Content[0]
	}

	tests := []struct {
		name     string
		unitType string
		params   string
		wantErr  bool
	}{
		{name: "borda without parameters", unitType: "borda_count"},
		{name: "borda rejects parameters", unitType: "borda_count", params: "strategy: exhaustive", wantErr: true},
		{name: "kemeny strategy", unitType: "kemeny_young", params: "strategy: branch_and_bound"},
		{name: "kemeny bad strategy", unitType: "kemeny_young", params: "strategy: greedy", wantErr: true},
		{name: "plackett-luce overrides", unitType: "plackett_luce", params: "iterations_sample_set_size_multiplier: 4"},
		{name: "plackett-luce negative multiplier", unitType: "plackett_luce", params: "iterations_sample_set_size_multiplier: -1", wantErr: true},
		{name: "loss options", unitType: "spearman", params: "{weighted: false, consensus: borda}"},
		{name: "loss wrong type", unitType: "kendalls_tau", params: "weighted: sometimes", wantErr: true},
		{name: "unknown type", unitType: "median_pool", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var params yaml.Node
			if tt.params != "" {
				params = node(t, tt.params)
			}
			err := ValidateUnitParameters(tt.unitType, params)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}

	assert.ErrorIs(t, ValidateUnitParameters("median_pool", yaml.Node{}), ports.ErrUnsupportedUnitType)
}
