// Command generate_ranking_dataset writes a synthetic experiment whose
// dataset is drawn around a known ground-truth ranking. The ground truth is
// stored as the experiment's expected rankings so losses measure how well
// each aggregator recovers it.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-rankagg/infrastructure/units"
	"github.com/ahrav/go-rankagg/internal/application"
	"github.com/ahrav/go-rankagg/internal/domain"
	"github.com/ahrav/go-rankagg/internal/testutils"
)

type options struct {
	labels     int
	voters     int
	model      string
	decay      float64
	swaps      int
	top        int
	seed       uint64
	outputPath string
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "generate_ranking_dataset: %v\n", err)
		}
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("generate_ranking_dataset", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.IntVar(&opts.labels, "labels", 6, "Number of labels to rank")
	fs.IntVar(&opts.voters, "voters", 200, "Number of sampled rankings")
	fs.StringVar(&opts.model, "model", "plackett_luce", "Sampling model: plackett_luce or noisy")
	fs.Float64Var(&opts.decay, "decay", 0.7, "Strength ratio between consecutive labels for plackett_luce")
	fs.IntVar(&opts.swaps, "swaps", 2, "Adjacent swaps per ranking for the noisy model")
	fs.IntVar(&opts.top, "top", 0, "Keep only the first k objects of each ranking (0 keeps all)")
	fs.Uint64Var(&opts.seed, "seed", uint64(time.Now().UnixNano()), "Random seed")
	fs.StringVar(&opts.outputPath, "output", "testdata/experiments/synthetic.yaml", "Output file path")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	if opts.labels < 2 {
		return opts, fmt.Errorf("at least two labels are required, got %d", opts.labels)
	}
	if opts.model != "plackett_luce" && opts.model != "noisy" {
		return opts, fmt.Errorf("unknown model %q", opts.model)
	}
	if opts.top < 0 {
		return opts, fmt.Errorf("-top cannot be negative, got %d", opts.top)
	}
	return opts, nil
}

// partial reports whether truncation leaves some labels unranked.
func (o options) partial() bool { return o.top > 0 && o.top < o.labels }

func run(args []string, stdout io.Writer) error {
	opts, err := parseFlags(args, stdout)
	if err != nil {
		return err
	}

	reference := testutils.Labels(opts.labels)

	var dataset *domain.RankAggregationDataset
	switch opts.model {
	case "plackett_luce":
		dataset, err = samplePlackettLuce(reference, opts.decay, opts.voters, opts.seed)
	case "noisy":
		dataset, err = testutils.NoisyDataset(testutils.NewRand(opts.seed), reference, opts.voters, opts.swaps)
	}
	if err != nil {
		return fmt.Errorf("failed to generate dataset: %w", err)
	}
	if opts.partial() {
		if dataset, err = truncate(dataset, opts.top); err != nil {
			return fmt.Errorf("failed to truncate dataset: %w", err)
		}
	}

	truth, err := domain.NewDatasetBuilder(reference).Add(domain.MustTotalOrder(reference...), 1).Build()
	if err != nil {
		return fmt.Errorf("failed to build ground truth: %w", err)
	}

	cfg := experiment(opts.model, opts.seed, dataset, truth, opts.partial())
	if err := save(cfg, opts.outputPath); err != nil {
		return fmt.Errorf("failed to save experiment: %w", err)
	}

	fmt.Fprintf(stdout, "Generated ranking experiment:\n")
	fmt.Fprintf(stdout, "- Path: %s\n", opts.outputPath)
	fmt.Fprintf(stdout, "- Model: %s\n", opts.model)
	fmt.Fprintf(stdout, "- Labels: %d\n", opts.labels)
	fmt.Fprintf(stdout, "- Voters: %d\n", dataset.TotalCount())
	fmt.Fprintf(stdout, "- Distinct rankings: %d\n", dataset.NumberOfInstances())
	fmt.Fprintf(stdout, "- Pipelines: %d\n", len(cfg.Pipelines))
	fmt.Fprintf(stdout, "- Ground truth: %s\n", domain.MustTotalOrder(reference...))
	return nil
}

// samplePlackettLuce draws voters rankings from a model whose strengths fall
// geometrically along reference, so reference is the most likely ranking.
func samplePlackettLuce(reference []int, decay float64, voters int, seed uint64) (*domain.RankAggregationDataset, error) {
	if decay <= 0 || decay > 1 {
		return nil, fmt.Errorf("decay must be in (0, 1], got %g", decay)
	}
	strengths := make(map[int]float64, len(reference))
	for i, l := range reference {
		strengths[l] = math.Pow(decay, float64(i))
	}
	m, err := units.NewPlackettLuceModel(strengths)
	if err != nil {
		return nil, err
	}
	return m.SampleDataset(testutils.NewRand(seed), voters)
}

// truncate keeps the top k objects of every ranking, merging rankings that
// become equal.
func truncate(ds *domain.RankAggregationDataset, k int) (*domain.RankAggregationDataset, error) {
	b := domain.NewDatasetBuilder(ds.Labels())
	for _, inst := range ds.Instances() {
		b.Add(testutils.TopK(inst.Ranking, k), inst.Count)
	}
	return b.Build()
}

// experiment wires every aggregator to both losses. Kemeny-Young only
// accepts complete rankings, so it is left out when partial is set.
func experiment(model string, seed uint64, dataset, truth *domain.RankAggregationDataset, partial bool) application.ExperimentConfig {
	expected := application.DatasetConfigFromDataset(truth)
	cfg := application.ExperimentConfig{
		Version: "1.0.0",
		Metadata: application.Metadata{
			Name:        fmt.Sprintf("synthetic-%s", model),
			Description: "Synthetic rankings sampled around a known ground truth.",
			Tags:        []string{"synthetic", model},
			Labels:      map[string]string{"seed": fmt.Sprint(seed)},
		},
		Units: []application.UnitConfig{
			{ID: "borda", Type: units.AlgorithmBordaCount},
			{ID: "pl", Type: units.AlgorithmPlackettLuce},
			{ID: "tau", Type: units.MetricKendallsTau},
			{ID: "rho", Type: units.MetricSpearman},
		},
		Dataset:  application.DatasetConfigFromDataset(dataset),
		Expected: &expected,
		Pipelines: []application.PipelineConfig{
			{ID: "scorebased", Units: []string{"borda", "tau", "rho"}},
			{ID: "probabilistic", Units: []string{"pl", "tau", "rho"}},
		},
	}
	if partial {
		return cfg
	}

	cfg.Units = append(cfg.Units, application.UnitConfig{
		ID: "kemeny", Type: units.AlgorithmKemenyYoung, Parameters: strategyNode(units.StrategyBranchAndBound),
	})
	cfg.Pipelines = append(cfg.Pipelines, application.PipelineConfig{
		ID: "optimal", Units: []string{"kemeny", "tau", "rho"},
	})
	return cfg
}

func strategyNode(strategy string) yaml.Node {
	var n yaml.Node
	if err := n.Encode(map[string]string{"strategy": strategy}); err != nil {
		panic(err)
	}
	return n
}

func save(cfg application.ExperimentConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal experiment: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
