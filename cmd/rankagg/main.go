// Command rankagg loads an experiment file, trains every configured
// aggregator on its dataset, and prints the consensus rankings with their
// losses.
//
// Usage:
//
//	rankagg -config experiment.yaml
//	rankagg -config experiment.yaml -format json -metrics metrics.txt
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-rankagg/infrastructure/middleware"
	"github.com/ahrav/go-rankagg/internal/application"
)

const tracerName = "github.com/ahrav/go-rankagg"

type options struct {
	configPath  string
	format      string
	metricsPath string
	verbose     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "rankagg: %v\n", err)
		}
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("rankagg", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to the experiment YAML file")
	fs.StringVar(&opts.format, "format", "yaml", "Report format: yaml or json")
	fs.StringVar(&opts.metricsPath, "metrics", "", "Write Prometheus metrics in text format to this file after the run")
	fs.BoolVar(&opts.verbose, "v", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	if opts.configPath == "" {
		return opts, fmt.Errorf("-config is required")
	}
	if opts.format != "yaml" && opts.format != "json" {
		return opts, fmt.Errorf("unsupported format %q", opts.format)
	}
	return opts, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	logger, err := newLogger(opts.verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	metrics, err := middleware.NewPrometheusMetrics(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	registry := application.NewDefaultUnitRegistry(
		application.WithLogger(logger),
		application.WithUnitMiddleware(middleware.Instrument(metrics, otel.Tracer(tracerName))),
	)
	loader, err := application.NewExperimentLoader(registry)
	if err != nil {
		return err
	}

	exp, err := loader.LoadFromFile(ctx, opts.configPath)
	if err != nil {
		return err
	}
	logger.Debug("experiment loaded",
		zap.String("experiment", exp.Name()),
		zap.String("config_hash", exp.Hash),
		zap.Int("pipelines", len(exp.Pipelines())),
	)

	report, err := application.NewExperimentRunner(logger).Run(ctx, exp)
	if err != nil {
		return err
	}

	if err := writeReport(stdout, opts.format, report); err != nil {
		return err
	}

	if opts.metricsPath != "" {
		if err := writeMetrics(opts.metricsPath, reg); err != nil {
			return err
		}
	}
	return nil
}

func writeReport(w io.Writer, format string, report *application.ExperimentReport) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	default:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	}
}

func writeMetrics(path string, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}
	defer f.Close()

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(f, mf); err != nil {
			return fmt.Errorf("failed to encode metric %s: %w", mf.GetName(), err)
		}
	}
	return f.Sync()
}
