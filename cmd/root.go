package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tsn-sim/tsn-sim/sim/metrics"
	"github.com/tsn-sim/tsn-sim/sim/scenario"
	"github.com/tsn-sim/tsn-sim/sim/trace"
)

var (
	scenarioPath string // path to the scenario YAML
	logLevel     string // log verbosity level
	traceLevel   string // decision trace level
	metricsOut   string // prometheus textfile destination
	spanExporter string // otel span exporter ("" disables)
	engineName   string // overrides controller.engine.name when set
	batchSize    int    // overrides controller.batch_size when > 0
)

var rootCmd = &cobra.Command{
	Use:   "tsn-sim",
	Short: "Discrete-event simulator for TSN stream admission and gate scheduling",
}

// runCmd executes a scenario to its horizon and prints per-stream outcomes.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a TSN admission scenario",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()

		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Invalid trace level: %s", traceLevel)
		}
		spec, err := loadScenario(scenarioPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		shutdown, err := initTracing(spanExporter, os.Stderr)
		if err != nil {
			logrus.Fatalf("tracing: %v", err)
		}
		defer shutdownTracing(shutdown)

		collector, err := metrics.NewCollector(prometheus.NewRegistry())
		if err != nil {
			logrus.Fatalf("metrics: %v", err)
		}

		startTime := time.Now()
		res, err := runScenario(spec, collector, trace.TraceConfig{Level: trace.TraceLevel(traceLevel)})
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		printReport(os.Stdout, res, time.Since(startTime))

		if metricsOut != "" {
			if err := collector.WriteTextfile(metricsOut); err != nil {
				logrus.Fatalf("writing metrics to %s: %v", metricsOut, err)
			}
			logrus.Infof("Metrics written to %s", metricsOut)
		}
		logrus.Info("Simulation complete.")
	},
}

// topologyCmd prints the discovered node indices, roles and ports.
var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Print the topology a scenario discovers",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		spec, err := loadScenario(scenarioPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		topo, _, err := scenario.BaselineInput(spec)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		topo.Dump(os.Stdout)
	},
}

// flowsCmd prints the configured flows as the engine would first see them.
var flowsCmd = &cobra.Command{
	Use:   "flows",
	Short: "Print the configured flows and their paths",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		spec, err := loadScenario(scenarioPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		topo, in, err := scenario.BaselineInput(spec)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		printFlows(os.Stdout, topo, in)
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// loadScenario reads the scenario file and applies command-line overrides
// before validating it.
func loadScenario(path string) (*scenario.Spec, error) {
	if path == "" {
		return nil, fmt.Errorf("--scenario is required")
	}
	spec, err := scenario.Load(path)
	if err != nil {
		return nil, err
	}
	if engineName != "" {
		spec.Controller.Engine.Name = engineName
	}
	if batchSize > 0 {
		spec.Controller.BatchSize = batchSize
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return spec, nil
}

func runScenario(spec *scenario.Spec, collector *metrics.Collector, tc trace.TraceConfig) (*scenario.Result, error) {
	run, err := scenario.Build(spec, scenario.Options{
		Metrics: collector,
		Trace:   trace.NewSimulationTrace(tc),
	})
	if err != nil {
		return nil, err
	}
	return run.Execute(), nil
}

func shutdownTracing(shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logrus.Warnf("tracing shutdown failed: %v", err)
	}
}

// init sets up CLI flags and subcommands
func init() {
	for _, c := range []*cobra.Command{runCmd, topologyCmd, flowsCmd} {
		c.Flags().StringVar(&scenarioPath, "scenario", "", "Path to the scenario YAML")
		c.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
		c.Flags().StringVar(&engineName, "engine", "", "Scheduling engine override (stub, greedy, external)")
		_ = c.MarkFlagRequired("scenario")
	}

	runCmd.Flags().StringVar(&traceLevel, "trace-level", "none", "Decision trace level (none, decisions)")
	runCmd.Flags().StringVar(&metricsOut, "metrics-out", "", "Write prometheus metrics to this textfile after the run")
	runCmd.Flags().StringVar(&spanExporter, "span-exporter", "", "Export orchestration spans (stdout); empty disables")
	runCmd.Flags().IntVar(&batchSize, "batch-size", 0, "Batch size override (0 keeps the scenario value)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(topologyCmd)
	rootCmd.AddCommand(flowsCmd)
}
