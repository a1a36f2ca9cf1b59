// Command protocbridge drives a single protoc goal execution end to end
// from a standalone JSON or YAML goal description. It is not a build-tool
// integration itself: it exists to exercise the orchestrator pipeline in
// tests and manual runs, the way a standalone CLI front-end exercises a
// rule engine outside of any IDE.
package main

import (
	"context"
	"fmt"
	"os"

	logrusr "github.com/bombsimon/logrusr/v3"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ascopes/protoc-integration-go/fetch"
	"github.com/ascopes/protoc-integration-go/hostinfo"
	"github.com/ascopes/protoc-integration-go/orchestrator"
	"github.com/ascopes/protoc-integration-go/pluginresolve"
	"github.com/ascopes/protoc-integration-go/protocresolve"
	"github.com/ascopes/protoc-integration-go/resolve"
	"github.com/ascopes/protoc-integration-go/scan"
	"github.com/ascopes/protoc-integration-go/scratch"
	"github.com/ascopes/protoc-integration-go/sourceroot"
	"github.com/ascopes/protoc-integration-go/tracing"
)

const exitOnErrorCode = 1

var (
	configPath       string
	logLevel         int
	enableJaeger     bool
	jaegerEndpoint   string
	jaegerSampleRate float64

	rootCmd = &cobra.Command{
		Use:   "protocbridge",
		Short: "Runs a single protoc goal execution from a standalone goal config",
		RunE:  run,
	}
)

func init() {
	rootCmd.Flags().StringVar(&configPath, "goal-config", "goal.json", "path to the goal configuration file")
	rootCmd.Flags().IntVar(&logLevel, "verbose", 4, "level for logging output")
	rootCmd.Flags().BoolVar(&enableJaeger, "enable-jaeger", false, "enable tracer exports to jaeger endpoint")
	rootCmd.Flags().StringVar(&jaegerEndpoint, "jaeger-endpoint", "http://localhost:14268/api/traces", "jaeger endpoint to collect tracing data")
	rootCmd.Flags().Float64Var(&jaegerSampleRate, "jaeger-sample-ratio", 1.0, "fraction of traces to sample, in (0, 1); values outside that range sample everything")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err.Error())
		os.Exit(exitOnErrorCode)
	}
}

func run(_ *cobra.Command, _ []string) error {
	logrusLog := logrus.New()
	logrusLog.SetOutput(os.Stdout)
	logrusLog.SetFormatter(&logrus.TextFormatter{})
	logrusLog.SetLevel(logrus.Level(logLevel))
	log := logrusr.New(logrusLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if enableJaeger {
		tp, err := tracing.InitTracerProvider(log, tracing.Options{Endpoint: jaegerEndpoint, SampleRatio: jaegerSampleRate})
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer tracing.Shutdown(ctx, log, tp)
	}

	cfg, err := LoadGoalConfig(configPath)
	if err != nil {
		return err
	}

	goal, err := buildGoal(cfg)
	if err != nil {
		return err
	}

	orc, sink, err := buildOrchestrator(cfg, log)
	if err != nil {
		return err
	}

	plan, err := orc.Run(ctx, goal)
	if err != nil {
		log.Error(err, "goal execution failed", "goal", cfg.Name)
		return err
	}

	log.Info("goal execution complete", "goal", cfg.Name, "compiled", len(plan.SourcesCompiled), "outputDirs", plan.OutputDirs)
	for _, reg := range sink.Registrations() {
		fmt.Printf("registered %s source root: %s\n", reg.Kind, reg.Dir)
	}
	return nil
}

func buildGoal(cfg GoalConfig) (orchestrator.Goal, error) {
	filter, err := scan.NewIncludesExcludesGlobFilter(cfg.Includes, cfg.Excludes)
	if err != nil {
		return orchestrator.Goal{}, fmt.Errorf("invalid include/exclude globs: %w", err)
	}

	executionID := cfg.ExecutionID
	if executionID == "" {
		executionID = uuid.NewString()
	}

	plugins := make([]pluginresolve.Descriptor, 0, len(cfg.Plugins))
	for i, p := range cfg.Plugins {
		d, err := p.toDescriptor(i)
		if err != nil {
			return orchestrator.Goal{}, err
		}
		plugins = append(plugins, d)
	}

	return orchestrator.Goal{
		Name:               cfg.Name,
		ExecutionID:        executionID,
		ScanRoots:          cfg.ScanRoots,
		Filter:             filter,
		CompilableArchives: cfg.CompilableArchives,
		ImportOnlyArchives: cfg.ImportOnlyArchives,
		Protoc:             cfg.protocDistribution(),
		Plugins:            plugins,
		BuiltinOutputs:     cfg.builtinOutputs(),
		SourceKind:         cfg.sourceKind(),
	}, nil
}

func buildOrchestrator(cfg GoalConfig, log logr.Logger) (*orchestrator.Orchestrator, *sourceroot.InMemorySink, error) {
	space, err := scratch.New(cfg.BuildDir)
	if err != nil {
		return nil, nil, err
	}

	host := hostinfo.Detect()
	fetcher := fetch.New(space, cfg.Offline, log)

	var graph resolve.DependencyGraph = resolve.NewLocalRepository(cfg.RepositoryRoot)
	artifact := resolve.New(graph)

	protoc := protocresolve.New(host, fetcher, artifact, log)
	plugins := pluginresolve.New(protoc, artifact, log)
	sink := sourceroot.NewInMemorySink()

	return orchestrator.New(space, host, protoc, plugins, sink, log), sink, nil
}
