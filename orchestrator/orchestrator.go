// Package orchestrator drives a single goal execution end to end: scan
// sources, resolve protoc and its plugins, consult the incremental cache,
// plan and execute protoc, and register generated output directories.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/go-logr/logr"

	"github.com/ascopes/protoc-integration-go/archive"
	"github.com/ascopes/protoc-integration-go/hostinfo"
	"github.com/ascopes/protoc-integration-go/incremental"
	"github.com/ascopes/protoc-integration-go/invoke"
	"github.com/ascopes/protoc-integration-go/launcher"
	"github.com/ascopes/protoc-integration-go/pluginresolve"
	"github.com/ascopes/protoc-integration-go/protocresolve"
	"github.com/ascopes/protoc-integration-go/scan"
	"github.com/ascopes/protoc-integration-go/scratch"
	"github.com/ascopes/protoc-integration-go/sourceroot"
	"github.com/ascopes/protoc-integration-go/tracing"
)

// Goal is one configured execution: the scan roots, the archives to
// extract for compilable and import-only dependencies, the protoc and
// plugin descriptors, and the glob filter restricting compilable sources.
type Goal struct {
	Name               string
	ExecutionID        string
	ScanRoots          []string
	Filter             scan.GlobFilter
	CompilableArchives []string
	ImportOnlyArchives []string
	Protoc             protocresolve.Distribution
	Plugins            []pluginresolve.Descriptor
	BuiltinOutputs     []invoke.BuiltinOutput
	SourceKind         sourceroot.Kind
}

// Orchestrator wires every component package together and runs goals
// against a single scratch space.
type Orchestrator struct {
	space    *scratch.Space
	host     hostinfo.Info
	scanner  *scan.Scanner
	protoc   *protocresolve.Resolver
	plugins  *pluginresolve.Resolver
	launcher *launcher.Factory
	sink     sourceroot.Sink
	log      logr.Logger
}

// New builds an Orchestrator. space is the scratch root this instance
// owns for its lifetime; the remaining collaborators are the same
// execution-scoped components a single build invocation constructs
// fresh.
func New(
	space *scratch.Space,
	host hostinfo.Info,
	protoc *protocresolve.Resolver,
	plugins *pluginresolve.Resolver,
	sink sourceroot.Sink,
	log logr.Logger,
) *Orchestrator {
	o := &Orchestrator{
		space:   space,
		host:    host,
		scanner: scan.NewScanner(),
		protoc:  protoc,
		plugins: plugins,
		sink:    sink,
		log:     log,
	}
	o.launcher = launcher.NewFactory(func(id string) (string, error) {
		return space.Dir(scratch.Key{FragTag: "java-apps", Fragments: []string{id}})
	})
	return o
}

// Run executes goal's six-step flow (§4.13): merge scanned and extracted
// source directories, resolve protoc and plugins, consult the
// incremental cache, plan and execute protoc if anything changed,
// register output directories, and commit the cache snapshot on success.
func (o *Orchestrator) Run(ctx context.Context, goal Goal) (Plan, error) {
	ctx, span := tracing.StartNewSpan(ctx, "orchestrator.run")
	defer span.End()

	inputs, err := o.buildProjectInputs(ctx, goal)
	if err != nil {
		return Plan{}, err
	}

	resolvedProtoc, resolvedPlugins, err := o.resolvePipeline(ctx, goal)
	if err != nil {
		return Plan{}, err
	}

	cacheDir, err := o.space.Dir(scratch.Key{Goal: goal.Name, ExecutionID: goal.ExecutionID, FragTag: "incremental"})
	if err != nil {
		return Plan{}, fmt.Errorf("orchestrator: cannot allocate incremental cache dir: %w", err)
	}
	cache, err := incremental.New(cacheDir)
	if err != nil {
		return Plan{}, err
	}

	ctx, cacheSpan := tracing.StartNewSpan(ctx, "orchestrator.diff")
	toCompile, err := cache.DetermineSourcesToCompile(ctx, incremental.Inputs{
		DependencySources: inputs.dependencySources,
		CompilableSources: inputs.compilableSources,
	})
	cacheSpan.End()
	if err != nil {
		return Plan{}, err
	}

	invocations, err := o.toInvocations(resolvedPlugins)
	if err != nil {
		return Plan{}, err
	}

	planner := invoke.NewPlanner(func() (string, error) {
		return o.space.Dir(scratch.Key{Goal: goal.Name, ExecutionID: goal.ExecutionID, FragTag: "argfile"})
	})

	ctx, planSpan := tracing.StartNewSpan(ctx, "orchestrator.plan")
	plan, err := planner.Build(resolvedProtoc, inputs.importRoots, inputs.sourceRoots, invocations, goal.BuiltinOutputs, toCompile)
	planSpan.End()
	if err != nil {
		return Plan{}, err
	}

	if len(toCompile) > 0 {
		ctx, execSpan := tracing.StartNewSpan(ctx, "orchestrator.execute")
		executor := invoke.NewExecutor(o.log)
		err = executor.Execute(ctx, plan)
		execSpan.End()
		if err != nil {
			return Plan{}, err
		}
	} else {
		o.log.V(1).Info("incremental cache reports no changes, skipping protoc", "goal", goal.Name)
	}

	for _, dir := range plan.OutputDirs {
		o.sink.Register(dir, goal.SourceKind)
	}

	if err := cache.Commit(); err != nil {
		return Plan{}, fmt.Errorf("orchestrator: failed to commit incremental cache: %w", err)
	}

	return Plan{OutputDirs: plan.OutputDirs, SourcesCompiled: toCompile}, nil
}

// Plan is the orchestrator-level result of a goal run.
type Plan struct {
	OutputDirs      []string
	SourcesCompiled []string
}

type projectInputs struct {
	sourceRoots       []string
	importRoots       []string
	compilableSources []string
	dependencySources []string
}

// buildProjectInputs performs §4.13 step 1: merge scanned source
// directories with extracted compilable- and import-only-dependency
// archive directories.
func (o *Orchestrator) buildProjectInputs(ctx context.Context, goal Goal) (projectInputs, error) {
	_, span := tracing.StartNewSpan(ctx, "orchestrator.scan")
	defer span.End()

	var inputs projectInputs

	for _, root := range goal.ScanRoots {
		listing, err := o.scanner.Scan(root, goal.Filter)
		if err != nil {
			return projectInputs{}, err
		}
		inputs.sourceRoots = append(inputs.sourceRoots, listing.Root)
		inputs.compilableSources = append(inputs.compilableSources, listing.Files...)
	}

	if len(goal.CompilableArchives) > 0 {
		dir, err := o.space.Dir(scratch.Key{Goal: goal.Name, ExecutionID: goal.ExecutionID, FragTag: "archives", Fragments: []string{"compilable"}})
		if err != nil {
			return projectInputs{}, err
		}
		roots, err := archive.Extract(goal.CompilableArchives, dir)
		if err != nil {
			return projectInputs{}, err
		}
		for _, root := range roots {
			listing, err := o.scanner.Scan(root, goal.Filter)
			if err != nil {
				return projectInputs{}, err
			}
			inputs.sourceRoots = append(inputs.sourceRoots, listing.Root)
			inputs.compilableSources = append(inputs.compilableSources, listing.Files...)
			inputs.dependencySources = append(inputs.dependencySources, goal.CompilableArchives...)
		}
	}

	if len(goal.ImportOnlyArchives) > 0 {
		dir, err := o.space.Dir(scratch.Key{Goal: goal.Name, ExecutionID: goal.ExecutionID, FragTag: "archives", Fragments: []string{"import-only"}})
		if err != nil {
			return projectInputs{}, err
		}
		roots, err := archive.Extract(goal.ImportOnlyArchives, dir)
		if err != nil {
			return projectInputs{}, err
		}
		inputs.importRoots = append(inputs.importRoots, roots...)
		inputs.dependencySources = append(inputs.dependencySources, goal.ImportOnlyArchives...)
	}

	return inputs, nil
}

// resolvePipeline performs §4.13 step 2: resolve the protoc distribution
// and every configured plugin.
func (o *Orchestrator) resolvePipeline(ctx context.Context, goal Goal) (string, []pluginresolve.Resolved, error) {
	ctx, span := tracing.StartNewSpan(ctx, "orchestrator.resolve")
	defer span.End()

	protocPath, err := o.protoc.Resolve(ctx, goal.Protoc)
	if err != nil {
		return "", nil, err
	}

	resolved, err := o.plugins.ResolveAll(ctx, goal.Plugins)
	if err != nil {
		return "", nil, err
	}
	return protocPath, resolved, nil
}

// toInvocations turns each resolved plugin into a protoc command-line
// invocation, wrapping JVM plugins in a launcher script first.
func (o *Orchestrator) toInvocations(resolved []pluginresolve.Resolved) ([]invoke.PluginInvocation, error) {
	invocations := make([]invoke.PluginInvocation, 0, len(resolved))
	for i, r := range resolved {
		path := r.Path
		if r.IsJVM {
			scriptPath, err := o.launcher.Write(launcher.Plugin{
				ID:             r.ID,
				JavaExecutable: o.host.JavaExecutable(),
				Classpath:      r.Classpath,
				ModulePath:     r.ModulePath,
				MainClass:      r.MainClass,
				JVMArgs:        r.Descriptor.JVMArgs,
				JVMConfigArgs:  r.Descriptor.ConfigArgs,
				PathSeparator:  o.host.PathSeparator(),
				Windows:        o.host.OS() == hostinfo.Windows,
			})
			if err != nil {
				return nil, fmt.Errorf("orchestrator: cannot write launcher for plugin %s: %w", r.Descriptor.Name, err)
			}
			path = scriptPath
		}

		invocations = append(invocations, invoke.PluginInvocation{
			Name:      r.Descriptor.Name,
			Path:      path,
			Options:   joinOptions(r.Options),
			OutputDir: outputDirFor(r.OutputDir),
			Order:     r.Descriptor.Order,
			DeclIndex: i,
		})
	}
	return invocations, nil
}

func joinOptions(options []string) string {
	if len(options) == 0 {
		return ""
	}
	joined := options[0]
	for _, o := range options[1:] {
		joined += "," + o
	}
	return joined
}

func outputDirFor(dir string) string {
	if dir == "" {
		return "."
	}
	return filepath.Clean(dir)
}
