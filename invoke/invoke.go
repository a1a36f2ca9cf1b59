// Package invoke builds a protoc argument file from resolved plugins and
// sources, then executes protoc exactly once per goal.
package invoke

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/go-logr/logr"
)

// PluginInvocation is a resolved external plugin ready to be passed on
// the protoc command line as a --plugin=name=path entry.
type PluginInvocation struct {
	Name      string // e.g. "java", "kotlin", or a custom generator name
	Path      string
	Options   string // joined options string; empty means no "=<options>"
	OutputDir string
	Order     int
	DeclIndex int
}

// BuiltinOutput is a protoc builtin generator invoked directly by
// language flag (§4.12 step 3), e.g. "--java_out=<dir>", with no
// --plugin= entry. Builtin outputs are emitted after every external
// plugin, in declaration order.
type BuiltinOutput struct {
	Lang      string
	Options   string
	OutputDir string
}

// Plan is the fully materialized invocation: an argument file plus the
// output directories the surrounding build should register regardless
// of whether protoc actually ran.
type Plan struct {
	ProtocPath       string
	ArgumentFilePath string
	OutputDirs       []string
	SourcesToCompile []string
}

// Planner builds Plans from an execution's resolved inputs.
type Planner struct {
	scratchDir func() (string, error)
}

// NewPlanner builds a Planner. argFileDir returns (and creates) the
// directory the argument file should live in.
func NewPlanner(argFileDir func() (string, error)) *Planner {
	return &Planner{scratchDir: argFileDir}
}

// Build constructs the argument-file ordering of §4.12: proto_path
// entries (import roots, then source roots), external plugins in
// (order, declIndex) order, then builtin generator outputs in
// declaration order, then sorted absolute source file paths. If
// sourcesToCompile is empty, no argument file is written and ProtocPath
// is left for the caller to skip execution, but OutputDirs is still
// populated so prior output can be discovered.
func (p *Planner) Build(protocPath string, importRoots, sourceRoots []string, plugins []PluginInvocation, builtinOutputs []BuiltinOutput, sourcesToCompile []string) (Plan, error) {
	outputDirs := collectOutputDirs(plugins, builtinOutputs)

	if len(sourcesToCompile) == 0 {
		return Plan{ProtocPath: protocPath, OutputDirs: outputDirs}, nil
	}

	sortedPlugins := append([]PluginInvocation(nil), plugins...)
	sort.SliceStable(sortedPlugins, func(i, j int) bool {
		if sortedPlugins[i].Order != sortedPlugins[j].Order {
			return sortedPlugins[i].Order < sortedPlugins[j].Order
		}
		return sortedPlugins[i].DeclIndex < sortedPlugins[j].DeclIndex
	})

	var tokens []string
	for _, root := range importRoots {
		tokens = append(tokens, "--proto_path="+root)
	}
	for _, root := range sourceRoots {
		tokens = append(tokens, "--proto_path="+root)
	}
	for _, pl := range sortedPlugins {
		tokens = append(tokens, fmt.Sprintf("--plugin=%s=%s", pl.Name, pl.Path))
		tokens = append(tokens, outFlag(pl.Name, pl.Options, pl.OutputDir))
	}
	for _, b := range builtinOutputs {
		tokens = append(tokens, outFlag(b.Lang, b.Options, b.OutputDir))
	}

	sorted := append([]string(nil), sourcesToCompile...)
	sort.Strings(sorted)
	tokens = append(tokens, sorted...)

	dir, err := p.scratchDir()
	if err != nil {
		return Plan{}, fmt.Errorf("invoke: cannot allocate scratch dir for argument file: %w", err)
	}
	argFile := filepath.Join(dir, "protoc-args.txt")
	if err := writeProtocArgFile(argFile, tokens); err != nil {
		return Plan{}, fmt.Errorf("invoke: cannot write argument file: %w", err)
	}

	return Plan{
		ProtocPath:       protocPath,
		ArgumentFilePath: argFile,
		OutputDirs:       outputDirs,
		SourcesToCompile: sorted,
	}, nil
}

func outFlag(name, options, outputDir string) string {
	if options != "" {
		return fmt.Sprintf("--%s_out=%s:%s", name, options, outputDir)
	}
	return fmt.Sprintf("--%s_out=%s", name, outputDir)
}

func collectOutputDirs(plugins []PluginInvocation, builtinOutputs []BuiltinOutput) []string {
	seen := map[string]bool{}
	var dirs []string
	add := func(dir string) {
		if dir == "" || seen[dir] {
			return
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}
	for _, pl := range plugins {
		add(pl.OutputDir)
	}
	for _, b := range builtinOutputs {
		add(b.OutputDir)
	}
	return dirs
}

// writeProtocArgFile writes one token per line with no quoting: protoc
// does not perform quote escaping and passes embedded quotes through
// literally.
func writeProtocArgFile(path string, tokens []string) error {
	var b bytes.Buffer
	for _, t := range tokens {
		b.WriteString(t)
		b.WriteString("\n")
	}
	return os.WriteFile(path, b.Bytes(), 0o644)
}

// ExecutionError reports a non-zero protoc exit code.
type ExecutionError struct {
	ExitCode int
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("invoke: protoc exited with status %d", e.ExitCode)
}

// Executor spawns protoc with a materialized argument file.
type Executor struct {
	log logr.Logger
}

// NewExecutor builds an Executor.
func NewExecutor(log logr.Logger) *Executor {
	return &Executor{log: log}
}

// Execute runs plan.ProtocPath with "@<argumentFilePath>", inheriting a
// minimized environment (PATH only). It is a no-op returning nil when
// plan.ArgumentFilePath is empty (nothing to compile this build).
func (ex *Executor) Execute(ctx context.Context, plan Plan) error {
	if plan.ArgumentFilePath == "" {
		ex.log.V(1).Info("no sources to compile, skipping protoc invocation")
		return nil
	}

	cmd := exec.CommandContext(ctx, plan.ProtocPath, "@"+plan.ArgumentFilePath)
	cmd.Env = []string{"PATH=" + os.Getenv("PATH")}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if stdout.Len() > 0 {
		ex.log.V(4).Info("protoc stdout", "output", stdout.String())
	}
	if stderr.Len() > 0 {
		ex.log.V(4).Info("protoc stderr", "output", stderr.String())
	}

	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExecutionError{ExitCode: exitErr.ExitCode()}
	}
	return fmt.Errorf("invoke: failed to run protoc: %w", err)
}
