package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/ascopes/protoc-integration-go/invoke"
	"github.com/ascopes/protoc-integration-go/pluginresolve"
	"github.com/ascopes/protoc-integration-go/protocresolve"
	"github.com/ascopes/protoc-integration-go/resolve"
	"github.com/ascopes/protoc-integration-go/sourceroot"
)

// CoordinateConfig is a structured Maven coordinate, used whenever a
// plugin or the protoc distribution itself is resolved from a managed
// artifact rather than a host PATH entry or a direct URI.
type CoordinateConfig struct {
	GroupID    string `json:"groupId" yaml:"groupId"`
	ArtifactID string `json:"artifactId" yaml:"artifactId"`
	Version    string `json:"version" yaml:"version"`
	Classifier string `json:"classifier" yaml:"classifier"`
}

func (c CoordinateConfig) toMavenCoordinate() resolve.MavenCoordinate {
	return resolve.MavenCoordinate{GroupID: c.GroupID, ArtifactID: c.ArtifactID, Version: c.Version, Classifier: c.Classifier}
}

// PluginConfig is one configured plugin entry. Descriptor carries the
// §6.1 shorthand string ("PATH" or a URI); Coordinate, when its GroupID
// is set, takes precedence and selects a managed-artifact plugin
// (native or, when JVM is set, a JVM-launched one).
type PluginConfig struct {
	Descriptor string           `json:"descriptor" yaml:"descriptor"`
	Coordinate CoordinateConfig `json:"coordinate" yaml:"coordinate"`
	Name       string           `json:"name" yaml:"name"`
	Order      int              `json:"order" yaml:"order"`
	Optional   bool             `json:"optional" yaml:"optional"`
	Skip       bool             `json:"skip" yaml:"skip"`
	JVM        bool             `json:"jvm" yaml:"jvm"`
	MainClass  string           `json:"mainClass" yaml:"mainClass"`
	Options    []string         `json:"options" yaml:"options"`
	OutputDir  string           `json:"outputDir" yaml:"outputDir"`
	JVMArgs    []string         `json:"jvmArgs" yaml:"jvmArgs"`
	ConfigArgs []string         `json:"configArgs" yaml:"configArgs"`
}

// BuiltinOutputConfig configures a protoc builtin generator invoked
// directly by language flag (§4.12 step 3, §6.3), e.g. "--java_out=",
// with no accompanying --plugin= entry.
type BuiltinOutputConfig struct {
	Lang      string `json:"lang" yaml:"lang"`
	Options   string `json:"options" yaml:"options"`
	OutputDir string `json:"outputDir" yaml:"outputDir"`
}

func (b BuiltinOutputConfig) toBuiltinOutput() invoke.BuiltinOutput {
	return invoke.BuiltinOutput{Lang: b.Lang, Options: b.Options, OutputDir: b.OutputDir}
}

// GoalConfig is a standalone JSON or YAML description of a single goal
// execution, loaded the way the surrounding build tool's own settings
// file would be loaded, but self-contained since there is no build tool
// here.
type GoalConfig struct {
	Name               string                `json:"name" yaml:"name"`
	ExecutionID        string                `json:"executionId" yaml:"executionId"`
	BuildDir           string                `json:"buildDir" yaml:"buildDir"`
	RepositoryRoot     string                `json:"repositoryRoot" yaml:"repositoryRoot"`
	Offline            bool                  `json:"offline" yaml:"offline"`
	ScanRoots          []string              `json:"scanRoots" yaml:"scanRoots"`
	Includes           []string              `json:"includes" yaml:"includes"`
	Excludes           []string              `json:"excludes" yaml:"excludes"`
	CompilableArchives []string              `json:"compilableArchives" yaml:"compilableArchives"`
	ImportOnlyArchives []string              `json:"importOnlyArchives" yaml:"importOnlyArchives"`
	TestSourceRoot     bool                  `json:"testSourceRoot" yaml:"testSourceRoot"`
	Protoc             string                `json:"protoc" yaml:"protoc"`
	ProtocCoordinate   CoordinateConfig      `json:"protocCoordinate" yaml:"protocCoordinate"`
	Plugins            []PluginConfig        `json:"plugins" yaml:"plugins"`
	BuiltinOutputs     []BuiltinOutputConfig `json:"builtinOutputs" yaml:"builtinOutputs"`
}

// builtinOutputs converts the configured BuiltinOutputs to invoke.BuiltinOutput.
func (c GoalConfig) builtinOutputs() []invoke.BuiltinOutput {
	if len(c.BuiltinOutputs) == 0 {
		return nil
	}
	outputs := make([]invoke.BuiltinOutput, len(c.BuiltinOutputs))
	for i, b := range c.BuiltinOutputs {
		outputs[i] = b.toBuiltinOutput()
	}
	return outputs
}

// LoadGoalConfig reads and parses a GoalConfig from path. A ".yaml" or
// ".yml" extension is parsed as YAML; anything else is parsed as JSON.
func LoadGoalConfig(path string) (GoalConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return GoalConfig{}, fmt.Errorf("cannot read goal config %s: %w", path, err)
	}

	var cfg GoalConfig
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return GoalConfig{}, fmt.Errorf("cannot parse goal config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return GoalConfig{}, fmt.Errorf("cannot parse goal config %s: %w", path, err)
		}
	}
	return cfg, nil
}

// sourceKind reports the SourceRootSink kind this goal's output should
// be registered under.
func (c GoalConfig) sourceKind() sourceroot.Kind {
	if c.TestSourceRoot {
		return sourceroot.Test
	}
	return sourceroot.Main
}

// protocDistribution resolves the configured protoc entry: an explicit
// coordinate wins when given, otherwise the §6.1 shorthand grammar
// applies to Protoc ("PATH", a "<scheme>:..." URI, or a bare version
// string).
func (c GoalConfig) protocDistribution() protocresolve.Distribution {
	if c.ProtocCoordinate.GroupID != "" {
		coord := c.ProtocCoordinate.toMavenCoordinate()
		if coord.ArtifactID == "" {
			coord.ArtifactID = "protoc"
		}
		if coord.GroupID == "" {
			coord.GroupID = "com.google.protobuf"
		}
		coord.Type = "exe"
		return protocresolve.Distribution{Kind: protocresolve.Coordinate, Coord: coord}
	}
	return parseDistributionShorthand(c.Protoc)
}

// parseDistributionShorthand applies the §6.1 descriptor grammar: a bare
// "PATH" token, a "<scheme>:..." URI, or anything else treated as a
// protoc version coordinate.
func parseDistributionShorthand(s string) protocresolve.Distribution {
	if s == "" || s == "PATH" {
		return protocresolve.Distribution{Kind: protocresolve.Path, Name: "protoc"}
	}
	if strings.Contains(s, ":") {
		return protocresolve.Distribution{Kind: protocresolve.URI, URIValue: s}
	}
	return protocresolve.Distribution{
		Kind: protocresolve.Coordinate,
		Coord: resolve.MavenCoordinate{
			GroupID:    "com.google.protobuf",
			ArtifactID: "protoc",
			Version:    s,
			Type:       "exe",
		},
	}
}

// toDescriptor turns a PluginConfig into a pluginresolve.Descriptor. A
// configured Coordinate takes precedence over the Descriptor shorthand;
// JVM selects whether a coordinate-based plugin is launched natively or
// wrapped by the JVM launcher.
func (p PluginConfig) toDescriptor(declIndex int) (pluginresolve.Descriptor, error) {
	d := pluginresolve.Descriptor{
		Name:       p.Name,
		Order:      p.Order,
		Optional:   p.Optional,
		Skip:       p.Skip,
		MainClass:  p.MainClass,
		Options:    p.Options,
		OutputDir:  p.OutputDir,
		JVMArgs:    p.JVMArgs,
		ConfigArgs: p.ConfigArgs,
	}

	if p.Coordinate.GroupID != "" {
		d.Coord = p.Coordinate.toMavenCoordinate()
		if p.JVM {
			d.Kind = pluginresolve.JVM
		} else {
			d.Kind = pluginresolve.NativeCoordinate
		}
		return d, nil
	}

	if p.JVM {
		return pluginresolve.Descriptor{}, fmt.Errorf("plugin %q: jvm plugins must set coordinate", p.Name)
	}

	switch {
	case p.Descriptor == "" || p.Descriptor == "PATH":
		d.Kind = pluginresolve.NativePath
		if d.Name == "" {
			return pluginresolve.Descriptor{}, fmt.Errorf("plugin %q: name is required for a PATH plugin", p.Name)
		}
	case strings.Contains(p.Descriptor, ":"):
		d.Kind = pluginresolve.NativeURI
		d.URIValue = p.Descriptor
	default:
		return pluginresolve.Descriptor{}, fmt.Errorf("plugin %q: descriptor %q is not PATH, a URI, or backed by a coordinate", p.Name, p.Descriptor)
	}
	return d, nil
}
