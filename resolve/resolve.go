// Package resolve exposes the ArtifactResolver facade over the external
// dependency-graph collaborator that the surrounding build tool supplies.
package resolve

import (
	"context"
	"fmt"
	"strings"
)

// Depth controls whether resolution follows transitive dependencies.
type Depth int

const (
	// Direct resolves only the named coordinate, not its dependencies.
	Direct Depth = iota
	// Transitive resolves the named coordinate and everything it depends on.
	Transitive
)

// Scope is a dependency scope as declared by the build tool's project
// model (compile, runtime, test, provided, system, ...).
type Scope string

// JVMPluginScopes is the exact scope filter used when resolving a JVM
// plugin's classpath.
var JVMPluginScopes = []Scope{"compile", "runtime", "system"}

// MavenCoordinate identifies an artifact. Type defaults to "jar" when
// empty.
type MavenCoordinate struct {
	GroupID    string
	ArtifactID string
	Version    string
	Type       string
	Classifier string
}

// String renders the coordinate in Maven's "g:a:t:v" / "g:a:t:c:v" form,
// used both for diagnostics and as the input to the JVM plugin stable-id
// digest.
func (c MavenCoordinate) String() string {
	typ := c.Type
	if typ == "" {
		typ = "jar"
	}
	parts := []string{c.GroupID, c.ArtifactID, typ}
	if c.Classifier != "" {
		parts = append(parts, c.Classifier)
	}
	parts = append(parts, c.Version)
	return strings.Join(parts, ":")
}

// ResolutionError wraps a failure to resolve a coordinate, carrying the
// coordinate that failed for diagnostics.
type ResolutionError struct {
	Coordinate MavenCoordinate
	Cause      error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve: could not resolve %s: %v", e.Coordinate, e.Cause)
}

func (e *ResolutionError) Unwrap() error { return e.Cause }

// DependencyGraph is the external collaborator delegated to the
// surrounding build tool's project model and remote-repository client.
// Implementations return artifact files with the entrypoint artifact
// first when resolving a JVM plugin.
type DependencyGraph interface {
	Resolve(ctx context.Context, coord MavenCoordinate, depth Depth, scopes []Scope, includeOptional bool) ([]string, error)
}

// ArtifactResolver is a thin facade over a DependencyGraph, parameterized
// by resolution depth and scope filter at each call site.
type ArtifactResolver struct {
	graph DependencyGraph
}

// New builds an ArtifactResolver backed by graph.
func New(graph DependencyGraph) *ArtifactResolver {
	return &ArtifactResolver{graph: graph}
}

// ResolveOne resolves a single coordinate at the given depth with no
// scope restriction and optional dependencies excluded.
func (r *ArtifactResolver) ResolveOne(ctx context.Context, coord MavenCoordinate, depth Depth) ([]string, error) {
	paths, err := r.graph.Resolve(ctx, coord, depth, nil, false)
	if err != nil {
		return nil, &ResolutionError{Coordinate: coord, Cause: err}
	}
	return paths, nil
}

// ResolveDependencies resolves a set of coordinates at the given depth,
// restricted to allowedScopes and optionally including optional
// dependencies. Coordinates are resolved in input order and results are
// concatenated in that order.
func (r *ArtifactResolver) ResolveDependencies(ctx context.Context, coords []MavenCoordinate, depth Depth, allowedScopes []Scope, includeOptional bool) ([]string, error) {
	var all []string
	for _, coord := range coords {
		paths, err := r.graph.Resolve(ctx, coord, depth, allowedScopes, includeOptional)
		if err != nil {
			return nil, &ResolutionError{Coordinate: coord, Cause: err}
		}
		all = append(all, paths...)
	}
	return all, nil
}
