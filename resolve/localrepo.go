package resolve

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-version"
)

// LocalRepository is a DependencyGraph backed by a local Maven-layout
// directory tree (groupId segments, artifactId, version). It is the
// filesystem-only binding used for tests and offline builds; a full
// build tool wires its own project-model-backed DependencyGraph instead.
//
// Transitive dependencies are read from a sidecar "<artifact>.deps" file
// next to the resolved artifact, one "groupId:artifactId:version:scope"
// line per direct dependency; its absence means no further dependencies.
type LocalRepository struct {
	root string
}

// NewLocalRepository builds a LocalRepository rooted at root (e.g. a
// directory laid out like "~/.m2/repository").
func NewLocalRepository(root string) *LocalRepository {
	return &LocalRepository{root: root}
}

// Resolve implements DependencyGraph.
func (lr *LocalRepository) Resolve(ctx context.Context, coord MavenCoordinate, depth Depth, scopes []Scope, includeOptional bool) ([]string, error) {
	coord, entry, err := lr.locate(coord)
	if err != nil {
		return nil, err
	}

	if depth == Direct {
		return []string{entry}, nil
	}

	seen := map[string]bool{coord.String(): true}
	paths := []string{entry}
	queue := []MavenCoordinate{coord}

	for len(queue) > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		current := queue[0]
		queue = queue[1:]

		deps, err := lr.readDeps(current, scopes, includeOptional)
		if err != nil {
			return nil, err
		}
		for _, dep := range deps {
			if seen[dep.String()] {
				continue
			}
			seen[dep.String()] = true
			resolvedDep, depPath, err := lr.locate(dep)
			if err != nil {
				return nil, err
			}
			paths = append(paths, depPath)
			queue = append(queue, resolvedDep)
		}
	}
	return paths, nil
}

func (lr *LocalRepository) artifactDir(coord MavenCoordinate) string {
	groupPath := strings.ReplaceAll(coord.GroupID, ".", string(filepath.Separator))
	return filepath.Join(lr.root, groupPath, coord.ArtifactID, coord.Version)
}

func (lr *LocalRepository) fileName(coord MavenCoordinate) string {
	typ := coord.Type
	if typ == "" {
		typ = "jar"
	}
	if coord.Classifier != "" {
		return fmt.Sprintf("%s-%s-%s.%s", coord.ArtifactID, coord.Version, coord.Classifier, typ)
	}
	return fmt.Sprintf("%s-%s.%s", coord.ArtifactID, coord.Version, typ)
}

// locate resolves coord to an on-disk path, returning the coordinate
// with its version filled in when coord.Version was empty.
func (lr *LocalRepository) locate(coord MavenCoordinate) (MavenCoordinate, string, error) {
	if coord.Version == "" {
		resolved, err := lr.highestCachedVersion(coord)
		if err != nil {
			return MavenCoordinate{}, "", err
		}
		coord = resolved
	}

	path := filepath.Join(lr.artifactDir(coord), lr.fileName(coord))
	if _, err := os.Stat(path); err != nil {
		return MavenCoordinate{}, "", &ResolutionError{Coordinate: coord, Cause: fmt.Errorf("not found under %s: %w", lr.root, err)}
	}
	return coord, path, nil
}

// highestCachedVersion picks the highest semantically-ordered version
// directory cached for coord's groupId:artifactId, used when a caller
// (e.g. protocresolve resolving an unpinned protoc distribution) has no
// exact version to resolve against.
func (lr *LocalRepository) highestCachedVersion(coord MavenCoordinate) (MavenCoordinate, error) {
	groupPath := strings.ReplaceAll(coord.GroupID, ".", string(filepath.Separator))
	artifactDir := filepath.Join(lr.root, groupPath, coord.ArtifactID)

	entries, err := os.ReadDir(artifactDir)
	if err != nil {
		return MavenCoordinate{}, &ResolutionError{Coordinate: coord, Cause: fmt.Errorf("no cached versions under %s: %w", artifactDir, err)}
	}

	var best *version.Version
	var bestRaw string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		v, err := version.NewVersion(e.Name())
		if err != nil {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
			bestRaw = e.Name()
		}
	}
	if best == nil {
		return MavenCoordinate{}, &ResolutionError{Coordinate: coord, Cause: fmt.Errorf("no parseable cached version under %s", artifactDir)}
	}

	resolved := coord
	resolved.Version = bestRaw
	return resolved, nil
}

// readDeps reads the "<artifactId>-<version>.deps" sidecar next to
// coord's artifact, filtering by scope and optional-ness. A missing
// sidecar means no dependencies, not an error.
func (lr *LocalRepository) readDeps(coord MavenCoordinate, scopes []Scope, includeOptional bool) ([]MavenCoordinate, error) {
	depsFile := filepath.Join(lr.artifactDir(coord), fmt.Sprintf("%s-%s.deps", coord.ArtifactID, coord.Version))
	f, err := os.Open(depsFile)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &ResolutionError{Coordinate: coord, Cause: err}
	}
	defer f.Close()

	var deps []MavenCoordinate
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		dep, scope, optional, err := parseDepLine(line)
		if err != nil {
			return nil, &ResolutionError{Coordinate: coord, Cause: err}
		}
		if optional && !includeOptional {
			continue
		}
		if !scopeAllowed(scope, scopes) {
			continue
		}
		deps = append(deps, dep)
	}
	if err := scanner.Err(); err != nil {
		return nil, &ResolutionError{Coordinate: coord, Cause: err}
	}
	return deps, nil
}

func scopeAllowed(scope Scope, allowed []Scope) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, s := range allowed {
		if s == scope {
			return true
		}
	}
	return false
}

// parseDepLine parses "groupId:artifactId:version:scope[:optional]".
func parseDepLine(line string) (MavenCoordinate, Scope, bool, error) {
	fields := strings.Split(line, ":")
	if len(fields) < 4 {
		return MavenCoordinate{}, "", false, fmt.Errorf("resolve: malformed dependency line %q", line)
	}
	coord := MavenCoordinate{GroupID: fields[0], ArtifactID: fields[1], Version: fields[2]}
	scope := Scope(fields[3])
	optional := len(fields) >= 5 && fields[4] == "optional"
	return coord, scope, optional, nil
}
