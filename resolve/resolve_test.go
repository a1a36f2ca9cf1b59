package resolve

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArtifact(t *testing.T, root string, coord MavenCoordinate, deps []string) string {
	t.Helper()
	dir := filepath.Join(root, filepath.FromSlash(coordPathSegments(coord)), coord.Version)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	artifact := filepath.Join(dir, coord.ArtifactID+"-"+coord.Version+".jar")
	require.NoError(t, os.WriteFile(artifact, []byte("jar-bytes"), 0o644))
	if len(deps) > 0 {
		depsFile := filepath.Join(dir, coord.ArtifactID+"-"+coord.Version+".deps")
		content := ""
		for _, d := range deps {
			content += d + "\n"
		}
		require.NoError(t, os.WriteFile(depsFile, []byte(content), 0o644))
	}
	return artifact
}

func coordPathSegments(coord MavenCoordinate) string {
	return filepath.ToSlash(filepath.Join(splitDots(coord.GroupID)...)) + "/" + coord.ArtifactID
}

func splitDots(groupID string) []string {
	var parts []string
	start := 0
	for i, c := range groupID {
		if c == '.' {
			parts = append(parts, groupID[start:i])
			start = i + 1
		}
	}
	parts = append(parts, groupID[start:])
	return parts
}

func TestLocalRepositoryResolveOneDirect(t *testing.T) {
	root := t.TempDir()
	coord := MavenCoordinate{GroupID: "com.example", ArtifactID: "core", Version: "1.0"}
	expected := writeArtifact(t, root, coord, nil)

	repo := NewLocalRepository(root)
	resolver := New(repo)

	paths, err := resolver.ResolveOne(context.Background(), coord, Direct)
	require.NoError(t, err)
	assert.Equal(t, []string{expected}, paths)
}

func TestLocalRepositoryResolveTransitive(t *testing.T) {
	root := t.TempDir()
	leaf := MavenCoordinate{GroupID: "com.example", ArtifactID: "leaf", Version: "1.0"}
	leafPath := writeArtifact(t, root, leaf, nil)

	top := MavenCoordinate{GroupID: "com.example", ArtifactID: "top", Version: "1.0"}
	topPath := writeArtifact(t, root, top, []string{"com.example:leaf:1.0:compile"})

	repo := NewLocalRepository(root)
	resolver := New(repo)

	paths, err := resolver.ResolveOne(context.Background(), top, Transitive)
	require.NoError(t, err)
	assert.Equal(t, topPath, paths[0], "entrypoint must be first")
	assert.Contains(t, paths, leafPath)
}

func TestLocalRepositoryScopeFilterExcludesDisallowedScope(t *testing.T) {
	root := t.TempDir()
	leaf := MavenCoordinate{GroupID: "com.example", ArtifactID: "leaf", Version: "1.0"}
	writeArtifact(t, root, leaf, nil)

	top := MavenCoordinate{GroupID: "com.example", ArtifactID: "top", Version: "1.0"}
	topPath := writeArtifact(t, root, top, []string{"com.example:leaf:1.0:test"})

	repo := NewLocalRepository(root)
	resolver := New(repo)

	paths, err := resolver.ResolveDependencies(context.Background(), []MavenCoordinate{top}, Transitive, JVMPluginScopes, false)
	require.NoError(t, err)
	assert.Equal(t, []string{topPath}, paths)
}

func TestLocalRepositoryOptionalDependencySuppressedByDefault(t *testing.T) {
	root := t.TempDir()
	leaf := MavenCoordinate{GroupID: "com.example", ArtifactID: "leaf", Version: "1.0"}
	leafPath := writeArtifact(t, root, leaf, nil)

	top := MavenCoordinate{GroupID: "com.example", ArtifactID: "top", Version: "1.0"}
	topPath := writeArtifact(t, root, top, []string{"com.example:leaf:1.0:compile:optional"})

	repo := NewLocalRepository(root)
	resolver := New(repo)

	paths, err := resolver.ResolveOne(context.Background(), top, Transitive)
	require.NoError(t, err)
	assert.Equal(t, []string{topPath}, paths)

	pathsWithOptional, err := repo.Resolve(context.Background(), top, Transitive, nil, true)
	require.NoError(t, err)
	assert.Contains(t, pathsWithOptional, leafPath)
}

func TestLocalRepositoryMissingArtifactReturnsResolutionError(t *testing.T) {
	root := t.TempDir()
	repo := NewLocalRepository(root)
	resolver := New(repo)

	coord := MavenCoordinate{GroupID: "com.example", ArtifactID: "missing", Version: "1.0"}
	_, err := resolver.ResolveOne(context.Background(), coord, Direct)
	require.Error(t, err)
	var resErr *ResolutionError
	assert.ErrorAs(t, err, &resErr)
}

func TestLocalRepositoryUnpinnedVersionResolvesHighestCached(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, root, MavenCoordinate{GroupID: "com.google.protobuf", ArtifactID: "protoc", Version: "3.21.0"}, nil)
	expected := writeArtifact(t, root, MavenCoordinate{GroupID: "com.google.protobuf", ArtifactID: "protoc", Version: "3.25.1"}, nil)
	writeArtifact(t, root, MavenCoordinate{GroupID: "com.google.protobuf", ArtifactID: "protoc", Version: "3.9.1"}, nil)

	repo := NewLocalRepository(root)
	resolver := New(repo)

	paths, err := resolver.ResolveOne(context.Background(), MavenCoordinate{GroupID: "com.google.protobuf", ArtifactID: "protoc"}, Direct)
	require.NoError(t, err)
	assert.Equal(t, []string{expected}, paths)
}

func TestLocalRepositoryUnpinnedVersionWithNoCachedVersionsFails(t *testing.T) {
	root := t.TempDir()
	repo := NewLocalRepository(root)
	resolver := New(repo)

	_, err := resolver.ResolveOne(context.Background(), MavenCoordinate{GroupID: "com.example", ArtifactID: "nothing-cached"}, Direct)
	require.Error(t, err)
}

func TestMavenCoordinateStringFormat(t *testing.T) {
	c := MavenCoordinate{GroupID: "com.example", ArtifactID: "core", Version: "1.0"}
	assert.Equal(t, "com.example:core:jar:1.0", c.String())

	withClassifier := MavenCoordinate{GroupID: "com.example", ArtifactID: "core", Version: "1.0", Classifier: "linux-x86_64"}
	assert.Equal(t, "com.example:core:jar:linux-x86_64:1.0", withClassifier.String())
}
