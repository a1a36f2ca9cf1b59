package pluginresolve

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ascopes/protoc-integration-go/fetch"
	"github.com/ascopes/protoc-integration-go/hostinfo"
	"github.com/ascopes/protoc-integration-go/protocresolve"
	"github.com/ascopes/protoc-integration-go/resolve"
	"github.com/ascopes/protoc-integration-go/scratch"
)

type fakeGraph struct {
	byCoord map[string][]string
}

func (g *fakeGraph) Resolve(ctx context.Context, coord resolve.MavenCoordinate, depth resolve.Depth, scopes []resolve.Scope, includeOptional bool) ([]string, error) {
	paths, ok := g.byCoord[coord.String()]
	if !ok {
		return nil, os.ErrNotExist
	}
	return paths, nil
}

func newTestResolver(t *testing.T, graph resolve.DependencyGraph) *Resolver {
	t.Helper()
	space, err := scratch.New(t.TempDir())
	require.NoError(t, err)
	fetcher := fetch.New(space, false, logr.Discard())
	host := hostinfo.Detect()
	artifactResolver := resolve.New(graph)
	protoc := protocresolve.New(host, fetcher, artifactResolver, logr.Discard())
	return New(protoc, artifactResolver, logr.Discard())
}

func writeJarWithManifest(t *testing.T, path, mainClass string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("META-INF/MANIFEST.MF")
	require.NoError(t, err)
	manifest := "Manifest-Version: 1.0\n"
	if mainClass != "" {
		manifest += "Main-Class: " + mainClass + "\n"
	}
	_, err = w.Write([]byte(manifest))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
}

func writeModularJar(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("module-info.class")
	require.NoError(t, err)
	_, err = w.Write([]byte{0xCA, 0xFE, 0xBA, 0xBE})
	require.NoError(t, err)
	require.NoError(t, zw.Close())
}

func TestResolveAllSkipsSkippedDescriptors(t *testing.T) {
	r := newTestResolver(t, &fakeGraph{})
	resolved, err := r.ResolveAll(context.Background(), []Descriptor{
		{Kind: NativePath, Name: "should-not-appear", Skip: true},
	})
	require.NoError(t, err)
	assert.Empty(t, resolved)
}

func TestResolveAllNativeURIPreservesOptionsAndOutputDir(t *testing.T) {
	dir := t.TempDir()
	binPath := filepath.Join(dir, "protoc-gen-foo")
	require.NoError(t, os.WriteFile(binPath, []byte("bin"), 0o755))

	// A file:// URI is used rather than a PATH lookup, since
	// SearchExecutable only scans the host's PATH directories.
	descriptors := []Descriptor{
		{Kind: NativeURI, URIValue: "file://" + binPath, Order: 0, Options: []string{"opt=1"}, OutputDir: "/tmp/out"},
	}
	r := newTestResolver(t, &fakeGraph{})
	resolved, err := r.ResolveAll(context.Background(), descriptors)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, binPath, resolved[0].Path)
	assert.Equal(t, []string{"opt=1"}, resolved[0].Options)
	assert.Equal(t, "/tmp/out", resolved[0].OutputDir)
	assert.NotEmpty(t, resolved[0].ID)
}

func TestResolveAllOptionalMissingProducesNoEntry(t *testing.T) {
	descriptors := []Descriptor{
		{Kind: NativeURI, URIValue: "file:///does/not/exist", Optional: true},
	}
	r := newTestResolver(t, &fakeGraph{})
	resolved, err := r.ResolveAll(context.Background(), descriptors)
	require.NoError(t, err)
	assert.Empty(t, resolved)
}

func TestResolveAllRequiredMissingFails(t *testing.T) {
	descriptors := []Descriptor{
		{Kind: NativeURI, URIValue: "file:///does/not/exist", Optional: false},
	}
	r := newTestResolver(t, &fakeGraph{})
	_, err := r.ResolveAll(context.Background(), descriptors)
	require.Error(t, err)
}

func TestResolveAllJVMInspectsManifestMainClass(t *testing.T) {
	dir := t.TempDir()
	jarPath := filepath.Join(dir, "gen.jar")
	writeJarWithManifest(t, jarPath, "com.example.Generator")

	coord := resolve.MavenCoordinate{GroupID: "com.example", ArtifactID: "gen", Version: "1.0"}
	graph := &fakeGraph{byCoord: map[string][]string{coord.String(): {jarPath}}}

	r := newTestResolver(t, graph)
	descriptors := []Descriptor{{Kind: JVM, Coord: coord}}

	resolved, err := r.ResolveAll(context.Background(), descriptors)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.True(t, resolved[0].IsJVM)
	assert.Equal(t, "com.example.Generator", resolved[0].MainClass)
	assert.Equal(t, jarPath, resolved[0].EntrypointPath)
	assert.Contains(t, resolved[0].ID, "-0")
}

func TestResolveAllJVMExplicitMainClassSkipsManifestInspection(t *testing.T) {
	dir := t.TempDir()
	jarPath := filepath.Join(dir, "gen.jar")
	writeJarWithManifest(t, jarPath, "")

	coord := resolve.MavenCoordinate{GroupID: "com.example", ArtifactID: "gen", Version: "1.0"}
	graph := &fakeGraph{byCoord: map[string][]string{coord.String(): {jarPath}}}

	r := newTestResolver(t, graph)
	descriptors := []Descriptor{{Kind: JVM, Coord: coord, MainClass: "com.example.Explicit"}}

	resolved, err := r.ResolveAll(context.Background(), descriptors)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, "com.example.Explicit", resolved[0].MainClass)
}

func TestResolveAllJVMMissingMainClassAttributeFails(t *testing.T) {
	dir := t.TempDir()
	jarPath := filepath.Join(dir, "gen.jar")
	writeJarWithManifest(t, jarPath, "")

	coord := resolve.MavenCoordinate{GroupID: "com.example", ArtifactID: "gen", Version: "1.0"}
	graph := &fakeGraph{byCoord: map[string][]string{coord.String(): {jarPath}}}

	r := newTestResolver(t, graph)
	descriptors := []Descriptor{{Kind: JVM, Coord: coord}}

	_, err := r.ResolveAll(context.Background(), descriptors)
	require.Error(t, err)
}

func TestResolveAllJVMDirectoryEntrypointFails(t *testing.T) {
	dir := t.TempDir()
	entrypointDir := filepath.Join(dir, "exploded")
	require.NoError(t, os.MkdirAll(entrypointDir, 0o755))

	coord := resolve.MavenCoordinate{GroupID: "com.example", ArtifactID: "gen", Version: "1.0"}
	graph := &fakeGraph{byCoord: map[string][]string{coord.String(): {entrypointDir}}}

	r := newTestResolver(t, graph)
	descriptors := []Descriptor{{Kind: JVM, Coord: coord}}

	_, err := r.ResolveAll(context.Background(), descriptors)
	require.Error(t, err)
}

func TestResolveAllJVMDetectsModulePathFromModuleInfoClass(t *testing.T) {
	dir := t.TempDir()
	entrypoint := filepath.Join(dir, "gen.jar")
	writeJarWithManifest(t, entrypoint, "com.example.Generator")
	dependency := filepath.Join(dir, "dep.jar")
	writeModularJar(t, dependency)
	plain := filepath.Join(dir, "plain.jar")
	writeJarWithManifest(t, plain, "")

	coord := resolve.MavenCoordinate{GroupID: "com.example", ArtifactID: "gen", Version: "1.0"}
	graph := &fakeGraph{byCoord: map[string][]string{coord.String(): {entrypoint, dependency, plain}}}

	r := newTestResolver(t, graph)
	descriptors := []Descriptor{{Kind: JVM, Coord: coord}}

	resolved, err := r.ResolveAll(context.Background(), descriptors)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, []string{dependency}, resolved[0].ModulePath)
}

func TestResolveAllJVMNoModulesLeavesModulePathEmpty(t *testing.T) {
	dir := t.TempDir()
	jarPath := filepath.Join(dir, "gen.jar")
	writeJarWithManifest(t, jarPath, "com.example.Generator")

	coord := resolve.MavenCoordinate{GroupID: "com.example", ArtifactID: "gen", Version: "1.0"}
	graph := &fakeGraph{byCoord: map[string][]string{coord.String(): {jarPath}}}

	r := newTestResolver(t, graph)
	descriptors := []Descriptor{{Kind: JVM, Coord: coord}}

	resolved, err := r.ResolveAll(context.Background(), descriptors)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Empty(t, resolved[0].ModulePath)
}

func TestStableIDsDistinguishIdenticalDescriptorsByIndex(t *testing.T) {
	dir := t.TempDir()
	jarPath := filepath.Join(dir, "gen.jar")
	writeJarWithManifest(t, jarPath, "com.example.Generator")

	coord := resolve.MavenCoordinate{GroupID: "com.example", ArtifactID: "gen", Version: "1.0"}
	graph := &fakeGraph{byCoord: map[string][]string{coord.String(): {jarPath}}}

	r := newTestResolver(t, graph)
	descriptors := []Descriptor{
		{Kind: JVM, Coord: coord},
		{Kind: JVM, Coord: coord},
	}

	resolved, err := r.ResolveAll(context.Background(), descriptors)
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	assert.NotEqual(t, resolved[0].ID, resolved[1].ID)
}
