package protocresolve

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ascopes/protoc-integration-go/digest"
	"github.com/ascopes/protoc-integration-go/fetch"
	"github.com/ascopes/protoc-integration-go/hostinfo"
	"github.com/ascopes/protoc-integration-go/resolve"
	"github.com/ascopes/protoc-integration-go/scratch"
)

func newResolver(t *testing.T, graph resolve.DependencyGraph) (*Resolver, hostinfo.Info) {
	t.Helper()
	space, err := scratch.New(t.TempDir())
	require.NoError(t, err)
	fetcher := fetch.New(space, false, logr.Discard())
	host := hostinfo.Detect()
	var artifactResolver *resolve.ArtifactResolver
	if graph != nil {
		artifactResolver = resolve.New(graph)
	}
	return New(host, fetcher, artifactResolver, logr.Discard()), host
}

func TestResolveFromPathFindsHostBinary(t *testing.T) {
	r, _ := newResolver(t, nil)
	name := "go"
	if runtime.GOOS == "windows" {
		name = "cmd"
	}
	path, err := r.Resolve(context.Background(), Distribution{Kind: Path, Name: name})
	require.NoError(t, err)
	assert.NotEmpty(t, path)
}

func TestResolveFromPathMissingFails(t *testing.T) {
	r, _ := newResolver(t, nil)
	_, err := r.Resolve(context.Background(), Distribution{Kind: Path, Name: "definitely-not-a-real-binary-xyz"})
	require.Error(t, err)
}

func TestResolveFromURISetsExecutableBitOnPOSIX(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bit is POSIX-only")
	}
	dir := t.TempDir()
	target := filepath.Join(dir, "protoc")
	require.NoError(t, os.WriteFile(target, []byte("fake-binary"), 0o644))

	r, _ := newResolver(t, nil)
	path, err := r.Resolve(context.Background(), Distribution{Kind: URI, URIValue: "file://" + target})
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o111)
}

func TestResolveFromURIVerifiesDigestMismatch(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "protoc")
	require.NoError(t, os.WriteFile(target, []byte("fake-binary"), 0o644))

	wrongDigest, err := digest.Compute(digest.SHA256, "not-the-right-content")
	require.NoError(t, err)

	r, _ := newResolver(t, nil)
	_, err = r.Resolve(context.Background(), Distribution{Kind: URI, URIValue: "file://" + target, Digest: &wrongDigest})
	require.Error(t, err)
}

type fakeGraph struct {
	paths     []string
	requested resolve.MavenCoordinate
}

func (g *fakeGraph) Resolve(ctx context.Context, coord resolve.MavenCoordinate, depth resolve.Depth, scopes []resolve.Scope, includeOptional bool) ([]string, error) {
	g.requested = coord
	return g.paths, nil
}

func TestResolveFromCoordinateFillsTypeAndClassifier(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "protoc")
	require.NoError(t, os.WriteFile(target, []byte("fake-binary"), 0o644))

	graph := &fakeGraph{paths: []string{target}}
	r, host := newResolver(t, graph)
	dist := Distribution{Kind: Coordinate, Coord: resolve.MavenCoordinate{GroupID: "com.google.protobuf", ArtifactID: "protoc", Version: "25.0"}}

	path, err := r.Resolve(context.Background(), dist)
	require.NoError(t, err)
	assert.Equal(t, target, path)

	classifier, err := hostinfo.PlatformClassifier("protoc", host)
	require.NoError(t, err)
	assert.NotEmpty(t, classifier)
	assert.Equal(t, "exe", graph.requested.Type)
	assert.Equal(t, classifier, graph.requested.Classifier)
}
