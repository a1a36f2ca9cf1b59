package fetch

import (
	"archive/zip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ascopes/protoc-integration-go/scratch"
)

func newSpace(t *testing.T) *scratch.Space {
	t.Helper()
	s, err := scratch.New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestFetchFileURIResolvesDirectly(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "protoc.exe")
	require.NoError(t, os.WriteFile(target, []byte("binary"), 0o644))

	f := New(newSpace(t), false, logr.Discard())
	path, ok, err := f.Fetch(context.Background(), "file://"+target, ".exe")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, target, path)
}

func TestFetchFileURIWithEscapedSpaceResolves(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "proto c.exe")
	require.NoError(t, os.WriteFile(target, []byte("binary"), 0o644))

	f := New(newSpace(t), false, logr.Discard())
	path, ok, err := f.Fetch(context.Background(), "file://"+filepath.ToSlash(dir)+"/proto%20c.exe", ".exe")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, target, path)
}

func TestSafeFilenameRejectsMalformedURIWithoutPanicking(t *testing.T) {
	_, err := safeFilename("not a uri at all")
	assert.Error(t, err)
}

func TestFetchFileURIMissingReturnsNone(t *testing.T) {
	f := New(newSpace(t), false, logr.Discard())
	_, ok, err := f.Fetch(context.Background(), "file:///does/not/exist", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFetchOfflineRejectsRemoteScheme(t *testing.T) {
	f := New(newSpace(t), true, logr.Discard())
	_, _, err := f.Fetch(context.Background(), "https://example.com/protoc", ".exe")
	require.Error(t, err)
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
}

func TestFetchRemoteDownloadsToScratch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("downloaded-bytes"))
	}))
	defer srv.Close()

	f := New(newSpace(t), false, logr.Discard())
	path, ok, err := f.Fetch(context.Background(), srv.URL+"/protoc-25.0", ".exe")
	require.NoError(t, err)
	require.True(t, ok)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "downloaded-bytes", string(content))
}

func TestFetchRemoteNotFoundReturnsNone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(newSpace(t), false, logr.Discard())
	_, ok, err := f.Fetch(context.Background(), srv.URL+"/missing", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func writeTestJar(t *testing.T, jarPath string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(jarPath)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func TestFetchNestedJarURIExtractsEntry(t *testing.T) {
	dir := t.TempDir()
	jarPath := filepath.Join(dir, "bundle.jar")
	writeTestJar(t, jarPath, map[string]string{
		"META-INF/MANIFEST.MF": "Main-Class: com.example.Main\n",
	})

	nested := "jar:file://" + jarPath + "!/META-INF/MANIFEST.MF"
	f := New(newSpace(t), false, logr.Discard())
	path, ok, err := f.Fetch(context.Background(), nested, "")
	require.NoError(t, err)
	require.True(t, ok)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Main-Class: com.example.Main")
}

func TestFetchNestedZipSchemeDelegatesToJar(t *testing.T) {
	dir := t.TempDir()
	jarPath := filepath.Join(dir, "bundle.jar")
	writeTestJar(t, jarPath, map[string]string{"entry.txt": "hello"})

	nested := "zip:file://" + jarPath + "!/entry.txt"
	f := New(newSpace(t), false, logr.Discard())
	path, ok, err := f.Fetch(context.Background(), nested, "")
	require.NoError(t, err)
	require.True(t, ok)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
}

func TestFetchNestedMissingEntryReturnsNone(t *testing.T) {
	dir := t.TempDir()
	jarPath := filepath.Join(dir, "bundle.jar")
	writeTestJar(t, jarPath, map[string]string{"entry.txt": "hello"})

	nested := "jar:file://" + jarPath + "!/not-there.txt"
	f := New(newSpace(t), false, logr.Discard())
	_, ok, err := f.Fetch(context.Background(), nested, "")
	require.NoError(t, err)
	assert.False(t, ok)
}
