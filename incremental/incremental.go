// Package incremental persists per-file content digests between builds
// and decides which sources require regeneration.
package incremental

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ascopes/protoc-integration-go/digest"
)

// SchemaVersion is bumped only when this package's on-disk cache format
// changes. A snapshot written under a different version is treated as
// absent.
const SchemaVersion = "1"

// Snapshot is the persisted cache shape.
type Snapshot struct {
	SchemaVersion string            `json:"schemaVersion"`
	Dependencies  map[string]string `json:"dependencies"`
	Sources       map[string]string `json:"sources"`
}

// Inputs are the file sets a build execution compiles from.
type Inputs struct {
	DependencySources []string
	CompilableSources []string
}

// Cache reads and writes snapshots under
// <scratchDir>/incremental-build-cache/<schemaVersion>/.
type Cache struct {
	dir string
}

// New builds a Cache rooted at scratchDir, creating its schema-versioned
// subdirectory if absent.
func New(scratchDir string) (*Cache, error) {
	dir := filepath.Join(scratchDir, "incremental-build-cache", SchemaVersion)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("incremental: cannot create cache dir %s: %w", dir, err)
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) previousPath() string { return filepath.Join(c.dir, "previous.json") }
func (c *Cache) nextPath() string     { return filepath.Join(c.dir, "next.json") }

// DetermineSourcesToCompile computes the next snapshot from inputs,
// persists it, compares it against the previous snapshot, and returns
// the compilable files that require regeneration:
//
//  1. any dependency digest changed (including new/removed dependencies)
//     forces a full rebuild of every compilable source;
//  2. otherwise any compilable source digest changed also forces a full
//     rebuild (protoc cannot regenerate a subset without risking stale
//     cross-references);
//  3. otherwise nothing needs recompiling.
//
// A missing or schema-mismatched previous snapshot is treated as "no
// prior build": everything compilable is returned.
func (c *Cache) DetermineSourcesToCompile(ctx context.Context, inputs Inputs) ([]string, error) {
	next, err := computeSnapshot(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("incremental: cannot compute digests: %w", err)
	}
	if err := writeSnapshot(c.nextPath(), next); err != nil {
		return nil, fmt.Errorf("incremental: cannot persist next snapshot: %w", err)
	}

	previous, ok := readSnapshot(c.previousPath())
	if !ok {
		return sortedCopy(inputs.CompilableSources), nil
	}

	if !stringMapsEqual(next.Dependencies, previous.Dependencies) {
		return sortedCopy(inputs.CompilableSources), nil
	}
	if !stringMapsEqual(next.Sources, previous.Sources) {
		return sortedCopy(inputs.CompilableSources), nil
	}
	return nil, nil
}

// Commit atomically promotes next.json to previous.json, called once a
// build completes successfully. On failure, callers must not call
// Commit: next.json remains, so the next build observes the same
// staleness.
func (c *Cache) Commit() error {
	if err := os.Rename(c.nextPath(), c.previousPath()); err != nil {
		return fmt.Errorf("incremental: cannot commit cache snapshot: %w", err)
	}
	return nil
}

func computeSnapshot(ctx context.Context, inputs Inputs) (Snapshot, error) {
	deps, err := digestAll(ctx, inputs.DependencySources)
	if err != nil {
		return Snapshot{}, err
	}
	srcs, err := digestAll(ctx, inputs.CompilableSources)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{SchemaVersion: SchemaVersion, Dependencies: deps, Sources: srcs}, nil
}

// digestAll computes SHA-512 digests for every path in a bounded worker
// pool, propagating the first error and cancelling the rest.
func digestAll(ctx context.Context, paths []string) (map[string]string, error) {
	result := make(map[string]string, len(paths))
	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.NumCPU())

	for _, p := range paths {
		p := p
		eg.Go(func() error {
			select {
			case <-egCtx.Done():
				return egCtx.Err()
			default:
			}
			f, err := os.Open(p)
			if err != nil {
				return fmt.Errorf("cannot open %s: %w", p, err)
			}
			defer f.Close()
			d, err := digest.Compute(digest.SHA512, f)
			if err != nil {
				return fmt.Errorf("cannot digest %s: %w", p, err)
			}
			mu.Lock()
			result[p] = d.ToHex()
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func writeSnapshot(path string, s Snapshot) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// readSnapshot reads and parses the snapshot at path. Any failure to read
// or parse it — not-exist, permission denied, a transient I/O error, or
// invalid JSON — is treated as a cache miss rather than a fatal error:
// only a write failure is fatal to a build.
func readSnapshot(path string) (Snapshot, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, false
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, false
	}
	if s.SchemaVersion != SchemaVersion {
		return Snapshot{}, false
	}
	return s, true
}

func stringMapsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func sortedCopy(paths []string) []string {
	out := append([]string(nil), paths...)
	sort.Strings(out)
	return out
}
