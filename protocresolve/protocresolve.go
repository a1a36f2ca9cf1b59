// Package protocresolve resolves a protoc executable from the host search
// path, a direct URI, or managed Maven coordinates.
package protocresolve

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/go-logr/logr"

	"github.com/ascopes/protoc-integration-go/digest"
	"github.com/ascopes/protoc-integration-go/fetch"
	"github.com/ascopes/protoc-integration-go/hostinfo"
	"github.com/ascopes/protoc-integration-go/resolve"
)

// Kind discriminates a ProtocDistribution's populated variant.
type Kind int

const (
	Path Kind = iota
	URI
	Coordinate
)

// Distribution is the protoc-distribution variant. Exactly one of Name,
// URIValue, or Coord is meaningful, selected by Kind.
type Distribution struct {
	Kind               Kind
	Name               string
	URIValue           string
	Digest             *digest.Digest
	Coord              resolve.MavenCoordinate
	PlatformClassifier string
}

// ResolutionError wraps a failure resolving the protoc distribution.
type ResolutionError struct {
	Distribution Distribution
	Cause        error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("protocresolve: could not resolve protoc distribution: %v", e.Cause)
}

func (e *ResolutionError) Unwrap() error { return e.Cause }

// Resolver resolves a Distribution to an executable path on disk.
type Resolver struct {
	host     hostinfo.Info
	fetcher  *fetch.Fetcher
	resolver *resolve.ArtifactResolver
	log      logr.Logger
}

// New builds a Resolver.
func New(host hostinfo.Info, fetcher *fetch.Fetcher, resolver *resolve.ArtifactResolver, log logr.Logger) *Resolver {
	return &Resolver{host: host, fetcher: fetcher, resolver: resolver, log: log}
}

// Resolve resolves dist to a local executable path, setting the
// executable bit on POSIX hosts when the binary did not already have
// one (host-path binaries are assumed already executable and are never
// modified).
func (r *Resolver) Resolve(ctx context.Context, dist Distribution) (string, error) {
	switch dist.Kind {
	case Path:
		return r.resolveFromPath(dist)
	case URI:
		return r.resolveFromURI(ctx, dist)
	case Coordinate:
		return r.resolveFromCoordinate(ctx, dist)
	default:
		return "", &ResolutionError{Distribution: dist, Cause: fmt.Errorf("no distribution variant populated")}
	}
}

func (r *Resolver) resolveFromPath(dist Distribution) (string, error) {
	path, ok := r.host.SearchExecutable(dist.Name)
	if !ok {
		return "", &ResolutionError{Distribution: dist, Cause: fmt.Errorf("%q not found on search path", dist.Name)}
	}
	return path, nil
}

func (r *Resolver) resolveFromURI(ctx context.Context, dist Distribution) (string, error) {
	ext := ""
	if r.host.OS() == hostinfo.Windows {
		ext = ".exe"
	}
	path, ok, err := r.fetcher.Fetch(ctx, dist.URIValue, ext)
	if err != nil {
		return "", &ResolutionError{Distribution: dist, Cause: err}
	}
	if !ok {
		return "", &ResolutionError{Distribution: dist, Cause: fmt.Errorf("%s not found", dist.URIValue)}
	}
	if dist.Digest != nil {
		f, err := os.Open(path)
		if err != nil {
			return "", &ResolutionError{Distribution: dist, Cause: err}
		}
		defer f.Close()
		if err := digest.Verify(f, *dist.Digest); err != nil {
			return "", &ResolutionError{Distribution: dist, Cause: err}
		}
	}
	if err := markExecutable(path); err != nil {
		return "", &ResolutionError{Distribution: dist, Cause: err}
	}
	return path, nil
}

func (r *Resolver) resolveFromCoordinate(ctx context.Context, dist Distribution) (string, error) {
	coord := dist.Coord
	if coord.Type == "" {
		coord.Type = "exe"
	}
	if coord.Classifier == "" {
		classifier := dist.PlatformClassifier
		if classifier == "" {
			var err error
			classifier, err = hostinfo.PlatformClassifier(coord.ArtifactID, r.host)
			if err != nil {
				return "", &ResolutionError{Distribution: dist, Cause: err}
			}
		}
		coord.Classifier = classifier
	}

	paths, err := r.resolver.ResolveOne(ctx, coord, resolve.Direct)
	if err != nil {
		return "", &ResolutionError{Distribution: dist, Cause: err}
	}
	if len(paths) == 0 {
		return "", &ResolutionError{Distribution: dist, Cause: fmt.Errorf("resolution of %s produced no artifact", coord)}
	}
	path := paths[0]
	if err := markExecutable(path); err != nil {
		return "", &ResolutionError{Distribution: dist, Cause: err}
	}
	return path, nil
}

// markExecutable sets the executable bit on POSIX hosts. It is a no-op on
// Windows, which has no executable-bit concept.
func markExecutable(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.Chmod(path, info.Mode()|0o111)
}
