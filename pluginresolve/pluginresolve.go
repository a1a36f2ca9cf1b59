// Package pluginresolve resolves configured protoc plugin descriptors —
// native binaries and JVM-based generators alike — into executables or
// entrypoint artifacts ready for the launcher factory.
package pluginresolve

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-logr/logr"

	"github.com/ascopes/protoc-integration-go/archive"
	"github.com/ascopes/protoc-integration-go/digest"
	"github.com/ascopes/protoc-integration-go/protocresolve"
	"github.com/ascopes/protoc-integration-go/resolve"
)

// Kind discriminates a PluginDescriptor's populated variant.
type Kind int

const (
	NativeCoordinate Kind = iota
	NativePath
	NativeURI
	JVM
)

// Descriptor is a configured plugin, as declared in build configuration.
// Order total-orders the plugin list stably across an execution.
type Descriptor struct {
	Kind       Kind
	Name       string
	URIValue   string
	Digest     *digest.Digest
	Coord      resolve.MavenCoordinate
	Order      int
	Optional   bool
	Skip       bool
	MainClass  string
	Options    []string
	OutputDir  string
	JVMArgs    []string
	ConfigArgs []string
}

// String renders a stable textual identity for the descriptor, the input
// to the JVM plugin stable-id digest.
func (d Descriptor) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "kind=%d name=%s uri=%s coord=%s main=%s order=%d",
		d.Kind, d.Name, d.URIValue, d.Coord, d.MainClass, d.Order)
	return b.String()
}

// Resolved is a resolved plugin ready for invocation: either a native
// executable (Path points directly at it) or a JVM entrypoint artifact
// (EntrypointPath, to be wrapped by the launcher factory).
type Resolved struct {
	ID             string
	Descriptor     Descriptor
	IsJVM          bool
	Path           string
	EntrypointPath string
	MainClass      string
	Classpath      []string
	ModulePath     []string
	Options        []string
	OutputDir      string
}

// ResolutionError wraps a failure resolving a plugin descriptor.
type ResolutionError struct {
	Descriptor Descriptor
	Cause      error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("pluginresolve: could not resolve plugin %s: %v", e.Descriptor, e.Cause)
}

func (e *ResolutionError) Unwrap() error { return e.Cause }

// Resolver resolves plugin descriptors into Resolved plugins.
type Resolver struct {
	protoc   *protocresolve.Resolver
	artifact *resolve.ArtifactResolver
	log      logr.Logger
}

// New builds a Resolver. protoc is reused for native plugins because
// §4.9 defines their resolution as having "the same shape as §4.8".
func New(protoc *protocresolve.Resolver, artifact *resolve.ArtifactResolver, log logr.Logger) *Resolver {
	return &Resolver{protoc: protoc, artifact: artifact, log: log}
}

// ResolveAll resolves descriptors in declaration order. Descriptors
// marked skip are silently omitted. An optional native descriptor that
// fails to resolve produces no entry rather than an error, unless the
// failure is a digest mismatch, which is always returned; Optional is not
// consulted for JVM descriptors. JVM plugins are
// numbered by their position among JVM plugins within this call, used to
// build a collision-proof stable id.
func (r *Resolver) ResolveAll(ctx context.Context, descriptors []Descriptor) ([]Resolved, error) {
	var out []Resolved
	jvmIndex := 0
	for _, d := range descriptors {
		if d.Skip {
			continue
		}
		if d.Kind == JVM {
			resolved, err := r.resolveJVM(ctx, d, jvmIndex)
			jvmIndex++
			if err != nil {
				return nil, err
			}
			out = append(out, resolved)
			continue
		}

		resolved, ok, err := r.resolveNative(ctx, d)
		if err != nil {
			var mismatch *digest.Mismatch
			if d.Optional && !errors.As(err, &mismatch) {
				r.log.V(1).Info("optional native plugin could not be resolved, skipping", "plugin", d.Name)
				continue
			}
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, resolved)
	}
	return out, nil
}

func (r *Resolver) resolveNative(ctx context.Context, d Descriptor) (Resolved, bool, error) {
	dist, err := toDistribution(d)
	if err != nil {
		return Resolved{}, false, &ResolutionError{Descriptor: d, Cause: err}
	}

	path, err := r.protoc.Resolve(ctx, dist)
	if err != nil {
		var mismatch *digest.Mismatch
		if d.Optional && !errors.As(err, &mismatch) {
			return Resolved{}, false, nil
		}
		return Resolved{}, false, &ResolutionError{Descriptor: d, Cause: err}
	}

	id, err := digest.Compute(digest.SHA1, path)
	if err != nil {
		return Resolved{}, false, &ResolutionError{Descriptor: d, Cause: err}
	}
	return Resolved{
		ID:         hexOf(id),
		Descriptor: d,
		Path:       path,
		Options:    d.Options,
		OutputDir:  d.OutputDir,
	}, true, nil
}

func toDistribution(d Descriptor) (protocresolve.Distribution, error) {
	switch d.Kind {
	case NativeCoordinate:
		return protocresolve.Distribution{Kind: protocresolve.Coordinate, Coord: d.Coord}, nil
	case NativePath:
		return protocresolve.Distribution{Kind: protocresolve.Path, Name: d.Name}, nil
	case NativeURI:
		return protocresolve.Distribution{Kind: protocresolve.URI, URIValue: d.URIValue, Digest: d.Digest}, nil
	default:
		return protocresolve.Distribution{}, fmt.Errorf("not a native plugin descriptor")
	}
}

func (r *Resolver) resolveJVM(ctx context.Context, d Descriptor, jvmIndex int) (Resolved, error) {
	paths, err := r.artifact.ResolveDependencies(ctx, []resolve.MavenCoordinate{d.Coord}, resolve.Transitive, resolve.JVMPluginScopes, false)
	if err != nil {
		return Resolved{}, &ResolutionError{Descriptor: d, Cause: err}
	}
	if len(paths) == 0 {
		return Resolved{}, &ResolutionError{Descriptor: d, Cause: fmt.Errorf("coordinate %s produced no artifacts", d.Coord)}
	}
	entrypoint := paths[0]

	mainClass := d.MainClass
	if mainClass == "" {
		mainClass, err = inspectMainClass(entrypoint)
		if err != nil {
			return Resolved{}, &ResolutionError{Descriptor: d, Cause: err}
		}
	}

	idSeed, err := digest.Compute(digest.SHA1, d.String())
	if err != nil {
		return Resolved{}, &ResolutionError{Descriptor: d, Cause: err}
	}
	id := fmt.Sprintf("%s-%d", hexOf(idSeed), jvmIndex)

	return Resolved{
		ID:             id,
		Descriptor:     d,
		IsJVM:          true,
		EntrypointPath: entrypoint,
		MainClass:      mainClass,
		Classpath:      paths,
		ModulePath:     modularPaths(paths),
		Options:        d.Options,
		OutputDir:      d.OutputDir,
	}, nil
}

// modularPaths returns the subset of classpath whose JAR carries a root
// module-info.class entry, per §4.10 step 1(b). A jar that cannot be
// opened as a zip is treated as non-modular rather than failing
// resolution outright: module-path detection is a best-effort addition
// to the classpath, not a hard resolution requirement.
func modularPaths(classpath []string) []string {
	var modules []string
	for _, path := range classpath {
		if isJavaModule(path) {
			modules = append(modules, path)
		}
	}
	return modules
}

func isJavaModule(jarPath string) bool {
	r, err := archive.Open(jarPath)
	if err != nil {
		return false
	}
	defer r.Close()

	for _, entry := range r.Entries() {
		if entry == "module-info.class" {
			return true
		}
	}
	return false
}

// inspectMainClass reads entrypoint's META-INF/MANIFEST.MF Main-Class
// attribute. entrypoint must be a JAR file; a directory entrypoint or a
// JAR lacking the attribute fails resolution with a diagnostic naming
// entrypoint.
func inspectMainClass(entrypoint string) (string, error) {
	info, err := os.Stat(entrypoint)
	if err != nil {
		return "", fmt.Errorf("cannot inspect entrypoint %s: %w", entrypoint, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("entrypoint %s is a directory; mainClass must be configured explicitly", entrypoint)
	}

	r, err := archive.Open(entrypoint)
	if err != nil {
		return "", fmt.Errorf("entrypoint %s is not a readable jar: %w", entrypoint, err)
	}
	defer r.Close()

	manifest, err := r.Open("META-INF/MANIFEST.MF")
	if err != nil {
		return "", fmt.Errorf("entrypoint %s has no META-INF/MANIFEST.MF; mainClass must be configured explicitly", entrypoint)
	}
	defer manifest.Close()

	scanner := bufio.NewScanner(manifest)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "Main-Class:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "Main-Class:")), nil
		}
	}
	return "", fmt.Errorf("entrypoint %s manifest has no Main-Class attribute; mainClass must be configured explicitly", entrypoint)
}

func hexOf(d digest.Digest) string {
	return strings.SplitN(d.ToHex(), ":", 2)[1]
}
