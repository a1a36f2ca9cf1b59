// Package fetch materializes a remote or archive-nested resource URI to a
// local file. It understands plain file:// URIs, arbitrary http(s)-style
// schemes, and zip:/jar: URIs nested with a "!/" fragment that recurse into
// an inner URI and then into an entry of the archive it names.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"
	lspuri "go.lsp.dev/uri"

	"github.com/ascopes/protoc-integration-go/archive"
	"github.com/ascopes/protoc-integration-go/digest"
	"github.com/ascopes/protoc-integration-go/scratch"
)

const (
	connectTimeout = 30 * time.Second
	readTimeout    = 30 * time.Second
)

// offlineAllowedSchemes are the only schemes reachable while offline: they
// never leave the local machine.
var offlineAllowedSchemes = map[string]bool{
	"file": true,
	"jrt":  true,
}

// ResolutionError wraps a failure to fetch a URI, carrying the URI that
// failed for diagnostics.
type ResolutionError struct {
	URI   string
	Cause error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("fetch: could not resolve %q: %v", e.URI, e.Cause)
}

func (e *ResolutionError) Unwrap() error { return e.Cause }

// Fetcher materializes URIs into a Space's scratch directories. It performs
// no integrity checking itself and never caches across builds at its own
// layer — the Space is the sole owner of anything it writes.
type Fetcher struct {
	space   *scratch.Space
	offline bool
	client  *http.Client
	log     logr.Logger
}

// New builds a Fetcher. When offline is true, only file://, jar:file://,
// zip:file:// and jrt: schemes may be fetched; any other scheme fails with
// a ResolutionError.
func New(space *scratch.Space, offline bool, log logr.Logger) *Fetcher {
	return &Fetcher{
		space:   space,
		offline: offline,
		client:  &http.Client{Timeout: connectTimeout + readTimeout},
		log:     log,
	}
}

// Fetch returns the local path of the resource named by rawURI, or
// (_, false, nil) if it does not exist. extensionHint is appended to the
// name of the scratch file a remote fetch writes, after the URI's last
// path segment (when it has one) and the SHA-1 of the URI.
func (f *Fetcher) Fetch(ctx context.Context, rawURI, extensionHint string) (string, bool, error) {
	if scheme, inner, entry, ok := parseNestedArchiveURI(rawURI); ok {
		return f.fetchNested(ctx, scheme, inner, entry)
	}

	u, err := url.Parse(rawURI)
	if err != nil {
		return "", false, &ResolutionError{URI: rawURI, Cause: fmt.Errorf("malformed URI: %w", err)}
	}

	switch u.Scheme {
	case "", "file":
		return f.fetchFile(u, rawURI)
	default:
		return f.fetchRemote(ctx, u, rawURI, extensionHint)
	}
}

func (f *Fetcher) fetchFile(u *url.URL, rawURI string) (string, bool, error) {
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	if u.Scheme == "file" {
		if resolved, err := safeFilename(rawURI); err == nil {
			p = resolved
		}
	}
	if !pathExists(p) {
		return "", false, nil
	}
	return p, true, nil
}

// safeFilename converts a well-formed "file://" URI to a platform-native
// path with go.lsp.dev/uri, which normalizes the Windows drive-letter and
// percent-escaping quirks a raw net/url.URL.Path does not. It never panics:
// Filename panics on a malformed URI, so any such input is caught and
// reported as an error instead, leaving the caller's net/url fallback in
// place.
func safeFilename(rawURI string) (name string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetch: %v", r)
		}
	}()
	return lspuri.URI(rawURI).Filename(), nil
}

func (f *Fetcher) fetchRemote(ctx context.Context, u *url.URL, rawURI, extensionHint string) (string, bool, error) {
	if f.offline && !offlineAllowedSchemes[u.Scheme] {
		return "", false, &ResolutionError{URI: rawURI, Cause: fmt.Errorf("scheme %q is not permitted in offline mode", u.Scheme)}
	}

	reqCtx, cancel := context.WithTimeout(ctx, connectTimeout+readTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURI, nil)
	if err != nil {
		return "", false, &ResolutionError{URI: rawURI, Cause: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", false, &ResolutionError{URI: rawURI, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if resp.StatusCode >= 300 {
		return "", false, &ResolutionError{URI: rawURI, Cause: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	name := scratchFileName(rawURI, extensionHint)
	dir, err := f.space.Dir(scratch.Key{FragTag: "fetch", Fragments: []string{rawURI}})
	if err != nil {
		return "", false, err
	}
	dest := filepath.Join(dir, name)

	if err := writeToFile(dest, resp.Body); err != nil {
		return "", false, &ResolutionError{URI: rawURI, Cause: err}
	}
	return dest, true, nil
}

// fetchNested fetches the inner URI, opens it as an archive, and streams
// the named entry out to a scratch file. The "zip" scheme is handled
// identically to "jar": the byte layout of a zip and a jar is the same.
func (f *Fetcher) fetchNested(ctx context.Context, scheme, innerURI, entryPath string) (string, bool, error) {
	innerPath, ok, err := f.Fetch(ctx, innerURI, ".jar")
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}

	r, err := archive.Open(innerPath)
	if err != nil {
		return "", false, &ResolutionError{URI: innerURI, Cause: err}
	}
	defer r.Close()

	entry, err := r.Open(entryPath)
	if err != nil {
		return "", false, nil
	}
	defer entry.Close()

	dir, err := f.space.Dir(scratch.Key{FragTag: "fetch-nested", Fragments: []string{scheme, innerURI, entryPath}})
	if err != nil {
		return "", false, err
	}
	dest := filepath.Join(dir, scratchFileName(entryPath, path.Ext(entryPath)))
	if err := writeToFile(dest, entry); err != nil {
		return "", false, &ResolutionError{URI: innerURI + "!/" + entryPath, Cause: err}
	}
	return dest, true, nil
}

// parseNestedArchiveURI recognizes "<zip|jar>:<inner-uri>!/<entry>" and
// returns its three parts. zip is normalized to jar so both share one
// code path in fetchNested.
func parseNestedArchiveURI(rawURI string) (scheme, inner, entry string, ok bool) {
	var prefix string
	switch {
	case strings.HasPrefix(rawURI, "zip:"):
		prefix = "zip:"
		scheme = "jar"
	case strings.HasPrefix(rawURI, "jar:"):
		prefix = "jar:"
		scheme = "jar"
	default:
		return "", "", "", false
	}
	rest := rawURI[len(prefix):]
	idx := strings.Index(rest, "!/")
	if idx < 0 {
		return "", "", "", false
	}
	return scheme, rest[:idx], rest[idx+2:], true
}

func scratchFileName(rawURI, extensionHint string) string {
	last := path.Base(rawURI)
	sum, err := digest.Compute(digest.SHA1, rawURI)
	hexHash := ""
	if err == nil {
		hexHash = strings.SplitN(sum.ToHex(), ":", 2)[1]
	}
	if last == "" || last == "." || last == "/" {
		if extensionHint != "" {
			return hexHash + extensionHint
		}
		return hexHash
	}
	return last + "-" + hexHash + extensionHint
}
