// Package archive opens JAR/ZIP archives as a readable filesystem and
// extracts their trees into target directories. It underlies both the
// nested-archive URI support in fetch and the dependency-archive source
// trees the scanner walks.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ExtractionError wraps a failure opening or copying an archive, carrying
// the archive path that failed.
type ExtractionError struct {
	Archive string
	Cause   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("archive: failed to extract %s: %v", e.Archive, e.Cause)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

// Reader opens a JAR/ZIP archive as a set of named entries.
type Reader struct {
	zr   *zip.ReadCloser
	path string
}

// Open opens the archive at path for reading.
func Open(path string) (*Reader, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, &ExtractionError{Archive: path, Cause: err}
	}
	return &Reader{zr: zr, path: path}, nil
}

// Close releases the underlying archive handle.
func (r *Reader) Close() error { return r.zr.Close() }

// Open returns a reader for the entry at entryPath (archive-internal,
// forward-slash separated, no leading slash expected but tolerated).
func (r *Reader) Open(entryPath string) (io.ReadCloser, error) {
	want := strings.TrimPrefix(entryPath, "/")
	for _, f := range r.zr.File {
		if f.Name == want {
			return f.Open()
		}
	}
	return nil, fmt.Errorf("archive: %s has no entry %q", r.path, entryPath)
}

// Entries lists every regular-file entry path in the archive.
func (r *Reader) Entries() []string {
	names := make([]string, 0, len(r.zr.File))
	for _, f := range r.zr.File {
		if !f.FileInfo().IsDir() {
			names = append(names, f.Name)
		}
	}
	return names
}

// Extract opens each archive in archivePaths and copies its tree into
// targetDir/<base-name-without-extension>/<entry path>, creating parent
// directories as needed. It returns one extraction root per input archive,
// in input order. Archives are processed concurrently via errgroup,
// bounded by maxWorkers.
func Extract(archivePaths []string, targetDir string) ([]string, error) {
	roots := make([]string, len(archivePaths))
	var eg errgroup.Group
	eg.SetLimit(maxWorkers())

	for i, archivePath := range archivePaths {
		i, archivePath := i, archivePath
		eg.Go(func() error {
			root, err := extractOne(archivePath, targetDir)
			if err != nil {
				return err
			}
			roots[i] = root
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return roots, nil
}

func extractOne(archivePath, targetDir string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(archivePath), filepath.Ext(archivePath))
	root := filepath.Join(targetDir, base)

	r, err := Open(archivePath)
	if err != nil {
		return "", err
	}
	defer r.Close()

	for _, f := range r.zr.File {
		if err := copyEntry(r, f, root); err != nil {
			return "", &ExtractionError{Archive: archivePath, Cause: err}
		}
	}
	return root, nil
}

func copyEntry(r *Reader, f *zip.File, root string) error {
	// Each path segment is re-resolved individually so this is safe to call
	// when root lives on a different filesystem than the archive source.
	segments := strings.Split(f.Name, "/")
	dest := root
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		dest = filepath.Join(dest, seg)
	}
	if !withinRoot(root, dest) {
		return fmt.Errorf("entry %q escapes extraction root", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(dest, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode().Perm()|0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, src)
	return err
}

func withinRoot(root, dest string) bool {
	rel, err := filepath.Rel(root, dest)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// maxWorkers bounds archive-extraction concurrency to the host's CPU count,
// capped at 16.
func maxWorkers() int {
	const cap_ = 16
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	if n > cap_ {
		return cap_
	}
	return n
}
