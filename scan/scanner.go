package scan

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// SourceListing is the sorted, filtered set of source files found under a
// scan root.
type SourceListing struct {
	Root  string
	Files []string
}

// Scanner walks a root directory for .proto sources.
type Scanner struct{}

// NewScanner builds a Scanner.
func NewScanner() *Scanner { return &Scanner{} }

// Scan walks root recursively, yielding regular files whose extension is
// .proto (case-insensitive) and that satisfy filter, which is evaluated
// against the file's root-relative, slash-delimited path. The result is
// sorted by path string so that generated argument files are
// reproducible across runs.
func (s *Scanner) Scan(root string, filter GlobFilter) (SourceListing, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".proto") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("scan: cannot relativize %s to %s: %w", path, root, err)
		}
		relSlash := filepath.ToSlash(rel)
		ok, err := filter.Matches(relSlash)
		if err != nil {
			return fmt.Errorf("scan: filter failed for %s: %w", relSlash, err)
		}
		if ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return SourceListing{}, fmt.Errorf("scan: walk of %s failed: %w", root, err)
	}
	sort.Strings(files)
	return SourceListing{Root: root, Files: files}, nil
}

// MatchesPath is the scanner-level "string path" testing API: it runs
// filter's predicate against a synthetic slash-delimited relative path
// without touching the filesystem.
func MatchesPath(filter GlobFilter, relSlashPath string) (bool, error) {
	return filter.Matches(relSlashPath)
}
