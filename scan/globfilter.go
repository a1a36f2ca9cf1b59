// Package scan walks a source root for .proto files and applies
// include/exclude glob filtering to the results.
package scan

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
)

// GlobFilter decides whether a scan-root-relative, slash-delimited path
// should be kept.
type GlobFilter interface {
	Matches(relPath string) (bool, error)
}

// IncludesExcludesGlobFilter keeps a path when it is included and not
// excluded: excluded if any exclude pattern matches; included if includes
// is empty or any include pattern matches.
type IncludesExcludesGlobFilter struct {
	includes []*regexp2.Regexp
	excludes []*regexp2.Regexp
}

// NewIncludesExcludesGlobFilter compiles the given include/exclude glob
// patterns. Patterns support "*" (any run within a segment), "?" (single
// char), "**" (any number of path segments) and "{a,b,c}" alternation.
func NewIncludesExcludesGlobFilter(includes, excludes []string) (*IncludesExcludesGlobFilter, error) {
	compiledIncludes, err := compileAll(includes)
	if err != nil {
		return nil, fmt.Errorf("scan: bad include pattern: %w", err)
	}
	compiledExcludes, err := compileAll(excludes)
	if err != nil {
		return nil, fmt.Errorf("scan: bad exclude pattern: %w", err)
	}
	return &IncludesExcludesGlobFilter{includes: compiledIncludes, excludes: compiledExcludes}, nil
}

func compileAll(globs []string) ([]*regexp2.Regexp, error) {
	compiled := make([]*regexp2.Regexp, 0, len(globs))
	for _, g := range globs {
		re, err := regexp2.Compile(globToRegex(g), regexp2.None)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", g, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Matches implements GlobFilter.
func (f *IncludesExcludesGlobFilter) Matches(relPath string) (bool, error) {
	excluded, err := anyMatches(f.excludes, relPath)
	if err != nil {
		return false, err
	}
	if excluded {
		return false, nil
	}
	if len(f.includes) == 0 {
		return true, nil
	}
	included, err := anyMatches(f.includes, relPath)
	if err != nil {
		return false, err
	}
	return included, nil
}

func anyMatches(patterns []*regexp2.Regexp, relPath string) (bool, error) {
	for _, p := range patterns {
		ok, err := p.MatchString(relPath)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// globToRegex translates a glob with "*", "?", "**" and "{a,b}"
// alternation into an anchored regular expression equivalent, the same
// dialect path.Match cannot express.
func globToRegex(glob string) string {
	var b strings.Builder
	b.WriteString("^")
	runes := []rune(glob)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				b.WriteString(".*")
				i++
				if i+1 < len(runes) && runes[i+1] == '/' {
					i++
				}
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '{':
			end := strings.IndexRune(string(runes[i:]), '}')
			if end < 0 {
				b.WriteString(regexpQuoteMeta(string(c)))
				continue
			}
			alts := strings.Split(string(runes[i+1:i+end]), ",")
			b.WriteString("(?:")
			for j, alt := range alts {
				if j > 0 {
					b.WriteString("|")
				}
				b.WriteString(regexpQuoteMeta(alt))
			}
			b.WriteString(")")
			i += end
		default:
			b.WriteString(regexpQuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	return b.String()
}

func regexpQuoteMeta(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '.', '+', '(', ')', '|', '^', '$', '[', ']', '\\':
			b.WriteRune('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
