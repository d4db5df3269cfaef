// Package ignore provides gitignore-style filtering of asset directories using go-git
package ignore

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	gitignore "github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// FileName is the per-directory ignore file consulted during asset discovery.
const FileName = ".bundleignore"

// Matcher provides gitignore-based file filtering relative to a root directory
type Matcher struct {
	root    string
	matcher gitignore.Matcher
}

// NewMatcher creates a matcher for root with layered patterns:
// 1. built-in defaults (VCS metadata, OS droppings)
// 2. .gitignore files found under root
// 3. root/.bundleignore
func NewMatcher(root string) (*Matcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var patterns []gitignore.Pattern
	for _, p := range []string{".git/**", ".DS_Store", "Thumbs.db", FileName} {
		patterns = append(patterns, gitignore.ParsePattern(p, nil))
	}

	if gitPatterns, err := gitignore.ReadPatterns(osfs.New(absRoot), nil); err == nil {
		patterns = append(patterns, gitPatterns...)
	}

	if extra, err := readIgnoreFile(filepath.Join(absRoot, FileName)); err == nil {
		for _, p := range extra {
			patterns = append(patterns, gitignore.ParsePattern(p, nil))
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	return &Matcher{root: absRoot, matcher: gitignore.NewMatcher(patterns)}, nil
}

// readIgnoreFile reads non-empty, non-comment lines from an ignore file
func readIgnoreFile(path string) ([]string, error) {
	content, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- fixed file name under the asset root
	if err != nil {
		return nil, err
	}

	var patterns []string
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, scanner.Err()
}

// IsIgnored checks if a file path should be ignored
func (m *Matcher) IsIgnored(path string) bool {
	return m.match(path, false)
}

// IsIgnoredDir checks if a directory should be skipped during traversal
func (m *Matcher) IsIgnoredDir(path string) bool {
	return m.match(path, true)
}

func (m *Matcher) match(path string, isDir bool) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(m.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	parts := splitPath(filepath.ToSlash(rel))
	if len(parts) == 0 {
		return false
	}
	return m.matcher.Match(parts, isDir)
}

// splitPath converts a slash-separated path into components for go-git matching
func splitPath(path string) []string {
	if path == "" || path == "." {
		return []string{}
	}
	path = strings.TrimPrefix(path, "/")
	parts := strings.Split(path, "/")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" && part != "." {
			result = append(result, part)
		}
	}
	return result
}
