package bundle

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fulmenhq/bundlepress/pkg/ignore"
	"github.com/fulmenhq/bundlepress/pkg/logger"
)

// DiscoverOptions narrows the files Discover returns. Patterns are doublestar
// globs matched against slash-separated paths relative to the asset directory.
type DiscoverOptions struct {
	Include   []string
	Exclude   []string
	Recursive bool
}

// Discover lists candidate files in dir. Hidden entries and anything matched by
// .bundleignore are skipped. The result is sorted.
func Discover(dir string, opts DiscoverOptions) ([]string, error) {
	for _, p := range append(append([]string{}, opts.Include...), opts.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid glob pattern %q", p)
		}
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("asset directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("asset directory %s is not a directory", dir)
	}

	matcher, err := ignore.NewMatcher(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load ignore rules: %w", err)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == dir {
			return nil
		}
		hidden := strings.HasPrefix(d.Name(), ".")
		if d.IsDir() {
			if !opts.Recursive || hidden || matcher.IsIgnoredDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if hidden || !d.Type().IsRegular() || matcher.IsIgnored(path) {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if !selected(filepath.ToSlash(rel), opts) {
			logger.Trace("file filtered out", logger.String("path", rel))
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	sort.Strings(files)
	logger.Debug("discovered asset files", logger.String("dir", dir), logger.Int("count", len(files)))
	return files, nil
}

func selected(rel string, opts DiscoverOptions) bool {
	if len(opts.Include) > 0 && !matchAny(opts.Include, rel) {
		return false
	}
	return !matchAny(opts.Exclude, rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
