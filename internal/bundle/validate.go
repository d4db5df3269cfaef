package bundle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fulmenhq/bundlepress/internal/schema"
	"github.com/fulmenhq/bundlepress/pkg/logger"
	"github.com/fulmenhq/bundlepress/pkg/safeio"
	"golang.org/x/sync/errgroup"
)

// ValidationError reports why one bundle cannot be published.
type ValidationError struct {
	Index  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bundle %s: %s: %v", e.Index, e.Reason, e.Err)
	}
	return fmt.Sprintf("bundle %s: %s", e.Index, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Validate checks every bundle concurrently, at most concurrency at a time.
// A failing bundle never stops its siblings; all failures are returned
// together once every bundle has been checked.
func Validate(ctx context.Context, bundles []Bundle, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make([]error, len(bundles))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, b := range bundles {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = &ValidationError{Index: b.Index, Reason: "validation cancelled", Err: err}
				return nil
			}
			results[i] = ValidateBundle(b)
			return nil
		})
	}
	_ = g.Wait()

	var failed int
	for _, err := range results {
		if err != nil {
			failed++
		}
	}
	if failed > 0 {
		logger.Warn("bundle validation failed",
			logger.Int("bundles", len(bundles)), logger.Int("invalid", failed))
	}
	return errors.Join(results...)
}

// ValidateBundle checks one bundle: the manifest must be readable, satisfy the
// manifest schema, and every media reference in it must have a matching file.
func ValidateBundle(b Bundle) error {
	content, err := safeio.ReadFile(b.ManifestPath)
	if err != nil {
		return &ValidationError{Index: b.Index, Reason: "manifest unreadable", Err: err}
	}

	res, err := schema.ValidateBytes(content, schema.ManifestSchema)
	if err != nil {
		return &ValidationError{Index: b.Index, Reason: "manifest is not a valid document", Err: err}
	}
	if !res.Valid {
		return &ValidationError{Index: b.Index, Reason: "manifest schema: " + res.Summary()}
	}

	if missing := missingMedia(b, content); len(missing) > 0 {
		return &ValidationError{
			Index:  b.Index,
			Reason: "manifest references media with no matching file: " + strings.Join(missing, ", "),
		}
	}
	return nil
}

// missingMedia lists the placeholders referenced by content, either directly or
// as "<index><ext>", for which the bundle has no file.
func missingMedia(b Bundle, content []byte) []string {
	text := string(content)
	var missing []string
	for _, k := range mediaKinds {
		if b.HasPlaceholder(k.Placeholder) {
			continue
		}
		if strings.Contains(text, k.Placeholder) || standaloneName(b.Index+k.Extension).MatchString(text) {
			missing = append(missing, k.Placeholder)
		}
	}
	return missing
}
