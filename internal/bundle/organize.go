package bundle

import (
	"fmt"
	"sort"

	"github.com/fulmenhq/bundlepress/pkg/logger"
)

// MediaFile is one media file of a bundle.
type MediaFile struct {
	Path string    `json:"path"`
	Kind MediaKind `json:"kind"`
}

// Bundle is one publishable unit: a manifest plus the media files sharing its stem.
type Bundle struct {
	Index        string      `json:"index"`
	ManifestPath string      `json:"manifestPath"`
	Media        []MediaFile `json:"media"`
}

// HasPlaceholder reports whether the bundle carries a media file for placeholder.
func (b Bundle) HasPlaceholder(placeholder string) bool {
	for _, m := range b.Media {
		if m.Kind.Placeholder == placeholder {
			return true
		}
	}
	return false
}

// DuplicateIndexError is returned when two manifests derive the same index.
type DuplicateIndexError struct {
	Index  string
	First  string
	Second string
}

func (e *DuplicateIndexError) Error() string {
	return fmt.Sprintf("duplicate bundle index %q: %s and %s", e.Index, e.First, e.Second)
}

// Organize groups a flat file list into bundles. Manifests are identified by
// extension and keyed by file stem; every other file joins the bundle with the
// same stem if its extension is a registered media kind. Unrecognised files are
// ignored. The result follows manifest order and is deterministic for a given
// input. Duplicate indices fail the whole call.
func Organize(paths []string) ([]Bundle, error) {
	var manifests []string
	media := make(map[string]map[string]MediaFile)

	for _, p := range paths {
		if isManifest(p) {
			manifests = append(manifests, p)
			continue
		}
		kind, ok := KindForPath(p)
		if !ok {
			logger.Trace("ignoring unrecognised file", logger.String("path", p))
			continue
		}
		s := stem(p)
		byKind, ok := media[s]
		if !ok {
			byKind = make(map[string]MediaFile)
			media[s] = byKind
		}
		if existing, dup := byKind[kind.Extension]; dup {
			logger.Debug("duplicate media file ignored",
				logger.String("kept", existing.Path), logger.String("ignored", p))
			continue
		}
		byKind[kind.Extension] = MediaFile{Path: p, Kind: kind}
	}

	seen := make(map[string]string, len(manifests))
	bundles := make([]Bundle, 0, len(manifests))
	for _, m := range manifests {
		idx := stem(m)
		if first, dup := seen[idx]; dup {
			return nil, &DuplicateIndexError{Index: idx, First: first, Second: m}
		}
		seen[idx] = m

		files := make([]MediaFile, 0, len(media[idx]))
		for _, f := range media[idx] {
			files = append(files, f)
		}
		sort.Slice(files, func(i, j int) bool { return kindRank(files[i].Kind) < kindRank(files[j].Kind) })

		bundles = append(bundles, Bundle{Index: idx, ManifestPath: m, Media: files})
	}
	return bundles, nil
}
