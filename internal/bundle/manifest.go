package bundle

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/fulmenhq/bundlepress/pkg/safeio"
)

// Creator is one royalty recipient listed in a manifest.
type Creator struct {
	Address string `json:"address"`
	Share   int    `json:"share"`
}

// Manifest holds the manifest fields the pipeline reads. The uploaded manifest
// is always the original document text, never a re-encoding of this struct.
type Manifest struct {
	Name                 string `json:"name"`
	Symbol               string `json:"symbol"`
	SellerFeeBasisPoints int    `json:"seller_fee_basis_points"`
	Image                string `json:"image"`
	Properties           struct {
		Creators []Creator `json:"creators"`
	} `json:"properties"`
}

// ParseManifest decodes manifest content.
func ParseManifest(content []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(content, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest JSON: %w", err)
	}
	return &m, nil
}

// LoadManifest reads and decodes the manifest at path. The raw content is
// returned alongside the decoded fields.
func LoadManifest(path string) (*Manifest, []byte, error) {
	content, err := safeio.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	m, err := ParseManifest(content)
	if err != nil {
		return nil, content, fmt.Errorf("%s: %w", path, err)
	}
	return m, content, nil
}

// RewriteManifest replaces every reference to one of the bundle's media files
// with the file's placeholder token. Full paths are replaced first, then bare
// file names where they stand alone (start of a string or after a separator),
// so "10.png" is not mistaken for a reference to "0.png".
func RewriteManifest(b Bundle, content []byte) []byte {
	out := string(content)
	for _, f := range b.Media {
		placeholder := f.Kind.Placeholder
		base := filepath.Base(f.Path)
		for _, p := range uniq(f.Path, filepath.ToSlash(f.Path)) {
			if p != base {
				out = strings.ReplaceAll(out, p, placeholder)
			}
		}
		if base == placeholder {
			continue
		}
		out = standaloneName(base).ReplaceAllString(out, "${1}"+placeholder)
	}
	return []byte(out)
}

// standaloneName matches name at the start of the text or right after a quote
// or path separator.
func standaloneName(name string) *regexp.Regexp {
	return regexp.MustCompile(`(^|["/\\])` + regexp.QuoteMeta(name))
}

func uniq(values ...string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
