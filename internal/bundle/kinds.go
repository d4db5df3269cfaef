package bundle

import (
	"path/filepath"
	"strings"
)

// ManifestExtension identifies manifest documents among the input files.
const ManifestExtension = ".json"

// MediaKind describes a recognised media file type. Placeholder is the fixed
// name the file is published under and the token manifests use to refer to it.
type MediaKind struct {
	Extension   string `json:"extension"`
	Placeholder string `json:"placeholder"`
	ContentType string `json:"contentType"`
}

// mediaKinds is the fixed extension registry. Order is the order media files
// appear in a bundle.
var mediaKinds = []MediaKind{
	{Extension: ".gif", Placeholder: "image.gif", ContentType: "image/gif"},
	{Extension: ".png", Placeholder: "image.png", ContentType: "image/png"},
	{Extension: ".mp3", Placeholder: "audio.mp3", ContentType: "audio/mp3"},
	{Extension: ".wav", Placeholder: "audio.wav", ContentType: "audio/wav"},
	{Extension: ".mp4", Placeholder: "video.mp4", ContentType: "video/mp4"},
}

// MediaKinds returns a copy of the registry.
func MediaKinds() []MediaKind {
	out := make([]MediaKind, len(mediaKinds))
	copy(out, mediaKinds)
	return out
}

// KindForPath looks up the media kind for path by extension (case-insensitive).
func KindForPath(path string) (MediaKind, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, k := range mediaKinds {
		if k.Extension == ext {
			return k, true
		}
	}
	return MediaKind{}, false
}

func kindRank(k MediaKind) int {
	for i, candidate := range mediaKinds {
		if candidate.Extension == k.Extension {
			return i
		}
	}
	return len(mediaKinds)
}

func isManifest(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ManifestExtension)
}

// stem returns the file name without directory and final extension.
func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
