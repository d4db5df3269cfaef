package bundle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestOrganize(t *testing.T) {
	paths := []string{
		"assets/1.json",
		"assets/0.png",
		"assets/0.json",
		"assets/1.mp4",
		"assets/1.gif",
		"assets/notes.txt",
		"assets/2.png",
		"other/0.png",
	}

	bundles, err := Organize(paths)
	require.NoError(t, err)
	require.Len(t, bundles, 2)

	assert.Equal(t, "1", bundles[0].Index, "manifest order is kept")
	assert.Equal(t, "assets/1.json", bundles[0].ManifestPath)
	require.Len(t, bundles[0].Media, 2)
	assert.Equal(t, "image.gif", bundles[0].Media[0].Kind.Placeholder, "media follow registry order")
	assert.Equal(t, "video.mp4", bundles[0].Media[1].Kind.Placeholder)

	assert.Equal(t, "0", bundles[1].Index)
	require.Len(t, bundles[1].Media, 1)
	assert.Equal(t, "assets/0.png", bundles[1].Media[0].Path, "first path wins for a duplicate kind")
	assert.True(t, bundles[1].HasPlaceholder("image.png"))
	assert.False(t, bundles[1].HasPlaceholder("audio.mp3"))
}

func TestOrganizeDuplicateIndex(t *testing.T) {
	_, err := Organize([]string{"a/7.json", "a/7.png", "b/7.json"})
	require.Error(t, err)

	var dup *DuplicateIndexError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "7", dup.Index)
	assert.Equal(t, "a/7.json", dup.First)
	assert.Equal(t, "b/7.json", dup.Second)
}

func TestOrganizeIsDeterministic(t *testing.T) {
	paths := []string{"0.json", "0.wav", "0.png", "0.mp3", "0.PNG"}
	first, err := Organize(paths)
	require.NoError(t, err)
	second, err := Organize(paths)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	require.Len(t, first[0].Media, 3)
	assert.Equal(t, "0.png", first[0].Media[0].Path)
}

func TestKindForPath(t *testing.T) {
	k, ok := KindForPath("dir/3.MP3")
	require.True(t, ok)
	assert.Equal(t, "audio/mp3", k.ContentType)

	_, ok = KindForPath("dir/3.jpeg")
	assert.False(t, ok)
	assert.Len(t, MediaKinds(), 5)
}

func TestRewriteManifest(t *testing.T) {
	b := Bundle{
		Index: "0",
		Media: []MediaFile{
			{Path: filepath.Join("assets", "0.png"), Kind: MediaKind{Extension: ".png", Placeholder: "image.png"}},
			{Path: filepath.Join("assets", "0.mp4"), Kind: MediaKind{Extension: ".mp4", Placeholder: "video.mp4"}},
		},
	}
	in := `{"image":"0.png","animation_url":"assets/0.mp4","properties":{"files":[{"uri":"0.png"},{"uri":"10.png"}]}}`

	out := string(RewriteManifest(b, []byte(in)))
	assert.Equal(t,
		`{"image":"image.png","animation_url":"video.mp4","properties":{"files":[{"uri":"image.png"},{"uri":"10.png"}]}}`,
		out)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, filepath.Join(dir, "0.json"), `{"name":"Bear #0","image":"image.png"}`)
	writeFile(t, filepath.Join(dir, "0.png"), "png")
	missing := writeFile(t, filepath.Join(dir, "1.json"), `{"name":"Bear #1","image":"1.png","animation_url":"video.mp4"}`)
	noName := writeFile(t, filepath.Join(dir, "2.json"), `{"image":"2.png"}`)
	writeFile(t, filepath.Join(dir, "2.png"), "png")

	bundles, err := Organize([]string{good, filepath.Join(dir, "0.png"), missing, noName, filepath.Join(dir, "2.png")})
	require.NoError(t, err)

	err = Validate(context.Background(), bundles, 2)
	require.Error(t, err)

	var failed []string
	for _, e := range err.(interface{ Unwrap() []error }).Unwrap() {
		var ve *ValidationError
		require.True(t, errors.As(e, &ve))
		failed = append(failed, ve.Index)
	}
	assert.ElementsMatch(t, []string{"1", "2"}, failed, "only the broken bundles fail")
	assert.Contains(t, err.Error(), "image.png, video.mp4")

	assert.NoError(t, ValidateBundle(bundles[0]))
}

func TestValidateOnlyFailsOffendingBundle(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, idx := range []string{"0", "1", "2", "3"} {
		paths = append(paths, writeFile(t, filepath.Join(dir, idx+".json"), `{"name":"n","image":"image.png"}`))
		if idx != "2" {
			paths = append(paths, writeFile(t, filepath.Join(dir, idx+".png"), "png"))
		}
	}
	bundles, err := Organize(paths)
	require.NoError(t, err)

	err = Validate(context.Background(), bundles, 4)
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "2", ve.Index)
}

func TestValidateUnreadableManifest(t *testing.T) {
	err := ValidateBundle(Bundle{Index: "9", ManifestPath: filepath.Join(t.TempDir(), "9.json")})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "manifest unreadable", ve.Reason)
}

func TestLoadManifest(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "4.json"), `{
  "name": "Bear #4",
  "symbol": "BEAR",
  "seller_fee_basis_points": 250,
  "properties": {"creators": [{"address": "Ab1", "share": 60}, {"address": "Cd2", "share": 40}]}
}`)
	m, raw, err := LoadManifest(path)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.Equal(t, "Bear #4", m.Name)
	assert.Equal(t, "BEAR", m.Symbol)
	assert.Equal(t, 250, m.SellerFeeBasisPoints)
	require.Len(t, m.Properties.Creators, 2)
	assert.Equal(t, 40, m.Properties.Creators[1].Share)

	_, _, err = LoadManifest(writeFile(t, filepath.Join(t.TempDir(), "5.json"), "{"))
	assert.Error(t, err)
}
