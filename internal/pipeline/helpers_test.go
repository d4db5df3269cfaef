package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fulmenhq/bundlepress/internal/bundle"
	"github.com/fulmenhq/bundlepress/internal/ledger"
	"github.com/fulmenhq/bundlepress/internal/progress"
	"github.com/fulmenhq/bundlepress/internal/storage"
	"github.com/fulmenhq/bundlepress/pkg/fetch"
	"github.com/stretchr/testify/require"
)

// fakeUploader returns "link-<index>" for manifests named "Bear #<index>".
type fakeUploader struct {
	mu        sync.Mutex
	calls     map[string]int
	manifests map[string]string
	fail      func(index string, call int) error
	after     func(index string)
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{calls: make(map[string]int), manifests: make(map[string]string)}
}

func (u *fakeUploader) Upload(_ context.Context, files []storage.File, manifest []byte) (string, error) {
	m, err := bundle.ParseManifest(manifest)
	if err != nil {
		return "", err
	}
	_, index, _ := strings.Cut(m.Name, "#")

	u.mu.Lock()
	u.calls[index]++
	call := u.calls[index]
	u.manifests[index] = string(manifest)
	fail, after := u.fail, u.after
	u.mu.Unlock()

	if len(files) == 0 {
		return "", errors.New("no media files")
	}
	if fail != nil {
		if err := fail(index, call); err != nil {
			return "", err
		}
	}
	if after != nil {
		after(index)
	}
	return "link-" + index, nil
}

func (u *fakeUploader) total() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := 0
	for _, c := range u.calls {
		n += c
	}
	return n
}

func (u *fakeUploader) callsFor(index string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls[index]
}

// seedBundles writes n bundles named 0..n-1 and organizes them.
func seedBundles(t *testing.T, n int) []bundle.Bundle {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for i := 0; i < n; i++ {
		manifest := filepath.Join(dir, fmt.Sprintf("%d.json", i))
		media := filepath.Join(dir, fmt.Sprintf("%d.png", i))
		doc := fmt.Sprintf(`{"name":"Bear #%d","symbol":"BEAR","seller_fee_basis_points":500,"image":"%d.png",`+
			`"properties":{"creators":[{"address":"creator-1","share":100}]}}`, i, i)
		require.NoError(t, os.WriteFile(manifest, []byte(doc), 0o644))
		require.NoError(t, os.WriteFile(media, []byte("PNG"), 0o644))
		paths = append(paths, manifest, media)
	}
	bundles, err := bundle.Organize(paths)
	require.NoError(t, err)
	require.NoError(t, bundle.Validate(context.Background(), bundles, 4))
	return bundles
}

func openStore(t *testing.T, dir string) *progress.Store {
	t.Helper()
	s := progress.NewStore(dir, "temp", "devnet")
	_, err := s.Open()
	require.NoError(t, err)
	return s
}

func snapshot(t *testing.T, s *progress.Store) map[string]progress.Record {
	t.Helper()
	out := make(map[string]progress.Record)
	require.NoError(t, s.View(func(d *progress.Document) {
		for k, r := range d.Items {
			out[k] = r
		}
	}))
	return out
}

// committedRun builds a store with n committed items whose ledger lines and
// content all check out. The program capacity is maxItems.
func committedRun(t *testing.T, n, maxItems int) (*progress.Store, *ledger.Memory, *fetch.MockHTTPFetcher) {
	t.Helper()
	ctx := context.Background()
	mem := ledger.NewMemory("auth")
	id, err := mem.InitializeProgram(ctx, ledger.ProgramConfig{Symbol: "BEAR", MaxItems: maxItems})
	require.NoError(t, err)

	store := openStore(t, t.TempDir())
	fetcher := fetch.NewMockHTTPFetcher()
	lines := make([]ledger.Line, 0, n)
	require.NoError(t, store.Update(func(d *progress.Document) {
		d.Program = progress.Program{Identity: id.Identity, UUID: id.UUID}
		d.Authority = id.Authority
		for i := 0; i < n; i++ {
			idx := fmt.Sprint(i)
			rec := progress.Record{ContentLink: "link-" + idx, DisplayName: "Bear #" + idx, Committed: true}
			d.SetRecord(idx, rec)
			lines = append(lines, ledger.Line{URI: rec.ContentLink, Name: rec.DisplayName})
			fetcher.AddResponse(rec.ContentLink, 200, fmt.Sprintf(`{"name":"Bear #%s","image":"https://img.test/%s.png"}`, idx, idx))
			fetcher.AddResponse("https://img.test/"+idx+".png", 200, "PNGDATA")
		}
	}))
	if n > 0 {
		require.NoError(t, mem.AppendRecords(ctx, id.Identity, 0, lines))
	}
	return store, mem, fetcher
}
