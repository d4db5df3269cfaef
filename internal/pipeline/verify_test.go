package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/fulmenhq/bundlepress/internal/ledger"
	"github.com/fulmenhq/bundlepress/internal/progress"
	"github.com/fulmenhq/bundlepress/pkg/config"
	"github.com/fulmenhq/bundlepress/pkg/fetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func programID(t *testing.T, s *progress.Store) string {
	t.Helper()
	var id string
	require.NoError(t, s.View(func(d *progress.Document) { id = d.Program.Identity }))
	return id
}

func TestVerifyAllGood(t *testing.T) {
	store, mem, fetcher := committedRun(t, 3, 3)

	res, err := NewVerifier(store, mem, fetcher, VerifierConfig{GroupSize: 500}).Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Ready)
	assert.Equal(t, 3, res.Passed)
	assert.Equal(t, 3, res.LineCount)
	assert.Equal(t, 3, res.Expected)
	assert.Equal(t, 1, fetcher.Calls("link-2"))
}

func TestVerifyEmptyBodyResetsOnlyThatItem(t *testing.T) {
	store, mem, fetcher := committedRun(t, 10, 10)
	fetcher.AddResponse("link-5", 200, "")
	before := snapshot(t, store)

	res, err := NewVerifier(store, mem, fetcher, VerifierConfig{GroupSize: 3}).Verify(context.Background())
	require.Error(t, err)
	var ce *ConsistencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"5"}, ce.Failed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "manifest body is empty", res.Checks[5].Reason)
	assert.False(t, res.Ready)

	after := snapshot(t, store)
	assert.Equal(t, progress.Record{DisplayName: "Bear #5"}, after["5"])
	for idx, rec := range before {
		if idx != "5" {
			assert.Equal(t, rec, after[idx], "item %s untouched", idx)
		}
	}

	reloaded, err := progress.NewStore(storeDir(t, store), "temp", "devnet").Load()
	require.NoError(t, err)
	assert.Empty(t, reloaded.Items["5"].ContentLink, "corrections are saved")
}

func TestVerifyLedgerMismatch(t *testing.T) {
	store, mem, fetcher := committedRun(t, 3, 3)
	require.NoError(t, mem.OverwriteLine(programID(t, store), 1, ledger.Line{URI: "link-9", Name: "Bear #1"}))

	res, err := NewVerifier(store, mem, fetcher, VerifierConfig{}).Verify(context.Background())
	require.Error(t, err)
	assert.Contains(t, res.Checks[1].Reason, "ledger holds")
	assert.Zero(t, fetcher.Calls("link-1"), "content is not fetched after a ledger mismatch")

	r := snapshot(t, store)["1"]
	assert.Empty(t, r.ContentLink)
	assert.False(t, r.Committed)
}

func TestVerifyContentFailures(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(m *fetch.MockHTTPFetcher)
		reason string
	}{
		{name: "manifest missing", setup: func(m *fetch.MockHTTPFetcher) { m.AddResponse("link-0", 404, "Not Found") }, reason: "manifest returned status 404"},
		{name: "manifest accepted", setup: func(m *fetch.MockHTTPFetcher) {
			m.AddResponse("link-0", 202, `{"image":"https://img.test/0.png"}`)
		}, reason: ""},
		{name: "manifest not json", setup: func(m *fetch.MockHTTPFetcher) { m.AddResponse("link-0", 200, "<html>") }, reason: "manifest is not valid JSON"},
		{name: "no image", setup: func(m *fetch.MockHTTPFetcher) { m.AddResponse("link-0", 200, `{"name":"Bear #0"}`) }, reason: "manifest has no image reference"},
		{name: "image status", setup: func(m *fetch.MockHTTPFetcher) { m.AddResponse("https://img.test/0.png", 500, "oops") }, reason: "image returned status 500"},
		{name: "image not found body", setup: func(m *fetch.MockHTTPFetcher) { m.AddResponse("https://img.test/0.png", 200, "Resource NOT FOUND") }, reason: "image was never stored"},
		{name: "image empty", setup: func(m *fetch.MockHTTPFetcher) { m.AddResponse("https://img.test/0.png", 200, "") }, reason: "image body is empty"},
		{name: "relative image", setup: func(m *fetch.MockHTTPFetcher) {
			m.AddResponse("link-0", 200, `{"image":"image.png"}`)
			m.AddResponse("link-0/image.png", 200, "PNGDATA")
		}, reason: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mem, fetcher := committedRun(t, 1, 1)
			tt.setup(fetcher)

			res, err := NewVerifier(store, mem, fetcher, VerifierConfig{}).Verify(context.Background())
			require.Len(t, res.Checks, 1)
			assert.Equal(t, tt.reason, res.Checks[0].Reason)
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.False(t, snapshot(t, store)["0"].Committed)
		})
	}
}

func TestVerifyNeverCommits(t *testing.T) {
	store, mem, fetcher := committedRun(t, 4, 4)
	require.NoError(t, store.Update(func(d *progress.Document) {
		d.SetRecord("2", progress.Record{ContentLink: "link-2", DisplayName: "Bear #2"})
		d.SetRecord("3", progress.Record{DisplayName: "Bear #3"})
	}))
	before := snapshot(t, store)

	res, err := NewVerifier(store, mem, fetcher, VerifierConfig{GroupSize: 2}).Verify(context.Background())
	var ce *ConsistencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"2", "3"}, ce.Pending)
	assert.Empty(t, ce.Failed)
	assert.Equal(t, 2, res.Pending)
	assert.Equal(t, 2, res.Passed)

	after := snapshot(t, store)
	assert.Equal(t, before, after, "pending items are left alone")
	for idx, rec := range after {
		if !before[idx].Committed {
			assert.False(t, rec.Committed, "item %s became committed", idx)
		}
	}
}

func TestVerifyCountDeficit(t *testing.T) {
	store, mem, fetcher := committedRun(t, 3, 5)

	res, err := NewVerifier(store, mem, fetcher, VerifierConfig{}).Verify(context.Background())
	var ce *ConsistencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 3, ce.LineCount)
	assert.Equal(t, 5, ce.Expected)
	assert.Equal(t, 3, res.Passed)
	assert.False(t, res.Ready)
	assert.Contains(t, err.Error(), "expects 5")
}

func TestVerifyRequiresProgram(t *testing.T) {
	_, err := NewVerifier(openStore(t, t.TempDir()), ledger.NewMemory(""), fetch.NewMockHTTPFetcher(), VerifierConfig{}).
		Verify(context.Background())
	assert.True(t, config.IsConfigError(err))
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	bundles := seedBundles(t, 3)
	dir := t.TempDir()
	store := openStore(t, dir)
	mem := ledger.NewMemory("")
	uploader := newFakeUploader()

	run, err := NewOrchestrator(store, uploader, mem, OrchestratorConfig{}).Run(ctx, bundles, RetryPolicy{MaxAttempts: 100})
	require.NoError(t, err)
	require.True(t, run.Succeeded)
	for idx, rec := range snapshot(t, store) {
		assert.Equal(t, "link-"+idx, rec.ContentLink)
		assert.False(t, rec.Committed)
	}

	rec, err := NewReconciler(store, mem, ReconcilerConfig{BatchSize: 10, GroupSize: 1000}).Reconcile(ctx)
	require.NoError(t, err)
	require.True(t, rec.Succeeded())
	assert.Equal(t, 1, mem.Appends(), "one ledger write covers all three")
	for idx, r := range snapshot(t, store) {
		assert.True(t, r.Committed, "item %s", idx)
	}

	fetcher := fetch.NewMockHTTPFetcher()
	for i := 0; i < 3; i++ {
		fetcher.AddResponse(fmt.Sprintf("link-%d", i), 200, `{"image":"image.png"}`)
		fetcher.AddResponse(fmt.Sprintf("link-%d/image.png", i), 200, "PNGDATA")
	}
	res, err := NewVerifier(store, mem, fetcher, VerifierConfig{GroupSize: 500}).Verify(ctx)
	require.NoError(t, err)
	assert.True(t, res.Ready)
	assert.Equal(t, 3, res.Passed)
}

func storeDir(t *testing.T, s *progress.Store) string {
	t.Helper()
	return filepath.Dir(s.Path())
}
