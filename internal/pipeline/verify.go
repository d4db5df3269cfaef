package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/fulmenhq/bundlepress/internal/ledger"
	"github.com/fulmenhq/bundlepress/internal/progress"
	"github.com/fulmenhq/bundlepress/pkg/config"
	"github.com/fulmenhq/bundlepress/pkg/fetch"
	"github.com/fulmenhq/bundlepress/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const maxContentBytes = 32 << 20

var notFoundBody = regexp.MustCompile(`(?i)not found`)

// ConsistencyError reports that local progress, the ledger and stored content
// disagree. Failed items have already been reset in the progress store.
type ConsistencyError struct {
	Failed    []string
	Pending   []string
	LineCount int
	Expected  int
}

func (e *ConsistencyError) Error() string {
	var parts []string
	if len(e.Failed) > 0 {
		parts = append(parts, fmt.Sprintf("%d item(s) failed verification and were reset", len(e.Failed)))
	}
	if len(e.Pending) > 0 {
		parts = append(parts, fmt.Sprintf("%d item(s) not committed yet", len(e.Pending)))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("ledger holds %d item(s) but the program expects %d", e.LineCount, e.Expected)
	}
	return strings.Join(parts, "; ")
}

// ItemCheck is the verification outcome of one item.
type ItemCheck struct {
	Index   string `json:"index"`
	Slot    int    `json:"slot"`
	Name    string `json:"name"`
	Link    string `json:"link"`
	OK      bool   `json:"ok"`
	Pending bool   `json:"pending,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// VerifyResult collects every item check and the final count comparison.
type VerifyResult struct {
	Checks    []ItemCheck `json:"checks"`
	Passed    int         `json:"passed"`
	Failed    int         `json:"failed"`
	Pending   int         `json:"pending"`
	LineCount int         `json:"lineCount"`
	Expected  int         `json:"expected"`
	Ready     bool        `json:"ready"`
}

// VerifierConfig sizes the concurrent groups.
type VerifierConfig struct {
	GroupSize int
}

// Verifier cross-checks committed items against the ledger account data and
// the stored content.
type Verifier struct {
	store   *progress.Store
	ledger  ledger.Client
	fetcher fetch.HTTPFetcher
	cfg     VerifierConfig
}

// NewVerifier returns a verifier working on an opened store.
func NewVerifier(store *progress.Store, client ledger.Client, fetcher fetch.HTTPFetcher, cfg VerifierConfig) *Verifier {
	if cfg.GroupSize < 1 {
		cfg.GroupSize = 500
	}
	return &Verifier{store: store, ledger: client, fetcher: fetcher, cfg: cfg}
}

// Verify checks every item. Groups of items run concurrently and items within
// a group one after another. An item that fails any check has its content link
// cleared and its commit flag dropped; verification never marks an item
// committed. Items not committed yet count as pending. When every item passes,
// the ledger line count is compared with the program capacity.
func (v *Verifier) Verify(ctx context.Context) (VerifyResult, error) {
	var (
		keys     []string
		records  map[string]progress.Record
		identity string
	)
	if err := v.store.View(func(d *progress.Document) {
		keys = d.Keys()
		identity = d.Program.Identity
		records = make(map[string]progress.Record, len(d.Items))
		for k, r := range d.Items {
			records[k] = r
		}
	}); err != nil {
		return VerifyResult{}, err
	}
	if identity == "" {
		return VerifyResult{}, &config.ConfigError{Key: "program", Message: "progress document has no program identity; run upload first"}
	}

	raw, err := v.ledger.ReadRawAccount(ctx, identity)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("failed to read program account: %w", err)
	}

	checks := make([]ItemCheck, len(keys))
	var g errgroup.Group
	for _, group := range spans(len(keys), v.cfg.GroupSize) {
		g.Go(func() error {
			for slot := group.start; slot < group.end; slot++ {
				checks[slot] = v.checkItem(ctx, raw, slot, keys[slot], records[keys[slot]])
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return VerifyResult{}, err
	}

	res := VerifyResult{Checks: checks}
	cerr := &ConsistencyError{}
	for _, c := range checks {
		switch {
		case c.Pending:
			res.Pending++
			cerr.Pending = append(cerr.Pending, c.Index)
		case c.OK:
			res.Passed++
		default:
			res.Failed++
			cerr.Failed = append(cerr.Failed, c.Index)
		}
	}

	if len(cerr.Failed) > 0 {
		if err := v.store.Update(func(d *progress.Document) {
			for _, k := range cerr.Failed {
				d.ResetRecord(k)
			}
		}); err != nil {
			return res, fmt.Errorf("failed to save verification corrections: %w", err)
		}
	}
	if len(cerr.Failed) > 0 || len(cerr.Pending) > 0 {
		return res, cerr
	}

	count, err := ledger.LineCount(raw)
	if err != nil {
		return res, err
	}
	info, err := v.ledger.ReadDecodedAccount(ctx, identity)
	if err != nil {
		return res, fmt.Errorf("failed to read program info: %w", err)
	}
	res.LineCount = count
	res.Expected = info.MaxItemCount
	if count < info.MaxItemCount {
		return res, &ConsistencyError{LineCount: count, Expected: info.MaxItemCount}
	}
	res.Ready = true
	logger.Info("all items verified", logger.Int("items", len(keys)), logger.Int("line_count", count))
	return res, nil
}

func (v *Verifier) checkItem(ctx context.Context, raw []byte, slot int, index string, rec progress.Record) ItemCheck {
	c := ItemCheck{Index: index, Slot: slot, Name: rec.DisplayName, Link: rec.ContentLink}
	if !rec.Committed || !rec.Uploaded() {
		c.Pending = true
		c.Reason = "not committed"
		return c
	}

	c.Reason = v.itemProblem(ctx, raw, slot, rec)
	c.OK = c.Reason == ""
	if c.OK {
		logger.Debug("item checked out", logger.String("index", index), logger.String("name", rec.DisplayName))
	} else {
		logger.Info("item failed verification", logger.String("index", index), logger.String("reason", c.Reason))
	}
	return c
}

// itemProblem returns why the item fails, or "" when it passes.
func (v *Verifier) itemProblem(ctx context.Context, raw []byte, slot int, rec progress.Record) string {
	line, err := ledger.DecodeLine(raw, slot)
	if err != nil {
		return "ledger line unreadable: " + err.Error()
	}
	if line.Name != rec.DisplayName || line.URI != rec.ContentLink {
		return fmt.Sprintf("ledger holds name %q uri %q", line.Name, line.URI)
	}

	body, reason := v.get(ctx, rec.ContentLink, "manifest")
	if reason != "" {
		return reason
	}
	var doc struct {
		Image string `json:"image"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "manifest is not valid JSON"
	}
	if doc.Image == "" {
		return "manifest has no image reference"
	}

	image, reason := v.get(ctx, resolveImage(rec.ContentLink, doc.Image), "image")
	if reason != "" {
		return reason
	}
	if notFoundBody.Match(image) {
		return "image was never stored"
	}
	return ""
}

// get fetches target and returns its body, or a reason when the status is not
// 200, 202 or 204 or the body is empty.
func (v *Verifier) get(ctx context.Context, target, what string) ([]byte, string) {
	resp, err := v.fetcher.Get(ctx, target)
	if err != nil {
		return nil, fmt.Sprintf("%s fetch failed: %v", what, err)
	}
	body, err := fetch.ReadBody(resp, maxContentBytes)
	if err != nil {
		return nil, fmt.Sprintf("%s read failed: %v", what, err)
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent:
	default:
		return nil, fmt.Sprintf("%s returned status %d", what, resp.StatusCode)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, what + " body is empty"
	}
	return body, ""
}

// resolveImage turns a placeholder reference such as "image.png" into a path
// below the content link. Absolute references are returned unchanged.
func resolveImage(link, image string) string {
	if u, err := url.Parse(image); err == nil && u.IsAbs() {
		return image
	}
	return strings.TrimRight(link, "/") + "/" + strings.TrimLeft(image, "/")
}
