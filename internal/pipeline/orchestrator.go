// Package pipeline drives bundles through upload, ledger reconciliation and
// verification. Every step checkpoints the progress store as soon as it
// succeeds, so any phase can be re-run after a crash and resumes where it
// stopped.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fulmenhq/bundlepress/internal/bundle"
	"github.com/fulmenhq/bundlepress/internal/ledger"
	"github.com/fulmenhq/bundlepress/internal/progress"
	"github.com/fulmenhq/bundlepress/internal/storage"
	"github.com/fulmenhq/bundlepress/pkg/logger"
)

// UploadError attributes a failed upload to its bundle.
type UploadError struct {
	Index string
	Err   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload of bundle %s failed: %v", e.Index, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// OrchestratorConfig carries the collection settings a new program is
// initialised with.
type OrchestratorConfig struct {
	// MaxItems is the program capacity. Zero means the number of bundles.
	MaxItems        int
	Mutable         bool
	RetainAuthority bool
}

// Orchestrator uploads bundles and records their content links.
type Orchestrator struct {
	store    *progress.Store
	uploader storage.Uploader
	ledger   ledger.Client
	cfg      OrchestratorConfig
}

// NewOrchestrator returns an orchestrator working on an opened store.
func NewOrchestrator(store *progress.Store, uploader storage.Uploader, client ledger.Client, cfg OrchestratorConfig) *Orchestrator {
	return &Orchestrator{store: store, uploader: uploader, ledger: client, cfg: cfg}
}

// PassResult summarises one pass over all bundles.
type PassResult struct {
	Uploaded int
	Skipped  int
	Failures []error
}

// UploadPass walks the bundles in order. Every bundle is registered in the
// progress document first so its ledger slot does not depend on which uploads
// succeed. Bundles that already have a content link in a run bound to a
// program are skipped without any remote call. The first bundle of an unbound
// run initialises the program, and a manifest it cannot read stops the pass.
// Upload failures are collected and the pass moves on; an error return means
// the pass could not continue at all.
func (o *Orchestrator) UploadPass(ctx context.Context, bundles []bundle.Bundle) (PassResult, error) {
	var (
		res          PassResult
		freshProgram bool
	)
	if err := o.register(bundles); err != nil {
		return res, err
	}
	for _, b := range bundles {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var (
			rec        progress.Record
			hasProgram bool
		)
		if err := o.store.View(func(d *progress.Document) {
			rec, _ = d.Record(b.Index)
			hasProgram = d.HasProgram()
		}); err != nil {
			return res, err
		}
		if rec.Uploaded() && hasProgram {
			res.Skipped++
			continue
		}

		manifest, content, err := bundle.LoadManifest(b.ManifestPath)
		if err != nil && !hasProgram {
			return res, fmt.Errorf("cannot initialise program from bundle %s: %w", b.Index, err)
		}
		if err != nil {
			res.Failures = append(res.Failures, &UploadError{Index: b.Index, Err: err})
			continue
		}

		if !hasProgram {
			if err := o.initProgram(ctx, manifest, len(bundles)); err != nil {
				return res, err
			}
			freshProgram = true
		}
		if rec.Uploaded() {
			res.Skipped++
			continue
		}

		if err := o.uploadBundle(ctx, b, manifest, content); err != nil {
			var ce *checkpointError
			if errors.As(err, &ce) {
				return res, err
			}
			logger.Warn("bundle upload failed", logger.String("index", b.Index), logger.Err(err))
			res.Failures = append(res.Failures, &UploadError{Index: b.Index, Err: err})
			continue
		}
		res.Uploaded++
	}

	if freshProgram && res.Uploaded == 0 && len(res.Failures) > 0 {
		logger.Warn("program was initialised but no bundle uploaded in this pass; the identity stays bound to this run")
	}
	return res, nil
}

func (o *Orchestrator) register(bundles []bundle.Bundle) error {
	indices := make([]string, len(bundles))
	for i, b := range bundles {
		indices[i] = b.Index
	}
	return o.store.Update(func(d *progress.Document) {
		if moved := d.Register(indices); len(moved) > 0 {
			logger.Warn("new bundles shift ledger slots; moved items will be committed again",
				logger.Int("moved", len(moved)), logger.String("first", moved[0]))
		}
	})
}

func (o *Orchestrator) initProgram(ctx context.Context, m *bundle.Manifest, bundleCount int) error {
	maxItems := o.cfg.MaxItems
	if maxItems <= 0 {
		maxItems = bundleCount
	}
	creators := make([]ledger.Creator, 0, len(m.Properties.Creators))
	for _, c := range m.Properties.Creators {
		creators = append(creators, ledger.Creator{Address: c.Address, Share: c.Share})
	}
	cfg := ledger.ProgramConfig{
		Symbol:               m.Symbol,
		SellerFeeBasisPoints: m.SellerFeeBasisPoints,
		Creators:             creators,
		IsMutable:            o.cfg.Mutable,
		RetainAuthority:      o.cfg.RetainAuthority,
		MaxItems:             maxItems,
	}

	id, err := o.ledger.InitializeProgram(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialise program: %w", err)
	}
	logger.Info("program initialised",
		logger.String("program", id.Identity), logger.String("uuid", id.UUID), logger.Int("max_items", maxItems))

	// A new program holds no lines, so nothing recorded earlier counts as committed.
	return o.store.Update(func(d *progress.Document) {
		d.Program = progress.Program{Identity: id.Identity, UUID: id.UUID, TxID: id.TxID}
		d.Authority = id.Authority
		for k, r := range d.Items {
			r.Committed = false
			d.Items[k] = r
		}
	})
}

func (o *Orchestrator) uploadBundle(ctx context.Context, b bundle.Bundle, m *bundle.Manifest, content []byte) error {
	files := make([]storage.File, 0, len(b.Media))
	stored := make([]progress.StoredFile, 0, len(b.Media))
	for _, f := range b.Media {
		files = append(files, storage.File{Path: f.Path, ContentType: f.Kind.ContentType, Placeholder: f.Kind.Placeholder})
		stored = append(stored, progress.StoredFile{Path: f.Path, ContentType: f.Kind.ContentType, Placeholder: f.Kind.Placeholder})
	}

	link, err := o.uploader.Upload(ctx, files, bundle.RewriteManifest(b, content))
	if err != nil {
		return err
	}

	logger.Debug("bundle uploaded", logger.String("index", b.Index), logger.String("link", link))
	if err := o.store.Update(func(d *progress.Document) {
		d.SetRecord(b.Index, progress.Record{
			ContentLink: link,
			StoredFiles: stored,
			DisplayName: m.Name,
		})
	}); err != nil {
		return &checkpointError{err: err}
	}
	return nil
}

// checkpointError marks a failed store save. It aborts the pass since
// progress can no longer be recorded.
type checkpointError struct{ err error }

func (e *checkpointError) Error() string { return "checkpoint failed: " + e.err.Error() }
func (e *checkpointError) Unwrap() error { return e.err }

// RetryPolicy bounds whole-pass retries.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// RunResult is the outcome of Run. Exhausting the attempts is a result, not an
// error: Succeeded is false and Remaining lists the bundles still missing.
type RunResult struct {
	Attempts     int
	Succeeded    bool
	Uploaded     int
	Remaining    []string
	LastFailures []error
}

// Run repeats UploadPass until a pass has no failures or the policy is
// exhausted. Each pass only touches bundles that still lack a content link.
func (o *Orchestrator) Run(ctx context.Context, bundles []bundle.Bundle, policy RetryPolicy) (RunResult, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var res RunResult
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res.Attempts = attempt
		pass, err := o.UploadPass(ctx, bundles)
		res.Uploaded += pass.Uploaded
		if err != nil {
			return res, err
		}
		if len(pass.Failures) == 0 {
			res.Succeeded = true
			res.LastFailures = nil
			return res, nil
		}
		res.LastFailures = pass.Failures

		if attempt == maxAttempts {
			break
		}
		logger.Warn("upload pass was not successful, rerunning",
			logger.Int("attempt", attempt), logger.Int("failed", len(pass.Failures)))
		if policy.Delay > 0 {
			timer := time.NewTimer(policy.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return res, ctx.Err()
			case <-timer.C:
			}
		}
	}

	for _, f := range res.LastFailures {
		if ue, ok := f.(*UploadError); ok {
			res.Remaining = append(res.Remaining, ue.Index)
		}
	}
	return res, nil
}
