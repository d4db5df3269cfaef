package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fulmenhq/bundlepress/internal/ledger"
	"github.com/fulmenhq/bundlepress/internal/progress"
	"github.com/fulmenhq/bundlepress/pkg/config"
	"github.com/fulmenhq/bundlepress/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// BatchError attributes a failed ledger write to its index range.
type BatchError struct {
	First string
	Last  string
	Start int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("ledger write for items %s..%s (slot %d) failed: %v", e.First, e.Last, e.Start, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// ReconcilerConfig sizes ledger writes. BatchSize items go into one write;
// GroupSize items form one concurrently processed unit.
type ReconcilerConfig struct {
	BatchSize int
	GroupSize int
}

// Reconciler writes uploaded items to the ledger and marks them committed.
type Reconciler struct {
	store  *progress.Store
	ledger ledger.Client
	cfg    ReconcilerConfig
}

// NewReconciler returns a reconciler working on an opened store.
func NewReconciler(store *progress.Store, client ledger.Client, cfg ReconcilerConfig) *Reconciler {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 10
	}
	if cfg.GroupSize < cfg.BatchSize {
		cfg.GroupSize = cfg.BatchSize
	}
	return &Reconciler{store: store, ledger: client, cfg: cfg}
}

// ReconcileResult summarises a reconcile run.
type ReconcileResult struct {
	Batches   int
	Submitted int
	Skipped   int
	Committed int
	Failures  []error
}

// Succeeded reports whether every batch is committed.
func (r ReconcileResult) Succeeded() bool { return len(r.Failures) == 0 }

// Reconcile splits the ordered keys into groups processed concurrently; inside
// a group, batches are written one after another. A key's position in the
// order is its ledger slot; upload registers every bundle before it uploads
// any, so a failed upload leaves an empty record holding its slot rather than
// a gap. Batches whose items are all committed are skipped.
// Any other batch is written whole, so a partly committed batch rewrites the
// same slots. A failed batch is recorded and the rest carry on.
func (r *Reconciler) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var (
		keys     []string
		identity string
	)
	if err := r.store.View(func(d *progress.Document) {
		keys = d.Keys()
		identity = d.Program.Identity
	}); err != nil {
		return ReconcileResult{}, err
	}
	if identity == "" {
		return ReconcileResult{}, &config.ConfigError{Key: "program", Message: "progress document has no program identity; run upload first"}
	}

	var (
		mu  sync.Mutex
		res ReconcileResult
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, group := range spans(len(keys), r.cfg.GroupSize) {
		g.Go(func() error {
			for _, batch := range spans(group.len(), r.cfg.BatchSize) {
				if err := gctx.Err(); err != nil {
					return err
				}
				start := group.start + batch.start
				if err := r.reconcileBatch(gctx, identity, keys[start:start+batch.len()], start, &mu, &res); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	sort.Slice(res.Failures, func(i, j int) bool {
		return batchStart(res.Failures[i]) < batchStart(res.Failures[j])
	})
	logger.Info("reconcile finished",
		logger.Int("batches", res.Batches), logger.Int("submitted", res.Submitted),
		logger.Int("skipped", res.Skipped), logger.Int("failed", len(res.Failures)))
	return res, nil
}

// reconcileBatch handles one batch. Only a failed checkpoint is returned as an
// error; ledger failures are recorded in res.
func (r *Reconciler) reconcileBatch(ctx context.Context, identity string, keys []string, start int, mu *sync.Mutex, res *ReconcileResult) error {
	var (
		lines        = make([]ledger.Line, 0, len(keys))
		allCommitted = true
		missing      []string
	)
	if err := r.store.View(func(d *progress.Document) {
		for _, k := range keys {
			rec, _ := d.Record(k)
			if !rec.Committed {
				allCommitted = false
			}
			if !rec.Uploaded() {
				missing = append(missing, k)
			}
			lines = append(lines, ledger.Line{URI: rec.ContentLink, Name: rec.DisplayName})
		}
	}); err != nil {
		return err
	}

	record := func(fn func(*ReconcileResult)) {
		mu.Lock()
		defer mu.Unlock()
		res.Batches++
		fn(res)
	}

	if allCommitted {
		record(func(out *ReconcileResult) { out.Skipped++ })
		return nil
	}
	first, last := keys[0], keys[len(keys)-1]
	if len(missing) > 0 {
		err := &BatchError{First: first, Last: last, Start: start,
			Err: fmt.Errorf("not uploaded yet: %s", strings.Join(missing, ", "))}
		logger.Warn("batch not submitted", logger.Err(err))
		record(func(out *ReconcileResult) { out.Failures = append(out.Failures, err) })
		return nil
	}

	if err := r.ledger.AppendRecords(ctx, identity, start, lines); err != nil {
		berr := &BatchError{First: first, Last: last, Start: start, Err: err}
		logger.Warn("ledger write failed", logger.String("first", first), logger.String("last", last), logger.Err(err))
		record(func(out *ReconcileResult) {
			out.Submitted++
			out.Failures = append(out.Failures, berr)
		})
		return nil
	}

	if err := r.store.Update(func(d *progress.Document) {
		for _, k := range keys {
			rec, _ := d.Record(k)
			rec.Committed = true
			d.SetRecord(k, rec)
		}
	}); err != nil {
		return fmt.Errorf("checkpoint after committing %s..%s failed: %w", first, last, err)
	}
	logger.Debug("batch committed", logger.String("first", first), logger.String("last", last), logger.Int("slot", start))
	record(func(out *ReconcileResult) {
		out.Submitted++
		out.Committed += len(keys)
	})
	return nil
}

func batchStart(err error) int {
	if be, ok := err.(*BatchError); ok {
		return be.Start
	}
	return 0
}

// span is the half-open range [start, end).
type span struct {
	start int
	end   int
}

func (s span) len() int { return s.end - s.start }

// spans cuts [0, n) into consecutive ranges of at most size.
func spans(n, size int) []span {
	if size < 1 {
		size = 1
	}
	out := make([]span, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		out = append(out, span{start: start, end: min(start+size, n)})
	}
	return out
}
