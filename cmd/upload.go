/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"fmt"

	"github.com/fulmenhq/bundlepress/internal/bundle"
	"github.com/fulmenhq/bundlepress/internal/ledger"
	"github.com/fulmenhq/bundlepress/internal/pipeline"
	"github.com/fulmenhq/bundlepress/internal/report"
	"github.com/fulmenhq/bundlepress/pkg/config"
	"github.com/fulmenhq/bundlepress/pkg/logger"
	"github.com/spf13/cobra"
)

func newUploadCommand() *cobra.Command {
	defaults := config.Default()
	cmd := &cobra.Command{
		Use:   "upload <dir>",
		Short: "Upload bundles to storage and record them on the ledger",
		Long: `Upload discovers numbered bundles (N.json plus N.png, N.mp4, ...) in dir,
validates them, uploads every bundle that has no content link yet and then
records uploaded items on the ledger in batches.

Interrupted runs resume from the progress document: bundles with a content
link are never uploaded again and committed batches are never rewritten.`,
		Args: cobra.ExactArgs(1),
		RunE: runUpload,
	}
	f := cmd.Flags()
	f.IntP("number", "n", 0, "Program capacity and number of bundles to publish (0 = all found)")
	f.String("storage", defaults.Storage.Backend, "Storage backend")
	f.String("ledger", defaults.Ledger.Backend, "Ledger backend (rpc|memory)")
	f.Bool("mutable", defaults.Upload.Mutable, "Items stay mutable after publishing")
	f.Bool("retain-authority", defaults.Upload.RetainAuthority, "Keep update authority over published items")
	f.StringSlice("include", nil, "Only consider files matching these globs (relative to dir)")
	f.StringSlice("exclude", nil, "Skip files matching these globs (relative to dir)")
	f.Bool("recursive", false, "Descend into subdirectories")
	f.Int("max-attempts", defaults.Upload.MaxAttempts, "Upload passes before giving up")
	return cmd
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	include, _ := cmd.Flags().GetStringSlice("include")
	exclude, _ := cmd.Flags().GetStringSlice("exclude")
	recursive, _ := cmd.Flags().GetBool("recursive")

	s, err := openSession(cmd)
	if err != nil {
		return err
	}

	paths, err := bundle.Discover(args[0], bundle.DiscoverOptions{Include: include, Exclude: exclude, Recursive: recursive})
	if err != nil {
		return &config.ConfigError{Key: "dir", Message: err.Error()}
	}
	bundles, err := bundle.Organize(paths)
	if err != nil {
		return err
	}
	if len(bundles) == 0 {
		return &config.ConfigError{Key: "dir", Message: fmt.Sprintf("no bundles found in %s", args[0])}
	}
	if n := s.cfg.TotalItems; n > 0 && n < len(bundles) {
		logger.Info("publishing a subset of the bundles found", logger.Int("found", len(bundles)), logger.Int("number", n))
		bundles = bundles[:n]
	}
	logger.Info("bundles discovered", logger.Int("bundles", len(bundles)), logger.String("dir", args[0]))

	if err := bundle.Validate(ctx, bundles, s.cfg.Concurrency); err != nil {
		return err
	}

	client, err := s.ledgerClient()
	if err != nil {
		return err
	}
	uploader, err := s.uploader()
	if err != nil {
		return err
	}

	orch := pipeline.NewOrchestrator(s.store, uploader, client, pipeline.OrchestratorConfig{
		MaxItems:        s.cfg.TotalItems,
		Mutable:         s.cfg.Upload.Mutable,
		RetainAuthority: s.cfg.Upload.RetainAuthority,
	})
	run, err := orch.Run(ctx, bundles, pipeline.RetryPolicy{
		MaxAttempts: s.cfg.Upload.MaxAttempts,
		Delay:       s.cfg.Upload.RetryDelay,
	})
	if err != nil {
		return err
	}

	rerun := s.rerun("upload", args[0])
	summary := report.Summary{
		Phase: "upload",
		OK:    run.Succeeded,
		Lines: []string{
			fmt.Sprintf("Bundles:  %d", len(bundles)),
			fmt.Sprintf("Uploaded: %d in %d pass(es)", run.Uploaded, run.Attempts),
		},
		Rerun: rerun,
	}
	if !run.Succeeded {
		summary.Lines = append(summary.Lines, fmt.Sprintf("Failed:   %d", len(run.Remaining)))
		summary.Write(cmd.OutOrStdout())
		for _, f := range run.LastFailures {
			logger.Error("bundle not uploaded", logger.Err(f))
		}
		return &incompleteError{Phase: "upload", Remaining: len(run.Remaining), Rerun: rerun}
	}
	summary.Write(cmd.OutOrStdout())

	return reconcileAndReport(cmd, s, client, rerun)
}

// reconcileAndReport runs the reconcile phase and prints its summary.
func reconcileAndReport(cmd *cobra.Command, s *session, client ledger.Client, rerun string) error {
	logger.SetPhase("reconcile")
	r := pipeline.NewReconciler(s.store, client, pipeline.ReconcilerConfig{
		BatchSize: s.cfg.Reconcile.BatchSize,
		GroupSize: s.cfg.Reconcile.GroupSize,
	})
	res, err := r.Reconcile(cmd.Context())
	if err != nil {
		return err
	}

	_, counts := s.document()
	summary := report.Summary{
		Phase: "reconcile",
		OK:    res.Succeeded(),
		Lines: []string{
			fmt.Sprintf("Batches:   %d (%d written, %d already committed)", res.Batches, res.Submitted, res.Skipped),
			fmt.Sprintf("Committed: %d of %d item(s)", counts.Committed, counts.Total),
		},
		Rerun: rerun,
	}
	if !res.Succeeded() {
		summary.Lines = append(summary.Lines, fmt.Sprintf("Failed:    %d batch(es)", len(res.Failures)))
		summary.Write(cmd.OutOrStdout())
		for _, f := range res.Failures {
			logger.Error("batch not committed", logger.Err(f))
		}
		return &incompleteError{Phase: "reconcile", Remaining: counts.Total - counts.Committed, Rerun: rerun}
	}
	summary.Write(cmd.OutOrStdout())
	return nil
}
