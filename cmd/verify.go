/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/fulmenhq/bundlepress/internal/pipeline"
	"github.com/fulmenhq/bundlepress/internal/report"
	"github.com/fulmenhq/bundlepress/pkg/config"
	"github.com/fulmenhq/bundlepress/pkg/logger"
	"github.com/fulmenhq/bundlepress/pkg/safeio"
	"github.com/spf13/cobra"
)

func newVerifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Cross-check progress, ledger and stored content",
		Long: `Verify compares every committed item with its ledger line and fetches its
stored manifest and image. Items that fail are reset so the next upload
re-uploads them. Verification never marks an item committed.`,
		Args: cobra.NoArgs,
		RunE: runVerify,
	}
	cmd.Flags().String("ledger", config.Default().Ledger.Backend, "Ledger backend (rpc|memory)")
	cmd.Flags().String("junit", "", "Also write a JUnit XML report to this file")
	cmd.Flags().String("format", string(report.FormatText), "Output format (text|json)")
	return cmd
}

func runVerify(cmd *cobra.Command, _ []string) error {
	format, err := report.ParseFormat(mustString(cmd, "format"))
	if err != nil {
		return &config.ConfigError{Key: "format", Message: err.Error()}
	}
	junitPath := mustString(cmd, "junit")

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	if err := s.requireProgram(); err != nil {
		return err
	}
	client, err := s.ledgerClient()
	if err != nil {
		return err
	}

	v := pipeline.NewVerifier(s.store, client, s.contentFetcher(), pipeline.VerifierConfig{GroupSize: s.cfg.Verify.GroupSize})
	res, verr := v.Verify(cmd.Context())
	var cerr *pipeline.ConsistencyError
	if verr != nil && !errors.As(verr, &cerr) {
		return verr
	}

	if junitPath != "" {
		var buf bytes.Buffer
		if err := report.WriteJUnit(&buf, res); err != nil {
			return err
		}
		if err := safeio.WriteFileAtomic(junitPath, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("failed to write junit report: %w", err)
		}
		logger.Info("junit report written", logger.String("path", junitPath))
	}
	if err := report.RenderVerify(cmd.OutOrStdout(), res, format); err != nil {
		return err
	}
	if format == report.FormatJSON {
		return verr
	}

	summary := report.Summary{
		Phase: "verify",
		OK:    res.Ready,
		Lines: []string{
			fmt.Sprintf("Passed:  %d", res.Passed),
			fmt.Sprintf("Reset:   %d", res.Failed),
			fmt.Sprintf("Pending: %d", res.Pending),
		},
		Rerun: s.rerun("upload", "<dir>"),
	}
	if res.Expected > 0 {
		summary.Lines = append(summary.Lines, fmt.Sprintf("Ledger:  %d of %d line(s)", res.LineCount, res.Expected))
	}
	if res.Ready {
		summary.Lines = append(summary.Lines, "Ready to publish")
	}
	summary.Write(cmd.OutOrStdout())
	return verr
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}
