/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"fmt"

	"github.com/fulmenhq/bundlepress/internal/progress"
	"github.com/fulmenhq/bundlepress/internal/report"
	"github.com/fulmenhq/bundlepress/pkg/config"
	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Summarise the progress document",
		Long:  "Status prints item counts per state and a per-item table without contacting any remote service.",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
	cmd.Flags().StringP("format", "f", string(report.FormatText), "Output format (text|json|yaml|toml|markdown)")
	cmd.Flags().String("ledger", config.Default().Ledger.Backend, "Show the document of runs on this ledger backend (rpc|memory)")
	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	format, err := report.ParseFormat(mustString(cmd, "format"))
	if err != nil {
		return &config.ConfigError{Key: "format", Message: err.Error()}
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store := progress.NewStore(cfg.CacheDir, cfg.DocumentName(), cfg.Env)
	doc, err := store.Load()
	if err != nil {
		return err
	}
	if doc == nil {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No progress document at %s\n", store.Path())
		return nil
	}
	return report.RenderStatus(cmd.OutOrStdout(), report.NewStatus(doc), format)
}
