/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"fmt"
	"time"

	"github.com/fulmenhq/bundlepress/internal/ledger"
	"github.com/fulmenhq/bundlepress/internal/progress"
	"github.com/fulmenhq/bundlepress/internal/report"
	"github.com/fulmenhq/bundlepress/pkg/config"
	"github.com/spf13/cobra"
)

func newUpdateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change the publisher's price or start date",
		Long: `Update changes the publisher created by 'create'. --date accepts "now" or a
date such as "04 Dec 1995 00:12:00 GMT".`,
		Args: cobra.NoArgs,
		RunE: runUpdate,
	}
	f := cmd.Flags()
	f.String("ledger", config.Default().Ledger.Backend, "Ledger backend (rpc|memory)")
	f.StringP("price", "p", "", "New price per item in whole tokens")
	f.StringP("date", "d", "", `Sale start, "now" or e.g. "04 Dec 1995 00:12:00 GMT"`)
	return cmd
}

func runUpdate(cmd *cobra.Command, _ []string) error {
	var params ledger.UpdateParams
	if p := mustString(cmd, "price"); p != "" {
		price, err := ledger.ParsePrice(p)
		if err != nil {
			return &config.ConfigError{Key: "price", Message: err.Error()}
		}
		params.Price = &price
	}
	if d := mustString(cmd, "date"); d != "" {
		start, err := ledger.ParseDate(d, time.Now())
		if err != nil {
			return &config.ConfigError{Key: "date", Message: err.Error()}
		}
		params.StartDate = &start
	}
	if params.Price == nil && params.StartDate == nil {
		return &config.ConfigError{Key: "update", Message: "nothing to change; pass --price or --date"}
	}

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	doc, _ := s.document()
	if doc.PublishedAddress == "" {
		return &config.ConfigError{Key: "publishedAddress", Message: "no publisher recorded; run create first"}
	}

	client, err := s.ledgerClient()
	if err != nil {
		return err
	}
	if err := client.UpdatePublisher(cmd.Context(), doc.PublishedAddress, params); err != nil {
		return fmt.Errorf("failed to update publisher: %w", err)
	}

	lines := []string{"Publisher: " + doc.PublishedAddress}
	if params.Price != nil {
		lines = append(lines, "Price:     "+ledger.FormatPrice(*params.Price))
	}
	if params.StartDate != nil {
		if err := s.store.Update(func(d *progress.Document) { d.StartDate = *params.StartDate }); err != nil {
			return err
		}
		lines = append(lines, "Starts:    "+time.Unix(*params.StartDate, 0).UTC().Format(time.RFC1123))
	}
	report.Summary{Phase: "update", OK: true, Lines: lines}.Write(cmd.OutOrStdout())
	return nil
}
