/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"fmt"

	"github.com/fulmenhq/bundlepress/internal/ledger"
	"github.com/fulmenhq/bundlepress/internal/progress"
	"github.com/fulmenhq/bundlepress/internal/report"
	"github.com/fulmenhq/bundlepress/pkg/config"
	"github.com/fulmenhq/bundlepress/pkg/logger"
	"github.com/spf13/cobra"
)

func newCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create the publisher for the run's program",
		Long: `Create sets up the publisher (sale instance) bound to the program recorded in
the progress document and stores its address. Proceeds go to the treasury
account, or to an SPL token account when --spl-token is given.`,
		Args: cobra.NoArgs,
		RunE: runCreate,
	}
	f := cmd.Flags()
	f.String("ledger", config.Default().Ledger.Backend, "Ledger backend (rpc|memory)")
	f.StringP("price", "p", "1", "Price per item in whole tokens")
	f.String("spl-token", "", "Mint of the SPL token used for payment")
	f.String("spl-token-account", "", "Token account receiving SPL payments")
	f.String("treasury-account", "", "Account receiving native payments (default: the authority)")
	return cmd
}

func runCreate(cmd *cobra.Command, _ []string) error {
	payment := ledger.PaymentFlags{
		TokenMint:    mustString(cmd, "spl-token"),
		TokenAccount: mustString(cmd, "spl-token-account"),
		Treasury:     mustString(cmd, "treasury-account"),
	}
	if err := payment.Validate(); err != nil {
		return err
	}
	price, err := ledger.ParsePrice(mustString(cmd, "price"))
	if err != nil {
		return &config.ConfigError{Key: "price", Message: err.Error()}
	}

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	if err := s.requireProgram(); err != nil {
		return err
	}
	doc, counts := s.document()
	if doc.PublishedAddress != "" {
		logger.Info("publisher already exists", logger.String("address", doc.PublishedAddress))
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), doc.PublishedAddress)
		return nil
	}
	if payment.TokenMint == "" && payment.Treasury == "" {
		payment.Treasury = doc.Authority
	}

	client, err := s.ledgerClient()
	if err != nil {
		return err
	}
	address, err := client.CreatePublisher(cmd.Context(), ledger.PublisherParams{
		Program:        doc.Program.Identity,
		UUID:           doc.Program.UUID,
		Price:          price,
		ItemsAvailable: counts.Total,
		Treasury:       payment.Treasury,
		TokenMint:      payment.TokenMint,
		TokenAccount:   payment.TokenAccount,
	})
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}
	if err := s.store.Update(func(d *progress.Document) { d.PublishedAddress = address }); err != nil {
		return err
	}

	report.Summary{
		Phase: "create",
		OK:    true,
		Lines: []string{
			"Publisher: " + address,
			fmt.Sprintf("Price:     %s", ledger.FormatPrice(price)),
			fmt.Sprintf("Items:     %d", counts.Total),
		},
	}.Write(cmd.OutOrStdout())
	return nil
}
