/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"github.com/fulmenhq/bundlepress/pkg/config"
	"github.com/spf13/cobra"
)

func newReconcileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Record uploaded items on the ledger",
		Long: `Reconcile writes every uploaded but uncommitted item to the ledger program
in batches and marks each batch committed once the write succeeds. Batches
that are already committed are skipped.`,
		Args: cobra.NoArgs,
		RunE: runReconcile,
	}
	cmd.Flags().String("ledger", config.Default().Ledger.Backend, "Ledger backend (rpc|memory)")
	return cmd
}

func runReconcile(cmd *cobra.Command, _ []string) error {
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
	return reconcileAndReport(cmd, s, client, s.rerun("reconcile"))
}
