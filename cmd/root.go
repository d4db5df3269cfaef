/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fulmenhq/bundlepress/pkg/buildinfo"
	"github.com/fulmenhq/bundlepress/pkg/config"
	"github.com/fulmenhq/bundlepress/pkg/logger"
	"github.com/spf13/cobra"
)

// newRootCommand creates a fresh root command instance with every subcommand
// registered, so tests can build isolated command trees.
func newRootCommand() *cobra.Command {
	defaults := config.Default()
	cmd := &cobra.Command{
		Use:   "bundlepress",
		Short: "Resumable batch publisher for media bundles",
		Long: `Bundlepress uploads numbered media bundles to durable storage, records them
in a remote ledger program and verifies the result. Every phase checkpoints to
a local progress document, so re-running a command resumes where it stopped.

Examples:
   bundlepress upload ./assets -n 100   # upload, then record on the ledger
   bundlepress reconcile                # record uploaded items only
   bundlepress verify --junit out.xml   # cross-check ledger and content
   bundlepress status --format markdown # summarise the progress document`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			initializeLogger(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringP("env", "e", defaults.Env, "Ledger environment (devnet, testnet, mainnet-beta)")
	pf.StringP("keypair", "k", "", "Path to the credential file used to sign ledger calls")
	pf.StringP("cache-name", "c", defaults.CacheName, "Name of the progress document")
	pf.String("cache-dir", defaults.CacheDir, "Directory holding progress documents")
	pf.String("config", "", "Config file (default ./bundlepress.yaml or ~/.bundlepress/bundlepress.yaml)")
	pf.String("log-level", "info", "Set log level (trace|debug|info|warn|error)")
	pf.Bool("json", false, "Output logs in JSON format")
	pf.Bool("no-color", false, "Disable colored output")

	cmd.Version = buildinfo.BinaryVersion
	cmd.SetVersionTemplate("bundlepress {{.Version}}\n")

	registerSubcommands(cmd)
	return cmd
}

// registerSubcommands adds all subcommands to the root command.
func registerSubcommands(cmd *cobra.Command) {
	cmd.AddCommand(newUploadCommand())
	cmd.AddCommand(newReconcileCommand())
	cmd.AddCommand(newVerifyCommand())
	cmd.AddCommand(newCreateCommand())
	cmd.AddCommand(newUpdateCommand())
	cmd.AddCommand(newStatusCommand())
	cmd.AddCommand(newVersionCommand())
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCommand()

// Execute runs the root command and exits with the code matching the error.
// This is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		logger.Error("Command execution failed", logger.Err(err))
		os.Exit(exitCodeFor(err))
	}
}

// initializeLogger sets up the logger based on command flags
func initializeLogger(cmd *cobra.Command) {
	logLevelStr, _ := cmd.Flags().GetString("log-level")
	jsonLogs, _ := cmd.Flags().GetBool("json")
	noColor, _ := cmd.Flags().GetBool("no-color")
	if os.Getenv("NO_COLOR") != "" {
		noColor = true
	}

	cfg := logger.Config{
		Level:     logger.ParseLevel(strings.ToLower(logLevelStr)),
		UseColor:  !noColor,
		JSON:      jsonLogs,
		Component: "bundlepress",
		Phase:     cmd.Name(),
	}
	if err := logger.Initialize(cfg); err != nil {
		_, _ = os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n")
		os.Exit(exitCodeFor(&config.ConfigError{Key: "log-level", Message: err.Error()}))
	}
}
