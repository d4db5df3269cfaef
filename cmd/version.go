/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/fulmenhq/bundlepress/pkg/buildinfo"
	"github.com/fulmenhq/bundlepress/pkg/config"
	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show the bundlepress version",
		Args:  cobra.NoArgs,
		RunE:  runVersion,
	}
	cmd.Flags().Bool("extended", false, "Show Go version and platform")
	cmd.Flags().String("format", "text", "Output format (text|json)")
	return cmd
}

func runVersion(cmd *cobra.Command, _ []string) error {
	extended, _ := cmd.Flags().GetBool("extended")
	out := cmd.OutOrStdout()
	info := buildinfo.Current()

	switch format := mustString(cmd, "format"); format {
	case "json":
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format JSON: %v", err)
		}
		_, _ = fmt.Fprintln(out, string(data))
	case "text", "":
		_, _ = fmt.Fprintf(out, "bundlepress %s\n", info.Version)
		if extended {
			if info.ModuleVersion != "" {
				_, _ = fmt.Fprintf(out, "Module: %s\n", info.ModuleVersion)
			}
			_, _ = fmt.Fprintf(out, "Go: %s\n", info.GoVersion)
			_, _ = fmt.Fprintf(out, "Platform: %s\n", info.Platform)
		}
	default:
		return &config.ConfigError{Key: "format", Message: fmt.Sprintf("unsupported format %q", format)}
	}
	return nil
}
