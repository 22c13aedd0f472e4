package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/302ai/302-custom-mcp/pkg/bridge"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", bridge.ServerName, bridge.ServerVersion)
	},
}
