// Package commands implements the signalrouterctl CLI commands.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// client is the control API client, initialized in PersistentPreRunE.
	client *apiClient

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// serverAddr is the daemon's control API address (host:port).
	serverAddr string
)

// rootCmd is the top-level cobra command for signalrouterctl.
var rootCmd = &cobra.Command{
	Use:   "signalrouterctl",
	Short: "CLI client for the signalrouter daemon",
	Long:  "signalrouterctl communicates with the signalrouter daemon's control API to manage connections, links, and queries.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		client = newAPIClient(serverAddr)
		return nil
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:7070",
		"signalrouter control API address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(connectionCmd())
	rootCmd.AddCommand(linkCmd())
	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(monitorCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
