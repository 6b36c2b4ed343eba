// Package cli provides the command-line interface for timeport.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/timeport-io/timeport/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string

	// API client shared by all commands
	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "timeport",
	Short: "Bulk historical time-series import for digital twins",
	Long: `Timeport imports historical time-series files into the telemetry store,
resolving each row against the digital twin registry.

Upload CSV or gzipped CSV files, queue import jobs, and track their
progress from the terminal.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		apiClient = client.New(serverURL)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "timeport server URL (default from TIMEPORT_SERVER_URL)")
}
