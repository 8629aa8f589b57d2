package commands

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// httpClient is the admin-façade HTTP client, initialized in
	// PersistentPreRunE.
	httpClient *http.Client

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// serverAddr is the admin façade address (host:port).
	serverAddr string
)

const clientTimeout = 10 * time.Second

// rootCmd is the top-level cobra command for npswitchctl.
var rootCmd = &cobra.Command{
	Use:   "npswitchctl",
	Short: "CLI client for the npswitch daemon's admin façade",
	Long:  "npswitchctl talks to the npswitch daemon's HTTP admin façade to inject messages and inspect switch status.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		httpClient = &http.Client{Timeout: clientTimeout}
		return nil
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:8090",
		"npswitch admin façade address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(statusCmd())
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

func adminURL(path string) string {
	return "http://" + serverAddr + path
}
