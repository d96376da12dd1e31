package main

import (
	"fmt"
	"os"

	"github.com/cuemby/cassnode/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cassnode",
	Short: "cassnode - Cassandra node configuration convergence",
	Long: `cassnode converges a single RHEL-family host into a configured Apache
Cassandra node: repository, packages, service account, data directories,
configuration files, OS tuning, swap, the cassandra service, an optional
range repair service and the superuser password.

Each run is one idempotent pass. A second run against an unchanged host
changes nothing.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		jsonOutput, _ := cmd.Flags().GetBool("log-json")
		log.Init(log.Config{
			Level:      log.ParseLevel(level),
			JSONOutput: jsonOutput,
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(versionString())
	},
}

func versionString() string {
	return fmt.Sprintf("cassnode version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(versionString())

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Log in JSON instead of console format")
	rootCmd.PersistentFlags().String("state-dir", "/var/lib/cassnode", "Directory holding the run history and run lock")
	rootCmd.PersistentFlags().String("root", "/", "Filesystem prefix for every managed path")
	rootCmd.PersistentFlags().String("metrics-textfile", "", "Write run metrics to this node exporter textfile")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}
