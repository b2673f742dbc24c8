package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/avdivo/dev-organizer/internal/config"
	"github.com/avdivo/dev-organizer/internal/version"
)

var env string

var rootCmd = &cobra.Command{
	Use:   "organizer",
	Short: "Personal organizer with notes, lists, reminders and question answering",
	Long: `organizer keeps notes and reminders in lists and answers questions about them.

Commands:
  serve                 Start the HTTP API and the reminder scheduler
  chat --user <id>      Talk to the assistant from the terminal
  version               Print build information

Config: config/<env>.yaml, ${VAR} references are expanded from the environment and .env`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "organizer %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&env, "env", config.GetEnv(), "config environment (local, dev, prod)")
	rootCmd.Version = version.Version

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
