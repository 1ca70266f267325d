// Package cli provides the command-line interface for postbrief.
package cli

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ppiankov/postbrief/internal/config"
	"github.com/ppiankov/postbrief/internal/logging"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

const defaultConfigDir = ".postbrief"

var (
	configDir string
	logLevel  string
	logFormat string

	// log is configured in PersistentPreRunE before any subcommand runs.
	log = logrus.StandardLogger()
)

var rootCmd = &cobra.Command{
	Use:   "postbrief",
	Short: "Turn a list of social accounts into a daily digest",
	Long: "postbrief fetches recent posts for a fixed list of accounts through one configured backend, " +
		"summarizes each post, and writes a dated digest file.",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "postbrief %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", defaultConfigDir, "config directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text, json")

	rootCmd.AddCommand(versionCmd, runCmd, fetchCmd, initCmd, doctorCmd)
}

func setup(cmd *cobra.Command, _ []string) error {
	l, err := logging.New(logLevel, logFormat, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	log = l

	if err := config.LoadDotEnv(".", configDir); err != nil {
		log.WithError(err).Warn("ignoring unreadable .env")
	}
	return nil
}

// Execute runs the root command. Cancelling ctx interrupts a run between
// accounts.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
