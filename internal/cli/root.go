package cli

import (
	"github.com/spf13/cobra"

	"github.com/stackdock-io/stackdock/internal/logging"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "stackdock",
	Short: "Declarative provisioning for self-hosted Docker stacks",
	Long: `Stackdock turns a declarative stack description into running containers,
networks, volumes and secrets.

It reads a stack declaration, diffs it against the recorded state, and
reconciles the difference:
  • Reproducible plans with explicit create/update/replace/delete actions
  • Parallel execution across independent resources
  • Durable state with locking and optional encryption
  • Generated secrets that stay stable across runs`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logLevel)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(outputCmd)
	rootCmd.AddCommand(versionCmd)
}
