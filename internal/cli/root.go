// Package cli wires the caremate commands.
package cli

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/verdiyev/caremate/internal/config"
	"github.com/verdiyev/caremate/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	// loaded at init time
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "caremate",
		Short: "caremate — personalized health assistant service",
		Long:  "caremate is a conversational health assistant that personalizes its guidance by the user's name, age, and gender, and remembers each conversation thread.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// API keys commonly live in a local .env file.
			_ = godotenv.Load()

			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			level := logLevel
			if level == "" {
				level = "info"
			}
			log = logging.New(nil, level)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.caremate/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
