package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fuomag9/notionsocial/internal/config"
	"github.com/fuomag9/notionsocial/internal/logging"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries what every subcommand loads before it runs.
type app struct {
	configFile string
	cfg        *config.Config
	log        zerolog.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "notionsocial",
		Short: "Notion to social media publishing backend",
		Long: `notionsocial links Notion workspaces and social media accounts to a user
and keeps the tracked Notion databases ready for publishing.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configFile, "config", "", "Path to a config file (environment variables take precedence)")

	rootCmd.AddCommand(newServeCommand(a))
	rootCmd.AddCommand(newMigrateCommand(a))
	rootCmd.AddCommand(newPurgeStatesCommand(a))
	rootCmd.AddCommand(newTokenCommand(a))

	return rootCmd
}

func (a *app) load() error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.New(cfg.LogLevel, cfg.Environment)

	for _, w := range cfg.Warnings {
		a.log.Warn().Msg(w)
	}
	return nil
}
