package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/example/pagemark/internal/platform/logging"
	"github.com/example/pagemark/services/reader/internal/client"
	"github.com/example/pagemark/services/reader/internal/config"
)

var (
	cfgFile      string
	outputFormat string
)

// app is built once per invocation before any subcommand runs.
type app struct {
	cfg    config.Config
	log    *zap.Logger
	client *client.Client
}

var current *app

var rootCmd = &cobra.Command{
	Use:   "reader",
	Short: "Read your pagemark library in the terminal",
	Long: `reader opens books from your pagemark library and keeps your place.

Your reading position is saved to the progress service as you turn pages,
so you can pick up where you left off on any device.`,
	SilenceUsage: true,
	Version:      version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		switch outputFormat {
		case "yaml", "json":
		default:
			return fmt.Errorf("unknown output format %q (want yaml or json)", outputFormat)
		}
		a, err := newApp(cfgFile)
		if err != nil {
			return err
		}
		current = a
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if current != nil {
			_ = current.log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.config/pagemark/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	rootCmd.AddCommand(versionCmd, booksCmd, recentCmd, openCmd, tokenCmd)
}

func newApp(cfgFile string) (*app, error) {
	cfg, err := config.Load(viper.New(), cfgFile)
	if err != nil {
		return nil, err
	}
	log, err := logging.NewFile(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	cb := client.NewBreaker("pagemark", cfg.BreakerThreshold, cfg.BreakerCooldown, log)
	c := client.New(client.Config{
		LibraryURL:  cfg.LibraryURL,
		ProgressURL: cfg.ProgressURL,
		Token:       cfg.Token,
	}, client.WithCircuitBreaker(cb), client.WithLogger(log))
	return &app{cfg: cfg, log: log, client: c}, nil
}
