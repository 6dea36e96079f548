package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"mercator-hq/apiflow/pkg/cli"
	"mercator-hq/apiflow/pkg/config"
	"mercator-hq/apiflow/pkg/control"
)

var (
	// Global flags
	cfgFile     string
	envFile     string
	controlAddr string
	token       string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "apiflow",
	Short: "ApiFlow - local HTTP gateway for API services",
	Long: `ApiFlow is a local HTTP gateway that gives a set of API services one
stable port.

Requests are routed by base path to a service and forwarded along the
service's upstream chain:
  - Longest-prefix routing with optional path rewriting
  - Retry on transient failures, then fallback to the next upstream
  - Streaming responses passed through unbuffered
  - Hot reload of routing settings without dropping the listener
  - A bounded request log, upstream statistics and an optional archive`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadEnvFile()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "apiflow.yaml", "application config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment variables from file (default .env when present)")
	rootCmd.PersistentFlags().StringVar(&controlAddr, "addr", "", "control API address (overrides control.listen_address)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "control API token (overrides control.token)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadEnvFile loads --env-file, or .env when it exists. Variables already
// set in the environment win.
func loadEnvFile() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return cli.NewConfigError("env-file", fmt.Sprintf("failed to load %s: %v", envFile, err))
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cli.NewConfigError("env-file", fmt.Sprintf("failed to load .env: %v", err))
	}
	return nil
}

// loadConfig loads the application config. A missing file yields defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) {
			return nil, err
		}
		return nil, cli.NewConfigError("", err.Error())
	}
	if controlAddr != "" {
		cfg.Control.ListenAddress = controlAddr
	}
	if token != "" {
		cfg.Control.Token = token
	}
	return cfg, nil
}

// newClient returns a control API client for the configured instance.
func newClient() (*control.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return control.NewClient(cfg.Control.ListenAddress, cfg.Control.Token), nil
}
