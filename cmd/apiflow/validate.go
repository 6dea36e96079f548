package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mercator-hq/apiflow/pkg/cli"
	"mercator-hq/apiflow/pkg/config"
	"mercator-hq/apiflow/pkg/settings"
)

var validateFlags struct {
	settingsPath string
}

var validateCmd = &cobra.Command{
	Use:   "validate [settings-file]",
	Short: "Validate the application config and routing settings",
	Long: `Validate the application config and the routing settings file without
starting anything.

The settings file defaults to settings.path from the application config. A
missing settings file is not an error; there is simply nothing to start.

Exit codes:
  0  configuration valid
  2  configuration invalid

Examples:
  # Validate the default files
  apiflow validate

  # Validate a settings file before copying it into place
  apiflow validate ./routes.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.settingsPath, "settings", "", "settings file path")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig()
	if err != nil {
		printValidationErrors(out, err)
		return err
	}
	fmt.Fprintln(out, "✓ Application config valid")

	path := cfg.Settings.Path
	if validateFlags.settingsPath != "" {
		path = validateFlags.settingsPath
	}
	if len(args) == 1 {
		path = args[0]
	}

	store, err := settings.NewStore(path)
	if err != nil {
		return cli.NewConfigError("settings.path", err.Error())
	}
	saved, err := store.Load()
	if err != nil {
		return cli.NewConfigError("settings", err.Error())
	}
	if saved == nil {
		fmt.Fprintf(out, "- No settings file at %s\n", store.Path())
		return nil
	}

	normalized, err := config.PrepareProxyConfig(saved)
	if err != nil {
		printValidationErrors(out, err)
		return err
	}
	fmt.Fprintf(out, "✓ Settings valid: port %d, %d services (%s)\n",
		normalized.ListenPort, len(normalized.Services), store.Path())
	return nil
}

func printValidationErrors(w io.Writer, err error) {
	var verr config.ValidationError
	if !errors.As(err, &verr) {
		return
	}
	fmt.Fprintln(w, "✗ Configuration invalid:")
	for _, fe := range verr.Errors {
		fmt.Fprintf(w, "  - %s: %s\n", fe.Field, fe.Message)
	}
}
