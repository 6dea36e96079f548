package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/apiflow/pkg/cli"
	"mercator-hq/apiflow/pkg/control"
)

var statusFlags struct {
	format string
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the gateway status of a running instance",
	Long: `Show the tray status and gateway details of a running instance.

Exit codes:
  0  the control API answered
  3  no instance is listening on --addr`,
	RunE: showStatus,
}

var stopFlags struct {
	port int
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the gateway of a running instance",
	Long: `Stop the gateway listener. The control API keeps running so the gateway
can be started again.

Examples:
  # Stop whatever port is running
  apiflow stop

  # Stop only if the gateway is bound to 8080
  apiflow stop --port 8080`,
	RunE: stopGateway,
}

var networkFlags struct {
	format string
}

var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "Show how the gateway can be reached from the LAN",
	RunE:  showNetwork,
}

func init() {
	rootCmd.AddCommand(statusCmd, stopCmd, networkCmd)

	statusCmd.Flags().StringVar(&statusFlags.format, "format", "text", "output format: text, json")
	stopCmd.Flags().IntVar(&stopFlags.port, "port", 0, "only stop when bound to this port")
	networkCmd.Flags().StringVar(&networkFlags.format, "format", "text", "output format: text, json")
}

func showStatus(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(statusFlags.format, cli.FormatText, cli.FormatJSON)
	if err != nil {
		return err
	}
	client, err := newClient()
	if err != nil {
		return err
	}

	st, err := client.Status(cmd.Context())
	if err != nil {
		return clientError("status", err)
	}
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), st)
	}
	printStatus(cmd.OutOrStdout(), st)
	return nil
}

func stopGateway(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	st, err := client.Stop(cmd.Context(), stopFlags.port)
	if err != nil {
		return clientError("stop", err)
	}
	printStatus(cmd.OutOrStdout(), st)
	return nil
}

func showNetwork(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(networkFlags.format, cli.FormatText, cli.FormatJSON)
	if err != nil {
		return err
	}
	client, err := newClient()
	if err != nil {
		return err
	}

	info, err := client.Network(cmd.Context())
	if err != nil {
		return clientError("network", err)
	}
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), info)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Hostname: %s\n", orUnknown(info.Hostname))
	fmt.Fprintf(out, "Local IP: %s\n", orUnknown(info.LocalIP))
	if len(info.URLs) > 0 {
		fmt.Fprintln(out, "URLs:")
		for _, u := range info.URLs {
			fmt.Fprintf(out, "  %s\n", u)
		}
	}
	return nil
}

func printStatus(w io.Writer, st *control.StatusResponse) {
	fmt.Fprintln(w, st.Tray.Menu)
	if !st.Running {
		if st.LastError != "" {
			fmt.Fprintf(w, "Last error: %s\n", st.LastError)
		}
		return
	}
	fmt.Fprintf(w, "Bind:      %s:%d\n", st.BindHost, st.ListenPort)
	fmt.Fprintf(w, "Services:  %d\n", st.Services)
	fmt.Fprintf(w, "Active:    %d\n", st.Active)
	fmt.Fprintf(w, "Version:   %d\n", st.Version)
	if !st.StartedAt.IsZero() {
		fmt.Fprintf(w, "Started:   %s\n", st.StartedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if !st.ReloadedAt.IsZero() {
		fmt.Fprintf(w, "Reloaded:  %s\n", st.ReloadedAt.Local().Format("2006-01-02 15:04:05"))
	}
}

func orUnknown(s *string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return "unknown"
	}
	return *s
}

// withClient is shared by commands that only need a client and a context.
func withClient(ctx context.Context, fn func(context.Context, *control.Client) error) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	return unavailable(fn(ctx, client))
}

// clientError wraps the failure of a control API call made by command.
func clientError(command string, err error) error {
	return unavailable(cli.NewCommandError(command, err))
}

// unavailable marks errors caused by no instance listening.
func unavailable(err error) error {
	var u *cli.UnavailableError
	if errors.Is(err, control.ErrUnreachable) && !errors.As(err, &u) {
		return &cli.UnavailableError{Err: err}
	}
	return err
}
