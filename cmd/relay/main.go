package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tokmz/relay"
)

func main() {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "relay",
		Short: "Real-time chat relay over WebSocket",
		Long: `relay fans out short chat events between connected clients.

  relay serve   start the relay server
  relay chat    terminal client with automatic reconnection

Settings come from relay.yaml (./ or /etc/relay/), RELAY_* environment
variables and flags, in increasing priority.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (default: search relay.yaml)")

	rootCmd.AddCommand(
		serveCmd(&configFile),
		chatCmd(&configFile),
		versionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		stop()
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "relay %s (%s, %s/%s)\n", relay.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
