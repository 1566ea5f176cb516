// Package cli contains all the command-line interface logic for the application,
// powered by the cobra library. It defines the root command, subcommands,
// and their respective flags.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// Values of the root command's persistent flags, shared by all subcommands.
	rootConfigPath   string
	rootLogLevel     string
	rootPyroscopeURL string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "feedrace",
	Short: "Race Solana transaction feeds against each other.",
	Long: `Race Solana transaction feeds against each other.
Subscribes to the same transactions on every configured provider, Geyser gRPC or
JSON-RPC websocket, and ranks the providers by how often they deliver first.`,
}

// Execute is the primary entry point for the CLI application, called by main.go.
//
// It sets up a single, root cancellable context and wires it up to respond
// to OS interruption signals (like Ctrl+C or SIGTERM). This context is then passed down
// to all cobra commands, so an interrupt ends a running race early.
func Execute() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	go func() {
		<-signals
		cancel()
	}()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootConfigPath, "config", "c",
		"feedrace.yaml", "Path of the YAML configuration file.")

	rootCmd.PersistentFlags().StringVarP(&rootLogLevel, "log-level", "l",
		envOr("FEEDRACE_LOG_LEVEL", "info"), "Log level: debug, info, warn or error.")

	rootCmd.PersistentFlags().StringVar(&rootPyroscopeURL, "pyroscope-url",
		"", "Pyroscope server to send continuous profiles to. Disabled when empty.")
}

func envOr(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
