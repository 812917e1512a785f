// Command reconcile runs reconciliation passes from the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"example.com/studysync/internal/app"
	"example.com/studysync/internal/config"
	"example.com/studysync/internal/logging"
)

// errUnsuccessful makes the process exit non-zero without printing usage.
var errUnsuccessful = errors.New("one or more passes were unsuccessful")

// Global flags
var (
	jsonOutput bool
	retry      bool
)

var rootCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Migrate offline user data into the remote store",
	Long: `reconcile runs idempotent reconciliation passes that copy a user's offline
records (profile, progress, activities, goals) into the remote store.

Configuration is read from the environment (POSTGRES_URL, LOCAL_STORE_PATH,
REDIS_ADDR, RECONCILE_WORKERS, REMOTE_CALL_TIMEOUT, ...).

Examples:
  reconcile run --user u1 --user u2   # Reconcile two users
  reconcile users                     # Reconcile every user in the local store
  reconcile users --list              # Only list local users
  reconcile outbox requeue            # Retry parked outbox events`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print full reports as JSON")
	rootCmd.PersistentFlags().BoolVar(&retry, "retry", true, "Retry passes while the remote store is unreachable")
	rootCmd.AddCommand(runCmd, usersCmd, outboxCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errUnsuccessful) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

// setup loads configuration and wires the reconciler. Logs go to stderr so stdout stays
// parseable.
func setup(cmd *cobra.Command) (config.Config, zerolog.Logger, *app.Components, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), nil, err
	}
	logger, err := logging.NewWithWriter(os.Stderr, "reconcile-cli", cfg.LogLevel)
	if err != nil {
		return config.Config{}, zerolog.Nop(), nil, err
	}
	components, err := app.Build(cmd.Context(), cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return config.Config{}, zerolog.Nop(), nil, err
	}
	return cfg, logger, components, nil
}
