package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"example.com/studysync/internal/outbox"
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect and repair the event outbox",
}

var outboxRequeueCmd = &cobra.Command{
	Use:   "requeue",
	Short: "Reset events that exhausted their delivery attempts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, components, err := setup(cmd)
		if err != nil {
			return err
		}
		defer components.Close()

		queue := outbox.NewPostgresQueue(components.Pool, cfg.OutboxMaxAttempts, cfg.OutboxBaseDelay)
		reset, err := queue.Requeue(cmd.Context())
		if err != nil {
			return fmt.Errorf("requeue outbox: %w", err)
		}
		logger.Info().Int64("events", reset).Msg("outbox events requeued")
		fmt.Fprintf(cmd.OutOrStdout(), "requeued %d events\n", reset)
		return nil
	},
}

func init() {
	outboxCmd.AddCommand(outboxRequeueCmd)
}
