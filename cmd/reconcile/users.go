package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var usersListOnly bool

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Reconcile every user held in the local store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, components, err := setup(cmd)
		if err != nil {
			return err
		}
		defer components.Close()

		users, err := components.Local.UserIDs(cmd.Context())
		if err != nil {
			return fmt.Errorf("list local users: %w", err)
		}
		if usersListOnly {
			for _, id := range users {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		}
		logger.Info().Int("users", len(users)).Msg("reconciling local users")
		return runPasses(cmd.Context(), components.Reconciler, users, backOffFactory(cfg.RetryMaxElapsed), cmd.OutOrStdout())
	},
}

func init() {
	usersCmd.Flags().BoolVar(&usersListOnly, "list", false, "Only print user ids")
}
