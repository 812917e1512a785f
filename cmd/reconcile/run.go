package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"

	"example.com/studysync/internal/domain"
	"example.com/studysync/internal/reconcile"
)

var runUsers []string

var runCmd = &cobra.Command{
	Use:   "run --user <id> [--user <id>...]",
	Short: "Reconcile the given users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if len(runUsers) == 0 {
			return errors.New("at least one --user is required")
		}
		cfg, _, components, err := setup(cmd)
		if err != nil {
			return err
		}
		defer components.Close()

		return runPasses(cmd.Context(), components.Reconciler, runUsers, backOffFactory(cfg.RetryMaxElapsed), cmd.OutOrStdout())
	},
}

func init() {
	runCmd.Flags().StringSliceVar(&runUsers, "user", nil, "User id to reconcile (repeatable)")
}

// runPasses reconciles users one after another and prints a line, or a JSON report, per
// user. It returns errUnsuccessful when any pass did not fully succeed.
func runPasses(ctx context.Context, p reconcile.Passer, users []string, newBackOff func() backoff.BackOff, out io.Writer) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	unsuccessful := 0
	for _, userID := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var (
			report *reconcile.Report
			err    error
		)
		if newBackOff != nil {
			report, err = reconcile.RetryPass(ctx, p, userID, newBackOff())
		} else {
			report, err = p.Reconcile(ctx, userID)
		}
		if err != nil {
			unsuccessful++
			fmt.Fprintf(out, "%s\terror\t%s\t%v\n", userID, domain.Classify(err), err)
			continue
		}
		if !report.Success {
			unsuccessful++
		}

		if jsonOutput {
			if err := enc.Encode(report); err != nil {
				return err
			}
			continue
		}
		printSummary(out, report)
	}

	if unsuccessful > 0 {
		return fmt.Errorf("%w: %d of %d", errUnsuccessful, unsuccessful, len(users))
	}
	return nil
}

func printSummary(out io.Writer, report *reconcile.Report) {
	status := "ok"
	switch {
	case report.Cancelled:
		status = "cancelled"
	case !report.Success:
		status = "partial"
	case report.Error != "":
		status = "noop"
	}
	fmt.Fprintf(out, "%s\t%s", report.UserID, status)
	summary := report.Summary()
	for _, kind := range domain.Kinds {
		c := summary[kind]
		fmt.Fprintf(out, "\t%s=%d/%d/%d", kind, c.Inserted, c.Skipped, c.Failed)
		if c.Deferred > 0 {
			fmt.Fprintf(out, "+%d", c.Deferred)
		}
	}
	fmt.Fprintln(out)
}

// backOffFactory returns nil when --retry=false, so each pass runs once.
func backOffFactory(maxElapsed time.Duration) func() backoff.BackOff {
	if !retry {
		return nil
	}
	return func() backoff.BackOff { return reconcile.NewBackOff(maxElapsed) }
}
