package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"example.com/studysync/internal/domain"
)

// Passer runs reconciliation passes. *Reconciler implements it.
type Passer interface {
	Reconcile(ctx context.Context, userID string) (*Report, error)
}

// NewBackOff returns a fresh exponential policy giving up after maxElapsed.
// BackOff values are stateful; use one per retried pass.
func NewBackOff(maxElapsed time.Duration) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxElapsed
	return bo
}

// RetryPass is the caller-side retry for whole passes: it re-runs p while the pass fails
// with domain.ErrRemoteUnavailable and stops at once on any other error. Partial reports
// are returned as they are; re-running them later is safe because passes are idempotent.
func RetryPass(ctx context.Context, p Passer, userID string, bo backoff.BackOff) (*Report, error) {
	var report *Report
	err := backoff.Retry(func() error {
		rep, err := p.Reconcile(ctx, userID)
		if err != nil {
			if errors.Is(err, domain.ErrRemoteUnavailable) {
				return err
			}
			return backoff.Permanent(err)
		}
		report = rep
		return nil
	}, backoff.WithContext(bo, ctx))
	return report, err
}
