package reconcile

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/studysync/internal/domain"
)

func TestReportAggregatesInLocalOrder(t *testing.T) {
	report := newReport("u1", time.Now())
	conflict := fmt.Errorf("insert progress: %w", domain.ErrConstraintViolation)
	malformed := fmt.Errorf("%w: progress: date is required", domain.ErrMalformedRecord)

	report.add(domain.KindProgress, []result{
		{outcome: outcomeInserted, key: "u1/2024-01-01"},
		{outcome: outcomeFailed, key: "u1/2024-01-02", err: conflict},
		{outcome: outcomeSkipped, key: "u1/2024-01-03"},
		{outcome: outcomeOmitted},
		{outcome: outcomeFailed, key: "u1/", err: malformed},
	})
	report.finish(time.Now())

	out := report.Outcome(domain.KindProgress)
	require.Equal(t, 1, out.Inserted)
	require.Equal(t, 1, out.Skipped)
	require.Equal(t, 2, out.Failed)
	require.Len(t, out.Failures, 2)
	require.Equal(t, 1, out.Failures[0].Index)
	require.Equal(t, domain.RecordConflict, out.Failures[0].Kind)
	require.Equal(t, 4, out.Failures[1].Index)
	require.Equal(t, domain.MalformedLocalRecord, out.Failures[1].Kind)

	require.False(t, report.Success)
	require.Equal(t, []string{"u1/2024-01-02", "u1/"}, report.RetryKeys()[domain.KindProgress])

	err := report.Err()
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrConstraintViolation))
	require.True(t, errors.Is(err, domain.ErrMalformedRecord))
}

func TestReportSucceedsWithoutFailures(t *testing.T) {
	report := newReport("u1", time.Now())
	report.add(domain.KindProfile, []result{{outcome: outcomeSkipped, key: "u1"}})
	report.finish(time.Now())

	require.True(t, report.Success)
	require.NoError(t, report.Err())
	require.Empty(t, report.RetryKeys())
	require.Equal(t, Counts{Skipped: 1}, report.Totals())
	require.Len(t, report.Summary(), len(domain.Kinds))
}

func TestCancelledOrDeferredReportIsNotSuccessful(t *testing.T) {
	cancelled := newReport("u1", time.Now())
	cancelled.Cancelled = true
	cancelled.finish(time.Now())
	require.False(t, cancelled.Success)

	deferred := newReport("u1", time.Now())
	deferred.PerEntity[domain.KindGoal].Deferred = 2
	deferred.finish(time.Now())
	require.False(t, deferred.Success)
}
