// Package reconcile migrates a user's offline records into the remote store exactly once.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"example.com/studysync/internal/domain"
	"example.com/studysync/internal/keylock"
	"example.com/studysync/internal/observability"
)

// ErrEmptyUserID is returned when Reconcile is called without a user.
var ErrEmptyUserID = errors.New("user id is required")

const (
	defaultConcurrency = 4
	defaultCallTimeout = 5 * time.Second
)

// Option configures optional behaviour for the Reconciler.
type Option func(*Reconciler)

// WithLogger overrides the logger. The default discards output.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// WithMetrics records pass and record outcomes on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

// WithLocker guards each dedup key with a lease during its check-then-insert.
func WithLocker(l keylock.Locker) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.locker = l
		}
	}
}

// WithConcurrency bounds the number of records of one kind in flight.
func WithConcurrency(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithCallTimeout bounds every remote call. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d >= 0 {
			r.callTimeout = d
		}
	}
}

// WithClock overrides time.Now, used for profile creation and report timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// Reconciler drives reconciliation passes. It is safe for concurrent use.
type Reconciler struct {
	local       domain.LocalStoreReader
	remote      domain.RemoteStore
	locker      keylock.Locker
	metrics     *observability.Metrics
	logger      zerolog.Logger
	concurrency int
	callTimeout time.Duration
	now         func() time.Time
}

// New constructs a Reconciler over the two stores.
func New(local domain.LocalStoreReader, remote domain.RemoteStore, opts ...Option) *Reconciler {
	r := &Reconciler{
		local:       local,
		remote:      remote,
		locker:      keylock.Noop{},
		logger:      zerolog.Nop(),
		concurrency: defaultConcurrency,
		callTimeout: defaultCallTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile runs one pass for userID.
//
// The profile is resolved first. If it fails, the history kinds are not attempted: their
// local counts are reported as Deferred and the pass is unsuccessful, since remote history
// rows reference the profile and would only fail on it. A later pass retries them.
//
// Per-record failures are recorded in the report and never returned. The only returned
// error besides ErrEmptyUserID and a context error before the pass starts is one wrapping
// domain.ErrRemoteUnavailable, in which case nothing was written and no report is produced.
func (r *Reconciler) Reconcile(ctx context.Context, userID string) (*Report, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log := r.logger.With().Str("user_id", userID).Logger()
	report := newReport(userID, r.now().UTC())

	local, err := r.local.LoadLocalRecords(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrLocalNotFound) {
			log.Warn().Err(err).Msg("local store unavailable, nothing to migrate")
		}
		report.Error = domain.LocalUnavailable
		return r.finish(log, report, "noop"), nil
	}

	if err := r.ping(ctx); err != nil {
		log.Error().Err(err).Msg("remote store unreachable, pass aborted")
		r.metrics.RecordPass("remote_unavailable", report.StartedAt, r.now().UTC())
		return nil, fmt.Errorf("reconcile %s: %w", userID, err)
	}

	log.Info().
		Int("progress", local.Len(domain.KindProgress)).
		Int("activities", local.Len(domain.KindActivity)).
		Int("goals", local.Len(domain.KindGoal)).
		Msg("reconciliation pass started")

	profile := &domain.UserProfile{UserID: userID, CreatedAt: r.now().UTC()}
	if local.Profile != nil {
		profile.Email = local.Profile.Email
	}
	profileResult := r.migrate(ctx, profile)
	report.add(domain.KindProfile, []result{profileResult})
	r.logFailures(log, domain.KindProfile, report.Outcome(domain.KindProfile))

	if profileResult.outcome == outcomeFailed {
		// History rows reference the profile; leave them for the next pass.
		for _, kind := range domain.HistoryKinds {
			report.PerEntity[kind].Deferred = local.Len(kind)
		}
		return r.finish(log, report, "partial"), nil
	}

	for _, kind := range domain.HistoryKinds {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		results, cancelled := r.reconcileKind(ctx, userID, local.Records(kind))
		report.add(kind, results)
		r.logFailures(log, kind, report.Outcome(kind))
		if cancelled {
			report.Cancelled = true
			break
		}
	}

	label := "success"
	switch {
	case report.Cancelled:
		label = "cancelled"
	case report.Totals().Failed > 0:
		label = "partial"
	}
	return r.finish(log, report, label), nil
}

// reconcileKind migrates the records of one history kind on a bounded pool. Records
// that share a dedup key within the pass are attempted once; the rest are skipped.
func (r *Reconciler) reconcileKind(ctx context.Context, userID string, records []domain.Record) ([]result, bool) {
	results := make([]result, len(records))
	seen := make(map[string]struct{}, len(records))

	var g errgroup.Group
	g.SetLimit(r.concurrency)

	cancelled := false
	for i, rec := range records {
		i, rec := i, rec
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if err := domain.Claim(rec, userID); err != nil {
			results[i] = result{outcome: outcomeFailed, key: rec.DedupKey(), err: err}
			continue
		}
		key := rec.DedupKey()
		if _, dup := seen[key]; dup {
			results[i] = result{outcome: outcomeSkipped, key: key}
			continue
		}
		seen[key] = struct{}{}

		g.Go(func() error {
			// Go blocks while the pool is full, so this is the point between records.
			if ctx.Err() != nil {
				return nil
			}
			results[i] = r.migrate(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()

	if !cancelled && ctx.Err() != nil {
		for _, res := range results {
			if res.outcome == outcomeOmitted {
				cancelled = true
				break
			}
		}
	}
	return results, cancelled
}

// migrate performs the idempotent insert of one record. Once started it runs to
// completion even if ctx is cancelled; each remote call is bounded by the call timeout.
func (r *Reconciler) migrate(ctx context.Context, rec domain.Record) result {
	kind, key := rec.Kind(), rec.DedupKey()
	res := result{key: key}

	leaseCtx, cancel := r.callContext(ctx)
	release, err := r.locker.TryAcquire(leaseCtx, key)
	cancel()
	if err != nil {
		res.outcome, res.err = outcomeFailed, err
		return res
	}
	defer release()

	findCtx, cancel := r.callContext(ctx)
	existing, err := r.remote.FindByKey(findCtx, kind, key)
	cancel()
	if err != nil {
		res.outcome, res.err = outcomeFailed, fmt.Errorf("find %s: %w", kind, err)
		return res
	}
	if existing != nil {
		res.outcome = outcomeSkipped
		return res
	}

	insertCtx, cancel := r.callContext(ctx)
	err = r.remote.Insert(insertCtx, rec)
	cancel()
	switch {
	case err == nil:
		res.outcome = outcomeInserted
	case errors.Is(err, domain.ErrAlreadyExists):
		// Lost the race with a concurrent pass; the row exists, which is all we need.
		res.outcome = outcomeSkipped
	default:
		res.outcome, res.err = outcomeFailed, fmt.Errorf("insert %s: %w", kind, err)
	}
	return res
}

func (r *Reconciler) ping(ctx context.Context) error {
	pingCtx, cancel := r.callContext(ctx)
	defer cancel()
	err := r.remote.Ping(pingCtx)
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrRemoteUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
}

func (r *Reconciler) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if r.callTimeout <= 0 {
		return detached, func() {}
	}
	return context.WithTimeout(detached, r.callTimeout)
}

func (r *Reconciler) finish(log zerolog.Logger, report *Report, label string) *Report {
	report.finish(r.now().UTC())
	r.metrics.RecordPass(label, report.StartedAt, report.FinishedAt)
	for kind, o := range report.PerEntity {
		r.metrics.RecordOutcome(kind, observability.OutcomeInserted, o.Inserted)
		r.metrics.RecordOutcome(kind, observability.OutcomeSkipped, o.Skipped)
		r.metrics.RecordOutcome(kind, observability.OutcomeFailed, o.Failed)
		r.metrics.RecordOutcome(kind, observability.OutcomeDeferred, o.Deferred)
	}

	totals := report.Totals()
	log.Info().
		Str("result", label).
		Bool("success", report.Success).
		Int("inserted", totals.Inserted).
		Int("skipped", totals.Skipped).
		Int("failed", totals.Failed).
		Int("deferred", totals.Deferred).
		Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).
		Msg("reconciliation pass finished")
	return report
}

func (r *Reconciler) logFailures(log zerolog.Logger, kind domain.Kind, o *EntityOutcome) {
	for _, f := range o.Failures {
		log.Warn().
			Str("kind", string(kind)).
			Int("index", f.Index).
			Str("key", f.Key).
			Str("error_kind", string(f.Kind)).
			Msg(f.Cause)
	}
}
