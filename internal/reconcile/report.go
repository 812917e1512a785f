package reconcile

import (
	"errors"
	"fmt"
	"time"

	"example.com/studysync/internal/domain"
)

// Failure describes one record that could not be migrated.
type Failure struct {
	// Index is the position of the record in the local store's order.
	Index int              `json:"index"`
	Key   string           `json:"key,omitempty"`
	Kind  domain.ErrorKind `json:"kind"`
	Cause string           `json:"cause"`

	err error
}

// EntityOutcome aggregates the records of one kind.
type EntityOutcome struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`

	// Deferred counts records not attempted because the profile could not be confirmed.
	Deferred int       `json:"deferred,omitempty"`
	Failures []Failure `json:"failures,omitempty"`
}

// Counts is the timestamp-free part of an EntityOutcome.
type Counts struct {
	Inserted int
	Skipped  int
	Failed   int
	Deferred int
}

// Report is the outcome of one reconciliation pass.
type Report struct {
	UserID     string                         `json:"user_id"`
	Success    bool                           `json:"success"`
	Error      domain.ErrorKind               `json:"error,omitempty"`
	Cancelled  bool                           `json:"cancelled,omitempty"`
	PerEntity  map[domain.Kind]*EntityOutcome `json:"per_entity"`
	StartedAt  time.Time                      `json:"started_at"`
	FinishedAt time.Time                      `json:"finished_at"`
}

func newReport(userID string, started time.Time) *Report {
	per := make(map[domain.Kind]*EntityOutcome, len(domain.Kinds))
	for _, kind := range domain.Kinds {
		per[kind] = &EntityOutcome{}
	}
	return &Report{UserID: userID, PerEntity: per, StartedAt: started}
}

// Outcome returns the outcome for kind, never nil.
func (r *Report) Outcome(kind domain.Kind) *EntityOutcome {
	if out, ok := r.PerEntity[kind]; ok && out != nil {
		return out
	}
	return &EntityOutcome{}
}

// Summary returns the per-kind counts. Two passes over unchanged state can be compared with it.
func (r *Report) Summary() map[domain.Kind]Counts {
	out := make(map[domain.Kind]Counts, len(r.PerEntity))
	for kind, o := range r.PerEntity {
		out[kind] = Counts{Inserted: o.Inserted, Skipped: o.Skipped, Failed: o.Failed, Deferred: o.Deferred}
	}
	return out
}

// Totals sums the counts across kinds.
func (r *Report) Totals() Counts {
	var total Counts
	for _, o := range r.PerEntity {
		total.Inserted += o.Inserted
		total.Skipped += o.Skipped
		total.Failed += o.Failed
		total.Deferred += o.Deferred
	}
	return total
}

// RetryKeys lists the dedup keys of failed records per kind, in local order.
func (r *Report) RetryKeys() map[domain.Kind][]string {
	out := make(map[domain.Kind][]string)
	for _, kind := range domain.Kinds {
		for _, f := range r.Outcome(kind).Failures {
			if f.Key != "" {
				out[kind] = append(out[kind], f.Key)
			}
		}
	}
	return out
}

// Err joins every recorded failure, or returns nil when there were none.
func (r *Report) Err() error {
	var errs []error
	for _, kind := range domain.Kinds {
		for _, f := range r.Outcome(kind).Failures {
			err := f.err
			if err == nil {
				err = errors.New(f.Cause)
			}
			errs = append(errs, fmt.Errorf("%s[%d] %s: %w", kind, f.Index, f.Kind, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Report) finish(at time.Time) {
	r.FinishedAt = at
	r.Success = !r.Cancelled && r.Totals().Failed == 0 && r.Totals().Deferred == 0
}

// result outcomes of a single record.
type outcome int

const (
	outcomeOmitted outcome = iota
	outcomeInserted
	outcomeSkipped
	outcomeFailed
)

type result struct {
	outcome outcome
	key     string
	err     error
}

// add folds the results of kind into the report in local order.
func (r *Report) add(kind domain.Kind, results []result) {
	o := r.PerEntity[kind]
	for i, res := range results {
		switch res.outcome {
		case outcomeInserted:
			o.Inserted++
		case outcomeSkipped:
			o.Skipped++
		case outcomeFailed:
			o.Failed++
			o.Failures = append(o.Failures, Failure{
				Index: i,
				Key:   res.key,
				Kind:  domain.Classify(res.err),
				Cause: res.err.Error(),
				err:   res.err,
			})
		}
	}
}
