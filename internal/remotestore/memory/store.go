// Package memory implements an in-memory remote store for local development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/studysync/internal/domain"
)

// Op names a remote call recorded by the store.
type Op string

const (
	OpPing   Op = "ping"
	OpFind   Op = "find"
	OpInsert Op = "insert"
)

// Call is one recorded remote call.
type Call struct {
	Op   Op
	Kind domain.Kind
	Key  string
}

// Row is a stored record.
type Row struct {
	ID        string
	Record    domain.Record
	CreatedAt time.Time
}

// Store keeps rows per kind, keyed by dedup key. Like a database with unique indexes, an
// insert of a taken key fails with domain.ErrAlreadyExists, and history rows require an
// existing profile.
type Store struct {
	mu    sync.RWMutex
	rows  map[domain.Kind]map[string]Row
	calls []Call

	unavailable bool
	latency     time.Duration
	insertFault func(domain.Record) error
	findFault   func(domain.Kind, string) error
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	rows := make(map[domain.Kind]map[string]Row, len(domain.Kinds))
	for _, kind := range domain.Kinds {
		rows[kind] = make(map[string]Row)
	}
	return &Store{rows: rows}
}

// SetUnavailable makes every call fail with domain.ErrRemoteUnavailable.
func (s *Store) SetUnavailable(down bool) {
	s.mu.Lock()
	s.unavailable = down
	s.mu.Unlock()
}

// SetLatency delays every find and insert by d, honouring the call context.
func (s *Store) SetLatency(d time.Duration) {
	s.mu.Lock()
	s.latency = d
	s.mu.Unlock()
}

// FailInsert installs fn; a non-nil return rejects the insert with that error.
func (s *Store) FailInsert(fn func(domain.Record) error) {
	s.mu.Lock()
	s.insertFault = fn
	s.mu.Unlock()
}

// FailFind installs fn; a non-nil return fails the lookup with that error.
func (s *Store) FailFind(fn func(domain.Kind, string) error) {
	s.mu.Lock()
	s.findFault = fn
	s.mu.Unlock()
}

// Ping implements domain.RemoteStore.
func (s *Store) Ping(ctx context.Context) error {
	s.record(Call{Op: OpPing})
	s.mu.RLock()
	down := s.unavailable
	s.mu.RUnlock()
	if down {
		return domain.ErrRemoteUnavailable
	}
	return nil
}

// FindByKey implements domain.RemoteStore.
func (s *Store) FindByKey(ctx context.Context, kind domain.Kind, key string) (*domain.RemoteRecord, error) {
	s.record(Call{Op: OpFind, Kind: kind, Key: key})
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.findFault != nil {
		if err := s.findFault(kind, key); err != nil {
			return nil, err
		}
	}
	row, ok := s.rows[kind][key]
	if !ok {
		return nil, nil
	}
	return &domain.RemoteRecord{Kind: kind, Key: key, UserID: row.Record.Owner(), CreatedAt: row.CreatedAt}, nil
}

// Insert implements domain.RemoteStore.
func (s *Store) Insert(ctx context.Context, record domain.Record) error {
	kind, key := record.Kind(), record.DedupKey()
	s.record(Call{Op: OpInsert, Kind: kind, Key: key})
	if err := s.wait(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertFault != nil {
		if err := s.insertFault(record); err != nil {
			return err
		}
	}
	table, ok := s.rows[kind]
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", domain.ErrConstraintViolation, kind)
	}
	if _, taken := table[key]; taken {
		return fmt.Errorf("%w: %s %s", domain.ErrAlreadyExists, kind, key)
	}
	if kind != domain.KindProfile {
		if _, ok := s.rows[domain.KindProfile][record.Owner()]; !ok {
			return fmt.Errorf("%w: %s references missing profile %q", domain.ErrConstraintViolation, kind, record.Owner())
		}
	}
	table[key] = Row{ID: uuid.NewString(), Record: clone(record), CreatedAt: time.Now().UTC()}
	return nil
}

// Count returns the number of rows of kind.
func (s *Store) Count(kind domain.Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows[kind])
}

// Rows returns copies of the rows of kind.
func (s *Store) Rows(kind domain.Kind) []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Row, 0, len(s.rows[kind]))
	for _, row := range s.rows[kind] {
		row.Record = clone(row.Record)
		out = append(out, row)
	}
	return out
}

// Calls returns the recorded calls in order.
func (s *Store) Calls() []Call {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Call(nil), s.calls...)
}

func (s *Store) record(c Call) {
	s.mu.Lock()
	s.calls = append(s.calls, c)
	s.mu.Unlock()
}

func (s *Store) wait(ctx context.Context) error {
	s.mu.RLock()
	down, latency := s.unavailable, s.latency
	s.mu.RUnlock()
	if down {
		return domain.ErrRemoteUnavailable
	}
	if latency <= 0 {
		return nil
	}
	select {
	case <-time.After(latency):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, ctx.Err())
	}
}

func clone(record domain.Record) domain.Record {
	switch r := record.(type) {
	case *domain.UserProfile:
		c := *r
		return &c
	case *domain.ProgressEntry:
		c := *r
		c.Topics = append([]string(nil), r.Topics...)
		return &c
	case *domain.ActivityRecord:
		c := *r
		c.Payload = append([]byte(nil), r.Payload...)
		return &c
	case *domain.StudyGoal:
		c := *r
		return &c
	}
	return record
}
