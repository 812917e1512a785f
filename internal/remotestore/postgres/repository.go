// Package postgres implements the remote store on Postgres. Every migrated row is written
// together with an outbox event in one transaction.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/studysync/internal/domain"
)

const (
	// EventUserDataMigrated is the outbox event written for every inserted record.
	EventUserDataMigrated = "userdata.migrated"
	// TopicUserDataEvents receives migrated-record events, keyed by user.
	TopicUserDataEvents = "userdata_events"
)

type table struct {
	name      string
	keyColumn string
	timestamp string
}

var tables = map[domain.Kind]table{
	domain.KindProfile:  {name: "user_profiles", keyColumn: "user_id", timestamp: "created_at"},
	domain.KindProgress: {name: "progress_entries", keyColumn: "dedup_key", timestamp: "migrated_at"},
	domain.KindActivity: {name: "activity_records", keyColumn: "dedup_key", timestamp: "migrated_at"},
	domain.KindGoal:     {name: "study_goals", keyColumn: "dedup_key", timestamp: "migrated_at"},
}

// Repository is the Postgres-backed remote store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Ping checks that the database accepts connections.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
	}
	return nil
}

// FindByKey looks up a migrated row by dedup key.
func (r *Repository) FindByKey(ctx context.Context, kind domain.Kind, key string) (*domain.RemoteRecord, error) {
	t, ok := tables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}

	query := fmt.Sprintf(`SELECT user_id, %s FROM %s WHERE %s=$1`, t.timestamp, t.name, t.keyColumn)
	found := domain.RemoteRecord{Kind: kind, Key: key}
	if err := r.pool.QueryRow(ctx, query, key).Scan(&found.UserID, &found.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError(err)
	}
	return &found, nil
}

// Insert writes the record and its outbox event.
func (r *Repository) Insert(ctx context.Context, record domain.Record) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapError(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	id := uuid.NewString()
	if err = insertRecord(ctx, tx, id, record); err != nil {
		return mapError(err)
	}
	if err = insertOutbox(ctx, tx, id, record); err != nil {
		return mapError(err)
	}
	if err = tx.Commit(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

func insertRecord(ctx context.Context, tx pgx.Tx, id string, record domain.Record) error {
	switch rec := record.(type) {
	case *domain.UserProfile:
		_, err := tx.Exec(ctx, `INSERT INTO user_profiles (user_id, email, created_at) VALUES ($1,$2,$3)`,
			rec.UserID, rec.Email, rec.CreatedAt)
		return err
	case *domain.ProgressEntry:
		topics, err := json.Marshal(nonNil(rec.Topics))
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `INSERT INTO progress_entries (id, user_id, entry_date, minutes, topics, dedup_key)
            VALUES ($1,$2,$3,$4,$5,$6)`,
			id, rec.UserID, rec.Date, rec.Minutes, topics, rec.DedupKey())
		return err
	case *domain.ActivityRecord:
		_, err := tx.Exec(ctx, `INSERT INTO activity_records (id, user_id, activity_type, occurred_at, title, payload, dedup_key)
            VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			id, rec.UserID, string(rec.Type), rec.Date.UTC(), rec.Title, nullIfEmpty(rec.Payload), rec.DedupKey())
		return err
	case *domain.StudyGoal:
		_, err := tx.Exec(ctx, `INSERT INTO study_goals (id, user_id, title, completed, due_date, created_at, dedup_key)
            VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			id, rec.UserID, rec.Title, rec.Completed, nullIfBlank(rec.DueDate), rec.CreatedAt.UTC(), rec.DedupKey())
		return err
	}
	return fmt.Errorf("unsupported record type %T", record)
}

// migratedEvent is the outbox payload for EventUserDataMigrated.
type migratedEvent struct {
	RecordID   string      `json:"record_id"`
	UserID     string      `json:"user_id"`
	Kind       domain.Kind `json:"kind"`
	DedupKey   string      `json:"dedup_key"`
	MigratedAt time.Time   `json:"migrated_at"`
}

func insertOutbox(ctx context.Context, tx pgx.Tx, id string, record domain.Record) error {
	body, err := json.Marshal(migratedEvent{
		RecordID:   id,
		UserID:     record.Owner(),
		Kind:       record.Kind(),
		DedupKey:   record.DedupKey(),
		MigratedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err = tx.Exec(ctx, stmt,
		string(record.Kind()),
		id,
		EventUserDataMigrated,
		TopicUserDataEvents,
		record.Owner(),
		body,
		fmt.Sprintf("%s:%s:%s", record.Kind(), record.DedupKey(), EventUserDataMigrated),
	)
	return err
}

// mapError translates driver errors into the domain sentinels. Integrity violations
// (SQLSTATE class 23) and data exceptions (class 22) reject the write; anything else
// means the store could not serve the call.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, pgErr.ConstraintName)
		case len(pgErr.Code) == 5 && (pgErr.Code[:2] == "23" || pgErr.Code[:2] == "22"):
			return fmt.Errorf("%w: %s", domain.ErrConstraintViolation, pgErr.Message)
		}
	}
	if errors.Is(err, domain.ErrRemoteUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
}

func nonNil(topics []string) []string {
	if topics == nil {
		return []string{}
	}
	return topics
}

func nullIfEmpty(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func nullIfBlank(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
