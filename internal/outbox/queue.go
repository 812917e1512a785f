package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Message represents a row fetched from outbox.
type Message struct {
	EventID       int64
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	PartitionKey  string
	Payload       json.RawMessage
	Attempts      int
}

// PostgresQueue claims and settles outbox rows. Rows that fail delivery are retried with
// exponential backoff until maxAttempts, after which they stay parked until Requeue.
type PostgresQueue struct {
	pool        *pgxpool.Pool
	maxAttempts int
	baseDelay   time.Duration
}

// NewPostgresQueue constructs a PostgresQueue.
func NewPostgresQueue(pool *pgxpool.Pool, maxAttempts int, baseDelay time.Duration) *PostgresQueue {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &PostgresQueue{pool: pool, maxAttempts: maxAttempts, baseDelay: baseDelay}
}

// FetchAndClaim locks up to limit due rows and marks them claimed.
func (q *PostgresQueue) FetchAndClaim(ctx context.Context, limit int) (messages []Message, err error) {
	tx, err := q.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil || len(messages) == 0 {
			_ = tx.Rollback(ctx)
		}
	}()

	const query = `SELECT event_id, aggregate_type, aggregate_id, event_type, topic, partition_key, payload, attempts
        FROM outbox
        WHERE published_at IS NULL
          AND attempts < $2
          AND (next_attempt_at IS NULL OR next_attempt_at <= NOW())
        ORDER BY event_id
        LIMIT $1
        FOR UPDATE SKIP LOCKED`

	rows, err := tx.Query(ctx, query, limit, q.maxAttempts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0, limit)
	for rows.Next() {
		var msg Message
		if err = rows.Scan(&msg.EventID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Topic, &msg.PartitionKey, &msg.Payload, &msg.Attempts); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
		ids = append(ids, msg.EventID)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, nil
	}
	if _, err = tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, ids); err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkPublished settles delivered rows.
func (q *PostgresQueue) MarkPublished(ctx context.Context, ids []int64) error {
	_, err := q.pool.Exec(ctx, `UPDATE outbox SET published_at = NOW(), last_error = NULL WHERE event_id = ANY($1)`, ids)
	return err
}

// MarkFailed records a failed attempt and schedules the next one.
func (q *PostgresQueue) MarkFailed(ctx context.Context, messages []Message, reason string) error {
	batch := &pgx.Batch{}
	for _, msg := range messages {
		batch.Queue(`UPDATE outbox
               SET attempts = attempts + 1,
                   claimed_at = NULL,
                   next_attempt_at = NOW() + $1::interval,
                   last_error = $2
             WHERE event_id = $3`,
			q.backoffDelay(msg.Attempts+1), reason, msg.EventID)
	}
	return q.pool.SendBatch(ctx, batch).Close()
}

// Requeue resets parked rows so the dispatcher picks them up again. It returns the number
// of rows reset.
func (q *PostgresQueue) Requeue(ctx context.Context) (int64, error) {
	tag, err := q.pool.Exec(ctx, `UPDATE outbox
           SET attempts = 0, next_attempt_at = NULL, claimed_at = NULL
         WHERE published_at IS NULL AND attempts >= $1`, q.maxAttempts)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// backoffDelay calculates exponential backoff capped at one hour.
func (q *PostgresQueue) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 12 {
		return time.Hour
	}
	delay := time.Duration(1<<uint(attempt-1)) * q.baseDelay
	if delay > time.Hour {
		delay = time.Hour
	}
	return delay
}
