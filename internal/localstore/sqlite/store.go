package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"example.com/studysync/internal/domain"
)

// Store implements domain.LocalStoreReader over the offline SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database. The schema must already exist (see Open).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// LoadLocalRecords implements domain.LocalStoreReader. Rows come back in insertion order.
func (s *Store) LoadLocalRecords(ctx context.Context, userID string) (*domain.LocalRecords, error) {
	var out domain.LocalRecords

	profile, err := s.loadProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	out.Profile = profile

	if out.Activities, err = s.loadActivities(ctx, userID); err != nil {
		return nil, fmt.Errorf("load activities: %w", err)
	}
	if out.Goals, err = s.loadGoals(ctx, userID); err != nil {
		return nil, fmt.Errorf("load goals: %w", err)
	}
	if out.Progress, err = s.loadProgress(ctx, userID); err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	if out.Empty() {
		return nil, fmt.Errorf("%w: user %s", domain.ErrLocalNotFound, userID)
	}
	return &out, nil
}

func (s *Store) loadProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT user_id, email, created_at FROM profiles WHERE user_id = ?`, userID)
	var p domain.UserProfile
	if err := row.Scan(&p.UserID, &p.Email, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) loadActivities(ctx context.Context, userID string) ([]domain.ActivityRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, activity_type, occurred_at, title, payload FROM activities WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ActivityRecord
	for rows.Next() {
		var (
			a        domain.ActivityRecord
			typ      string
			occurred sql.NullTime
			payload  sql.NullString
		)
		if err := rows.Scan(&a.UserID, &typ, &occurred, &a.Title, &payload); err != nil {
			return nil, err
		}
		a.Type = domain.ActivityType(typ)
		if occurred.Valid {
			a.Date = occurred.Time.UTC()
		}
		if payload.Valid && payload.String != "" {
			a.Payload = json.RawMessage(payload.String)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) loadGoals(ctx context.Context, userID string) ([]domain.StudyGoal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, title, completed, due_date, created_at FROM goals WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StudyGoal
	for rows.Next() {
		var (
			g       domain.StudyGoal
			due     sql.NullString
			created sql.NullTime
		)
		if err := rows.Scan(&g.UserID, &g.Title, &g.Completed, &due, &created); err != nil {
			return nil, err
		}
		g.DueDate = due.String
		if created.Valid {
			g.CreatedAt = created.Time.UTC()
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) loadProgress(ctx context.Context, userID string) ([]domain.ProgressEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, entry_date, minutes, topics FROM progress WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ProgressEntry
	for rows.Next() {
		var (
			e      domain.ProgressEntry
			topics sql.NullString
		)
		if err := rows.Scan(&e.UserID, &e.Date, &e.Minutes, &topics); err != nil {
			return nil, err
		}
		if topics.Valid && topics.String != "" {
			if err := json.Unmarshal([]byte(topics.String), &e.Topics); err != nil {
				return nil, fmt.Errorf("decode topics for %s: %w", e.Date, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Save appends records for userID. The profile is upserted. It is used by the app
// while offline and by seeding tools; the reconciler only reads.
func (s *Store) Save(ctx context.Context, userID string, records domain.LocalRecords) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if p := records.Profile; p != nil {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO profiles (user_id, email, created_at) VALUES (?,?,?)
             ON CONFLICT(user_id) DO UPDATE SET email = excluded.email`,
			userID, p.Email, p.CreatedAt.UTC()); err != nil {
			return err
		}
	}
	for _, a := range records.Activities {
		var occurred any
		if !a.Date.IsZero() {
			occurred = a.Date.UTC()
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO activities (user_id, activity_type, occurred_at, title, payload) VALUES (?,?,?,?,?)`,
			userID, string(a.Type), occurred, a.Title, nullIfEmpty(string(a.Payload))); err != nil {
			return err
		}
	}
	for _, g := range records.Goals {
		var created any
		if !g.CreatedAt.IsZero() {
			created = g.CreatedAt.UTC()
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO goals (user_id, title, completed, due_date, created_at) VALUES (?,?,?,?,?)`,
			userID, g.Title, g.Completed, nullIfEmpty(g.DueDate), created); err != nil {
			return err
		}
	}
	for _, e := range records.Progress {
		var topics any
		if len(e.Topics) > 0 {
			raw, marshalErr := json.Marshal(e.Topics)
			if marshalErr != nil {
				return marshalErr
			}
			topics = string(raw)
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO progress (user_id, entry_date, minutes, topics) VALUES (?,?,?,?)`,
			userID, e.Date, e.Minutes, topics); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UserIDs lists every user with at least one local row.
func (s *Store) UserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM profiles
        UNION SELECT user_id FROM activities
        UNION SELECT user_id FROM goals
        UNION SELECT user_id FROM progress
        ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
