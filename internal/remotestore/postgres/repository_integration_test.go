//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/studysync/internal/domain"
	"example.com/studysync/internal/localstore"
	"example.com/studysync/internal/reconcile"
)

func TestRepositoryEnforcesDedupKeys(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t, ctx)
	repo := NewRepository(pool)

	require.NoError(t, repo.Ping(ctx))

	profile := &domain.UserProfile{UserID: "u1", Email: "a@x.com", CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.Insert(ctx, profile))
	require.ErrorIs(t, repo.Insert(ctx, profile), domain.ErrAlreadyExists)

	found, err := repo.FindByKey(ctx, domain.KindProfile, "u1")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, "u1", found.UserID)

	entry := &domain.ProgressEntry{UserID: "u1", Date: "2024-01-01", Minutes: 30, Topics: []string{"biology"}}
	missing, err := repo.FindByKey(ctx, domain.KindProgress, entry.DedupKey())
	require.NoError(t, err)
	require.Nil(t, missing)

	require.NoError(t, repo.Insert(ctx, entry))
	require.ErrorIs(t, repo.Insert(ctx, entry), domain.ErrAlreadyExists)

	orphan := &domain.StudyGoal{UserID: "nobody", Title: "Orphan", CreatedAt: time.Now().UTC()}
	require.ErrorIs(t, repo.Insert(ctx, orphan), domain.ErrConstraintViolation)

	var events int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE event_type=$1`, EventUserDataMigrated).Scan(&events))
	require.Equal(t, 2, events, "failed inserts must not leave outbox rows")
}

func TestReconcileAgainstPostgres(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t, ctx)

	local := localstore.NewMemory()
	local.Put("u1", domain.LocalRecords{
		Profile: &domain.UserProfile{UserID: "u1", Email: "a@x.com"},
		Activities: []domain.ActivityRecord{
			{Type: domain.ActivitySummary, Date: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), Title: "Notes", Payload: json.RawMessage(`{"words":120}`)},
		},
		Goals:    []domain.StudyGoal{{Title: "Chapter 3", DueDate: "2024-02-01", CreatedAt: time.Now().UTC()}},
		Progress: []domain.ProgressEntry{{Date: "2024-01-01", Minutes: 30}},
	})
	rec := reconcile.New(local, NewRepository(pool), reconcile.WithConcurrency(2))

	first, err := rec.Reconcile(ctx, "u1")
	require.NoError(t, err)
	require.True(t, first.Success)
	require.Equal(t, 4, first.Totals().Inserted)

	second, err := rec.Reconcile(ctx, "u1")
	require.NoError(t, err)
	require.True(t, second.Success)
	require.Equal(t, 4, second.Totals().Skipped)
}

func startPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("studysync"),
		postgrescontainer.WithUsername("studysync"),
		postgrescontainer.WithPassword("studysync"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	runMigrations(t, ctx, pool)
	return pool
}

func runMigrations(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	contents, err := os.ReadFile(resolvePath(t, "../../../db/postgres/migrations/0001_init.up.sql"))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(contents))
	require.NoError(t, err)
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
