package localstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/studysync/internal/domain"
)

func TestMemoryReturnsNotFound(t *testing.T) {
	store := NewMemory()
	_, err := store.LoadLocalRecords(context.Background(), "nobody")
	require.ErrorIs(t, err, domain.ErrLocalNotFound)

	store.Put("empty", domain.LocalRecords{})
	_, err = store.LoadLocalRecords(context.Background(), "empty")
	require.ErrorIs(t, err, domain.ErrLocalNotFound)
}

func TestMemoryReturnsCopies(t *testing.T) {
	store := NewMemory()
	store.Put("u1", domain.LocalRecords{
		Profile:  &domain.UserProfile{UserID: "u1", Email: "a@x.com"},
		Progress: []domain.ProgressEntry{{Date: "2024-01-01", Minutes: 30}},
	})

	first, err := store.LoadLocalRecords(context.Background(), "u1")
	require.NoError(t, err)
	first.Profile.Email = "changed"
	first.Progress[0].Minutes = 99

	second, err := store.LoadLocalRecords(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, "a@x.com", second.Profile.Email)
	require.Equal(t, 30, second.Progress[0].Minutes)
}
