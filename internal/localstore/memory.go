// Package localstore provides LocalStoreReader implementations for the offline store.
package localstore

import (
	"context"
	"fmt"
	"sync"

	"example.com/studysync/internal/domain"
)

// Memory holds local records per user in memory.
type Memory struct {
	mu    sync.RWMutex
	users map[string]domain.LocalRecords
}

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{users: make(map[string]domain.LocalRecords)}
}

// Put replaces everything held for userID.
func (m *Memory) Put(userID string, records domain.LocalRecords) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID] = copyRecords(records)
}

// LoadLocalRecords implements domain.LocalStoreReader.
func (m *Memory) LoadLocalRecords(ctx context.Context, userID string) (*domain.LocalRecords, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records, ok := m.users[userID]
	if !ok || records.Empty() {
		return nil, fmt.Errorf("%w: user %s", domain.ErrLocalNotFound, userID)
	}
	out := copyRecords(records)
	return &out, nil
}

func copyRecords(in domain.LocalRecords) domain.LocalRecords {
	out := domain.LocalRecords{
		Activities: append([]domain.ActivityRecord(nil), in.Activities...),
		Goals:      append([]domain.StudyGoal(nil), in.Goals...),
		Progress:   append([]domain.ProgressEntry(nil), in.Progress...),
	}
	if in.Profile != nil {
		profile := *in.Profile
		out.Profile = &profile
	}
	return out
}
