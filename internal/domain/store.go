// Package domain defines the user-data model and the storage contracts of the reconciler.
package domain

import "context"

// LocalStoreReader exposes the offline store. Implementations return ErrLocalNotFound when
// nothing is held for the user.
type LocalStoreReader interface {
	LoadLocalRecords(ctx context.Context, userID string) (*LocalRecords, error)
}

// RemoteStore is the durable store records are migrated into.
type RemoteStore interface {
	// Ping reports ErrRemoteUnavailable when the store cannot be reached at all.
	Ping(ctx context.Context) error
	// FindByKey returns nil, nil when no row exists for key.
	FindByKey(ctx context.Context, kind Kind, key string) (*RemoteRecord, error)
	// Insert returns ErrAlreadyExists when key is taken and ErrConstraintViolation when
	// the write is rejected for any other reason.
	Insert(ctx context.Context, record Record) error
}
