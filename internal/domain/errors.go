package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrLocalNotFound is returned by a LocalStoreReader that holds nothing for the user.
	ErrLocalNotFound = errors.New("local records not found")
	// ErrRemoteUnavailable indicates the remote store could not be reached.
	ErrRemoteUnavailable = errors.New("remote store unavailable")
	// ErrAlreadyExists is returned by Insert when the dedup key is already taken.
	ErrAlreadyExists = errors.New("remote record already exists")
	// ErrConstraintViolation is returned by Insert when the remote rejects the write for any other reason.
	ErrConstraintViolation = errors.New("remote constraint violation")
	// ErrMalformedRecord marks a local record missing required fields.
	ErrMalformedRecord = errors.New("malformed local record")
	// ErrKeyLocked is returned when another pass holds the lease for a dedup key.
	ErrKeyLocked = errors.New("dedup key held by concurrent pass")
)

// ErrorKind is the reconciliation error taxonomy.
type ErrorKind string

const (
	LocalUnavailable     ErrorKind = "LocalUnavailable"
	RemoteUnavailable    ErrorKind = "RemoteUnavailable"
	RecordConflict       ErrorKind = "RecordConflict"
	MalformedLocalRecord ErrorKind = "MalformedLocalRecord"
)

// Classify maps an error to its ErrorKind. Timeouts, ErrRemoteUnavailable and any error it
// does not recognise are RemoteUnavailable.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLocalNotFound):
		return LocalUnavailable
	case errors.Is(err, ErrMalformedRecord):
		return MalformedLocalRecord
	case errors.Is(err, ErrConstraintViolation), errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrKeyLocked):
		return RecordConflict
	}
	return RemoteUnavailable
}

func malformed(kind Kind, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformedRecord, kind, fmt.Sprintf(format, args...))
}
