// Package logging provides the configured zerolog logger shared by the binaries.
package logging

import (
	"io"
	"os"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	zpkgerrors "github.com/rs/zerolog/pkgerrors"
)

var stackOnce sync.Once

// New returns a JSON logger for service writing to stdout at the given level.
// Call sites use .Stack() on error events to include stacks.
func New(service, level string) (zerolog.Logger, error) {
	return NewWithWriter(os.Stdout, service, level)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, service, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	stackOnce.Do(func() {
		zerolog.ErrorStackMarshaler = func(err error) interface{} {
			type stackTracer interface{ StackTrace() pkgerrors.StackTrace }
			if _, ok := err.(stackTracer); !ok {
				err = pkgerrors.WithStack(err)
			}
			return zpkgerrors.MarshalStack(err)
		}
	})

	return zerolog.New(w).Level(lvl).With().
		Str("service", service).
		Timestamp().
		Logger(), nil
}
