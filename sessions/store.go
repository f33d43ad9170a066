package sessions

import (
	"context"

	"github.com/pkg/errors"
)

// ErrStorageUnavailable marks storage I/O failures. Implementations wrap it
// so callers can tell "the store broke" from "no session stored"; the two
// must never be conflated.
var ErrStorageUnavailable = errors.New("session storage unavailable")

// Store persists the current session record under a single fixed key.
//
// Get returns (nil, nil) when no record is stored. Put replaces the whole
// record atomically; a concurrent Get never observes a torn value. Clear is
// idempotent.
type Store interface {
	Get(ctx context.Context) (*Record, error)
	Put(ctx context.Context, record *Record) error
	Clear(ctx context.Context) error
}
