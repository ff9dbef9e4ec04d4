// Package registry defines the gateway to the PROD and UAT subscriber
// registries: the record types, the status taxonomy and the transactional
// session contract that the store packages implement.
package registry

import (
	"context"
	"errors"
	"fmt"

	"simrelease/pkg/platform/sentinel"
)

// ErrConnection is returned when a registry cannot be reached or is not
// configured. It wraps sentinel.ErrUnavailable.
var ErrConnection = fmt.Errorf("registry connection: %w", sentinel.ErrUnavailable)

// ConnectionError attaches the environment and cause to ErrConnection.
func ConnectionError(env Environment, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrConnection, env, cause)
}

// IsConnectionError reports whether err came from opening a session.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnection)
}

// Session is a scoped, transactional view of one registry. Reads see the
// session's own uncommitted writes. Close must be called on every exit path;
// it rolls back anything not committed and releases the connection.
//
// Lookups return (nil, nil) when the row does not exist.
type Session interface {
	Environment() Environment

	FindStorageMedium(ctx context.Context, serial string) (*StorageMedium, error)
	FindPort(ctx context.Context, mediumID int64) (*Port, error)

	// ReleaseStorageMedium and ReleasePort apply the fixed release mutation.
	// Reapplying them to released rows is harmless.
	ReleaseStorageMedium(ctx context.Context, serial string) error
	ReleasePort(ctx context.Context, mediumID int64) error

	// FindProvisioning returns the AUC key material for serial, one entry per
	// linked port. An empty result is not an error.
	FindProvisioning(ctx context.Context, serial string) ([]AucProvisioning, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close(ctx context.Context) error
}

// QueueSession is a session on a registry that owns creation and correction
// queues (UAT). The procedures are opaque: callers re-read the record to see
// what they did.
type QueueSession interface {
	Session
	EnqueueCreate(ctx context.Context, serial string) error
	EnqueueUpdate(ctx context.Context, serial string) error
	RunCreateProcedure(ctx context.Context) error
	RunUpdateProcedure(ctx context.Context) error
}

// Opener opens sessions. Implementations fail with ErrConnection when the
// environment is unset or unreachable.
type Opener interface {
	Open(ctx context.Context, env Environment) (Session, error)
}

// OpenQueue opens a session and asserts it supports the queue operations.
func OpenQueue(ctx context.Context, o Opener, env Environment) (QueueSession, error) {
	s, err := o.Open(ctx, env)
	if err != nil {
		return nil, err
	}
	qs, ok := s.(QueueSession)
	if !ok {
		_ = s.Close(ctx)
		return nil, ConnectionError(env, errors.New("registry does not expose creation queues"))
	}
	return qs, nil
}
