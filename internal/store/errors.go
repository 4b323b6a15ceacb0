package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrNotFound is returned by Get* methods when no row matches.
	ErrNotFound = errors.New("not found")

	// ErrTransient marks failures worth retrying: lost connections, pool
	// exhaustion, serialization conflicts, per-call timeouts.
	ErrTransient = errors.New("transient storage failure")

	// ErrFatal marks failures the scheduler must not survive, such as a
	// failed schema migration.
	ErrFatal = errors.New("fatal storage failure")
)

// Transient wraps err so that IsTransient reports true for it.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Fatal wraps err so that IsFatal reports true for it.
func Fatal(err error) error {
	if err == nil || errors.Is(err, ErrFatal) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFatal, err)
}

// IsTransient reports whether err is marked as transient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsFatal reports whether err is marked as fatal.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// ClassifyCommon marks the driver-independent transient failures: bad pooled
// connections, network errors and deadline expiry. Callers layer
// driver-specific rules on top.
func ClassifyCommon(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr):
		return Transient(err)
	}
	return err
}
