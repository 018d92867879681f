package repositories

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/lib/pq"
)

// StoreErrorKind classifies credential store failures.
type StoreErrorKind string

const (
	KindHostUnreachable   StoreErrorKind = "host_unreachable"
	KindConnectionRefused StoreErrorKind = "connection_refused"
	KindAuthFailed        StoreErrorKind = "auth_failed"
	KindConnectionLost    StoreErrorKind = "connection_lost"
	KindTimeout           StoreErrorKind = "timeout"
	KindUnknown           StoreErrorKind = "unknown"
)

// StoreError is a classified credential store failure. Err keeps the driver error for logs.
type StoreError struct {
	Kind StoreErrorKind
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: store %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient.
func (e *StoreError) Retryable() bool {
	switch e.Kind {
	case KindConnectionRefused, KindHostUnreachable, KindConnectionLost, KindTimeout:
		return true
	default:
		return false
	}
}

// Classify wraps err in a [StoreError] for op. A nil err stays nil and an existing StoreError is returned as-is.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var se *StoreError
	if errors.As(err, &se) {
		return se
	}
	return &StoreError{Kind: classifyKind(err), Op: op, Err: err}
}

func classifyKind(err error) StoreErrorKind {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 28: invalid authorization specification.
		if pqErr.Code.Class() == "28" {
			return KindAuthFailed
		}
		// Class 08: connection exception.
		if pqErr.Code.Class() == "08" {
			return KindConnectionLost
		}
		return KindUnknown
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return KindConnectionRefused
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return KindHostUnreachable
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE),
		errors.Is(err, driver.ErrBadConn), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return KindConnectionLost
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindHostUnreachable
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return KindHostUnreachable
		}
		return KindConnectionLost
	}

	return KindUnknown
}
