package replog

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrForbidden         = errors.New("forbidden")
	ErrQuorumNotMet      = errors.New("quorum not met")
	ErrReplicationFailed = errors.New("replication failed")
	ErrTransport         = errors.New("transport failure")
	ErrUnavailable       = errors.New("service unavailable")
)

// OpError decorates one of the sentinel errors with the operation that
// produced it and a human-readable reason for HTTP callers.
type OpError struct {
	Op     string
	Addr   string
	Reason string
	Err    error
}

func (e *OpError) Error() string {
	msg := e.Op
	if e.Addr != "" {
		msg += " " + e.Addr
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s: %v: %s", msg, e.Err, e.Reason)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// NewOpError builds an OpError for op. addr may be empty.
func NewOpError(op, addr string, err error, reason string) *OpError {
	return &OpError{
		Op:     op,
		Addr:   addr,
		Reason: reason,
		Err:    err,
	}
}

// Reason returns the text an HTTP caller should see for err.
func Reason(err error) string {
	var oe *OpError
	if errors.As(err, &oe) && oe.Reason != "" {
		return oe.Reason
	}
	return err.Error()
}

// StatusCode maps err onto the HTTP status returned to clients.
// Quorum failures share 403 with authorization failures, and an unmet write
// concern is reported as 400.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrReplicationFailed):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrQuorumNotMet):
		return http.StatusForbidden
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrTransport):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
