package api

import (
	"errors"
	"fmt"
	"time"
)

// ConnectionError reports that the backend could not be reached at all.
type ConnectionError struct {
	Cause error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %v", e.Cause)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// TimeoutError reports that a call exceeded the per-request budget and was aborted.
type TimeoutError struct {
	Method string
	Path   string
	After  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timeout: %s %s after %s", e.Method, e.Path, e.After)
}

// ProtocolError reports a body that is not valid JSON.
type ProtocolError struct {
	RawPrefix string
	Cause     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("invalid JSON response: %s", e.RawPrefix)
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

// RemoteError reports a non-2xx status. Message is the server-supplied
// detail when present, otherwise "HTTP <status>".
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// ErrorKind names the taxonomy bucket of err, used for metrics labels and logs.
func ErrorKind(err error) string {
	var (
		connErr     *ConnectionError
		timeoutErr  *TimeoutError
		protocolErr *ProtocolError
		remoteErr   *RemoteError
	)
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &connErr):
		return "connection"
	case errors.As(err, &protocolErr):
		return "protocol"
	case errors.As(err, &remoteErr):
		return "remote"
	default:
		return "other"
	}
}

func IsTimeout(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}

func IsConnection(err error) bool {
	var target *ConnectionError
	return errors.As(err, &target)
}
