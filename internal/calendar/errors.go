package calendar

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"google.golang.org/api/googleapi"
)

// Kind classifies gateway failures so callers can branch without knowing the
// vendor's HTTP client.
type Kind int

const (
	KindUnknown Kind = iota
	KindTimeout
	KindUnavailable
	KindNotFound
	KindConflictUnresolved
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindUnavailable:
		return "unavailable"
	case KindNotFound:
		return "not_found"
	case KindConflictUnresolved:
		return "conflict_unresolved"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// ErrConflictUnresolved means an event with the idempotency key exists but
// could not be located.
var ErrConflictUnresolved = errors.New("calendar: idempotency conflict unresolved")

// Error is returned by every gateway implementation.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("calendar: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind from err. nil yields KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return classifyKind(err)
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return err
	}
	return &Error{Op: op, Kind: classifyKind(err), Err: err}
}

func classifyKind(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	switch statusCode(err) {
	case http.StatusNotFound, http.StatusGone:
		return KindNotFound
	case http.StatusBadRequest, http.StatusForbidden, http.StatusUnauthorized:
		return KindInvalid
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return KindUnavailable
	}
	return KindUnknown
}

func statusCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
