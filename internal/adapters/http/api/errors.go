package api

import (
	"errors"
	"fmt"
	"net/http"

	service "github.com/okian/ghostrelay/internal/app"
)

// Sentinel kinds for API errors.
var (
	ErrServe            = errors.New("request failed")
	ErrBadRequest       = errors.New("bad request")
	ErrMethodNotAllowed = errors.New("method not allowed")

	ErrMissingPowerUsage    = fmt.Errorf("%w: powerUsage is required", ErrBadRequest)
	ErrMissingDeviceAddress = fmt.Errorf("%w: device address is required", ErrBadRequest)
)

// kindError tags an error with the operation that failed and a sentinel kind
// callers can match with errors.Is.
type kindError struct {
	op   string
	kind error
	err  error
}

func (e *kindError) Error() string {
	if e.err == nil {
		return e.kind.Error()
	}
	return fmt.Sprintf("%s: %v", e.kind, e.err)
}

func (e *kindError) Unwrap() []error {
	if e.err == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.err}
}

// Op returns the operation tag, e.g. "api.post_reading".
func (e *kindError) Op() string { return e.op }

// WrapKind wraps err with a sentinel kind and an operation tag.
func WrapKind(op string, kind, err error) error {
	return &kindError{op: op, kind: kind, err: err}
}

// NewKind returns a bare sentinel kind tagged with an operation.
func NewKind(op string, kind error) error {
	return &kindError{op: op, kind: kind}
}

// opOf returns the operation tag of err, if any.
func opOf(err error) string {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.op
	}
	return ""
}

// classify maps a service error to an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, service.ErrMalformedRequest):
		return http.StatusBadRequest, service.ReasonMalformed
	case errors.Is(err, service.ErrInvalidSignature):
		return http.StatusBadRequest, service.ReasonInvalidSignature
	case errors.Is(err, service.ErrUnregisteredDevice):
		return http.StatusNotFound, service.ReasonNoGhost
	case errors.Is(err, service.ErrDuplicateReading):
		return http.StatusConflict, service.ReasonDuplicate
	case errors.Is(err, service.ErrOracleUnavailable):
		return http.StatusInternalServerError, service.ReasonOracleUnavailable
	case errors.Is(err, service.ErrBackendCommitFailed):
		return http.StatusInternalServerError, service.ReasonCommitFailed
	case errors.Is(err, service.ErrBackendUnavailable):
		return http.StatusInternalServerError, service.ReasonBackendUnavailable
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, service.ReasonNotStarted
	default:
		return http.StatusInternalServerError, service.ReasonInternal
	}
}

// publicMessage hides backend detail from 5xx responses and strips the
// ErrServe tag from client errors.
func publicMessage(status int, err error) error {
	if status < http.StatusInternalServerError {
		var ke *kindError
		if errors.As(err, &ke) && ke.kind == ErrServe && ke.err != nil {
			return ke.err
		}
		return err
	}
	for _, kind := range []error{
		service.ErrOracleUnavailable,
		service.ErrBackendCommitFailed,
		service.ErrBackendUnavailable,
		service.ErrNotStarted,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return errors.New(http.StatusText(status))
}
