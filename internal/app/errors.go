package service

import "errors"

// Sentinel kinds for rejected readings and failed queries. The HTTP layer
// maps them to status codes with errors.Is.
var (
	ErrMalformedRequest    = errors.New("malformed request")
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrKeyMismatch         = errors.New("public key does not match registered device key")
	ErrDuplicateReading    = errors.New("duplicate reading")
	ErrUnregisteredDevice  = errors.New("no ghost found for device")
	ErrOracleUnavailable   = errors.New("grid oracle unavailable")
	ErrBackendUnavailable  = errors.New("ledger backend unavailable")
	ErrBackendCommitFailed = errors.New("ledger commit failed")
	ErrNotStarted          = errors.New("service not started")
)

// Rejection reasons, used as metric labels and error codes.
const (
	ReasonMalformed          = "malformed_request"
	ReasonInvalidSignature   = "invalid_signature"
	ReasonKeyMismatch        = "key_mismatch"
	ReasonDuplicate          = "duplicate_reading"
	ReasonNoGhost            = "no_ghost"
	ReasonOracleUnavailable  = "oracle_unavailable"
	ReasonBackendUnavailable = "backend_unavailable"
	ReasonCommitFailed       = "backend_commit_failed"
	ReasonNotStarted         = "not_started"
	ReasonInternal           = "internal_error"
)

// Reason returns the rejection reason for err. Key mismatches also match
// ErrInvalidSignature, so they are checked first.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrMalformedRequest):
		return ReasonMalformed
	case errors.Is(err, ErrKeyMismatch):
		return ReasonKeyMismatch
	case errors.Is(err, ErrInvalidSignature):
		return ReasonInvalidSignature
	case errors.Is(err, ErrDuplicateReading):
		return ReasonDuplicate
	case errors.Is(err, ErrUnregisteredDevice):
		return ReasonNoGhost
	case errors.Is(err, ErrOracleUnavailable):
		return ReasonOracleUnavailable
	case errors.Is(err, ErrBackendUnavailable):
		return ReasonBackendUnavailable
	case errors.Is(err, ErrBackendCommitFailed):
		return ReasonCommitFailed
	case errors.Is(err, ErrNotStarted):
		return ReasonNotStarted
	default:
		return ReasonInternal
	}
}
