package signature

import "errors"

// Sentinel kinds for verification failures. Verify collapses them to false;
// Check returns them for logging.
var (
	ErrUnsupportedProtocol = errors.New("unsupported protocol version")
	ErrMalformedSignature  = errors.New("malformed signature encoding")
	ErrMalformedKey        = errors.New("malformed public key")
	ErrUnsupportedKey      = errors.New("unsupported public key type")
	ErrHashMismatch        = errors.New("declared hash does not match payload")
	ErrSignatureMismatch   = errors.New("signature does not match payload")
)
