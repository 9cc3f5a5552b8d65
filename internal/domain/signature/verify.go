package signature

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/okian/ghostrelay/internal/domain/model"
)

// Verify reports whether signature is a valid signature over payload under the
// given protocol version and PEM key. It never panics.
func Verify(version model.ProtocolVersion, payload []byte, signature, publicKeyPEM string) bool {
	pub, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return false
	}
	return CheckWithKey(version, payload, signature, "", pub) == nil
}

// Check verifies a reading against the key it carries and returns the reason
// for a failure.
func Check(r model.DeviceReading) error {
	pub, err := ParsePublicKey(r.PublicKey)
	if err != nil {
		return err
	}
	return CheckWithKey(r.Protocol, CanonicalPayload(r.Timestamp, r.PowerUsageWatts), r.Signature, r.Hash, pub)
}

// CheckWithKey verifies a signature over payload with an already parsed key.
// declaredHash is only consulted for version 1, where it must equal HashHex(payload).
func CheckWithKey(version model.ProtocolVersion, payload []byte, signature, declaredHash string, pub crypto.PublicKey) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSignatureMismatch, r)
		}
	}()

	message, sig, err := decode(version, payload, signature, declaredHash)
	if err != nil {
		return err
	}
	return verifyMessage(pub, message, sig)
}

// decode returns the exact bytes the device signed and the raw signature.
func decode(version model.ProtocolVersion, payload []byte, signature, declaredHash string) ([]byte, []byte, error) {
	switch version {
	case model.ProtocolV2:
		sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "0x"))
		if err != nil || len(sig) == 0 {
			return nil, nil, ErrMalformedSignature
		}
		return Digest(payload), sig, nil
	case model.ProtocolV1:
		sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
		if err != nil || len(sig) == 0 {
			return nil, nil, ErrMalformedSignature
		}
		hashHex := HashHex(payload)
		if declaredHash != "" && !strings.EqualFold(declaredHash, hashHex) {
			return nil, nil, ErrHashMismatch
		}
		return []byte(hashHex), sig, nil
	default:
		return nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedProtocol, version)
	}
}

func verifyMessage(pub crypto.PublicKey, message, sig []byte) error {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		h := sha256.Sum256(message)
		if rsa.VerifyPKCS1v15(k, crypto.SHA256, h[:], sig) != nil {
			return ErrSignatureMismatch
		}
	case *ecdsa.PublicKey:
		h := sha256.Sum256(message)
		if !ecdsa.VerifyASN1(k, h[:], sig) {
			return ErrSignatureMismatch
		}
	case ed25519.PublicKey:
		if len(k) != ed25519.PublicKeySize || !ed25519.Verify(k, message, sig) {
			return ErrSignatureMismatch
		}
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedKey, pub)
	}
	return nil
}
