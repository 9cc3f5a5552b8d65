package signature

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"

	"github.com/okian/ghostrelay/internal/domain/model"
)

// Signed is a device-side signature over a reading.
type Signed struct {
	Signature string // hex for v2, base64 for v1
	Hash      string // v1 only
}

// Sign produces the device-side signature for a reading, matching what Check
// expects for the given protocol version.
func Sign(version model.ProtocolVersion, timestamp string, powerUsage int64, priv crypto.Signer) (Signed, error) {
	payload := CanonicalPayload(timestamp, powerUsage)

	var message []byte
	switch version {
	case model.ProtocolV2:
		message = Digest(payload)
	case model.ProtocolV1:
		message = []byte(HashHex(payload))
	default:
		return Signed{}, fmt.Errorf("%w: %d", ErrUnsupportedProtocol, version)
	}

	sig, err := signMessage(priv, message)
	if err != nil {
		return Signed{}, err
	}

	if version == model.ProtocolV1 {
		return Signed{Signature: base64.StdEncoding.EncodeToString(sig), Hash: string(message)}, nil
	}
	return Signed{Signature: hex.EncodeToString(sig)}, nil
}

func signMessage(priv crypto.Signer, message []byte) ([]byte, error) {
	switch k := priv.(type) {
	case *rsa.PrivateKey:
		h := sha256.Sum256(message)
		return rsa.SignPKCS1v15(rand.Reader, k, crypto.SHA256, h[:])
	case *ecdsa.PrivateKey:
		h := sha256.Sum256(message)
		return ecdsa.SignASN1(rand.Reader, k, h[:])
	case ed25519.PrivateKey:
		return ed25519.Sign(k, message), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, priv)
	}
}

// EncodePublicKey renders a public key as a PKIX "PUBLIC KEY" PEM block.
func EncodePublicKey(pub crypto.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedKey, err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: pemPublicKey, Bytes: der})), nil
}

// EncodeRSAPublicKeyPKCS1 renders an RSA key as an "RSA PUBLIC KEY" PEM block.
func EncodeRSAPublicKeyPKCS1(pub *rsa.PublicKey) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: pemRSAPublicKey, Bytes: x509.MarshalPKCS1PublicKey(pub)}))
}
