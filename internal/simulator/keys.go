package simulator

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/okian/ghostrelay/internal/domain/signature"
)

const (
	keyBits             = 2048
	privateKeyFile      = "private.pem"
	publicKeyFile       = "public.pem"
	directoryPermission = 0o750
	privateKeyPerm      = 0o600
	publicKeyPerm       = 0o644
)

// ErrInvalidKeyFile reports an unreadable device key.
var ErrInvalidKeyFile = errors.New("invalid device key file")

// DeviceKey is a device's signing key and the PEM it registers with.
type DeviceKey struct {
	Private   *rsa.PrivateKey
	PublicPEM string
}

// LoadOrCreateKey reads dir/deviceID/private.pem, or generates an RSA-2048
// key and stores it as PKCS#8 with a PKIX public key beside it. created
// reports whether a new key was written.
func LoadOrCreateKey(dir, deviceID string) (key DeviceKey, created bool, err error) {
	devicePath := filepath.Join(dir, deviceID)
	privPath := filepath.Join(devicePath, privateKeyFile)

	raw, err := os.ReadFile(privPath)
	switch {
	case err == nil:
		k, err := parsePrivateKey(raw)
		if err != nil {
			return DeviceKey{}, false, fmt.Errorf("%s: %w", privPath, err)
		}
		pub, err := signature.EncodePublicKey(&k.PublicKey)
		if err != nil {
			return DeviceKey{}, false, err
		}
		return DeviceKey{Private: k, PublicPEM: pub}, false, nil
	case !errors.Is(err, os.ErrNotExist):
		return DeviceKey{}, false, fmt.Errorf("read %s: %w", privPath, err)
	}

	k, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return DeviceKey{}, false, fmt.Errorf("generate device key: %w", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(k)
	if err != nil {
		return DeviceKey{}, false, fmt.Errorf("encode device key: %w", err)
	}
	pub, err := signature.EncodePublicKey(&k.PublicKey)
	if err != nil {
		return DeviceKey{}, false, err
	}

	if err := os.MkdirAll(devicePath, directoryPermission); err != nil {
		return DeviceKey{}, false, fmt.Errorf("create key folder: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(privPath, privPEM, privateKeyPerm); err != nil {
		return DeviceKey{}, false, fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(filepath.Join(devicePath, publicKeyFile), []byte(pub), publicKeyPerm); err != nil {
		return DeviceKey{}, false, fmt.Errorf("write public key: %w", err)
	}
	return DeviceKey{Private: k, PublicPEM: pub}, true, nil
}

// parsePrivateKey accepts PKCS#8 and PKCS#1 RSA keys.
func parsePrivateKey(raw []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrInvalidKeyFile)
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFile, err)
		}
		return k, nil
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFile, err)
		}
		rk, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: %T is not an RSA key", ErrInvalidKeyFile, k)
		}
		return rk, nil
	default:
		return nil, fmt.Errorf("%w: unexpected PEM type %q", ErrInvalidKeyFile, block.Type)
	}
}
