// Package signature verifies device-signed readings.
//
// Devices sign the compact JSON {"timestamp":...,"powerUsage":...} with the
// fields in that order. Version 2 signs the raw SHA-256 digest of that payload;
// version 1 signs its lowercase hex form and submits the hex alongside.
package signature

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

type canonicalReading struct {
	Timestamp  string `json:"timestamp"`
	PowerUsage int64  `json:"powerUsage"`
}

// CanonicalPayload serialises the signed fields of a reading.
func CanonicalPayload(timestamp string, powerUsage int64) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoding a struct of a string and an int64 cannot fail.
	_ = enc.Encode(canonicalReading{Timestamp: timestamp, PowerUsage: powerUsage})
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
}

// Digest returns SHA-256 of the payload.
func Digest(payload []byte) []byte {
	sum := sha256.Sum256(payload)
	return sum[:]
}

// HashHex returns the lowercase hex SHA-256 of the payload, the v1 "hash" field.
func HashHex(payload []byte) string {
	return hex.EncodeToString(Digest(payload))
}
