// Package checksum implements the "<algorithm>:<hex-digest>" checksum format
// used to verify plugin artifacts. Only sha256 is supported.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Algorithm is the only digest algorithm accepted in checksum strings.
const Algorithm = "sha256"

// Parse splits a checksum string into its algorithm and hex digest.
// Anything other than exactly one ':' separator or an unsupported algorithm
// token is a hard error.
func Parse(s string) (algorithm, digest string, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid checksum format: %q", s)
	}
	if parts[0] != Algorithm {
		return "", "", fmt.Errorf("unsupported checksum algorithm: %q", parts[0])
	}
	// hex.DecodeString tolerates uppercase; the format does not.
	if parts[1] != strings.ToLower(parts[1]) {
		return "", "", fmt.Errorf("invalid checksum digest %q: digest must be lowercase hex", parts[1])
	}
	if _, err := hex.DecodeString(parts[1]); err != nil {
		return "", "", fmt.Errorf("invalid checksum digest %q: %w", parts[1], err)
	}
	return parts[0], parts[1], nil
}

// Sum returns the checksum string for data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return Algorithm + ":" + hex.EncodeToString(h[:])
}

// Verify checks data against an expected checksum string. A mismatch is an
// error carrying both digests so it can be surfaced to the user verbatim.
func Verify(data []byte, expected string) error {
	_, want, err := Parse(expected)
	if err != nil {
		return err
	}

	h := sha256.Sum256(data)
	got := hex.EncodeToString(h[:])
	if got != want {
		return fmt.Errorf("checksum mismatch: expected sha256:%s, got sha256:%s", want, got)
	}
	return nil
}
