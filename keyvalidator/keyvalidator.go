// Package keyvalidator enforces the key charset, length, and case-fold
// rules from spec §3 and §4.1: valid keys are 1..255 bytes of ASCII
// letters and digits, normalized by lower-casing ASCII letters. Any byte
// >= 0x80 is rejected rather than silently folded.
package keyvalidator

import (
	"github.com/intellect4all/triekv/common"
)

const (
	// MaxKeyLen is the largest accepted normalized key length, in bytes.
	MaxKeyLen = 255
	// MaxValueLen is the largest accepted value, in bytes (32 KiB).
	MaxValueLen = 32768
)

// Validate normalizes raw and rejects it if empty, too long, or containing
// any non-ASCII-alphanumeric byte. The returned string is the normalized
// (lower-cased) key.
func Validate(raw []byte) (string, error) {
	n := len(raw)
	if n == 0 || n > MaxKeyLen {
		return "", common.ErrInvalidKey
	}

	out := make([]byte, n)
	for i, b := range raw {
		switch {
		case b >= '0' && b <= '9':
			out[i] = b
		case b >= 'a' && b <= 'z':
			out[i] = b
		case b >= 'A' && b <= 'Z':
			out[i] = b + ('a' - 'A')
		default:
			return "", common.ErrInvalidKey
		}
	}
	return string(out), nil
}

// NormalizeBound applies the same case-fold/charset rule as Validate to a
// range endpoint, but leaves an empty string unchanged rather than
// rejecting it: handleRange passes "" for a start_key/end_key query
// parameter that was never supplied, and that sentinel must survive
// normalization undisturbed (spec §4.6 range scan).
func NormalizeBound(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	return Validate([]byte(raw))
}

// ValidateValue rejects values over the documented cap. Empty values are
// legal (PUT with a zero-length body).
func ValidateValue(v []byte) error {
	if len(v) > MaxValueLen {
		return common.ErrValueTooLarge
	}
	return nil
}
