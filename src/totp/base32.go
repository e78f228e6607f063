package totp

import (
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// ErrInvalidSecret matches any *InvalidSecretError via errors.Is.
var ErrInvalidSecret = errors.New("totp: invalid base32 secret")

// InvalidSecretError reports a secret character outside the RFC 4648 alphabet.
// It means the stored secret is corrupt.
type InvalidSecretError struct {
	Char   rune
	Offset int
}

func (e *InvalidSecretError) Error() string {
	return fmt.Sprintf("totp: invalid base32 character %q at offset %d", e.Char, e.Offset)
}

func (e *InvalidSecretError) Is(target error) bool {
	return target == ErrInvalidSecret
}

func encodeSecret(b []byte) string {
	return base32.StdEncoding.EncodeToString(b)
}

// decodeSecret strips whitespace and trailing padding, upper-cases, then
// decodes. Trailing bits that do not fill a byte are dropped, so unpadded
// secrets of any length decode.
func decodeSecret(secret string) ([]byte, error) {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, secret)
	s = strings.TrimRight(strings.ToUpper(s), "=")

	out := make([]byte, 0, len(s)*5/8)
	var buf uint32
	var bits uint
	for i, r := range s {
		v := strings.IndexRune(alphabet, r)
		if v < 0 {
			return nil, &InvalidSecretError{Char: r, Offset: i}
		}
		buf = buf<<5 | uint32(v)
		bits += 5
		if bits >= 8 {
			bits -= 8
			out = append(out, byte(buf>>bits))
			buf &= 1<<bits - 1
		}
	}
	return out, nil
}
