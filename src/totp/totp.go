// Package totp implements RFC 6238 time-based one-time passwords with the
// parameters authenticator apps expect: HMAC-SHA1, 6 digits, 30 second steps.
//
// The package holds no state. Enrollment status and secret storage belong to
// the caller.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"time"
)

const (
	DefaultPeriod = 30
	DefaultDigits = 6
	DefaultWindow = 1

	// SecretSize is the number of random bytes in a generated secret (160 bits).
	SecretSize = 20

	maxDigits = 10
)

var pow10 = [maxDigits + 1]uint64{1, 10, 100, 1e3, 1e4, 1e5, 1e6, 1e7, 1e8, 1e9, 1e10}

// Opts controls code generation and validation. A zero Period or Digits
// falls back to the default; Digits above 10 also do. Window is the number of
// steps accepted on each side of the current one, so zero means exact.
type Opts struct {
	Period uint
	Digits int
	Window uint
}

func DefaultOpts() Opts {
	return Opts{Period: DefaultPeriod, Digits: DefaultDigits, Window: DefaultWindow}
}

func (o Opts) normalized() Opts {
	if o.Period == 0 {
		o.Period = DefaultPeriod
	}
	if o.Digits <= 0 || o.Digits > maxDigits {
		o.Digits = DefaultDigits
	}
	return o
}

// GenerateSecret returns SecretSize bytes from crypto/rand, Base32 encoded
// with padding.
func GenerateSecret() (string, error) {
	b := make([]byte, SecretSize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("totp: read random secret: %w", err)
	}
	return encodeSecret(b), nil
}

// GenerateCode returns the 6 digit code for t with a 30 second period.
func GenerateCode(secret string, t time.Time) (string, error) {
	return GenerateCodeCustom(secret, t, DefaultOpts())
}

// GenerateCodeCustom returns the code for the step containing t. The only
// error is *InvalidSecretError.
func GenerateCodeCustom(secret string, t time.Time, opts Opts) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	opts = opts.normalized()
	return hotp(key, counterAt(t, opts.Period), opts.Digits), nil
}

// Validate checks token against the current time using the default options.
func Validate(secret, token string) (bool, error) {
	return ValidateCustom(secret, token, time.Now(), DefaultOpts())
}

// ValidateAt checks token against t using the default options.
func ValidateAt(secret, token string, t time.Time) (bool, error) {
	return ValidateCustom(secret, token, t, DefaultOpts())
}

// ValidateCustom reports whether token equals the code of any step from
// t-Window to t+Window. A token of the wrong length is simply not a match.
// The only error is *InvalidSecretError.
func ValidateCustom(secret, token string, t time.Time, opts Opts) (bool, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return false, err
	}
	opts = opts.normalized()
	if len(token) != opts.Digits {
		return false, nil
	}

	counter := counterAt(t, opts.Period)
	w := int64(opts.Window)
	for i := -w; i <= w; i++ {
		code := hotp(key, counter+uint64(i), opts.Digits)
		if subtle.ConstantTimeCompare([]byte(code), []byte(token)) == 1 {
			return true, nil
		}
	}
	return false, nil
}

// counterAt is floor(unix seconds / period).
func counterAt(t time.Time, period uint) uint64 {
	secs := t.Unix()
	p := int64(period)
	c := secs / p
	if secs%p != 0 && secs < 0 {
		c--
	}
	return uint64(c)
}

// hotp is RFC 4226 section 5.3: HMAC-SHA1 over the big-endian counter,
// dynamic truncation to 31 bits, then modulo 10^digits.
func hotp(key []byte, counter uint64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff
	code := uint64(value) % pow10[digits]
	return fmt.Sprintf("%0*d", digits, code)
}
