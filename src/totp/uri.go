package totp

import (
	"fmt"
	"net/url"
	"strings"
)

// KeyURI builds the otpauth:// provisioning URI rendered as a QR code during
// enrollment. The parameter set is fixed because authenticator apps read it
// literally.
func KeyURI(issuer, account, secret string) string {
	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s&algorithm=SHA1&digits=%d&period=%d",
		escape(issuer), escape(account), secret, escape(issuer), DefaultDigits, DefaultPeriod)
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
