// Package token decodes the opaque credential issued by the backend.
// Decoding is structural only: the client never verifies a signature,
// the trust boundary is the server. Anything that fails to decode is
// treated as expired (fail-closed).
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultSkew is subtracted from the claimed expiry before comparing to
// the current time, so tokens read as expired slightly before their true
// expiry and in-flight requests do not race the deadline.
const DefaultSkew = 5 * time.Minute

// DecodeError reports a structurally invalid token. It is normal control
// flow for callers: an undecodable token simply counts as expired.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("token decode: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// Claims holds the decoded, read-only claims of a token. Only the time
// claims are interpreted; everything else stays opaque in Raw.
type Claims struct {
	ExpiresAt int64 // epoch seconds; valid only when HasExpiry
	IssuedAt  int64 // epoch seconds; valid only when HasIssued
	HasExpiry bool
	HasIssued bool
	Raw       jwt.MapClaims
}

var parser = jwt.NewParser()

// Decode splits the token into its segments and decodes the claims
// without verifying the signature. Returns a *DecodeError when the
// segment count is wrong or segment content is not decodable.
func Decode(tok string) (Claims, error) {
	var c Claims
	parsed, _, err := parser.ParseUnverified(tok, jwt.MapClaims{})
	if err != nil {
		return c, &DecodeError{Err: err}
	}
	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return c, &DecodeError{Err: fmt.Errorf("unexpected claims type %T", parsed.Claims)}
	}
	c.Raw = mc
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Unix()
		c.HasExpiry = true
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Unix()
		c.HasIssued = true
	}
	return c, nil
}

// IsExpired reports whether the token should be treated as expired,
// using the default clock-skew buffer. Tokens lacking an expiry claim or
// failing to decode are expired.
func IsExpired(tok string) bool {
	return IsExpiredAt(tok, time.Now(), DefaultSkew)
}

// IsExpiredAt is IsExpired with an explicit clock and skew, for tests and
// callers with their own skew policy.
func IsExpiredAt(tok string, now time.Time, skew time.Duration) bool {
	c, err := Decode(tok)
	if err != nil || !c.HasExpiry {
		return true
	}
	effective := time.Unix(c.ExpiresAt, 0).Add(-skew)
	return !now.Before(effective)
}

// Expiration returns the claimed expiry time, when present.
func Expiration(tok string) (time.Time, bool) {
	c, err := Decode(tok)
	if err != nil || !c.HasExpiry {
		return time.Time{}, false
	}
	return time.Unix(c.ExpiresAt, 0), true
}
