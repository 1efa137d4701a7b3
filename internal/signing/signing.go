// Package signing issues and verifies HMAC-signed, expiring object URLs for
// the in-memory object store.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Query parameter names carried by a signed URL.
const (
	ParamExpires   = "expires"
	ParamSignature = "signature"
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret, now: time.Now}
}

// Sign returns the hex signature binding key to expiresUnix.
func (s *Signer) Sign(key string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	payload := fmt.Sprintf("%s:%d", key, expiresUnix)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Query returns the expires/signature parameters for key valid for ttl.
func (s *Signer) Query(key string, ttl time.Duration) url.Values {
	exp := s.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set(ParamExpires, strconv.FormatInt(exp, 10))
	q.Set(ParamSignature, s.Sign(key, exp))
	return q
}

// Validate reports whether signature matches key and expires and the
// expiry has not passed.
func (s *Signer) Validate(key, expires, signature string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return false
	}
	if s.now().Unix() > exp {
		return false
	}
	expected := s.Sign(key, exp)
	return hmac.Equal([]byte(expected), []byte(signature))
}
