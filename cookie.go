package breeze

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
)

// CookieJar is a request-scoped view over the Cookie header, built on
// first access and cached on the Ctx.
type CookieJar struct {
	cookies map[string]*http.Cookie
}

func newCookieJar(r *http.Request) *CookieJar {
	jar := &CookieJar{cookies: make(map[string]*http.Cookie)}
	for _, c := range r.Cookies() {
		jar.cookies[c.Name] = c
	}
	return jar
}

// Get returns the named cookie from the incoming request, if present.
func (j *CookieJar) Get(name string) (*http.Cookie, bool) {
	c, ok := j.cookies[name]
	return c, ok
}

// SigningKey derives a fixed-length HMAC key from an arbitrary-length
// deployment secret, the way tide's Key::derive_from does.
func SigningKey(secret []byte) []byte {
	sum := sha256.Sum256(secret)
	return sum[:]
}

const base64DigestLen = 44 // base64("A"*32 via HMAC-SHA256 raw digest) length

// SignValue produces base64(HMAC256(key, value)) || value, the format
// breeze uses wherever a cookie value must be tamper-evident.
func SignValue(key []byte, value string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(value))
	digest := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return digest + value
}

// VerifyValue checks a signed value produced by SignValue and, if
// valid, returns the original value. Verification is constant-time.
func VerifyValue(key []byte, signed string) (string, bool) {
	if len(signed) < base64DigestLen {
		return "", false
	}
	digestStr, value := signed[:base64DigestLen], signed[base64DigestLen:]
	digest, err := base64.StdEncoding.DecodeString(digestStr)
	if err != nil {
		return "", false
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(value))
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(digest, expected) != 1 {
		return "", false
	}
	return value, true
}
