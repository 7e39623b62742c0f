// Package secure generates cryptographically strong unguessable identifiers
// for sessions and other tokens handed to browsers.
package secure

import (
	"crypto/rand"
	"encoding/base64"
)

// GenerateIdentifier returns a URL-safe random identifier built from n bytes
// of entropy. It panics if the system entropy source is unavailable, which is
// not a recoverable condition for an authentication server.
func GenerateIdentifier(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic("secure: entropy source unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
