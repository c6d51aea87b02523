package subscriber

import (
	"crypto/rand"
	"encoding/hex"
)

// newToken returns a 64-character hex token from 32 cryptographically
// random bytes. Used for both unsubscribe and verification tokens.
func newToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err) // crypto/rand never fails on supported platforms
	}
	return hex.EncodeToString(b)
}
