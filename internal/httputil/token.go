package httputil

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// NewShareToken returns an unguessable URL-safe token for public watch
// links. 24 random bytes keeps tokens short enough to read aloud from a
// link while staying far beyond brute-force reach.
func NewShareToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate share token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
