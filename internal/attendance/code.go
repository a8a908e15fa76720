package attendance

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// codeBytes yields 8 uppercase hex characters, enough to make guessing a live
// code impractical within a session's lifetime.
const codeBytes = 4

// NewSessionCode returns a random uppercase hex session code.
func NewSessionCode() (string, error) {
	buf := make([]byte, codeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}
