package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

const (
	// tokenLength is the number of random bytes of a token
	tokenLength = 256
)

// generateToken creates a new random token
func generateToken() ([]byte, error) {
	randomBytes := make([]byte, tokenLength)
	_, err := rand.Read(randomBytes)
	return randomBytes, err
}

// recordKey derives the record key of a nonce and action pair. Each field is
// length prefixed so no two pairs share a key.
func recordKey(nonce, action string) string {
	h := sha256.New()
	for _, field := range []string{nonce, action} {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(field)))
		h.Write(n[:])
		h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil))
}
