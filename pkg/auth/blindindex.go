package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// BlindIndexer computes deterministic keyed hashes used as lookup keys so
// the plaintext email is never stored or indexed directly. The hash is the
// identity key: two emails that normalize to the same string produce the
// same index.
type BlindIndexer struct {
	pepper []byte
}

// NewBlindIndexer creates a blind indexer with the server-side pepper
func NewBlindIndexer(pepper []byte) *BlindIndexer {
	return &BlindIndexer{pepper: pepper}
}

// NormalizeEmail lowercases and trims an email before indexing
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Index computes the blind index of a normalized email as hex HMAC-SHA256
func (bi *BlindIndexer) Index(email string) string {
	mac := hmac.New(sha256.New, bi.pepper)
	mac.Write([]byte(NormalizeEmail(email)))
	return hex.EncodeToString(mac.Sum(nil))
}
