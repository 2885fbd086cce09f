package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"math/big"
)

// APIKeyPrefix marks tenant keys so they are recognizable in configs
// and never confused with other secrets.
const APIKeyPrefix = "eak_"

const (
	apiKeyLength   = 40
	apiKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// GenerateAPIKey returns a new plaintext API key. The caller is responsible
// for showing it to the tenant exactly once and storing only its hash.
func GenerateAPIKey() string {
	buf := make([]byte, apiKeyLength)
	max := big.NewInt(int64(len(apiKeyAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		buf[i] = apiKeyAlphabet[n.Int64()]
	}
	return APIKeyPrefix + string(buf)
}

// HashAPIKey is the stored form of an API key. Keys are high-entropy random
// tokens, so an unsalted sha256 keeps them queryable by hash without making
// brute force feasible.
func HashAPIKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// SecureCompare reports whether two secrets are equal in constant time.
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
