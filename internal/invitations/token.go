package invitations

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// TokenBytes is the number of random bytes in a raw invitation token.
	TokenBytes = 32

	// TokenLength is the hex-encoded length of a raw token.
	TokenLength = TokenBytes * 2

	// TokenPrefixLength is the number of leading hex characters stored in clear
	// text as a lookup index.
	TokenPrefixLength = 8

	// MinTokenCost is the lowest bcrypt cost accepted for token hashes.
	MinTokenCost = 10

	// DefaultTokenCost is used when no cost is configured.
	DefaultTokenCost = MinTokenCost
)

// MintedToken holds a freshly generated token. Raw is handed to the notifier
// exactly once and never stored.
type MintedToken struct {
	Raw    string
	Hash   string
	Prefix string
}

// MintToken generates a 256-bit token and its bcrypt hash.
func MintToken(cost int) (MintedToken, error) {
	if cost < MinTokenCost {
		cost = MinTokenCost
	}

	randomBytes := make([]byte, TokenBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return MintedToken{}, fmt.Errorf("failed to generate random bytes: %w", err)
	}

	raw := hex.EncodeToString(randomBytes)
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), cost)
	if err != nil {
		return MintedToken{}, fmt.Errorf("failed to hash invitation token: %w", err)
	}

	return MintedToken{
		Raw:    raw,
		Hash:   string(hash),
		Prefix: raw[:TokenPrefixLength],
	}, nil
}

// VerifyToken checks raw against a stored bcrypt hash.
func VerifyToken(raw, hash string) bool {
	if raw == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}

// TokenPrefix returns the lookup prefix of raw if it has the shape of a
// minted token.
func TokenPrefix(raw string) (string, bool) {
	if len(raw) != TokenLength {
		return "", false
	}
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return "", false
		}
	}
	return raw[:TokenPrefixLength], true
}
