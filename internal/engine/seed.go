package engine

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// NewServerSeed generates the random seed material for a round and its
// commitment (hex SHA-256 of the seed). The commitment is fixed on the round
// row at creation; the seed itself stays hidden until settlement.
func NewServerSeed() (seed string, commitment string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}

	seed = hex.EncodeToString(raw)
	sum := sha256.Sum256([]byte(seed))
	return seed, hex.EncodeToString(sum[:]), nil
}

// VerifySeed checks that a revealed seed matches the commitment published for
// the round, proving the seed was fixed before any stake was accepted.
func VerifySeed(seed, commitment string) bool {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:]) == commitment
}
