package service

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/blake2b"

	id "compliance/pkg/domain"
)

var codeSpace = big.NewInt(1_000_000)

// generateCode returns a uniformly random 6-digit numeric code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// codeHasher computes a keyed BLAKE2b-256 MAC binding a code to its challenge.
type codeHasher struct {
	key []byte
}

func newCodeHasher(pepper string) (*codeHasher, error) {
	key := []byte(pepper)
	if len(key) == 0 {
		return nil, errors.New("verification code pepper must not be empty")
	}
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	return &codeHasher{key: key}, nil
}

func (h *codeHasher) Sum(challengeID id.ChallengeID, code string) []byte {
	// Key length is bounded in newCodeHasher, so New256 cannot fail.
	mac, _ := blake2b.New256(h.key) //nolint:errcheck
	mac.Write([]byte(challengeID.String()))
	mac.Write([]byte{0})
	mac.Write([]byte(code))
	return mac.Sum(nil)
}
