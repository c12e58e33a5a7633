package auth

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"

	"github.com/Mmx233/Kosmonaut/protocol"
	"github.com/zeebo/blake3"
)

const (
	NonceSize = 32 // 256 bits

	// tokenKeyContext separates access token keys from any other key derived
	// from a vhost secret.
	tokenKeyContext = "kosmonaut 2026-01 vhost secret -> access token key"
)

var ErrInvalidPattern = errors.New("invalid permission pattern")

// GenerateNonce creates a cryptographically secure random nonce
func GenerateNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return nonce, nil
}

// ComputeToken derives a 128 hex character token: a keyed BLAKE3 hash of the
// grant and a nonce, keyed by the vhost secret. Fields are length-prefixed so
// they cannot run together.
func ComputeToken(secret, userID, pattern string, nonce []byte) string {
	var key [32]byte
	blake3.DeriveKey(tokenKeyContext, []byte(secret), key[:])

	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("auth: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	for _, field := range [][]byte{[]byte(userID), []byte(pattern), nonce} {
		var size [4]byte
		binary.BigEndian.PutUint32(size[:], uint32(len(field)))
		_, _ = hasher.Write(size[:])
		_, _ = hasher.Write(field)
	}

	var sum [protocol.AccessTokenLength / 2]byte
	_, _ = hasher.Digest().Read(sum[:])
	return hex.EncodeToString(sum[:])
}

// IssueToken validates pattern and returns a fresh single use token granting
// it to userID. The broker keeps no token state.
func IssueToken(secret, userID, pattern string) (string, error) {
	if _, err := regexp.Compile(pattern); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPattern, err)
	}
	nonce, err := GenerateNonce()
	if err != nil {
		return "", err
	}
	return ComputeToken(secret, userID, pattern, nonce), nil
}
