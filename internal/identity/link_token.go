package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	LinkTokenPrefix = "wcl_"
	LinkTokenBytes  = 32
)

func GenerateLinkToken() (token string, hash []byte, err error) {
	randomBytes := make([]byte, LinkTokenBytes)
	_, err = rand.Read(randomBytes)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(randomBytes)
	token = LinkTokenPrefix + encoded
	hash = HashLinkToken(token)

	return token, hash, nil
}

func HashLinkToken(token string) []byte {
	h := sha256.Sum256([]byte(token))
	return h[:]
}

func ValidateLinkTokenFormat(token string) bool {
	if len(token) < len(LinkTokenPrefix) {
		return false
	}

	if token[:len(LinkTokenPrefix)] != LinkTokenPrefix {
		return false
	}

	encoded := token[len(LinkTokenPrefix):]
	decoded, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return false
	}

	return len(decoded) == LinkTokenBytes
}
