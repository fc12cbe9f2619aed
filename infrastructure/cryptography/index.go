package cryptography

import (
	"crypto/sha256"
	"encoding/hex"
)

var IDHasher IdentifierHasher = sha256Hasher{}

type sha256Hasher struct{}

func (h sha256Hasher) Hash(id string) string {
	digest := sha256.Sum256([]byte(id))
	return hex.EncodeToString(digest[:])
}
