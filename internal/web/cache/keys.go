package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// payloadKeyPrefix namespaces payload entries inside the backend prefix
const payloadKeyPrefix = "payload:"

// PayloadKey returns the cache key of a resource path. Paths longer than a
// typical Redis key budget are hashed.
func PayloadKey(path string) string {
	path = strings.TrimLeft(path, "/")
	if len(path) <= 200 {
		return payloadKeyPrefix + path
	}
	hash := sha256.Sum256([]byte(path))
	return payloadKeyPrefix + "sha256:" + hex.EncodeToString(hash[:16])
}
