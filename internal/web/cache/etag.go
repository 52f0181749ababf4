package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// ETag returns a strong entity tag for body
func ETag(body []byte) string {
	hash := sha256.Sum256(body)
	return `"` + hex.EncodeToString(hash[:16]) + `"`
}

// MatchesETag reports whether an If-None-Match header value matches etag,
// using weak comparison
func MatchesETag(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}
	want := strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		if strings.TrimPrefix(strings.TrimSpace(candidate), "W/") == want {
			return true
		}
	}
	return false
}

// WriteConditional sets the ETag header for body and answers 304 when the
// request already holds it. It reports whether the response was written.
func WriteConditional(w http.ResponseWriter, r *http.Request, body []byte) bool {
	etag := ETag(body)
	w.Header().Set("ETag", etag)
	if MatchesETag(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return true
	}
	return false
}
