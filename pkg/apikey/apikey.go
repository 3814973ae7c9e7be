// Package apikey guards the notifier HTTP surface with a shared secret. The
// admin platform is the only intended caller; this is service auth, not user
// auth.
package apikey

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/sroepkeee/orderhub-notify/pkg/jsonutil"
)

// Header carries the key on every authenticated request.
const Header = "X-Api-Key"

// GenerateKey creates a random key for a new caller. It is printed once at
// provisioning time; only the hash is kept.
func GenerateKey() (key string, hash string, err error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	key = "nk_" + hex.EncodeToString(raw)
	return key, HashKey(key), nil
}

// HashKey digests a key for storage and comparison.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Middleware rejects requests whose key hash does not match the configured
// one. An empty configured hash disables the check for local development.
func Middleware(keyHash string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if keyHash == "" {
			next.ServeHTTP(w, r)
			return
		}
		presented := HashKey(r.Header.Get(Header))
		if !hmac.Equal([]byte(presented), []byte(keyHash)) {
			jsonutil.WriteErrorJSON(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
