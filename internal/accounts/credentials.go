package accounts

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/coocood/freecache"
	"golang.org/x/crypto/bcrypt"
)

const (
	// minCacheSize is the smallest segment size freecache accepts without resizing.
	minCacheSize = 512 * 1024
	// maxCredentialBytes is the longest input bcrypt will hash.
	maxCredentialBytes = 72
)

// credentialCache remembers recent successful verifications so periodic syncs
// do not pay for a bcrypt comparison every time.
type credentialCache struct {
	cache *freecache.Cache
	ttl   int
}

func newCredentialCache(sizeBytes int, ttl time.Duration) *credentialCache {
	if sizeBytes <= 0 || ttl <= 0 {
		return nil
	}
	if sizeBytes < minCacheSize {
		sizeBytes = minCacheSize
	}
	seconds := int(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return &credentialCache{cache: freecache.NewCache(sizeBytes), ttl: seconds}
}

func (c *credentialCache) verified(identity, credential string) bool {
	if c == nil {
		return false
	}
	stored, err := c.cache.Get([]byte(identity))
	if err != nil {
		return false
	}
	digest := sha256.Sum256([]byte(credential))
	return subtle.ConstantTimeCompare(stored, digest[:]) == 1
}

func (c *credentialCache) remember(identity, credential string) {
	if c == nil {
		return
	}
	digest := sha256.Sum256([]byte(credential))
	_ = c.cache.Set([]byte(identity), digest[:], c.ttl)
}

func hashCredential(credential string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(credential), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// credentialMatches compares against a bcrypt hash, or in constant time
// against a legacy plaintext record.
func credentialMatches(stored, credential string) bool {
	if isBcryptHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(credential)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(credential)) == 1
}

func isBcryptHash(value string) bool {
	if len(value) != 60 {
		return false
	}
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
