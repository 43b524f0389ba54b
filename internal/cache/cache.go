package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// fingerprintPrefixLen bounds how much of the prompt participates in the
// cache key. Prompts that differ only past this prefix share an entry.
const fingerprintPrefixLen = 512

// Fingerprint returns a deterministic cache key for (provider, prompt).
// The prompt is trimmed and truncated to a fixed prefix before hashing;
// the provider id is mixed in to prevent cross-provider collisions.
func Fingerprint(provider, prompt string) string {
	p := strings.TrimSpace(prompt)
	if len(p) > fingerprintPrefixLen {
		p = p[:fingerprintPrefixLen]
	}
	h := sha256.Sum256([]byte(provider + "\x00" + p))
	return "cache:" + hex.EncodeToString(h[:])
}
