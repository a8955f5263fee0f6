package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// identityKeyPrefix namespaces cached identities in Redis.
	identityKeyPrefix = "auth_identity:"
	// identityTTL bounds how long a verified token skips re-verification.
	identityTTL = 5 * time.Minute
)

// IdentityCache caches verified token identities in Redis so hot callers
// don't hit the OIDC verifier on every request.
type IdentityCache struct {
	Client *redis.Client
}

func NewIdentityCache(client *redis.Client) *IdentityCache {
	return &IdentityCache{Client: client}
}

func cacheKey(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return identityKeyPrefix + hex.EncodeToString(sum[:])
}

// Get returns the cached identity for the token, if present and fresh.
func (c *IdentityCache) Get(ctx context.Context, rawToken string) (Identity, bool) {
	if c.Client == nil {
		return Identity{}, false
	}

	payload, err := c.Client.Get(ctx, cacheKey(rawToken)).Result()
	if err != nil {
		return Identity{}, false
	}

	var id Identity
	if err := json.Unmarshal([]byte(payload), &id); err != nil {
		return Identity{}, false
	}
	return id, true
}

// Set stores the identity keyed by a hash of the token, never the token itself.
func (c *IdentityCache) Set(ctx context.Context, rawToken string, id Identity) error {
	if c.Client == nil {
		return fmt.Errorf("redis client not initialized")
	}

	payload, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}

	if err := c.Client.Set(ctx, cacheKey(rawToken), payload, identityTTL).Err(); err != nil {
		return fmt.Errorf("failed to store identity in Redis: %w", err)
	}
	return nil
}
