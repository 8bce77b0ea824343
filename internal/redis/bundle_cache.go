package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reelshare/internal/models"
)

const (
	bundleKey        = "reelshare:config_bundle"
	DefaultBundleTTL = 12 * time.Hour
)

type kv interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// BundleCache keeps the config bundle in redis so replicas and restarts skip
// the sheet round trip. Values are encrypted because the bundle carries the
// api key.
type BundleCache struct {
	store  kv
	cipher *Cipher
	ttl    time.Duration
}

func NewBundleCache(client *Client, cipher *Cipher, ttl time.Duration) (*BundleCache, error) {
	if client == nil {
		return nil, errNotReady
	}
	return newBundleCache(client, cipher, ttl)
}

func newBundleCache(store kv, cipher *Cipher, ttl time.Duration) (*BundleCache, error) {
	if cipher == nil {
		return nil, errors.New("bundle cache requires a cipher")
	}
	if ttl <= 0 {
		ttl = DefaultBundleTTL
	}
	return &BundleCache{store: store, cipher: cipher, ttl: ttl}, nil
}

func (c *BundleCache) LoadBundle(ctx context.Context) (*models.ConfigBundle, error) {
	raw, err := c.store.Get(ctx, bundleKey)
	if err != nil {
		return nil, err
	}
	plain, err := c.cipher.Open(raw)
	if err != nil {
		// stale entry written with another key
		_ = c.store.Del(ctx, bundleKey)
		return nil, err
	}
	var bundle models.ConfigBundle
	if err := json.Unmarshal(plain, &bundle); err != nil {
		return nil, fmt.Errorf("decode cached bundle: %w", err)
	}
	return &bundle, nil
}

func (c *BundleCache) StoreBundle(ctx context.Context, bundle *models.ConfigBundle) error {
	if bundle == nil {
		return errors.New("nil bundle")
	}
	plain, err := json.Marshal(bundle)
	if err != nil {
		return err
	}
	sealed, err := c.cipher.Seal(plain)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, bundleKey, sealed, c.ttl)
}

// Invalidate drops the cached bundle.
func (c *BundleCache) Invalidate(ctx context.Context) error {
	return c.store.Del(ctx, bundleKey)
}
