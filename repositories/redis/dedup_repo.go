package redis

import (
	// Go Internal Packages
	"context"
	"fmt"
	"time"

	// Local Packages
	utils "anchor-observer/utils"

	// External Packages
	"github.com/redis/go-redis/v9"
)

// Deduper reserves idempotency keys so a side effect runs at most once per key.
type Deduper struct {
	client *redis.Client
	prefix string
}

func NewDeduper(client *redis.Client) *Deduper {
	return &Deduper{client: client, prefix: "dedup"}
}

// Reserve returns true when the key was not seen within ttl.
func (d *Deduper) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.client.SetNX(ctx, utils.JoinKey(d.prefix, key), time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve %s: %w", key, err)
	}
	return ok, nil
}

// Release drops a reservation so a failed side effect can be retried.
func (d *Deduper) Release(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, utils.JoinKey(d.prefix, key)).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}
