package redis

import (
	// Go Internal Packages
	"context"
	"errors"
	"fmt"

	// Local Packages
	utils "anchor-observer/utils"

	// External Packages
	"github.com/redis/go-redis/v9"
)

// CursorRepository persists the last processed stream position per ledger source.
type CursorRepository struct {
	client *redis.Client
	prefix string
}

func NewCursorRepository(client *redis.Client) *CursorRepository {
	return &CursorRepository{client: client, prefix: "observer:cursor"}
}

func (r *CursorRepository) key(source string) string {
	return utils.JoinKey(r.prefix, source)
}

// Load returns "" when no cursor was saved yet.
func (r *CursorRepository) Load(ctx context.Context, source string) (string, error) {
	cursor, err := r.client.Get(ctx, r.key(source)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load cursor for %s: %w", source, err)
	}
	return cursor, nil
}

func (r *CursorRepository) Save(ctx context.Context, source, cursor string) error {
	if err := r.client.Set(ctx, r.key(source), cursor, 0).Err(); err != nil {
		return fmt.Errorf("save cursor for %s: %w", source, err)
	}
	return nil
}
