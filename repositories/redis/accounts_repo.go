package redis

import (
	// Go Internal Packages
	"context"
	"encoding/json"
	"fmt"

	// Local Packages
	models "anchor-observer/models"

	// External Packages
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// AccountRepository keeps observed accounts in one hash keyed by account id.
type AccountRepository struct {
	client *redis.Client
	logger *zap.Logger
	key    string
}

func NewAccountRepository(client *redis.Client, logger *zap.Logger) *AccountRepository {
	return &AccountRepository{client: client, logger: logger, key: "observer:accounts"}
}

func (r *AccountRepository) Upsert(ctx context.Context, accounts ...models.ObservedAccount) error {
	if len(accounts) == 0 {
		return nil
	}
	values := make([]any, 0, len(accounts)*2)
	for _, a := range accounts {
		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal account %s: %w", a.AccountID, err)
		}
		values = append(values, a.AccountID, data)
	}
	if err := r.client.HSet(ctx, r.key, values...).Err(); err != nil {
		return fmt.Errorf("upsert %d accounts: %w", len(accounts), err)
	}
	return nil
}

func (r *AccountRepository) Delete(ctx context.Context, accountIDs ...string) error {
	if len(accountIDs) == 0 {
		return nil
	}
	if err := r.client.HDel(ctx, r.key, accountIDs...).Err(); err != nil {
		return fmt.Errorf("delete %d accounts: %w", len(accountIDs), err)
	}
	return nil
}

// List returns every stored account. Entries that fail to decode are skipped.
func (r *AccountRepository) List(ctx context.Context) ([]models.ObservedAccount, error) {
	raw, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	accounts := make([]models.ObservedAccount, 0, len(raw))
	for id, value := range raw {
		var a models.ObservedAccount
		if err := json.Unmarshal([]byte(value), &a); err != nil {
			r.logger.Error("failed to unmarshal observed account", zap.String("account", id), zap.Error(err))
			continue
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}
