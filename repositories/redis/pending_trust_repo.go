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

// PendingTrustRepository stores payouts waiting on a destination trust line, keyed by
// transaction id so a retried do_stellar_payment overwrites instead of duplicating.
type PendingTrustRepository struct {
	client *redis.Client
	logger *zap.Logger
	key    string
}

func NewPendingTrustRepository(client *redis.Client, logger *zap.Logger) *PendingTrustRepository {
	return &PendingTrustRepository{client: client, logger: logger, key: "custody:pending_trust"}
}

func (r *PendingTrustRepository) Save(ctx context.Context, record models.PendingTrust) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal pending trust %s: %w", record.TransactionID, err)
	}
	if err := r.client.HSet(ctx, r.key, record.TransactionID, data).Err(); err != nil {
		return fmt.Errorf("save pending trust %s: %w", record.TransactionID, err)
	}
	return nil
}

func (r *PendingTrustRepository) List(ctx context.Context) ([]models.PendingTrust, error) {
	raw, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending trust: %w", err)
	}
	records := make([]models.PendingTrust, 0, len(raw))
	for id, value := range raw {
		var record models.PendingTrust
		if err := json.Unmarshal([]byte(value), &record); err != nil {
			r.logger.Error("failed to unmarshal pending trust", zap.String("transaction_id", id), zap.Error(err))
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (r *PendingTrustRepository) Delete(ctx context.Context, transactionID string) error {
	if err := r.client.HDel(ctx, r.key, transactionID).Err(); err != nil {
		return fmt.Errorf("delete pending trust %s: %w", transactionID, err)
	}
	return nil
}
