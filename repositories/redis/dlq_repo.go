package redis

import (
	// Go Internal Packages
	"context"
	"encoding/json"
	"fmt"

	// Local Packages
	models "anchor-observer/models"
	utils "anchor-observer/utils"

	// External Packages
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type DeadLetterQueue struct {
	client   *redis.Client
	logger   *zap.Logger
	listName string
}

func NewDeadLetterQueue(client *redis.Client, logger *zap.Logger) *DeadLetterQueue {
	return &DeadLetterQueue{client: client, logger: logger, listName: "failed-records"}
}

// Send stores every failed record under "failed:{source}:{key}:{id}" and appends its key
// to the replay list. The id keeps repeated failures of one key apart. A record that cannot be stored is logged and skipped.
func (r *DeadLetterQueue) Send(ctx context.Context, records ...models.FailedRecord) error {
	if len(records) == 0 {
		return nil
	}

	successCount := 0
	for _, record := range records {
		jsonData, err := json.Marshal(record)
		if err != nil {
			r.logger.Error("failed to marshal record", zap.Error(err))
			continue
		}

		key := utils.JoinKey("failed", record.Source, record.Key, uuid.NewString())
		pipe := r.client.TxPipeline()
		pipe.Set(ctx, key, jsonData, 0)
		pipe.RPush(ctx, r.listName, key)
		if _, err := pipe.Exec(ctx); err != nil {
			r.logger.Error("failed to store record", zap.String("key", key), zap.Error(err))
			continue
		}
		successCount++
	}

	if successCount > 0 {
		r.logger.Info("successfully sent records", zap.Int("count", successCount))
	}
	if successCount < len(records) {
		return fmt.Errorf("stored %d of %d failed records", successCount, len(records))
	}
	return nil
}

// Len reports how many records wait for replay.
func (r *DeadLetterQueue) Len(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, r.listName).Result()
}
