package kafka

import (
	// Go Internal Packages
	"context"
	"errors"
	"fmt"

	// Local Packages
	models "anchor-observer/models"

	// External Packages
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kprom"
	"go.uber.org/zap"
)

type Consumer struct {
	Client    *kgo.Client
	Config    *models.ConsumerConfig
	Processor RecordProcessor
	Logger    *zap.Logger
}

type RecordProcessor interface {
	ProcessRecords(ctx context.Context, records []models.Record) error
}

// NewActionConsumer creates a consumer for the action topic (PS: Must call Poll to start
// consuming the records)
func NewActionConsumer(conf *models.ConsumerConfig, processor RecordProcessor, metrics *kprom.Metrics, logger *zap.Logger) (*Consumer, error) {
	c := &Consumer{Config: conf, Processor: processor, Logger: logger.Named("action-consumer")}

	opts := []kgo.Opt{
		kgo.SeedBrokers(conf.Brokers...), // Connects to Kafka brokers
		kgo.ConsumerGroup(conf.Name),     // Specifies the consumer group
		kgo.ConsumeTopics(conf.Topic),    // Specifies a single topic to consume
		kgo.WithHooks(metrics),           // Attaches monitoring hooks
		kgo.DisableAutoCommit(),          // Disables auto-commit
		kgo.BlockRebalanceOnPoll(),       // Blocks rebalancing until the poll loop is running
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create action consumer: %w", err)
	}

	c.Client = client
	return c, nil
}

// Poll polls for action records until ctx is cancelled. Records are committed once the
// processor handled the batch.
func (c *Consumer) Poll(ctx context.Context) error {
	defer c.Client.Close()

	for {
		if ctx.Err() != nil {
			c.Logger.Info("polling stopped")
			return nil
		}

		fetches := c.Client.PollRecords(ctx, c.Config.RecordsPerPoll)
		if fetches.IsClientClosed() {
			return errors.New("kafka client closed")
		}
		if errors.Is(fetches.Err0(), context.Canceled) {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.Logger.Error("fetch failed", zap.String("topic", topic), zap.Int32("partition", partition), zap.Error(err))
		})

		polled := fetches.Records()
		if len(polled) == 0 {
			c.Client.AllowRebalance()
			continue
		}

		records := make([]models.Record, len(polled))
		for idx, record := range polled {
			records[idx] = models.Record{
				Key:   record.Key,
				Value: record.Value,
				Topic: record.Topic,
			}
		}

		if err := c.Processor.ProcessRecords(ctx, records); err != nil {
			c.Logger.Error("failed to process records", zap.Int("count", len(records)), zap.Error(err))
			c.Client.AllowRebalance()
			continue
		}

		if err := c.Client.CommitRecords(ctx, polled...); err != nil {
			c.Logger.Warn("failed to commit records", zap.Error(err))
		}
		c.Client.AllowRebalance()
	}
}
