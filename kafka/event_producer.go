package kafka

import (
	// Go Internal Packages
	"context"
	"fmt"

	// Local Packages
	models "anchor-observer/models"

	// External Packages
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kprom"
	"go.uber.org/zap"
)

// Producer writes transaction events to a single topic.
type Producer struct {
	Client *kgo.Client
	Topic  string
	Logger *zap.Logger
}

func NewEventProducer(conf *models.ProducerConfig, metrics *kprom.Metrics, logger *zap.Logger) (*Producer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(conf.Brokers...),
		kgo.DefaultProduceTopic(conf.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.WithHooks(metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("create event producer: %w", err)
	}
	return &Producer{Client: client, Topic: conf.Topic, Logger: logger.Named("event-producer")}, nil
}

// Produce blocks until the broker acknowledged the record.
func (p *Producer) Produce(ctx context.Context, key, value []byte) error {
	record := &kgo.Record{Topic: p.Topic, Key: key, Value: value}
	if err := p.Client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", p.Topic, err)
	}
	return nil
}

func (p *Producer) Close() {
	if err := p.Client.Flush(context.Background()); err != nil {
		p.Logger.Warn("failed to flush producer", zap.Error(err))
	}
	p.Client.Close()
}
