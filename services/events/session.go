// Package events publishes transaction events once per dedup key.
package events

import (
	// Go Internal Packages
	"context"
	"encoding/json"
	"fmt"
	"time"

	// Local Packages
	metrics "anchor-observer/metrics"
	models "anchor-observer/models"

	// External Packages
	"go.uber.org/zap"
)

type Producer interface {
	Produce(ctx context.Context, key, value []byte) error
}

// Deduper reserves a key for ttl. Reserve returns false when the key is already held.
type Deduper interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type Session struct {
	producer Producer
	dedup    Deduper
	ttl      time.Duration
	logger   *zap.Logger
}

// NewSession builds a session. dedup may be nil, in which case every event is produced.
func NewSession(producer Producer, dedup Deduper, ttl time.Duration, logger *zap.Logger) *Session {
	return &Session{producer: producer, dedup: dedup, ttl: ttl, logger: logger.Named("events")}
}

// Publish produces the event keyed by its transaction id. An event whose dedup key was
// already published is skipped. A failed produce releases the key so a retry can go out.
func (s *Session) Publish(ctx context.Context, event models.Event) error {
	logger := s.logger.With(zap.String("dedup_key", event.DedupKey), zap.String("type", string(event.Type)))

	if s.dedup != nil && event.DedupKey != "" {
		ok, err := s.dedup.Reserve(ctx, event.DedupKey, s.ttl)
		if err != nil {
			metrics.PublishedEvents.WithLabelValues("dedup_error").Inc()
			return fmt.Errorf("reserve event key: %w", err)
		}
		if !ok {
			logger.Debug("duplicate event skipped")
			metrics.PublishedEvents.WithLabelValues("duplicate").Inc()
			return nil
		}
	}

	value, err := json.Marshal(event)
	if err != nil {
		s.release(ctx, event.DedupKey, logger)
		return fmt.Errorf("marshal event: %w", err)
	}

	var key []byte
	if event.Transaction != nil {
		key = []byte(event.Transaction.ID)
	}
	if err := s.producer.Produce(ctx, key, value); err != nil {
		s.release(ctx, event.DedupKey, logger)
		metrics.PublishedEvents.WithLabelValues("error").Inc()
		return fmt.Errorf("produce event: %w", err)
	}

	metrics.PublishedEvents.WithLabelValues("published").Inc()
	logger.Debug("event published")
	return nil
}

func (s *Session) release(ctx context.Context, key string, logger *zap.Logger) {
	if s.dedup == nil || key == "" {
		return
	}
	if err := s.dedup.Release(ctx, key); err != nil {
		logger.Warn("failed to release event key", zap.Error(err))
	}
}

// LogProducer writes events to the log. It stands in for Kafka when publishing is off.
type LogProducer struct {
	logger *zap.Logger
}

func NewLogProducer(logger *zap.Logger) *LogProducer {
	return &LogProducer{logger: logger.Named("events")}
}

func (p *LogProducer) Produce(_ context.Context, key, value []byte) error {
	p.logger.Info("transaction event", zap.ByteString("key", key), zap.ByteString("event", value))
	return nil
}
