package processors

import (
	// Go Internal Packages
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	// Local Packages
	errs "anchor-observer/errors"
	models "anchor-observer/models"
	utils "anchor-observer/utils"

	// External Packages
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	dlqSource        = "actions"
	conflictAttempts = 3
)

type ActionRouter interface {
	Dispatch(ctx context.Context, method string, params json.RawMessage) (*models.TransactionResponse, error)
}

type DeadLetterQueue interface {
	Send(ctx context.Context, records ...models.FailedRecord) error
}

type Deduper interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// ActionProcessor runs JSON-RPC action records from the action topic through the state
// machine. Records that fail are dead lettered so the batch can be committed. A record
// carrying a request id is applied at most once per id within DedupTTL.
type ActionProcessor struct {
	Logger   *zap.Logger
	Router   ActionRouter
	DLQ      DeadLetterQueue
	Dedup    Deduper
	DedupTTL time.Duration

	retryInterval time.Duration
}

// NewActionProcessor builds the processor. dedup may be nil.
func NewActionProcessor(logger *zap.Logger, router ActionRouter, dlq DeadLetterQueue, dedup Deduper, dedupTTL time.Duration) *ActionProcessor {
	return &ActionProcessor{
		Logger:        logger.Named("action-processor"),
		Router:        router,
		DLQ:           dlq,
		Dedup:         dedup,
		DedupTTL:      dedupTTL,
		retryInterval: 200 * time.Millisecond,
	}
}

// ProcessRecords only fails when a failed record could not be dead lettered.
func (p *ActionProcessor) ProcessRecords(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}

	var failed []models.FailedRecord
	for _, record := range records {
		if err := p.ProcessRecord(ctx, record); err != nil {
			failed = append(failed, models.FailedRecord{
				Key:      string(record.Key),
				Source:   dlqSource,
				Payload:  record.Value,
				Reason:   err.Error(),
				FailedAt: time.Now(),
			})
		}
	}
	if len(failed) == 0 {
		return nil
	}

	if err := p.DLQ.Send(ctx, failed...); err != nil {
		return fmt.Errorf("failed to dead letter %d records: %w", len(failed), err)
	}
	return nil
}

// ProcessRecord dispatches one record. Version conflicts are retried; every other
// failure is returned.
func (p *ActionProcessor) ProcessRecord(ctx context.Context, record models.Record) error {
	var req models.RPCRequest
	if err := json.Unmarshal(record.Value, &req); err != nil {
		p.Logger.Error("failed to unmarshal action record", zap.ByteString("key", record.Key), zap.Error(err))
		return errs.InvalidBodyErr(err)
	}
	if req.Method == "" {
		return errs.EmptyParamErr("method")
	}

	logger := p.Logger.With(zap.String("method", req.Method), zap.ByteString("key", record.Key))

	requestKey := p.requestKey(req)
	if requestKey != "" {
		ok, err := p.Dedup.Reserve(ctx, requestKey, p.DedupTTL)
		if err != nil {
			return fmt.Errorf("reserve action request: %w", err)
		}
		if !ok {
			logger.Info("duplicate action request skipped", zap.String("request", requestKey))
			return nil
		}
	}

	dispatch := func() error {
		_, err := p.Router.Dispatch(ctx, req.Method, req.Params)
		if err != nil && !errs.IsKind(err, errs.Conflict) {
			return backoff.Permanent(err)
		}
		return err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.retryInterval
	b := backoff.WithContext(backoff.WithMaxRetries(eb, conflictAttempts), ctx)
	err := backoff.RetryNotify(dispatch, b, func(err error, wait time.Duration) {
		logger.Warn("action conflicted, retrying", zap.Duration("wait", wait), zap.Error(err))
	})
	if err != nil {
		logger.Error("action failed", zap.Error(err))
		if requestKey != "" {
			if relErr := p.Dedup.Release(ctx, requestKey); relErr != nil {
				logger.Warn("failed to release action request", zap.Error(relErr))
			}
		}
		return err
	}
	logger.Debug("action applied")
	return nil
}

// requestKey is empty when the request carries no id or no deduper is set.
func (p *ActionProcessor) requestKey(req models.RPCRequest) string {
	if p.Dedup == nil {
		return ""
	}
	id := strings.Trim(strings.TrimSpace(string(req.ID)), `"`)
	if id == "" || id == "null" {
		return ""
	}
	return utils.JoinKey("action", req.Method, id)
}
