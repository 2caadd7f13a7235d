// Package trustline resumes custody payouts parked until the user's trust line exists.
package trustline

import (
	// Go Internal Packages
	"context"
	"time"

	// Local Packages
	errs "anchor-observer/errors"
	ledger "anchor-observer/ledger"
	models "anchor-observer/models"

	// External Packages
	"go.uber.org/zap"
)

type PendingTrustStore interface {
	List(ctx context.Context) ([]models.PendingTrust, error)
	Delete(ctx context.Context, transactionID string) error
}

// Actions is the part of the state machine the sweeper drives.
type Actions interface {
	CompletePendingTrust(ctx context.Context, req models.CompletePendingTrustRequest) (*models.TransactionResponse, error)
	NotifyTransactionError(ctx context.Context, req models.NotifyTransactionErrorRequest) (*models.TransactionResponse, error)
}

const timeoutMessage = "trust line was not established in time"

type Sweeper struct {
	store    PendingTrustStore
	ledger   ledger.TrustlineChecker
	actions  Actions
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewSweeper builds a sweeper. A zero timeout keeps records until the trust line shows up.
func NewSweeper(store PendingTrustStore, checker ledger.TrustlineChecker, actions Actions, interval, timeout time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		ledger:   checker,
		actions:  actions,
		interval: interval,
		timeout:  timeout,
		logger:   logger.Named("trust-sweeper"),
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce walks every pending record once and returns how many payouts it resumed.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	records, err := s.store.List(ctx)
	if err != nil {
		s.logger.Warn("failed to list pending trust records", zap.Error(err))
		return 0
	}

	resumed := 0
	for _, record := range records {
		if ctx.Err() != nil {
			return resumed
		}
		if s.sweep(ctx, record) {
			resumed++
		}
	}
	return resumed
}

func (s *Sweeper) sweep(ctx context.Context, record models.PendingTrust) bool {
	logger := s.logger.With(zap.String("transaction_id", record.TransactionID), zap.String("asset", record.Asset))
	base := models.BaseRequest{TransactionID: record.TransactionID}

	if s.timeout > 0 && s.now().Sub(record.CreatedAt) > s.timeout {
		_, err := s.actions.NotifyTransactionError(ctx, models.NotifyTransactionErrorRequest{
			BaseRequest: models.BaseRequest{TransactionID: record.TransactionID, Message: timeoutMessage},
		})
		if err != nil && !stale(err) {
			logger.Error("failed to expire pending trust", zap.Error(err))
			return false
		}
		logger.Warn("pending trust timed out")
		s.delete(ctx, record, logger)
		return false
	}

	trusted, err := s.ledger.HasTrustline(ctx, record.Account, record.Asset)
	if err != nil {
		logger.Warn("failed to check trust line", zap.Error(err))
		return false
	}
	if !trusted {
		return false
	}

	_, err = s.actions.CompletePendingTrust(ctx, models.CompletePendingTrustRequest{BaseRequest: base})
	switch {
	case err == nil:
		logger.Info("payout resumed after trust line")
		s.delete(ctx, record, logger)
		return true
	case stale(err):
		logger.Info("dropping stale pending trust record", zap.Error(err))
		s.delete(ctx, record, logger)
	default:
		logger.Error("failed to resume payout", zap.Error(err))
	}
	return false
}

// stale reports whether the transaction moved on without the sweeper.
func stale(err error) bool {
	return errs.IsKind(err, errs.Unsupported) || errs.IsKind(err, errs.NotFound)
}

func (s *Sweeper) delete(ctx context.Context, record models.PendingTrust, logger *zap.Logger) {
	if err := s.store.Delete(ctx, record.TransactionID); err != nil {
		logger.Warn("failed to delete pending trust record", zap.Error(err))
	}
}
