// Package dispatcher matches observed ledger payments to pending transactions and forwards
// them to the platform as funds received or funds sent notifications.
package dispatcher

import (
	// Go Internal Packages
	"context"
	"encoding/json"
	"fmt"
	"time"

	// Local Packages
	ledger "anchor-observer/ledger"
	metrics "anchor-observer/metrics"
	models "anchor-observer/models"

	// External Packages
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TransactionFinder is the lookup side of one protocol flavor's transaction store.
type TransactionFinder interface {
	Protocol() models.Protocol
	FindByPayment(ctx context.Context, toAccount, memo string, statuses []models.Status) (*models.Transaction, error)
}

type PlatformNotifier interface {
	NotifyOnchainFundsReceived(ctx context.Context, txID, stellarTxID string, amountIn *models.Amount, message string) error
	NotifyOnchainFundsSent(ctx context.Context, txID, stellarTxID, message string) error
}

type DeadLetterQueue interface {
	Send(ctx context.Context, records ...models.FailedRecord) error
}

const dlqSource = "dispatcher"

// expectedStatuses lists, per flavor, the statuses a transaction waiting for a ledger
// payment can be in.
var expectedStatuses = map[models.Protocol][]models.Status{
	models.ProtocolSEP31: {models.StatusPendingSender},
	models.ProtocolSEP24: {models.StatusPendingUserTransferStart, models.StatusPendingAnchor, models.StatusPendingStellar},
	models.ProtocolSEP6:  {models.StatusPendingUserTransferStart, models.StatusPendingAnchor, models.StatusPendingStellar},
}

var precedence = []models.Protocol{models.ProtocolSEP31, models.ProtocolSEP24, models.ProtocolSEP6}

type Dispatcher struct {
	finders       map[models.Protocol]TransactionFinder
	notifier      PlatformNotifier
	fetcher       ledger.TransactionFetcher
	dlq           DeadLetterQueue
	lookupTimeout time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

// New builds a dispatcher over the given stores. fetcher may be nil; it is used to recover
// the memo of payments streamed without their transaction.
func New(finders []TransactionFinder, notifier PlatformNotifier, fetcher ledger.TransactionFetcher, dlq DeadLetterQueue, lookupTimeout time.Duration, logger *zap.Logger) *Dispatcher {
	byProtocol := make(map[models.Protocol]TransactionFinder, len(finders))
	for _, f := range finders {
		byProtocol[f.Protocol()] = f
	}
	return &Dispatcher{
		finders:       byProtocol,
		notifier:      notifier,
		fetcher:       fetcher,
		dlq:           dlq,
		lookupTimeout: lookupTimeout,
		logger:        logger.Named("dispatcher"),
		now:           time.Now,
	}
}

// OnReceived never returns an error: a payment that cannot be matched or forwarded is
// logged and left behind so the observer keeps streaming.
func (d *Dispatcher) OnReceived(ctx context.Context, event models.NormalizedPaymentEvent) error {
	logger := d.logger.With(zap.String("operation", event.ID), zap.String("tx_hash", event.TransactionHash))

	if event.TransactionHash == "" {
		logger.Debug("payment without transaction hash ignored")
		return nil
	}
	if !ledger.IsStellarAsset(event.Asset) {
		logger.Debug("payment with unsupported asset ignored", zap.String("asset", event.Asset))
		return nil
	}
	memo := d.memo(ctx, event, logger)
	if memo == "" {
		logger.Debug("payment without memo ignored")
		return nil
	}

	tx := d.lookup(ctx, event.To, memo, logger)
	if tx == nil {
		metrics.DispatchedPayments.WithLabelValues("none", "unmatched").Inc()
		return nil
	}
	logger = logger.With(zap.String("transaction_id", tx.ID), zap.String("protocol", string(tx.Protocol)))
	d.checkAmount(tx, event, logger)
	d.forward(ctx, tx, event, logger)
	return nil
}

func (d *Dispatcher) memo(ctx context.Context, event models.NormalizedPaymentEvent, logger *zap.Logger) string {
	if memo := event.Memo(); memo != "" || d.fetcher == nil {
		return memo
	}
	if event.Transaction.MemoType != "" {
		return ""
	}

	fetchCtx, cancel := context.WithTimeout(ctx, d.lookupTimeout)
	defer cancel()
	tx, err := d.fetcher.TransactionByHash(fetchCtx, event.TransactionHash)
	if err != nil {
		logger.Warn("failed to fetch ledger transaction for memo", zap.Error(err))
		return ""
	}
	return tx.Memo
}

// lookup tries each flavor in precedence order. A store failure only skips that flavor.
func (d *Dispatcher) lookup(ctx context.Context, toAccount, memo string, logger *zap.Logger) *models.Transaction {
	for _, protocol := range precedence {
		finder, ok := d.finders[protocol]
		if !ok {
			continue
		}

		lookupCtx, cancel := context.WithTimeout(ctx, d.lookupTimeout)
		tx, err := finder.FindByPayment(lookupCtx, toAccount, memo, expectedStatuses[protocol])
		cancel()
		if err != nil {
			logger.Error("transaction lookup failed", zap.String("protocol", string(protocol)), zap.Error(err))
			metrics.DispatchedPayments.WithLabelValues(string(protocol), "lookup_error").Inc()
			continue
		}
		if tx == nil {
			continue
		}
		if !awaitsPayment(tx) {
			logger.Warn("matched transaction is not waiting for this payment",
				zap.String("transaction_id", tx.ID),
				zap.String("status", string(tx.Status)),
				zap.String("kind", string(tx.Kind)),
			)
			continue
		}
		return tx
	}
	return nil
}

// awaitsPayment checks the status against the direction of the transfer: inbound flows
// wait for the user, outbound flows wait for the anchor's own payment.
func awaitsPayment(tx *models.Transaction) bool {
	switch {
	case tx.Kind == models.KindReceive:
		return tx.Status == models.StatusPendingSender
	case tx.Kind.IsWithdrawal():
		return tx.Status == models.StatusPendingUserTransferStart
	case tx.Kind.IsDeposit():
		return tx.Status == models.StatusPendingAnchor || tx.Status == models.StatusPendingStellar
	}
	return false
}

func (d *Dispatcher) checkAmount(tx *models.Transaction, event models.NormalizedPaymentEvent, logger *zap.Logger) {
	expected := tx.AmountExpected
	if tx.Kind.IsDeposit() {
		expected = tx.AmountOut
	}
	if expected == nil {
		expected = tx.AmountIn
	}
	if expected == nil {
		return
	}

	if expected.Asset != "" && expected.Asset != event.Asset {
		logger.Warn("payment asset does not match transaction",
			zap.String("expected", expected.Asset),
			zap.String("received", event.Asset),
		)
	}
	want, err := decimal.NewFromString(expected.Amount)
	if err != nil {
		return
	}
	got := decimal.New(event.Amount, -7)
	if !got.Equal(want) {
		logger.Warn("payment amount does not match transaction",
			zap.String("expected", want.String()),
			zap.String("received", got.String()),
		)
	}
}

func (d *Dispatcher) forward(ctx context.Context, tx *models.Transaction, event models.NormalizedPaymentEvent, logger *zap.Logger) {
	var (
		action models.Action
		params any
		err    error
	)
	if tx.Kind.IsDeposit() {
		action = models.ActionNotifyOnchainFundsSent
		params = models.NotifyOnchainFundsSentRequest{
			BaseRequest:          models.BaseRequest{TransactionID: tx.ID, Message: "funds sent to user"},
			StellarTransactionID: event.TransactionHash,
		}
		err = d.notifier.NotifyOnchainFundsSent(ctx, tx.ID, event.TransactionHash, "funds sent to user")
	} else {
		amountIn := &models.Amount{Amount: ledger.FormatAmount(event.Amount), Asset: event.Asset}
		action = models.ActionNotifyOnchainFundsReceived
		params = models.NotifyOnchainFundsReceivedRequest{
			BaseRequest:          models.BaseRequest{TransactionID: tx.ID, Message: "funds received from user"},
			StellarTransactionID: event.TransactionHash,
			AmountIn:             &models.AmountRequest{Amount: amountIn.Amount, Asset: amountIn.Asset},
		}
		err = d.notifier.NotifyOnchainFundsReceived(ctx, tx.ID, event.TransactionHash, amountIn, "funds received from user")
	}

	if err == nil {
		logger.Info("payment forwarded", zap.String("action", string(action)))
		metrics.DispatchedPayments.WithLabelValues(string(tx.Protocol), "forwarded").Inc()
		return
	}

	logger.Error("platform notification failed", zap.String("action", string(action)), zap.Error(err))
	metrics.DispatchedPayments.WithLabelValues(string(tx.Protocol), "notify_error").Inc()
	d.deadLetter(ctx, tx.ID, action, params, err, logger)
}

// deadLetter stores the failed call as a JSON-RPC request so it can be replayed onto the
// action topic.
func (d *Dispatcher) deadLetter(ctx context.Context, txID string, action models.Action, params any, cause error, logger *zap.Logger) {
	if d.dlq == nil {
		return
	}
	rawParams, err := json.Marshal(params)
	if err != nil {
		logger.Error("failed to encode dead letter", zap.Error(err))
		return
	}
	payload, err := json.Marshal(models.RPCRequest{
		JSONRPC: "2.0",
		ID:      json.RawMessage(fmt.Sprintf("%q", txID)),
		Method:  string(action),
		Params:  rawParams,
	})
	if err != nil {
		logger.Error("failed to encode dead letter", zap.Error(err))
		return
	}

	record := models.FailedRecord{
		Key:      txID,
		Source:   dlqSource,
		Payload:  payload,
		Reason:   cause.Error(),
		FailedAt: d.now(),
	}
	if err := d.dlq.Send(ctx, record); err != nil {
		logger.Error("failed to dead letter notification", zap.Error(err))
	}
}
