// Package actions implements the transaction status state machine. Every business action
// loads the transaction, checks the action against the transaction's state, validates the
// request, persists the mutation and publishes the resulting event.
package actions

import (
	// Go Internal Packages
	"context"
	"strconv"
	"time"

	// Local Packages
	errs "anchor-observer/errors"
	ledger "anchor-observer/ledger"
	metrics "anchor-observer/metrics"
	models "anchor-observer/models"
	utils "anchor-observer/utils"

	// External Packages
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TransactionStore is one protocol flavor's transaction store.
type TransactionStore interface {
	Protocol() models.Protocol
	FindByID(ctx context.Context, id string) (*models.Transaction, error)
	Save(ctx context.Context, tx *models.Transaction) error
}

type EventSession interface {
	Publish(ctx context.Context, event models.Event) error
}

// DepositAddress is where the user is asked to send on-chain funds.
type DepositAddress struct {
	Address  string
	Memo     string
	MemoType models.MemoType
}

type Custody interface {
	CreateTransactionPayment(ctx context.Context, txID string) error
	CreateTransactionRefund(ctx context.Context, txID string, refund models.RefundRequest) error
	GenerateDepositAddress(ctx context.Context, asset string) (DepositAddress, error)
}

// Ledger is the part of the ledger boundary handlers consult.
type Ledger interface {
	ledger.TransactionFetcher
	ledger.TrustlineChecker
}

type AccountRegistry interface {
	Upsert(ctx context.Context, account string, class models.AccountClass) error
}

type PendingTrustStore interface {
	Save(ctx context.Context, record models.PendingTrust) error
	Delete(ctx context.Context, transactionID string) error
}

const (
	GeneratorSelf    = "self"
	GeneratorCustody = "custody"
	GeneratorNone    = "none"
)

type Options struct {
	CustodyEnabled      bool
	Generator           string
	DistributionAccount string
	// StoreTimeout bounds every store and ledger call made by a handler.
	StoreTimeout time.Duration
}

type Service struct {
	stores   []TransactionStore
	events   EventSession
	custody  Custody
	ledger   Ledger
	accounts AccountRegistry
	trust    PendingTrustStore
	opts     Options
	locks    *keyedMutex
	logger   *zap.Logger
	now      func() time.Time
}

// New builds the service. custody may be nil when custody integration is disabled.
func New(stores []TransactionStore, events EventSession, custody Custody, source Ledger, accounts AccountRegistry, trust PendingTrustStore, opts Options, logger *zap.Logger) *Service {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 10 * time.Second
	}
	if opts.Generator == "" {
		opts.Generator = GeneratorNone
	}
	return &Service{
		stores:   stores,
		events:   events,
		custody:  custody,
		ledger:   source,
		accounts: accounts,
		trust:    trust,
		opts:     opts,
		locks:    newKeyedMutex(),
		logger:   logger.Named("actions"),
		now:      time.Now,
	}
}

type request interface {
	GetTransactionID() string
	GetMessage() string
}

// step describes one action. allowed is checked before validate, which runs before any
// mutation. update works on a copy that is only persisted when every step succeeded.
type step[R request] struct {
	action   models.Action
	allowed  func(s *Service, tx *models.Transaction) bool
	validate func(s *Service, tx *models.Transaction, req R) error
	update   func(ctx context.Context, s *Service, tx *models.Transaction, req R) error
}

func execute[R request](ctx context.Context, s *Service, st step[R], req R) (resp *models.TransactionResponse, err error) {
	started := s.now()
	defer func() {
		result := "ok"
		if err != nil {
			result = errs.KindOf(err).String()
		}
		metrics.ActionRequests.WithLabelValues(string(st.action), result).Inc()
		metrics.ActionLatency.WithLabelValues(string(st.action)).Observe(time.Since(started).Seconds())
	}()

	id := req.GetTransactionID()
	if id == "" {
		return nil, errs.EmptyParamErr("transaction_id")
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	tx, store, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if !st.allowed(s, tx) {
		return nil, errs.UnsupportedActionErr(string(st.action), string(tx.Status), string(tx.Kind), string(tx.Protocol), tx.FundsReceived())
	}
	if st.validate != nil {
		if err := st.validate(s, tx, req); err != nil {
			return nil, err
		}
	}

	updated := tx.Clone()
	if err := st.update(ctx, s, updated, req); err != nil {
		return nil, err
	}
	updated.UpdatedAt = s.now()
	if msg := req.GetMessage(); msg != "" {
		updated.Message = msg
	}

	saveCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	if err := store.Save(saveCtx, updated); err != nil {
		if errs.IsKind(err, errs.Conflict) {
			return nil, err
		}
		return nil, errs.InternalErr("failed to save transaction", err)
	}

	s.publish(ctx, st.action, tx.Status, updated)
	s.logger.Info("transaction updated",
		zap.String("action", string(st.action)),
		zap.String("transaction_id", id),
		zap.String("from", string(tx.Status)),
		zap.String("to", string(updated.Status)),
	)
	return models.NewTransactionResponse(updated), nil
}

// load finds the transaction in exactly one flavor's store.
func (s *Service) load(ctx context.Context, id string) (*models.Transaction, TransactionStore, error) {
	var (
		found *models.Transaction
		owner TransactionStore
	)
	for _, store := range s.stores {
		lookupCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
		tx, err := store.FindByID(lookupCtx, id)
		cancel()
		if err != nil {
			return nil, nil, errs.InternalErr("failed to load transaction", err)
		}
		if tx == nil {
			continue
		}
		if found != nil {
			return nil, nil, errs.InternalErr("transaction id present in more than one store: "+id, nil)
		}
		found, owner = tx, store
	}
	if found == nil {
		return nil, nil, errs.NotFoundErr("transaction", id)
	}
	return found, owner, nil
}

// publish hands the event to the session. Failures are logged; the transition is
// already persisted.
func (s *Service) publish(ctx context.Context, action models.Action, previous models.Status, tx *models.Transaction) {
	if s.events == nil {
		return
	}
	eventType := models.EventTransactionStatusChanged
	if previous == tx.Status {
		eventType = models.EventTransactionUpdated
	}
	event := models.Event{
		ID:             uuid.NewString(),
		Type:           eventType,
		DedupKey:       DedupKey(tx, action),
		Action:         action,
		PreviousStatus: previous,
		Timestamp:      s.now(),
		Transaction:    models.NewTransactionResponse(tx),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish transaction event",
			zap.String("transaction_id", tx.ID),
			zap.String("action", string(action)),
			zap.Error(err),
		)
	}
}

// DedupKey identifies the outcome of one action on one version of a transaction. It stops
// the same state change from being published twice. A redelivered request lands on a
// later version and is stopped by the allow-lists, or by the request id in the action
// processor.
func DedupKey(tx *models.Transaction, action models.Action) string {
	return utils.JoinKey(tx.ID, string(action), string(tx.Status), strconv.FormatInt(tx.Version, 10))
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}
