package dispatcher

import (
	// Go Internal Packages
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	// Local Packages
	models "anchor-observer/models"
	memory "anchor-observer/repositories/memory"

	// External Packages
	"go.uber.org/zap"
)

const (
	anchorAccount = "GANCHOR"
	userAccount   = "GUSER"
	usdc          = "stellar:USDC:GISSUER"
)

type call struct {
	action   models.Action
	txID     string
	hash     string
	amountIn *models.Amount
}

type notifierStub struct {
	calls []call
	err   error
}

func (n *notifierStub) NotifyOnchainFundsReceived(_ context.Context, txID, hash string, amountIn *models.Amount, _ string) error {
	n.calls = append(n.calls, call{action: models.ActionNotifyOnchainFundsReceived, txID: txID, hash: hash, amountIn: amountIn})
	return n.err
}

func (n *notifierStub) NotifyOnchainFundsSent(_ context.Context, txID, hash, _ string) error {
	n.calls = append(n.calls, call{action: models.ActionNotifyOnchainFundsSent, txID: txID, hash: hash})
	return n.err
}

type fetcherStub struct {
	tx *models.LedgerTransaction
}

func (f fetcherStub) TransactionByHash(context.Context, string) (*models.LedgerTransaction, error) {
	if f.tx == nil {
		return nil, errors.New("not found")
	}
	return f.tx, nil
}

type fixture struct {
	sep6, sep24, sep31 *memory.TxRepository
	notifier           *notifierStub
	dlq                *memory.DeadLetterQueue
	dispatcher         *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sep6:     memory.NewTxRepository(models.ProtocolSEP6),
		sep24:    memory.NewTxRepository(models.ProtocolSEP24),
		sep31:    memory.NewTxRepository(models.ProtocolSEP31),
		notifier: &notifierStub{},
		dlq:      memory.NewDeadLetterQueue(),
	}
	f.dispatcher = New(
		[]TransactionFinder{f.sep6, f.sep24, f.sep31},
		f.notifier, nil, f.dlq, time.Second, zap.NewNop(),
	)
	return f
}

func save(t *testing.T, repo *memory.TxRepository, tx *models.Transaction) {
	t.Helper()
	if err := repo.Save(context.Background(), tx); err != nil {
		t.Fatalf("save %s: %v", tx.ID, err)
	}
}

func withdrawal(id string, protocol models.Protocol, memo string) *models.Transaction {
	return &models.Transaction{
		ID:             id,
		Protocol:       protocol,
		Kind:           models.KindWithdrawal,
		Status:         models.StatusPendingUserTransferStart,
		ToAccount:      anchorAccount,
		Memo:           memo,
		AmountExpected: &models.Amount{Amount: "100", Asset: usdc},
	}
}

func event(to, memo string, stroops int64) models.NormalizedPaymentEvent {
	return models.NormalizedPaymentEvent{
		ID:              "op-1",
		Cursor:          "1",
		TransactionHash: "abc123",
		From:            userAccount,
		To:              to,
		AssetKind:       models.AssetIssued,
		AssetCode:       "USDC",
		AssetIssuer:     "GISSUER",
		Asset:           usdc,
		Amount:          stroops,
		Transaction:     models.LedgerTransaction{Hash: "abc123", Memo: memo, MemoType: models.MemoTypeText},
	}
}

func TestWithdrawalPaymentNotifiesFundsReceived(t *testing.T) {
	f := newFixture(t)
	save(t, f.sep24, withdrawal("w-1", models.ProtocolSEP24, "m"))

	_ = f.dispatcher.OnReceived(context.Background(), event(anchorAccount, "m", 1_000_000_000))

	if len(f.notifier.calls) != 1 {
		t.Fatalf("expected one notification, got %d", len(f.notifier.calls))
	}
	c := f.notifier.calls[0]
	if c.action != models.ActionNotifyOnchainFundsReceived || c.txID != "w-1" || c.hash != "abc123" {
		t.Fatalf("unexpected call %+v", c)
	}
	if c.amountIn.Amount != "100.0000000" || c.amountIn.Asset != usdc {
		t.Fatalf("expected ledger amount 100.0000000 %s, got %+v", usdc, c.amountIn)
	}
}

func TestDepositPaymentNotifiesFundsSent(t *testing.T) {
	f := newFixture(t)
	save(t, f.sep6, &models.Transaction{
		ID:        "d-1",
		Protocol:  models.ProtocolSEP6,
		Kind:      models.KindDeposit,
		Status:    models.StatusPendingStellar,
		ToAccount: userAccount,
		Memo:      "m",
		AmountOut: &models.Amount{Amount: "5", Asset: usdc},
	})

	_ = f.dispatcher.OnReceived(context.Background(), event(userAccount, "m", 50_000_000))

	if len(f.notifier.calls) != 1 || f.notifier.calls[0].action != models.ActionNotifyOnchainFundsSent {
		t.Fatalf("expected funds sent notification, got %+v", f.notifier.calls)
	}
}

func TestReceiveFlowTakesPrecedence(t *testing.T) {
	f := newFixture(t)
	save(t, f.sep24, withdrawal("w-1", models.ProtocolSEP24, "m"))
	save(t, f.sep31, &models.Transaction{
		ID:        "r-1",
		Protocol:  models.ProtocolSEP31,
		Kind:      models.KindReceive,
		Status:    models.StatusPendingSender,
		ToAccount: anchorAccount,
		Memo:      "m",
	})

	_ = f.dispatcher.OnReceived(context.Background(), event(anchorAccount, "m", 1))

	if len(f.notifier.calls) != 1 || f.notifier.calls[0].txID != "r-1" {
		t.Fatalf("expected the receive transaction to win, got %+v", f.notifier.calls)
	}
}

func TestLookupFailureFallsThroughToNextFlavor(t *testing.T) {
	f := newFixture(t)
	f.sep31.FailLookups = errors.New("store unavailable")
	save(t, f.sep6, withdrawal("w-6", models.ProtocolSEP6, "m"))

	_ = f.dispatcher.OnReceived(context.Background(), event(anchorAccount, "m", 1))

	if len(f.notifier.calls) != 1 || f.notifier.calls[0].txID != "w-6" {
		t.Fatalf("expected fall through to the SEP-6 store, got %+v", f.notifier.calls)
	}
}

func TestInvalidEventsAreIgnored(t *testing.T) {
	f := newFixture(t)
	save(t, f.sep24, withdrawal("w-1", models.ProtocolSEP24, "m"))

	noHash := event(anchorAccount, "m", 1)
	noHash.TransactionHash = ""
	noMemo := event(anchorAccount, "", 1)
	offLedgerAsset := event(anchorAccount, "m", 1)
	offLedgerAsset.Asset = "iso4217:USD"

	for name, e := range map[string]models.NormalizedPaymentEvent{
		"no hash":   noHash,
		"no memo":   noMemo,
		"off asset": offLedgerAsset,
	} {
		if err := f.dispatcher.OnReceived(context.Background(), e); err != nil {
			t.Fatalf("%s: dispatcher must not fail, got %v", name, err)
		}
	}
	if len(f.notifier.calls) != 0 {
		t.Fatalf("invalid events must not be forwarded, got %+v", f.notifier.calls)
	}
}

func TestMemoRecoveredFromLedgerTransaction(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.fetcher = fetcherStub{tx: &models.LedgerTransaction{Hash: "abc123", Memo: "m", MemoType: models.MemoTypeText}}
	save(t, f.sep24, withdrawal("w-1", models.ProtocolSEP24, "m"))

	e := event(anchorAccount, "", 1)
	e.Transaction = models.LedgerTransaction{}
	_ = f.dispatcher.OnReceived(context.Background(), e)

	if len(f.notifier.calls) != 1 {
		t.Fatalf("expected memo lookup to match, got %+v", f.notifier.calls)
	}
}

func TestAmountMismatchStillForwards(t *testing.T) {
	f := newFixture(t)
	save(t, f.sep24, withdrawal("w-1", models.ProtocolSEP24, "m"))

	_ = f.dispatcher.OnReceived(context.Background(), event(anchorAccount, "m", 10))

	if len(f.notifier.calls) != 1 {
		t.Fatal("amount mismatch must only warn")
	}
}

func TestNotifierFailureIsDeadLettered(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("platform down")
	save(t, f.sep24, withdrawal("w-1", models.ProtocolSEP24, "m"))

	if err := f.dispatcher.OnReceived(context.Background(), event(anchorAccount, "m", 1)); err != nil {
		t.Fatalf("notifier failure must not propagate, got %v", err)
	}
	if len(f.dlq.Records) != 1 {
		t.Fatalf("expected one dead letter, got %d", len(f.dlq.Records))
	}

	var req models.RPCRequest
	if err := json.Unmarshal(f.dlq.Records[0].Payload, &req); err != nil {
		t.Fatalf("dead letter payload: %v", err)
	}
	if req.Method != string(models.ActionNotifyOnchainFundsReceived) {
		t.Fatalf("unexpected method %q", req.Method)
	}
	var params models.NotifyOnchainFundsReceivedRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		t.Fatal(err)
	}
	if params.TransactionID != "w-1" || params.AmountIn.Amount != "0.0000001" {
		t.Fatalf("unexpected params %+v", params)
	}
}

func TestTransactionNotAwaitingPaymentIsSkipped(t *testing.T) {
	f := newFixture(t)
	tx := withdrawal("w-1", models.ProtocolSEP24, "m")
	tx.Status = models.StatusPendingAnchor
	save(t, f.sep24, tx)

	_ = f.dispatcher.OnReceived(context.Background(), event(anchorAccount, "m", 1))

	if len(f.notifier.calls) != 0 {
		t.Fatalf("a withdrawal already past transfer start must not be notified again, got %+v", f.notifier.calls)
	}
}
