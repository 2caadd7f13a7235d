package actions_test

import (
	// Go Internal Packages
	"context"
	"testing"
	"time"

	// Local Packages
	config "anchor-observer/config"
	ledger "anchor-observer/ledger"
	models "anchor-observer/models"
	memory "anchor-observer/repositories/memory"
	actions "anchor-observer/services/actions"
	dispatcher "anchor-observer/services/dispatcher"
	observer "anchor-observer/services/observer"
	registry "anchor-observer/services/registry"

	// External Packages
	"go.uber.org/zap"
)

const (
	anchorAccount = "GANCHOR"
	userAccount   = "GUSER"
	usdcIssuer    = "GISSUER"
)

// replayStreamer delivers its operations once and then idles until cancelled.
type replayStreamer struct {
	ops []ledger.Operation
}

func (r *replayStreamer) LatestCursor(context.Context) (string, error) {
	return "", nil
}

func (r *replayStreamer) StreamOperations(ctx context.Context, _ string, handler ledger.OperationHandler) error {
	for _, op := range r.ops {
		if err := handler(ctx, op); err != nil {
			return err
		}
	}
	r.ops = nil
	<-ctx.Done()
	return ctx.Err()
}

func TestObservedWithdrawalPaymentReachesTheStateMachine(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	sep6 := memory.NewTxRepository(models.ProtocolSEP6)
	sep24 := memory.NewTxRepository(models.ProtocolSEP24)
	sep31 := memory.NewTxRepository(models.ProtocolSEP31)
	if err := sep24.Save(ctx, &models.Transaction{
		ID:        "w-100",
		Protocol:  models.ProtocolSEP24,
		Kind:      models.KindWithdrawal,
		Status:    models.StatusPendingUserTransferStart,
		ToAccount: anchorAccount,
		Memo:      "m",
		MemoType:  models.MemoTypeText,
		AmountIn:  &models.Amount{Amount: "100", Asset: "stellar:USDC:" + usdcIssuer},
	}); err != nil {
		t.Fatal(err)
	}

	accounts := registry.New(memory.NewAccountRepository(), logger)
	if err := accounts.Upsert(ctx, anchorAccount, models.AccountResidential); err != nil {
		t.Fatal(err)
	}

	service := actions.New(
		[]actions.TransactionStore{sep31, sep24, sep6},
		nil, nil, nil, accounts, memory.NewPendingTrustRepository(),
		actions.Options{}, logger,
	)
	d := dispatcher.New(
		[]dispatcher.TransactionFinder{sep31, sep24, sep6},
		actions.NewNotifier(service), nil, memory.NewDeadLetterQueue(), time.Second, logger,
	)

	source := &replayStreamer{ops: []ledger.Operation{{
		ID:              "200",
		PagingToken:     "200",
		Type:            ledger.OpPayment,
		TransactionHash: "hash-200",
		Successful:      true,
		From:            userAccount,
		To:              anchorAccount,
		AssetType:       "credit_alphanum4",
		AssetCode:       "USDC",
		AssetIssuer:     usdcIssuer,
		Amount:          "100.0000000",
		Transaction:     &models.LedgerTransaction{Hash: "hash-200", Memo: "m", MemoType: models.MemoTypeText, Successful: true},
	}}}
	cfg := config.LedgerSource{
		Name:                  "pipeline",
		RequestTimeout:        time.Second,
		SilenceCheckInterval:  time.Hour,
		SilenceTimeout:        time.Hour,
		SilenceTimeoutRetries: 2,
		InitialStreamBackoff:  time.Millisecond,
		MaxStreamBackoff:      time.Millisecond,
		InitialEventBackoff:   time.Millisecond,
		MaxEventBackoff:       time.Millisecond,
		MaxEventRetries:       3,
	}
	o := observer.New(cfg, source, memory.NewCursorRepository(), accounts, logger, d)
	if err := o.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer o.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		tx, _ := sep24.FindByID(ctx, "w-100")
		if tx.Status == models.StatusPendingAnchor {
			if tx.AmountIn.Amount != "100.0000000" || tx.StellarTransactionID != "hash-200" || tx.TransferReceivedAt == nil {
				t.Fatalf("unexpected transaction after payment: %+v", tx)
			}
			if tx.Message != "funds received from user" {
				t.Fatalf("unexpected message %q", tx.Message)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("transaction still %s", tx.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
