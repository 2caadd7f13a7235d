package processors

import (
	// Go Internal Packages
	"context"
	"encoding/json"
	"testing"
	"time"

	// Local Packages
	errs "anchor-observer/errors"
	models "anchor-observer/models"
	memory "anchor-observer/repositories/memory"

	// External Packages
	"go.uber.org/zap"
)

type routerStub struct {
	calls     []string
	conflicts int
	err       error
}

func (r *routerStub) Dispatch(_ context.Context, method string, params json.RawMessage) (*models.TransactionResponse, error) {
	r.calls = append(r.calls, method+" "+string(params))
	if r.conflicts > 0 {
		r.conflicts--
		return nil, errs.ConflictErr("sep24_transactions", "tx-1")
	}
	if r.err != nil {
		return nil, r.err
	}
	return &models.TransactionResponse{ID: "tx-1"}, nil
}

func record(value string) models.Record {
	return models.Record{Key: []byte("tx-1"), Value: []byte(value), Topic: "transaction-actions"}
}

func TestProcessRecordsDispatchesEnvelope(t *testing.T) {
	router := &routerStub{}
	dlq := memory.NewDeadLetterQueue()
	p := NewActionProcessor(zap.NewNop(), router, dlq, nil, 0)

	err := p.ProcessRecords(context.Background(), []models.Record{
		record(`{"jsonrpc":"2.0","id":"1","method":"notify_offchain_funds_sent","params":{"transaction_id":"tx-1"}}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(router.calls) != 1 || router.calls[0] != `notify_offchain_funds_sent {"transaction_id":"tx-1"}` {
		t.Fatalf("unexpected calls %v", router.calls)
	}
	if len(dlq.Records) != 0 {
		t.Fatalf("nothing should be dead lettered, got %d", len(dlq.Records))
	}
}

func TestFailedRecordsAreDeadLettered(t *testing.T) {
	router := &routerStub{err: errs.NotFoundErr("transaction", "tx-1")}
	dlq := memory.NewDeadLetterQueue()
	p := NewActionProcessor(zap.NewNop(), router, dlq, nil, 0)

	err := p.ProcessRecords(context.Background(), []models.Record{
		record(`not json`),
		record(`{"jsonrpc":"2.0","params":{}}`),
		record(`{"jsonrpc":"2.0","method":"notify_transaction_error","params":{"transaction_id":"tx-1"}}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(dlq.Records) != 3 {
		t.Fatalf("expected 3 dead lettered records, got %d", len(dlq.Records))
	}
	for _, r := range dlq.Records {
		if r.Source != dlqSource || r.Key != "tx-1" || r.Reason == "" {
			t.Fatalf("unexpected failed record %+v", r)
		}
	}
	if len(router.calls) != 1 {
		t.Fatalf("permanent failures must not be retried, got %d calls", len(router.calls))
	}
}

func TestConflictIsRetried(t *testing.T) {
	router := &routerStub{conflicts: 2}
	dlq := memory.NewDeadLetterQueue()
	p := NewActionProcessor(zap.NewNop(), router, dlq, nil, 0)
	p.retryInterval = time.Millisecond

	err := p.ProcessRecord(context.Background(),
		record(`{"jsonrpc":"2.0","method":"notify_transaction_error","params":{"transaction_id":"tx-1"}}`))
	if err != nil {
		t.Fatalf("expected success after conflicts, got %v", err)
	}
	if len(router.calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(router.calls))
	}
}

func TestRedeliveredRequestIsAppliedOnce(t *testing.T) {
	router := &routerStub{}
	dlq := memory.NewDeadLetterQueue()
	p := NewActionProcessor(zap.NewNop(), router, dlq, memory.NewDeduper(), time.Hour)

	sent := record(`{"jsonrpc":"2.0","id":"req-7","method":"notify_amounts_updated","params":{"transaction_id":"tx-1"}}`)
	for i := 0; i < 2; i++ {
		if err := p.ProcessRecords(context.Background(), []models.Record{sent}); err != nil {
			t.Fatal(err)
		}
	}
	if len(router.calls) != 1 {
		t.Fatalf("redelivered request must be skipped, got %d calls", len(router.calls))
	}

	// requests without an id are never deduplicated
	anonymous := record(`{"jsonrpc":"2.0","method":"notify_amounts_updated","params":{"transaction_id":"tx-1"}}`)
	_ = p.ProcessRecords(context.Background(), []models.Record{anonymous, anonymous})
	if len(router.calls) != 3 {
		t.Fatalf("expected anonymous requests to dispatch, got %d calls", len(router.calls))
	}
}

func TestFailedRequestCanBeRedelivered(t *testing.T) {
	router := &routerStub{err: errs.NotFoundErr("transaction", "tx-1")}
	dlq := memory.NewDeadLetterQueue()
	p := NewActionProcessor(zap.NewNop(), router, dlq, memory.NewDeduper(), time.Hour)

	sent := record(`{"jsonrpc":"2.0","id":8,"method":"notify_transaction_error","params":{"transaction_id":"tx-1"}}`)
	_ = p.ProcessRecords(context.Background(), []models.Record{sent})
	router.err = nil
	_ = p.ProcessRecords(context.Background(), []models.Record{sent})

	if len(router.calls) != 2 {
		t.Fatalf("a failed request must be retried on redelivery, got %d calls", len(router.calls))
	}
	if len(dlq.Records) != 1 {
		t.Fatalf("expected only the first attempt dead lettered, got %d", len(dlq.Records))
	}
}
