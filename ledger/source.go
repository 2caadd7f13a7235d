// Package ledger adapts the Stellar ledger's query API into a resumable stream of
// payment-shaped operations and normalizes them into models.NormalizedPaymentEvent.
package ledger

import (
	// Go Internal Packages
	"context"
	"time"

	// Local Packages
	models "anchor-observer/models"
)

type OperationType string

const (
	OpPayment                  OperationType = "payment"
	OpPathPaymentStrictReceive OperationType = "path_payment_strict_receive"
	OpPathPaymentStrictSend    OperationType = "path_payment_strict_send"
	OpInvokeHostFunction       OperationType = "invoke_host_function"
)

// Operation is a raw operation as delivered by a Source, before normalization.
type Operation struct {
	ID              string
	PagingToken     string
	Type            OperationType
	TransactionHash string
	Successful      bool
	From            string
	To              string
	AssetType       string
	AssetCode       string
	AssetIssuer     string
	Amount          string
	// FunctionName is the invoked contract function, only set for invoke_host_function.
	FunctionName string
	CreatedAt    time.Time
	Transaction  *models.LedgerTransaction
}

// OperationHandler receives operations in ledger order. Returning an error stops the
// stream and makes StreamOperations return it.
type OperationHandler func(ctx context.Context, op Operation) error

// Streamer is what the observer reads from.
type Streamer interface {
	// LatestCursor returns a cursor positioned just before the most recent payment
	// operation. It returns "" when the ledger has no records.
	LatestCursor(ctx context.Context) (string, error)
	// StreamOperations blocks, delivering operations strictly after cursor, until ctx is
	// done or the stream fails.
	StreamOperations(ctx context.Context, cursor string, handler OperationHandler) error
}

// TransactionFetcher resolves a full ledger transaction with its payment legs.
type TransactionFetcher interface {
	TransactionByHash(ctx context.Context, hash string) (*models.LedgerTransaction, error)
}

// TrustlineChecker reports whether account can hold asset.
type TrustlineChecker interface {
	HasTrustline(ctx context.Context, account, asset string) (bool, error)
}

// Source is the full ledger boundary.
type Source interface {
	Streamer
	TransactionFetcher
	TrustlineChecker
}
