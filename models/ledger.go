package models

import "time"

type AssetKind string

const (
	AssetNative AssetKind = "native"
	AssetIssued AssetKind = "issued"
)

type MemoType string

const (
	MemoTypeNone MemoType = "none"
	MemoTypeText MemoType = "text"
	MemoTypeID   MemoType = "id"
	MemoTypeHash MemoType = "hash"
)

// LedgerTransaction is the ledger side of a payment: the envelope that carried one or
// more payment operations. Hash memos are hex encoded.
type LedgerTransaction struct {
	Hash       string          `json:"hash" bson:"hash"`
	Ledger     int32           `json:"ledger" bson:"ledger"`
	Memo       string          `json:"memo,omitempty" bson:"memo,omitempty"`
	MemoType   MemoType        `json:"memo_type,omitempty" bson:"memo_type,omitempty"`
	Envelope   string          `json:"envelope,omitempty" bson:"envelope,omitempty"`
	Successful bool            `json:"successful" bson:"successful"`
	CreatedAt  time.Time       `json:"created_at" bson:"created_at"`
	Payments   []LedgerPayment `json:"payments,omitempty" bson:"payments,omitempty"`
}

// LedgerPayment is one payment leg of a LedgerTransaction.
type LedgerPayment struct {
	ID     string `json:"id" bson:"id"`
	Type   string `json:"payment_type" bson:"payment_type"`
	From   string `json:"source_account" bson:"source_account"`
	To     string `json:"destination_account" bson:"destination_account"`
	Asset  string `json:"asset" bson:"asset"`
	Amount string `json:"amount" bson:"amount"`
}

// NormalizedPaymentEvent is one payment-shaped ledger operation with the shape of the
// original operation erased. Amount is in stroops.
type NormalizedPaymentEvent struct {
	ID              string            `json:"id"`
	Cursor          string            `json:"cursor"`
	OperationType   string            `json:"operation_type"`
	TransactionHash string            `json:"transaction_hash"`
	From            string            `json:"from"`
	To              string            `json:"to"`
	AssetKind       AssetKind         `json:"asset_kind"`
	AssetCode       string            `json:"asset_code,omitempty"`
	AssetIssuer     string            `json:"asset_issuer,omitempty"`
	Asset           string            `json:"asset"`
	Amount          int64             `json:"amount"`
	CreatedAt       time.Time         `json:"created_at"`
	Transaction     LedgerTransaction `json:"transaction"`
}

// Memo returns the memo of the carrying ledger transaction.
func (e NormalizedPaymentEvent) Memo() string {
	return e.Transaction.Memo
}

// ObserverState is the lifecycle position of one observer read loop.
type ObserverState string

const (
	ObserverIdle         ObserverState = "IDLE"
	ObserverStreaming    ObserverState = "STREAMING"
	ObserverReconnecting ObserverState = "RECONNECTING"
	ObserverStreamError  ObserverState = "STREAM_ERROR"
)

type HealthColor string

const (
	HealthGreen  HealthColor = "GREEN"
	HealthYellow HealthColor = "YELLOW"
	HealthRed    HealthColor = "RED"
)

type ObserverHealth struct {
	Name          string        `json:"name"`
	Status        HealthColor   `json:"status"`
	State         ObserverState `json:"state"`
	Cursor        string        `json:"cursor,omitempty"`
	LastEventAt   *time.Time    `json:"last_event_at,omitempty"`
	SilentWindows int           `json:"silent_windows"`
	Reconnects    int           `json:"reconnects"`
	LastError     string        `json:"last_error,omitempty"`
}
