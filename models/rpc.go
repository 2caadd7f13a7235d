package models

import (
	// Go Internal Packages
	"encoding/json"
	"time"
)

// Action names a state machine operation. The string is the JSON-RPC method name.
type Action string

const (
	ActionRequestOnchainFunds            Action = "request_onchain_funds"
	ActionNotifyOnchainFundsReceived     Action = "notify_onchain_funds_received"
	ActionNotifyOnchainFundsSent         Action = "notify_onchain_funds_sent"
	ActionDoStellarPayment               Action = "do_stellar_payment"
	ActionDoStellarRefund                Action = "do_stellar_refund"
	ActionRequestTrust                   Action = "request_trust"
	ActionNotifyTrustSet                 Action = "notify_trust_set"
	ActionNotifyRefundPending            Action = "notify_refund_pending"
	ActionNotifyRefundSent               Action = "notify_refund_sent"
	ActionNotifyCustomerInfoUpdated      Action = "notify_customer_info_updated"
	ActionRequestCustomerInfoUpdate      Action = "request_customer_info_update"
	ActionNotifyOffchainFundsPending     Action = "notify_offchain_funds_pending"
	ActionRequestOffchainFunds           Action = "request_offchain_funds"
	ActionNotifyOffchainFundsReceived    Action = "notify_offchain_funds_received"
	ActionNotifyOffchainFundsSent        Action = "notify_offchain_funds_sent"
	ActionNotifyOffchainFundsAvailable   Action = "notify_offchain_funds_available"
	ActionNotifyInteractiveFlowCompleted Action = "notify_interactive_flow_completed"
	ActionNotifyAmountsUpdated           Action = "notify_amounts_updated"
	ActionNotifyTransactionError         Action = "notify_transaction_error"
	ActionNotifyTransactionExpired       Action = "notify_transaction_expired"
	ActionNotifyTransactionRecovery      Action = "notify_transaction_recovery"

	// ActionCompletePendingTrust is internal; the trust sweeper uses it to resume a parked
	// custody payout.
	ActionCompletePendingTrust Action = "complete_pending_trust"
)

// AmountRequest is the wire form of an amount in action requests.
type AmountRequest struct {
	Amount string `json:"amount"`
	Asset  string `json:"asset"`
}

// RefundRequest carries one refund increment.
type RefundRequest struct {
	ID        string        `json:"id"`
	Amount    AmountRequest `json:"amount"`
	AmountFee AmountRequest `json:"amount_fee"`
}

// BaseRequest holds the fields every action accepts.
type BaseRequest struct {
	TransactionID string `json:"transaction_id"`
	Message       string `json:"message,omitempty"`
}

func (r BaseRequest) GetTransactionID() string { return r.TransactionID }
func (r BaseRequest) GetMessage() string       { return r.Message }

type RequestOnchainFundsRequest struct {
	BaseRequest
	AmountIn           *AmountRequest `json:"amount_in,omitempty"`
	AmountOut          *AmountRequest `json:"amount_out,omitempty"`
	AmountFee          *AmountRequest `json:"amount_fee,omitempty"`
	AmountExpected     *AmountRequest `json:"amount_expected,omitempty"`
	DestinationAccount string         `json:"destination_account,omitempty"`
	Memo               string         `json:"memo,omitempty"`
	MemoType           string         `json:"memo_type,omitempty"`
}

type NotifyOnchainFundsReceivedRequest struct {
	BaseRequest
	StellarTransactionID string         `json:"stellar_transaction_id"`
	AmountIn             *AmountRequest `json:"amount_in,omitempty"`
	AmountOut            *AmountRequest `json:"amount_out,omitempty"`
	AmountFee            *AmountRequest `json:"amount_fee,omitempty"`
}

type NotifyOnchainFundsSentRequest struct {
	BaseRequest
	StellarTransactionID string `json:"stellar_transaction_id"`
}

type DoStellarPaymentRequest struct {
	BaseRequest
}

type DoStellarRefundRequest struct {
	BaseRequest
	Refund *RefundRequest `json:"refund"`
}

type RequestTrustRequest struct {
	BaseRequest
}

type NotifyTrustSetRequest struct {
	BaseRequest
	Success bool `json:"success"`
}

type NotifyRefundPendingRequest struct {
	BaseRequest
	Refund *RefundRequest `json:"refund"`
}

type NotifyRefundSentRequest struct {
	BaseRequest
	Refund *RefundRequest `json:"refund,omitempty"`
}

type NotifyCustomerInfoUpdatedRequest struct {
	BaseRequest
}

type RequestCustomerInfoUpdateRequest struct {
	BaseRequest
	RequiredCustomerInfoMessage string   `json:"required_customer_info_message,omitempty"`
	RequiredCustomerInfoUpdates []string `json:"required_customer_info_updates,omitempty"`
}

type NotifyOffchainFundsPendingRequest struct {
	BaseRequest
	ExternalTransactionID string `json:"external_transaction_id,omitempty"`
}

type RequestOffchainFundsRequest struct {
	BaseRequest
	AmountIn       *AmountRequest `json:"amount_in,omitempty"`
	AmountOut      *AmountRequest `json:"amount_out,omitempty"`
	AmountFee      *AmountRequest `json:"amount_fee,omitempty"`
	AmountExpected *AmountRequest `json:"amount_expected,omitempty"`
	Instructions   string         `json:"instructions,omitempty"`
}

type NotifyOffchainFundsReceivedRequest struct {
	BaseRequest
	FundsReceivedAt       *time.Time     `json:"funds_received_at,omitempty"`
	ExternalTransactionID string         `json:"external_transaction_id,omitempty"`
	AmountIn              *AmountRequest `json:"amount_in,omitempty"`
	AmountOut             *AmountRequest `json:"amount_out,omitempty"`
	AmountFee             *AmountRequest `json:"amount_fee,omitempty"`
}

type NotifyOffchainFundsSentRequest struct {
	BaseRequest
	FundsSentAt           *time.Time `json:"funds_sent_at,omitempty"`
	ExternalTransactionID string     `json:"external_transaction_id,omitempty"`
}

type NotifyOffchainFundsAvailableRequest struct {
	BaseRequest
	ExternalTransactionID string `json:"external_transaction_id,omitempty"`
}

type NotifyInteractiveFlowCompletedRequest struct {
	BaseRequest
	AmountIn       *AmountRequest `json:"amount_in"`
	AmountOut      *AmountRequest `json:"amount_out"`
	AmountFee      *AmountRequest `json:"amount_fee"`
	AmountExpected *AmountRequest `json:"amount_expected,omitempty"`
}

type NotifyAmountsUpdatedRequest struct {
	BaseRequest
	AmountOut *AmountRequest `json:"amount_out"`
	AmountFee *AmountRequest `json:"amount_fee"`
}

type NotifyTransactionErrorRequest struct {
	BaseRequest
}

type NotifyTransactionExpiredRequest struct {
	BaseRequest
}

type NotifyTransactionRecoveryRequest struct {
	BaseRequest
}

type CompletePendingTrustRequest struct {
	BaseRequest
}

// RPCRequest is a JSON-RPC 2.0 call envelope.
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// TransactionResponse is the projection returned by every action.
type TransactionResponse struct {
	ID                    string              `json:"id"`
	SEP                   Protocol            `json:"sep"`
	Kind                  Kind                `json:"kind"`
	Status                Status              `json:"status"`
	AmountExpected        *Amount             `json:"amount_expected,omitempty"`
	AmountIn              *Amount             `json:"amount_in,omitempty"`
	AmountOut             *Amount             `json:"amount_out,omitempty"`
	AmountFee             *Amount             `json:"amount_fee,omitempty"`
	StartedAt             time.Time           `json:"started_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
	TransferReceivedAt    *time.Time          `json:"transfer_received_at,omitempty"`
	CompletedAt           *time.Time          `json:"completed_at,omitempty"`
	Message               string              `json:"message,omitempty"`
	Refunds               *Refunds            `json:"refunds,omitempty"`
	StellarTransactions   []LedgerTransaction `json:"stellar_transactions,omitempty"`
	ExternalTransactionID string              `json:"external_transaction_id,omitempty"`
	Memo                  string              `json:"memo,omitempty"`
	MemoType              MemoType            `json:"memo_type,omitempty"`
	DestinationAccount    string              `json:"destination_account,omitempty"`
	SourceAccount         string              `json:"source_account,omitempty"`
}

// NewTransactionResponse projects a transaction into its response shape.
func NewTransactionResponse(t *Transaction) *TransactionResponse {
	return &TransactionResponse{
		ID:                    t.ID,
		SEP:                   t.Protocol,
		Kind:                  t.Kind,
		Status:                t.Status,
		AmountExpected:        t.AmountExpected,
		AmountIn:              t.AmountIn,
		AmountOut:             t.AmountOut,
		AmountFee:             t.AmountFee,
		StartedAt:             t.StartedAt,
		UpdatedAt:             t.UpdatedAt,
		TransferReceivedAt:    t.TransferReceivedAt,
		CompletedAt:           t.CompletedAt,
		Message:               t.Message,
		Refunds:               t.Refunds,
		StellarTransactions:   t.StellarTransactions,
		ExternalTransactionID: t.ExternalTransactionID,
		Memo:                  t.Memo,
		MemoType:              t.MemoType,
		DestinationAccount:    t.ToAccount,
		SourceAccount:         t.FromAccount,
	}
}
