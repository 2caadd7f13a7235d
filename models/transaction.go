package models

import "time"

// Protocol tags the flavor of a transaction record.
type Protocol string

const (
	ProtocolSEP6  Protocol = "6"
	ProtocolSEP24 Protocol = "24"
	ProtocolSEP31 Protocol = "31"
)

type Kind string

const (
	KindDeposit            Kind = "deposit"
	KindDepositExchange    Kind = "deposit-exchange"
	KindWithdrawal         Kind = "withdrawal"
	KindWithdrawalExchange Kind = "withdrawal-exchange"
	KindReceive            Kind = "receive"
)

func (k Kind) IsDeposit() bool {
	return k == KindDeposit || k == KindDepositExchange
}

func (k Kind) IsWithdrawal() bool {
	return k == KindWithdrawal || k == KindWithdrawalExchange
}

type Status string

const (
	StatusIncomplete                   Status = "incomplete"
	StatusPendingUserTransferStart     Status = "pending_user_transfer_start"
	StatusPendingUserTransferComplete  Status = "pending_user_transfer_complete"
	StatusPendingExternal              Status = "pending_external"
	StatusPendingAnchor                Status = "pending_anchor"
	StatusPendingStellar               Status = "pending_stellar"
	StatusPendingTrust                 Status = "pending_trust"
	StatusPendingUser                  Status = "pending_user"
	StatusPendingCustomerInfoUpdate    Status = "pending_customer_info_update"
	StatusPendingTransactionInfoUpdate Status = "pending_transaction_info_update"
	StatusPendingSender                Status = "pending_sender"
	StatusPendingReceiver              Status = "pending_receiver"
	StatusCompleted                    Status = "completed"
	StatusRefunded                     Status = "refunded"
	StatusExpired                      Status = "expired"
	StatusError                        Status = "error"
)

func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusRefunded, StatusExpired, StatusError:
		return true
	}
	return false
}

// Amount is a decimal string tagged with an asset identifier such as
// "stellar:USDC:G..." or "iso4217:USD".
type Amount struct {
	Amount string `json:"amount" bson:"amount"`
	Asset  string `json:"asset" bson:"asset"`
}

// RefundPayment is one increment of money returned to the user.
type RefundPayment struct {
	ID          string     `json:"id" bson:"id"`
	IDType      string     `json:"id_type" bson:"id_type"`
	Amount      Amount     `json:"amount" bson:"amount"`
	Fee         Amount     `json:"fee" bson:"fee"`
	RequestedAt *time.Time `json:"requested_at,omitempty" bson:"requested_at,omitempty"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty" bson:"refunded_at,omitempty"`
}

const (
	RefundIDTypeStellar  = "stellar"
	RefundIDTypeExternal = "external"
)

// Refunds aggregates refund payments. AmountRefunded includes fees.
type Refunds struct {
	AmountRefunded Amount          `json:"amount_refunded" bson:"amount_refunded"`
	AmountFee      Amount          `json:"amount_fee" bson:"amount_fee"`
	Payments       []RefundPayment `json:"payments" bson:"payments"`
}

// SEP31Fields are only set on receive transactions.
type SEP31Fields struct {
	SenderID            string `json:"sender_id,omitempty" bson:"sender_id,omitempty"`
	ReceiverID          string `json:"receiver_id,omitempty" bson:"receiver_id,omitempty"`
	RequiredInfoMessage string `json:"required_info_message,omitempty" bson:"required_info_message,omitempty"`
	QuoteID             string `json:"quote_id,omitempty" bson:"quote_id,omitempty"`
}

// InteractiveFields are only set on SEP-6 and SEP-24 transactions.
type InteractiveFields struct {
	ClientDomain             string   `json:"client_domain,omitempty" bson:"client_domain,omitempty"`
	WithdrawAnchorAccount    string   `json:"withdraw_anchor_account,omitempty" bson:"withdraw_anchor_account,omitempty"`
	RequiredCustomerInfo     []string `json:"required_customer_info_updates,omitempty" bson:"required_customer_info_updates,omitempty"`
	RequiredCustomerInfoText string   `json:"required_customer_info_message,omitempty" bson:"required_customer_info_message,omitempty"`
	Instructions             string   `json:"instructions,omitempty" bson:"instructions,omitempty"`
}

// Transaction is the record every protocol flavor shares; Protocol selects which
// extension block is meaningful.
type Transaction struct {
	ID                    string              `json:"id" bson:"_id"`
	Protocol              Protocol            `json:"protocol" bson:"protocol"`
	Kind                  Kind                `json:"kind" bson:"kind"`
	Status                Status              `json:"status" bson:"status"`
	AmountExpected        *Amount             `json:"amount_expected,omitempty" bson:"amount_expected,omitempty"`
	AmountIn              *Amount             `json:"amount_in,omitempty" bson:"amount_in,omitempty"`
	AmountOut             *Amount             `json:"amount_out,omitempty" bson:"amount_out,omitempty"`
	AmountFee             *Amount             `json:"amount_fee,omitempty" bson:"amount_fee,omitempty"`
	Memo                  string              `json:"memo,omitempty" bson:"memo,omitempty"`
	MemoType              MemoType            `json:"memo_type,omitempty" bson:"memo_type,omitempty"`
	ToAccount             string              `json:"to_account,omitempty" bson:"to_account,omitempty"`
	FromAccount           string              `json:"from_account,omitempty" bson:"from_account,omitempty"`
	ExternalTransactionID string              `json:"external_transaction_id,omitempty" bson:"external_transaction_id,omitempty"`
	StellarTransactionID  string              `json:"stellar_transaction_id,omitempty" bson:"stellar_transaction_id,omitempty"`
	StellarTransactions   []LedgerTransaction `json:"stellar_transactions,omitempty" bson:"stellar_transactions,omitempty"`
	Refunds               *Refunds            `json:"refunds,omitempty" bson:"refunds,omitempty"`
	Message               string              `json:"message,omitempty" bson:"message,omitempty"`
	StartedAt             time.Time           `json:"started_at" bson:"started_at"`
	UpdatedAt             time.Time           `json:"updated_at" bson:"updated_at"`
	TransferReceivedAt    *time.Time          `json:"transfer_received_at,omitempty" bson:"transfer_received_at,omitempty"`
	CompletedAt           *time.Time          `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	Version               int64               `json:"version" bson:"version"`

	SEP31       *SEP31Fields       `json:"sep31,omitempty" bson:"sep31,omitempty"`
	Interactive *InteractiveFields `json:"interactive,omitempty" bson:"interactive,omitempty"`
}

// FundsReceived reports whether the user's transfer already reached the anchor.
func (t *Transaction) FundsReceived() bool {
	return t.TransferReceivedAt != nil
}

// Clone returns a deep enough copy for handlers to mutate without touching the
// stored instance.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.AmountExpected = cloneAmount(t.AmountExpected)
	c.AmountIn = cloneAmount(t.AmountIn)
	c.AmountOut = cloneAmount(t.AmountOut)
	c.AmountFee = cloneAmount(t.AmountFee)
	if t.StellarTransactions != nil {
		c.StellarTransactions = append([]LedgerTransaction(nil), t.StellarTransactions...)
	}
	if t.Refunds != nil {
		r := *t.Refunds
		r.Payments = append([]RefundPayment(nil), t.Refunds.Payments...)
		c.Refunds = &r
	}
	if t.SEP31 != nil {
		s := *t.SEP31
		c.SEP31 = &s
	}
	if t.Interactive != nil {
		i := *t.Interactive
		i.RequiredCustomerInfo = append([]string(nil), t.Interactive.RequiredCustomerInfo...)
		c.Interactive = &i
	}
	return &c
}

func cloneAmount(a *Amount) *Amount {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
