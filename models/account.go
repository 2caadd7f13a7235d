package models

import "time"

// AccountClass decides whether an observed account can be evicted by age.
type AccountClass string

const (
	AccountTransient   AccountClass = "TRANSIENT"
	AccountResidential AccountClass = "RESIDENTIAL"
)

// ObservedAccount is a ledger account the observer reacts to. AccountID is always the
// base (non-muxed) account.
type ObservedAccount struct {
	AccountID    string       `json:"account_id" bson:"_id"`
	Class        AccountClass `json:"class" bson:"class"`
	LastObserved time.Time    `json:"last_observed" bson:"last_observed"`
}

// PendingTrust records a payout parked until the destination establishes a trust line.
type PendingTrust struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	Account       string    `json:"account"`
	Asset         string    `json:"asset"`
	CreatedAt     time.Time `json:"created_at"`
}
