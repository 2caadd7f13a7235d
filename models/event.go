package models

import "time"

type EventType string

const (
	EventTransactionStatusChanged EventType = "transaction_status_changed"
	EventTransactionUpdated       EventType = "transaction_updated"
)

// Event is published to the event bus after a state machine action persisted.
// DedupKey identifies the (transaction, action, outcome) so redelivery can be dropped.
type Event struct {
	ID             string               `json:"id"`
	Type           EventType            `json:"type"`
	DedupKey       string               `json:"dedup_key"`
	Action         Action               `json:"action"`
	PreviousStatus Status               `json:"previous_status,omitempty"`
	Timestamp      time.Time            `json:"timestamp"`
	Transaction    *TransactionResponse `json:"transaction"`
}

// FailedRecord is what lands in the dead-letter queue.
type FailedRecord struct {
	Key      string    `json:"key"`
	Source   string    `json:"source"`
	Payload  []byte    `json:"payload"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}
