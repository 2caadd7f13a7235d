// Package memory holds process-local implementations of the store contracts, used by
// the memory store driver and by tests.
package memory

import (
	// Go Internal Packages
	"context"
	"errors"
	"fmt"
	"sync"

	// Local Packages
	errs "anchor-observer/errors"
	models "anchor-observer/models"
)

var ErrAmbiguousPayment = errors.New("more than one transaction matches the payment")

// TxRepository mirrors the mongodb repository, including optimistic versioning.
type TxRepository struct {
	mu       sync.RWMutex
	protocol models.Protocol
	txs      map[string]*models.Transaction
	// FailLookups makes FindByPayment return this error; tests use it to simulate an
	// outage of one flavor's store.
	FailLookups error
}

func NewTxRepository(protocol models.Protocol) *TxRepository {
	return &TxRepository{protocol: protocol, txs: make(map[string]*models.Transaction)}
}

func (r *TxRepository) Protocol() models.Protocol {
	return r.protocol
}

func (r *TxRepository) FindByID(_ context.Context, id string) (*models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tx, ok := r.txs[id]
	if !ok {
		return nil, nil
	}
	return tx.Clone(), nil
}

func (r *TxRepository) FindByPayment(_ context.Context, toAccount, memo string, statuses []models.Status) (*models.Transaction, error) {
	if r.FailLookups != nil {
		return nil, r.FailLookups
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *models.Transaction
	for _, tx := range r.txs {
		if tx.ToAccount != toAccount || tx.Memo != memo || !containsStatus(statuses, tx.Status) {
			continue
		}
		if found != nil {
			return nil, ErrAmbiguousPayment
		}
		found = tx
	}
	if found == nil {
		return nil, nil
	}
	return found.Clone(), nil
}

func (r *TxRepository) Save(_ context.Context, tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.txs[tx.ID]
	switch {
	case tx.Version == 0 && exists:
		return errs.ConflictErr(fmt.Sprintf("sep%s_transactions", r.protocol), tx.ID)
	case tx.Version != 0 && (!exists || stored.Version != tx.Version):
		return errs.ConflictErr(fmt.Sprintf("sep%s_transactions", r.protocol), tx.ID)
	}
	tx.Version++
	r.txs[tx.ID] = tx.Clone()
	return nil
}

func containsStatus(statuses []models.Status, s models.Status) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}
