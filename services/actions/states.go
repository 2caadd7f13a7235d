package actions

import (
	// Go Internal Packages
	"context"

	// Local Packages
	errs "anchor-observer/errors"
	models "anchor-observer/models"
)

func interactive(tx *models.Transaction) bool {
	return tx.Protocol == models.ProtocolSEP6 || tx.Protocol == models.ProtocolSEP24
}

func receive(tx *models.Transaction) bool {
	return tx.Protocol == models.ProtocolSEP31 && tx.Kind == models.KindReceive
}

func statusIn(tx *models.Transaction, statuses ...models.Status) bool {
	for _, s := range statuses {
		if tx.Status == s {
			return true
		}
	}
	return false
}

// businessStatus is where a flavor waits on the anchor's business logic.
func businessStatus(tx *models.Transaction) models.Status {
	if tx.Protocol == models.ProtocolSEP31 {
		return models.StatusPendingReceiver
	}
	return models.StatusPendingAnchor
}

func (s *Service) custodyEnabled() bool {
	return s.opts.CustodyEnabled && s.custody != nil
}

// ledgerTransaction resolves the ledger transaction a handler records on the transaction.
func (s *Service) ledgerTransaction(ctx context.Context, hash string) (models.LedgerTransaction, error) {
	if s.ledger == nil {
		return models.LedgerTransaction{Hash: hash}, nil
	}
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	ltx, err := s.ledger.TransactionByHash(ctx, hash)
	if err != nil {
		return models.LedgerTransaction{}, errs.InternalErr("failed to fetch ledger transaction "+hash, err)
	}
	return *ltx, nil
}

// recordLedgerTransaction appends ltx unless a transaction with the same hash is there.
func recordLedgerTransaction(tx *models.Transaction, ltx models.LedgerTransaction) {
	tx.StellarTransactionID = ltx.Hash
	for _, existing := range tx.StellarTransactions {
		if existing.Hash == ltx.Hash {
			return
		}
	}
	tx.StellarTransactions = append(tx.StellarTransactions, ltx)
}
