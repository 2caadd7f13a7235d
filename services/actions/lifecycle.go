package actions

import (
	// Go Internal Packages
	"context"

	// Local Packages
	models "anchor-observer/models"
)

// open reports whether the business may still act on the transaction. Incomplete
// transactions belong to the initiation flow.
func open(tx *models.Transaction) bool {
	return !tx.Status.IsTerminal() && tx.Status != models.StatusIncomplete
}

func (s *Service) NotifyTransactionError(ctx context.Context, req models.NotifyTransactionErrorRequest) (*models.TransactionResponse, error) {
	return execute(ctx, s, step[models.NotifyTransactionErrorRequest]{
		action: models.ActionNotifyTransactionError,
		allowed: func(_ *Service, tx *models.Transaction) bool {
			return open(tx)
		},
		update: func(_ context.Context, _ *Service, tx *models.Transaction, _ models.NotifyTransactionErrorRequest) error {
			tx.Status = models.StatusError
			return nil
		},
	}, req)
}

// NotifyTransactionExpired is only valid while no funds were received.
func (s *Service) NotifyTransactionExpired(ctx context.Context, req models.NotifyTransactionExpiredRequest) (*models.TransactionResponse, error) {
	return execute(ctx, s, step[models.NotifyTransactionExpiredRequest]{
		action: models.ActionNotifyTransactionExpired,
		allowed: func(_ *Service, tx *models.Transaction) bool {
			return open(tx) && !tx.FundsReceived()
		},
		update: func(_ context.Context, _ *Service, tx *models.Transaction, _ models.NotifyTransactionExpiredRequest) error {
			tx.Status = models.StatusExpired
			return nil
		},
	}, req)
}

// NotifyTransactionRecovery reopens an errored or expired transaction.
func (s *Service) NotifyTransactionRecovery(ctx context.Context, req models.NotifyTransactionRecoveryRequest) (*models.TransactionResponse, error) {
	return execute(ctx, s, step[models.NotifyTransactionRecoveryRequest]{
		action: models.ActionNotifyTransactionRecovery,
		allowed: func(_ *Service, tx *models.Transaction) bool {
			return statusIn(tx, models.StatusError, models.StatusExpired)
		},
		update: func(_ context.Context, _ *Service, tx *models.Transaction, _ models.NotifyTransactionRecoveryRequest) error {
			tx.Status = businessStatus(tx)
			return nil
		},
	}, req)
}
