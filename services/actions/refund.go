package actions

import (
	// Go Internal Packages
	"context"

	// Local Packages
	models "anchor-observer/models"
)

// NotifyRefundPending records a refund that was initiated but not yet sent.
func (s *Service) NotifyRefundPending(ctx context.Context, req models.NotifyRefundPendingRequest) (*models.TransactionResponse, error) {
	return execute(ctx, s, step[models.NotifyRefundPendingRequest]{
		action: models.ActionNotifyRefundPending,
		allowed: func(_ *Service, tx *models.Transaction) bool {
			if receive(tx) {
				return tx.Status == models.StatusPendingReceiver
			}
			return interactive(tx) && tx.FundsReceived() && tx.Status == models.StatusPendingAnchor
		},
		validate: func(_ *Service, tx *models.Transaction, req models.NotifyRefundPendingRequest) error {
			return validateRefund(tx, req.Refund, receive(tx))
		},
		update: func(_ context.Context, s *Service, tx *models.Transaction, req models.NotifyRefundPendingRequest) error {
			mergeRefund(tx, req.Refund, refundIDType(tx), s.now(), false)
			tx.Status = models.StatusPendingExternal
			return nil
		},
	}, req)
}

// NotifyRefundSent records a completed refund. Once the refunds cover amount_in the
// transaction is refunded, otherwise it goes back to the business.
func (s *Service) NotifyRefundSent(ctx context.Context, req models.NotifyRefundSentRequest) (*models.TransactionResponse, error) {
	return execute(ctx, s, step[models.NotifyRefundSentRequest]{
		action: models.ActionNotifyRefundSent,
		allowed: func(_ *Service, tx *models.Transaction) bool {
			if receive(tx) {
				return statusIn(tx, models.StatusPendingReceiver, models.StatusPendingExternal)
			}
			return interactive(tx) && tx.FundsReceived() &&
				statusIn(tx, models.StatusPendingAnchor, models.StatusPendingExternal, models.StatusPendingStellar)
		},
		validate: func(_ *Service, tx *models.Transaction, req models.NotifyRefundSentRequest) error {
			// A refund already announced as pending may be confirmed without repeating it.
			if req.Refund == nil && statusIn(tx, models.StatusPendingExternal, models.StatusPendingStellar) &&
				tx.Refunds != nil && len(tx.Refunds.Payments) > 0 {
				return nil
			}
			return validateRefund(tx, req.Refund, receive(tx))
		},
		update: func(_ context.Context, s *Service, tx *models.Transaction, req models.NotifyRefundSentRequest) error {
			refunded := fullyRefunded(tx)
			if req.Refund != nil {
				refunded = mergeRefund(tx, req.Refund, refundIDType(tx), s.now(), true)
			}
			if refunded {
				tx.Status = models.StatusRefunded
				now := s.now()
				tx.CompletedAt = &now
				return nil
			}
			tx.Status = businessStatus(tx)
			return nil
		},
	}, req)
}
