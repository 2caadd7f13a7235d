package actions

import (
	// Go Internal Packages
	"context"

	// Local Packages
	models "anchor-observer/models"
)

// Notifier delivers the dispatcher's notifications straight into the service when the
// platform runs in the same process.
type Notifier struct {
	service *Service
}

func NewNotifier(service *Service) *Notifier {
	return &Notifier{service: service}
}

func (n *Notifier) NotifyOnchainFundsReceived(ctx context.Context, txID, stellarTxID string, amountIn *models.Amount, message string) error {
	req := models.NotifyOnchainFundsReceivedRequest{
		BaseRequest:          models.BaseRequest{TransactionID: txID, Message: message},
		StellarTransactionID: stellarTxID,
	}
	if amountIn != nil {
		req.AmountIn = &models.AmountRequest{Amount: amountIn.Amount, Asset: amountIn.Asset}
	}
	_, err := n.service.NotifyOnchainFundsReceived(ctx, req)
	return err
}

func (n *Notifier) NotifyOnchainFundsSent(ctx context.Context, txID, stellarTxID, message string) error {
	_, err := n.service.NotifyOnchainFundsSent(ctx, models.NotifyOnchainFundsSentRequest{
		BaseRequest:          models.BaseRequest{TransactionID: txID, Message: message},
		StellarTransactionID: stellarTxID,
	})
	return err
}
