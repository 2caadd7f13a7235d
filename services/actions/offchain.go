package actions

import (
	// Go Internal Packages
	"context"

	// Local Packages
	errs "anchor-observer/errors"
	models "anchor-observer/models"
)

// RequestOffchainFunds asks the user to send a deposit through the off-chain rail.
func (s *Service) RequestOffchainFunds(ctx context.Context, req models.RequestOffchainFundsRequest) (*models.TransactionResponse, error) {
	return execute(ctx, s, step[models.RequestOffchainFundsRequest]{
		action: models.ActionRequestOffchainFunds,
		allowed: func(_ *Service, tx *models.Transaction) bool {
			return interactive(tx) && tx.Kind.IsDeposit() && !tx.FundsReceived() &&
				statusIn(tx, models.StatusIncomplete, models.StatusPendingAnchor)
		},
		validate: func(_ *Service, tx *models.Transaction, req models.RequestOffchainFundsRequest) error {
			ve := errs.ValidationErrs()
			amounts := amountTriple{in: req.AmountIn, out: req.AmountOut, fee: req.AmountFee}
			if amounts.none() && tx.AmountIn == nil {
				ve.Add("amount_in, amount_out, amount_fee", "are required")
			}
			amounts.validate(ve, tx, false)
			requireStellarAsset(ve, "amount_out", req.AmountOut)
			if req.AmountExpected != nil {
				parseAmount(ve, "amount_expected", req.AmountExpected, positive)
			}
			return ve.Err()
		},
		update: func(_ context.Context, _ *Service, tx *models.Transaction, req models.RequestOffchainFundsRequest) error {
			amountTriple{in: req.AmountIn, out: req.AmountOut, fee: req.AmountFee}.apply(tx)
			if req.AmountExpected != nil {
				tx.AmountExpected = toAmount(req.AmountExpected)
			} else if tx.AmountExpected == nil && tx.AmountIn != nil {
				expected := *tx.AmountIn
				tx.AmountExpected = &expected
			}
			if req.Instructions != "" {
				if tx.Interactive == nil {
					tx.Interactive = &models.InteractiveFields{}
				}
				tx.Interactive.Instructions = req.Instructions
			}
			tx.Status = models.StatusPendingUserTransferStart
			return nil
		},
	}, req)
}

// NotifyOffchainFundsReceived records the user's off-chain deposit.
func (s *Service) NotifyOffchainFundsReceived(ctx context.Context, req models.NotifyOffchainFundsReceivedRequest) (*models.TransactionResponse, error) {
	return execute(ctx, s, step[models.NotifyOffchainFundsReceivedRequest]{
		action: models.ActionNotifyOffchainFundsReceived,
		allowed: func(_ *Service, tx *models.Transaction) bool {
			return interactive(tx) && tx.Kind.IsDeposit() &&
				statusIn(tx, models.StatusPendingUserTransferStart, models.StatusPendingExternal)
		},
		validate: func(_ *Service, tx *models.Transaction, req models.NotifyOffchainFundsReceivedRequest) error {
			ve := errs.ValidationErrs()
			amountTriple{in: req.AmountIn, out: req.AmountOut, fee: req.AmountFee}.validate(ve, tx, true)
			return ve.Err()
		},
		update: func(_ context.Context, s *Service, tx *models.Transaction, req models.NotifyOffchainFundsReceivedRequest) error {
			amountTriple{in: req.AmountIn, out: req.AmountOut, fee: req.AmountFee}.apply(tx)
			if req.ExternalTransactionID != "" {
				tx.ExternalTransactionID = req.ExternalTransactionID
			}
			received := s.now()
			if req.FundsReceivedAt != nil {
				received = *req.FundsReceivedAt
			}
			tx.TransferReceivedAt = &received
			tx.Status = models.StatusPendingAnchor
			return nil
		},
	}, req)
}

// NotifyOffchainFundsPending marks an off-chain payout as submitted to the external rail.
func (s *Service) NotifyOffchainFundsPending(ctx context.Context, req models.NotifyOffchainFundsPendingRequest) (*models.TransactionResponse, error) {
	return execute(ctx, s, step[models.NotifyOffchainFundsPendingRequest]{
		action: models.ActionNotifyOffchainFundsPending,
		allowed: func(_ *Service, tx *models.Transaction) bool {
			if receive(tx) {
				return tx.Status == models.StatusPendingReceiver
			}
			return interactive(tx) && tx.Kind.IsWithdrawal() && tx.FundsReceived() && tx.Status == models.StatusPendingAnchor
		},
		update: func(_ context.Context, _ *Service, tx *models.Transaction, req models.NotifyOffchainFundsPendingRequest) error {
			if req.ExternalTransactionID != "" {
				tx.ExternalTransactionID = req.ExternalTransactionID
			}
			tx.Status = models.StatusPendingExternal
			return nil
		},
	}, req)
}

// NotifyOffchainFundsSent completes a withdrawal or receive paid out off-chain.
func (s *Service) NotifyOffchainFundsSent(ctx context.Context, req models.NotifyOffchainFundsSentRequest) (*models.TransactionResponse, error) {
	return execute(ctx, s, step[models.NotifyOffchainFundsSentRequest]{
		action: models.ActionNotifyOffchainFundsSent,
		allowed: func(_ *Service, tx *models.Transaction) bool {
			if receive(tx) {
				return statusIn(tx, models.StatusPendingReceiver, models.StatusPendingExternal)
			}
			return interactive(tx) && tx.Kind.IsWithdrawal() && tx.FundsReceived() &&
				statusIn(tx, models.StatusPendingAnchor, models.StatusPendingExternal)
		},
		update: func(_ context.Context, s *Service, tx *models.Transaction, req models.NotifyOffchainFundsSentRequest) error {
			if req.ExternalTransactionID != "" {
				tx.ExternalTransactionID = req.ExternalTransactionID
			}
			completed := s.now()
			if req.FundsSentAt != nil {
				completed = *req.FundsSentAt
			}
			tx.CompletedAt = &completed
			tx.Status = models.StatusCompleted
			return nil
		},
	}, req)
}

// NotifyOffchainFundsAvailable tells the user a withdrawal is ready for pickup.
func (s *Service) NotifyOffchainFundsAvailable(ctx context.Context, req models.NotifyOffchainFundsAvailableRequest) (*models.TransactionResponse, error) {
	return execute(ctx, s, step[models.NotifyOffchainFundsAvailableRequest]{
		action: models.ActionNotifyOffchainFundsAvailable,
		allowed: func(_ *Service, tx *models.Transaction) bool {
			return interactive(tx) && tx.Kind.IsWithdrawal() && tx.FundsReceived() && tx.Status == models.StatusPendingAnchor
		},
		update: func(_ context.Context, _ *Service, tx *models.Transaction, req models.NotifyOffchainFundsAvailableRequest) error {
			if req.ExternalTransactionID != "" {
				tx.ExternalTransactionID = req.ExternalTransactionID
			}
			tx.Status = models.StatusPendingUser
			return nil
		},
	}, req)
}

// NotifyInteractiveFlowCompleted moves an interactive deposit to the anchor once the user
// finished the web flow.
func (s *Service) NotifyInteractiveFlowCompleted(ctx context.Context, req models.NotifyInteractiveFlowCompletedRequest) (*models.TransactionResponse, error) {
	return execute(ctx, s, step[models.NotifyInteractiveFlowCompletedRequest]{
		action: models.ActionNotifyInteractiveFlowCompleted,
		allowed: func(_ *Service, tx *models.Transaction) bool {
			return tx.Protocol == models.ProtocolSEP24 && tx.Kind.IsDeposit() && tx.Status == models.StatusIncomplete
		},
		validate: func(_ *Service, tx *models.Transaction, req models.NotifyInteractiveFlowCompletedRequest) error {
			ve := errs.ValidationErrs()
			amounts := amountTriple{in: req.AmountIn, out: req.AmountOut, fee: req.AmountFee}
			if !amounts.all() {
				ve.Add("amount_in, amount_out, amount_fee", "are required")
				return ve.Err()
			}
			amounts.validate(ve, tx, false)
			if req.AmountExpected != nil {
				parseAmount(ve, "amount_expected", req.AmountExpected, positive)
			}
			return ve.Err()
		},
		update: func(_ context.Context, _ *Service, tx *models.Transaction, req models.NotifyInteractiveFlowCompletedRequest) error {
			amountTriple{in: req.AmountIn, out: req.AmountOut, fee: req.AmountFee}.apply(tx)
			if req.AmountExpected != nil {
				tx.AmountExpected = toAmount(req.AmountExpected)
			} else {
				expected := *tx.AmountIn
				tx.AmountExpected = &expected
			}
			tx.Status = models.StatusPendingAnchor
			return nil
		},
	}, req)
}

// NotifyAmountsUpdated replaces amount_out and amount_fee, for instance after a quote
// was refreshed. The status does not change.
func (s *Service) NotifyAmountsUpdated(ctx context.Context, req models.NotifyAmountsUpdatedRequest) (*models.TransactionResponse, error) {
	return execute(ctx, s, step[models.NotifyAmountsUpdatedRequest]{
		action: models.ActionNotifyAmountsUpdated,
		allowed: func(_ *Service, tx *models.Transaction) bool {
			return interactive(tx) && tx.FundsReceived() && tx.Status == models.StatusPendingAnchor
		},
		validate: func(_ *Service, _ *models.Transaction, req models.NotifyAmountsUpdatedRequest) error {
			ve := errs.ValidationErrs()
			parseAmount(ve, "amount_out", req.AmountOut, positive)
			parseAmount(ve, "amount_fee", req.AmountFee, nonNegative)
			return ve.Err()
		},
		update: func(_ context.Context, _ *Service, tx *models.Transaction, req models.NotifyAmountsUpdatedRequest) error {
			tx.AmountOut = toAmount(req.AmountOut)
			tx.AmountFee = toAmount(req.AmountFee)
			return nil
		},
	}, req)
}

// RequestCustomerInfoUpdate asks the user for more KYC information.
func (s *Service) RequestCustomerInfoUpdate(ctx context.Context, req models.RequestCustomerInfoUpdateRequest) (*models.TransactionResponse, error) {
	return execute(ctx, s, step[models.RequestCustomerInfoUpdateRequest]{
		action: models.ActionRequestCustomerInfoUpdate,
		allowed: func(_ *Service, tx *models.Transaction) bool {
			if receive(tx) {
				return tx.Status == models.StatusPendingReceiver
			}
			return tx.Protocol == models.ProtocolSEP6 && tx.Status == models.StatusPendingAnchor
		},
		update: func(_ context.Context, _ *Service, tx *models.Transaction, req models.RequestCustomerInfoUpdateRequest) error {
			if tx.Protocol == models.ProtocolSEP31 {
				if tx.SEP31 == nil {
					tx.SEP31 = &models.SEP31Fields{}
				}
				tx.SEP31.RequiredInfoMessage = req.RequiredCustomerInfoMessage
			} else {
				if tx.Interactive == nil {
					tx.Interactive = &models.InteractiveFields{}
				}
				tx.Interactive.RequiredCustomerInfoText = req.RequiredCustomerInfoMessage
				tx.Interactive.RequiredCustomerInfo = append([]string(nil), req.RequiredCustomerInfoUpdates...)
			}
			tx.Status = models.StatusPendingCustomerInfoUpdate
			return nil
		},
	}, req)
}

// NotifyCustomerInfoUpdated returns the transaction to the business once the user
// supplied the requested information.
func (s *Service) NotifyCustomerInfoUpdated(ctx context.Context, req models.NotifyCustomerInfoUpdatedRequest) (*models.TransactionResponse, error) {
	return execute(ctx, s, step[models.NotifyCustomerInfoUpdatedRequest]{
		action: models.ActionNotifyCustomerInfoUpdated,
		allowed: func(_ *Service, tx *models.Transaction) bool {
			return (receive(tx) || tx.Protocol == models.ProtocolSEP6) && tx.Status == models.StatusPendingCustomerInfoUpdate
		},
		update: func(_ context.Context, _ *Service, tx *models.Transaction, _ models.NotifyCustomerInfoUpdatedRequest) error {
			if tx.SEP31 != nil {
				tx.SEP31.RequiredInfoMessage = ""
			}
			if tx.Interactive != nil {
				tx.Interactive.RequiredCustomerInfo = nil
				tx.Interactive.RequiredCustomerInfoText = ""
			}
			tx.Status = businessStatus(tx)
			return nil
		},
	}, req)
}
