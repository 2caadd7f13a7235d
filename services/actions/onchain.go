package actions

import (
	// Go Internal Packages
	"context"

	// Local Packages
	errs "anchor-observer/errors"
	ledger "anchor-observer/ledger"
	models "anchor-observer/models"

	// External Packages
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestOnchainFunds asks the user to send the withdrawal amount on the ledger.
func (s *Service) RequestOnchainFunds(ctx context.Context, req models.RequestOnchainFundsRequest) (*models.TransactionResponse, error) {
	return execute(ctx, s, step[models.RequestOnchainFundsRequest]{
		action: models.ActionRequestOnchainFunds,
		allowed: func(_ *Service, tx *models.Transaction) bool {
			if !interactive(tx) || !tx.Kind.IsWithdrawal() || tx.FundsReceived() {
				return false
			}
			if statusIn(tx, models.StatusIncomplete, models.StatusPendingAnchor) {
				return true
			}
			return tx.Protocol == models.ProtocolSEP6 && tx.Status == models.StatusPendingCustomerInfoUpdate
		},
		validate: func(_ *Service, tx *models.Transaction, req models.RequestOnchainFundsRequest) error {
			ve := errs.ValidationErrs()
			amounts := amountTriple{in: req.AmountIn, out: req.AmountOut, fee: req.AmountFee}
			if amounts.none() && tx.AmountIn == nil {
				ve.Add("amount_in, amount_out, amount_fee", "are required")
			}
			amounts.validate(ve, tx, false)
			requireStellarAsset(ve, "amount_in", req.AmountIn)
			if req.AmountExpected != nil {
				parseAmount(ve, "amount_expected", req.AmountExpected, positive)
			}
			return ve.Err()
		},
		update: func(ctx context.Context, s *Service, tx *models.Transaction, req models.RequestOnchainFundsRequest) error {
			amountTriple{in: req.AmountIn, out: req.AmountOut, fee: req.AmountFee}.apply(tx)
			switch {
			case req.AmountExpected != nil:
				tx.AmountExpected = toAmount(req.AmountExpected)
			case tx.AmountExpected == nil && tx.AmountIn != nil:
				expected := *tx.AmountIn
				tx.AmountExpected = &expected
			}

			address, err := s.depositInfo(ctx, tx, req)
			if err != nil {
				return err
			}
			tx.ToAccount = address.Address
			tx.Memo = address.Memo
			tx.MemoType = address.MemoType
			if tx.Interactive != nil {
				tx.Interactive.WithdrawAnchorAccount = address.Address
			}
			tx.Status = models.StatusPendingUserTransferStart

			if s.accounts != nil && address.Address != "" {
				if err := s.accounts.Upsert(ctx, address.Address, models.AccountTransient); err != nil {
					return errs.InternalErr("failed to watch deposit account", err)
				}
			}
			return nil
		},
	}, req)
}

// NotifyOnchainFundsReceived records the user's ledger payment of a withdrawal or receive.
func (s *Service) NotifyOnchainFundsReceived(ctx context.Context, req models.NotifyOnchainFundsReceivedRequest) (*models.TransactionResponse, error) {
	return execute(ctx, s, step[models.NotifyOnchainFundsReceivedRequest]{
		action: models.ActionNotifyOnchainFundsReceived,
		allowed: func(_ *Service, tx *models.Transaction) bool {
			if receive(tx) {
				return tx.Status == models.StatusPendingSender
			}
			return interactive(tx) && tx.Kind.IsWithdrawal() && !tx.FundsReceived() &&
				tx.Status == models.StatusPendingUserTransferStart
		},
		validate: func(_ *Service, tx *models.Transaction, req models.NotifyOnchainFundsReceivedRequest) error {
			ve := errs.ValidationErrs()
			if req.StellarTransactionID == "" {
				ve.Add("stellar_transaction_id", "cannot be empty")
			}
			amountTriple{in: req.AmountIn, out: req.AmountOut, fee: req.AmountFee}.validate(ve, tx, true)
			requireStellarAsset(ve, "amount_in", req.AmountIn)
			return ve.Err()
		},
		update: func(ctx context.Context, s *Service, tx *models.Transaction, req models.NotifyOnchainFundsReceivedRequest) error {
			ltx, err := s.ledgerTransaction(ctx, req.StellarTransactionID)
			if err != nil {
				return err
			}
			recordLedgerTransaction(tx, ltx)
			amountTriple{in: req.AmountIn, out: req.AmountOut, fee: req.AmountFee}.apply(tx)

			now := s.now()
			tx.TransferReceivedAt = &now
			tx.Status = businessStatus(tx)
			return nil
		},
	}, req)
}

// NotifyOnchainFundsSent completes a deposit once the anchor's payment is on the ledger.
func (s *Service) NotifyOnchainFundsSent(ctx context.Context, req models.NotifyOnchainFundsSentRequest) (*models.TransactionResponse, error) {
	return execute(ctx, s, step[models.NotifyOnchainFundsSentRequest]{
		action: models.ActionNotifyOnchainFundsSent,
		allowed: func(_ *Service, tx *models.Transaction) bool {
			return interactive(tx) && tx.Kind.IsDeposit() && tx.FundsReceived() &&
				statusIn(tx, models.StatusPendingAnchor, models.StatusPendingStellar)
		},
		validate: func(_ *Service, _ *models.Transaction, req models.NotifyOnchainFundsSentRequest) error {
			if req.StellarTransactionID == "" {
				return errs.EmptyParamErr("stellar_transaction_id")
			}
			return nil
		},
		update: func(ctx context.Context, s *Service, tx *models.Transaction, req models.NotifyOnchainFundsSentRequest) error {
			ltx, err := s.ledgerTransaction(ctx, req.StellarTransactionID)
			if err != nil {
				return err
			}
			recordLedgerTransaction(tx, ltx)
			now := s.now()
			tx.CompletedAt = &now
			tx.Status = models.StatusCompleted
			return nil
		},
	}, req)
}

func payableDeposit(tx *models.Transaction) bool {
	return interactive(tx) && tx.Kind.IsDeposit() && tx.FundsReceived() && tx.Status == models.StatusPendingAnchor
}

// DoStellarPayment pays a deposit out through custody, or parks it until the user's
// trust line exists.
func (s *Service) DoStellarPayment(ctx context.Context, req models.DoStellarPaymentRequest) (*models.TransactionResponse, error) {
	return execute(ctx, s, step[models.DoStellarPaymentRequest]{
		action: models.ActionDoStellarPayment,
		allowed: func(s *Service, tx *models.Transaction) bool {
			return s.custodyEnabled() && payableDeposit(tx)
		},
		validate: func(_ *Service, tx *models.Transaction, _ models.DoStellarPaymentRequest) error {
			ve := errs.ValidationErrs()
			if tx.ToAccount == "" {
				ve.Add("to_account", "is not set on the transaction")
			}
			if tx.AmountOut == nil || !ledger.IsStellarAsset(tx.AmountOut.Asset) {
				ve.Add("amount_out", "is not a stellar amount")
			}
			return ve.Err()
		},
		update: func(ctx context.Context, s *Service, tx *models.Transaction, _ models.DoStellarPaymentRequest) error {
			trusted, err := s.hasTrustline(ctx, tx.ToAccount, tx.AmountOut.Asset)
			if err != nil {
				return err
			}
			if !trusted {
				record := models.PendingTrust{
					ID:            uuid.NewString(),
					TransactionID: tx.ID,
					Account:       tx.ToAccount,
					Asset:         tx.AmountOut.Asset,
					CreatedAt:     s.now(),
				}
				ctx, cancel := s.storeCtx(ctx)
				defer cancel()
				if err := s.trust.Save(ctx, record); err != nil {
					return errs.InternalErr("failed to save pending trust", err)
				}
				tx.Status = models.StatusPendingTrust
				return nil
			}

			if err := s.pay(ctx, tx); err != nil {
				return err
			}
			tx.Status = models.StatusPendingStellar
			return nil
		},
	}, req)
}

// CompletePendingTrust resumes a payout parked in pending_trust once the trust line exists.
func (s *Service) CompletePendingTrust(ctx context.Context, req models.CompletePendingTrustRequest) (*models.TransactionResponse, error) {
	return execute(ctx, s, step[models.CompletePendingTrustRequest]{
		action: models.ActionCompletePendingTrust,
		allowed: func(s *Service, tx *models.Transaction) bool {
			return s.custodyEnabled() && interactive(tx) && tx.Kind.IsDeposit() && tx.Status == models.StatusPendingTrust
		},
		update: func(ctx context.Context, s *Service, tx *models.Transaction, _ models.CompletePendingTrustRequest) error {
			if err := s.pay(ctx, tx); err != nil {
				return err
			}
			tx.Status = models.StatusPendingStellar
			return nil
		},
	}, req)
}

func (s *Service) pay(ctx context.Context, tx *models.Transaction) error {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.custody.CreateTransactionPayment(ctx, tx.ID); err != nil {
		return errs.InternalErr("custody payment failed", err)
	}
	return nil
}

// hasTrustline treats native assets as always held.
func (s *Service) hasTrustline(ctx context.Context, account, asset string) (bool, error) {
	kind, _, _, err := ledger.ParseAssetName(asset)
	if err != nil {
		return false, errs.InvalidErr("amount_out asset %s is not a stellar asset", asset)
	}
	if kind == models.AssetNative || s.ledger == nil {
		return true, nil
	}
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	ok, err := s.ledger.HasTrustline(ctx, account, asset)
	if err != nil {
		return false, errs.InternalErr("failed to check trust line", err)
	}
	return ok, nil
}

// DoStellarRefund asks custody to return a withdrawal's funds on the ledger.
func (s *Service) DoStellarRefund(ctx context.Context, req models.DoStellarRefundRequest) (*models.TransactionResponse, error) {
	return execute(ctx, s, step[models.DoStellarRefundRequest]{
		action: models.ActionDoStellarRefund,
		allowed: func(s *Service, tx *models.Transaction) bool {
			return s.custodyEnabled() && interactive(tx) && tx.Kind.IsWithdrawal() && tx.FundsReceived() &&
				tx.Status == models.StatusPendingAnchor
		},
		validate: func(_ *Service, tx *models.Transaction, req models.DoStellarRefundRequest) error {
			return validateRefund(tx, req.Refund, false)
		},
		update: func(ctx context.Context, s *Service, tx *models.Transaction, req models.DoStellarRefundRequest) error {
			callCtx, cancel := s.storeCtx(ctx)
			defer cancel()
			if err := s.custody.CreateTransactionRefund(callCtx, tx.ID, *req.Refund); err != nil {
				return errs.InternalErr("custody refund failed", err)
			}
			tx.Status = models.StatusPendingStellar
			return nil
		},
	}, req)
}

// RequestTrust asks the user to add a trust line when the anchor pays deposits itself.
func (s *Service) RequestTrust(ctx context.Context, req models.RequestTrustRequest) (*models.TransactionResponse, error) {
	return execute(ctx, s, step[models.RequestTrustRequest]{
		action: models.ActionRequestTrust,
		allowed: func(s *Service, tx *models.Transaction) bool {
			return !s.custodyEnabled() && payableDeposit(tx)
		},
		update: func(_ context.Context, _ *Service, tx *models.Transaction, _ models.RequestTrustRequest) error {
			tx.Status = models.StatusPendingTrust
			return nil
		},
	}, req)
}

// NotifyTrustSet hands a deposit back to the anchor after the trust line question was
// answered, successfully or not.
func (s *Service) NotifyTrustSet(ctx context.Context, req models.NotifyTrustSetRequest) (*models.TransactionResponse, error) {
	return execute(ctx, s, step[models.NotifyTrustSetRequest]{
		action: models.ActionNotifyTrustSet,
		allowed: func(s *Service, tx *models.Transaction) bool {
			return !s.custodyEnabled() && interactive(tx) && tx.Kind.IsDeposit() && tx.Status == models.StatusPendingTrust
		},
		update: func(_ context.Context, s *Service, tx *models.Transaction, req models.NotifyTrustSetRequest) error {
			if !req.Success {
				s.logger.Warn("trust line was not set", zap.String("transaction_id", tx.ID))
			}
			tx.Status = models.StatusPendingAnchor
			return nil
		},
	}, req)
}
