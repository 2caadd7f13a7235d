package actions

import (
	// Go Internal Packages
	"time"

	// Local Packages
	errs "anchor-observer/errors"
	models "anchor-observer/models"

	// External Packages
	"github.com/shopspring/decimal"
)

// validateRefund checks one refund increment against the transaction. The total is what
// the refunds would add up to once the increment replaced any payment with its id.
func validateRefund(tx *models.Transaction, r *models.RefundRequest, single bool) error {
	ve := errs.ValidationErrs()
	if r == nil {
		ve.Add("refund", "is required")
		return ve.Err()
	}
	if r.ID == "" {
		ve.Add("refund.id", "cannot be empty")
	}
	amount, amountOK := parseAmount(ve, "refund.amount", &r.Amount, positive)
	fee, feeOK := parseAmount(ve, "refund.amount_fee", &r.AmountFee, nonNegative)
	if tx.AmountIn == nil {
		ve.Add("amount_in", "is not set on the transaction")
		return ve.Err()
	}
	if r.Amount.Asset != "" && r.Amount.Asset != tx.AmountIn.Asset {
		ve.Add("refund.amount.asset", "does not match amount_in asset")
	}
	if r.AmountFee.Asset != "" && r.AmountFee.Asset != tx.AmountIn.Asset {
		ve.Add("refund.amount_fee.asset", "does not match amount_in asset")
	}
	if err := ve.Err(); err != nil {
		return err
	}

	if single && tx.Refunds != nil {
		for _, p := range tx.Refunds.Payments {
			if p.ID != r.ID {
				return errs.InvalidErr("multiple refunds aren't supported for kind[%s], protocol[%s]", tx.Kind, tx.Protocol)
			}
		}
	}

	if amountOK && feeOK {
		total, _ := refundTotals(tx.Refunds, r.ID)
		total = total.Add(amount).Add(fee)
		if total.GreaterThan(amountValue(tx.AmountIn)) {
			return errs.InvalidErr("refund amount exceeds amount_in")
		}
	}
	return nil
}

// refundTotals sums amount plus fee, and fee alone, over every payment except skipID.
func refundTotals(refunds *models.Refunds, skipID string) (refunded, fees decimal.Decimal) {
	refunded, fees = decimal.Zero, decimal.Zero
	if refunds == nil {
		return refunded, fees
	}
	for _, p := range refunds.Payments {
		if p.ID == skipID {
			continue
		}
		fee := amountValue(&p.Fee)
		refunded = refunded.Add(amountValue(&p.Amount)).Add(fee)
		fees = fees.Add(fee)
	}
	return refunded, fees
}

// mergeRefund replaces or appends the payment with r's id and recomputes the aggregate.
// It reports whether the transaction is now fully refunded.
func mergeRefund(tx *models.Transaction, r *models.RefundRequest, idType string, now time.Time, sent bool) bool {
	asset := tx.AmountIn.Asset
	payment := models.RefundPayment{
		ID:     r.ID,
		IDType: idType,
		Amount: models.Amount{Amount: normalizeDecimal(r.Amount.Amount), Asset: asset},
		Fee:    models.Amount{Amount: normalizeDecimal(r.AmountFee.Amount), Asset: asset},
	}
	if sent {
		payment.RefundedAt = &now
	} else {
		payment.RequestedAt = &now
	}

	if tx.Refunds == nil {
		tx.Refunds = &models.Refunds{}
	}
	replaced := false
	for i, p := range tx.Refunds.Payments {
		if p.ID == r.ID {
			if payment.RequestedAt == nil {
				payment.RequestedAt = p.RequestedAt
			}
			tx.Refunds.Payments[i] = payment
			replaced = true
			break
		}
	}
	if !replaced {
		tx.Refunds.Payments = append(tx.Refunds.Payments, payment)
	}

	refunded, fees := refundTotals(tx.Refunds, "")
	tx.Refunds.AmountRefunded = models.Amount{Amount: refunded.String(), Asset: asset}
	tx.Refunds.AmountFee = models.Amount{Amount: fees.String(), Asset: asset}
	return refunded.Equal(amountValue(tx.AmountIn))
}

// fullyRefunded reports whether the recorded refunds already cover amount_in.
func fullyRefunded(tx *models.Transaction) bool {
	if tx.Refunds == nil || tx.AmountIn == nil {
		return false
	}
	refunded, _ := refundTotals(tx.Refunds, "")
	return refunded.Equal(amountValue(tx.AmountIn))
}

func refundIDType(tx *models.Transaction) string {
	if tx.Kind.IsWithdrawal() || tx.Kind == models.KindReceive {
		return models.RefundIDTypeStellar
	}
	return models.RefundIDTypeExternal
}
