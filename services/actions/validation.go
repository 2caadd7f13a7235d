package actions

import (
	// Go Internal Packages
	"strings"

	// Local Packages
	errs "anchor-observer/errors"
	ledger "anchor-observer/ledger"
	models "anchor-observer/models"

	// External Packages
	"github.com/shopspring/decimal"
)

const (
	positive    = true
	nonNegative = false
)

// parseAmount validates one amount field. positive selects > 0 over >= 0.
func parseAmount(ve *errs.ValidationErrors, field string, a *models.AmountRequest, strict bool) (decimal.Decimal, bool) {
	if a == nil {
		ve.Add(field, "is required")
		return decimal.Zero, false
	}
	if a.Asset == "" {
		ve.Add(field+".asset", "cannot be empty")
	} else if !validAssetName(a.Asset) {
		ve.Add(field+".asset", "is not a supported asset identifier")
	}
	d, err := decimal.NewFromString(strings.TrimSpace(a.Amount))
	if err != nil {
		ve.Add(field+".amount", "is not a decimal number")
		return decimal.Zero, false
	}
	switch {
	case strict && !d.IsPositive():
		ve.Add(field+".amount", "should be positive")
		return d, false
	case !strict && d.IsNegative():
		ve.Add(field+".amount", "should be non-negative")
		return d, false
	}
	return d, true
}

func validAssetName(asset string) bool {
	if ledger.IsStellarAsset(asset) {
		_, _, _, err := ledger.ParseAssetName(asset)
		return err == nil
	}
	return strings.HasPrefix(asset, "iso4217:") && len(asset) > len("iso4217:")
}

// amountTriple is the in/out/fee set several actions accept.
type amountTriple struct {
	in, out, fee *models.AmountRequest
}

func (a amountTriple) none() bool {
	return a.in == nil && a.out == nil && a.fee == nil
}

func (a amountTriple) all() bool {
	return a.in != nil && a.out != nil && a.fee != nil
}

// validate checks the triple. allowInAlone accepts amount_in on its own; otherwise the
// three amounts must come together.
func (a amountTriple) validate(ve *errs.ValidationErrors, tx *models.Transaction, allowInAlone bool) {
	if a.none() {
		return
	}
	if !a.all() && !(allowInAlone && a.in != nil && a.out == nil && a.fee == nil) {
		ve.Add("amount_in, amount_out, amount_fee", "should all be present or all be absent")
		return
	}

	if _, ok := parseAmount(ve, "amount_in", a.in, positive); ok && tx.AmountIn != nil && tx.AmountIn.Asset != "" && tx.AmountIn.Asset != a.in.Asset {
		ve.Add("amount_in.asset", "does not match the transaction asset")
	}
	if a.out != nil {
		parseAmount(ve, "amount_out", a.out, positive)
	}
	if a.fee != nil {
		parseAmount(ve, "amount_fee", a.fee, nonNegative)
	}
}

func (a amountTriple) apply(tx *models.Transaction) {
	if a.in != nil {
		tx.AmountIn = toAmount(a.in)
	}
	if a.out != nil {
		tx.AmountOut = toAmount(a.out)
	}
	if a.fee != nil {
		tx.AmountFee = toAmount(a.fee)
	}
}

func toAmount(a *models.AmountRequest) *models.Amount {
	if a == nil {
		return nil
	}
	return &models.Amount{Amount: normalizeDecimal(a.Amount), Asset: a.Asset}
}

// normalizeDecimal keeps the caller's precision but drops surrounding blanks.
func normalizeDecimal(s string) string {
	return strings.TrimSpace(s)
}

func amountValue(a *models.Amount) decimal.Decimal {
	if a == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(a.Amount)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func requireStellarAsset(ve *errs.ValidationErrors, field string, a *models.AmountRequest) {
	if a != nil && a.Asset != "" && !ledger.IsStellarAsset(a.Asset) {
		ve.Add(field+".asset", "should be a stellar asset")
	}
}
