package ledger

import (
	// Go Internal Packages
	"errors"
	"fmt"

	// Local Packages
	models "anchor-observer/models"

	// External Packages
	"github.com/stellar/go/amount"
)

var (
	ErrUnsupportedAsset = errors.New("unsupported asset")
	ErrNotPayment       = errors.New("operation is not a payment")
	ErrInvalidAmount    = errors.New("invalid amount")
)

// TransferFunctionName is the contract function that moves tokens.
const TransferFunctionName = "transfer"

// Normalize collapses every payment shape into a NormalizedPaymentEvent.
func Normalize(op Operation) (models.NormalizedPaymentEvent, error) {
	switch op.Type {
	case OpPayment, OpPathPaymentStrictReceive, OpPathPaymentStrictSend:
	case OpInvokeHostFunction:
		if op.FunctionName != TransferFunctionName {
			return models.NormalizedPaymentEvent{}, fmt.Errorf("%w: contract function %q", ErrNotPayment, op.FunctionName)
		}
	default:
		return models.NormalizedPaymentEvent{}, fmt.Errorf("%w: %s", ErrNotPayment, op.Type)
	}

	kind, err := AssetKindOf(op.AssetType)
	if err != nil {
		return models.NormalizedPaymentEvent{}, err
	}

	stroops, err := amount.ParseInt64(op.Amount)
	if err != nil {
		return models.NormalizedPaymentEvent{}, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, op.Amount, err)
	}
	if stroops < 0 {
		return models.NormalizedPaymentEvent{}, fmt.Errorf("%w: negative amount %q", ErrInvalidAmount, op.Amount)
	}

	event := models.NormalizedPaymentEvent{
		ID:              op.ID,
		Cursor:          op.PagingToken,
		OperationType:   string(op.Type),
		TransactionHash: op.TransactionHash,
		From:            op.From,
		To:              op.To,
		AssetKind:       kind,
		AssetCode:       op.AssetCode,
		AssetIssuer:     op.AssetIssuer,
		Asset:           AssetName(kind, op.AssetCode, op.AssetIssuer),
		Amount:          stroops,
		CreatedAt:       op.CreatedAt,
	}
	if op.Transaction != nil {
		event.Transaction = *op.Transaction
	}
	if event.Transaction.Hash == "" {
		event.Transaction.Hash = op.TransactionHash
	}
	return event, nil
}

// FormatAmount renders stroops as the 7 decimal string the ledger uses.
func FormatAmount(stroops int64) string {
	return amount.StringFromInt64(stroops)
}
