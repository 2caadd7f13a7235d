package actions

import (
	// Go Internal Packages
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	// Local Packages
	errs "anchor-observer/errors"
	models "anchor-observer/models"

	// External Packages
	"github.com/stellar/go/strkey"
)

const maxTextMemoBytes = 28

// depositInfo decides where the user sends on-chain funds. With a generating strategy the
// caller must not supply memo or destination.
func (s *Service) depositInfo(ctx context.Context, tx *models.Transaction, req models.RequestOnchainFundsRequest) (DepositAddress, error) {
	callerSupplied := req.Memo != "" || req.MemoType != "" || req.DestinationAccount != ""

	switch s.opts.Generator {
	case GeneratorSelf:
		if callerSupplied {
			return DepositAddress{}, errs.InvalidErr("memo and destination_account are generated by the anchor, remove them from the request")
		}
		sum := sha256.Sum256([]byte(tx.ID))
		return DepositAddress{
			Address:  s.opts.DistributionAccount,
			Memo:     hex.EncodeToString(sum[:]),
			MemoType: models.MemoTypeHash,
		}, nil

	case GeneratorCustody:
		if callerSupplied {
			return DepositAddress{}, errs.InvalidErr("memo and destination_account are generated by custody, remove them from the request")
		}
		if s.custody == nil {
			return DepositAddress{}, errs.InternalErr("custody generator configured without a custody client", nil)
		}
		asset := ""
		if req.AmountIn != nil {
			asset = req.AmountIn.Asset
		} else if tx.AmountIn != nil {
			asset = tx.AmountIn.Asset
		}
		ctx, cancel := s.storeCtx(ctx)
		defer cancel()
		address, err := s.custody.GenerateDepositAddress(ctx, asset)
		if err != nil {
			return DepositAddress{}, errs.InternalErr("failed to generate deposit address", err)
		}
		if address.MemoType == "" {
			address.MemoType = models.MemoTypeText
		}
		return address, nil
	}

	memoType := models.MemoType(req.MemoType)
	if memoType == "" {
		memoType = models.MemoTypeText
	}
	ve := errs.ValidationErrs()
	if req.DestinationAccount == "" {
		ve.Add("destination_account", "cannot be empty")
	} else if !validAccount(req.DestinationAccount) {
		ve.Add("destination_account", "is not a valid account")
	}
	if req.Memo == "" {
		ve.Add("memo", "cannot be empty")
	} else if msg := validateMemo(memoType, req.Memo); msg != "" {
		ve.Add("memo", msg)
	}
	if err := ve.Err(); err != nil {
		return DepositAddress{}, err
	}
	return DepositAddress{Address: req.DestinationAccount, Memo: req.Memo, MemoType: memoType}, nil
}

func validAccount(address string) bool {
	if _, err := strkey.Decode(strkey.VersionByteAccountID, address); err == nil {
		return true
	}
	_, err := strkey.Decode(strkey.VersionByteMuxedAccount, address)
	return err == nil
}

// validateMemo returns a problem description, or "" for a valid memo.
func validateMemo(memoType models.MemoType, memo string) string {
	switch memoType {
	case models.MemoTypeText:
		if len(memo) > maxTextMemoBytes {
			return "text memo is longer than 28 bytes"
		}
	case models.MemoTypeID:
		if _, err := strconv.ParseUint(memo, 10, 64); err != nil {
			return "id memo is not an unsigned 64 bit integer"
		}
	case models.MemoTypeHash:
		raw, err := hex.DecodeString(memo)
		if err != nil || len(raw) != sha256.Size {
			return "hash memo is not 32 hex encoded bytes"
		}
	default:
		return "unsupported memo type " + string(memoType)
	}
	return ""
}
