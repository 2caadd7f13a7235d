package ledger

import (
	// Go Internal Packages
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	// Local Packages
	models "anchor-observer/models"

	// External Packages
	"github.com/stellar/go/xdr"
)

const (
	assetTypeNative        = "native"
	assetTypeAlphanum4     = "credit_alphanum4"
	assetTypeAlphanum12    = "credit_alphanum12"
	assetTypePoolShares    = "liquidity_pool_shares"
	stellarAssetPrefix     = "stellar:"
	stellarNativeAssetName = "stellar:native"
)

// AssetKindOf maps a ledger asset type onto a supported asset kind.
func AssetKindOf(assetType string) (models.AssetKind, error) {
	switch assetType {
	case assetTypeNative:
		return models.AssetNative, nil
	case assetTypeAlphanum4, assetTypeAlphanum12:
		return models.AssetIssued, nil
	case assetTypePoolShares:
		return "", fmt.Errorf("%w: liquidity pool shares", ErrUnsupportedAsset)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAsset, assetType)
	}
}

// AssetName builds the "stellar:CODE:ISSUER" identifier, or "stellar:native".
func AssetName(kind models.AssetKind, code, issuer string) string {
	if kind == models.AssetNative {
		return stellarNativeAssetName
	}
	return fmt.Sprintf("%s%s:%s", stellarAssetPrefix, code, issuer)
}

// ParseAssetName splits an identifier produced by AssetName.
func ParseAssetName(name string) (kind models.AssetKind, code, issuer string, err error) {
	if name == stellarNativeAssetName {
		return models.AssetNative, "", "", nil
	}
	if !strings.HasPrefix(name, stellarAssetPrefix) {
		return "", "", "", fmt.Errorf("%w: %q is not a stellar asset", ErrUnsupportedAsset, name)
	}
	parts := strings.Split(strings.TrimPrefix(name, stellarAssetPrefix), ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("%w: malformed asset %q", ErrUnsupportedAsset, name)
	}
	return models.AssetIssued, parts[0], parts[1], nil
}

// IsStellarAsset reports whether the identifier names a ledger asset.
func IsStellarAsset(name string) bool {
	return strings.HasPrefix(name, stellarAssetPrefix)
}

// BaseAccount resolves a possibly muxed address to its base account. Addresses that do
// not decode, such as contract addresses, are returned unchanged.
func BaseAccount(address string) string {
	muxed, err := xdr.AddressToMuxedAccount(address)
	if err != nil {
		return address
	}
	id := muxed.ToAccountId()
	return id.Address()
}

// normalizeMemo converts the ledger's memo encoding into the one stored on
// transactions: hash and return memos become hex.
func normalizeMemo(memoType, memo string) (models.MemoType, string) {
	switch memoType {
	case "text":
		return models.MemoTypeText, memo
	case "id":
		return models.MemoTypeID, memo
	case "hash", "return":
		raw, err := base64.StdEncoding.DecodeString(memo)
		if err != nil {
			return models.MemoTypeHash, memo
		}
		return models.MemoTypeHash, hex.EncodeToString(raw)
	default:
		return models.MemoTypeNone, ""
	}
}
