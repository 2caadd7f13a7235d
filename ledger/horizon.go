package ledger

import (
	// Go Internal Packages
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	// Local Packages
	models "anchor-observer/models"

	// External Packages
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/protocols/horizon/operations"
	"github.com/stellar/go/xdr"
	"go.uber.org/zap"
)

const (
	joinTransactions          = "transactions"
	balanceChangeTypeTransfer = "transfer"
	paymentsPageLimit         = 200
)

// HorizonSource implements Source over a Horizon REST/SSE endpoint.
type HorizonSource struct {
	requests *horizonclient.Client
	stream   *horizonclient.Client
	logger   *zap.Logger
}

// NewHorizonSource builds a source. Plain requests are bounded by requestTimeout; the
// streaming client has no timeout and is bounded by its context instead.
func NewHorizonSource(horizonURL string, requestTimeout time.Duration, logger *zap.Logger) *HorizonSource {
	return &HorizonSource{
		requests: &horizonclient.Client{
			HorizonURL: horizonURL,
			HTTP:       &http.Client{Timeout: requestTimeout},
		},
		stream: &horizonclient.Client{
			HorizonURL: horizonURL,
			HTTP:       http.DefaultClient,
		},
		logger: logger,
	}
}

// LatestCursor returns the paging token of the most recent payment minus one so the
// stream starts with that payment rather than after it.
func (h *HorizonSource) LatestCursor(ctx context.Context) (string, error) {
	page, err := callWithContext(ctx, func() (operations.OperationsPage, error) {
		return h.requests.Payments(horizonclient.OperationRequest{
			Order: horizonclient.OrderDesc,
			Limit: 1,
		})
	})
	if err != nil {
		return "", fmt.Errorf("fetch latest payment: %w", err)
	}
	if len(page.Embedded.Records) == 0 {
		return "", nil
	}
	return CursorBefore(page.Embedded.Records[0].PagingToken()), nil
}

// StreamOperations streams payments after cursor until ctx is cancelled, the stream
// fails, or handler returns an error.
func (h *HorizonSource) StreamOperations(ctx context.Context, cursor string, handler OperationHandler) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once       sync.Once
		handlerErr error
	)
	request := horizonclient.OperationRequest{
		Cursor: cursor,
		Join:   joinTransactions,
	}
	err := h.stream.StreamPayments(streamCtx, request, func(op operations.Operation) {
		if streamCtx.Err() != nil {
			return
		}
		mapped, ok := h.mapOperation(op)
		if !ok {
			return
		}
		if err := handler(streamCtx, mapped); err != nil {
			once.Do(func() {
				handlerErr = err
				cancel()
			})
		}
	})
	if handlerErr != nil {
		return handlerErr
	}
	if err != nil {
		return fmt.Errorf("stream payments: %w", err)
	}
	return nil
}

// TransactionByHash returns the ledger transaction and its payment legs.
func (h *HorizonSource) TransactionByHash(ctx context.Context, hash string) (*models.LedgerTransaction, error) {
	tx, err := callWithContext(ctx, func() (horizon.Transaction, error) {
		return h.requests.TransactionDetail(hash)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch transaction %s: %w", hash, err)
	}

	page, err := callWithContext(ctx, func() (operations.OperationsPage, error) {
		return h.requests.Payments(horizonclient.OperationRequest{
			ForTransaction: hash,
			Limit:          paymentsPageLimit,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("fetch payments of %s: %w", hash, err)
	}

	result := mapTransaction(tx)
	for _, record := range page.Embedded.Records {
		op, ok := h.mapOperation(record)
		if !ok {
			continue
		}
		kind, err := AssetKindOf(op.AssetType)
		if err != nil {
			continue
		}
		result.Payments = append(result.Payments, models.LedgerPayment{
			ID:     op.ID,
			Type:   string(op.Type),
			From:   op.From,
			To:     op.To,
			Asset:  AssetName(kind, op.AssetCode, op.AssetIssuer),
			Amount: op.Amount,
		})
	}
	return result, nil
}

// HasTrustline reports whether account holds a trust line for asset. Native assets and
// contract addresses need none.
func (h *HorizonSource) HasTrustline(ctx context.Context, account, asset string) (bool, error) {
	kind, code, issuer, err := ParseAssetName(asset)
	if err != nil {
		return false, err
	}
	if kind == models.AssetNative {
		return true, nil
	}

	base := BaseAccount(account)
	details, err := callWithContext(ctx, func() (horizon.Account, error) {
		return h.requests.AccountDetail(horizonclient.AccountRequest{AccountID: base})
	})
	if err != nil {
		if horizonclient.IsNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("fetch account %s: %w", base, err)
	}
	for _, balance := range details.Balances {
		if balance.Code == code && balance.Issuer == issuer {
			return true, nil
		}
	}
	return false, nil
}

func (h *HorizonSource) mapOperation(op operations.Operation) (Operation, bool) {
	switch o := op.(type) {
	case operations.Payment:
		return fromPayment(OpPayment, o), true
	case operations.PathPayment:
		return fromPayment(OpPathPaymentStrictReceive, o.Payment), true
	case operations.PathPaymentStrictSend:
		return fromPayment(OpPathPaymentStrictSend, o.Payment), true
	case operations.InvokeHostFunction:
		return fromInvokeHostFunction(o)
	default:
		h.logger.Debug("skipping non payment operation",
			zap.String("type", op.GetType()), zap.String("id", op.GetID()))
		return Operation{}, false
	}
}

func fromPayment(typ OperationType, p operations.Payment) Operation {
	to := p.To
	if p.ToMuxed != "" {
		to = p.ToMuxed
	}
	from := p.From
	if p.FromMuxed != "" {
		from = p.FromMuxed
	}
	op := Operation{
		ID:              p.ID,
		PagingToken:     p.PT,
		Type:            typ,
		TransactionHash: p.TransactionHash,
		Successful:      p.TransactionSuccessful,
		From:            from,
		To:              to,
		AssetType:       p.Asset.Type,
		AssetCode:       p.Asset.Code,
		AssetIssuer:     p.Asset.Issuer,
		Amount:          p.Amount,
		CreatedAt:       p.LedgerCloseTime,
	}
	if p.Transaction != nil {
		op.Transaction = mapTransaction(*p.Transaction)
	}
	return op
}

func fromInvokeHostFunction(o operations.InvokeHostFunction) (Operation, bool) {
	var transfer *operations.AssetContractBalanceChange
	for i := range o.AssetBalanceChanges {
		if o.AssetBalanceChanges[i].Type == balanceChangeTypeTransfer {
			transfer = &o.AssetBalanceChanges[i]
			break
		}
	}
	if transfer == nil {
		return Operation{}, false
	}

	op := Operation{
		ID:              o.ID,
		PagingToken:     o.PT,
		Type:            OpInvokeHostFunction,
		TransactionHash: o.TransactionHash,
		Successful:      o.TransactionSuccessful,
		From:            transfer.From,
		To:              transfer.To,
		AssetType:       transfer.Asset.Type,
		AssetCode:       transfer.Asset.Code,
		AssetIssuer:     transfer.Asset.Issuer,
		Amount:          transfer.Amount,
		FunctionName:    contractFunctionName(o.Parameters),
		CreatedAt:       o.LedgerCloseTime,
	}
	if o.Transaction != nil {
		op.Transaction = mapTransaction(*o.Transaction)
	}
	return op, true
}

// contractFunctionName finds the first symbol parameter, which is the function name of
// an invoke_contract host function.
func contractFunctionName(params []operations.HostFunctionParameter) string {
	for _, p := range params {
		if p.Type != "Sym" {
			continue
		}
		var v xdr.ScVal
		if err := xdr.SafeUnmarshalBase64(p.Value, &v); err != nil {
			continue
		}
		if v.Type == xdr.ScValTypeScvSymbol && v.Sym != nil {
			return string(*v.Sym)
		}
	}
	return ""
}

func mapTransaction(tx horizon.Transaction) *models.LedgerTransaction {
	memoType, memo := normalizeMemo(tx.MemoType, tx.Memo)
	return &models.LedgerTransaction{
		Hash:       tx.Hash,
		Ledger:     tx.Ledger,
		Memo:       memo,
		MemoType:   memoType,
		Envelope:   tx.EnvelopeXdr,
		Successful: tx.Successful,
		CreatedAt:  tx.LedgerCloseTime,
	}
}

// CursorBefore returns the cursor immediately preceding token. Non numeric tokens are
// returned unchanged.
func CursorBefore(token string) string {
	n, err := strconv.ParseInt(token, 10, 64)
	if err != nil || n <= 0 {
		return token
	}
	return strconv.FormatInt(n-1, 10)
}

// callWithContext runs a blocking horizonclient call and gives up when ctx is done. The
// call itself is bounded by the request client's timeout.
func callWithContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{value: v, err: err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-done:
		return r.value, r.err
	}
}
