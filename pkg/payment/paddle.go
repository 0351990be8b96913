package payment

import (
	"context"
	"errors"
	"net/http"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/PaddleHQ/paddle-go-sdk/v4/pkg/paddleerr"
)

// PaddleTransactions is the part of the Paddle SDK the adapter needs.
// *paddle.TransactionsClient satisfies it.
type PaddleTransactions interface {
	CreateTransaction(ctx context.Context, req *paddle.CreateTransactionRequest) (*paddle.Transaction, error)
}

// PaddleAdapter sells plans as catalog prices through transactions.
// Auto-renewal is managed in the Paddle customer portal and not supported here.
type PaddleAdapter struct {
	txs  PaddleTransactions
	urls RedirectURLs
}

func NewPaddleAdapter(txs PaddleTransactions, urls RedirectURLs) *PaddleAdapter {
	if txs == nil {
		panic("payment: nil paddle transactions client")
	}
	return &PaddleAdapter{txs: txs, urls: urls}
}

func (a *PaddleAdapter) Provider() Provider { return ProviderPaddle }

// CreateCheckout creates a transaction for the price in req.ProductID and
// redirects to its checkout URL.
func (a *PaddleAdapter) CreateCheckout(ctx context.Context, req AdapterRequest) (*CheckoutResult, error) {
	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.ProductID,
		Quantity: 1,
	})

	data := paddle.CustomData{"email": req.User.Email}
	for k, v := range req.Metadata {
		data[k] = v
	}

	txReq := &paddle.CreateTransactionRequest{
		Items:      []paddle.CreateTransactionItems{*item},
		CustomData: data,
	}
	if u := a.urls.success(req); u != "" {
		txReq.Checkout = &paddle.TransactionCheckout{URL: paddle.PtrTo(u)}
	}

	tx, err := a.txs.CreateTransaction(ctx, txReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, paddleError("create transaction", err)
	}
	if tx == nil || tx.Checkout == nil || tx.Checkout.URL == nil || *tx.Checkout.URL == "" {
		return nil, Rejected(ProviderPaddle, "create transaction", "no checkout URL returned")
	}
	return &CheckoutResult{
		Provider:    ProviderPaddle,
		RedirectURL: *tx.Checkout.URL,
		SessionID:   tx.ID,
	}, nil
}

// paddleError classifies an SDK failure. The SDK does not always fill in
// Status, so the error code decides when it is missing.
func paddleError(op string, err error) error {
	var pe *paddleerr.Error
	if !errors.As(err, &pe) {
		return NewRemoteError(ProviderPaddle, op, 0, "", err)
	}
	status := pe.Status
	if status == 0 {
		status = paddleStatus(pe)
	}
	return NewRemoteError(ProviderPaddle, op, status, pe.Detail, err)
}

func paddleStatus(pe *paddleerr.Error) int {
	switch pe.Code {
	case "authentication_missing", "authentication_malformed", "invalid_token", "authentication_failed":
		return http.StatusUnauthorized
	case "forbidden", "permission_denied":
		return http.StatusForbidden
	case "not_found", "entity_not_found":
		return http.StatusNotFound
	case "too_many_requests":
		return http.StatusTooManyRequests
	case "bad_gateway":
		return http.StatusBadGateway
	}
	if pe.Type == paddleerr.ErrorTypeRequestError {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
