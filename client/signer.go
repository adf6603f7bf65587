package client

import (
	"context"
	"strconv"
)

const (
	transferProgram  = "credits"
	transferFunction = "transfer_public"
)

// TransactionPayload is the canonical request handed to a wallet signer.
type TransactionPayload struct {
	Program  string   `json:"program"`
	Function string   `json:"function"`
	Inputs   []string `json:"inputs"`
	Fee      uint64   `json:"fee"`
}

// PayloadFor renders req in the shape the wallet expects.
func PayloadFor(req *OperationRequest) TransactionPayload {
	return TransactionPayload{
		Program:  transferProgram,
		Function: transferFunction,
		Inputs:   []string{req.RecipientAddress, strconv.FormatUint(req.AmountBaseUnits, 10)},
		Fee:      req.FeeBaseUnits,
	}
}

// Signer asks a wallet to sign and broadcast a transaction. The returned
// string is a provisional request handle, not a confirmed transaction id.
type Signer interface {
	RequestTransaction(ctx context.Context, payload TransactionPayload) (string, error)
}

// StatusSource reports the current status of a provisional request handle.
type StatusSource interface {
	TransactionStatus(ctx context.Context, provisionalID string) (StatusReport, error)
}

// SignerFunc adapts a plain function to Signer.
type SignerFunc func(ctx context.Context, payload TransactionPayload) (string, error)

func (f SignerFunc) RequestTransaction(ctx context.Context, payload TransactionPayload) (string, error) {
	return f(ctx, payload)
}

// StatusFunc adapts a plain function to StatusSource.
type StatusFunc func(ctx context.Context, provisionalID string) (StatusReport, error)

func (f StatusFunc) TransactionStatus(ctx context.Context, provisionalID string) (StatusReport, error) {
	return f(ctx, provisionalID)
}
