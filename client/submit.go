package client

import (
	"context"
	"io"
	"log/slog"
)

// State is the lifecycle position of a submission.
type State string

const (
	StateSubmitted State = "submitted"
	StateConfirmed State = "confirmed"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
)

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFailed || s == StateTimedOut
}

// SubmissionResult is the outcome of one submission attempt and, once
// polled, its confirmation.
type SubmissionResult struct {
	ProvisionalID string `json:"provisional_id"`
	// FinalID is only ever a well-formed transaction id.
	FinalID     TransactionID `json:"final_id,omitempty"`
	State       State         `json:"state"`
	ErrorDetail string        `json:"error_detail,omitempty"`
	ErrorKind   ErrorKind     `json:"error_kind,omitempty"`
	LastStatus  Status        `json:"last_status,omitempty"`
	Polls       int           `json:"polls,omitempty"`
	Attempts    int           `json:"attempts,omitempty"`
}

// Submitter hands operation requests to a wallet signer.
type Submitter struct {
	signer Signer
	logger *slog.Logger
}

// NewSubmitter creates a submitter. A nil signer means no wallet is
// connected; every Submit then fails with KindWalletNotConnected.
func NewSubmitter(signer Signer, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Submitter{signer: signer, logger: logger}
}

// Connected reports whether a signer is registered.
func (s *Submitter) Connected() bool {
	return s.signer != nil
}

// Submit invokes the signer exactly once for req.
func (s *Submitter) Submit(ctx context.Context, req *OperationRequest) (*SubmissionResult, error) {
	if s.signer == nil {
		return nil, NewError(KindWalletNotConnected, "wallet not connected", nil)
	}
	if !IsValidAddress(req.RecipientAddress) {
		return nil, NewError(KindValidation, "invalid recipient address "+FormatAddressForDisplay(req.RecipientAddress, 10, 6), nil)
	}

	payload := PayloadFor(req)
	provisionalID, err := s.signer.RequestTransaction(ctx, payload)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if isRejectionText(err.Error()) {
			s.logger.Info("transaction rejected by user", "kind", req.Kind)
			return nil, NewError(KindUserRejected, "transaction rejected by user", err)
		}
		s.logger.Warn("signer request failed", "kind", req.Kind, "error", err)
		return nil, NewError(KindSubmissionFailed, "transaction submission failed", err)
	}
	if provisionalID == "" {
		return nil, NewError(KindSubmissionFailed, "signer returned an empty request id", nil)
	}

	s.logger.Debug("transaction submitted",
		"kind", req.Kind,
		"provisional_id", provisionalID,
		"amount_base_units", req.AmountBaseUnits,
	)

	return &SubmissionResult{
		ProvisionalID: provisionalID,
		State:         StateSubmitted,
	}, nil
}
