package client

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSigner returns the next response on each call.
type countingSigner struct {
	calls    atomic.Int32
	payloads []TransactionPayload
	fn       func(n int) (string, error)
}

func (s *countingSigner) RequestTransaction(ctx context.Context, payload TransactionPayload) (string, error) {
	n := int(s.calls.Add(1))
	s.payloads = append(s.payloads, payload)
	return s.fn(n)
}

func transferRequest(t *testing.T) *OperationRequest {
	t.Helper()
	req, err := NewBuilder("", nil).Build(OpTransfer, BuildParams{Recipient: testAddress("q"), Amount: Ptr(1.25)})
	require.NoError(t, err)
	return req
}

func TestSubmit_Success(t *testing.T) {
	signer := &countingSigner{fn: func(int) (string, error) { return "req-123", nil }}
	s := NewSubmitter(signer, nil)

	res, err := s.Submit(context.Background(), transferRequest(t))
	require.NoError(t, err)

	assert.Equal(t, "req-123", res.ProvisionalID)
	assert.Equal(t, StateSubmitted, res.State)
	assert.Empty(t, res.FinalID)
	require.Len(t, signer.payloads, 1)
	assert.Equal(t, TransactionPayload{
		Program:  "credits",
		Function: "transfer_public",
		Inputs:   []string{testAddress("q"), "1250000"},
		Fee:      DefaultFeeBaseUnits,
	}, signer.payloads[0])
}

func TestSubmit_WalletNotConnected(t *testing.T) {
	s := NewSubmitter(nil, nil)

	req := transferRequest(t)
	req.RecipientAddress = "bogus"
	_, err := s.Submit(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, KindWalletNotConnected, Classify(err))
}

func TestSubmit_InvalidAddressSkipsSigner(t *testing.T) {
	signer := &countingSigner{fn: func(int) (string, error) { return "req-1", nil }}
	s := NewSubmitter(signer, nil)

	req := transferRequest(t)
	req.RecipientAddress = "aleo1tooshort"
	_, err := s.Submit(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, KindValidation, Classify(err))
	assert.Equal(t, int32(0), signer.calls.Load())
}

func TestSubmit_SignerErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind ErrorKind
	}{
		{"rejected", errors.New("User Rejected the request"), KindUserRejected},
		{"cancelled", errors.New("operation cancelled"), KindUserRejected},
		{"denied", errors.New("permission denied"), KindUserRejected},
		{"code 4001", errors.New("wallet error 4001"), KindUserRejected},
		{"network", errors.New("connection refused"), KindNetwork},
		{"other", errors.New("program halted"), KindSubmissionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer := &countingSigner{fn: func(int) (string, error) { return "", tt.err }}
			s := NewSubmitter(signer, nil)

			_, err := s.Submit(context.Background(), transferRequest(t))
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, Classify(err))
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, int32(1), signer.calls.Load())
		})
	}
}

func TestSubmit_EmptyRequestID(t *testing.T) {
	signer := &countingSigner{fn: func(int) (string, error) { return "", nil }}
	s := NewSubmitter(signer, nil)

	_, err := s.Submit(context.Background(), transferRequest(t))
	require.Error(t, err)
	assert.Equal(t, KindSubmissionFailed, Classify(err))
}

func TestSubmit_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	signer := SignerFunc(func(ctx context.Context, _ TransactionPayload) (string, error) {
		cancel()
		return "", errors.New("aborted")
	})
	s := NewSubmitter(signer, nil)

	_, err := s.Submit(ctx, transferRequest(t))
	assert.ErrorIs(t, err, context.Canceled)
}
