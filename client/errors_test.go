package client

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want ErrorKind
	}{
		{"Wallet not connected", KindWalletNotConnected},
		{"User rejected the request", KindUserRejected},
		{"Transaction cancelled by user", KindUserRejected},
		{"Permission DENIED", KindUserRejected},
		{"error code 4001", KindUserRejected},
		{"Insufficient balance for fee", KindInsufficientBalance},
		{"request timed out", KindTimeout},
		{"context deadline exceeded", KindTimeout},
		{"dial tcp: connection refused", KindNetwork},
		{"Failed to fetch", KindNetwork},
		{"request failed with status 503: service unavailable", KindNetwork},
		{"invalid input value", KindValidation},
		{"program execution halted", KindSubmissionFailed},
		{"", KindSubmissionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyMessage(tt.msg))
		})
	}
}

func TestClassify_FirstMatchWins(t *testing.T) {
	// Rejection is checked before network failures.
	assert.Equal(t, KindUserRejected, ClassifyMessage("network request rejected"))
	// Timeouts are checked before network failures.
	assert.Equal(t, KindTimeout, ClassifyMessage("connection timed out"))
}

func TestClassify_TypedErrors(t *testing.T) {
	assert.Equal(t, ErrorKind(""), Classify(nil))

	err := NewError(KindInsufficientBalance, "need more", nil)
	assert.Equal(t, KindInsufficientBalance, Classify(fmt.Errorf("wrapped: %w", err)))

	generic := NewError(KindSubmissionFailed, "transaction submission failed", errors.New("connection reset by peer"))
	assert.Equal(t, KindNetwork, Classify(generic))

	opaque := NewError(KindSubmissionFailed, "transaction submission failed", errors.New("program halted"))
	assert.Equal(t, KindSubmissionFailed, Classify(opaque))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(errors.New("connection refused")))
	assert.True(t, Retryable(errors.New("gateway timeout")))
	assert.True(t, Retryable(NewError(KindSubmissionFailed, "transaction submission failed", errors.New("network down"))))

	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(NewError(KindUserRejected, "rejected", nil)))
	assert.False(t, Retryable(NewError(KindInsufficientBalance, "insufficient", nil)))
	assert.False(t, Retryable(NewError(KindValidation, "bad address", nil)))
	assert.False(t, Retryable(NewError(KindWalletNotConnected, "no wallet", nil)))
	assert.False(t, Retryable(errors.New("program halted")))
	assert.False(t, Retryable(fmt.Errorf("network: %w", context.Canceled)))
}

func TestClassify_ContextErrors(t *testing.T) {
	assert.Equal(t, KindSubmissionFailed, Classify(context.Canceled))
	assert.Equal(t, KindSubmissionFailed, Classify(fmt.Errorf("confirmation interrupted: %w", context.Canceled)))
	assert.NotEqual(t, KindUserRejected, Classify(context.Canceled))
	assert.Equal(t, KindTimeout, Classify(context.DeadlineExceeded))

	// Rejection vocabulary still applies to signer text.
	assert.Equal(t, KindUserRejected, ClassifyMessage("Transaction cancelled by user"))
	assert.Equal(t, KindUserRejected, ClassifyMessage("error 4001"))
}

func TestError_Messages(t *testing.T) {
	err := NewError(KindSubmissionFailed, "transaction submission failed", errors.New("boom"))
	assert.Equal(t, "transaction submission failed: boom", err.Error())
	assert.Equal(t, "boom", errors.Unwrap(err).Error())
	assert.NotEmpty(t, err.UserMessage())

	bare := &Error{Kind: KindTimeout}
	assert.Equal(t, "timeout", bare.Error())

	for _, k := range []ErrorKind{
		KindWalletNotConnected, KindUserRejected, KindInsufficientBalance,
		KindValidation, KindNetwork, KindTimeout, KindSubmissionFailed,
	} {
		assert.NotEmpty(t, k.UserMessage(), k)
	}
	assert.Empty(t, KindUserRejected.SuggestedAction())
	assert.NotEmpty(t, KindInsufficientBalance.SuggestedAction())
}
