package client

import (
	"context"
	"errors"
	"strings"
)

// ErrorKind is the closed set of failure classes surfaced by the pipeline.
type ErrorKind string

const (
	KindWalletNotConnected  ErrorKind = "wallet_not_connected"
	KindUserRejected        ErrorKind = "user_rejected"
	KindInsufficientBalance ErrorKind = "insufficient_balance"
	KindValidation          ErrorKind = "validation_error"
	KindNetwork             ErrorKind = "network_error"
	KindTimeout             ErrorKind = "timeout"
	KindSubmissionFailed    ErrorKind = "submission_failed"
)

// UserMessage returns the message shown to an end user for this kind.
func (k ErrorKind) UserMessage() string {
	switch k {
	case KindWalletNotConnected:
		return "Please connect your wallet to continue."
	case KindUserRejected:
		return "Transaction was cancelled."
	case KindInsufficientBalance:
		return "Insufficient balance to complete this transaction."
	case KindValidation:
		return "The transaction details are invalid."
	case KindNetwork:
		return "Network error. Please check your connection."
	case KindTimeout:
		return "The transaction timed out waiting for confirmation."
	default:
		return "Transaction failed. Please try again."
	}
}

// SuggestedAction returns an optional hint for recovering from this kind.
func (k ErrorKind) SuggestedAction() string {
	switch k {
	case KindWalletNotConnected:
		return "Connect a wallet and retry."
	case KindInsufficientBalance:
		return "Add funds or lower the amount."
	case KindValidation:
		return "Check the recipient address and amount."
	case KindNetwork:
		return "Retry in a few moments."
	case KindTimeout:
		return "Check the explorer before submitting again."
	default:
		return ""
	}
}

// Error is a classified pipeline failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewError builds a classified error. err may be nil.
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage is shorthand for e.Kind.UserMessage().
func (e *Error) UserMessage() string {
	return e.Kind.UserMessage()
}

// rejectionKeywords is the signer vocabulary that marks a user rejection.
var rejectionKeywords = []string{"rejected", "cancelled", "denied", "4001"}

type keywordRule struct {
	kind     ErrorKind
	keywords []string
}

// classificationRules is evaluated in order; the first rule with a matching
// keyword decides the kind.
var classificationRules = []keywordRule{
	{KindWalletNotConnected, []string{"wallet not connected", "no wallet", "not connected", "wallet is locked"}},
	{KindUserRejected, rejectionKeywords},
	{KindInsufficientBalance, []string{"insufficient", "not enough balance", "balance too low"}},
	{KindTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{KindNetwork, []string{
		"network", "connection", "econnrefused", "econnreset", "fetch failed", "failed to fetch",
		"no such host", "unexpected eof", "status 500", "status 502", "status 503", "status 504",
		"internal server error", "bad gateway", "service unavailable", "gateway timeout",
	}},
	{KindValidation, []string{"invalid", "validation", "malformed"}},
}

// ClassifyMessage maps raw error text onto the taxonomy.
func ClassifyMessage(msg string) ErrorKind {
	lower := strings.ToLower(msg)
	for _, rule := range classificationRules {
		if containsAny(lower, rule.keywords) {
			return rule.kind
		}
	}
	return KindSubmissionFailed
}

// Classify maps err onto the taxonomy. Errors already carrying a specific
// kind keep it; generic submission failures are reclassified by their text.
// A cancelled context is the caller giving up, never a signer rejection.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return KindSubmissionFailed
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var pe *Error
	if errors.As(err, &pe) && pe.Kind != KindSubmissionFailed {
		return pe.Kind
	}
	return ClassifyMessage(err.Error())
}

// Retryable reports whether a fresh submission may succeed where err failed.
// Only network and timeout classes qualify, and never a cancellation.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch Classify(err) {
	case KindNetwork, KindTimeout:
		return true
	default:
		return false
	}
}

// IsUserRejection reports whether err is a signer rejection by the user.
func IsUserRejection(err error) bool {
	return Classify(err) == KindUserRejected
}

func isRejectionText(msg string) bool {
	return containsAny(strings.ToLower(msg), rejectionKeywords)
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
