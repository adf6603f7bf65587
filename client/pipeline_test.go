package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	mu          sync.Mutex
	submissions []string
	retries     []string
	polls       []int
}

func (r *fakeRecorder) RecordSubmission(kind, state string, attempts int, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submissions = append(r.submissions, kind+":"+state)
}

func (r *fakeRecorder) RecordRetry(kind, errorKind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries = append(r.retries, errorKind)
}

func (r *fakeRecorder) RecordPolls(state string, polls int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls = append(r.polls, polls)
}

type fakeNotifier struct {
	entries []HistoryEntry
	err     error
}

func (n *fakeNotifier) NotifyRecorded(ctx context.Context, entry HistoryEntry) error {
	n.entries = append(n.entries, entry)
	return n.err
}

func testPipeline(signer Signer, status StatusSource, history *History) *Pipeline {
	return NewPipeline(PipelineOptions{
		Signer:      signer,
		Status:      status,
		History:     history,
		Poller:      PollerConfig{MaxAttempts: 5, Interval: time.Millisecond},
		Retry:       RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond},
		ExplorerURL: "https://explorer.test",
	})
}

func TestPipeline_EndToEndTransfer(t *testing.T) {
	finalID := "at1" + strings.Repeat("b", 59)
	recipient := "aleo1" + strings.Repeat("q", 59)

	signer := &countingSigner{fn: func(int) (string, error) { return "req-123", nil }}
	status := StatusFunc(func(ctx context.Context, id string) (StatusReport, error) {
		assert.Equal(t, "req-123", id)
		return StructuredStatus{State: "Finalized", TransactionID: finalID}, nil
	})
	history := NewHistory(context.Background(), nil, 10, nil)
	p := testPipeline(signer, status, history)

	req, err := p.Builder().Build(OpTransfer, BuildParams{Recipient: recipient, Amount: Ptr(0.05)})
	require.NoError(t, err)
	assert.True(t, req.AmountClamped)

	res, err := p.SubmitWithRetry(context.Background(), req, SubmitOptions{WaitForConfirmation: true})
	require.NoError(t, err)

	assert.Equal(t, StateConfirmed, res.State)
	assert.Equal(t, TransactionID(finalID), res.FinalID)
	assert.Equal(t, "req-123", res.ProvisionalID)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, int32(1), signer.calls.Load())
	assert.Equal(t, []string{recipient, "100000"}, signer.payloads[0].Inputs)

	entries := history.Query(context.Background(), HistoryQuery{})
	require.Len(t, entries, 1)
	assert.Equal(t, OpTransfer, entries[0].Kind)
	assert.Contains(t, entries[0].ExplorerLink, finalID)
	assert.Equal(t, "https://explorer.test/transaction/"+finalID, entries[0].ExplorerLink)
	assert.Equal(t, StateConfirmed, entries[0].State)
}

func TestPipeline_NoRetryOnRejection(t *testing.T) {
	signer := &countingSigner{fn: func(int) (string, error) { return "", errors.New("User rejected the request") }}
	history := NewHistory(context.Background(), nil, 10, nil)
	p := testPipeline(signer, nil, history)

	out, err := p.Execute(context.Background(), OpSwap, BuildParams{Recipient: testAddress("q")}, SubmitOptions{})
	require.Error(t, err)

	assert.Equal(t, KindUserRejected, Classify(err))
	assert.Equal(t, int32(1), signer.calls.Load())

	require.NotNil(t, out.Entry)
	assert.Equal(t, StateFailed, out.Entry.State)
	assert.Equal(t, KindUserRejected, out.Entry.ErrorKind)
	assert.Equal(t, 1, history.Len())
}

func TestPipeline_BoundedRetryOnNetworkFailure(t *testing.T) {
	netErr := errors.New("network error: connection refused")
	signer := &countingSigner{fn: func(int) (string, error) { return "", netErr }}
	rec := &fakeRecorder{}
	history := NewHistory(context.Background(), nil, 10, nil)
	p := NewPipeline(PipelineOptions{
		Signer:   signer,
		History:  history,
		Recorder: rec,
		Retry:    RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond},
	})

	req, err := p.Builder().Build(OpTransfer, BuildParams{Recipient: testAddress("q")})
	require.NoError(t, err)

	_, err = p.SubmitWithRetry(context.Background(), req, SubmitOptions{})
	require.Error(t, err)

	assert.ErrorIs(t, err, netErr)
	assert.Equal(t, KindNetwork, Classify(err))
	assert.Equal(t, int32(3), signer.calls.Load())
	assert.Equal(t, []string{"network_error", "network_error"}, rec.retries)
	assert.Equal(t, []string{"transfer:failed"}, rec.submissions)

	// Exactly one entry for the whole run, not one per attempt.
	entries := history.Query(context.Background(), HistoryQuery{})
	require.Len(t, entries, 1)
	assert.Equal(t, 3, entries[0].Attempts)
}

func TestPipeline_RecoversAfterTransientFailure(t *testing.T) {
	signer := &countingSigner{fn: func(n int) (string, error) {
		if n == 1 {
			return "", errors.New("503 service unavailable")
		}
		return "req-2", nil
	}}
	history := NewHistory(context.Background(), nil, 10, nil)
	p := testPipeline(signer, nil, history)

	out, err := p.Execute(context.Background(), OpSupply, BuildParams{Recipient: testAddress("q"), Amount: Ptr(3.0)}, SubmitOptions{WaitForConfirmation: true})
	require.NoError(t, err)

	// No status source, so the run ends at submitted.
	assert.Equal(t, StateSubmitted, out.Result.State)
	assert.Equal(t, "req-2", out.Result.ProvisionalID)
	assert.Equal(t, 2, out.Result.Attempts)
	require.NotNil(t, out.Entry)
	// No caller address and no final id, so there is nothing to link to.
	assert.Empty(t, out.Entry.ExplorerLink)
	assert.Equal(t, 1, history.Len())
}

func TestPipeline_PreSignerFailuresAreNotRecorded(t *testing.T) {
	history := NewHistory(context.Background(), nil, 10, nil)

	p := testPipeline(nil, nil, history)
	_, err := p.Execute(context.Background(), OpTransfer, BuildParams{Recipient: testAddress("q")}, SubmitOptions{})
	assert.Equal(t, KindWalletNotConnected, Classify(err))

	signer := &countingSigner{fn: func(int) (string, error) { return "req-1", nil }}
	p = testPipeline(signer, nil, history)
	_, err = p.Execute(context.Background(), OpTransfer, BuildParams{Recipient: "aleo1bad"}, SubmitOptions{})
	assert.Equal(t, KindValidation, Classify(err))

	out, err := p.Execute(context.Background(), OperationKind("nope"), BuildParams{}, SubmitOptions{})
	assert.Nil(t, out)
	assert.Equal(t, KindValidation, Classify(err))

	assert.Equal(t, 0, history.Len())
	assert.Equal(t, int32(0), signer.calls.Load())
}

func TestPipeline_PollFailureIsRecordedNotRetried(t *testing.T) {
	signer := &countingSigner{fn: func(int) (string, error) { return "req-9", nil }}
	status := StatusFunc(func(ctx context.Context, id string) (StatusReport, error) {
		return StructuredStatus{State: "Rejected", Reason: "fee too low"}, nil
	})
	rec := &fakeRecorder{}
	notifier := &fakeNotifier{err: errors.New("nats down")}
	history := NewHistory(context.Background(), nil, 10, nil)
	p := NewPipeline(PipelineOptions{
		Signer:        signer,
		Status:        status,
		History:       history,
		Recorder:      rec,
		Notifier:      notifier,
		Poller:        PollerConfig{MaxAttempts: 10, Interval: time.Millisecond},
		Retry:         RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond},
		CallerAddress: testAddress("C"),
	})

	out, err := p.Execute(context.Background(), OpBorrow, BuildParams{}, SubmitOptions{WaitForConfirmation: true})
	require.NoError(t, err)

	assert.Equal(t, StateFailed, out.Result.State)
	assert.Equal(t, KindSubmissionFailed, out.Result.ErrorKind)
	assert.Equal(t, "fee too low", out.Result.ErrorDetail)
	assert.Equal(t, int32(1), signer.calls.Load())
	assert.Equal(t, []int{3}, rec.polls)

	require.Len(t, notifier.entries, 1)
	assert.Equal(t, out.Entry.ID, notifier.entries[0].ID)
	assert.Equal(t, DefaultExplorerURL+"/address/"+testAddress("C"), out.Entry.ExplorerLink)
}

func TestPipeline_TimedOutIsNotRetried(t *testing.T) {
	signer := &countingSigner{fn: func(int) (string, error) { return "req-1", nil }}
	status := StatusFunc(func(ctx context.Context, id string) (StatusReport, error) {
		return StringStatus("Pending"), nil
	})
	history := NewHistory(context.Background(), nil, 10, nil)
	p := testPipeline(signer, status, history)

	out, err := p.Execute(context.Background(), OpStake, BuildParams{}, SubmitOptions{WaitForConfirmation: true})
	require.NoError(t, err)
	assert.Equal(t, StateTimedOut, out.Result.State)
	assert.Equal(t, 5, out.Result.Polls)
	assert.Equal(t, int32(1), signer.calls.Load())
	assert.Equal(t, 1, history.Len())
}

func TestPipeline_CancelledWhilePolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	signer := &countingSigner{fn: func(int) (string, error) { return "req-1", nil }}
	status := StatusFunc(func(context.Context, string) (StatusReport, error) {
		cancel()
		return StringStatus("Pending"), nil
	})
	history := NewHistory(context.Background(), nil, 10, nil)
	p := testPipeline(signer, status, history)

	out, err := p.Execute(ctx, OpTransfer, BuildParams{}, SubmitOptions{WaitForConfirmation: true})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotEqual(t, KindUserRejected, Classify(err))
	assert.Equal(t, int32(1), signer.calls.Load())

	// The signer holds the transaction, so the run is on record as
	// submitted under its provisional id rather than as a failure.
	require.NotNil(t, out)
	assert.Equal(t, StateSubmitted, out.Result.State)
	assert.Equal(t, "req-1", out.Result.ProvisionalID)

	entries := history.Query(context.Background(), HistoryQuery{})
	require.Len(t, entries, 1)
	assert.Equal(t, StateSubmitted, entries[0].State)
	assert.Equal(t, "req-1", entries[0].ProvisionalID)
	assert.Equal(t, 1, entries[0].Polls)
	assert.Empty(t, entries[0].ErrorKind)
	assert.Contains(t, entries[0].ErrorDetail, "context canceled")
}

func TestPipeline_RecordWithoutCallerHasNoAddressLink(t *testing.T) {
	history := NewHistory(context.Background(), nil, 10, nil)
	p := testPipeline(nil, nil, history)
	req := &OperationRequest{Kind: OpTransfer, RecipientAddress: testAddress("r")}

	entry := p.Record(context.Background(), req, &SubmissionResult{ProvisionalID: "req-1", State: StateSubmitted})
	require.NotNil(t, entry)
	assert.Empty(t, entry.ExplorerLink)

	finalID := TransactionID("at1" + strings.Repeat("f", 59))
	entry = p.Record(context.Background(), req, &SubmissionResult{FinalID: finalID, State: StateConfirmed})
	assert.Equal(t, "https://explorer.test/transaction/"+string(finalID), entry.ExplorerLink)
}

func TestPipeline_RecordAsIsIdempotent(t *testing.T) {
	history := NewHistory(context.Background(), nil, 10, nil)
	notifier := &fakeNotifier{}
	p := NewPipeline(PipelineOptions{History: history, Notifier: notifier})
	req := &OperationRequest{Kind: OpSwap, RecipientAddress: testAddress("r")}
	res := &SubmissionResult{ProvisionalID: "req-1", State: StateSubmitted}

	first := p.RecordAs(context.Background(), "wf-1/run-1", req, res)
	second := p.RecordAs(context.Background(), "wf-1/run-1", req, res)

	require.NotNil(t, first)
	assert.Equal(t, "wf-1/run-1", first.ID)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, history.Len())
}
