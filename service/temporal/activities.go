package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/activity"
	temporalsdk "go.temporal.io/sdk/temporal"

	"github.com/brojonat/aleotx/client"
	"github.com/brojonat/aleotx/service/metrics"
)

// heartbeatInterval is how often AwaitConfirmation heartbeats while polling.
var heartbeatInterval = 10 * time.Second

// BuildOperationInput contains the parameters for the BuildOperation activity.
type BuildOperationInput struct {
	Kind   client.OperationKind `json:"kind"`
	Params client.BuildParams   `json:"params"`
}

// AwaitConfirmationInput contains the parameters for the AwaitConfirmation activity.
type AwaitConfirmationInput struct {
	ProvisionalID string `json:"provisional_id"`
}

// RecordHistoryInput contains the parameters for the RecordHistory activity.
type RecordHistoryInput struct {
	// EntryID names the history entry. A retry with the same id does not
	// add a second entry.
	EntryID   string                   `json:"entry_id,omitempty"`
	Request   *client.OperationRequest `json:"request"`
	Result    *client.SubmissionResult `json:"result"`
	StartedAt time.Time                `json:"started_at"`
}

// SubmitFailure is attached as details to SubmitTransaction errors.
type SubmitFailure struct {
	Attempt       int  `json:"attempt"`
	SignerReached bool `json:"signer_reached"`
}

// Activities holds the dependencies needed by Temporal activities.
// Following go-kit pattern, all dependencies are explicit.
type Activities struct {
	pipeline *client.Pipeline
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(pipeline *client.Pipeline, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		pipeline: pipeline,
		metrics:  m,
		logger:   logger,
	}
}

// BuildOperation validates the parameters and builds the operation request.
// Build errors are never retried.
func (a *Activities) BuildOperation(ctx context.Context, input BuildOperationInput) (*client.OperationRequest, error) {
	start := time.Now()
	req, err := a.pipeline.Builder().Build(input.Kind, input.Params)
	a.recordActivity("BuildOperation", start, err)
	if err != nil {
		a.logger.WarnContext(ctx, "failed to build operation", "kind", input.Kind, "error", err)
		return nil, temporalsdk.NewNonRetryableApplicationError(err.Error(), string(client.Classify(err)), err)
	}
	return req, nil
}

// SubmitTransaction hands the request to the signer once. Network and
// timeout failures are returned as retryable application errors so the
// activity retry policy can back off; every other kind is non-retryable.
func (a *Activities) SubmitTransaction(ctx context.Context, req *client.OperationRequest) (*client.SubmissionResult, error) {
	start := time.Now()
	attempt := int(activity.GetInfo(ctx).Attempt)

	a.logger.DebugContext(ctx, "submitting transaction",
		"kind", req.Kind,
		"recipient", client.FormatAddressForDisplay(req.RecipientAddress, 10, 6),
		"attempt", attempt,
	)

	res, err := a.pipeline.SubmitOnce(ctx, req)
	a.recordActivity("SubmitTransaction", start, err)
	if err != nil {
		kind := client.Classify(err)
		details := SubmitFailure{Attempt: attempt, SignerReached: a.pipeline.ReachesSigner(req)}

		a.logger.WarnContext(ctx, "submission attempt failed",
			"kind", req.Kind,
			"error_kind", kind,
			"attempt", attempt,
			"error", err,
		)
		if client.Retryable(err) {
			if a.metrics != nil {
				a.metrics.RecordRetry(string(req.Kind), string(kind))
			}
			return nil, temporalsdk.NewApplicationError(err.Error(), string(kind), details)
		}
		return nil, temporalsdk.NewNonRetryableApplicationError(err.Error(), string(kind), err, details)
	}

	res.Attempts = attempt
	a.logger.InfoContext(ctx, "transaction submitted",
		"kind", req.Kind,
		"provisional_id", res.ProvisionalID,
		"attempt", attempt,
	)
	return res, nil
}

// AwaitConfirmation polls the status source until the submission reaches a
// terminal state, heartbeating while it waits.
func (a *Activities) AwaitConfirmation(ctx context.Context, input AwaitConfirmationInput) (*client.SubmissionResult, error) {
	start := time.Now()

	done := make(chan struct{})
	defer close(done)
	activity.RecordHeartbeat(ctx, input.ProvisionalID)
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				activity.RecordHeartbeat(ctx, input.ProvisionalID)
			}
		}
	}()

	res, err := a.pipeline.Confirm(ctx, input.ProvisionalID)
	a.recordActivity("AwaitConfirmation", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to await confirmation: %w", err)
	}

	a.logger.InfoContext(ctx, "confirmation finished",
		"provisional_id", input.ProvisionalID,
		"state", res.State,
		"polls", res.Polls,
	)
	return res, nil
}

// RecordHistory archives the run's outcome. It returns nil when the
// pipeline keeps no history.
func (a *Activities) RecordHistory(ctx context.Context, input RecordHistoryInput) (*client.HistoryEntry, error) {
	start := time.Now()
	if input.Request == nil || input.Result == nil {
		return nil, temporalsdk.NewNonRetryableApplicationError("request and result are required", "invalid_input", nil)
	}

	entry := a.pipeline.RecordAs(ctx, input.EntryID, input.Request, input.Result)
	a.recordActivity("RecordHistory", start, nil)

	if a.metrics != nil {
		kind, state := string(input.Request.Kind), string(input.Result.State)
		a.metrics.RecordSubmission(kind, state, input.Result.Attempts, time.Since(input.StartedAt))
		a.metrics.RecordWorkflowDuration(kind, state, time.Since(input.StartedAt).Seconds())
		if h := a.pipeline.History(); h != nil {
			a.metrics.RecordHistorySize("worker", h.Len())
		}
	}
	return entry, nil
}

func (a *Activities) recordActivity(name string, start time.Time, err error) {
	if a.metrics != nil {
		a.metrics.RecordActivityDuration(name, time.Since(start).Seconds(), err)
	}
}
