package temporal

import (
	"errors"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/brojonat/aleotx/client"
)

var a *Activities // for type-safe activity invocation

// OperationInput starts an ExecuteOperationWorkflow.
type OperationInput struct {
	Kind                client.OperationKind `json:"kind"`
	Params              client.BuildParams   `json:"params"`
	WaitForConfirmation bool                 `json:"wait_for_confirmation"`

	// Zero values take client.DefaultMaxRetries and client.DefaultRetryBaseDelay.
	MaxRetries     int           `json:"max_retries,omitempty"`
	RetryBaseDelay time.Duration `json:"retry_base_delay,omitempty"`
}

// OperationResult is what ExecuteOperationWorkflow returns. Operation
// failures are reported here, not as workflow errors.
type OperationResult struct {
	Outcome   *client.Outcome  `json:"outcome,omitempty"`
	Error     string           `json:"error,omitempty"`
	ErrorKind client.ErrorKind `json:"error_kind,omitempty"`
}

// Status converts the result to the service's operation status.
func (r *OperationResult) Status(workflowID string) *client.OperationStatus {
	status := &client.OperationStatus{
		WorkflowID: workflowID,
		Status:     client.OperationCompleted,
		Outcome:    r.Outcome,
		Error:      r.Error,
		ErrorKind:  r.ErrorKind,
	}
	if r.Error != "" {
		status.Status = client.OperationFailed
	}
	return status
}

// ExecuteOperationWorkflow builds an operation, submits it with retries,
// optionally waits for confirmation, and records the outcome.
//
// The workflow performs these steps:
// 1. Build and validate the request (BuildOperation activity)
// 2. Hand it to the signer, retrying network and timeout failures (SubmitTransaction activity)
// 3. Poll for a terminal status when asked to (AwaitConfirmation activity)
// 4. Archive the outcome in history (RecordHistory activity)
//
// Runs that fail before reaching the signer are not recorded.
func ExecuteOperationWorkflow(ctx workflow.Context, input OperationInput) (*OperationResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("ExecuteOperationWorkflow started", "kind", input.Kind)

	startedAt := workflow.Now(ctx)
	result := &OperationResult{}

	// Step 1: build the request
	buildCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy:         &temporalsdk.RetryPolicy{MaximumAttempts: 1},
	})
	var req *client.OperationRequest
	if err := workflow.ExecuteActivity(buildCtx, a.BuildOperation, BuildOperationInput{
		Kind:   input.Kind,
		Params: input.Params,
	}).Get(ctx, &req); err != nil {
		failure := failureOf(err)
		logger.Warn("failed to build operation", "kind", input.Kind, "error", err)
		result.Error, result.ErrorKind = failure.message, failure.kind
		return result, nil
	}
	result.Outcome = &client.Outcome{Request: req}

	// Step 2: submit with retries
	submitCtx := workflow.WithActivityOptions(ctx, submitActivityOptions(input))
	var sub *client.SubmissionResult
	if err := workflow.ExecuteActivity(submitCtx, a.SubmitTransaction, req).Get(ctx, &sub); err != nil {
		failure := failureOf(err)
		logger.Warn("submission failed",
			"kind", input.Kind,
			"error_kind", failure.kind,
			"attempts", failure.attempt,
			"error", err,
		)
		result.Error, result.ErrorKind = failure.message, failure.kind
		if !failure.signerReached {
			return result, nil
		}
		sub = &client.SubmissionResult{
			State:       client.StateFailed,
			ErrorDetail: failure.message,
			ErrorKind:   failure.kind,
			Attempts:    failure.attempt,
		}
	} else if input.WaitForConfirmation {
		// Step 3: wait for a terminal status. Never retried, so a timed out
		// submission is not resubmitted.
		awaitCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
			StartToCloseTimeout: 30 * time.Minute,
			HeartbeatTimeout:    3 * heartbeatInterval,
			RetryPolicy:         &temporalsdk.RetryPolicy{MaximumAttempts: 1},
		})
		var polled *client.SubmissionResult
		err := workflow.ExecuteActivity(awaitCtx, a.AwaitConfirmation, AwaitConfirmationInput{
			ProvisionalID: sub.ProvisionalID,
		}).Get(ctx, &polled)
		if err != nil {
			logger.Warn("confirmation failed, leaving submission unconfirmed",
				"provisional_id", sub.ProvisionalID,
				"error", err,
			)
		} else {
			polled.Attempts = sub.Attempts
			sub = polled
		}
	}
	result.Outcome.Result = sub

	if sub.State == client.StateFailed && result.Error == "" {
		result.Error = sub.ErrorDetail
		if result.Error == "" {
			result.Error = "transaction failed"
		}
		result.ErrorKind = sub.ErrorKind
		if result.ErrorKind == "" {
			result.ErrorKind = client.KindSubmissionFailed
		}
	}

	// Step 4: record the outcome
	recordCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	})
	// The entry id is fixed per run so a retried record stores one entry.
	run := workflow.GetInfo(ctx).WorkflowExecution
	var entry *client.HistoryEntry
	if err := workflow.ExecuteActivity(recordCtx, a.RecordHistory, RecordHistoryInput{
		EntryID:   run.ID + "/" + run.RunID,
		Request:   req,
		Result:    sub,
		StartedAt: startedAt,
	}).Get(ctx, &entry); err != nil {
		logger.Warn("failed to record history", "kind", input.Kind, "error", err)
	} else {
		result.Outcome.Entry = entry
	}

	logger.Info("ExecuteOperationWorkflow finished",
		"kind", input.Kind,
		"state", sub.State,
		"attempts", sub.Attempts,
	)
	return result, nil
}

// submitActivityOptions mirrors the client retrier: MaxRetries attempts with
// delays doubling from RetryBaseDelay.
func submitActivityOptions(input OperationInput) workflow.ActivityOptions {
	maxRetries := input.MaxRetries
	if maxRetries <= 0 {
		maxRetries = client.DefaultMaxRetries
	}
	baseDelay := input.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = client.DefaultRetryBaseDelay
	}

	return workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    baseDelay,
			BackoffCoefficient: 2.0,
			MaximumInterval:    baseDelay << maxRetries,
			MaximumAttempts:    int32(maxRetries),
			NonRetryableErrorTypes: []string{
				string(client.KindWalletNotConnected),
				string(client.KindUserRejected),
				string(client.KindInsufficientBalance),
				string(client.KindValidation),
				string(client.KindSubmissionFailed),
			},
		},
	}
}

type activityFailure struct {
	kind          client.ErrorKind
	message       string
	attempt       int
	signerReached bool
}

// failureOf extracts the error kind and SubmitFailure details from an
// activity error.
func failureOf(err error) activityFailure {
	var appErr *temporalsdk.ApplicationError
	if !errors.As(err, &appErr) {
		return activityFailure{kind: client.Classify(err), message: err.Error()}
	}

	f := activityFailure{kind: client.ErrorKind(appErr.Type()), message: appErr.Message()}
	if appErr.HasDetails() {
		var details SubmitFailure
		if appErr.Details(&details) == nil {
			f.attempt = details.Attempt
			f.signerReached = details.SignerReached
		}
	}
	return f
}
