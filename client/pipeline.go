package client

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// Recorder receives pipeline measurements. Implementations must be safe for
// concurrent use.
type Recorder interface {
	RecordSubmission(kind string, state string, attempts int, duration time.Duration)
	RecordRetry(kind string, errorKind string)
	RecordPolls(state string, polls int)
}

// Notifier is told about every entry written to history.
type Notifier interface {
	NotifyRecorded(ctx context.Context, entry HistoryEntry) error
}

// PipelineOptions wires a Pipeline. Only Signer is needed to submit; a nil
// Status disables confirmation polling and a nil History disables recording.
type PipelineOptions struct {
	Builder       *Builder
	Signer        Signer
	Status        StatusSource
	History       *History
	Recorder      Recorder
	Notifier      Notifier
	Poller        PollerConfig
	Retry         RetryConfig
	ExplorerURL   string
	CallerAddress string
	Logger        *slog.Logger
}

// SubmitOptions controls a single pipeline run.
type SubmitOptions struct {
	// WaitForConfirmation polls the status source after each successful
	// submission. It is ignored when the pipeline has no status source.
	WaitForConfirmation bool
}

// Outcome is everything a pipeline run produced.
type Outcome struct {
	Request *OperationRequest `json:"request"`
	Result  *SubmissionResult `json:"result,omitempty"`
	// Entry is nil when nothing was recorded.
	Entry *HistoryEntry `json:"entry,omitempty"`
}

// Pipeline builds, submits, confirms and records operations.
type Pipeline struct {
	builder     *Builder
	submitter   *Submitter
	poller      *Poller
	retrier     *Retrier
	history     *History
	recorder    Recorder
	notifier    Notifier
	explorerURL string
	caller      string
	logger      *slog.Logger
}

// NewPipeline creates a pipeline from opts.
func NewPipeline(opts PipelineOptions) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	builder := opts.Builder
	if builder == nil {
		builder = NewBuilder("", logger)
	}

	p := &Pipeline{
		builder:     builder,
		submitter:   NewSubmitter(opts.Signer, logger),
		retrier:     NewRetrier(opts.Retry, logger),
		history:     opts.History,
		recorder:    opts.Recorder,
		notifier:    opts.Notifier,
		explorerURL: opts.ExplorerURL,
		caller:      opts.CallerAddress,
		logger:      logger,
	}
	if opts.Status != nil {
		p.poller = NewPoller(opts.Status, opts.Poller, logger)
	}
	return p
}

// Builder returns the builder used by Execute.
func (p *Pipeline) Builder() *Builder {
	return p.builder
}

// History returns the pipeline's history, which may be nil.
func (p *Pipeline) History() *History {
	return p.history
}

// Execute builds an operation of kind from params and runs it through
// SubmitWithRetry. The returned Outcome is non-nil whenever the request
// could be built, including when an error is returned.
func (p *Pipeline) Execute(ctx context.Context, kind OperationKind, params BuildParams, opts SubmitOptions) (*Outcome, error) {
	req, err := p.builder.Build(kind, params)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, req, opts)
}

// SubmitWithRetry submits req, optionally waits for confirmation, and
// retries network and timeout failures with exponential backoff. Every run
// that reached the signer is recorded in history exactly once.
func (p *Pipeline) SubmitWithRetry(ctx context.Context, req *OperationRequest, opts SubmitOptions) (*SubmissionResult, error) {
	out, err := p.run(ctx, req, opts)
	if err != nil {
		return nil, err
	}
	return out.Result, nil
}

func (p *Pipeline) run(ctx context.Context, req *OperationRequest, opts SubmitOptions) (*Outcome, error) {
	start := time.Now()
	out := &Outcome{Request: req}
	signerReached := false
	confirm := opts.WaitForConfirmation && p.poller != nil

	// accepted is the latest submission the signer took, as far as polling
	// got before it was interrupted.
	var accepted *SubmissionResult

	attempt := func(ctx context.Context, n int) (*SubmissionResult, error) {
		if p.ReachesSigner(req) {
			signerReached = true
		}
		accepted = nil
		res, err := p.submitter.Submit(ctx, req)
		if err != nil {
			return nil, err
		}
		accepted = res
		if !confirm {
			return res, nil
		}

		polled, err := p.Confirm(ctx, res.ProvisionalID)
		if err != nil {
			if polled != nil {
				accepted = polled
			}
			return nil, err
		}
		return polled, nil
	}

	notify := func(n int, err error, wait time.Duration) {
		if p.recorder != nil {
			p.recorder.RecordRetry(string(req.Kind), string(Classify(err)))
		}
	}

	res, attempts, err := p.retrier.Do(ctx, attempt, notify)
	if err != nil && accepted != nil && ctx.Err() != nil {
		// The signer holds the transaction and it may still finalize, so
		// the run stays on record as submitted under its provisional id.
		partial := *accepted
		partial.State = StateSubmitted
		partial.ErrorKind = ""
		partial.ErrorDetail = "confirmation interrupted: " + err.Error()
		partial.Attempts = attempts
		out.Result = &partial
		p.logger.Warn("operation interrupted after submission",
			"kind", req.Kind,
			"provisional_id", partial.ProvisionalID,
			"polls", partial.Polls,
			"error", err,
		)
	} else if err != nil {
		kind := Classify(err)
		out.Result = &SubmissionResult{
			State:       StateFailed,
			ErrorDetail: err.Error(),
			ErrorKind:   kind,
			Attempts:    attempts,
		}
		p.logger.Warn("operation failed",
			"kind", req.Kind,
			"error_kind", kind,
			"attempts", attempts,
			"error", err,
		)
	} else {
		res.Attempts = attempts
		out.Result = res
		p.logger.Info("operation completed",
			"kind", req.Kind,
			"state", res.State,
			"provisional_id", res.ProvisionalID,
			"final_id", res.FinalID,
			"attempts", attempts,
		)
	}

	if p.recorder != nil {
		p.recorder.RecordSubmission(string(req.Kind), string(out.Result.State), attempts, time.Since(start))
	}

	if signerReached {
		out.Entry = p.Record(ctx, req, out.Result)
	}

	return out, err
}

// ReachesSigner reports whether submitting req would call the signer. Runs
// that never reach it are not recorded.
func (p *Pipeline) ReachesSigner(req *OperationRequest) bool {
	return p.submitter.Connected() && IsValidAddress(req.RecipientAddress)
}

// SubmitOnce makes a single signer call for req without retrying.
func (p *Pipeline) SubmitOnce(ctx context.Context, req *OperationRequest) (*SubmissionResult, error) {
	return p.submitter.Submit(ctx, req)
}

// Confirm polls provisionalID to a terminal state. Without a status source
// the submission is returned unconfirmed.
func (p *Pipeline) Confirm(ctx context.Context, provisionalID string) (*SubmissionResult, error) {
	if p.poller == nil {
		return &SubmissionResult{ProvisionalID: provisionalID, State: StateSubmitted}, nil
	}
	res, err := p.poller.PollUntilTerminal(ctx, provisionalID)
	if p.recorder != nil {
		p.recorder.RecordPolls(string(res.State), res.Polls)
	}
	return res, err
}

// CanConfirm reports whether the pipeline has a status source.
func (p *Pipeline) CanConfirm() bool {
	return p.poller != nil
}

// Record archives res for req in history and notifies subscribers. It
// returns nil when the pipeline has no history.
func (p *Pipeline) Record(ctx context.Context, req *OperationRequest, res *SubmissionResult) *HistoryEntry {
	return p.RecordAs(ctx, "", req, res)
}

// RecordAs is Record with a caller-chosen entry id. Recording an id that is
// already in history stores nothing new, so a retried write is harmless.
// An empty id gets a fresh one.
func (p *Pipeline) RecordAs(ctx context.Context, id string, req *OperationRequest, res *SubmissionResult) *HistoryEntry {
	if p.history == nil {
		return nil
	}
	// History outlives the caller's context.
	ctx = context.WithoutCancel(ctx)

	entry := p.history.Record(ctx, HistoryEntry{
		ID:               id,
		Kind:             req.Kind,
		SubmissionResult: *res,
		RecipientAddress: req.RecipientAddress,
		AmountBaseUnits:  req.AmountBaseUnits,
		Metadata:         req.Metadata,
		ExplorerLink:     ExplorerLink(p.explorerURL, res.FinalID, p.caller),
	})

	if p.notifier != nil {
		if err := p.notifier.NotifyRecorded(ctx, entry); err != nil {
			p.logger.Warn("failed to publish history entry", "id", entry.ID, "error", err)
		}
	}
	return &entry
}
