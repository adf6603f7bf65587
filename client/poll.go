package client

import (
	"context"
	"io"
	"log/slog"
	"time"
)

const (
	DefaultPollMaxAttempts      = 30
	DefaultPollInterval         = 2 * time.Second
	DefaultPollFailureThreshold = 3
)

// PollerConfig bounds a confirmation poll.
type PollerConfig struct {
	MaxAttempts int
	Interval    time.Duration
	// FailureThreshold is the number of consecutive Failed or Rejected
	// readings that make a failure final.
	FailureThreshold int
}

// DefaultPollerConfig returns the standard polling budget.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		MaxAttempts:      DefaultPollMaxAttempts,
		Interval:         DefaultPollInterval,
		FailureThreshold: DefaultPollFailureThreshold,
	}
}

// Poller waits for a provisional request to reach a terminal status.
type Poller struct {
	status StatusSource
	cfg    PollerConfig
	logger *slog.Logger
}

// NewPoller creates a poller over status. Zero config fields take defaults.
func NewPoller(status StatusSource, cfg PollerConfig, logger *slog.Logger) *Poller {
	def := DefaultPollerConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Poller{status: status, cfg: cfg, logger: logger}
}

// Config returns the effective polling budget.
func (p *Poller) Config() PollerConfig {
	return p.cfg
}

// PollUntilTerminal queries the status source until it reports Finalized,
// reports a failure FailureThreshold times in a row, or MaxAttempts queries
// have been made. Query errors count as pending readings.
//
// A failed result carries KindSubmissionFailed. The only error returned is
// the context's, when it is cancelled while waiting between queries.
func (p *Poller) PollUntilTerminal(ctx context.Context, provisionalID string) (*SubmissionResult, error) {
	result := &SubmissionResult{
		ProvisionalID: provisionalID,
		State:         StateSubmitted,
	}

	var (
		consecutiveFailures int
		lastReport          StatusReport
	)

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		result.Polls = attempt
		report, err := p.status.TransactionStatus(ctx, provisionalID)
		if err != nil {
			p.logger.Debug("status query failed",
				"provisional_id", provisionalID,
				"attempt", attempt,
				"error", err,
			)
			report = nil
		}

		if report != nil {
			lastReport = report
			status := report.Status()
			result.LastStatus = status

			switch {
			case status == StatusFinalized:
				result.State = StateConfirmed
				result.FinalID = resolveFinalID(report, provisionalID)
				p.logger.Info("transaction finalized",
					"provisional_id", provisionalID,
					"final_id", result.FinalID,
					"polls", attempt,
				)
				return result, nil

			case status.IsFailure():
				consecutiveFailures++
				if consecutiveFailures >= p.cfg.FailureThreshold {
					result.State = StateFailed
					result.ErrorKind = KindSubmissionFailed
					result.ErrorDetail = failureDetail(report)
					p.logger.Warn("transaction failed",
						"provisional_id", provisionalID,
						"status", status,
						"detail", result.ErrorDetail,
						"polls", attempt,
					)
					return result, nil
				}

			default:
				consecutiveFailures = 0
			}
		}

		if attempt == p.cfg.MaxAttempts {
			break
		}
		if err := sleepContext(ctx, p.cfg.Interval); err != nil {
			return result, err
		}
	}

	// Budget exhausted. A final failure reading is reported as a failure;
	// anything else is assumed not to have failed.
	if lastReport != nil && lastReport.Status().IsFailure() {
		result.State = StateFailed
		result.ErrorKind = KindSubmissionFailed
		result.ErrorDetail = failureDetail(lastReport)
	} else {
		result.State = StateTimedOut
	}
	p.logger.Warn("confirmation polling exhausted",
		"provisional_id", provisionalID,
		"state", result.State,
		"last_status", result.LastStatus,
		"polls", result.Polls,
	)
	return result, nil
}

// resolveFinalID returns the well-formed id reported for a finalized
// request, falling back to the provisional id when it is itself well-formed.
func resolveFinalID(report StatusReport, provisionalID string) TransactionID {
	if id := finalIDOf(report); id.WellFormed() {
		return id
	}
	if id := TransactionID(provisionalID); id.WellFormed() {
		return id
	}
	return ""
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
