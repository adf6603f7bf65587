package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/brojonat/aleotx/client"
	"github.com/brojonat/aleotx/service/metrics"
	"github.com/brojonat/aleotx/service/temporal"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for an operation
	maxHistoryLimit    = 1000
)

// handleSubmitOperation returns a handler that builds and submits an operation.
// POST /api/v1/operations
//
// Synchronous submissions run through the pipeline and answer with the
// completed status. Async submissions start a workflow and answer 202 with
// its id.
func handleSubmitOperation(pipeline *client.Pipeline, dispatcher temporal.Dispatcher, retry client.RetryConfig, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Limit request body size to prevent memory exhaustion
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var sub client.OperationSubmission
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			logger.Debug("failed to decode operation request", "error", err)
			if strings.Contains(err.Error(), "http: request body too large") {
				writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		if sub.Kind == "" {
			writeError(w, "kind is required", http.StatusBadRequest)
			return
		}

		if sub.Async {
			if dispatcher == nil {
				writeError(w, "async operations are not available", http.StatusServiceUnavailable)
				return
			}

			// Reject bad parameters before a workflow is started.
			req, err := pipeline.Builder().Build(sub.Kind, sub.BuildParams)
			if err != nil {
				writeAPIError(w, err, nil)
				return
			}
			if !client.IsValidAddress(req.RecipientAddress) {
				writeAPIError(w, client.NewError(client.KindValidation, "invalid recipient address", nil), nil)
				return
			}

			id, err := dispatcher.StartOperation(r.Context(), temporal.OperationInput{
				Kind:                sub.Kind,
				Params:              sub.BuildParams,
				WaitForConfirmation: sub.WaitForConfirmation,
				MaxRetries:          retry.MaxRetries,
				RetryBaseDelay:      retry.BaseDelay,
			})
			if err != nil {
				logger.Error("failed to start operation", "kind", sub.Kind, "error", err)
				writeError(w, "failed to start operation", http.StatusInternalServerError)
				return
			}

			logger.Info("operation started", "kind", sub.Kind, "workflow_id", id)
			writeJSON(w, client.OperationStatus{WorkflowID: id, Status: client.OperationRunning}, http.StatusAccepted)
			return
		}

		out, err := pipeline.Execute(r.Context(), sub.Kind, sub.BuildParams, client.SubmitOptions{
			WaitForConfirmation: sub.WaitForConfirmation,
		})
		if m != nil {
			if h := pipeline.History(); h != nil {
				m.RecordHistorySize("server", h.Len())
			}
		}
		if err != nil {
			logger.Info("operation failed", "kind", sub.Kind, "error_kind", client.Classify(err), "error", err)
			writeAPIError(w, err, out)
			return
		}

		status := client.OperationStatus{Status: client.OperationCompleted, Outcome: out}
		if out.Result != nil && out.Result.State == client.StateFailed {
			status.Status = client.OperationFailed
			status.Error = out.Result.ErrorDetail
			status.ErrorKind = out.Result.ErrorKind
			if status.ErrorKind == "" {
				status.ErrorKind = client.KindSubmissionFailed
			}
		}
		writeJSON(w, status, http.StatusOK)
	})
}

// handleGetOperation returns a handler that reports an async operation.
// GET /api/v1/operations/{workflow_id}
func handleGetOperation(dispatcher temporal.Dispatcher, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if dispatcher == nil {
			writeError(w, "async operations are not available", http.StatusServiceUnavailable)
			return
		}

		workflowID := r.PathValue("workflow_id")
		if workflowID == "" {
			writeError(w, "workflow_id is required", http.StatusBadRequest)
			return
		}

		status, err := dispatcher.DescribeOperation(r.Context(), workflowID)
		if err != nil {
			if errors.Is(err, temporal.ErrOperationNotFound) {
				writeError(w, "operation not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to describe operation", "workflow_id", workflowID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, status, http.StatusOK)
	})
}

// handleListHistory returns a handler that lists recorded operations.
// GET /api/v1/history?kind={kind}&start={ms}&end={ms}&limit={n}
func handleListHistory(history *client.History, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q, err := parseHistoryQuery(r)
		if err != nil {
			logger.Debug("invalid history query", "query", r.URL.RawQuery, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		entries := []client.HistoryEntry{}
		if history != nil {
			entries = append(entries, history.Query(r.Context(), q)...)
		}

		logger.Debug("history listed", "kind", q.Kind, "count", len(entries))
		writeJSON(w, map[string]interface{}{
			"entries": entries,
		}, http.StatusOK)
	})
}

// handleClearHistory returns a handler that deletes every recorded operation.
// DELETE /api/v1/history
func handleClearHistory(history *client.History, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if history != nil {
			history.Clear(r.Context())
			if m != nil {
				m.RecordHistorySize("server", 0)
			}
		}
		logger.Info("history cleared")
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleLedgerHeight returns a handler that reports the chain height.
// GET /api/v1/ledger/height
func handleLedgerHeight(ledger *client.LedgerClient, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			writeError(w, "ledger is not configured", http.StatusServiceUnavailable)
			return
		}

		height, err := ledger.LatestHeight(r.Context())
		if err != nil {
			logger.Warn("failed to read ledger height", "error", err)
			writeError(w, "failed to read ledger height", http.StatusBadGateway)
			return
		}

		writeJSON(w, map[string]uint64{"height": height}, http.StatusOK)
	})
}

// handleLedgerTransaction returns a handler that proxies a ledger transaction.
// GET /api/v1/ledger/transactions/{id}
func handleLedgerTransaction(ledger *client.LedgerClient, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			writeError(w, "ledger is not configured", http.StatusServiceUnavailable)
			return
		}

		id := r.PathValue("id")
		if !client.TransactionID(id).WellFormed() {
			writeError(w, "invalid transaction id", http.StatusBadRequest)
			return
		}

		tx, err := ledger.Transaction(r.Context(), id)
		if err != nil {
			if errors.Is(err, client.ErrNotFound) {
				writeError(w, "transaction not found", http.StatusNotFound)
				return
			}
			logger.Warn("failed to read ledger transaction", "id", id, "error", err)
			writeError(w, "failed to read ledger transaction", http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(tx.Raw)
	})
}

// parseHistoryQuery reads the history filters from the query string.
func parseHistoryQuery(r *http.Request) (client.HistoryQuery, error) {
	values := r.URL.Query()
	q := client.HistoryQuery{Kind: client.OperationKind(values.Get("kind"))}

	var err error
	if q.StartTime, err = parseInt64Param(values.Get("start"), "start"); err != nil {
		return q, err
	}
	if q.EndTime, err = parseInt64Param(values.Get("end"), "end"); err != nil {
		return q, err
	}

	if limitStr := values.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return q, errorf("invalid limit: must be a positive integer")
		}
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}
		q.Limit = limit
	}
	return q, nil
}

func parseInt64Param(value, name string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n < 0 {
		return 0, errorf("invalid %s: must be epoch milliseconds", name)
	}
	return n, nil
}

// statusForKind maps an error kind to the HTTP status reported for it.
func statusForKind(kind client.ErrorKind) int {
	switch kind {
	case client.KindValidation:
		return http.StatusBadRequest
	case client.KindWalletNotConnected:
		return http.StatusServiceUnavailable
	case client.KindUserRejected:
		return http.StatusConflict
	case client.KindInsufficientBalance:
		return http.StatusPaymentRequired
	case client.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// writeAPIError writes a classified pipeline error. outcome may be nil.
func writeAPIError(w http.ResponseWriter, err error, outcome *client.Outcome) {
	kind := client.Classify(err)
	writeJSON(w, client.APIError{
		Error:           err.Error(),
		ErrorKind:       kind,
		UserMessage:     kind.UserMessage(),
		SuggestedAction: kind.SuggestedAction(),
		Outcome:         outcome,
	}, statusForKind(kind))
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, map[string]string{
		"error": message,
	}, statusCode)
}

// errorf creates a validation error.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
