package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// OperationSubmission is the body of POST /api/v1/operations. Async runs
// the operation as a durable workflow and returns at once.
type OperationSubmission struct {
	BuildParams
	Kind                OperationKind `json:"kind"`
	WaitForConfirmation bool          `json:"wait_for_confirmation,omitempty"`
	Async               bool          `json:"async,omitempty"`
}

// Operation status values reported by the service.
const (
	OperationRunning   = "running"
	OperationCompleted = "completed"
	OperationFailed    = "failed"
)

// OperationStatus is the service's view of one operation.
type OperationStatus struct {
	WorkflowID string    `json:"workflow_id,omitempty"`
	Status     string    `json:"status"`
	Outcome    *Outcome  `json:"outcome,omitempty"`
	Error      string    `json:"error,omitempty"`
	ErrorKind  ErrorKind `json:"error_kind,omitempty"`
}

// APIError is the error body returned by the service.
type APIError struct {
	Error           string    `json:"error"`
	ErrorKind       ErrorKind `json:"error_kind,omitempty"`
	UserMessage     string    `json:"user_message,omitempty"`
	SuggestedAction string    `json:"suggested_action,omitempty"`
	Outcome         *Outcome  `json:"outcome,omitempty"`
}

// Client is the HTTP client for the aleotx service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		// Synchronous submissions wait for confirmation.
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Submit sends an operation to the service. Synchronous submissions return
// the completed status; async ones return the workflow id to poll with
// Operation.
func (c *Client) Submit(ctx context.Context, sub OperationSubmission) (*OperationStatus, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/operations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var status OperationStatus
	if err := c.do(req, &status, http.StatusOK, http.StatusAccepted); err != nil {
		return nil, err
	}

	c.logger.Debug("operation submitted", "kind", sub.Kind, "status", status.Status, "workflow_id", status.WorkflowID)
	return &status, nil
}

// Operation returns the status of an async operation.
func (c *Client) Operation(ctx context.Context, workflowID string) (*OperationStatus, error) {
	u := fmt.Sprintf("%s/api/v1/operations/%s", c.baseURL, url.PathEscape(workflowID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var status OperationStatus
	if err := c.do(req, &status, http.StatusOK); err != nil {
		return nil, err
	}
	return &status, nil
}

// History lists recorded operations matching q.
func (c *Client) History(ctx context.Context, q HistoryQuery) ([]HistoryEntry, error) {
	params := url.Values{}
	if q.Kind != "" {
		params.Set("kind", string(q.Kind))
	}
	if q.StartTime != 0 {
		params.Set("start", strconv.FormatInt(q.StartTime, 10))
	}
	if q.EndTime != 0 {
		params.Set("end", strconv.FormatInt(q.EndTime, 10))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	u := c.baseURL + "/api/v1/history"
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var response struct {
		Entries []HistoryEntry `json:"entries"`
	}
	if err := c.do(req, &response, http.StatusOK); err != nil {
		return nil, err
	}
	return response.Entries, nil
}

// ClearHistory deletes every recorded operation.
func (c *Client) ClearHistory(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/v1/history", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, nil, http.StatusNoContent)
}

// LedgerHeight returns the chain height as seen by the service.
func (c *Client) LedgerHeight(ctx context.Context) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/ledger/height", nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	var response struct {
		Height uint64 `json:"height"`
	}
	if err := c.do(req, &response, http.StatusOK); err != nil {
		return 0, err
	}
	return response.Height, nil
}

func (c *Client) do(req *http.Request, out any, okStatus ...int) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	ok := false
	for _, s := range okStatus {
		if resp.StatusCode == s {
			ok = true
			break
		}
	}
	if !ok {
		return parseAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseAPIError rebuilds a classified error from a service error body.
func parseAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if apiErr.ErrorKind != "" {
		return NewError(apiErr.ErrorKind, apiErr.Error, nil)
	}
	return fmt.Errorf("request failed: %s", apiErr.Error)
}
