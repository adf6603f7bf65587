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
	"strings"
	"time"
)

// WalletBridge is a Signer and StatusSource backed by a wallet bridge
// process that holds the user's keys and exposes them over HTTP.
type WalletBridge struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWalletBridge creates a bridge client for baseURL.
func NewWalletBridge(baseURL string, httpClient *http.Client, logger *slog.Logger) *WalletBridge {
	if httpClient == nil {
		// Signing waits for the user to approve in the wallet.
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &WalletBridge{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// RequestTransaction asks the wallet to sign and broadcast payload and
// returns the wallet's request id.
func (w *WalletBridge) RequestTransaction(ctx context.Context, payload TransactionPayload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/request-transaction", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", parseErrorResponse(resp)
	}

	var out struct {
		RequestID string `json:"request_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	w.logger.Debug("wallet accepted transaction", "request_id", out.RequestID, "function", payload.Function)
	return out.RequestID, nil
}

// TransactionStatus returns the wallet's view of a request. The bridge may
// answer with either a bare status string or a status object.
func (w *WalletBridge) TransactionStatus(ctx context.Context, provisionalID string) (StatusReport, error) {
	u := fmt.Sprintf("%s/transaction-status/%s", w.baseURL, url.PathEscape(provisionalID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '"' {
		return DecodeStatusReport(body)
	}

	var envelope struct {
		Status json.RawMessage `json:"status"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	// Some bridges nest the status object under "status".
	if len(envelope.Status) > 0 && envelope.Status[0] == '{' {
		return DecodeStatusReport(envelope.Status)
	}
	return DecodeStatusReport(body)
}
