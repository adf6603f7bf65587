package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrRelayerNotConfigured is returned when the relayer reports that
// withdrawals are unavailable.
var ErrRelayerNotConfigured = errors.New("relayer not configured")

// WithdrawRequest asks the relayer to pay out a treasury balance.
type WithdrawRequest struct {
	Username           string  `json:"username"`
	Amount             float64 `json:"amount"`
	DestinationAddress string  `json:"destinationAddress"`
}

// WithdrawResponse carries the relayer's transaction hash.
type WithdrawResponse struct {
	TxHash string `json:"txHash"`
}

// RelayerClient calls the treasury withdrawal relayer.
type RelayerClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewRelayerClient creates a relayer client for baseURL.
func NewRelayerClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *RelayerClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &RelayerClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Withdraw submits a withdrawal. The destination address and amount are
// validated before any request is made.
func (c *RelayerClient) Withdraw(ctx context.Context, w WithdrawRequest) (*WithdrawResponse, error) {
	if w.Username == "" {
		return nil, NewError(KindValidation, "username is required", nil)
	}
	if !IsValidAddress(w.DestinationAddress) {
		return nil, NewError(KindValidation, "invalid destination address", nil)
	}
	if _, err := ToBaseUnits(w.Amount); err != nil {
		return nil, err
	}
	if w.Amount == 0 {
		return nil, NewError(KindValidation, "amount must be positive", nil)
	}

	body, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/withdraw", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotImplemented {
		return nil, ErrRelayerNotConfigured
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	var out WithdrawResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.TxHash == "" {
		return nil, fmt.Errorf("relayer returned no transaction hash")
	}

	c.logger.Info("withdrawal relayed",
		"username", w.Username,
		"destination", FormatAddressForDisplay(w.DestinationAddress, 10, 6),
		"tx_hash", out.TxHash,
	)
	return &out, nil
}

// parseErrorResponse turns a non-success response into an error, using the
// body's "error" field when present.
func parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, errResp.Error)
}
