package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultLedgerRPCURL is the public ledger read API.
const DefaultLedgerRPCURL = "https://api.explorer.provable.com/v1/testnet"

// ErrNotFound is returned when the ledger has no record of a transaction.
var ErrNotFound = errors.New("not found")

// LedgerTransaction is a transaction as reported by the ledger read API.
// Only the fields the pipeline uses are decoded; Raw keeps the full body.
type LedgerTransaction struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// LedgerRecorder observes ledger API calls.
type LedgerRecorder interface {
	RecordLedgerCall(endpoint string, duration time.Duration, err error)
}

// LedgerClient reads transactions and chain height from the ledger RPC.
// Requests are rate limited client-side.
type LedgerClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	recorder   LedgerRecorder
	logger     *slog.Logger
}

// NewLedgerClient creates a ledger client allowing rps requests per second.
// rps <= 0 disables rate limiting.
func NewLedgerClient(baseURL string, rps float64, httpClient *http.Client, logger *slog.Logger) *LedgerClient {
	if baseURL == "" {
		baseURL = DefaultLedgerRPCURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = max(1, int(rps))
	}
	return &LedgerClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
	}
}

// WithRecorder attaches a call recorder and returns c.
func (c *LedgerClient) WithRecorder(r LedgerRecorder) *LedgerClient {
	c.recorder = r
	return c
}

// Transaction fetches a transaction by id. It returns ErrNotFound when the
// ledger does not know the id.
func (c *LedgerClient) Transaction(ctx context.Context, id string) (*LedgerTransaction, error) {
	body, err := c.get(ctx, "transaction", "/transaction/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}

	var tx LedgerTransaction
	if err := json.Unmarshal(body, &tx); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	tx.Raw = body
	if tx.ID == "" {
		tx.ID = id
	}
	return &tx, nil
}

// LatestHeight returns the current chain height.
func (c *LedgerClient) LatestHeight(ctx context.Context) (uint64, error) {
	body, err := c.get(ctx, "latest_height", "/latest/height")
	if err != nil {
		return 0, err
	}

	var height uint64
	if err := json.Unmarshal(body, &height); err != nil {
		return 0, fmt.Errorf("failed to decode height %q: %w", strings.TrimSpace(string(body)), err)
	}
	return height, nil
}

func (c *LedgerClient) get(ctx context.Context, endpoint, path string) (body []byte, err error) {
	start := time.Now()
	defer func() {
		if c.recorder != nil {
			c.recorder.RecordLedgerCall(endpoint, time.Since(start), err)
		}
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	c.logger.Debug("ledger request", "endpoint", endpoint, "duration", time.Since(start))
	return body, nil
}

// LedgerStatusSource reports status from the ledger read API. A transaction
// the ledger knows is Finalized; an unknown one is Pending.
type LedgerStatusSource struct {
	ledger *LedgerClient
}

// NewLedgerStatusSource adapts ledger to StatusSource.
func NewLedgerStatusSource(ledger *LedgerClient) *LedgerStatusSource {
	return &LedgerStatusSource{ledger: ledger}
}

func (s *LedgerStatusSource) TransactionStatus(ctx context.Context, provisionalID string) (StatusReport, error) {
	tx, err := s.ledger.Transaction(ctx, provisionalID)
	if errors.Is(err, ErrNotFound) {
		return StringStatus(StatusPending), nil
	}
	if err != nil {
		return nil, err
	}
	return StructuredStatus{State: string(StatusFinalized), TransactionID: tx.ID}, nil
}
