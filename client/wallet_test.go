package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletBridge_RequestTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/request-transaction", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload TransactionPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "credits", payload.Program)
		assert.Equal(t, "transfer_public", payload.Function)
		assert.Len(t, payload.Inputs, 2)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"request_id": "req-42"})
	}))
	defer server.Close()

	bridge := NewWalletBridge(server.URL, nil, nil)
	req := transferRequest(t)

	id, err := bridge.RequestTransaction(context.Background(), PayloadFor(req))
	require.NoError(t, err)
	assert.Equal(t, "req-42", id)
}

func TestWalletBridge_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"error": "User rejected transaction"})
	}))
	defer server.Close()

	s := NewSubmitter(NewWalletBridge(server.URL, nil, nil), nil)
	_, err := s.Submit(context.Background(), transferRequest(t))
	require.Error(t, err)
	assert.Equal(t, KindUserRejected, Classify(err))
}

func TestWalletBridge_TransactionStatus(t *testing.T) {
	finalID := "at1" + strings.Repeat("a", 59)
	tests := []struct {
		name       string
		body       string
		wantStatus Status
		wantFinal  TransactionID
	}{
		{"bare string", `"Finalized"`, StatusFinalized, ""},
		{"object", `{"status":"Finalized","transactionId":"` + finalID + `"}`, StatusFinalized, TransactionID(finalID)},
		{"nested object", `{"status":{"status":"Failed","error":"bad input"}}`, StatusFailed, ""},
		{"pending", `{"status":"Generating"}`, StatusPending, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "GET", r.Method)
				assert.Equal(t, "/transaction-status/req-1", r.URL.Path)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			report, err := NewWalletBridge(server.URL, nil, nil).TransactionStatus(context.Background(), "req-1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, report.Status())
			assert.Equal(t, tt.wantFinal, finalIDOf(report))
		})
	}
}

func TestWalletBridge_NestedFailureDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":{"status":"Failed","error":"bad input"}}`))
	}))
	defer server.Close()

	report, err := NewWalletBridge(server.URL, nil, nil).TransactionStatus(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, "bad input", failureDetail(report))
}

func TestWalletBridge_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("wallet locked"))
	}))
	defer server.Close()

	_, err := NewWalletBridge(server.URL, nil, nil).TransactionStatus(context.Background(), "req-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestDecodeStatusReport(t *testing.T) {
	r, err := DecodeStatusReport([]byte(` "Rejected" `))
	require.NoError(t, err)
	assert.Equal(t, StringStatus("Rejected"), r)

	r, err = DecodeStatusReport([]byte(`{"status":"finalized","message":"ok"}`))
	require.NoError(t, err)
	assert.Equal(t, StructuredStatus{State: "finalized", Message: "ok"}, r)
	assert.Equal(t, StatusFinalized, r.Status())

	_, err = DecodeStatusReport([]byte(`[1,2]`))
	assert.Error(t, err)
}
