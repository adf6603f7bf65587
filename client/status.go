package client

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the canonical ledger status of a provisional request.
type Status string

const (
	StatusFinalized Status = "Finalized"
	StatusFailed    Status = "Failed"
	StatusRejected  Status = "Rejected"
	StatusPending   Status = "Pending"
)

// IsFailure reports whether s is Failed or Rejected.
func (s Status) IsFailure() bool {
	return s == StatusFailed || s == StatusRejected
}

// StatusReport is what a status source returns: either a bare status string
// (StringStatus) or a status object (StructuredStatus).
type StatusReport interface {
	// Status normalizes the report. Unknown values are Pending.
	Status() Status
	// Raw is the status text exactly as reported.
	Raw() string
}

// StringStatus is a status reported as a bare string.
type StringStatus string

func (s StringStatus) Status() Status { return normalizeStatus(string(s)) }
func (s StringStatus) Raw() string { return string(s) }

// StructuredStatus is a status reported as an object.
type StructuredStatus struct {
	State         string `json:"status"`
	TransactionID string `json:"transactionId,omitempty"`
	Error         string `json:"error,omitempty"`
	Message       string `json:"message,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

func (s StructuredStatus) Status() Status { return normalizeStatus(s.State) }
func (s StructuredStatus) Raw() string { return s.State }

func normalizeStatus(raw string) Status {
	switch {
	case strings.EqualFold(raw, string(StatusFinalized)):
		return StatusFinalized
	case strings.EqualFold(raw, string(StatusFailed)):
		return StatusFailed
	case strings.EqualFold(raw, string(StatusRejected)):
		return StatusRejected
	default:
		return StatusPending
	}
}

// finalIDOf returns the transaction id carried by a report, if any.
func finalIDOf(r StatusReport) TransactionID {
	if s, ok := r.(StructuredStatus); ok {
		return TransactionID(s.TransactionID)
	}
	if s, ok := r.(*StructuredStatus); ok && s != nil {
		return TransactionID(s.TransactionID)
	}
	return ""
}

// failureDetail prefers an explicit error, message or reason over the status text.
func failureDetail(r StatusReport) string {
	var s *StructuredStatus
	switch v := r.(type) {
	case StructuredStatus:
		s = &v
	case *StructuredStatus:
		s = v
	}
	if s != nil {
		for _, detail := range []string{s.Error, s.Message, s.Reason} {
			if detail != "" {
				return detail
			}
		}
	}
	return r.Raw()
}

// DecodeStatusReport decodes a JSON status that is either a string or an object.
func DecodeStatusReport(data []byte) (StatusReport, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "\"") {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to decode status string: %w", err)
		}
		return StringStatus(s), nil
	}

	var st StructuredStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to decode status object: %w", err)
	}
	return st, nil
}
