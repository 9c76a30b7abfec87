package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// ChainManager handles the cryptographic chaining of ledger events.
type ChainManager struct {
	secretKey []byte
}

// NewChainManager creates a new ChainManager with the given secret key.
func NewChainManager(secretKey []byte) *ChainManager {
	return &ChainManager{
		secretKey: secretKey,
	}
}

// ComputeHash computes the HMAC-SHA256 of the event. PreviousHash must already be set.
func (c *ChainManager) ComputeHash(event *Event) (string, error) {
	// Struct field order and sorted map keys keep the encoding canonical.
	payload := struct {
		ID           string            `json:"id"`
		Timestamp    string            `json:"timestamp"`
		Action       Action            `json:"action"`
		Result       Result            `json:"result"`
		RunID        string            `json:"run_id,omitempty"`
		Source       string            `json:"source,omitempty"`
		Dataset      string            `json:"dataset,omitempty"`
		Samples      int               `json:"samples"`
		Failures     int               `json:"failures"`
		RequestID    string            `json:"request_id,omitempty"`
		Latency      int64             `json:"latency,omitempty"` // Nanoseconds
		ErrorMessage string            `json:"error_message,omitempty"`
		ReportDigest string            `json:"report_digest,omitempty"`
		Metadata     map[string]string `json:"metadata,omitempty"`
		PreviousHash string            `json:"previous_hash,omitempty"`
	}{
		ID:           event.ID,
		Timestamp:    event.Timestamp.UTC().Format(time.RFC3339Nano),
		Action:       event.Action,
		Result:       event.Result,
		RunID:        event.RunID,
		Source:       event.Source,
		Dataset:      event.Dataset,
		Samples:      event.Samples,
		Failures:     event.Failures,
		RequestID:    event.RequestID,
		Latency:      event.Latency.Nanoseconds(),
		ErrorMessage: event.ErrorMessage,
		ReportDigest: event.ReportDigest,
		Metadata:     event.Metadata,
		PreviousHash: event.PreviousHash,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event for hashing: %w", err)
	}

	h := hmac.New(sha256.New, c.secretKey)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyChain verifies the integrity of a slice of events.
func (c *ChainManager) VerifyChain(events []Event) error {
	for i, event := range events {
		expectedHash, err := c.ComputeHash(&event)
		if err != nil {
			return fmt.Errorf("failed to compute hash for event %s: %w", event.ID, err)
		}
		if !hmac.Equal([]byte(event.Hash), []byte(expectedHash)) {
			return fmt.Errorf("hash mismatch for event %s: expected %s, got %s", event.ID, expectedHash, event.Hash)
		}

		if i > 0 && event.PreviousHash != events[i-1].Hash {
			return fmt.Errorf("chain broken at event %s: previous hash %s does not match hash of event %s (%s)",
				event.ID, event.PreviousHash, events[i-1].ID, events[i-1].Hash)
		}
	}

	return nil
}

// Digest returns the hex SHA-256 of the JSON encoding of v.
func Digest(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal value for digest: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
