package audit

import (
	"time"
)

// Action is the kind of run being recorded.
type Action string

const (
	ActionEvaluate Action = "evaluate"
	ActionGates    Action = "gates"
)

// Result is the outcome of the run.
type Result string

const (
	ResultSuccess     Result = "success"
	ResultGatesFailed Result = "gates_failed"
	ResultError       Result = "error"
)

// Event is one entry of the evaluation ledger.
type Event struct {
	ID           string            `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	Action       Action            `json:"action"`
	Result       Result            `json:"result"`
	RunID        string            `json:"run_id,omitempty"`
	Source       string            `json:"source,omitempty"` // files, store, redis, postgres, api
	Dataset      string            `json:"dataset,omitempty"`
	Samples      int               `json:"samples"`
	Failures     int               `json:"failures"`
	RequestID    string            `json:"request_id,omitempty"`
	Latency      time.Duration     `json:"latency,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	ReportDigest string            `json:"report_digest,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`

	// PreviousHash is the hash of the previous event in the chain.
	PreviousHash string `json:"previous_hash,omitempty"`
	// Hash covers every other field, PreviousHash included.
	Hash string `json:"hash,omitempty"`
}
