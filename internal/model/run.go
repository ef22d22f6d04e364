package model

import "time"

// RunStatus represents the current state of a stage run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Stage names a workflow stage.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageExtract Stage = "extract"
	StageSend    Stage = "send"
)

// Run records one execution of a stage for a processing date.
type Run struct {
	ID        string         `json:"id"`
	Date      string         `json:"date"`
	Stage     Stage          `json:"stage"`
	Status    RunStatus      `json:"status"`
	Summary   map[string]any `json:"summary,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// InvoiceRecord is the persisted extraction outcome of one invoice.
type InvoiceRecord struct {
	RunID     string    `json:"run_id"`
	UUID      string    `json:"uuid"`
	Taxpayer  string    `json:"taxpayer"`
	Issuer    string    `json:"issuer"`
	Reference string    `json:"reference"`
	Outcome   string    `json:"outcome"`
	CreatedAt time.Time `json:"created_at"`
}
