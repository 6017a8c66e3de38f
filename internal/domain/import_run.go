package domain

import (
	"time"

	"github.com/google/uuid"
)

// ImportType selects the write semantics of a run.
type ImportType string

const (
	ImportTypeInsert ImportType = "insert"
	ImportTypeUpdate ImportType = "update"
)

// RunStatus represents the lifecycle state of an import run.
type RunStatus string

const (
	RunStatusPending         RunStatus = "pending"
	RunStatusPartialSuccess  RunStatus = "partial_success"
	RunStatusSuccess         RunStatus = "success"
	RunStatusError           RunStatus = "error"
	RunStatusSplitInProgress RunStatus = "split_in_progress"
)

// IsTerminal reports whether a run in this status must not be re-entered.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSuccess || s == RunStatusError
}

// ImportRun is the durable metadata of one import: target, mode, status
// and chunked-progress counters. Status transitions are computed by the
// run driver, never hand-set by callers.
type ImportRun struct {
	ID                uuid.UUID  `json:"id"`
	EntityType        string     `json:"entity_type"`
	ImportType        ImportType `json:"import_type"`
	FileName          string     `json:"file_name"`
	Status            RunStatus  `json:"status"`
	SubmitAfterImport bool       `json:"submit_after_import"`
	// PayloadCount is the number of payloads expected for the current
	// slice; used together with the log length to decide resume pruning.
	PayloadCount int `json:"payload_count"`
	// LastProcessedLine is the last source line consumed by a chunked
	// run, nil when the run is not chunked or has not started.
	LastProcessedLine *int `json:"last_processed_line,omitempty"`
	// TotalSourceLines is the data row count of the whole source file.
	TotalSourceLines int `json:"total_source_lines"`
	// TemplateWarnings holds the mapping warnings that gated the last
	// attempt, empty once resolved.
	TemplateWarnings []Warning `json:"template_warnings,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewImportRun creates a pending run for a target entity type.
func NewImportRun(entityType string, importType ImportType, fileName string) ImportRun {
	now := time.Now()
	return ImportRun{
		ID:         uuid.New(),
		EntityType: entityType,
		ImportType: importType,
		FileName:   fileName,
		Status:     RunStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// ChunkFinished reports whether a chunked run has consumed the whole
// source. Non-chunked runs always report true.
func (r ImportRun) ChunkFinished() bool {
	if r.LastProcessedLine == nil {
		return true
	}
	return *r.LastProcessedLine >= r.TotalSourceLines-1
}
