package domain

import (
	"time"

	"github.com/google/uuid"
)

// ImportLogEntry records the outcome of one payload. Entries are append
// only and the full ordered set for a run is the resumability ledger.
type ImportLogEntry struct {
	ID    uuid.UUID `json:"id"`
	RunID uuid.UUID `json:"run_id"`
	// LogIndex is monotonic within a run.
	LogIndex int  `json:"log_index"`
	Success  bool `json:"success"`
	// RowNumbers are the 1-based source rows the payload was built from.
	RowNumbers []int `json:"row_numbers"`
	// EntityKey is the persisted identity on success.
	EntityKey string `json:"entity_key,omitempty"`
	// ErrorDetail carries the failure cause on failure.
	ErrorDetail string `json:"error_detail,omitempty"`
	// Messages are user-facing notices collected while processing the
	// failed payload.
	Messages  []string  `json:"messages,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewSuccessLogEntry builds a success entry for a payload.
func NewSuccessLogEntry(runID uuid.UUID, logIndex int, entityKey string, rowNumbers []int) ImportLogEntry {
	return ImportLogEntry{
		ID:         uuid.New(),
		RunID:      runID,
		LogIndex:   logIndex,
		Success:    true,
		RowNumbers: append([]int{}, rowNumbers...),
		EntityKey:  entityKey,
		CreatedAt:  time.Now(),
	}
}

// NewFailureLogEntry builds a failure entry for a payload.
func NewFailureLogEntry(runID uuid.UUID, logIndex int, rowNumbers []int, errorDetail string, messages []string) ImportLogEntry {
	return ImportLogEntry{
		ID:          uuid.New(),
		RunID:       runID,
		LogIndex:    logIndex,
		Success:     false,
		RowNumbers:  append([]int{}, rowNumbers...),
		ErrorDetail: errorDetail,
		Messages:    append([]string{}, messages...),
		CreatedAt:   time.Now(),
	}
}
