package importer

import (
	"sync"
)

// Action is the tri-state outcome of preprocessing one raw data row.
type Action int

const (
	// ActionInclude keeps the row, possibly rewritten.
	ActionInclude Action = iota
	// ActionExclude drops the row entirely.
	ActionExclude
	// ActionExpand keeps the row and inserts extra rows directly after it.
	ActionExpand
)

// Decision carries the action plus the rewritten row and any inserted
// rows. Row is ignored for ActionExclude; Extra is read only for
// ActionExpand.
type Decision struct {
	Action Action
	Row    []string
	Extra  [][]string
}

// Include keeps the row as-is.
func Include(row []string) Decision {
	return Decision{Action: ActionInclude, Row: row}
}

// Exclude drops the row.
func Exclude() Decision {
	return Decision{Action: ActionExclude}
}

// Expand keeps the row and inserts extra rows after it.
func Expand(row []string, extra [][]string) Decision {
	return Decision{Action: ActionExpand, Row: row, Extra: extra}
}

// RowPreprocessor rewrites source-system-specific raw rows into the
// generic shape the engine understands. Implementations live with the
// source-system integration; the engine only dispatches.
type RowPreprocessor interface {
	Process(headerRow []string, row []string) (Decision, error)
}

// PreprocessorRegistry dispatches preprocessors by (source system, entity
// type). An unregistered pair means rows pass through untouched.
type PreprocessorRegistry struct {
	mu    sync.RWMutex
	byKey map[string]RowPreprocessor
}

// NewPreprocessorRegistry creates an empty registry.
func NewPreprocessorRegistry() *PreprocessorRegistry {
	return &PreprocessorRegistry{byKey: make(map[string]RowPreprocessor)}
}

// Register binds a preprocessor to a (source system, entity type) pair,
// replacing any previous binding.
func (r *PreprocessorRegistry) Register(sourceSystem, entityType string, p RowPreprocessor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[registryKey(sourceSystem, entityType)] = p
}

// Lookup returns the preprocessor for a (source system, entity type)
// pair.
func (r *PreprocessorRegistry) Lookup(sourceSystem, entityType string) (RowPreprocessor, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byKey[registryKey(sourceSystem, entityType)]
	return p, ok
}

func registryKey(sourceSystem, entityType string) string {
	return sourceSystem + "::" + entityType
}
