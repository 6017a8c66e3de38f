package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rfenton/docimport/internal/domain"
	"github.com/rfenton/docimport/internal/repository"

	"github.com/google/uuid"
)

// Handler exposes the import engine over HTTP: run creation, preview,
// import execution and the two CSV exports.
type Handler struct {
	runner *Runner
	runs   repository.ImportRunRepository
}

// NewHTTPHandler wraps the runner with multipart endpoints.
func NewHTTPHandler(runner *Runner, runs repository.ImportRunRepository) *Handler {
	return &Handler{runner: runner, runs: runs}
}

// Register mounts the import endpoints on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/imports", h.handleCreateRun)
	mux.HandleFunc("/api/imports/preview", h.handlePreview)
	mux.HandleFunc("/api/imports/start", h.handleStart)
	mux.HandleFunc("/api/imports/export/failed", h.handleExportFailed)
	mux.HandleFunc("/api/imports/export/log", h.handleExportLog)
}

func (h *Handler) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entityType := strings.TrimSpace(r.FormValue("entityType"))
	if entityType == "" {
		http.Error(w, "entityType is required", http.StatusBadRequest)
		return
	}
	importType, err := parseImportType(r.FormValue("importType"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fileName := strings.TrimSpace(r.FormValue("fileName"))
	if fileName == "" {
		http.Error(w, "fileName is required", http.StatusBadRequest)
		return
	}

	run := domain.NewImportRun(entityType, importType, fileName)
	run.SubmitAfterImport = parseBoolField(r.FormValue("submitAfterImport"))

	created, err := h.runs.Create(r.Context(), run)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to create run: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	content, fileName, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	entityType := strings.TrimSpace(r.FormValue("entityType"))
	if entityType == "" {
		http.Error(w, "entityType is required", http.StatusBadRequest)
		return
	}
	importType, err := parseImportType(r.FormValue("importType"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	overrides, err := parseColumnOverrides(r.FormValue("columnOverrides"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	input := PreviewInput{
		EntityType:      entityType,
		ImportType:      importType,
		FileName:        fileName,
		Content:         content,
		ColumnOverrides: overrides,
		SourceSystem:    strings.TrimSpace(r.FormValue("sourceSystem")),
	}
	if raw := strings.TrimSpace(r.FormValue("runId")); raw != "" {
		runID, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid run id: %v", err), http.StatusBadRequest)
			return
		}
		input.RunID = runID
	}

	preview, err := h.runner.Preview(r.Context(), input)
	if err != nil {
		writeImportError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	content, _, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	runID, err := uuid.Parse(strings.TrimSpace(r.FormValue("runId")))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid run id: %v", err), http.StatusBadRequest)
		return
	}
	overrides, err := parseColumnOverrides(r.FormValue("columnOverrides"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	run, err := h.runner.Import(r.Context(), ImportInput{
		RunID:           runID,
		Content:         content,
		ColumnOverrides: overrides,
		SourceSystem:    strings.TrimSpace(r.FormValue("sourceSystem")),
	})
	if err != nil {
		writeImportError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) handleExportFailed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	content, _, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	runID, err := uuid.Parse(strings.TrimSpace(r.FormValue("runId")))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid run id: %v", err), http.StatusBadRequest)
		return
	}

	data, err := h.runner.ExportFailedRows(r.Context(), runID, content)
	if err != nil {
		writeImportError(w, err)
		return
	}
	writeCSV(w, "failed_rows.csv", data)
}

func (h *Handler) handleExportLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	runID, err := uuid.Parse(strings.TrimSpace(r.URL.Query().Get("runId")))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid run id: %v", err), http.StatusBadRequest)
		return
	}

	data, err := h.runner.ExportAuditLog(r.Context(), runID)
	if err != nil {
		writeImportError(w, err)
		return
	}
	writeCSV(w, "import_log.csv", data)
}

func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, fmt.Sprintf("invalid form data: %v", err), http.StatusBadRequest)
		return nil, "", false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("file required: %v", err), http.StatusBadRequest)
		return nil, "", false
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read file: %v", err), http.StatusBadRequest)
		return nil, "", false
	}
	return content, header.Filename, true
}

func parseImportType(raw string) (domain.ImportType, error) {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "", string(domain.ImportTypeInsert):
		return domain.ImportTypeInsert, nil
	case string(domain.ImportTypeUpdate):
		return domain.ImportTypeUpdate, nil
	default:
		return "", fmt.Errorf("invalid import type: %s", raw)
	}
}

// parseColumnOverrides decodes a JSON object mapping column index to
// fieldname (or the skip marker), e.g. {"0": "name", "3": "Don't Import"}.
func parseColumnOverrides(raw string) (map[int]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var byKey map[string]string
	if err := json.Unmarshal([]byte(raw), &byKey); err != nil {
		return nil, fmt.Errorf("invalid column overrides: %w", err)
	}
	overrides := make(map[int]string, len(byKey))
	for key, value := range byKey {
		idx, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("invalid column override index %q", key)
		}
		overrides[idx] = value
	}
	return overrides, nil
}

func parseBoolField(raw string) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && value
}

func writeImportError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrEmptyFile),
		errors.Is(err, ErrNoDataRows):
		status = http.StatusBadRequest
	case errors.Is(err, ErrRunFinished):
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func writeCSV(w http.ResponseWriter, fileName string, data []byte) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
