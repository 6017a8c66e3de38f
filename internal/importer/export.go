package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rfenton/docimport/internal/domain"

	"github.com/google/uuid"
)

// PreviewInput carries everything needed to parse a file without a
// stored run.
type PreviewInput struct {
	EntityType      string
	ImportType      domain.ImportType
	FileName        string
	Content         []byte
	ColumnOverrides map[int]string
	SourceSystem    string
	// RunID attaches the run's recent log entries to the preview when
	// set; previews without a stored run leave it zero.
	RunID uuid.UUID
}

// Preview parses the file and returns the client-facing sample without
// writing anything.
func (r *Runner) Preview(ctx context.Context, input PreviewInput) (Preview, error) {
	fieldIndex, err := r.resolver.FieldIndexFor(ctx, input.EntityType)
	if err != nil {
		return Preview{}, err
	}

	file, err := NewImportFile(ctx, input.FileName, input.Content, fieldIndex, r.store, NewLinkMemo(), FileOptions{
		ImportType:      input.ImportType,
		ColumnOverrides: input.ColumnOverrides,
		SourceSystem:    input.SourceSystem,
		Preprocessors:   r.preprocessors,
	})
	if err != nil {
		return Preview{}, err
	}
	// Grouping runs row validation, so the preview surfaces cell warnings
	// too, not only column ones.
	if _, err := file.Payloads(ctx); err != nil {
		return Preview{}, err
	}

	preview := file.Preview(r.maxPreviewRows)
	if input.RunID != uuid.Nil {
		entries, err := r.logs.ListOrdered(ctx, input.RunID)
		if err != nil {
			return Preview{}, fmt.Errorf("failed to load import log: %w", err)
		}
		if len(entries) > r.maxPreviewRows {
			entries = entries[len(entries)-r.maxPreviewRows:]
		}
		preview.RecentLogEntries = entries
	}
	return preview, nil
}

// ExportFailedRows re-exports only the source rows recorded as failed in
// the run's log, using the original header titles, so the operator can
// fix and re-upload just those rows.
func (r *Runner) ExportFailedRows(ctx context.Context, runID uuid.UUID, content []byte) ([]byte, error) {
	run, err := r.runs.Get(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load import run: %w", err)
	}

	fieldIndex, err := r.resolver.FieldIndexFor(ctx, run.EntityType)
	if err != nil {
		return nil, err
	}
	file, err := NewImportFile(ctx, run.FileName, content, fieldIndex, r.store, NewLinkMemo(), FileOptions{
		ImportType: run.ImportType,
	})
	if err != nil {
		return nil, err
	}

	entries, err := r.logs.ListOrdered(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load import log: %w", err)
	}

	failed := make(map[int]bool)
	for _, entry := range entries {
		if entry.Success {
			continue
		}
		for _, rowNumber := range entry.RowNumbers {
			failed[rowNumber] = true
		}
	}

	numbers := make([]int, 0, len(failed))
	for n := range failed {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	byNumber := make(map[int]*Row, len(file.Rows))
	for _, row := range file.Rows {
		byNumber[row.RowNumber] = row
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(file.HeaderTitles()); err != nil {
		return nil, fmt.Errorf("failed to write export header: %w", err)
	}
	width := len(file.Header.Columns)
	for _, n := range numbers {
		row, ok := byNumber[n]
		if !ok {
			continue
		}
		cells := make([]string, width)
		for i := range cells {
			cells[i] = cellAt(row.Data, i)
		}
		if err := w.Write(cells); err != nil {
			return nil, fmt.Errorf("failed to write export row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush export: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportAuditLog renders the run's full log as a CSV audit trail with
// the columns Row Numbers, Status, Message and Exception.
func (r *Runner) ExportAuditLog(ctx context.Context, runID uuid.UUID) ([]byte, error) {
	entries, err := r.logs.ListOrdered(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load import log: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"Row Numbers", "Status", "Message", "Exception"}); err != nil {
		return nil, fmt.Errorf("failed to write export header: %w", err)
	}

	for _, entry := range entries {
		status := "Failure"
		message := strings.Join(entry.Messages, "; ")
		if entry.Success {
			status = "Success"
			message = fmt.Sprintf("Imported %s", entry.EntityKey)
		}
		record := []string{
			joinRowNumbers(entry.RowNumbers),
			status,
			message,
			entry.ErrorDetail,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write export row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush export: %w", err)
	}
	return buf.Bytes(), nil
}

func joinRowNumbers(numbers []int) string {
	parts := make([]string, len(numbers))
	for i, n := range numbers {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}
