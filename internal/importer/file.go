package importer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rfenton/docimport/internal/domain"
	"github.com/rfenton/docimport/internal/repository"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptyFile is returned when the uploaded content holds no rows.
	ErrEmptyFile = errors.New("import file is empty")
	// ErrNoDataRows is returned when the file has a header but nothing to
	// import beneath it.
	ErrNoDataRows = errors.New("import file has a header row but no data rows")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// FileOptions tunes how an import file is parsed.
type FileOptions struct {
	ImportType domain.ImportType
	// ColumnOverrides maps column index to an explicit fieldname, or to
	// SkipField to drop the column.
	ColumnOverrides map[int]string
	// StartLine is the 0-based data row to begin this slice at.
	StartLine int
	// SplitRowsAt bounds the data rows consumed per invocation; zero or
	// negative disables chunking.
	SplitRowsAt int
	// SourceSystem selects a registered preprocessor together with the
	// target entity type. Empty means no preprocessing.
	SourceSystem  string
	Preprocessors *PreprocessorRegistry
}

// Payload is one logical unit of import: a parsed root record with its
// nested child lists, plus the contiguous source rows it came from.
type Payload struct {
	Record domain.Record
	Rows   []*Row
}

// RowNumbers lists the 1-based source row numbers of the payload.
func (p Payload) RowNumbers() []int {
	numbers := make([]int, len(p.Rows))
	for i, row := range p.Rows {
		numbers[i] = row.RowNumber
	}
	return numbers
}

// Preview is the client-facing sample of a parsed file.
type Preview struct {
	// Columns starts with the synthetic "Sr. No" column followed by the
	// raw header titles.
	Columns   []string         `json:"columns"`
	Rows      [][]string       `json:"rows"`
	TotalRows int              `json:"totalRows"`
	Truncated bool             `json:"truncated"`
	Warnings  []domain.Warning `json:"warnings,omitempty"`
	// RecentLogEntries holds the tail of the run's log when the preview
	// was requested for an existing run.
	RecentLogEntries []domain.ImportLogEntry `json:"recentLogEntries,omitempty"`
}

// ImportFile parses raw bytes into a header plus data rows and groups
// consecutive rows into one-entity-plus-children payloads. A chunked
// file exposes only the current slice as Rows; TotalDataRows and
// LastLine describe progress through the whole source.
type ImportFile struct {
	FileName string
	Header   *Header
	Rows     []*Row

	// TotalDataRows counts the data rows of the whole source after blank
	// rows are dropped and preprocessing ran.
	TotalDataRows int
	// StartLine and LastLine are 0-based data row indexes bounding the
	// current slice, inclusive.
	StartLine int
	LastLine  int
	Chunked   bool

	importType domain.ImportType
	store      repository.Store
	memo       *LinkMemo
	warnings   []domain.Warning
}

// NewImportFile decodes the content, resolves the header against the
// field index and prepares the row slice for this invocation. Template
// errors (unsupported format, empty content, no data rows) abort here,
// before anything is written.
func NewImportFile(ctx context.Context, fileName string, content []byte, fieldIndex FieldIndex, store repository.Store, memo *LinkMemo, opts FileOptions) (*ImportFile, error) {
	if len(content) == 0 {
		return nil, ErrEmptyFile
	}

	raw, err := decodeRows(fileName, content)
	if err != nil {
		return nil, err
	}
	raw = dropBlankRows(raw)
	if len(raw) == 0 {
		return nil, ErrEmptyFile
	}
	if len(raw) == 1 {
		return nil, ErrNoDataRows
	}

	headerRow := raw[0]
	dataRows := raw[1:]

	entityType := fieldIndex.Schema().Name
	if preprocessor, ok := opts.Preprocessors.Lookup(opts.SourceSystem, entityType); ok {
		dataRows, err = applyPreprocessor(preprocessor, headerRow, dataRows)
		if err != nil {
			return nil, fmt.Errorf("failed to preprocess rows: %w", err)
		}
		dataRows = dropBlankRows(dataRows)
		if len(dataRows) == 0 {
			return nil, ErrNoDataRows
		}
	}

	start, end, chunked := sliceBounds(len(dataRows), opts.StartLine, opts.SplitRowsAt)
	slice := dataRows[start:end]

	header, err := newHeader(ctx, 0, headerRow, slice, opts.ColumnOverrides, fieldIndex, store)
	if err != nil {
		return nil, err
	}

	if memo == nil {
		memo = NewLinkMemo()
	}

	f := &ImportFile{
		FileName:      fileName,
		Header:        header,
		TotalDataRows: len(dataRows),
		StartLine:     start,
		LastLine:      end - 1,
		Chunked:       chunked,
		importType:    opts.ImportType,
		store:         store,
		memo:          memo,
	}

	for i, data := range slice {
		// Source line index: the header occupies line 0, data rows follow.
		f.Rows = append(f.Rows, newRow(start+i+1, data, header, opts.ImportType, store, memo))
	}

	return f, nil
}

// Payloads groups the slice's rows into payloads. With a single target
// group every row stands alone; otherwise a row whose root-entity
// columns are all blank continues the payload opened by the nearest
// preceding row with root values, contributing child rows only.
func (f *ImportFile) Payloads(ctx context.Context) ([]Payload, error) {
	entityType := f.Header.entityType
	rootIndexes := f.Header.ColumnIndexes(entityType, "")

	if len(f.Header.TargetGroups) <= 1 {
		var payloads []Payload
		for _, row := range f.Rows {
			rec, err := row.ExtractEntity(ctx, entityType, "")
			if err != nil {
				return nil, err
			}
			if rec == nil {
				continue
			}
			payloads = append(payloads, Payload{Record: *rec, Rows: []*Row{row}})
		}
		return payloads, nil
	}

	var payloads []Payload
	var open *Payload
	for _, row := range f.Rows {
		if !row.Blank(rootIndexes) {
			rec, err := row.ExtractEntity(ctx, entityType, "")
			if err != nil {
				return nil, err
			}
			if rec == nil {
				// Root cells held only dropped values; the row cannot
				// anchor a payload.
				open = nil
				continue
			}
			payloads = append(payloads, Payload{Record: *rec, Rows: []*Row{row}})
			open = &payloads[len(payloads)-1]
			if err := f.appendChildren(ctx, open, row); err != nil {
				return nil, err
			}
			continue
		}

		if open == nil {
			// Continuation row with no open payload; nothing owns it.
			f.warnings = append(f.warnings, domain.Infof("Skipping row %d: no parent row to attach to", row.RowNumber))
			continue
		}
		open.Rows = append(open.Rows, row)
		if err := f.appendChildren(ctx, open, row); err != nil {
			return nil, err
		}
	}
	return payloads, nil
}

func (f *ImportFile) appendChildren(ctx context.Context, payload *Payload, row *Row) error {
	for _, group := range f.Header.TargetGroups {
		if group.ChildCollectionField == "" {
			continue
		}
		child, err := row.ExtractEntity(ctx, group.Entity, group.ChildCollectionField)
		if err != nil {
			return err
		}
		if child == nil {
			continue
		}
		payload.Record.AppendChild(group.ChildCollectionField, *child)
	}
	return nil
}

// Warnings collects file, column and row warnings in that order.
func (f *ImportFile) Warnings() []domain.Warning {
	var warnings []domain.Warning
	warnings = append(warnings, f.warnings...)
	warnings = append(warnings, f.Header.Warnings()...)
	for _, row := range f.Rows {
		warnings = append(warnings, row.Warnings...)
	}
	return warnings
}

// Preview samples up to maxRows data rows for client display.
func (f *ImportFile) Preview(maxRows int) Preview {
	if maxRows <= 0 {
		maxRows = 10
	}

	preview := Preview{
		Columns:   append([]string{"Sr. No"}, f.Header.HeaderTitles()...),
		TotalRows: f.TotalDataRows,
		Warnings:  f.Warnings(),
	}

	for _, row := range f.Rows {
		if len(preview.Rows) >= maxRows {
			preview.Truncated = true
			break
		}
		cells := make([]string, 0, len(f.Header.Columns)+1)
		cells = append(cells, strconv.Itoa(row.RowNumber))
		for idx := range f.Header.Columns {
			cells = append(cells, cellAt(row.Data, idx))
		}
		preview.Rows = append(preview.Rows, cells)
	}
	if !preview.Truncated && f.TotalDataRows > len(f.Rows) {
		preview.Truncated = true
	}
	return preview
}

// HeaderTitles returns the raw header strings, for re-exports that must
// preserve the original template shape.
func (f *ImportFile) HeaderTitles() []string {
	return f.Header.HeaderTitles()
}

func decodeRows(fileName string, content []byte) ([][]string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return decodeCSV(content)
	case ".xlsx", ".xls":
		return decodeExcel(content)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func decodeCSV(content []byte) ([][]string, error) {
	reader := bufio.NewReader(bytes.NewReader(content))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return records, nil
}

func decodeExcel(content []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from sheet: %w", err)
	}
	return rows, nil
}

func dropBlankRows(rows [][]string) [][]string {
	var kept [][]string
	for _, row := range rows {
		blank := true
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				blank = false
				break
			}
		}
		if !blank {
			kept = append(kept, row)
		}
	}
	return kept
}

func applyPreprocessor(p RowPreprocessor, headerRow []string, dataRows [][]string) ([][]string, error) {
	out := make([][]string, 0, len(dataRows))
	for _, row := range dataRows {
		decision, err := p.Process(headerRow, row)
		if err != nil {
			return nil, err
		}
		switch decision.Action {
		case ActionExclude:
		case ActionExpand:
			out = append(out, decision.Row)
			out = append(out, decision.Extra...)
		default:
			out = append(out, decision.Row)
		}
	}
	return out, nil
}

// sliceBounds computes the [start, end) data row window of the current
// invocation. A file fitting within splitRowsAt is never chunked.
func sliceBounds(total, startLine, splitRowsAt int) (start, end int, chunked bool) {
	start = startLine
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}

	if splitRowsAt <= 0 || total <= splitRowsAt {
		return start, total, false
	}

	end = start + splitRowsAt
	if end > total {
		end = total
	}
	return start, end, true
}
