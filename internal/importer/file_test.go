package importer

import (
	"context"
	"errors"
	"testing"

	"github.com/rfenton/docimport/internal/domain"
)

func parseFile(t *testing.T, store *stubStore, data string, opts FileOptions) *ImportFile {
	t.Helper()
	resolver := NewColumnResolver(store)
	fieldIndex, err := resolver.FieldIndexFor(context.Background(), "Task")
	if err != nil {
		t.Fatalf("failed to build field index: %v", err)
	}
	file, err := NewImportFile(context.Background(), "tasks.csv", []byte(data), fieldIndex, store, NewLinkMemo(), opts)
	if err != nil {
		t.Fatalf("failed to parse file: %v", err)
	}
	return file
}

func TestGroupingBlankRootRowsContinuePayload(t *testing.T) {
	store := newStubStore(taskSchemas()...)
	data := `Title,Description (Items)
A,a-one
,a-two
,a-three
B,b-one
,b-two
C,
`
	file := parseFile(t, store, data, FileOptions{ImportType: domain.ImportTypeInsert})
	payloads, err := file.Payloads(context.Background())
	if err != nil {
		t.Fatalf("payloads returned error: %v", err)
	}

	if len(payloads) != 3 {
		t.Fatalf("expected 3 payloads, got %d", len(payloads))
	}

	wantRows := [][]int{{2, 3, 4}, {5, 6}, {7}}
	wantChildren := []int{3, 2, 0}
	for i, payload := range payloads {
		numbers := payload.RowNumbers()
		if len(numbers) != len(wantRows[i]) {
			t.Fatalf("payload %d: expected rows %v, got %v", i, wantRows[i], numbers)
		}
		for j := range numbers {
			if numbers[j] != wantRows[i][j] {
				t.Fatalf("payload %d: expected rows %v, got %v", i, wantRows[i], numbers)
			}
		}
		if got := len(payload.Record.Children["items"]); got != wantChildren[i] {
			t.Fatalf("payload %d: expected %d children, got %d", i, wantChildren[i], got)
		}
	}

	// A collection never appended to stays absent rather than empty.
	if payloads[2].Record.HasChildren("items") {
		t.Fatalf("expected payload C to have no items collection at all")
	}
}

func TestGroupingSingleTargetGroupOnePayloadPerRow(t *testing.T) {
	store := newStubStore(taskSchemas()...)
	data := `Title
One
Two
Three
`
	file := parseFile(t, store, data, FileOptions{ImportType: domain.ImportTypeInsert})
	payloads, err := file.Payloads(context.Background())
	if err != nil {
		t.Fatalf("payloads returned error: %v", err)
	}
	if len(payloads) != 3 {
		t.Fatalf("expected 3 payloads, got %d", len(payloads))
	}
	for i, payload := range payloads {
		if len(payload.Rows) != 1 {
			t.Fatalf("payload %d: expected a single row, got %d", i, len(payload.Rows))
		}
	}
}

func TestBlankRowsDroppedBeforeGrouping(t *testing.T) {
	store := newStubStore(taskSchemas()...)
	data := `Title,Description (Items)
A,one

B,two
`
	file := parseFile(t, store, data, FileOptions{ImportType: domain.ImportTypeInsert})
	if len(file.Rows) != 2 {
		t.Fatalf("expected blank row dropped, got %d rows", len(file.Rows))
	}
	payloads, err := file.Payloads(context.Background())
	if err != nil {
		t.Fatalf("payloads returned error: %v", err)
	}
	if len(payloads) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(payloads))
	}
}

func TestTemplateErrors(t *testing.T) {
	store := newStubStore(taskSchemas()...)
	resolver := NewColumnResolver(store)
	fieldIndex, err := resolver.FieldIndexFor(context.Background(), "Task")
	if err != nil {
		t.Fatalf("failed to build field index: %v", err)
	}

	cases := []struct {
		name     string
		fileName string
		content  string
		want     error
	}{
		{"empty content", "tasks.csv", "", ErrEmptyFile},
		{"header only", "tasks.csv", "Title\n", ErrNoDataRows},
		{"unsupported extension", "tasks.pdf", "Title\nOne\n", ErrUnsupportedFormat},
		{"xls content is not a workbook", "tasks.xls", "Title\nOne\n", ErrUnsupportedFormat},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewImportFile(context.Background(), tc.fileName, []byte(tc.content), fieldIndex, store, NewLinkMemo(), FileOptions{})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestPreviewAddsSerialColumnAndTruncates(t *testing.T) {
	store := newStubStore(taskSchemas()...)
	file := parseFile(t, store, fiveTaskCSV, FileOptions{ImportType: domain.ImportTypeInsert})

	preview := file.Preview(3)
	if preview.Columns[0] != "Sr. No" {
		t.Fatalf("expected serial column first, got %q", preview.Columns[0])
	}
	if len(preview.Rows) != 3 {
		t.Fatalf("expected 3 preview rows, got %d", len(preview.Rows))
	}
	if !preview.Truncated {
		t.Fatalf("expected preview to be truncated")
	}
	if preview.TotalRows != 5 {
		t.Fatalf("expected total of 5 rows, got %d", preview.TotalRows)
	}
	if preview.Rows[0][0] != "2" {
		t.Fatalf("expected first data row numbered 2, got %q", preview.Rows[0][0])
	}
}

func TestChunkingBounds(t *testing.T) {
	store := newStubStore(taskSchemas()...)

	file := parseFile(t, store, fiveTaskCSV, FileOptions{ImportType: domain.ImportTypeInsert, SplitRowsAt: 2})
	if !file.Chunked || file.StartLine != 0 || file.LastLine != 1 {
		t.Fatalf("unexpected first slice: chunked=%v start=%d last=%d", file.Chunked, file.StartLine, file.LastLine)
	}
	if len(file.Rows) != 2 || file.TotalDataRows != 5 {
		t.Fatalf("unexpected slice size: rows=%d total=%d", len(file.Rows), file.TotalDataRows)
	}

	last := parseFile(t, store, fiveTaskCSV, FileOptions{ImportType: domain.ImportTypeInsert, SplitRowsAt: 2, StartLine: 4})
	if last.LastLine != 4 || len(last.Rows) != 1 {
		t.Fatalf("unexpected final slice: last=%d rows=%d", last.LastLine, len(last.Rows))
	}

	whole := parseFile(t, store, fiveTaskCSV, FileOptions{ImportType: domain.ImportTypeInsert, SplitRowsAt: 10})
	if whole.Chunked {
		t.Fatalf("file smaller than the split threshold must not chunk")
	}
}

type rowDoubler struct{}

func (rowDoubler) Process(headerRow, row []string) (Decision, error) {
	extra := make([]string, len(row))
	copy(extra, row)
	if len(extra) > 0 {
		extra[0] = extra[0] + " Copy"
	}
	return Expand(row, [][]string{extra}), nil
}

func TestPreprocessorExpandsRows(t *testing.T) {
	store := newStubStore(taskSchemas()...)
	registry := NewPreprocessorRegistry()
	registry.Register("legacy", "Task", rowDoubler{})

	data := `Title
One
`
	file := parseFile(t, store, data, FileOptions{
		ImportType:    domain.ImportTypeInsert,
		SourceSystem:  "legacy",
		Preprocessors: registry,
	})
	if file.TotalDataRows != 2 {
		t.Fatalf("expected expanded row count 2, got %d", file.TotalDataRows)
	}

	payloads, err := file.Payloads(context.Background())
	if err != nil {
		t.Fatalf("payloads returned error: %v", err)
	}
	if len(payloads) != 2 {
		t.Fatalf("expected 2 payloads after expansion, got %d", len(payloads))
	}
	if payloads[1].Record.GetString("title") != "One Copy" {
		t.Fatalf("expected expanded row title, got %q", payloads[1].Record.GetString("title"))
	}
}

func TestBOMStrippedFromCSV(t *testing.T) {
	store := newStubStore(taskSchemas()...)
	data := "\xEF\xBB\xBFTitle\nOne\n"
	file := parseFile(t, store, data, FileOptions{ImportType: domain.ImportTypeInsert})
	if file.Header.Columns[0].HeaderTitle != "Title" {
		t.Fatalf("expected BOM stripped, got header %q", file.Header.Columns[0].HeaderTitle)
	}
	if file.Header.Columns[0].SkipImport {
		t.Fatalf("expected Title column resolved")
	}
}
