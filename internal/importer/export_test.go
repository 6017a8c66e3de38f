package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"testing"

	"github.com/rfenton/docimport/internal/domain"
)

func TestExportFailedRowsReusesOriginalHeaders(t *testing.T) {
	store := newStubStore(taskSchemas()...)
	store.failCreate = func(rec domain.Record) error {
		if rec.GetString("title") == "Two" || rec.GetString("title") == "Four" {
			return fmt.Errorf("simulated failure")
		}
		return nil
	}
	logs := &stubLogRepo{}
	runs := newStubRunRepo()
	runner := NewRunner(store, logs, runs)

	run := mustCreateRun(t, runs, "Task", domain.ImportTypeInsert, "tasks.csv")
	if _, err := runner.Import(context.Background(), ImportInput{RunID: run.ID, Content: []byte(fiveTaskCSV)}); err != nil {
		t.Fatalf("import returned error: %v", err)
	}

	data, err := runner.ExportFailedRows(context.Background(), run.ID, []byte(fiveTaskCSV))
	if err != nil {
		t.Fatalf("export returned error: %v", err)
	}

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse export: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header plus 2 failed rows, got %d records", len(records))
	}
	if records[0][0] != "Title" {
		t.Fatalf("expected original header, got %q", records[0][0])
	}
	if records[1][0] != "Two" || records[2][0] != "Four" {
		t.Fatalf("expected failed rows in source order, got %v", records[1:])
	}
}

func TestExportAuditLogShape(t *testing.T) {
	store := newStubStore(taskSchemas()...)
	store.failCreate = func(rec domain.Record) error {
		if rec.GetString("title") == "Two" {
			return fmt.Errorf("simulated failure")
		}
		return nil
	}
	logs := &stubLogRepo{}
	runs := newStubRunRepo()
	runner := NewRunner(store, logs, runs)

	run := mustCreateRun(t, runs, "Task", domain.ImportTypeInsert, "tasks.csv")
	if _, err := runner.Import(context.Background(), ImportInput{RunID: run.ID, Content: []byte(fiveTaskCSV)}); err != nil {
		t.Fatalf("import returned error: %v", err)
	}

	data, err := runner.ExportAuditLog(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("export returned error: %v", err)
	}

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse export: %v", err)
	}
	wantHeader := []string{"Row Numbers", "Status", "Message", "Exception"}
	for i, col := range wantHeader {
		if records[0][i] != col {
			t.Fatalf("expected header %v, got %v", wantHeader, records[0])
		}
	}
	if len(records) != 6 {
		t.Fatalf("expected 5 log rows, got %d", len(records)-1)
	}

	var failureSeen bool
	for _, record := range records[1:] {
		switch record[1] {
		case "Success":
			if !strings.HasPrefix(record[2], "Imported ") {
				t.Fatalf("expected success message, got %q", record[2])
			}
		case "Failure":
			failureSeen = true
			if !strings.Contains(record[3], "simulated failure") {
				t.Fatalf("expected exception detail, got %q", record[3])
			}
		default:
			t.Fatalf("unexpected status %q", record[1])
		}
	}
	if !failureSeen {
		t.Fatalf("expected a failure row in the audit export")
	}
}

func TestRunnerPreviewSurfacesWarnings(t *testing.T) {
	store := newStubStore(taskSchemas()...)
	logs := &stubLogRepo{}
	runs := newStubRunRepo()
	runner := NewRunner(store, logs, runs, WithMaxPreviewRows(2))

	preview, err := runner.Preview(context.Background(), PreviewInput{
		EntityType: "Task",
		ImportType: domain.ImportTypeInsert,
		FileName:   "tasks.csv",
		Content:    []byte("Title,Priority\nOne,Purple\nTwo,Low\nThree,High\n"),
	})
	if err != nil {
		t.Fatalf("preview returned error: %v", err)
	}

	if len(preview.Rows) != 2 || !preview.Truncated {
		t.Fatalf("expected truncated 2-row preview, got %d rows truncated=%v", len(preview.Rows), preview.Truncated)
	}
	if len(domain.NonInfo(preview.Warnings)) == 0 {
		t.Fatalf("expected the invalid select value to surface as a warning")
	}
}

func TestRunnerPreviewAttachesRecentLogEntries(t *testing.T) {
	store := newStubStore(taskSchemas()...)
	logs := &stubLogRepo{}
	runs := newStubRunRepo()
	runner := NewRunner(store, logs, runs, WithMaxPreviewRows(3))

	run := mustCreateRun(t, runs, "Task", domain.ImportTypeInsert, "tasks.csv")
	if _, err := runner.Import(context.Background(), ImportInput{RunID: run.ID, Content: []byte(fiveTaskCSV)}); err != nil {
		t.Fatalf("import returned error: %v", err)
	}

	preview, err := runner.Preview(context.Background(), PreviewInput{
		EntityType: "Task",
		ImportType: domain.ImportTypeInsert,
		FileName:   "tasks.csv",
		Content:    []byte(fiveTaskCSV),
		RunID:      run.ID,
	})
	if err != nil {
		t.Fatalf("preview returned error: %v", err)
	}

	// Capped to the preview row budget, keeping the most recent entries.
	if len(preview.RecentLogEntries) != 3 {
		t.Fatalf("expected 3 recent log entries, got %d", len(preview.RecentLogEntries))
	}
	if preview.RecentLogEntries[2].LogIndex != 4 {
		t.Fatalf("expected the latest entry last, got log index %d", preview.RecentLogEntries[2].LogIndex)
	}

	bare, err := runner.Preview(context.Background(), PreviewInput{
		EntityType: "Task",
		ImportType: domain.ImportTypeInsert,
		FileName:   "tasks.csv",
		Content:    []byte(fiveTaskCSV),
	})
	if err != nil {
		t.Fatalf("preview returned error: %v", err)
	}
	if len(bare.RecentLogEntries) != 0 {
		t.Fatalf("expected no log entries without a run id, got %d", len(bare.RecentLogEntries))
	}
}
