package importer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rfenton/docimport/internal/domain"
)

func extractSingle(t *testing.T, store *stubStore, data string, importType domain.ImportType) domain.Record {
	t.Helper()
	file := parseFile(t, store, data, FileOptions{ImportType: importType})
	payloads, err := file.Payloads(context.Background())
	if err != nil {
		t.Fatalf("payloads returned error: %v", err)
	}
	if len(payloads) != 1 {
		t.Fatalf("expected one payload, got %d", len(payloads))
	}
	return payloads[0].Record
}

func TestCoerceCheckboxTokens(t *testing.T) {
	cases := map[string]int64{
		"true": 1, "TRUE": 1, "yes": 1, "y": 1, "t": 1, "1": 1,
		"false": 0, "no": 0, "n": 0, "f": 0, "0": 0,
	}
	store := newStubStore(taskSchemas()...)
	for raw, want := range cases {
		rec := extractSingle(t, store, "Title,Done\nA,"+raw+"\n", domain.ImportTypeInsert)
		value, _ := rec.Get("done")
		if value != want {
			t.Fatalf("checkbox %q: expected %d, got %v", raw, want, value)
		}
	}
}

func TestCoerceNumbersTolerant(t *testing.T) {
	store := newStubStore(taskSchemas()...)
	rec := extractSingle(t, store, "Title,Qty (Items),Description (Items)\nA,3.0,x\n", domain.ImportTypeInsert)
	child := rec.Children["items"][0]
	value, _ := child.Get("qty")
	if value != int64(3) {
		t.Fatalf("expected lossless float to int, got %v", value)
	}

	rec = extractSingle(t, store, "Title,Qty (Items),Description (Items)\nA,junk,x\n", domain.ImportTypeInsert)
	child = rec.Children["items"][0]
	value, _ = child.Get("qty")
	if value != int64(0) {
		t.Fatalf("expected non-numeric to coerce to 0, got %v", value)
	}
}

func TestCoerceDateUsesInferredLayout(t *testing.T) {
	store := newStubStore(taskSchemas()...)
	rec := extractSingle(t, store, "Title,Due Date\nA,15/04/2023\n", domain.ImportTypeInsert)
	value, _ := rec.Get("due")
	parsed, ok := value.(time.Time)
	if !ok {
		t.Fatalf("expected time.Time, got %T", value)
	}
	if parsed.Day() != 15 || parsed.Month() != time.April || parsed.Year() != 2023 {
		t.Fatalf("unexpected parsed date: %v", parsed)
	}
}

func TestCoerceDurationToSeconds(t *testing.T) {
	store := newStubStore(taskSchemas()...)
	rec := extractSingle(t, store, "Title,Effort\nA,1d 2h 3m 4s\n", domain.ImportTypeInsert)
	value, _ := rec.Get("effort")
	if value != int64(1*86400+2*3600+3*60+4) {
		t.Fatalf("expected 93784 seconds, got %v", value)
	}
}

func TestInvalidSelectValueDroppedFromRecord(t *testing.T) {
	store := newStubStore(taskSchemas()...)
	file := parseFile(t, store, "Title,Priority\nA,Purple\n", FileOptions{ImportType: domain.ImportTypeInsert})
	payloads, err := file.Payloads(context.Background())
	if err != nil {
		t.Fatalf("payloads returned error: %v", err)
	}
	if _, ok := payloads[0].Record.Get("priority"); ok {
		t.Fatalf("expected invalid select value omitted from record")
	}

	var found bool
	for _, w := range payloads[0].Rows[0].Warnings {
		if strings.Contains(w.Message, "must be one of") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a cell warning for the dropped value")
	}
}

func TestMissingLinkValueDroppedFromRecord(t *testing.T) {
	store := newStubStore(taskSchemas()...)
	store.seed("Project", "Apollo", map[string]any{"title": "Apollo"})
	file := parseFile(t, store, "Title,Project\nA,Apollo\nB,Gemini\n", FileOptions{ImportType: domain.ImportTypeInsert})
	payloads, err := file.Payloads(context.Background())
	if err != nil {
		t.Fatalf("payloads returned error: %v", err)
	}

	if payloads[0].Record.GetString("project") != "Apollo" {
		t.Fatalf("expected existing link kept")
	}
	if _, ok := payloads[1].Record.Get("project"); ok {
		t.Fatalf("expected missing link dropped from record")
	}
}

func TestExtractEntityNilWhenScopeBlank(t *testing.T) {
	store := newStubStore(taskSchemas()...)
	file := parseFile(t, store, "Title,Description (Items)\nA,\n", FileOptions{ImportType: domain.ImportTypeInsert})
	payloads, err := file.Payloads(context.Background())
	if err != nil {
		t.Fatalf("payloads returned error: %v", err)
	}
	if payloads[0].Record.HasChildren("items") {
		t.Fatalf("expected no items collection for blank child cells")
	}
}

func TestRowCardinalityMismatchIsInformational(t *testing.T) {
	store := newStubStore(taskSchemas()...)
	data := "Title,Priority\nA\n"
	file := parseFile(t, store, data, FileOptions{ImportType: domain.ImportTypeInsert})

	row := file.Rows[0]
	if len(row.Warnings) == 0 {
		t.Fatalf("expected a cardinality warning")
	}
	if row.Warnings[0].Severity != domain.SeverityInfo {
		t.Fatalf("expected cardinality mismatch to be informational")
	}

	// Out of range reads yield absent, never panic.
	payloads, err := file.Payloads(context.Background())
	if err != nil {
		t.Fatalf("payloads returned error: %v", err)
	}
	if payloads[0].Record.GetString("title") != "A" {
		t.Fatalf("expected best-effort extraction of present cells")
	}
}

func TestLinkMemoMarksCreatedKeys(t *testing.T) {
	store := newStubStore(taskSchemas()...)
	memo := NewLinkMemo()

	exists, err := memo.Exists(context.Background(), store, "Project", "Apollo")
	if err != nil {
		t.Fatalf("memo lookup returned error: %v", err)
	}
	if exists {
		t.Fatalf("expected Apollo to be unknown")
	}

	// A stale negative result must not survive past creation.
	memo.MarkCreated("Project", "Apollo")
	exists, err = memo.Exists(context.Background(), store, "Project", "Apollo")
	if err != nil {
		t.Fatalf("memo lookup returned error: %v", err)
	}
	if !exists {
		t.Fatalf("expected memo to reflect the created key")
	}
}
