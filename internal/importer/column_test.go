package importer

import (
	"strings"
	"testing"

	"github.com/rfenton/docimport/internal/domain"
)

func TestSelectColumnWarnsOnceListingInvalidValues(t *testing.T) {
	store := newStubStore(taskSchemas()...)
	data := `Title,Priority
One,Red
Two,Purple
Three,Low
`
	file := parseFile(t, store, data, FileOptions{ImportType: domain.ImportTypeInsert})

	var selectWarnings []domain.Warning
	for _, w := range file.Header.Warnings() {
		if w.Severity == domain.SeverityWarning {
			selectWarnings = append(selectWarnings, w)
		}
	}
	if len(selectWarnings) != 1 {
		t.Fatalf("expected exactly one select warning, got %d", len(selectWarnings))
	}
	message := selectWarnings[0].Message
	if !strings.Contains(message, "Red") || !strings.Contains(message, "Purple") {
		t.Fatalf("expected warning to name invalid values, got %q", message)
	}
	if !strings.Contains(message, "Low, Medium, High") {
		t.Fatalf("expected warning to list valid options, got %q", message)
	}
}

func TestLinkColumnWarnsOnMissingValues(t *testing.T) {
	store := newStubStore(taskSchemas()...)
	store.seed("Project", "Apollo", map[string]any{"title": "Apollo"})
	data := `Title,Project
One,Apollo
Two,Gemini
Three,Gemini
`
	file := parseFile(t, store, data, FileOptions{ImportType: domain.ImportTypeInsert})

	var linkWarnings []domain.Warning
	for _, w := range file.Header.Warnings() {
		if w.Severity == domain.SeverityWarning {
			linkWarnings = append(linkWarnings, w)
		}
	}
	if len(linkWarnings) != 1 {
		t.Fatalf("expected one combined link warning, got %d", len(linkWarnings))
	}
	message := linkWarnings[0].Message
	if !strings.Contains(message, "Gemini") || strings.Contains(message, "Apollo") {
		t.Fatalf("expected only missing values listed, got %q", message)
	}
}

func TestDuplicateHeaderSkipsLaterColumn(t *testing.T) {
	store := newStubStore(taskSchemas()...)
	data := `Title,Title
One,Other
`
	file := parseFile(t, store, data, FileOptions{ImportType: domain.ImportTypeInsert})

	first := file.Header.Columns[0]
	second := file.Header.Columns[1]
	if first.SkipImport || first.Descriptor == nil {
		t.Fatalf("expected first Title column to resolve")
	}
	if !second.SkipImport {
		t.Fatalf("expected duplicate Title column skipped")
	}
	// Duplicate headers are an informational skip, never a run blocker.
	if len(domain.NonInfo(second.Warnings)) != 0 {
		t.Fatalf("expected duplicate skip to be informational")
	}
}

func TestUnmatchedAndUntitledColumns(t *testing.T) {
	store := newStubStore(taskSchemas()...)
	data := `Title,Mystery,
One,abc,def
`
	file := parseFile(t, store, data, FileOptions{ImportType: domain.ImportTypeInsert})

	mystery := file.Header.Columns[1]
	if !mystery.SkipImport {
		t.Fatalf("expected unmatched column skipped")
	}
	if !strings.Contains(mystery.Warnings[0].Message, "Cannot match column Mystery") {
		t.Fatalf("unexpected warning: %q", mystery.Warnings[0].Message)
	}

	untitled := file.Header.Columns[2]
	if !untitled.SkipImport {
		t.Fatalf("expected untitled column skipped")
	}
	if !strings.Contains(untitled.Warnings[0].Message, "untitled") {
		t.Fatalf("unexpected warning: %q", untitled.Warnings[0].Message)
	}
}

func TestColumnOverrides(t *testing.T) {
	store := newStubStore(taskSchemas()...)
	data := `Name Of Task,Priority
One,Low
`
	file := parseFile(t, store, data, FileOptions{
		ImportType:      domain.ImportTypeInsert,
		ColumnOverrides: map[int]string{0: "title", 1: SkipField},
	})

	first := file.Header.Columns[0]
	if first.SkipImport || first.Descriptor == nil || first.Descriptor.FieldName != "title" {
		t.Fatalf("expected override to map column to title")
	}
	second := file.Header.Columns[1]
	if !second.SkipImport {
		t.Fatalf("expected explicit skip override honored")
	}
}

func TestDateColumnInfersDominantLayout(t *testing.T) {
	store := newStubStore(taskSchemas()...)
	data := `Title,Due Date
A,2023-01-15
B,2023-02-20
C,2023-03-25
D,15/04/2023
`
	file := parseFile(t, store, data, FileOptions{ImportType: domain.ImportTypeInsert})

	due := file.Header.Columns[1]
	if due.DateLayout != "2006-01-02" {
		t.Fatalf("expected dominant layout 2006-01-02, got %q", due.DateLayout)
	}

	var found bool
	for _, w := range due.Warnings {
		if strings.Contains(w.Message, "2 different date formats") {
			found = true
			if w.Severity != domain.SeverityInfo {
				t.Fatalf("expected mixed-format notice to be informational")
			}
		}
	}
	if !found {
		t.Fatalf("expected a mixed-format notice, warnings: %+v", due.Warnings)
	}
}

func TestDateColumnFallsBackToDefaultLayout(t *testing.T) {
	store := newStubStore(taskSchemas()...)
	data := `Title,Due Date
A,not-a-date
`
	file := parseFile(t, store, data, FileOptions{ImportType: domain.ImportTypeInsert})

	due := file.Header.Columns[1]
	if due.DateLayout != "2006-01-02" {
		t.Fatalf("expected default layout, got %q", due.DateLayout)
	}
	if len(domain.NonInfo(due.Warnings)) != 0 {
		t.Fatalf("expected fallback notice to be informational")
	}
}
