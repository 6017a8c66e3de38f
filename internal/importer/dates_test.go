package importer

import "testing"

func TestInferColumnDateLayoutDominant(t *testing.T) {
	layout, distinct := inferColumnDateLayout([]string{
		"2023-01-15", "2023-02-20", "2023-03-25", "15/04/2023",
	})
	if layout != "2006-01-02" {
		t.Fatalf("expected dominant layout 2006-01-02, got %q", layout)
	}
	if distinct != 2 {
		t.Fatalf("expected 2 distinct layouts, got %d", distinct)
	}
}

func TestInferColumnDateLayoutTieBreaksFirstSeen(t *testing.T) {
	layout, distinct := inferColumnDateLayout([]string{"15/04/2023", "2023-01-15"})
	if distinct != 2 {
		t.Fatalf("expected 2 distinct layouts, got %d", distinct)
	}
	if layout != "02/01/2006" {
		t.Fatalf("expected first-seen layout to win the tie, got %q", layout)
	}
}

func TestInferColumnDateLayoutNothingParses(t *testing.T) {
	layout, distinct := inferColumnDateLayout([]string{"soon", "", "later"})
	if layout != "" || distinct != 0 {
		t.Fatalf("expected no detection, got %q/%d", layout, distinct)
	}
}
