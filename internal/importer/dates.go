package importer

import (
	"time"

	"github.com/rfenton/docimport/internal/domain"
)

const (
	defaultDateLayout     = "2006-01-02"
	defaultDateTimeLayout = "2006-01-02 15:04:05"
	defaultTimeLayout     = "15:04:05"
)

// Layouts tried when guessing the format of a date column, most common
// first. Order matters: the first matching layout wins for a value.
var candidateDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
	"2006/01/02",
	"02-01-2006",
	"01/02/2006",
	"02/01/2006",
	"02.01.2006",
	"January 2, 2006",
	"2 January 2006",
	"15:04:05",
	"15:04",
}

// guessDateLayout returns the first candidate layout that parses the
// value completely.
func guessDateLayout(value string) (string, bool) {
	for _, layout := range candidateDateLayouts {
		if _, err := time.Parse(layout, value); err == nil {
			return layout, true
		}
	}
	return "", false
}

// defaultLayoutFor returns the fallback layout when no format could be
// detected from a column's values.
func defaultLayoutFor(fieldType domain.FieldType) string {
	switch fieldType {
	case domain.FieldTypeTime:
		return defaultTimeLayout
	case domain.FieldTypeDateTime:
		return defaultDateTimeLayout
	default:
		return defaultDateLayout
	}
}

// inferColumnDateLayout detects the dominant layout among the non-empty
// values of a column. Ties break towards the layout that reached the
// maximum count first. The second return is the number of distinct
// layouts detected; zero means nothing parsed.
func inferColumnDateLayout(values []string) (string, int) {
	counts := make(map[string]int)
	var order []string
	for _, value := range values {
		if value == "" {
			continue
		}
		layout, ok := guessDateLayout(value)
		if !ok {
			continue
		}
		if _, seen := counts[layout]; !seen {
			order = append(order, layout)
		}
		counts[layout]++
	}
	if len(counts) == 0 {
		return "", 0
	}

	best := ""
	bestCount := 0
	for _, layout := range order {
		if counts[layout] > bestCount {
			best = layout
			bestCount = counts[layout]
		}
	}
	return best, len(counts)
}
