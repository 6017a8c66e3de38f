package domain

import "fmt"

// WarningSeverity distinguishes blocking warnings from notices.
type WarningSeverity string

const (
	// SeverityInfo entries never gate a run.
	SeverityInfo WarningSeverity = "info"
	// SeverityWarning entries must be resolved before any write occurs.
	SeverityWarning WarningSeverity = "warning"
)

// Warning is a structured mapping or cell issue found while parsing an
// import file.
type Warning struct {
	Message  string          `json:"message"`
	Severity WarningSeverity `json:"severity"`
	// Row is the 1-based source row the warning refers to, 0 when the
	// warning is column scoped.
	Row int `json:"row,omitempty"`
	// Col is the 1-based column number, 0 when row scoped.
	Col int `json:"col,omitempty"`
	// Field is the target fieldname when the warning is cell scoped.
	Field string `json:"field,omitempty"`
}

// Infof builds an informational warning.
func Infof(format string, args ...any) Warning {
	return Warning{Message: fmt.Sprintf(format, args...), Severity: SeverityInfo}
}

// Warningf builds a blocking warning.
func Warningf(format string, args ...any) Warning {
	return Warning{Message: fmt.Sprintf(format, args...), Severity: SeverityWarning}
}

// NonInfo filters out informational entries; what remains gates the run.
func NonInfo(warnings []Warning) []Warning {
	var out []Warning
	for _, w := range warnings {
		if w.Severity != SeverityInfo {
			out = append(out, w)
		}
	}
	return out
}
