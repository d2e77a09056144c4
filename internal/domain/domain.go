package domain

import (
	"fmt"
	"strings"
	"time"
)

// Category classifies an instruction by operational area.
type Category string

const (
	CategoryQuality    Category = "quality"
	CategoryCompliance Category = "compliance"
	CategorySafety     Category = "safety"
	CategoryEfficiency Category = "efficiency"
)

// Categories lists all categories in their canonical order. Category
// summaries and pairing validation iterate in this order.
var Categories = []Category{CategoryQuality, CategoryCompliance, CategorySafety, CategoryEfficiency}

// Status is an instruction lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusInReview Status = "in_review"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

var Statuses = []Status{StatusPending, StatusInReview, StatusApproved, StatusRejected}

// Severity ranks a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// IssueCode identifies the kind of validation finding.
type IssueCode string

const (
	IssueMissingSequenceStart IssueCode = "missing_sequence_start"
	IssueMissingSequenceEnd   IssueCode = "missing_sequence_end"
	IssueTimeOrderViolation   IssueCode = "time_order_violation"
	IssueStatusRegression     IssueCode = "status_regression"
	IssueInsufficientSteps    IssueCode = "insufficient_steps"
	IssueMissingRequiredField IssueCode = "missing_required_field"
	IssueMissingPairEnd       IssueCode = "missing_pair_end"
	IssueMissingPairStart     IssueCode = "missing_pair_start"
)

// ValidCategory reports whether s is one of the four category literals.
func ValidCategory(s string) bool {
	switch Category(s) {
	case CategoryQuality, CategoryCompliance, CategorySafety, CategoryEfficiency:
		return true
	}
	return false
}

// ValidStatus reports whether s is one of the four status literals.
func ValidStatus(s string) bool {
	switch Status(s) {
	case StatusPending, StatusInReview, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Payload is the free-form body of an instruction record.
type Payload struct {
	Revision   int      `json:"revision"`
	Summary    string   `json:"summary"`
	Steps      []string `json:"steps"`
	OwnerNotes string   `json:"ownerNotes,omitempty"`
}

// ActionMetadata is derived from a raw action code; it is never supplied
// directly by a log line.
type ActionMetadata struct {
	Code     string   `json:"code"`
	Name     string   `json:"name"`
	Category Category `json:"category" enum:"quality,compliance,safety,efficiency"`
	Color    string   `json:"color"`
}

// LogEntry is one parsed instruction log line. Multiple entries may share an
// ID; together they form that instruction's lifecycle group.
type LogEntry struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Category  Category       `json:"category" enum:"quality,compliance,safety,efficiency"`
	Status    Status         `json:"status" enum:"pending,in_review,approved,rejected"`
	CreatedAt string         `json:"createdAt" format:"date-time"`
	Owner     string         `json:"owner"`
	Payload   Payload        `json:"payload"`
	Action    ActionMetadata `json:"action"`
}

// ParseError reports one malformed log line. Line numbers are 1-based.
type ParseError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
	Raw     string `json:"raw,omitempty"`
}

// ValidationIssue is one finding. Issues are immutable once created and are
// never retracted.
type ValidationIssue struct {
	InstructionID         string    `json:"instructionId"`
	ActionCode            string    `json:"actionCode"`
	Category              Category  `json:"category" enum:"quality,compliance,safety,efficiency"`
	Severity              Severity  `json:"severity" enum:"error,warning"`
	Code                  IssueCode `json:"code"`
	Message               string    `json:"message"`
	Detail                string    `json:"detail,omitempty"`
	RelatedInstructionIDs []string  `json:"relatedInstructionIds,omitempty"`
}

// ValidationResult accumulates the issues for one instruction id.
type ValidationResult struct {
	InstructionID string            `json:"instructionId"`
	ActionCode    string            `json:"actionCode"`
	Title         string            `json:"title"`
	Category      Category          `json:"category" enum:"quality,compliance,safety,efficiency"`
	Issues        []ValidationIssue `json:"issues"`
	ErrorCount    int               `json:"errorCount"`
	WarningCount  int               `json:"warningCount"`
}

// ValidationTotals is the global rollup across all results.
type ValidationTotals struct {
	InstructionCount int `json:"instructionCount"`
	AffectedCount    int `json:"affectedCount"`
	ErrorCount       int `json:"errorCount"`
	WarningCount     int `json:"warningCount"`
}

// CategorySummary aggregates one category's findings. One summary exists per
// category with at least one grouped instruction.
type CategorySummary struct {
	Category         Category `json:"category" enum:"quality,compliance,safety,efficiency"`
	InstructionCount int      `json:"instructionCount"`
	AffectedCount    int      `json:"affectedCount"`
	ErrorCount       int      `json:"errorCount"`
	WarningCount     int      `json:"warningCount"`
}

// ValidationReport is the terminal artifact of one validation run. It is
// created fresh per run and never mutated afterwards.
type ValidationReport struct {
	Results           []ValidationResult `json:"results"`
	Totals            ValidationTotals   `json:"totals"`
	CategorySummaries []CategorySummary  `json:"categorySummaries"`
	GeneratedAt       string             `json:"generatedAt" format:"date-time"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime parses an ISO-8601 timestamp as accepted on instruction records.
func ParseTime(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", value)
}

// TitleCaseStatus renders a status for humans: in_review -> In Review.
func TitleCaseStatus(s Status) string {
	parts := strings.FieldsFunc(string(s), func(r rune) bool { return r == '_' || r == ' ' })
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// FormatStatusList joins statuses for diagnostics: "Pending or In Review".
func FormatStatusList(statuses []Status) string {
	labels := make([]string, len(statuses))
	for i, s := range statuses {
		labels[i] = TitleCaseStatus(s)
	}
	return strings.Join(labels, " or ")
}
