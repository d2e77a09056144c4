package validate

import (
	"sort"
	"strings"
	"time"

	"auditline/internal/domain"
)

// accumulator collects issues into per-instruction results, created lazily
// on first issue and kept in first-issue order until the final sort.
type accumulator struct {
	order   []string
	results map[string]*domain.ValidationResult
}

func newAccumulator() *accumulator {
	return &accumulator{results: make(map[string]*domain.ValidationResult)}
}

func (a *accumulator) push(entry domain.LogEntry, severity domain.Severity, code domain.IssueCode, message string) {
	result, ok := a.results[entry.ID]
	if !ok {
		result = &domain.ValidationResult{
			InstructionID: entry.ID,
			ActionCode:    entry.Action.Code,
			Title:         entry.Title,
			Category:      entry.Category,
		}
		a.results[entry.ID] = result
		a.order = append(a.order, entry.ID)
	}

	result.Issues = append(result.Issues, domain.ValidationIssue{
		InstructionID: result.InstructionID,
		ActionCode:    result.ActionCode,
		Category:      result.Category,
		Severity:      severity,
		Code:          code,
		Message:       message,
	})
	if severity == domain.SeverityError {
		result.ErrorCount++
	} else {
		result.WarningCount++
	}
}

// summarySet tracks one summary per category actually touched.
type summarySet struct {
	byCategory map[domain.Category]*domain.CategorySummary
}

func newSummarySet() *summarySet {
	return &summarySet{byCategory: make(map[domain.Category]*domain.CategorySummary)}
}

func (s *summarySet) ensure(category domain.Category) *domain.CategorySummary {
	if existing, ok := s.byCategory[category]; ok {
		return existing
	}
	summary := &domain.CategorySummary{Category: category}
	s.byCategory[category] = summary
	return summary
}

// buildReport merges accumulated issues with summaries and totals into the
// final sorted report.
func buildReport(acc *accumulator, summaries *summarySet, groupCount int, now time.Time) domain.ValidationReport {
	results := make([]domain.ValidationResult, 0, len(acc.order))
	for _, id := range acc.order {
		results = append(results, *acc.results[id])
	}
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.ErrorCount != b.ErrorCount {
			return a.ErrorCount > b.ErrorCount
		}
		if a.WarningCount != b.WarningCount {
			return a.WarningCount > b.WarningCount
		}
		return strings.Compare(a.Title, b.Title) < 0
	})

	totals := domain.ValidationTotals{InstructionCount: groupCount}
	for _, result := range results {
		totals.ErrorCount += result.ErrorCount
		totals.WarningCount += result.WarningCount
		if result.ErrorCount > 0 || result.WarningCount > 0 {
			totals.AffectedCount++
		}
	}

	for _, result := range results {
		if result.ErrorCount == 0 && result.WarningCount == 0 {
			continue
		}
		summary := summaries.ensure(result.Category)
		summary.AffectedCount++
		summary.ErrorCount += result.ErrorCount
		summary.WarningCount += result.WarningCount
	}

	categorySummaries := make([]domain.CategorySummary, 0, len(summaries.byCategory))
	for _, category := range domain.Categories {
		if summary, ok := summaries.byCategory[category]; ok {
			categorySummaries = append(categorySummaries, *summary)
		}
	}
	sort.SliceStable(categorySummaries, func(i, j int) bool {
		a, b := categorySummaries[i], categorySummaries[j]
		if a.ErrorCount != b.ErrorCount {
			return a.ErrorCount > b.ErrorCount
		}
		if a.WarningCount != b.WarningCount {
			return a.WarningCount > b.WarningCount
		}
		return strings.Compare(string(a.Category), string(b.Category)) < 0
	})

	return domain.ValidationReport{
		Results:           results,
		Totals:            totals,
		CategorySummaries: categorySummaries,
		GeneratedAt:       now.UTC().Format(time.RFC3339),
	}
}
