package validate

import (
	"fmt"

	"auditline/internal/domain"
	"auditline/internal/rules"
)

// validatePairings checks every pairing rule across one category's entries.
// Starts are matched greedily against the pool of ends; the reverse check on
// ends is deliberately independent of that bookkeeping, so one missing link
// can be reported from both sides.
func validatePairings(acc *accumulator, categoryEntries []domain.LogEntry, rule rules.CategoryRule) {
	if len(categoryEntries) == 0 {
		return
	}

	for _, pairing := range rule.Pairings {
		var starts, ends []domain.LogEntry
		for _, entry := range categoryEntries {
			if containsCode(pairing.StartActions, entry.Action.Code) {
				starts = append(starts, entry)
			}
			if containsCode(pairing.EndActions, entry.Action.Code) {
				ends = append(ends, entry)
			}
		}

		remaining := append([]domain.LogEntry(nil), ends...)
		for _, start := range starts {
			matched := -1
			for i, end := range remaining {
				if end.Owner == start.Owner && timestampOf(end) >= timestampOf(start) {
					matched = i
					break
				}
			}
			if matched == -1 {
				acc.push(start, domain.SeverityError, domain.IssueMissingPairEnd,
					fmt.Sprintf("%s A follow-up entry was not found for %s.", pairing.Description, start.Action.Code))
				continue
			}
			remaining = append(remaining[:matched], remaining[matched+1:]...)
		}

		for _, end := range ends {
			found := false
			for _, start := range starts {
				if start.Owner == end.Owner && timestampOf(start) <= timestampOf(end) {
					found = true
					break
				}
			}
			if !found {
				acc.push(end, domain.SeverityWarning, domain.IssueMissingPairStart,
					fmt.Sprintf("%s A preceding start entry was not found for %s.", pairing.Description, end.Action.Code))
			}
		}
	}
}

func containsCode(list []string, code string) bool {
	for _, v := range list {
		if v == code {
			return true
		}
	}
	return false
}
