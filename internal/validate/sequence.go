package validate

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"auditline/internal/domain"
	"auditline/internal/rules"
)

// validateSequence applies the lifecycle checks to one instruction group:
// start/end status presence, timestamp ordering, status regression, and the
// per-entry content checks.
func validateSequence(acc *accumulator, groupEntries []domain.LogEntry, rule rules.CategoryRule) {
	if len(groupEntries) == 0 {
		return
	}

	sorted := append([]domain.LogEntry(nil), groupEntries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return timestampOf(sorted[i]) < timestampOf(sorted[j])
	})

	first := sorted[0]
	last := sorted[len(sorted)-1]

	checkBoundaries(acc, sorted, first, last, rule.Sequence)
	checkTimestamps(acc, sorted)
	checkRegression(acc, sorted, rule.Sequence.StatusOrder)

	for _, entry := range sorted {
		checkContent(acc, entry, rule)
	}
}

func checkBoundaries(acc *accumulator, sorted []domain.LogEntry, first, last domain.LogEntry, seq rules.Sequence) {
	hasStart := false
	hasEnd := false
	for _, entry := range sorted {
		if containsStatus(seq.StartStatuses, entry.Status) {
			hasStart = true
		}
		if containsStatus(seq.EndStatuses, entry.Status) {
			hasEnd = true
		}
	}

	if !hasStart {
		acc.push(first, domain.SeverityError, domain.IssueMissingSequenceStart,
			fmt.Sprintf("Sequence is missing a recognised start status (%s).", domain.FormatStatusList(seq.StartStatuses)))
	} else if !containsStatus(seq.StartStatuses, first.Status) {
		acc.push(first, domain.SeverityWarning, domain.IssueMissingSequenceStart,
			fmt.Sprintf("Sequence begins with %s, expected %s.", domain.TitleCaseStatus(first.Status), domain.FormatStatusList(seq.StartStatuses)))
	}

	// The end check never escalates to error.
	if !hasEnd {
		acc.push(last, domain.SeverityWarning, domain.IssueMissingSequenceEnd,
			fmt.Sprintf("Sequence does not include an end status (%s).", domain.FormatStatusList(seq.EndStatuses)))
	} else if !containsStatus(seq.EndStatuses, last.Status) {
		acc.push(last, domain.SeverityWarning, domain.IssueMissingSequenceEnd,
			fmt.Sprintf("Sequence ends with %s, expected %s.", domain.TitleCaseStatus(last.Status), domain.FormatStatusList(seq.EndStatuses)))
	}
}

func checkTimestamps(acc *accumulator, sorted []domain.LogEntry) {
	for i := 1; i < len(sorted); i++ {
		previous := sorted[i-1]
		current := sorted[i]
		prevTS := timestampOf(previous)
		currTS := timestampOf(current)

		if currTS < prevTS {
			acc.push(current, domain.SeverityError, domain.IssueTimeOrderViolation,
				fmt.Sprintf("Entry timestamp %s occurs before the previous event (%s).", current.CreatedAt, previous.CreatedAt))
		} else if currTS == prevTS {
			acc.push(current, domain.SeverityWarning, domain.IssueTimeOrderViolation,
				fmt.Sprintf("Entry timestamp %s matches a previous event and may be out of order.", current.CreatedAt))
		}
	}
}

// checkRegression tracks the highest status-order index seen so far. A
// rejected entry pins the tracked maximum, so any ordered status recorded
// after a rejection is flagged as regressing. Statuses outside the order
// list are skipped.
func checkRegression(acc *accumulator, sorted []domain.LogEntry, statusOrder []domain.Status) {
	orderIndex := make(map[domain.Status]int, len(statusOrder))
	for i, s := range statusOrder {
		orderIndex[s] = i
	}

	highest := -1
	for i, entry := range sorted {
		if entry.Status == domain.StatusRejected {
			highest = math.MaxInt
			continue
		}
		idx, ok := orderIndex[entry.Status]
		if !ok {
			continue
		}
		if idx < highest {
			previousStatus := entry.Status
			if i > 0 {
				previousStatus = sorted[i-1].Status
			}
			acc.push(entry, domain.SeverityWarning, domain.IssueStatusRegression,
				fmt.Sprintf("Status regressed from %s to %s.", domain.TitleCaseStatus(previousStatus), domain.TitleCaseStatus(entry.Status)))
			continue
		}
		highest = idx
	}
}

func checkContent(acc *accumulator, entry domain.LogEntry, rule rules.CategoryRule) {
	stepCount := 0
	for _, step := range entry.Payload.Steps {
		if strings.TrimSpace(step) != "" {
			stepCount++
		}
	}
	if stepCount < rule.MinSteps {
		acc.push(entry, domain.SeverityWarning, domain.IssueInsufficientSteps,
			fmt.Sprintf("Instruction payload includes %d step%s but %d %s recommended for %s instructions.",
				stepCount, plural(stepCount), rule.MinSteps, stepPhrase(rule.MinSteps), entry.Category))
	}

	ownerNotes := strings.TrimSpace(entry.Payload.OwnerNotes)

	if rule.RequireOwnerNotes && ownerNotes == "" {
		acc.push(entry, domain.SeverityError, domain.IssueMissingRequiredField,
			"Owner notes are required for this instruction category.")
	}

	if ownerNotes == "" && containsStatus(rule.RequireOwnerNotesFor, entry.Status) {
		acc.push(entry, domain.SeverityWarning, domain.IssueMissingRequiredField,
			fmt.Sprintf("Owner notes should be provided when an instruction is %s.", domain.TitleCaseStatus(entry.Status)))
	}
}

func containsStatus(list []domain.Status, s domain.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func stepPhrase(n int) string {
	if n == 1 {
		return "step is"
	}
	return "steps are"
}
