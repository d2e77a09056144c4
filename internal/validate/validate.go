// Package validate applies the category rule catalog to parsed instruction
// entries and aggregates the findings into a report. Validation is a pure
// function of (entries, catalog): it has no I/O, cannot fail, and always
// returns a complete report.
package validate

import (
	"time"

	"auditline/internal/domain"
	"auditline/internal/rules"
)

// Validator runs the sequence and pairing checks against a fixed catalog.
// Now is injectable for deterministic report timestamps in tests.
type Validator struct {
	Catalog rules.Catalog
	Now     func() time.Time
}

// New returns a Validator over catalog.
func New(catalog rules.Catalog) Validator {
	return Validator{Catalog: catalog, Now: time.Now}
}

func (v Validator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// group is one instruction's lifecycle: all entries sharing an id, in the
// order they appeared in the input.
type group struct {
	id      string
	entries []domain.LogEntry
}

// groupByID partitions entries by instruction id, preserving first-seen
// order of ids. A group's category is its first member's category; mixed
// groups keep it silently.
func groupByID(entries []domain.LogEntry) []group {
	index := make(map[string]int)
	var groups []group
	for _, entry := range entries {
		if i, ok := index[entry.ID]; ok {
			groups[i].entries = append(groups[i].entries, entry)
			continue
		}
		index[entry.ID] = len(groups)
		groups = append(groups, group{id: entry.ID, entries: []domain.LogEntry{entry}})
	}
	return groups
}

// Run validates all entries and returns the finished report.
func (v Validator) Run(entries []domain.LogEntry) domain.ValidationReport {
	acc := newAccumulator()
	groups := groupByID(entries)
	summaries := newSummarySet()

	for _, g := range groups {
		category := g.entries[0].Category
		rule, ok := v.Catalog[category]
		if !ok {
			continue
		}
		summaries.ensure(category).InstructionCount++
		validateSequence(acc, g.entries, rule)
	}

	for _, category := range domain.Categories {
		rule, ok := v.Catalog[category]
		if !ok {
			continue
		}
		var categoryEntries []domain.LogEntry
		for _, entry := range entries {
			if entry.Category == category {
				categoryEntries = append(categoryEntries, entry)
			}
		}
		if len(categoryEntries) == 0 {
			continue
		}
		summaries.ensure(category)
		validatePairings(acc, categoryEntries, rule)
	}

	return buildReport(acc, summaries, len(groups), v.now())
}

// timestampOf converts an entry's createdAt to nanoseconds for ordering.
// Entries reach validation only after the parser has checked the timestamp.
func timestampOf(entry domain.LogEntry) int64 {
	t, err := domain.ParseTime(entry.CreatedAt)
	if err != nil {
		return 0
	}
	return t.UnixNano()
}
