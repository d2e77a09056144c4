// Package parser turns raw instruction log text into typed entries with
// per-line error isolation. Parsing never fails as a whole: every non-blank
// line yields either exactly one entry or exactly one parse error.
package parser

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"auditline/internal/action"
	"auditline/internal/domain"
)

// Result carries both output lists of a parse run. Entries are sorted by
// createdAt descending; errors keep original line order.
type Result struct {
	Entries []domain.LogEntry  `json:"entries"`
	Errors  []domain.ParseError `json:"errors"`
}

// Parse splits raw on line boundaries and parses each non-blank line as one
// instruction record. Blank and whitespace-only lines are skipped silently.
func Parse(raw string) Result {
	var res Result
	for index, line := range strings.Split(raw, "\n") {
		lineNumber := index + 1
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		var value any
		if err := json.Unmarshal([]byte(trimmed), &value); err != nil {
			res.Errors = append(res.Errors, domain.ParseError{Line: lineNumber, Message: err.Error(), Raw: trimmed})
			continue
		}

		entry, violations := buildEntry(value)
		if len(violations) > 0 {
			res.Errors = append(res.Errors, domain.ParseError{
				Line:    lineNumber,
				Message: strings.Join(violations, "; "),
				Raw:     trimmed,
			})
			continue
		}
		res.Entries = append(res.Entries, entry)
	}

	sort.SliceStable(res.Entries, func(i, j int) bool {
		return timestampOf(res.Entries[i]) > timestampOf(res.Entries[j])
	})
	return res
}

func timestampOf(e domain.LogEntry) int64 {
	t, err := domain.ParseTime(e.CreatedAt)
	if err != nil {
		return 0
	}
	return t.UnixNano()
}

// actionAliases are checked in order; the first non-empty value wins.
var actionAliases = []string{"action", "actionCode", "action_code"}

// buildEntry validates a decoded JSON value against the record schema and
// assembles the finished entry. All violations are collected, not just the
// first.
func buildEntry(value any) (domain.LogEntry, []string) {
	obj, ok := value.(map[string]any)
	if !ok {
		return domain.LogEntry{}, []string{"record: expected a JSON object"}
	}

	var violations []string
	fail := func(path, message string) {
		violations = append(violations, fmt.Sprintf("%s: %s", path, message))
	}

	id := requireString(obj, "id", fail)
	owner := requireString(obj, "owner", fail)
	title := optionalString(obj, "title", fail)

	category := ""
	if raw, present := obj["category"]; present {
		s, ok := raw.(string)
		if !ok || !domain.ValidCategory(s) {
			fail("category", "category must be one of quality, compliance, safety, efficiency")
		} else {
			category = s
		}
	}

	status := ""
	if raw, present := obj["status"]; !present {
		fail("status", "status is required")
	} else if s, ok := raw.(string); !ok || !domain.ValidStatus(s) {
		fail("status", "status must be one of pending, in_review, approved, rejected")
	} else {
		status = s
	}

	createdAt := ""
	if raw, present := obj["createdAt"]; !present {
		fail("createdAt", "createdAt is required")
	} else if s, ok := raw.(string); !ok || s == "" {
		fail("createdAt", "createdAt is required")
	} else if _, err := domain.ParseTime(s); err != nil {
		fail("createdAt", "createdAt must be a valid ISO date string")
	} else {
		createdAt = s
	}

	payload := parsePayload(obj, fail)

	rawAction := ""
	for _, alias := range actionAliases {
		if s, ok := obj[alias].(string); ok && strings.TrimSpace(s) != "" {
			rawAction = s
			break
		}
	}
	if rawAction == "" {
		fail("action", "an action code is required (action, actionCode or action_code)")
	}

	if len(violations) > 0 {
		return domain.LogEntry{}, violations
	}

	meta := action.ResolveWithCategory(rawAction, domain.Category(category))
	if category == "" {
		category = string(meta.Category)
	}
	if title == "" {
		title = meta.Name
	}
	return domain.LogEntry{
		ID:        id,
		Title:     title,
		Category:  domain.Category(category),
		Status:    domain.Status(status),
		CreatedAt: createdAt,
		Owner:     owner,
		Payload:   payload,
		Action:    meta,
	}, nil
}

func parsePayload(obj map[string]any, fail func(path, message string)) domain.Payload {
	var payload domain.Payload
	raw, present := obj["payload"]
	if !present {
		fail("payload", "payload is required")
		return payload
	}
	body, ok := raw.(map[string]any)
	if !ok {
		fail("payload", "payload must be an object")
		return payload
	}

	if n, ok := body["revision"].(float64); ok {
		if n != math.Trunc(n) {
			fail("payload.revision", "payload.revision must be an integer")
		} else {
			payload.Revision = int(n)
		}
	} else {
		fail("payload.revision", "payload.revision must be a number")
	}
	if s, ok := body["summary"].(string); ok {
		payload.Summary = s
	} else {
		fail("payload.summary", "payload.summary must be a string")
	}

	steps, ok := body["steps"].([]any)
	if !ok {
		fail("payload.steps", "payload.steps must be an array of strings")
	} else if len(steps) == 0 {
		fail("payload.steps", "payload.steps must include at least one step")
	} else {
		for _, step := range steps {
			s, ok := step.(string)
			if !ok {
				fail("payload.steps", "payload.steps must be an array of strings")
				break
			}
			payload.Steps = append(payload.Steps, s)
		}
	}

	if rawNotes, present := body["ownerNotes"]; present {
		if s, ok := rawNotes.(string); ok {
			payload.OwnerNotes = s
		} else {
			fail("payload.ownerNotes", "payload.ownerNotes must be a string")
		}
	}
	return payload
}

func requireString(obj map[string]any, field string, fail func(path, message string)) string {
	raw, present := obj[field]
	if !present {
		fail(field, field+" is required")
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		fail(field, field+" must be a string")
		return ""
	}
	if s == "" {
		fail(field, field+" is required")
		return ""
	}
	return s
}

func optionalString(obj map[string]any, field string, fail func(path, message string)) string {
	raw, present := obj[field]
	if !present {
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		fail(field, field+" must be a string")
		return ""
	}
	return s
}
