package parser_test

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"auditline/internal/domain"
	"auditline/internal/parser"
)

func line(id, actionField, code, category, status, createdAt, owner string) string {
	cat := ""
	if category != "" {
		cat = fmt.Sprintf(`"category":%q,`, category)
	}
	return fmt.Sprintf(`{"id":%q,%s%q:%q,"status":%q,"createdAt":%q,"owner":%q,"payload":{"revision":1,"summary":"s","steps":["one","two"]}}`,
		id, cat, actionField, code, status, createdAt, owner)
}

func TestParseSkipsBlankLines(t *testing.T) {
	raw := "\n  \n" + line("LOG-1", "action", "QA_INSPECTION", "", "pending", "2024-03-01T08:00:00Z", "amara") + "\n\t\n"
	res := parser.Parse(raw)
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if len(res.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(res.Entries))
	}
}

func TestParseBadJSON(t *testing.T) {
	res := parser.Parse("{not json")
	if len(res.Entries) != 0 {
		t.Fatalf("expected no entries")
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(res.Errors))
	}
	if res.Errors[0].Line != 1 {
		t.Fatalf("expected line 1, got %d", res.Errors[0].Line)
	}
	if res.Errors[0].Raw != "{not json" {
		t.Fatalf("raw line not preserved: %q", res.Errors[0].Raw)
	}
}

func TestParseCollectsAllViolations(t *testing.T) {
	res := parser.Parse(`{"id":123}`)
	if len(res.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(res.Errors))
	}
	msg := res.Errors[0].Message
	for _, want := range []string{
		"id: id must be a string",
		"owner: owner is required",
		"status: status is required",
		"createdAt: createdAt is required",
		"payload: payload is required",
		"action: an action code is required (action, actionCode or action_code)",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q: %s", want, msg)
		}
	}
	if !strings.Contains(msg, "; ") {
		t.Errorf("violations should be joined with '; ': %s", msg)
	}
}

func TestParseNonObjectLine(t *testing.T) {
	res := parser.Parse(`[1,2,3]`)
	if len(res.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(res.Errors))
	}
	if res.Errors[0].Message != "record: expected a JSON object" {
		t.Fatalf("unexpected message %q", res.Errors[0].Message)
	}
}

func TestParseActionAliasPrecedence(t *testing.T) {
	raw := `{"id":"LOG-1","action":"QA_INSPECTION","actionCode":"SAFETY_DRILL","action_code":"POLICY_UPDATE","status":"pending","createdAt":"2024-03-01T08:00:00Z","owner":"amara","payload":{"revision":1,"summary":"s","steps":["one"]}}`
	res := parser.Parse(raw)
	if len(res.Entries) != 1 {
		t.Fatalf("expected 1 entry, errors: %v", res.Errors)
	}
	if res.Entries[0].Action.Code != "QA_INSPECTION" {
		t.Fatalf("expected action field to win, got %q", res.Entries[0].Action.Code)
	}

	raw = `{"id":"LOG-2","actionCode":"SAFETY_DRILL","action_code":"POLICY_UPDATE","status":"pending","createdAt":"2024-03-01T08:00:00Z","owner":"amara","payload":{"revision":1,"summary":"s","steps":["one"]}}`
	res = parser.Parse(raw)
	if len(res.Entries) != 1 {
		t.Fatalf("expected 1 entry, errors: %v", res.Errors)
	}
	if res.Entries[0].Action.Code != "SAFETY_DRILL" {
		t.Fatalf("expected actionCode to win over action_code, got %q", res.Entries[0].Action.Code)
	}
}

func TestParseTitleDefaultsToActionName(t *testing.T) {
	res := parser.Parse(line("LOG-1", "action", "QA_INSPECTION", "", "pending", "2024-03-01T08:00:00Z", "amara"))
	if len(res.Entries) != 1 {
		t.Fatalf("expected 1 entry, errors: %v", res.Errors)
	}
	if res.Entries[0].Title != "Quality Inspection" {
		t.Fatalf("unexpected title %q", res.Entries[0].Title)
	}
}

func TestParseCategoryOverride(t *testing.T) {
	res := parser.Parse(line("LOG-1", "action", "QA_INSPECTION", "safety", "pending", "2024-03-01T08:00:00Z", "amara"))
	if len(res.Entries) != 1 {
		t.Fatalf("expected 1 entry, errors: %v", res.Errors)
	}
	entry := res.Entries[0]
	if entry.Category != domain.CategorySafety {
		t.Fatalf("expected explicit category, got %q", entry.Category)
	}
	if entry.Action.Category != domain.CategorySafety {
		t.Fatalf("action metadata should carry the winning category, got %q", entry.Action.Category)
	}
	if entry.Action.Name != "Quality Inspection" {
		t.Fatalf("name should not change on override, got %q", entry.Action.Name)
	}
}

func TestParseRejectsUnknownEnumValues(t *testing.T) {
	res := parser.Parse(line("LOG-1", "action", "QA_INSPECTION", "finance", "archived", "2024-03-01T08:00:00Z", "amara"))
	if len(res.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(res.Errors))
	}
	msg := res.Errors[0].Message
	if !strings.Contains(msg, "category must be one of quality, compliance, safety, efficiency") {
		t.Errorf("missing category violation: %s", msg)
	}
	if !strings.Contains(msg, "status must be one of pending, in_review, approved, rejected") {
		t.Errorf("missing status violation: %s", msg)
	}
}

func TestParseSortsEntriesByCreatedAtDescending(t *testing.T) {
	raw := strings.Join([]string{
		line("LOG-1", "action", "QA_INSPECTION", "", "pending", "2024-03-01T08:00:00Z", "amara"),
		line("LOG-2", "action", "QA_INSPECTION", "", "pending", "2024-03-03T08:00:00Z", "amara"),
		line("LOG-3", "action", "QA_INSPECTION", "", "pending", "2024-03-02T08:00:00Z", "amara"),
	}, "\n")
	res := parser.Parse(raw)
	if len(res.Entries) != 3 {
		t.Fatalf("expected 3 entries, errors: %v", res.Errors)
	}
	got := []string{res.Entries[0].ID, res.Entries[1].ID, res.Entries[2].ID}
	want := []string{"LOG-2", "LOG-3", "LOG-1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order %v, want %v", got, want)
		}
	}
}

func TestParseRejectsFractionalRevision(t *testing.T) {
	raw := `{"id":"LOG-1","action":"QA_INSPECTION","status":"pending","createdAt":"2024-03-01T08:00:00Z","owner":"amara","payload":{"revision":1.5,"summary":"s","steps":["one"]}}`
	res := parser.Parse(raw)
	if len(res.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(res.Errors))
	}
	if !strings.Contains(res.Errors[0].Message, "payload.revision: payload.revision must be an integer") {
		t.Fatalf("unexpected message %q", res.Errors[0].Message)
	}
}

func TestParseRoundTrip(t *testing.T) {
	raw := `{"id":"LOG-1","action":"qa inspection","title":"Line 4 check","status":"in_review","createdAt":"2024-03-01T08:00:00Z","owner":"amara","payload":{"revision":3,"summary":"monthly pass","steps":["walk the line","file findings"],"ownerNotes":"checked"}}`
	first := parser.Parse(raw)
	if len(first.Entries) != 1 {
		t.Fatalf("expected 1 entry, errors: %v", first.Errors)
	}
	entry := first.Entries[0]
	if entry.Action.Code != "QA_INSPECTION" {
		t.Fatalf("expected normalized action code, got %q", entry.Action.Code)
	}

	reserialized, err := json.Marshal(map[string]any{
		"id":        entry.ID,
		"title":     entry.Title,
		"category":  entry.Category,
		"status":    entry.Status,
		"createdAt": entry.CreatedAt,
		"owner":     entry.Owner,
		"action":    entry.Action.Code,
		"payload": map[string]any{
			"revision":   entry.Payload.Revision,
			"summary":    entry.Payload.Summary,
			"steps":      entry.Payload.Steps,
			"ownerNotes": entry.Payload.OwnerNotes,
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	second := parser.Parse(string(reserialized))
	if len(second.Entries) != 1 {
		t.Fatalf("expected 1 entry, errors: %v", second.Errors)
	}
	if !reflect.DeepEqual(second.Entries[0], entry) {
		t.Fatalf("re-parsed entry differs:\n got %+v\nwant %+v", second.Entries[0], entry)
	}
}

func TestParsePayloadViolations(t *testing.T) {
	raw := `{"id":"LOG-1","action":"QA_INSPECTION","status":"pending","createdAt":"2024-03-01T08:00:00Z","owner":"amara","payload":{"revision":"x","summary":7,"steps":[]}}`
	res := parser.Parse(raw)
	if len(res.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(res.Errors))
	}
	msg := res.Errors[0].Message
	for _, want := range []string{
		"payload.revision: payload.revision must be a number",
		"payload.summary: payload.summary must be a string",
		"payload.steps: payload.steps must include at least one step",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q: %s", want, msg)
		}
	}
}
