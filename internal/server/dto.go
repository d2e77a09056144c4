package server

import (
	"encoding/json"

	"auditline/internal/config"
	"auditline/internal/domain"
	"auditline/internal/engine"
)

// Request payloads

type CreateIngestRequest struct {
	Content string `json:"content"`
	Source  string `json:"source,omitempty"`
	ActorID string `json:"actor_id,omitempty"`
}

// Response payloads

type IngestResponse struct {
	ID         string `json:"id"`
	Source     string `json:"source,omitempty"`
	ActorID    string `json:"actor_id"`
	LineCount  int    `json:"line_count"`
	EntryCount int    `json:"entry_count"`
	ErrorCount int    `json:"error_count"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type IngestRunResponse struct {
	Ingest  IngestResponse       `json:"ingest"`
	Entries []EntryResponse      `json:"entries"`
	Errors  []ParseErrorResponse `json:"errors"`
	Report  ReportResponse       `json:"report"`
}

type EntryResponse struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Category  string         `json:"category" enum:"quality,compliance,safety,efficiency"`
	Status    string         `json:"status" enum:"pending,in_review,approved,rejected"`
	CreatedAt string         `json:"createdAt" format:"date-time"`
	Owner     string         `json:"owner"`
	Payload   domain.Payload `json:"payload"`
	Action    ActionResponse `json:"action"`
}

type ActionResponse struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Category string `json:"category" enum:"quality,compliance,safety,efficiency"`
	Color    string `json:"color"`
}

type ParseErrorResponse struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
	Raw     string `json:"raw,omitempty"`
}

type ReportResponse struct {
	Results           []domain.ValidationResult `json:"results"`
	Totals            domain.ValidationTotals   `json:"totals"`
	CategorySummaries []domain.CategorySummary  `json:"categorySummaries"`
	GeneratedAt       string                    `json:"generatedAt" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	IngestID   string         `json:"ingest_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type RulesResponse struct {
	Categories map[string]categoryRuleSection `json:"categories"`
}

type categoryRuleSection struct {
	Sequence             sequenceRuleSection  `json:"sequence"`
	MinSteps             int                  `json:"min_steps"`
	RequireOwnerNotes    bool                 `json:"require_owner_notes"`
	RequireOwnerNotesFor []string             `json:"require_owner_notes_for,omitempty"`
	Pairings             []pairingRuleSection `json:"pairings,omitempty"`
}

type sequenceRuleSection struct {
	StartStatuses []string `json:"start_statuses"`
	EndStatuses   []string `json:"end_statuses"`
	StatusOrder   []string `json:"status_order"`
}

type pairingRuleSection struct {
	StartActions []string `json:"start_actions"`
	EndActions   []string `json:"end_actions"`
	Description  string   `json:"description"`
}

// Mappers

func ingestResponse(in domain.Ingest) IngestResponse {
	return IngestResponse(in)
}

func mapIngests(in []domain.Ingest) []IngestResponse {
	out := make([]IngestResponse, 0, len(in))
	for _, item := range in {
		out = append(out, ingestResponse(item))
	}
	return out
}

func entryResponse(e domain.LogEntry) EntryResponse {
	return EntryResponse{
		ID:        e.ID,
		Title:     e.Title,
		Category:  string(e.Category),
		Status:    string(e.Status),
		CreatedAt: e.CreatedAt,
		Owner:     e.Owner,
		Payload:   e.Payload,
		Action:    actionResponse(e.Action),
	}
}

func mapEntries(in []domain.LogEntry) []EntryResponse {
	out := make([]EntryResponse, 0, len(in))
	for _, item := range in {
		out = append(out, entryResponse(item))
	}
	return out
}

func actionResponse(meta domain.ActionMetadata) ActionResponse {
	return ActionResponse{
		Code:     meta.Code,
		Name:     meta.Name,
		Category: string(meta.Category),
		Color:    meta.Color,
	}
}

func mapParseErrors(in []domain.ParseError) []ParseErrorResponse {
	out := make([]ParseErrorResponse, 0, len(in))
	for _, item := range in {
		out = append(out, ParseErrorResponse(item))
	}
	return out
}

func reportResponse(rep domain.ValidationReport) ReportResponse {
	return ReportResponse{
		Results:           nonNilSlice(rep.Results),
		Totals:            rep.Totals,
		CategorySummaries: nonNilSlice(rep.CategorySummaries),
		GeneratedAt:       rep.GeneratedAt,
	}
}

func ingestRunResponse(result engine.IngestResult) IngestRunResponse {
	return IngestRunResponse{
		Ingest:  ingestResponse(result.Ingest),
		Entries: mapEntries(result.Entries),
		Errors:  mapParseErrors(result.Errors),
		Report:  reportResponse(result.Report),
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		IngestID:   e.IngestID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func mapEvents(in []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(in))
	for _, item := range in {
		out = append(out, eventResponse(item))
	}
	return out
}

func rulesResponse(cfg *config.Config) RulesResponse {
	res := RulesResponse{Categories: map[string]categoryRuleSection{}}
	for name, rule := range cfg.Categories {
		res.Categories[name] = categoryRuleSection{
			Sequence: sequenceRuleSection{
				StartStatuses: rule.Sequence.StartStatuses,
				EndStatuses:   rule.Sequence.EndStatuses,
				StatusOrder:   rule.Sequence.StatusOrder,
			},
			MinSteps:             rule.MinSteps,
			RequireOwnerNotes:    rule.RequireOwnerNotes,
			RequireOwnerNotesFor: rule.RequireOwnerNotesFor,
			Pairings:             mapPairings(rule.Pairings),
		}
	}
	return res
}

func mapPairings(in []config.PairingRule) []pairingRuleSection {
	out := make([]pairingRuleSection, 0, len(in))
	for _, p := range in {
		out = append(out, pairingRuleSection{
			StartActions: p.StartActions,
			EndActions:   p.EndActions,
			Description:  p.Description,
		})
	}
	return out
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
