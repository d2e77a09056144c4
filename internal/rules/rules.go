// Package rules exposes the category validation catalog as a typed,
// read-only value. The catalog is built once from configuration and injected
// into validators, keeping validation a pure function of (entries, rules).
package rules

import (
	"auditline/internal/config"
	"auditline/internal/domain"
)

// Sequence describes which statuses open and close a lifecycle and their
// allowed order.
type Sequence struct {
	StartStatuses []domain.Status
	EndStatuses   []domain.Status
	StatusOrder   []domain.Status
}

// Pairing expects each start action to have a chronologically later end
// action from the same owner.
type Pairing struct {
	StartActions []string
	EndActions   []string
	Description  string
}

// CategoryRule is the full rule set for one category.
type CategoryRule struct {
	Sequence             Sequence
	MinSteps             int
	RequireOwnerNotes    bool
	RequireOwnerNotesFor []domain.Status
	Pairings             []Pairing
}

// Catalog maps every category to its rule. Treated as immutable after
// construction.
type Catalog map[domain.Category]CategoryRule

// FromConfig converts a validated config into a catalog. The config must
// have passed Validate; unknown statuses cannot appear here.
func FromConfig(cfg *config.Config) Catalog {
	catalog := make(Catalog, len(domain.Categories))
	for _, cat := range domain.Categories {
		rule := cfg.Categories[string(cat)]
		catalog[cat] = CategoryRule{
			Sequence: Sequence{
				StartStatuses: toStatuses(rule.Sequence.StartStatuses),
				EndStatuses:   toStatuses(rule.Sequence.EndStatuses),
				StatusOrder:   toStatuses(rule.Sequence.StatusOrder),
			},
			MinSteps:             rule.MinSteps,
			RequireOwnerNotes:    rule.RequireOwnerNotes,
			RequireOwnerNotesFor: toStatuses(rule.RequireOwnerNotesFor),
			Pairings:             toPairings(rule.Pairings),
		}
	}
	return catalog
}

// Default returns the catalog built from the built-in configuration.
func Default() Catalog {
	return FromConfig(config.Default())
}

func toStatuses(values []string) []domain.Status {
	if len(values) == 0 {
		return nil
	}
	out := make([]domain.Status, len(values))
	for i, v := range values {
		out[i] = domain.Status(v)
	}
	return out
}

func toPairings(values []config.PairingRule) []Pairing {
	out := make([]Pairing, len(values))
	for i, v := range values {
		out[i] = Pairing{
			StartActions: append([]string(nil), v.StartActions...),
			EndActions:   append([]string(nil), v.EndActions...),
			Description:  v.Description,
		}
	}
	return out
}
