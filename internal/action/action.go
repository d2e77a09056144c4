// Package action maps raw action code strings to normalized display
// metadata. Known codes come from an explicit table; unknown codes fall back
// to ordered regex inference for the category and token-based name
// derivation.
package action

import (
	"regexp"
	"strings"

	"auditline/internal/domain"
)

// CategoryColors is the fixed category -> display color table.
var CategoryColors = map[domain.Category]string{
	domain.CategoryQuality:    "#722ed1",
	domain.CategoryCompliance: "#1677ff",
	domain.CategorySafety:     "#fa541c",
	domain.CategoryEfficiency: "#52c41a",
}

type definition struct {
	Name     string
	Category domain.Category
	Color    string
}

var definitions = map[string]definition{
	"QA_INSPECTION":         {Name: "Quality Inspection", Category: domain.CategoryQuality},
	"QA_DEVIATION_REVIEW":   {Name: "Deviation Review", Category: domain.CategoryQuality},
	"QUALITY_AUDIT":         {Name: "Quality Audit", Category: domain.CategoryQuality},
	"QUALITY_CHECK":         {Name: "Quality Check", Category: domain.CategoryQuality},
	"COMPLIANCE_AUDIT":      {Name: "Compliance Audit", Category: domain.CategoryCompliance},
	"COMPLIANCE_CHECK":      {Name: "Compliance Check", Category: domain.CategoryCompliance},
	"COMPLIANCE_REVIEW":     {Name: "Compliance Review", Category: domain.CategoryCompliance},
	"POLICY_UPDATE":         {Name: "Policy Update", Category: domain.CategoryCompliance},
	"SAFETY_DRILL":          {Name: "Safety Drill", Category: domain.CategorySafety},
	"SAFETY_ALERT":          {Name: "Safety Alert", Category: domain.CategorySafety},
	"SAFETY_INSPECTION":     {Name: "Safety Inspection", Category: domain.CategorySafety},
	"INCIDENT_REVIEW":       {Name: "Incident Review", Category: domain.CategorySafety},
	"WORKFLOW_OPTIMIZATION": {Name: "Workflow Optimization", Category: domain.CategoryEfficiency},
	"WORKFLOW_UPDATE":       {Name: "Workflow Update", Category: domain.CategoryEfficiency},
	"PROCESS_UPDATE":        {Name: "Process Update", Category: domain.CategoryEfficiency},
	"PROCESS_IMPROVEMENT":   {Name: "Process Improvement", Category: domain.CategoryEfficiency},
	"EFFICIENCY_REVIEW":     {Name: "Efficiency Review", Category: domain.CategoryEfficiency},
	"MAINTENANCE_SCHEDULE":  {Name: "Maintenance Schedule", Category: domain.CategoryEfficiency},
	"MAINTENANCE_CHECK":     {Name: "Maintenance Check", Category: domain.CategoryEfficiency},
	"PERFORMANCE_REVIEW":    {Name: "Performance Review", Category: domain.CategoryEfficiency},
	"SOP_UPDATE":            {Name: "SOP Update", Category: domain.CategoryCompliance},
	"SOP_REVIEW":            {Name: "SOP Review", Category: domain.CategoryCompliance},
	"AUDIT_RESPONSE":        {Name: "Audit Response", Category: domain.CategoryCompliance},
	"RISK_ASSESSMENT":       {Name: "Risk Assessment", Category: domain.CategorySafety},
	"INCIDENT_REPORT":       {Name: "Incident Report", Category: domain.CategorySafety},
	"QUALITY_IMPROVEMENT":   {Name: "Quality Improvement", Category: domain.CategoryQuality},
	"TRAINING_SESSION":      {Name: "Training Session", Category: domain.CategoryQuality},
	"TRAINING_COMPLETION":   {Name: "Training Completion", Category: domain.CategoryQuality},
	"CAPA_UPDATE":           {Name: "CAPA Update", Category: domain.CategoryQuality},
}

type inferenceRule struct {
	Pattern  *regexp.Regexp
	Category domain.Category
}

// inferenceRules is evaluated in order, first match wins. Order is
// significant: a code matching several patterns must resolve
// deterministically.
var inferenceRules = []inferenceRule{
	{regexp.MustCompile(`^(QA|QC|QUALITY|LAB)`), domain.CategoryQuality},
	{regexp.MustCompile(`(QUALITY|QA|QC|CALIBRATION)`), domain.CategoryQuality},
	{regexp.MustCompile(`^(COMP|REG|POLICY|AUDIT|GOV)`), domain.CategoryCompliance},
	{regexp.MustCompile(`(COMPLIANCE|AUDIT|REGULATION|POLICY)`), domain.CategoryCompliance},
	{regexp.MustCompile(`^(SAFE|HSE|EHS|SECURITY|RISK)`), domain.CategorySafety},
	{regexp.MustCompile(`(SAFETY|INCIDENT|HAZARD|EMERGENCY)`), domain.CategorySafety},
	{regexp.MustCompile(`^(OPS|EFF|LEAN|MAINT|SOP|WORK|PROC|PROD)`), domain.CategoryEfficiency},
	{regexp.MustCompile(`(EFFICIENCY|OPTIM|MAINTENANCE|WORKFLOW|THROUGHPUT|SCHEDULE)`), domain.CategoryEfficiency},
}

var (
	separators = regexp.MustCompile(`[\s-]+`)
	digitsOnly = regexp.MustCompile(`^\d+$`)
	upperOnly  = regexp.MustCompile(`^[A-Z]+$`)
)

// Normalize canonicalizes a raw action code: trim, collapse whitespace and
// hyphen runs to underscore, uppercase.
func Normalize(code string) string {
	return strings.ToUpper(separators.ReplaceAllString(strings.TrimSpace(code), "_"))
}

// InferCategory tests a normalized code against the ordered inference rules.
// Codes matching no rule default to quality.
func InferCategory(code string) domain.Category {
	for _, rule := range inferenceRules {
		if rule.Pattern.MatchString(code) {
			return rule.Category
		}
	}
	return domain.CategoryQuality
}

// FormatName derives a display name from a code by title-casing underscore
// tokens. Pure-digit tokens and short all-uppercase tokens (acronyms like
// SOP or QA) are preserved verbatim.
func FormatName(code string) string {
	normalized := Normalize(code)
	var tokens []string
	for _, token := range strings.Split(normalized, "_") {
		if token == "" {
			continue
		}
		switch {
		case digitsOnly.MatchString(token):
			tokens = append(tokens, token)
		case len(token) <= 3 && upperOnly.MatchString(token):
			tokens = append(tokens, token)
		default:
			tokens = append(tokens, token[:1]+strings.ToLower(token[1:]))
		}
	}
	if len(tokens) == 0 {
		return "Instruction"
	}
	return strings.Join(tokens, " ")
}

// Resolve returns normalized metadata for a raw action code. Known codes use
// the static table; everything else is inferred.
func Resolve(code string) domain.ActionMetadata {
	normalized := Normalize(code)
	def, known := definitions[normalized]

	category := def.Category
	if !known {
		category = InferCategory(normalized)
	}
	name := def.Name
	if name == "" {
		name = FormatName(normalized)
	}
	color := def.Color
	if color == "" {
		color = CategoryColors[category]
	}
	return domain.ActionMetadata{
		Code:     normalized,
		Name:     name,
		Category: category,
		Color:    color,
	}
}

// ResolveWithCategory resolves metadata and then reconciles it with an
// explicitly supplied category. The explicit category wins; the display name
// is kept and the color is re-derived for the winning category unless the
// static table supplied a custom color for that code.
func ResolveWithCategory(code string, category domain.Category) domain.ActionMetadata {
	meta := Resolve(code)
	if category == "" || category == meta.Category {
		return meta
	}
	meta.Category = category
	if def, ok := definitions[meta.Code]; !ok || def.Color == "" {
		meta.Color = CategoryColors[category]
	}
	return meta
}
