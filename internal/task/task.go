// Package task defines the closed set of transformation tasks and the
// immutable rule record each one carries: prompt rules, domain knowledge and
// the patterns used for skipping and scoring.
package task

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind selects a transformation task.
type Kind int

const (
	MapToVO Kind = iota
	LegacyAPIModernization
)

// Kinds lists every supported task.
var Kinds = []Kind{MapToVO, LegacyAPIModernization}

func (k Kind) String() string {
	switch k {
	case MapToVO:
		return "map-to-vo"
	case LegacyAPIModernization:
		return "legacy-api-modernization"
	default:
		return fmt.Sprintf("task(%d)", int(k))
	}
}

// ParseKind accepts "map-to-vo" and "legacy-api-modernization"; underscores
// are treated as dashes.
func ParseKind(s string) (Kind, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for _, k := range Kinds {
		if k.String() == norm {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown task %q (expected one of: map-to-vo, legacy-api-modernization)", s)
}

// Intent describes what a rewrite is meant to achieve. It steers diff
// enhancement.
type Intent struct {
	MainPurpose              string   `json:"main_purpose"`
	Scope                    string   `json:"transformation_scope"`
	RiskLevel                string   `json:"risk_level"`
	SpecificChanges          []string `json:"specific_changes"`
	PreservationRules        []string `json:"preservation_rules"`
	EnhancementOpportunities []string `json:"enhancement_opportunities"`
}

// PatternExample pairs a named code pattern with an example snippet.
type PatternExample struct {
	Name    string
	Example string
}

// DomainKnowledge is background material injected into diff enhancement
// prompts.
type DomainKnowledge struct {
	Purpose               string
	Benefits              []string
	CommonTransformations []string
	Patterns              []PatternExample
	EnhancementRules      []string
	QualityChecks         []string
}

// Rules is the immutable configuration of one task.
type Rules struct {
	Kind         Kind
	Name         string
	Description  string
	SystemPrompt string

	Initial    string
	Feedback   string
	Correction string

	Domain        DomainKnowledge
	DefaultIntent Intent

	// TargetPattern marks code in the desired post-transformation style.
	TargetPattern *regexp.Regexp
	// LegacyPattern marks code that still needs transforming.
	LegacyPattern *regexp.Regexp
	// ConvertiblePattern decides whether a fragment is worth sending to the
	// model at all.
	ConvertiblePattern *regexp.Regexp
}

// NeedsConversion reports whether code contains anything this task rewrites.
func (r Rules) NeedsConversion(code string) bool {
	return r.ConvertiblePattern.MatchString(code)
}

// Rules returns a fresh rule record for k. Unknown kinds fall back to
// MapToVO.
func (k Kind) Rules() Rules {
	switch k {
	case LegacyAPIModernization:
		return legacyAPIRules()
	default:
		return mapToVORules()
	}
}

var (
	accessorCallRe   = regexp.MustCompile(`\b(set|get)[A-Z]\w*\s*\(`)
	mapAccessRe      = regexp.MustCompile(`(?i)\bmap\.(get|put|remove)\s*\(`)
	mapConvertibleRe = regexp.MustCompile(`\bmap\.(get|put|remove)\b|Map`)

	modernAPIRe = regexp.MustCompile(`\bOptional\b|\.stream\(\)|\b(List|Set|Map)\.of\(|\bLocalDate(Time)?\b|\bStringBuilder\b`)
	legacyAPIRe = regexp.MustCompile(`\b(Vector|Hashtable|StringBuffer|Enumeration|StringTokenizer)\b|new\s+Date\s*\(|new\s+(Integer|Long|Double|Boolean)\s*\(`)
)

const mapToVOChecklist = `* Do NOT add, remove, or alter any comments.
* Keep method and parameter names unchanged.
* Keep all function and call names unchanged.
* Only change types (parameter, return, local) and the argument passed to calls.
* If the function implementation is using Map, convert it to use VO.
* The function implementation should behave the same as the original implementation.`

const mapToVOPreamble = "Given a previous implementation code, a reference Value Object class, and some additional previous context sources"

func mapToVORules() Rules {
	return Rules{
		Kind:        MapToVO,
		Name:        "Map to VO Conversion",
		Description: "Convert Map-based data structures to Value Object (VO) classes",
		SystemPrompt: `You are an expert Java developer specializing in Map-to-VO conversions.

Replace map.get("key") with vo.getField() and map.put("key", value) with vo.setField(value).
Maintain business logic, validation, error handling and edge cases.
Answer with Java code only unless asked for feedback.`,
		Initial: mapToVOPreamble + `, rewrite the previous implementation to migrate from Map-based implementation to VO(Value Object)-based implementation, using the reference VO class provided whenever necessary.
Follow these rules exactly:
` + mapToVOChecklist + `
Write your converted implementation of the input below.
No extra text other than the code.`,
		Feedback: mapToVOPreamble + `, <candidate> is the rewritten previous implementation to migrate from Map-based implementation to VO(Value Object)-based implementation, using the reference VO class provided.
Now your role is to check whether candidate satisfies these conditions:
` + mapToVOChecklist + `
For each point, specify <✅ or ❌> and give a detailed feedback (and also provide the code snippet that needs improvement).

Output only feedback. No Java code output.`,
		Correction: mapToVOPreamble + `, <candidate> is the rewritten previous implementation to migrate from Map-based implementation to VO(Value Object)-based implementation, using the reference VO class provided.
Rewrite the previous implementation to migrate from Map-based implementation to VO(Value Object)-based implementation, using the reference VO class provided whenever necessary.
Follow these rules exactly:
` + mapToVOChecklist + `
Write your converted implementation of the input below.
No extra text other than the code.`,
		Domain: DomainKnowledge{
			Purpose: "Replace dynamic Map structures with type-safe, immutable Value Objects",
			Benefits: []string{
				"Type safety at compile time",
				"Better IDE support and code completion",
				"Immutable data structures",
				"Clear API contracts",
				"Reduced runtime errors",
			},
			CommonTransformations: []string{
				"Extract Map keys as VO field names",
				"Infer field types from Map usage patterns",
				"Replace Map.get() calls with VO getter methods",
				"Replace Map.put() calls with VO setters or constructor parameters",
			},
			Patterns: []PatternExample{
				{Name: "Map usage", Example: `Map<String, Object> data = new HashMap<>();`},
				{Name: "VO replacement", Example: `UserVO user = new UserVO(name, email, age);`},
				{Name: "Getter", Example: `data.get("fieldName") → user.getFieldName()`},
				{Name: "Setter", Example: `data.put("fieldName", value) → user.setFieldName(value)`},
			},
			EnhancementRules: []string{
				"Convert snake_case or camelCase keys to proper Java field names",
				"Infer appropriate Java types from Map value usage",
				"Remove redundant casts made unnecessary by typed getters",
			},
			QualityChecks: []string{
				"Ensure all Map accesses are converted to VO methods",
				"Verify type consistency across transformations",
				"Check for proper null handling",
				"Validate field name conventions",
			},
		},
		DefaultIntent: Intent{
			MainPurpose:       "Migrate Map-based data access to the reference Value Object",
			Scope:             "moderate",
			RiskLevel:         "medium",
			SpecificChanges:   []string{"Replace map.get/put/remove calls with VO accessors", "Change Map parameter and local types to the VO type"},
			PreservationRules: []string{"Keep comments unchanged", "Keep method, parameter and call names unchanged", "Preserve behaviour"},
		},
		TargetPattern:      accessorCallRe,
		LegacyPattern:      mapAccessRe,
		ConvertiblePattern: mapConvertibleRe,
	}
}

const legacyChecklist = `* Keep method and parameter names unchanged unless modernization requires it.
* Update deprecated API calls to modern equivalents.
* Apply current Java best practices and idioms.
* Maintain backward compatibility where possible.
* The function implementation should behave the same as the original implementation.`

func legacyAPIRules() Rules {
	return Rules{
		Kind:        LegacyAPIModernization,
		Name:        "Legacy API Modernization",
		Description: "Modernize legacy API patterns to current Java standards",
		SystemPrompt: `You are an expert Java developer specializing in API modernization.

Update deprecated or outdated API usage to modern Java equivalents (collections, java.time, StringBuilder, Optional, streams)
while preserving behaviour, error handling and edge cases.
Answer with Java code only unless asked for feedback.`,
		Initial: `Given a previous implementation code and additional context sources, rewrite the previous implementation to modernize legacy API patterns to current Java standards.
Follow these rules exactly:
` + legacyChecklist + `
Write your modernized implementation of the input below.
No extra text other than the code.`,
		Feedback: `Given a previous implementation code and additional context sources, <candidate> is the rewritten previous implementation to modernize legacy API patterns.
Now your role is to check whether candidate satisfies these conditions:
* Properly updates deprecated API calls.
* Applies current Java best practices.
* Maintains backward compatibility where possible.
* The function implementation behaves the same as the original implementation.
For each point, specify <✅ or ❌> and give a short feedback.

Output only feedback. No Java code output.`,
		Correction: `Given a previous implementation code and additional context sources, <candidate> is the rewritten previous implementation to modernize legacy API patterns.
Rewrite the previous implementation to properly modernize legacy API patterns to current Java standards.
Follow these rules exactly:
` + legacyChecklist + `
Write your modernized implementation of the input below.
No extra text other than the code.`,
		Domain: DomainKnowledge{
			Purpose: "Update outdated API patterns to modern Java practices",
			CommonTransformations: []string{
				"Vector and Hashtable to ArrayList and HashMap",
				"StringBuffer to StringBuilder",
				"java.util.Date to java.time",
				"Boxed constructors to valueOf",
			},
			QualityChecks: []string{
				"No deprecated API remains",
				"Behaviour is unchanged",
			},
		},
		DefaultIntent: Intent{
			MainPurpose:       "Replace deprecated Java APIs with modern equivalents",
			Scope:             "moderate",
			RiskLevel:         "medium",
			SpecificChanges:   []string{"Swap legacy collection and date types for modern ones"},
			PreservationRules: []string{"Preserve behaviour", "Keep public signatures stable"},
		},
		TargetPattern:      modernAPIRe,
		LegacyPattern:      legacyAPIRe,
		ConvertiblePattern: legacyAPIRe,
	}
}
