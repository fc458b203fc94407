package gemini

import (
	"strings"

	"github.com/spigell/cv-evaluator/internal/scoring"

	"google.golang.org/genai"
)

func stringField(nullable bool) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Nullable: genai.Ptr(nullable)}
}

func integerField() *genai.Schema {
	return &genai.Schema{Type: genai.TypeInteger}
}

func numberField(nullable bool) *genai.Schema {
	return &genai.Schema{Type: genai.TypeNumber, Nullable: genai.Ptr(nullable)}
}

func listOf(item *genai.Schema, nullable bool) *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Items: item, Nullable: genai.Ptr(nullable)}
}

func stringList(nullable bool) *genai.Schema {
	return listOf(stringField(false), nullable)
}

func object(properties map[string]*genai.Schema, required ...string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeObject, Properties: properties, Required: required}
}

var resumeSchema = object(map[string]*genai.Schema{
	"candidate": object(map[string]*genai.Schema{
		"full_name": stringField(true),
		"headline":  stringField(true),
		"contact": object(map[string]*genai.Schema{
			"email":    stringField(true),
			"phone":    stringField(true),
			"location": stringField(true),
			"linkedin": stringField(true),
			"github":   stringField(true),
			"website":  stringField(true),
		}),
	}, "full_name", "contact"),
	"summary": stringField(true),
	"skills": object(map[string]*genai.Schema{
		"primary":   stringList(false),
		"secondary": stringList(false),
		"tools":     stringList(false),
	}, "primary", "secondary", "tools"),
	"experience": listOf(object(map[string]*genai.Schema{
		"title":           stringField(true),
		"company":         stringField(true),
		"employment_type": stringField(true),
		"start_date":      stringField(true),
		"end_date":        stringField(true),
		"location":        stringField(true),
		"achievements":    stringList(false),
		"tech_stack":      stringList(false),
		"impact":          stringList(false),
	}, "title", "company"), false),
	"education": listOf(object(map[string]*genai.Schema{
		"institution":    stringField(true),
		"degree":         stringField(true),
		"field_of_study": stringField(true),
		"start_date":     stringField(true),
		"end_date":       stringField(true),
		"achievements":   stringList(false),
	}, "institution"), false),
	"certifications": listOf(object(map[string]*genai.Schema{
		"name":   stringField(true),
		"issuer": stringField(true),
		"date":   stringField(true),
	}, "name"), false),
	"projects": listOf(object(map[string]*genai.Schema{
		"name":        stringField(true),
		"description": stringField(true),
		"role":        stringField(true),
		"start_date":  stringField(true),
		"end_date":    stringField(true),
		"tech_stack":  stringList(false),
		"impact":      stringList(false),
	}, "name"), false),
	"languages": stringList(false),
	"awards": listOf(object(map[string]*genai.Schema{
		"name":   stringField(true),
		"issuer": stringField(true),
		"date":   stringField(true),
	}, "name"), false),
	"keywords": object(map[string]*genai.Schema{
		"domain":        stringList(false),
		"methodologies": stringList(false),
		"tools":         stringList(false),
	}, "domain", "methodologies", "tools"),
}, "candidate", "summary", "skills", "experience", "education", "certifications", "projects", "languages", "awards", "keywords")

var projectReportSchema = object(map[string]*genai.Schema{
	"title": stringField(true),
	"candidate": object(map[string]*genai.Schema{
		"full_name": stringField(true),
		"email":     stringField(true),
	}, "full_name", "email"),
	"repository": object(map[string]*genai.Schema{
		"url":   stringField(true),
		"notes": stringField(true),
	}, "url"),
	"approach_design": object(map[string]*genai.Schema{
		"initial_plan": object(map[string]*genai.Schema{
			"plan_summary": stringField(true),
			"assumptions":  stringList(true),
		}, "plan_summary"),
		"system_design": object(map[string]*genai.Schema{
			"api_endpoints":      stringField(true),
			"database_schema":    stringField(true),
			"job_queue_handling": stringField(true),
		}, "api_endpoints"),
		"llm_integration": object(map[string]*genai.Schema{
			"model_choice":   stringField(true),
			"prompt_design":  stringField(true),
			"chaining_logic": stringField(true),
			"rag_strategy":   stringField(true),
		}, "model_choice", "prompt_design"),
		"prompting_examples": stringList(false),
		"resilience": object(map[string]*genai.Schema{
			"failure_handling":      stringField(true),
			"retry_strategy":        stringField(true),
			"randomness_mitigation": stringField(true),
		}, "failure_handling"),
		"edge_cases": object(map[string]*genai.Schema{
			"scenarios": stringList(false),
			"testing":   stringField(true),
		}, "scenarios"),
	}, "initial_plan", "system_design", "llm_integration", "prompting_examples", "resilience", "edge_cases"),
	"results_reflection": object(map[string]*genai.Schema{
		"outcome": object(map[string]*genai.Schema{
			"successes":  stringList(false),
			"challenges": stringList(false),
		}, "successes", "challenges"),
		"evaluation": object(map[string]*genai.Schema{
			"analysis":          stringField(true),
			"stability_factors": stringList(true),
		}, "analysis"),
		"future_improvements": object(map[string]*genai.Schema{
			"improvements": stringList(false),
			"constraints":  stringList(true),
		}, "improvements"),
	}, "outcome", "evaluation", "future_improvements"),
	"bonus_work": stringList(true),
}, "title", "candidate", "repository", "approach_design", "results_reflection")

// scoreSchema builds the response schema of a rubric scoring call: an integer
// and notes per dimension, an optional weight hint per dimension, and the
// aggregate and feedback keys.
func scoreSchema(dims []scoring.Dimension, aggregate, feedback string) *genai.Schema {
	properties := map[string]*genai.Schema{
		aggregate: numberField(false),
		feedback:  stringField(false),
	}
	required := make([]string, 0, 2*len(dims)+2)

	for _, dim := range dims {
		properties[dim.Score] = integerField()
		properties[dim.Score+"_notes"] = stringField(false)
		properties[dim.Weight] = numberField(true)
		required = append(required, dim.Score, dim.Score+"_notes")
	}
	required = append(required, aggregate, feedback)

	return object(properties, required...)
}

var (
	cvScoreSchema      = scoreSchema(scoring.CVDimensions, "cv_match_rate", "cv_feedback")
	projectScoreSchema = scoreSchema(scoring.ProjectDimensions, "project_score", "project_feedback")
)

// jsonSchema renders s as a JSON Schema document for response validation.
// Nullable types accept null, and object properties outside Properties are allowed.
func jsonSchema(s *genai.Schema) map[string]any {
	if s == nil {
		return map[string]any{}
	}

	out := map[string]any{}
	kind := strings.ToLower(string(s.Type))
	if kind != "" && kind != "type_unspecified" {
		if s.Nullable != nil && *s.Nullable {
			out["type"] = []any{kind, "null"}
		} else {
			out["type"] = kind
		}
	}

	if len(s.Properties) > 0 {
		properties := make(map[string]any, len(s.Properties))
		for name, prop := range s.Properties {
			properties[name] = jsonSchema(prop)
		}
		out["properties"] = properties
	}
	if len(s.Required) > 0 {
		required := make([]any, len(s.Required))
		for i, name := range s.Required {
			required[i] = name
		}
		out["required"] = required
	}
	if s.Items != nil {
		out["items"] = jsonSchema(s.Items)
	}

	return out
}
