// Package scoring turns per-dimension rubric scores into weighted ratings.
package scoring

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// DefaultCVScale maps the 1-5 CV dimension average onto a 0-1 match rate.
// The project score has no counterpart and stays on the rubric scale.
const DefaultCVScale = 0.2

// Dimension pairs a score key with the key carrying its weight hint.
type Dimension struct {
	Score  string
	Weight string
}

var CVDimensions = []Dimension{
	{Score: "technical_skills_match", Weight: "technical_skills_weight"},
	{Score: "experience_level", Weight: "experience_level_weight"},
	{Score: "relevant_achievements", Weight: "relevant_achievements_weight"},
	{Score: "cultural_collaboration_fit", Weight: "cultural_collaboration_fit_weight"},
}

var ProjectDimensions = []Dimension{
	{Score: "correctness", Weight: "correctness_weight"},
	{Score: "code_quality_structure", Weight: "code_quality_structure_weight"},
	{Score: "resilience_error_handling", Weight: "resilience_error_handling_weight"},
	{Score: "documentation_explanation", Weight: "documentation_explanation_weight"},
	{Score: "creativity_bonus", Weight: "creativity_bonus_weight"},
}

// WeightedAverage computes round(sum(score*w)/sum(w), 2) over the dimensions
// whose weight is positive. Weights above 1 are read as percentages.
// Values that are not numbers count as 0.
func WeightedAverage(scored map[string]any, dims []Dimension) float64 {
	var weightedSum, totalWeight float64

	for _, dim := range dims {
		weight := Number(scored[dim.Weight])
		if weight > 1 {
			weight /= 100
		}
		if weight <= 0 {
			continue
		}

		weightedSum += Number(scored[dim.Score]) * weight
		totalWeight += weight
	}

	if totalWeight <= 0 {
		return 0
	}

	return round2(weightedSum / totalWeight)
}

// CVMatchRate is the CV weighted average multiplied by scale.
func CVMatchRate(scored map[string]any, scale float64) float64 {
	return WeightedAverage(scored, CVDimensions) * scale
}

// ProjectScore is the unscaled project weighted average.
func ProjectScore(scored map[string]any) float64 {
	return WeightedAverage(scored, ProjectDimensions)
}

// round2 rounds the exact binary value of v to two decimals, ties to even.
// Scaling by 100 first would round the product's error instead.
func round2(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	if err != nil {
		return v
	}
	return r
}

// Number coerces loosely typed JSON values to float64, returning 0 when it cannot.
func Number(value any) float64 {
	var f float64

	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		f = parsed
	case bool:
		if v {
			f = 1
		}
	default:
		return 0
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
