package scoring

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// CVScorecard is the typed view of a scored résumé.
type CVScorecard struct {
	TechnicalSkillsMatch float64 `mapstructure:"technical_skills_match"`
	TechnicalSkillsNotes string  `mapstructure:"technical_skills_notes"`
	ExperienceLevel      float64 `mapstructure:"experience_level"`
	ExperienceNotes      string  `mapstructure:"experience_level_notes"`
	RelevantAchievements float64 `mapstructure:"relevant_achievements"`
	AchievementsNotes    string  `mapstructure:"relevant_achievements_notes"`
	CulturalFit          float64 `mapstructure:"cultural_collaboration_fit"`
	CulturalFitNotes     string  `mapstructure:"cultural_collaboration_fit_notes"`

	MatchRate float64 `mapstructure:"cv_match_rate"`
	Feedback  string  `mapstructure:"cv_feedback"`
}

// ProjectScorecard is the typed view of a scored project report.
type ProjectScorecard struct {
	Correctness        float64 `mapstructure:"correctness"`
	CorrectnessNotes   string  `mapstructure:"correctness_notes"`
	CodeQuality        float64 `mapstructure:"code_quality_structure"`
	CodeQualityNotes   string  `mapstructure:"code_quality_structure_notes"`
	Resilience         float64 `mapstructure:"resilience_error_handling"`
	ResilienceNotes    string  `mapstructure:"resilience_error_handling_notes"`
	Documentation      float64 `mapstructure:"documentation_explanation"`
	DocumentationNotes string  `mapstructure:"documentation_explanation_notes"`
	Creativity         float64 `mapstructure:"creativity_bonus"`
	CreativityNotes    string  `mapstructure:"creativity_bonus_notes"`

	Score    float64 `mapstructure:"project_score"`
	Feedback string  `mapstructure:"project_feedback"`
}

func DecodeCV(scored map[string]any) (CVScorecard, error) {
	var card CVScorecard
	if err := decode(scored, &card); err != nil {
		return CVScorecard{}, fmt.Errorf("decode cv scorecard: %w", err)
	}
	return card, nil
}

func DecodeProject(scored map[string]any) (ProjectScorecard, error) {
	var card ProjectScorecard
	if err := decode(scored, &card); err != nil {
		return ProjectScorecard{}, fmt.Errorf("decode project scorecard: %w", err)
	}
	return card, nil
}

// lenient maps values the model got wrong to zero values instead of failing:
// numbers go through Number, and text fields drop anything that is not a scalar.
func lenient(_ reflect.Type, to reflect.Type, data any) (any, error) {
	switch to.Kind() {
	case reflect.Float64:
		return Number(data), nil
	case reflect.String:
		switch v := data.(type) {
		case string:
			return v, nil
		case bool, float64, float32, int, int64, int32:
			return fmt.Sprint(v), nil
		default:
			return "", nil
		}
	}
	return data, nil
}

func decode(input map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       lenient,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}
