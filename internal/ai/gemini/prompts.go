package gemini

import (
	_ "embed"
	"strings"
)

var (
	//go:embed prompts/system.md
	systemInstruction string
	//go:embed prompts/score_cv.md
	scoreCVTemplate string
	//go:embed prompts/score_project.md
	scoreProjectTemplate string
	//go:embed prompts/summary.md
	summaryTemplate string
)

func buildResumePrompt(text string) string {
	return "Extract structured JSON for the candidate using the schema shared earlier.\n" +
		"Resume contents:\n" +
		"<resume>\n" + text + "\n</resume>"
}

func buildProjectReportPrompt(text string) string {
	return "Extract structured JSON for the project report using the schema shared earlier.\n" +
		"Project Report contents:\n" +
		"<project_report>\n" + text + "\n</project_report>"
}

func render(template string, values map[string]string) string {
	pairs := make([]string, 0, 2*len(values))
	for key, value := range values {
		pairs = append(pairs, "{{"+key+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
