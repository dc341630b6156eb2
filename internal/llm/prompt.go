package llm

import (
	"strings"
	"unicode/utf8"

	"github.com/soundlab/soundcoach/internal/model"
)

const maxAnswerRunes = 10000

// BuildScoringPrompt composes the deterministic scoring prompt for one answer.
// The output-format instruction pins the response to exactly one JSON object;
// this is the protocol contract with the scoring service.
func BuildScoringPrompt(q model.QuestionSpec, criteria, answer string) string {
	var sb strings.Builder
	sb.WriteString("You are a kind, professional AI learning coach helping a high-school student ")
	sb.WriteString("develop the competency of connecting mathematics to the world outside it. ")
	sb.WriteString("Score the student's answer against the scoring criteria below, assign points ")
	sb.WriteString("per criterion, and sum them into a total. Write the analysis and suggestion ")
	sb.WriteString("positively and concretely, at the student's level.\n\n")

	sb.WriteString("DIMENSION: " + q.Dimension + "\n\n")
	sb.WriteString("QUESTION: " + q.Text + "\n\n")
	sb.WriteString("SCORING CRITERIA:\n" + criteria + "\n\n")
	sb.WriteString("STUDENT ANSWER: \"" + sanitizeAnswer(answer) + "\"\n\n")

	sb.WriteString("OUTPUT FORMAT:\n")
	sb.WriteString("Respond with exactly one JSON object and nothing else. No prose before or after it.\n")
	sb.WriteString(`{"scores": {"<criterion name>": "<points awarded>"}, "total_score": <sum of points>, "analysis": "<what the student did well and why each criterion got its points, grounded in the rubric>", "suggestion": "<what to improve for a higher score, or a deeper what-if question to think about>"}`)
	sb.WriteString("\n")

	return sb.String()
}

func sanitizeAnswer(answer string) string {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "[No answer provided]"
	}
	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}
	return answer
}
