package prompts

import (
	"fmt"
	"strings"

	"interview-coach/internal/session"
)

// SystemPrompt задает роль модели для всех запросов
const SystemPrompt = "You are a senior technical interviewer and career coach. You always answer with valid JSON only, without markdown or comments."

// GenerateQuestionsPrompt - промпт для генерации списка вопросов интервью
func GenerateQuestionsPrompt(cfg session.Config) string {
	var prompt strings.Builder

	prompt.WriteString("Prepare questions for a mock job interview.\n\n")

	prompt.WriteString("CANDIDATE:\n")
	prompt.WriteString(fmt.Sprintf("- Role: %s\n", cfg.Role))
	prompt.WriteString(fmt.Sprintf("- Experience level: %s\n", cfg.ExperienceLevel))
	if len(cfg.TechStack) > 0 {
		prompt.WriteString(fmt.Sprintf("- Tech stack: %s\n", strings.Join(cfg.TechStack, ", ")))
	}
	if extra := strings.TrimSpace(cfg.Context); extra != "" {
		prompt.WriteString(fmt.Sprintf("- Additional context: %s\n", extra))
	}
	prompt.WriteString("\n")

	prompt.WriteString("RULES:\n")
	prompt.WriteString(fmt.Sprintf("1. Write EXACTLY %d questions\n", cfg.QuestionCount))
	prompt.WriteString("2. Order them from warm-up to the hardest one\n")
	prompt.WriteString("3. Mix technical, design and behavioral questions that fit the role and level\n")
	prompt.WriteString("4. Each question must be answerable out loud in two or three minutes\n")
	prompt.WriteString("5. One question per entry, no numbering\n\n")

	prompt.WriteString(`ANSWER FORMAT (JSON only):
{"questions": ["first question", "second question"]}`)

	return prompt.String()
}

// AnalyzeAnswerPrompt - промпт для разбора одного ответа кандидата
func AnalyzeAnswerPrompt(req session.AnalysisRequest) string {
	var prompt strings.Builder

	prompt.WriteString(fmt.Sprintf("Evaluate a candidate's spoken answer in a mock interview for the role \"%s\" (%s level).\n\n", req.Role, req.ExperienceLevel))

	prompt.WriteString(fmt.Sprintf("QUESTION %d:\n%s\n\n", req.QuestionIndex+1, req.Question))
	prompt.WriteString(fmt.Sprintf("ANSWER (speech transcript, may contain recognition errors):\n%s\n\n", req.Answer))

	prompt.WriteString("SCORING:\n")
	prompt.WriteString(fmt.Sprintf("- Every score is a number from %g to %g\n", session.MinScore, session.MaxScore))
	prompt.WriteString("- clarity: structure and ease of following the answer\n")
	prompt.WriteString("- relevance: how well the answer addresses the question\n")
	prompt.WriteString("- confidence: how assured and specific the candidate sounds\n")
	prompt.WriteString("- overall_score: your overall judgement, not necessarily the mean\n")
	prompt.WriteString("- Judge against the expectations of the stated experience level\n\n")

	prompt.WriteString(`ANSWER FORMAT (JSON only):
{
  "overall_score": 7,
  "clarity": 7,
  "relevance": 8,
  "confidence": 6,
  "strengths": ["concrete strength"],
  "improvements": ["concrete improvement"],
  "comment": "two or three sentences of feedback addressed to the candidate"
}`)

	return prompt.String()
}

// SessionSummaryPrompt - промпт для развернутого итогового разбора сессии
func SessionSummaryPrompt(cfg session.Config, questions []string, result session.Result) string {
	var prompt strings.Builder

	prompt.WriteString(fmt.Sprintf("Write a final review of a mock interview for the role \"%s\" (%s level).\n\n", cfg.Role, cfg.ExperienceLevel))

	if score, ok := result.Aggregate.Score(); ok {
		prompt.WriteString(fmt.Sprintf("OVERALL SCORE: %.1f of %g\n", score, session.MaxScore))
	} else {
		prompt.WriteString("OVERALL SCORE: not available, no answer was analyzed\n")
	}
	if result.Partial {
		prompt.WriteString("NOTE: some answers were not analyzed, do not invent their scores\n")
	}
	prompt.WriteString("\n")

	feedback := make(map[int]session.AnswerFeedback, len(result.PerQuestion))
	for _, fb := range result.PerQuestion {
		feedback[fb.QuestionIndex] = fb
	}

	prompt.WriteString("QUESTIONS AND PER-ANSWER FEEDBACK:\n")
	for i, question := range questions {
		prompt.WriteString(fmt.Sprintf("%d. %s\n", i+1, question))
		if fb, ok := feedback[i]; ok {
			prompt.WriteString(fmt.Sprintf("   score %.1f; clarity %.1f, relevance %.1f, confidence %.1f\n",
				fb.OverallScore, fb.Clarity, fb.Relevance, fb.Confidence))
			if fb.Comment != "" {
				prompt.WriteString(fmt.Sprintf("   feedback: %s\n", fb.Comment))
			}
		} else {
			prompt.WriteString("   no analysis\n")
		}
	}
	prompt.WriteString("\n")

	if len(result.Transcript) > 0 {
		prompt.WriteString("TRANSCRIPT:\n")
		for _, entry := range result.Transcript {
			prompt.WriteString(fmt.Sprintf("%s: %s\n", entry.Role, entry.Text))
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString(`ANSWER FORMAT (JSON only):
{
  "summary": "one paragraph about the whole interview",
  "strengths": ["recurring strength"],
  "improvements": ["the most valuable thing to practice"],
  "recommendation": "what to do before the real interview"
}`)

	return prompt.String()
}
