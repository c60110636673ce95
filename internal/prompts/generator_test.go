package prompts

import (
	"strings"
	"testing"

	"interview-coach/internal/session"
)

func TestGenerateQuestionsPrompt(t *testing.T) {
	prompt := GenerateQuestionsPrompt(session.Config{
		Role:            "Frontend Developer",
		TechStack:       []string{"React", "TypeScript"},
		ExperienceLevel: "intermediate",
		QuestionCount:   5,
		Context:         "fintech startup",
	})

	for _, want := range []string{"Frontend Developer", "React, TypeScript", "intermediate", "EXACTLY 5", "fintech startup", `"questions"`} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("expected %q in prompt:\n%s", want, prompt)
		}
	}
}

func TestGenerateQuestionsPromptOmitsEmptyFields(t *testing.T) {
	prompt := GenerateQuestionsPrompt(session.Config{Role: "SRE", ExperienceLevel: "senior", QuestionCount: 3})
	if strings.Contains(prompt, "Tech stack") || strings.Contains(prompt, "Additional context") {
		t.Fatalf("expected empty fields to be omitted:\n%s", prompt)
	}
}

func TestAnalyzeAnswerPrompt(t *testing.T) {
	prompt := AnalyzeAnswerPrompt(session.AnalysisRequest{
		QuestionIndex:   1,
		Question:        "How do you test components?",
		Answer:          "With testing library",
		Role:            "Frontend Developer",
		ExperienceLevel: "junior",
	})

	for _, want := range []string{"QUESTION 2", "How do you test components?", "With testing library", "junior", "overall_score"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("expected %q in prompt:\n%s", want, prompt)
		}
	}
}

func TestSessionSummaryPrompt(t *testing.T) {
	result := session.Result{
		Aggregate:   session.ComputeAggregate([]session.AnswerFeedback{{QuestionIndex: 0, OverallScore: 8, Comment: "clear"}}),
		PerQuestion: []session.AnswerFeedback{{QuestionIndex: 0, OverallScore: 8, Comment: "clear"}},
		Partial:     true,
		Transcript: []session.TranscriptEntry{
			{Role: session.RoleInterviewer, Text: "first?"},
			{Role: session.RoleCandidate, Text: "answer"},
		},
	}
	prompt := SessionSummaryPrompt(session.Config{Role: "Backend", ExperienceLevel: "senior"}, []string{"first?", "second?"}, result)

	for _, want := range []string{"OVERALL SCORE: 8.0", "some answers were not analyzed", "feedback: clear", "2. second?\n   no analysis", "candidate: answer"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("expected %q in prompt:\n%s", want, prompt)
		}
	}
}

func TestSessionSummaryPromptWithoutScore(t *testing.T) {
	prompt := SessionSummaryPrompt(session.Config{Role: "Backend", ExperienceLevel: "senior"}, []string{"q"}, session.Result{})
	if !strings.Contains(prompt, "not available") {
		t.Fatalf("expected missing score note:\n%s", prompt)
	}
}
