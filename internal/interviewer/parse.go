package interviewer

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"interview-coach/internal/api"
	"interview-coach/internal/session"
)

// ErrContract - ответ модели не соответствует ожидаемой структуре
var ErrContract = errors.New("response violates contract")

func contractErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrContract, fmt.Sprintf(format, args...))
}

// parseQuestions принимает JSON-массив строк или объект {"questions": [...]}
func parseQuestions(content string, want int) ([]string, error) {
	content = api.CleanJSONResponse(content)

	var questions []string
	if strings.HasPrefix(content, "[") {
		if err := json.Unmarshal([]byte(content), &questions); err != nil {
			return nil, contractErr("questions are not a JSON array of strings: %v", err)
		}
	} else {
		var wrapped struct {
			Questions *[]string `json:"questions"`
		}
		if err := json.Unmarshal([]byte(content), &wrapped); err != nil {
			return nil, contractErr("questions response is not valid JSON: %v", err)
		}
		if wrapped.Questions == nil {
			return nil, contractErr("questions field is missing")
		}
		questions = *wrapped.Questions
	}

	if len(questions) != want {
		return nil, contractErr("got %d questions, want %d", len(questions), want)
	}
	for i, q := range questions {
		q = strings.TrimSpace(q)
		if q == "" {
			return nil, contractErr("question %d is empty", i)
		}
		questions[i] = q
	}
	return questions, nil
}

type feedbackPayload struct {
	OverallScore *float64 `json:"overall_score"`
	Clarity      *float64 `json:"clarity"`
	Relevance    *float64 `json:"relevance"`
	Confidence   *float64 `json:"confidence"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	Comment      string   `json:"comment"`
}

// parseFeedback требует все четыре оценки в допустимых границах
func parseFeedback(content string) (session.AnswerFeedback, error) {
	var payload feedbackPayload
	if err := json.Unmarshal([]byte(api.CleanJSONResponse(content)), &payload); err != nil {
		return session.AnswerFeedback{}, contractErr("feedback is not valid JSON: %v", err)
	}

	scores := []struct {
		name  string
		value *float64
	}{
		{"overall_score", payload.OverallScore},
		{"clarity", payload.Clarity},
		{"relevance", payload.Relevance},
		{"confidence", payload.Confidence},
	}
	for _, s := range scores {
		if s.value == nil {
			return session.AnswerFeedback{}, contractErr("%s is missing", s.name)
		}
		if v := *s.value; math.IsNaN(v) || v < session.MinScore || v > session.MaxScore {
			return session.AnswerFeedback{}, contractErr("%s out of range: %v", s.name, v)
		}
	}

	return session.AnswerFeedback{
		OverallScore: *payload.OverallScore,
		Clarity:      *payload.Clarity,
		Relevance:    *payload.Relevance,
		Confidence:   *payload.Confidence,
		Strengths:    cleanList(payload.Strengths),
		Improvements: cleanList(payload.Improvements),
		Comment:      strings.TrimSpace(payload.Comment),
	}, nil
}

// parseReport требует непустое summary
func parseReport(content string) (session.Report, error) {
	var report session.Report
	if err := json.Unmarshal([]byte(api.CleanJSONResponse(content)), &report); err != nil {
		return session.Report{}, contractErr("report is not valid JSON: %v", err)
	}
	report.Summary = strings.TrimSpace(report.Summary)
	if report.Summary == "" {
		return session.Report{}, contractErr("summary is missing")
	}
	report.Strengths = cleanList(report.Strengths)
	report.Improvements = cleanList(report.Improvements)
	report.Recommendation = strings.TrimSpace(report.Recommendation)
	return report, nil
}

func cleanList(items []string) []string {
	var out []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
