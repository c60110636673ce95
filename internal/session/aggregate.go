package session

import "sort"

// Aggregate - итоговая оценка по полученным разборам.
// Scored=false означает "нет данных": OverallScore в этом случае не имеет смысла.
type Aggregate struct {
	OverallScore float64 `json:"overall_score"`
	Scored       bool    `json:"scored"`
	Analyzed     int     `json:"analyzed"`
	Answered     int     `json:"answered"`
	Pending      []int   `json:"pending,omitempty"`
	Failed       []int   `json:"failed,omitempty"`
}

// Score возвращает итоговую оценку и признак ее наличия
func (a Aggregate) Score() (float64, bool) {
	return a.OverallScore, a.Scored
}

// Complete сообщает, что разобраны все ответы без пробелов
func (a Aggregate) Complete() bool {
	return a.Scored && len(a.Pending) == 0 && len(a.Failed) == 0
}

// ComputeAggregate считает среднее арифметическое по полученным разборам.
// Отсутствующие разборы не считаются нулями.
func ComputeAggregate(feedback []AnswerFeedback) Aggregate {
	agg := Aggregate{Analyzed: len(feedback), Answered: len(feedback)}
	if len(feedback) == 0 {
		return agg
	}

	var sum float64
	for _, f := range feedback {
		sum += f.OverallScore
	}
	agg.OverallScore = sum / float64(len(feedback))
	agg.Scored = true
	return agg
}

// aggregateRecords сводит таблицу ответов в итог, сообщая о пробелах
func aggregateRecords(records map[int]*AnswerRecord) (Aggregate, []AnswerFeedback) {
	indexes := make([]int, 0, len(records))
	for idx := range records {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	var (
		feedback []AnswerFeedback
		pending  []int
		failed   []int
	)
	for _, idx := range indexes {
		rec := records[idx]
		switch rec.Status {
		case StatusAnalyzed:
			feedback = append(feedback, *rec.Feedback)
		case StatusFailed:
			failed = append(failed, idx)
		default:
			pending = append(pending, idx)
		}
	}

	agg := ComputeAggregate(feedback)
	agg.Answered = len(records)
	agg.Pending = pending
	agg.Failed = failed
	return agg, feedback
}
