package metrics

import "testing"

func TestMetricsCounters(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.IncrementSessionsStarted()
	m.IncrementSessionsStarted()
	m.IncrementSessionsCompleted()
	m.IncrementQuestionsAsked()
	m.IncrementAnswersAnalyzed()
	m.IncrementAnswersFailed()
	m.IncrementGenerationFailures()
	m.IncrementAPICall(true)
	m.IncrementAPICall(false)

	snap := m.GetSnapshot()
	if snap.SessionsStarted != 2 {
		t.Fatalf("expected 2 sessions started, got %d", snap.SessionsStarted)
	}
	if snap.SessionsCompleted != 1 || snap.QuestionsAsked != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.AnswersAnalyzed != 1 || snap.AnswersFailed != 1 || snap.GenerationFailures != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.APICallsTotal != 2 || snap.APICallsSuccessful != 1 {
		t.Fatalf("unexpected api counters: %+v", snap)
	}
	if snap.LastUpdateTime.IsZero() {
		t.Fatalf("expected last update time")
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.IncrementSessionsStarted()
	m.IncrementAPICall(true)
	if snap := m.GetSnapshot(); snap.SessionsStarted != 0 {
		t.Fatalf("expected zero snapshot, got %+v", snap)
	}
}
