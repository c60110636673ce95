package session

// Event - закрытое множество событий, которые машина отдает интерфейсу.
// Реализации ниже - полный список.
type Event interface {
	// Name возвращает стабильное имя события для транспорта
	Name() string
	sealed()
}

type StageChanged struct {
	From Stage `json:"from"`
	To   Stage `json:"to"`
}

type QuestionsReady struct {
	Questions []string `json:"questions"`
}

type GenerationFailed struct {
	Err error `json:"-"`
}

type CallStarted struct{}

// CallEnded сообщает об окончании звонка; Interrupted=true если звонок оборвался
type CallEnded struct {
	Interrupted bool `json:"interrupted"`
}

type MessageReceived struct {
	Entry TranscriptEntry `json:"entry"`
}

// InterimTranscript - промежуточный текст распознавания, только для отображения
type InterimTranscript struct {
	Text string `json:"text"`
}

type AnalysisCompleted struct {
	Feedback AnswerFeedback `json:"feedback"`
}

type AnalysisFailed struct {
	QuestionIndex int   `json:"question_index"`
	Err           error `json:"-"`
}

// TranscriptionFailed предлагает интерфейсу повторить затронутый вопрос
type TranscriptionFailed struct {
	QuestionIndex int   `json:"question_index"`
	Err           error `json:"-"`
}

type FeedbackReady struct {
	Result Result `json:"result"`
}

type ReportReady struct {
	Report Report `json:"report"`
}

type ReportFailed struct {
	Err error `json:"-"`
}

// ErrorOccurred - фатальная ошибка, после которой машина вернулась в безопасную стадию
type ErrorOccurred struct {
	Stage Stage `json:"stage"`
	Err   error `json:"-"`
}

func (StageChanged) Name() string        { return "stage_changed" }
func (QuestionsReady) Name() string      { return "questions_ready" }
func (GenerationFailed) Name() string    { return "generation_failed" }
func (CallStarted) Name() string         { return "call_started" }
func (CallEnded) Name() string           { return "call_ended" }
func (MessageReceived) Name() string     { return "message_received" }
func (InterimTranscript) Name() string   { return "interim_transcript" }
func (AnalysisCompleted) Name() string   { return "analysis_completed" }
func (AnalysisFailed) Name() string      { return "analysis_failed" }
func (TranscriptionFailed) Name() string { return "transcription_failed" }
func (FeedbackReady) Name() string       { return "feedback_ready" }
func (ReportReady) Name() string         { return "report_ready" }
func (ReportFailed) Name() string        { return "report_failed" }
func (ErrorOccurred) Name() string       { return "error" }

func (StageChanged) sealed()        {}
func (QuestionsReady) sealed()      {}
func (GenerationFailed) sealed()    {}
func (CallStarted) sealed()         {}
func (CallEnded) sealed()           {}
func (MessageReceived) sealed()     {}
func (InterimTranscript) sealed()   {}
func (AnalysisCompleted) sealed()   {}
func (AnalysisFailed) sealed()      {}
func (TranscriptionFailed) sealed() {}
func (FeedbackReady) sealed()       {}
func (ReportReady) sealed()         {}
func (ReportFailed) sealed()        {}
func (ErrorOccurred) sealed()       {}
