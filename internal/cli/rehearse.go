package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"interview-coach/internal/session"
	"interview-coach/internal/transcription"
)

var rehearseFlags struct {
	role     string
	stack    []string
	level    string
	count    int
	context  string
	mic      bool
	answers  string
	noReport bool
}

var rehearseCmd = &cobra.Command{
	Use:   "rehearse",
	Short: "Пройти тренировочное интервью в терминале",
	Long: `Генерирует вопросы и проводит звонок прямо в терминале.

По умолчанию каждая строка ввода - ответ на текущий вопрос, "end" или
конец ввода завершает звонок. С --mic речь распознается через Deepgram,
а Enter или "end" завершает звонок. С --answers ответы читаются из файла
построчно.`,
	RunE: runRehearse,
}

func init() {
	f := rehearseCmd.Flags()
	f.StringVar(&rehearseFlags.role, "role", "", "Целевая роль, например \"Backend Developer\"")
	f.StringSliceVar(&rehearseFlags.stack, "stack", nil, "Технологии через запятую")
	f.StringVar(&rehearseFlags.level, "level", "middle", "Уровень кандидата")
	f.IntVar(&rehearseFlags.count, "count", 0, "Количество вопросов (по умолчанию из конфигурации)")
	f.StringVar(&rehearseFlags.context, "context", "", "Дополнительные пожелания к вопросам")
	f.BoolVar(&rehearseFlags.mic, "mic", false, "Отвечать голосом через микрофон")
	f.StringVar(&rehearseFlags.answers, "answers", "", "Файл с ответами, по одному на строку")
	f.BoolVar(&rehearseFlags.noReport, "no-report", false, "Не запрашивать развернутый итоговый отчет")
	_ = rehearseCmd.MarkFlagRequired("role")
	rehearseCmd.MarkFlagsMutuallyExclusive("mic", "answers")
}

func runRehearse(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	gen, err := a.generator()
	if err != nil {
		return err
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	r := &rehearsal{
		in:     cmd.InOrStdin(),
		out:    cmd.OutOrStdout(),
		report: !rehearseFlags.noReport,
	}
	if f, ok := r.in.(*os.File); ok {
		r.interactive = term.IsTerminal(int(f.Fd()))
	}

	var source transcription.Source
	switch {
	case rehearseFlags.mic:
		source = a.micSource()
		r.mode = modeMic
	case rehearseFlags.answers != "":
		file, err := os.Open(rehearseFlags.answers)
		if err != nil {
			return fmt.Errorf("ошибка открытия файла ответов: %w", err)
		}
		defer file.Close()
		source = transcription.NewLineSource(file)
		r.mode = modeFile
	default:
		r.push = transcription.NewPushSource(0)
		source = r.push
		r.mode = modeTyped
	}

	opts := a.cfg.SessionOptions()
	opts.Saver = store
	opts.Metrics = a.metrics
	opts.Logger = a.log
	r.machine = session.New(gen, source, opts)
	defer func() { _ = r.machine.Close() }()

	cfg := session.Config{
		Role:            rehearseFlags.role,
		TechStack:       rehearseFlags.stack,
		ExperienceLevel: rehearseFlags.level,
		QuestionCount:   rehearseFlags.count,
		Context:         rehearseFlags.context,
	}
	if cfg.QuestionCount == 0 {
		cfg.QuestionCount = a.cfg.Interview.DefaultQuestionCount
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snap, err := r.run(ctx, cfg)
	if err != nil {
		return err
	}
	if snap.SessionID != "" {
		fmt.Fprintf(r.out, "\n💾 Сессия сохранена: %s (interview-coach results show %s)\n", snap.SessionID, snap.SessionID)
	}
	return nil
}

func (a *app) micSource() *transcription.MicSource {
	audio := a.env.Audio
	capture := transcription.NewFFmpegCapture(audio.FFmpegCommand)
	provider := transcription.NewDeepgramProvider(a.env.Deepgram.ProviderConfig())
	return transcription.NewMicSource(capture, provider, transcription.MicOptions{
		Audio:          audio.CaptureConfig(),
		InterimResults: true,
		Logger:         a.log,
	})
}

type inputMode int

const (
	modeTyped inputMode = iota
	modeMic
	modeFile
)

var errInterrupted = errors.New("тренировка прервана")

// rehearsal ведет одну сессию в терминале: печатает события и передает ввод
type rehearsal struct {
	machine *session.Machine
	push    *transcription.PushSource
	mode    inputMode
	in      io.Reader
	out     io.Writer
	report  bool

	// interactive - ввод с терминала, печатаем приглашение
	interactive bool
}

func (r *rehearsal) run(ctx context.Context, cfg session.Config) (session.Snapshot, error) {
	events := r.machine.Events()

	if err := r.machine.StartGeneration(cfg); err != nil {
		return session.Snapshot{}, err
	}
	fmt.Fprintf(r.out, "🔧 Готовлю %d вопросов для роли %s (%s)...\n", cfg.QuestionCount, cfg.Role, cfg.ExperienceLevel)

	if err := r.await(ctx, events, func(ev session.Event) (bool, error) {
		switch e := ev.(type) {
		case session.QuestionsReady:
			return true, nil
		case session.GenerationFailed:
			return true, e.Err
		}
		return false, nil
	}); err != nil {
		return session.Snapshot{}, err
	}

	if err := r.machine.StartCall(); err != nil {
		return session.Snapshot{}, err
	}
	if err := r.call(ctx, events); err != nil {
		return session.Snapshot{}, err
	}

	if err := r.await(ctx, events, func(ev session.Event) (bool, error) {
		switch e := ev.(type) {
		case session.FeedbackReady:
			return true, nil
		case session.ErrorOccurred:
			return true, e.Err
		}
		return false, nil
	}); err != nil {
		return session.Snapshot{}, err
	}

	if r.report {
		fmt.Fprintln(r.out, "\n🧠 Готовлю развернутый отчет...")
		if err := r.machine.RequestDetailedReport(); err != nil {
			return session.Snapshot{}, err
		}
		err := r.await(ctx, events, func(ev session.Event) (bool, error) {
			switch ev.(type) {
			case session.ReportReady, session.ReportFailed:
				return true, nil
			}
			return false, nil
		})
		if err != nil {
			return session.Snapshot{}, err
		}
	}

	return r.machine.Snapshot(), nil
}

// call передает ответы в звонок до его окончания.
// Ввод читается только после начала звонка.
func (r *rehearsal) call(ctx context.Context, events <-chan session.Event) error {
	stop := make(chan struct{})
	defer close(stop)

	var lines <-chan string
	startInput := func() {
		switch r.mode {
		case modeTyped:
			fmt.Fprintln(r.out, "✍️  Отвечайте строкой текста, \"end\" завершает звонок")
			lines = readLines(r.in, stop)
		case modeMic:
			fmt.Fprintln(r.out, "🎙  Отвечайте голосом, Enter или \"end\" завершает звонок")
			lines = readLines(r.in, stop)
		}
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return session.ErrClosed
			}
			r.print(ev)
			switch e := ev.(type) {
			case session.CallStarted:
				startInput()
			case session.CallEnded:
				return nil
			case session.ErrorOccurred:
				return e.Err
			}
		case line, ok := <-lines:
			text := strings.TrimSpace(line)
			if !ok || strings.EqualFold(text, "end") || (r.mode == modeMic && text == "") {
				lines = nil
				if err := r.machine.EndCall(); err != nil {
					return err
				}
				continue
			}
			if r.push != nil && text != "" {
				if err := r.push.Push(transcription.KindFinal, text); err != nil {
					fmt.Fprintf(r.out, "⚠️ ответ не принят: %v\n", err)
				}
			}
		case <-ctx.Done():
			return errInterrupted
		}
	}
}

// await печатает события, пока done не вернет true
func (r *rehearsal) await(ctx context.Context, events <-chan session.Event, done func(session.Event) (bool, error)) error {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return session.ErrClosed
			}
			r.print(ev)
			if stop, err := done(ev); stop {
				return err
			}
		case <-ctx.Done():
			return errInterrupted
		}
	}
}

func readLines(in io.Reader, stop <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
	}()
	return lines
}

func (r *rehearsal) print(ev session.Event) {
	switch e := ev.(type) {
	case session.QuestionsReady:
		fmt.Fprintf(r.out, "✅ Вопросы готовы: %d\n", len(e.Questions))
	case session.GenerationFailed:
		fmt.Fprintf(r.out, "❌ Не удалось подготовить вопросы: %v\n", e.Err)
	case session.CallStarted:
		fmt.Fprintln(r.out, "\n📞 Звонок начался")
	case session.MessageReceived:
		if e.Entry.Role == session.RoleInterviewer {
			fmt.Fprintf(r.out, "\n🤖 Вопрос %d: %s\n", questionNumber(e.Entry.QuestionIndex), e.Entry.Text)
			if r.interactive && r.mode == modeTyped {
				fmt.Fprint(r.out, "> ")
			}
		} else if r.mode != modeTyped {
			fmt.Fprintf(r.out, "🙂 %s\n", e.Entry.Text)
		}
	case session.InterimTranscript:
		if verbose {
			fmt.Fprintf(r.out, "   … %s\n", e.Text)
		}
	case session.AnalysisCompleted:
		fmt.Fprintf(r.out, "   📝 ответ %d разобран: %.1f/10\n", e.Feedback.QuestionIndex+1, e.Feedback.OverallScore)
	case session.AnalysisFailed:
		fmt.Fprintf(r.out, "   ⚠️ разбор ответа %d не удался: %v\n", e.QuestionIndex+1, e.Err)
	case session.TranscriptionFailed:
		if r.mode == modeFile {
			fmt.Fprintln(r.out, "📄 Ответы из файла закончились")
		} else {
			fmt.Fprintf(r.out, "⚠️ Распознавание прервалось на вопросе %d: %v\n", e.QuestionIndex+1, e.Err)
		}
	case session.CallEnded:
		fmt.Fprintln(r.out, "\n📴 Звонок завершен, жду разборы...")
	case session.FeedbackReady:
		printResult(r.out, e.Result)
	case session.ReportReady:
		printReport(r.out, e.Report)
	case session.ReportFailed:
		fmt.Fprintf(r.out, "⚠️ Отчет не получен: %v\n", e.Err)
	case session.ErrorOccurred:
		fmt.Fprintf(r.out, "❌ Ошибка: %v\n", e.Err)
	}
}

func questionNumber(idx *int) int {
	if idx == nil {
		return 0
	}
	return *idx + 1
}

func printResult(out io.Writer, result session.Result) {
	fmt.Fprintln(out, "\n📊 Итоги интервью")
	if score, ok := result.Aggregate.Score(); ok {
		fmt.Fprintf(out, "• Общая оценка: %.1f/10 (разобрано ответов: %d)\n", score, result.Aggregate.Analyzed)
	} else {
		fmt.Fprintln(out, "• Общая оценка: нет, ни один ответ не разобран")
	}
	if len(result.Aggregate.Pending) > 0 {
		fmt.Fprintf(out, "• Не дождались разбора: %s\n", joinNumbers(result.Aggregate.Pending))
	}
	if len(result.Aggregate.Failed) > 0 {
		fmt.Fprintf(out, "• Разбор не удался: %s\n", joinNumbers(result.Aggregate.Failed))
	}
	for _, fb := range result.PerQuestion {
		fmt.Fprintf(out, "\n%d. %.1f/10 (ясность %.1f, по существу %.1f, уверенность %.1f)\n",
			fb.QuestionIndex+1, fb.OverallScore, fb.Clarity, fb.Relevance, fb.Confidence)
		if fb.Comment != "" {
			fmt.Fprintf(out, "   %s\n", fb.Comment)
		}
		for _, s := range fb.Strengths {
			fmt.Fprintf(out, "   + %s\n", s)
		}
		for _, s := range fb.Improvements {
			fmt.Fprintf(out, "   - %s\n", s)
		}
	}
}

func printReport(out io.Writer, report session.Report) {
	fmt.Fprintln(out, "\n🎯 Итоговый отчет")
	fmt.Fprintln(out, report.Summary)
	if len(report.Strengths) > 0 {
		fmt.Fprintln(out, "\nСильные стороны:")
		for _, s := range report.Strengths {
			fmt.Fprintf(out, "• %s\n", s)
		}
	}
	if len(report.Improvements) > 0 {
		fmt.Fprintln(out, "\nЧто улучшить:")
		for _, s := range report.Improvements {
			fmt.Fprintf(out, "• %s\n", s)
		}
	}
	if report.Recommendation != "" {
		fmt.Fprintf(out, "\nРекомендация: %s\n", report.Recommendation)
	}
}

func joinNumbers(indexes []int) string {
	parts := make([]string, len(indexes))
	for i, idx := range indexes {
		parts[i] = fmt.Sprintf("%d", idx+1)
	}
	return strings.Join(parts, ", ")
}

