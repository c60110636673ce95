package telegram

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"interview-coach/internal/ratelimit"
	"interview-coach/internal/session"
	"interview-coach/internal/transcription"
)

const maxMessageLength = 4000

// Sender отправляет текст в чат
type Sender interface {
	SendMessage(chatID int64, text string) error
}

// HandlerOptions настраивает обработчик чата
type HandlerOptions struct {
	Generator session.Generator

	// Session - шаблон опций машины для каждого чата
	Session              session.Options
	DefaultQuestionCount int
	Logger               *slog.Logger
}

type Handler struct {
	sender        Sender
	opts          HandlerOptions
	log           *slog.Logger
	sessions      map[int64]*chatSession
	sessionsMutex sync.RWMutex
	rateLimiter   *ratelimit.RateLimiter
	now           func() time.Time
	stopCleanup   chan struct{}
	stopOnce      sync.Once
}

func NewHandler(sender Sender, opts HandlerOptions) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DefaultQuestionCount <= 0 {
		opts.DefaultQuestionCount = 5
	}
	h := &Handler{
		sender:      sender,
		opts:        opts,
		log:         opts.Logger.With("component", "telegram"),
		sessions:    make(map[int64]*chatSession),
		rateLimiter: ratelimit.NewRateLimiter(10, time.Minute),
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
	h.startSessionCleanup()
	return h
}

func (h *Handler) startSessionCleanup() {
	ticker := time.NewTicker(1 * time.Hour)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.cleanupInactiveSessions()
			case <-h.stopCleanup:
				return
			}
		}
	}()
}

func (h *Handler) cleanupInactiveSessions() {
	cutoff := h.now().Add(-24 * time.Hour)

	h.sessionsMutex.Lock()
	var stale []*chatSession
	for chatID, sess := range h.sessions {
		if sess.idleSince().Before(cutoff) {
			stale = append(stale, sess)
			delete(h.sessions, chatID)
		}
	}
	h.sessionsMutex.Unlock()

	for _, sess := range stale {
		sess.close()
	}
}

// Close останавливает все сессии чатов
func (h *Handler) Close() {
	h.stopOnce.Do(func() { close(h.stopCleanup) })

	h.sessionsMutex.Lock()
	sessions := h.sessions
	h.sessions = make(map[int64]*chatSession)
	h.sessionsMutex.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
}

func (h *Handler) HandleUpdate(update Update) {
	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return
	}
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID
	text := strings.TrimSpace(update.Message.Text)
	if text == "" {
		return
	}

	if !h.rateLimiter.IsAllowed(strconv.FormatInt(userID, 10)) {
		h.send(chatID, "⏳ Слишком много сообщений. Пожалуйста, подождите минуту.")
		return
	}

	if strings.HasPrefix(text, "/") {
		h.handleCommand(chatID, text)
		return
	}
	h.handleUserInput(chatID, text)
}

func (h *Handler) send(chatID int64, text string) {
	if err := h.sender.SendMessage(chatID, text); err != nil {
		h.log.Warn("failed to send telegram message", "chat_id", chatID, "error", err)
	}
}

// handleCommand обрабатывает команды бота
func (h *Handler) handleCommand(chatID int64, text string) {
	command, args, _ := strings.Cut(text, " ")
	// в группах команда приходит как /cmd@bot
	command, _, _ = strings.Cut(command, "@")

	switch command {
	case "/start", "/help":
		h.handleHelpCommand(chatID)
	case "/interview":
		h.handleInterviewCommand(chatID, args)
	case "/call":
		h.withSession(chatID, (*session.Machine).StartCall)
	case "/end":
		h.withSession(chatID, (*session.Machine).EndCall)
	case "/resume":
		h.handleResumeCommand(chatID, args)
	case "/report":
		h.withSession(chatID, (*session.Machine).RequestDetailedReport)
	case "/retry":
		h.withSession(chatID, (*session.Machine).RetrySameQuestions)
	case "/status":
		h.handleStatusCommand(chatID)
	case "/stop":
		h.handleStopCommand(chatID)
	default:
		h.send(chatID, "Неизвестная команда. Используйте /help для получения списка команд.")
	}
}

// handleHelpCommand обрабатывает команду /help
func (h *Handler) handleHelpCommand(chatID int64) {
	helpText := `🤖 Тренажер собеседований

Команды:
/interview роль; уровень; стек; число вопросов - начать новое интервью
  например: /interview Backend Developer; senior; Go, PostgreSQL; 5
/end - завершить звонок и получить оценку
/resume [номер] - продолжить прерванный звонок, ответы сохраняются
/report - развернутый итоговый отчет
/retry - пройти те же вопросы заново (затем /call)
/call - начать звонок с готовыми вопросами
/status - текущая стадия
/stop - остановить интервью
/help - показать это сообщение

Как это работает:
1. Бот генерирует вопросы под вашу роль и уровень
2. Каждый вопрос приходит отдельным сообщением, отвечайте текстом
3. Каждый ответ разбирается сразу, оценка от 0 до 10
4. После /end вы получите общую оценку по всем ответам`

	h.send(chatID, helpText)
}

// parseInterviewArgs разбирает "роль; уровень; стек; число"
func (h *Handler) parseInterviewArgs(args string) (session.Config, error) {
	parts := strings.Split(args, ";")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	cfg := session.Config{QuestionCount: h.opts.DefaultQuestionCount}
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return cfg, fmt.Errorf("укажите хотя бы роль и уровень: /interview Backend Developer; senior")
	}
	cfg.Role = parts[0]
	cfg.ExperienceLevel = parts[1]
	if len(parts) > 2 && parts[2] != "" {
		for _, tech := range strings.Split(parts[2], ",") {
			if tech = strings.TrimSpace(tech); tech != "" {
				cfg.TechStack = append(cfg.TechStack, tech)
			}
		}
	}
	if len(parts) > 3 && parts[3] != "" {
		n, err := strconv.Atoi(parts[3])
		if err != nil {
			return cfg, fmt.Errorf("число вопросов должно быть целым: %q", parts[3])
		}
		cfg.QuestionCount = n
	}
	return cfg, nil
}

func (h *Handler) handleInterviewCommand(chatID int64, args string) {
	cfg, err := h.parseInterviewArgs(args)
	if err != nil {
		h.send(chatID, "❌ "+err.Error())
		return
	}

	sess := h.newSession(chatID)
	if err := sess.machine.StartGeneration(cfg); err != nil {
		go h.forwardEvents(sess)
		sess.close()
		h.send(chatID, "❌ "+err.Error())
		return
	}

	// события машины копятся в ее очереди, пока чат не узнал о подготовке
	h.send(chatID, fmt.Sprintf("🔧 Готовлю %d вопросов для роли %s (%s)...", cfg.QuestionCount, cfg.Role, cfg.ExperienceLevel))
	go h.forwardEvents(sess)

	h.sessionsMutex.Lock()
	previous := h.sessions[chatID]
	h.sessions[chatID] = sess
	h.sessionsMutex.Unlock()
	if previous != nil {
		previous.close()
	}
}

func (h *Handler) newSession(chatID int64) *chatSession {
	push := transcription.NewPushSource(0)
	opts := h.opts.Session
	if opts.Logger == nil {
		opts.Logger = h.opts.Logger
	}
	sess := &chatSession{
		chatID:       chatID,
		machine:      session.New(h.opts.Generator, push, opts),
		push:         push,
		done:         make(chan struct{}),
		lastActivity: h.now(),
	}
	return sess
}

func (h *Handler) lookup(chatID int64) *chatSession {
	h.sessionsMutex.RLock()
	sess := h.sessions[chatID]
	h.sessionsMutex.RUnlock()
	if sess != nil {
		sess.touch(h.now())
	}
	return sess
}

func (h *Handler) withSession(chatID int64, fn func(*session.Machine) error) {
	sess := h.lookup(chatID)
	if sess == nil {
		h.send(chatID, "Интервью не начато. Используйте /interview для начала.")
		return
	}
	if err := fn(sess.machine); err != nil {
		h.send(chatID, "❌ "+err.Error())
	}
}

// handleResumeCommand продолжает оборвавшийся звонок с указанного вопроса
func (h *Handler) handleResumeCommand(chatID int64, args string) {
	sess := h.lookup(chatID)
	if sess == nil {
		h.send(chatID, "Интервью не начато. Используйте /interview для начала.")
		return
	}
	snap := sess.machine.Snapshot()
	if !snap.Interrupted {
		h.send(chatID, "Звонок не прерывался, продолжать нечего.")
		return
	}

	idx := snap.QuestionIndex
	if args = strings.TrimSpace(args); args != "" {
		n, err := strconv.Atoi(args)
		if err != nil || n < 1 || n > len(snap.Questions) {
			h.send(chatID, fmt.Sprintf("❌ Номер вопроса должен быть от 1 до %d", len(snap.Questions)))
			return
		}
		idx = n - 1
	}
	if rec, ok := snap.Answers[idx]; ok && rec.Status != session.StatusFailed {
		h.send(chatID, fmt.Sprintf("На вопрос %d уже есть ответ.", idx+1))
		return
	}
	if idx > snap.QuestionIndex {
		h.send(chatID, fmt.Sprintf("Вопрос %d еще не задавался.", idx+1))
		return
	}

	h.send(chatID, fmt.Sprintf("🔁 Продолжаем с вопроса %d", idx+1))
	if err := sess.machine.ResumeCall(idx); err != nil {
		h.send(chatID, "❌ "+err.Error())
	}
}

// handleStatusCommand показывает статус интервью
func (h *Handler) handleStatusCommand(chatID int64) {
	sess := h.lookup(chatID)
	if sess == nil {
		h.send(chatID, "Интервью не начато. Используйте /interview для начала.")
		return
	}
	snap := sess.machine.Snapshot()
	progress := fmt.Sprintf("📊 Статус интервью\n\n⏰ Стадия: %s", getStageDescription(snap.Stage))
	if snap.SessionID != "" {
		progress += "\n🆔 ID: " + snap.SessionID
	}
	if snap.Stage == session.StageCalling && snap.QuestionIndex >= 0 {
		progress += fmt.Sprintf("\n❓ Вопрос: %d/%d", snap.QuestionIndex+1, len(snap.Questions))
	}
	if snap.Result != nil {
		if score, ok := snap.Result.Aggregate.Score(); ok {
			progress += fmt.Sprintf("\n🎯 Оценка: %.1f/10", score)
		}
	}
	h.send(chatID, progress)
}

// handleStopCommand останавливает интервью
func (h *Handler) handleStopCommand(chatID int64) {
	h.sessionsMutex.Lock()
	sess := h.sessions[chatID]
	delete(h.sessions, chatID)
	h.sessionsMutex.Unlock()

	if sess == nil {
		h.send(chatID, "Интервью не запущено.")
		return
	}
	sess.close()
	h.send(chatID, "🛑 Интервью остановлено.")
}

// validateUserInput проверяет ответ перед отправкой в звонок
func validateUserInput(text string) error {
	if len(text) > maxMessageLength {
		return fmt.Errorf("сообщение слишком длинное (максимум %d символов)", maxMessageLength)
	}

	// Проверка на спам/повторяющиеся символы
	if len(text) > 10 && strings.Count(text, text[:1]) > len(text)*8/10 {
		return fmt.Errorf("сообщение содержит слишком много повторяющихся символов")
	}

	return nil
}

// handleUserInput передает ответ кандидата в звонок
func (h *Handler) handleUserInput(chatID int64, text string) {
	sess := h.lookup(chatID)
	if sess == nil || !sess.push.Active() {
		h.send(chatID, "Сейчас не время для ответов. Используйте /interview для начала интервью или /help для помощи.")
		return
	}

	if err := validateUserInput(text); err != nil {
		h.send(chatID, "❌ "+err.Error())
		return
	}

	if err := sess.push.Push(transcription.KindFinal, text); err != nil {
		h.send(chatID, "❌ Ответ не принят: "+err.Error())
	}
}

// forwardEvents переводит события машины в сообщения чата
func (h *Handler) forwardEvents(sess *chatSession) {
	defer close(sess.done)
	for ev := range sess.machine.Events() {
		switch e := ev.(type) {
		case session.QuestionsReady:
			sess.setQuestions(len(e.Questions))
			h.send(sess.chatID, fmt.Sprintf("✅ Вопросы готовы: %d. Начинаем, отвечайте на каждый вопрос сообщением, /end завершает звонок.", len(e.Questions)))
			if err := sess.machine.StartCall(); err != nil {
				h.log.Debug("start call after questions skipped", "chat_id", sess.chatID, "error", err)
			}
		case session.GenerationFailed:
			h.send(sess.chatID, "❌ Не удалось подготовить вопросы: "+e.Err.Error()+"\nПопробуйте /interview еще раз.")
		case session.MessageReceived:
			if e.Entry.Role == session.RoleInterviewer && e.Entry.QuestionIndex != nil {
				h.send(sess.chatID, fmt.Sprintf("❓ Вопрос %d/%d\n\n%s", *e.Entry.QuestionIndex+1, sess.total(), e.Entry.Text))
			}
		case session.AnalysisCompleted:
			h.send(sess.chatID, fmt.Sprintf("📝 Ответ %d разобран: %.1f/10", e.Feedback.QuestionIndex+1, e.Feedback.OverallScore))
		case session.AnalysisFailed:
			h.send(sess.chatID, fmt.Sprintf("⚠️ Разбор ответа %d не удался, оценка будет без него", e.QuestionIndex+1))
		case session.TranscriptionFailed:
			h.send(sess.chatID, fmt.Sprintf("⚠️ Звонок прервался: %s\n/resume - продолжить с вопроса %d", e.Err.Error(), e.QuestionIndex+1))
		case session.CallEnded:
			h.send(sess.chatID, "📴 Звонок завершен, жду разборы ответов...")
		case session.FeedbackReady:
			h.send(sess.chatID, formatResult(e.Result)+"\n\n/report - развернутый отчет, /retry - пройти заново")
		case session.ReportReady:
			h.send(sess.chatID, formatReport(e.Report))
		case session.ReportFailed:
			h.send(sess.chatID, "⚠️ Отчет не получен, попробуйте /report еще раз")
		case session.ErrorOccurred:
			h.send(sess.chatID, "❌ Ошибка: "+e.Err.Error())
		}
	}
}

func getStageDescription(stage session.Stage) string {
	switch stage {
	case session.StageIdle:
		return "не начато"
	case session.StageGenerating:
		return "генерация вопросов"
	case session.StageReady:
		return "вопросы готовы, /call для начала"
	case session.StageCalling:
		return "идет звонок"
	case session.StageAnalyzing:
		return "разбор ответов"
	case session.StageFeedback:
		return "оценка готова"
	case session.StageDone:
		return "завершено"
	default:
		return string(stage)
	}
}

func formatResult(result session.Result) string {
	var b strings.Builder
	b.WriteString("📊 Итоги интервью\n")
	if score, ok := result.Aggregate.Score(); ok {
		b.WriteString(fmt.Sprintf("\n🎯 Общая оценка: %.1f/10 (разобрано ответов: %d)", score, result.Aggregate.Analyzed))
	} else {
		b.WriteString("\nОбщей оценки нет: ни один ответ не разобран")
	}
	if result.Partial {
		b.WriteString("\n⚠️ Часть ответов осталась без разбора")
	}
	for _, fb := range result.PerQuestion {
		b.WriteString(fmt.Sprintf("\n\n%d. %.1f/10", fb.QuestionIndex+1, fb.OverallScore))
		if fb.Comment != "" {
			b.WriteString("\n" + fb.Comment)
		}
	}
	return b.String()
}

func formatReport(report session.Report) string {
	var b strings.Builder
	b.WriteString("🎯 Итоговый отчет\n\n")
	b.WriteString(report.Summary)
	if len(report.Strengths) > 0 {
		b.WriteString("\n\nСильные стороны:")
		for _, s := range report.Strengths {
			b.WriteString("\n• " + s)
		}
	}
	if len(report.Improvements) > 0 {
		b.WriteString("\n\nЧто улучшить:")
		for _, s := range report.Improvements {
			b.WriteString("\n• " + s)
		}
	}
	if report.Recommendation != "" {
		b.WriteString("\n\nРекомендация: " + report.Recommendation)
	}
	return b.String()
}
