package telegram

import (
	"net/http"
	"sync"
	"time"

	"interview-coach/internal/session"
	"interview-coach/internal/transcription"
)

// Bot представляет Telegram бота
type Bot struct {
	baseURL string
	client  *http.Client
}

// Update представляет обновление от Telegram
type Update struct {
	UpdateID int      `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message представляет сообщение в Telegram
type Message struct {
	MessageID int    `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      *Chat  `json:"chat"`
	Text      string `json:"text,omitempty"`
}

// User представляет пользователя Telegram
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// Chat представляет чат в Telegram
type Chat struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	Type      string `json:"type"`
}

// SendMessageRequest представляет запрос на отправку сообщения
type SendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// GetUpdatesResponse представляет ответ от getUpdates
type GetUpdatesResponse struct {
	OK          bool     `json:"ok"`
	Result      []Update `json:"result"`
	Description string   `json:"description,omitempty"`
}

// SendMessageResponse представляет ответ от sendMessage
type SendMessageResponse struct {
	OK          bool     `json:"ok"`
	Result      *Message `json:"result,omitempty"`
	Description string   `json:"description,omitempty"`
}

// chatSession - сессия интервью одного чата. Ответы кандидата приходят
// сообщениями и передаются в звонок через PushSource.
type chatSession struct {
	chatID  int64
	machine *session.Machine
	push    *transcription.PushSource
	done    chan struct{}

	mu           sync.Mutex
	questions    int
	lastActivity time.Time
}

func (s *chatSession) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

func (s *chatSession) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *chatSession) setQuestions(n int) {
	s.mu.Lock()
	s.questions = n
	s.mu.Unlock()
}

func (s *chatSession) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questions
}

func (s *chatSession) close() {
	_ = s.machine.Close()
	<-s.done
}
