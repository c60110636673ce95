package server

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"interview-coach/internal/session"
)

const subscriberBuffer = 256

// wireEvent - событие машины в том виде, в каком его видит интерфейс
type wireEvent struct {
	Type  string        `json:"type"`
	Data  session.Event `json:"data"`
	Error string        `json:"error,omitempty"`
}

func encodeEvent(ev session.Event) ([]byte, error) {
	msg := wireEvent{Type: ev.Name(), Data: ev}
	if err := eventError(ev); err != nil {
		msg.Error = err.Error()
	}
	return json.Marshal(msg)
}

func eventError(ev session.Event) error {
	switch e := ev.(type) {
	case session.GenerationFailed:
		return e.Err
	case session.AnalysisFailed:
		return e.Err
	case session.TranscriptionFailed:
		return e.Err
	case session.ReportFailed:
		return e.Err
	case session.ErrorOccurred:
		return e.Err
	}
	return nil
}

// hub раздает единственный поток событий машины всем подписчикам сессии
type hub struct {
	mu          sync.Mutex
	subscribers map[string]chan []byte
	closed      bool
	done        chan struct{}
	log         *slog.Logger
}

func newHub(log *slog.Logger) *hub {
	return &hub{
		subscribers: make(map[string]chan []byte),
		done:        make(chan struct{}),
		log:         log,
	}
}

// run читает события до закрытия канала машины
func (h *hub) run(events <-chan session.Event) {
	defer close(h.done)
	for ev := range events {
		payload, err := encodeEvent(ev)
		if err != nil {
			h.log.Error("failed to encode event", "event", ev.Name(), "error", err)
			continue
		}
		h.broadcast(payload)
	}
	h.closeAll()
}

func (h *hub) broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subscribers {
		select {
		case ch <- payload:
		default:
			// медленный подписчик отключается, машина не ждет
			h.log.Warn("subscriber is too slow, disconnecting", "subscriber_id", id)
			delete(h.subscribers, id)
			close(ch)
		}
	}
}

// subscribe возвращает id и канал подписчика; после закрытия hub канал сразу закрыт
func (h *hub) subscribe() (string, <-chan []byte) {
	id := uuid.NewString()
	ch := make(chan []byte, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch
	}
	h.subscribers[id] = ch
	return id, ch
}

func (h *hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(ch)
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subscribers {
		delete(h.subscribers, id)
		close(ch)
	}
}
