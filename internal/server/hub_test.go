package server

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"interview-coach/internal/session"
)

func TestEncodeEventCarriesError(t *testing.T) {
	data, err := encodeEvent(session.AnalysisFailed{QuestionIndex: 2, Err: errors.New("timeout")})
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Type  string         `json:"type"`
		Data  map[string]any `json:"data"`
		Error string         `json:"error"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Type != "analysis_failed" || got.Error != "timeout" || got.Data["question_index"] != float64(2) {
		t.Fatalf("unexpected wire event: %s", data)
	}

	data, err = encodeEvent(session.CallStarted{})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"type":"call_started","data":{}}` {
		t.Fatalf("unexpected wire event: %s", data)
	}
}

func TestHubFanOut(t *testing.T) {
	h := newHub(discardLogger)
	events := make(chan session.Event, 4)
	go h.run(events)

	_, first := h.subscribe()
	_, second := h.subscribe()

	events <- session.CallStarted{}
	for _, ch := range []<-chan []byte{first, second} {
		select {
		case msg := <-ch:
			if string(msg) != `{"type":"call_started","data":{}}` {
				t.Fatalf("unexpected message %s", msg)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}

	close(events)
	<-h.done
	for _, ch := range []<-chan []byte{first, second} {
		if _, ok := <-ch; ok {
			t.Fatal("subscriber channel must be closed after machine stops")
		}
	}

	_, late := h.subscribe()
	if _, ok := <-late; ok {
		t.Fatal("subscription after close must be closed")
	}
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	h := newHub(discardLogger)
	_, slow := h.subscribe()

	for i := 0; i < subscriberBuffer+1; i++ {
		h.broadcast([]byte("x"))
	}
	if h.count() != 0 {
		t.Fatalf("slow subscriber must be removed")
	}

	n := 0
	for range slow {
		n++
	}
	if n != subscriberBuffer {
		t.Fatalf("expected %d buffered messages, got %d", subscriberBuffer, n)
	}
}

func TestHubUnsubscribe(t *testing.T) {
	h := newHub(discardLogger)
	id, ch := h.subscribe()
	h.unsubscribe(id)
	h.unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Fatal("channel must be closed after unsubscribe")
	}
}
