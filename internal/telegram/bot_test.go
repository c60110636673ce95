package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestGetUpdates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/getUpdates" || r.URL.Query().Get("offset") != "7" {
			t.Errorf("unexpected request %s", r.URL)
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":[{"update_id":7,"message":{"message_id":1,"chat":{"id":42,"type":"private"},"text":"/help"}}]}`))
	}))
	defer server.Close()

	bot := NewWithBaseURL(server.URL + "/botTOKEN/")
	updates, err := bot.GetUpdates(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetUpdates: %v", err)
	}
	if len(updates) != 1 || updates[0].Message.Chat.ID != 42 || updates[0].Message.Text != "/help" {
		t.Fatalf("unexpected updates %+v", updates)
	}
}

func TestGetUpdatesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"description":"Unauthorized"}`))
	}))
	defer server.Close()

	if _, err := NewWithBaseURL(server.URL).GetUpdates(context.Background(), 0); err == nil {
		t.Fatalf("expected error for ok=false")
	}
}

func TestSendMessage(t *testing.T) {
	var got SendMessageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	if err := NewWithBaseURL(server.URL).SendMessage(42, "привет"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if got.ChatID != 42 || got.Text != "привет" || got.ParseMode != "" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestStartPollingAdvancesOffsetAndStops(t *testing.T) {
	var (
		mu      sync.Mutex
		offsets []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		offsets = append(offsets, r.URL.Query().Get("offset"))
		first := len(offsets) == 1
		mu.Unlock()
		if first {
			_, _ = w.Write([]byte(`{"ok":true,"result":[{"update_id":3},{"update_id":4}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	handled := make(chan int, 10)
	errCh := make(chan error, 1)
	go func() {
		errCh <- NewWithBaseURL(server.URL).StartPolling(ctx, func(u Update) { handled <- u.UpdateID }, discardLogger)
	}()

	for _, want := range []int{3, 4} {
		select {
		case got := <-handled:
			if got != want {
				t.Fatalf("update order: got %d, want %d", got, want)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("update %d not handled", want)
		}
	}

	deadline := time.After(3 * time.Second)
	for {
		mu.Lock()
		n := len(offsets)
		second := ""
		if n > 1 {
			second = offsets[1]
		}
		mu.Unlock()
		if n > 1 {
			if second != "5" {
				t.Fatalf("second poll offset = %q, want 5", second)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("second poll never happened")
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Fatalf("StartPolling returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("StartPolling did not stop")
	}
}
