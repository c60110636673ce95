package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func TestNewDeepgramProviderDefaults(t *testing.T) {
	t.Parallel()

	p := NewDeepgramProvider(DeepgramConfig{})
	if p.cfg.APIBaseURL != DefaultDeepgramBase {
		t.Fatalf("unexpected base url: %q", p.cfg.APIBaseURL)
	}
	if p.cfg.Model != DefaultDeepgramModel {
		t.Fatalf("unexpected model: %q", p.cfg.Model)
	}
}

func TestDeepgramRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewDeepgramProvider(DeepgramConfig{}).StartStreaming(context.Background(), StreamConfig{})
	if err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestBuildListenURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		provider DeepgramConfig
		stream   StreamConfig
		contains []string
	}{
		{
			name:     "defaults",
			provider: DeepgramConfig{APIBaseURL: DefaultDeepgramBase, Model: "nova-2"},
			contains: []string{"wss://api.deepgram.com/v1/listen", "encoding=linear16", "sample_rate=16000", "channels=1"},
		},
		{
			name:     "local with language",
			provider: DeepgramConfig{APIBaseURL: "http://localhost:8080/v1/", Model: "m", Language: "ru", SmartFormat: true},
			stream:   StreamConfig{SampleRate: 8000, Channels: 2, InterimResults: true},
			contains: []string{"ws://localhost:8080/v1/listen", "language=ru", "smart_format=true", "interim_results=true", "sample_rate=8000"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildListenURL(tt.provider, tt.stream)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, part := range tt.contains {
				if !strings.Contains(got, part) {
					t.Fatalf("expected %q in %s", part, got)
				}
			}
		})
	}

	if _, err := buildListenURL(DeepgramConfig{APIBaseURL: ":// bad"}, StreamConfig{}); err == nil {
		t.Fatalf("expected invalid base url error")
	}
}

func TestExtractTranscript(t *testing.T) {
	t.Parallel()

	var fromChannel deepgramResponse
	fromChannel.Channel.Alternatives = []deepgramAlternative{{Transcript: " channel "}}
	if got := extractTranscript(fromChannel); got != "channel" {
		t.Fatalf("unexpected transcript from channel: %q", got)
	}

	var fromResults deepgramResponse
	fromResults.Results.Channels = append(fromResults.Results.Channels, struct {
		Alternatives []deepgramAlternative `json:"alternatives"`
	}{Alternatives: []deepgramAlternative{{Transcript: "results"}}})
	if got := extractTranscript(fromResults); got != "results" {
		t.Fatalf("unexpected transcript from results: %q", got)
	}

	if got := extractTranscript(deepgramResponse{}); got != "" {
		t.Fatalf("expected empty transcript, got %q", got)
	}
}

func TestDeepgramSessionSetErr(t *testing.T) {
	t.Parallel()

	s := &deepgramSession{}
	s.setErr(&websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "closed"})
	if s.waitErr() != nil {
		t.Fatalf("expected close error to be ignored")
	}
	s.setErr(fmt.Errorf("failed to read provider event: %w", &websocket.CloseError{Code: websocket.CloseNormalClosure}))
	if s.waitErr() != nil {
		t.Fatalf("expected wrapped normal close to be ignored, got %v", s.waitErr())
	}
	s.setErr(errors.New("first"))
	s.setErr(errors.New("second"))
	if s.waitErr() == nil || s.waitErr().Error() != "first" {
		t.Fatalf("expected first error to win, got %v", s.waitErr())
	}
}

// deepgramServer отвечает на каждый бинарный кадр финальным транскриптом
func deepgramServer(t *testing.T, onAudio func(conn *websocket.Conn, chunk []byte)) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/listen" || r.Header.Get("Authorization") != "Token secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			msgType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType == websocket.TextMessage && strings.Contains(string(payload), "CloseStream") {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			onAudio(conn, payload)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func writeResult(t *testing.T, conn *websocket.Conn, text string, isFinal, speechFinal bool) {
	t.Helper()

	var resp deepgramResponse
	resp.Type = "Results"
	resp.IsFinal = isFinal
	resp.SpeechFinal = speechFinal
	resp.Channel.Alternatives = []deepgramAlternative{{Transcript: text}}
	payload, err := json.Marshal(resp)
	if err != nil {
		t.Errorf("marshal: %v", err)
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, payload)
}

func TestDeepgramStreamingRoundTrip(t *testing.T) {
	t.Parallel()

	server := deepgramServer(t, func(conn *websocket.Conn, chunk []byte) {
		writeResult(t, conn, "hello", false, false)
		writeResult(t, conn, "hello world", true, true)
	})

	p := NewDeepgramProvider(DeepgramConfig{APIKey: "secret", APIBaseURL: server.URL + "/v1"})
	session, err := p.StartStreaming(context.Background(), StreamConfig{InterimResults: true})
	if err != nil {
		t.Fatalf("StartStreaming: %v", err)
	}

	if err := session.SendAudio([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if err := session.SendAudio(nil); err != nil {
		t.Fatalf("empty SendAudio: %v", err)
	}

	var final Event
	for ev := range session.Events() {
		if ev.Kind == KindFinal {
			final = ev
			break
		}
	}
	if final.Text != "hello world" {
		t.Fatalf("expected final transcript, got %+v", final)
	}

	if err := session.CloseSend(); err != nil {
		t.Fatalf("CloseSend: %v", err)
	}
	if err := session.SendAudio([]byte{5}); err == nil {
		t.Fatalf("expected error after CloseSend")
	}
	if err := session.Wait(); err != nil {
		t.Fatalf("expected clean close, got %v", err)
	}
}

func TestDeepgramProviderError(t *testing.T) {
	t.Parallel()

	server := deepgramServer(t, func(conn *websocket.Conn, chunk []byte) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Error","message":"bad audio"}`))
	})

	p := NewDeepgramProvider(DeepgramConfig{APIKey: "secret", APIBaseURL: server.URL + "/v1"})
	session, err := p.StartStreaming(context.Background(), StreamConfig{})
	if err != nil {
		t.Fatalf("StartStreaming: %v", err)
	}
	defer session.Close()

	if err := session.SendAudio([]byte{1}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	for range session.Events() {
	}
	if err := session.Wait(); err == nil || !strings.Contains(err.Error(), "bad audio") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestDeepgramRejectedHandshake(t *testing.T) {
	t.Parallel()

	server := deepgramServer(t, func(*websocket.Conn, []byte) {})
	p := NewDeepgramProvider(DeepgramConfig{APIKey: "wrong", APIBaseURL: server.URL + "/v1"})
	if _, err := p.StartStreaming(context.Background(), StreamConfig{}); err == nil {
		t.Fatalf("expected handshake error")
	}
}

func TestDeepgramJoinsFinalSegments(t *testing.T) {
	t.Parallel()

	server := deepgramServer(t, func(conn *websocket.Conn, chunk []byte) {
		switch chunk[0] {
		case 1:
			writeResult(t, conn, "I would start", true, false)
			writeResult(t, conn, "with a queue", false, false)
			writeResult(t, conn, "with a queue", true, false)
			writeResult(t, conn, "and a worker pool", true, true)
		case 2:
			writeResult(t, conn, "second answer", true, false)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"UtteranceEnd"}`))
		case 3:
			writeResult(t, conn, "cut off", true, false)
		}
	})

	p := NewDeepgramProvider(DeepgramConfig{APIKey: "secret", APIBaseURL: server.URL + "/v1"})
	session, err := p.StartStreaming(context.Background(), StreamConfig{InterimResults: true})
	if err != nil {
		t.Fatalf("StartStreaming: %v", err)
	}
	for _, chunk := range [][]byte{{1}, {2}, {3}} {
		if err := session.SendAudio(chunk); err != nil {
			t.Fatalf("SendAudio: %v", err)
		}
	}
	if err := session.CloseSend(); err != nil {
		t.Fatalf("CloseSend: %v", err)
	}

	var finals []string
	var lastInterim string
	for ev := range session.Events() {
		switch ev.Kind {
		case KindFinal:
			finals = append(finals, ev.Text)
		case KindInterim:
			lastInterim = ev.Text
		}
	}

	want := []string{"I would start with a queue and a worker pool", "second answer", "cut off"}
	if strings.Join(finals, "|") != strings.Join(want, "|") {
		t.Fatalf("finals = %q, want %q", finals, want)
	}
	if lastInterim == "" {
		t.Fatalf("expected interim previews of joined segments")
	}
	if err := session.Wait(); err != nil {
		t.Fatalf("expected clean close, got %v", err)
	}
}
