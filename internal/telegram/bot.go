package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultAPIBase = "https://api.telegram.org"
	pollTimeout    = 30
)

// New создает новый Telegram бот
func New(token string) *Bot {
	return NewWithBaseURL(fmt.Sprintf("%s/bot%s", DefaultAPIBase, token))
}

// NewWithBaseURL создает бота с произвольным адресом API, вида https://host/bot<token>
func NewWithBaseURL(baseURL string) *Bot {
	return &Bot{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: (pollTimeout + 10) * time.Second},
	}
}

// GetUpdates получает обновления от Telegram
func (b *Bot) GetUpdates(ctx context.Context, offset int) ([]Update, error) {
	url := fmt.Sprintf("%s/getUpdates?offset=%d&timeout=%d", b.baseURL, offset, pollTimeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса getUpdates: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса getUpdates: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	var response GetUpdatesResponse
	err = json.Unmarshal(body, &response)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга JSON: %w", err)
	}

	if !response.OK {
		return nil, fmt.Errorf("Telegram API вернул ошибку: %s", response.Description)
	}

	return response.Result, nil
}

// SendMessage отправляет сообщение пользователю
func (b *Bot) SendMessage(chatID int64, text string) error {
	request := SendMessageRequest{
		ChatID: chatID,
		Text:   text,
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("ошибка сериализации запроса: %w", err)
	}

	url := fmt.Sprintf("%s/sendMessage", b.baseURL)
	resp, err := b.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("ошибка отправки сообщения: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	var response SendMessageResponse
	err = json.Unmarshal(body, &response)
	if err != nil {
		return fmt.Errorf("ошибка парсинга ответа: %w", err)
	}

	if !response.OK {
		return fmt.Errorf("Telegram API вернул ошибку при отправке сообщения: %s", response.Description)
	}

	return nil
}

// StartPolling получает обновления до отмены ctx и передает их handler по порядку
func (b *Bot) StartPolling(ctx context.Context, handler func(Update), log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	offset := 0

	for {
		updates, err := b.GetUpdates(ctx, offset)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			log.Warn("failed to get telegram updates", "error", err)
			if !sleep(ctx, 5*time.Second) {
				return ctx.Err()
			}
			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1
			handler(update)
		}

		if len(updates) == 0 && !sleep(ctx, time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
