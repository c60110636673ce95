// Package api - минимальный клиент OpenAI Chat Completions.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL   = "https://api.openai.com/v1"
	DefaultModel     = "gpt-4o"
	DefaultMaxTokens = 4000
	DefaultTimeout   = 120 * time.Second
)

type OpenAIClient struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	client    *http.Client
}

// ClientOptions - необязательные параметры клиента, нулевые значения заменяются умолчаниями
type ClientOptions struct {
	BaseURL    string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	HTTPClient *http.Client
}

type OpenAIRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type OpenAIResponse struct {
	ID      string    `json:"id"`
	Model   string    `json:"model"`
	Choices []Choice  `json:"choices"`
	Usage   Usage     `json:"usage"`
	Error   *APIError `json:"error,omitempty"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// APIError - ошибка, которую вернул сервер OpenAI
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       string `json:"code"`
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("OpenAI API error: status %d, %s: %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("OpenAI API error: status %d: %s", e.StatusCode, e.Message)
}

// Temporary сообщает, имеет ли смысл повторить запрос
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// ChatRequest - один запрос к модели
type ChatRequest struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
	// JSON включает режим ответа только JSON-объектом
	JSON bool
}

// ChatResponse - текст ответа модели и расход токенов
type ChatResponse struct {
	Content string
	Usage   Usage
}

func NewOpenAIClient(apiKey string) *OpenAIClient {
	return NewOpenAIClientWithConfig(apiKey, ClientOptions{})
}

// NewOpenAIClientWithConfig создает клиент с расширенной конфигурацией
func NewOpenAIClientWithConfig(apiKey string, opts ClientOptions) *OpenAIClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	return &OpenAIClient{
		apiKey:    apiKey,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		client:    httpClient,
	}
}

// Model возвращает имя используемой модели
func (c *OpenAIClient) Model() string {
	return c.model
}

// Chat отправляет запрос и возвращает текст первого варианта ответа,
// очищенный от markdown-разметки
func (c *OpenAIClient) Chat(ctx context.Context, chat ChatRequest) (ChatResponse, error) {
	if strings.TrimSpace(chat.Prompt) == "" {
		return ChatResponse{}, errors.New("empty prompt")
	}

	maxTokens := chat.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	reqBody := OpenAIRequest{
		Model:       c.model,
		Temperature: chat.Temperature,
		MaxTokens:   maxTokens,
	}
	if chat.System != "" {
		reqBody.Messages = append(reqBody.Messages, Message{Role: "system", Content: chat.System})
	}
	reqBody.Messages = append(reqBody.Messages, Message{Role: "user", Content: chat.Prompt})
	if chat.JSON {
		reqBody.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return ChatResponse{}, parseAPIError(resp.StatusCode, body)
	}

	var openAIResp OpenAIResponse
	if err := json.Unmarshal(body, &openAIResp); err != nil {
		return ChatResponse{}, fmt.Errorf("error unmarshaling response: %w", err)
	}
	if openAIResp.Error != nil {
		openAIResp.Error.StatusCode = resp.StatusCode
		return ChatResponse{}, openAIResp.Error
	}
	if len(openAIResp.Choices) == 0 {
		return ChatResponse{}, errors.New("no choices returned from OpenAI API")
	}

	return ChatResponse{
		Content: CleanJSONResponse(openAIResp.Choices[0].Message.Content),
		Usage:   openAIResp.Usage,
	}, nil
}

func parseAPIError(status int, body []byte) *APIError {
	var wrapped struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Error != nil {
		wrapped.Error.StatusCode = status
		return wrapped.Error
	}

	message := strings.TrimSpace(string(body))
	if message == "" {
		message = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Message: message}
}

// CleanJSONResponse удаляет markdown-ограждения вокруг JSON
func CleanJSONResponse(response string) string {
	response = strings.TrimSpace(response)
	if !strings.HasPrefix(response, "```") {
		return response
	}

	response = strings.TrimPrefix(response, "```")
	// язык после ограждения: json, JSON и т.п.
	if nl := strings.IndexByte(response, '\n'); nl >= 0 {
		response = response[nl+1:]
	} else {
		response = strings.TrimLeft(response, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
	}
	response = strings.TrimSuffix(strings.TrimSpace(response), "```")
	return strings.TrimSpace(response)
}
