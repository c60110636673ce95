package interviewer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"interview-coach/internal/api"
)

// callOpenAI делает запрос к модели с повторами при временных сбоях
func (s *Service) callOpenAI(ctx context.Context, op string, req api.ChatRequest) (string, error) {
	policy := s.opts.Retry

	var lastErr error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		started := time.Now()
		resp, err := s.chat.Chat(ctx, req)
		s.opts.Metrics.IncrementAPICall(err == nil)

		if err == nil {
			s.log.Debug("model call completed",
				"op", op,
				"attempt", attempt,
				"duration", time.Since(started),
				"total_tokens", resp.Usage.TotalTokens,
			)
			if strings.TrimSpace(resp.Content) == "" {
				return "", fmt.Errorf("%w: empty response", ErrContract)
			}
			return resp.Content, nil
		}

		lastErr = err
		if !retryable(ctx, err) || attempt == policy.Attempts {
			break
		}

		delay := policy.delay(attempt)
		s.log.Warn("model call failed, retrying", "op", op, "attempt", attempt, "delay", delay, "error", err)
		if waitErr := sleep(ctx, delay); waitErr != nil {
			return "", errors.Join(lastErr, waitErr)
		}
	}

	return "", lastErr
}
