// Package ratelimit - ограничение частоты запросов скользящим окном.
package ratelimit

import (
	"sync"
	"time"
)

// RateLimiter - скользящее окно запросов на клиента
type RateLimiter struct {
	requests map[string][]time.Time
	mutex    sync.Mutex
	limit    int
	window   time.Duration
	now      func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

func (rl *RateLimiter) IsAllowed(clientID string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()

	if requests, exists := rl.requests[clientID]; exists {
		var valid []time.Time
		for _, t := range requests {
			if now.Sub(t) < rl.window {
				valid = append(valid, t)
			}
		}
		if len(valid) == 0 {
			delete(rl.requests, clientID)
		} else {
			rl.requests[clientID] = valid
		}
	}

	if len(rl.requests[clientID]) >= rl.limit {
		return false
	}

	rl.requests[clientID] = append(rl.requests[clientID], now)
	return true
}
