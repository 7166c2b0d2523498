package controller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/playsync/pkg/ctxlogger"
	"github.com/sharetube/playsync/pkg/wsrouter"
	"golang.org/x/time/rate"
)

var ErrRateLimited = errors.New("rate limit exceeded")

// rateLimiterStore keeps one limiter per connection id.
type rateLimiterStore struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	rate      rate.Limit
	burstSize int
}

func newRateLimiterStore(r rate.Limit, burst int) *rateLimiterStore {
	return &rateLimiterStore{
		limiters:  make(map[string]*rate.Limiter),
		rate:      r,
		burstSize: burst,
	}
}

func (s *rateLimiterStore) getLimiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(s.rate, s.burstSize)
		s.limiters[key] = limiter
	}

	return limiter
}

func (s *rateLimiterStore) remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.limiters, key)
}

func (c controller) wsRequestIdMw() wsrouter.Middleware {
	return func(next wsrouter.HandlerFunc[json.RawMessage]) wsrouter.HandlerFunc[json.RawMessage] {
		return func(ctx context.Context, conn *websocket.Conn, raw json.RawMessage) error {
			ctx = ctxlogger.AppendCtx(ctx, slog.String("ws_request_id", c.generateTimeBasedId()))
			return next(ctx, conn, raw)
		}
	}
}

func (c controller) wsLoggerMw() wsrouter.Middleware {
	return func(next wsrouter.HandlerFunc[json.RawMessage]) wsrouter.HandlerFunc[json.RawMessage] {
		return func(ctx context.Context, conn *websocket.Conn, raw json.RawMessage) error {
			ctx = ctxlogger.AppendCtx(ctx, slog.String("message_type", wsrouter.GetMessageTypeFromCtx(ctx)))
			c.logger.DebugContext(ctx, "websocket message received", "size", len(raw))

			start := time.Now()
			err := next(ctx, conn, raw)

			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)
			c.logger.DebugContext(ctx, "websocket message handled",
				"processing_time_us", time.Since(start).Microseconds(),
				"alloc", memStats.Alloc/1024,
				"goroutines", runtime.NumGoroutine(),
			)

			return err
		}
	}
}

// wsRateLimitMw drops frames above the per-connection budget. ALIVE frames
// are not counted.
func (c controller) wsRateLimitMw() wsrouter.Middleware {
	return func(next wsrouter.HandlerFunc[json.RawMessage]) wsrouter.HandlerFunc[json.RawMessage] {
		return func(ctx context.Context, conn *websocket.Conn, raw json.RawMessage) error {
			if c.cfg.MessagesPerSecond <= 0 || wsrouter.GetMessageTypeFromCtx(ctx) == aliveType {
				return next(ctx, conn, raw)
			}

			if !c.limiters.getLimiter(c.getConnectionIDFromCtx(ctx)).Allow() {
				c.metrics.ObserveRejected("rate_limited")
				return ErrRateLimited
			}

			return next(ctx, conn, raw)
		}
	}
}
