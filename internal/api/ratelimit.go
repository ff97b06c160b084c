package api

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// rateLimiter is a fixed window counter shared by all clients.
type rateLimiter struct {
	mu     sync.Mutex
	count  int
	limit  int
	window time.Duration
	start  time.Time
	now    func() time.Time
}

func newRateLimiter(maxPerMinute int) *rateLimiter {
	return &rateLimiter{
		limit:  maxPerMinute,
		window: time.Minute,
		start:  time.Now(),
		now:    time.Now,
	}
}

// Allow takes one slot of the current window. When the window is full it
// returns the time left until the next one.
func (r *rateLimiter) Allow() (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.start) >= r.window {
		r.count = 0
		r.start = now
	}

	if r.count < r.limit {
		r.count++
		return true, 0
	}
	return false, r.window - now.Sub(r.start)
}

// limitTaskCreation rejects task creation beyond MaxTasksPerMinute with 429.
func (s *Server) limitTaskCreation() fiber.Handler {
	if s.config.MaxTasksPerMinute <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	limiter := newRateLimiter(s.config.MaxTasksPerMinute)

	return func(c *fiber.Ctx) error {
		ok, wait := limiter.Allow()
		if !ok {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			return fiber.NewError(fiber.StatusTooManyRequests, "Too many tasks created, try again later.")
		}
		return c.Next()
	}
}
