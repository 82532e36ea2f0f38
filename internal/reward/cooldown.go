package reward

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultCooldown is the minimum spacing between attempt starts.
const DefaultCooldown = 60 * time.Second

// Cooldown admits at most one attempt start per window. The window is
// consumed on start and released by time alone.
type Cooldown struct {
	mu      sync.Mutex
	window  time.Duration
	limiter *rate.Limiter
	now     func() time.Time
	until   time.Time
}

func NewCooldown(window time.Duration, now func() time.Time) *Cooldown {
	if window <= 0 {
		window = DefaultCooldown
	}
	if now == nil {
		now = time.Now
	}
	return &Cooldown{
		window:  window,
		limiter: rate.NewLimiter(rate.Every(window), 1),
		now:     now,
	}
}

// Acquire starts a window if none is active. It returns the instant the
// window ends, whether or not it was acquired.
func (c *Cooldown) Acquire() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if !c.limiter.AllowN(now, 1) {
		return c.until, false
	}
	c.until = now.Add(c.window)
	return c.until, true
}

// Active reports whether a window is running and when it ends.
func (c *Cooldown) Active() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.now().Before(c.until) {
		return c.until, true
	}
	return time.Time{}, false
}

func (c *Cooldown) Window() time.Duration { return c.window }
