// Package notice implements the transient notice channel shown to the user.
package notice

import (
	"sync"
	"time"

	"github.com/Zain0205/travelin-chat/internal/bus"
	"github.com/google/uuid"
)

// DefaultTTL is how long a notice stays visible.
const DefaultTTL = 5 * time.Second

// Level is the severity of a notice.
type Level string

const (
	Info  Level = "info"
	Warn  Level = "warn"
	Error Level = "error"
)

// Notice is one transient message.
type Notice struct {
	ID        string
	Level     Level
	Text      string
	ShownAt   time.Time
	ExpiresAt time.Time
}

// Shower is the consumer-side view of a notice channel.
type Shower interface {
	Show(level Level, text string) Notice
	Dismiss(id string)
}

// Center holds the current notice. A new notice replaces the previous one,
// and every notice expires on its own timer.
type Center struct {
	bus *bus.Bus
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	current *Notice
	timers  map[string]*time.Timer

	onShow func(Level)
}

// Option customizes a Center.
type Option func(*Center)

// WithTTL overrides DefaultTTL.
func WithTTL(d time.Duration) Option {
	return func(c *Center) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithShowHook registers a function called for every shown notice.
func WithShowHook(fn func(Level)) Option {
	return func(c *Center) { c.onShow = fn }
}

// NewCenter creates a notice center publishing on b. A nil bus is allowed.
func NewCenter(b *bus.Bus, opts ...Option) *Center {
	c := &Center{
		bus:    b,
		ttl:    DefaultTTL,
		now:    time.Now,
		timers: make(map[string]*time.Timer),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Show displays a notice and schedules its expiry.
func (c *Center) Show(level Level, text string) Notice {
	now := c.now()
	n := Notice{
		ID:        uuid.NewString(),
		Level:     level,
		Text:      text,
		ShownAt:   now,
		ExpiresAt: now.Add(c.ttl),
	}

	c.mu.Lock()
	c.current = &n
	id := n.ID
	c.timers[id] = time.AfterFunc(c.ttl, func() { c.expire(id) })
	c.mu.Unlock()

	if c.onShow != nil {
		c.onShow(level)
	}
	if c.bus != nil {
		c.bus.Emit(bus.KindNoticeShown, n)
	}
	return n
}

// Info shows an informational notice.
func (c *Center) Info(text string) Notice { return c.Show(Info, text) }

// Warn shows a warning notice.
func (c *Center) Warn(text string) Notice { return c.Show(Warn, text) }

// Error shows an error notice.
func (c *Center) Error(text string) Notice { return c.Show(Error, text) }

// Current returns the visible notice, if any.
func (c *Center) Current() (Notice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Notice{}, false
	}
	return *c.current, true
}

// Dismiss hides the notice with the given id before its expiry. Dismissing
// a notice that is no longer current only cancels its timer.
func (c *Center) Dismiss(id string) {
	c.expire(id)
}

// Clear hides the current notice regardless of its id.
func (c *Center) Clear() {
	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()
	if cur != nil {
		c.expire(cur.ID)
	}
}

// Stop cancels every pending expiry timer.
func (c *Center) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}

func (c *Center) expire(id string) {
	c.mu.Lock()
	t, pending := c.timers[id]
	if pending {
		t.Stop()
		delete(c.timers, id)
	}
	var gone *Notice
	if c.current != nil && c.current.ID == id {
		gone = c.current
		c.current = nil
	}
	c.mu.Unlock()

	if gone != nil && c.bus != nil {
		c.bus.Emit(bus.KindNoticeExpired, *gone)
	}
}
