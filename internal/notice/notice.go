// Package notice holds the transient user-facing message, cleared
// automatically after a fixed display time.
package notice

import (
	"sync"
	"time"
)

const DefaultTTL = 3 * time.Second

type Kind string

const (
	KindError Kind = "error"
	KindInfo  Kind = "info"
)

type Notice struct {
	Kind    Kind
	Message string
}

// Center owns the single visible notice. Posting replaces the current one and
// restarts the display timer; only the latest notice's expiry clears it.
type Center struct {
	ttl      time.Duration
	onChange func(*Notice)

	mu      sync.Mutex
	current *Notice
	timer   *time.Timer
	gen     uint64
}

type Option func(*Center)

func WithTTL(ttl time.Duration) Option {
	return func(c *Center) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithOnChange registers a callback invoked with the new value on every
// change, nil when the notice clears.
func WithOnChange(fn func(*Notice)) Option {
	return func(c *Center) { c.onChange = fn }
}

func NewCenter(opts ...Option) *Center {
	c := &Center{ttl: DefaultTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Center) Error(message string) { c.Post(Notice{Kind: KindError, Message: message}) }

func (c *Center) Info(message string) { c.Post(Notice{Kind: KindInfo, Message: message}) }

// Post replaces the current notice and arms a fresh expiry timer. An older
// notice's pending expiry can no longer clear the newer one.
func (c *Center) Post(n Notice) {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen
	c.current = &n
	c.timer = time.AfterFunc(c.ttl, func() { c.expire(gen) })
	onChange := c.onChange
	c.mu.Unlock()

	if onChange != nil {
		onChange(&n)
	}
}

// Current returns the visible notice, nil when none is showing.
func (c *Center) Current() *Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Clear dismisses the notice immediately and cancels its timer.
func (c *Center) Clear() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
	cleared := c.current != nil
	c.current = nil
	onChange := c.onChange
	c.mu.Unlock()

	if cleared && onChange != nil {
		onChange(nil)
	}
}

func (c *Center) expire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.current = nil
	c.timer = nil
	onChange := c.onChange
	c.mu.Unlock()

	if onChange != nil {
		onChange(nil)
	}
}
