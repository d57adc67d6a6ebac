package notices

import (
	"sync"
	"time"

	clockport "github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/clock"
)

type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Notice is a single ephemeral user-facing message.
type Notice struct {
	Message   string
	Kind      Kind
	ExpiresAt time.Time
}

// Channel holds at most one live Notice. A new Notice supersedes the previous one
// and cancels its pending expiry.
type Channel struct {
	clk clockport.Clock
	ttl time.Duration

	mu       sync.Mutex
	current  *Notice
	timer    clockport.Timer
	gen      uint64
	onChange func(n Notice, live bool)
}

func NewChannel(clk clockport.Clock, ttl time.Duration) *Channel {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Channel{clk: clk, ttl: ttl}
}

// OnChange registers the callback invoked after every show, clear and expiry.
// It must be set before the channel is used.
func (c *Channel) OnChange(fn func(n Notice, live bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Show replaces the current Notice and restarts the expiry timer.
func (c *Channel) Show(message string, kind Kind) Notice {
	n, _ := c.ShowIf(nil, message, kind)
	return n
}

// ShowIf is Show gated by ok, which runs under the channel lock. A Clear issued after
// ok stopped holding therefore always wins. A nil ok always shows.
func (c *Channel) ShowIf(ok func() bool, message string, kind Kind) (Notice, bool) {
	c.mu.Lock()
	if ok != nil && !ok() {
		c.mu.Unlock()
		return Notice{}, false
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen
	n := Notice{Message: message, Kind: kind, ExpiresAt: c.clk.Now().Add(c.ttl)}
	c.current = &n
	c.timer = c.clk.AfterFunc(c.ttl, func() { c.expire(gen) })
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn(n, true)
	}
	return n, true
}

// Current returns the live Notice, if any.
func (c *Channel) Current() (Notice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Notice{}, false
	}
	return *c.current, true
}

// Clear drops the current Notice and cancels its pending expiry.
func (c *Channel) Clear() {
	c.mu.Lock()
	had := c.current != nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
	c.current = nil
	fn := c.onChange
	c.mu.Unlock()

	if had && fn != nil {
		fn(Notice{}, false)
	}
}

// Pending reports whether an expiry callback is still scheduled.
func (c *Channel) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

func (c *Channel) expire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.current = nil
	c.timer = nil
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn(Notice{}, false)
	}
}
