package bot

import (
	"time"

	"go.uber.org/zap"
)

// Context is the shared runtime state handed to every handler.
//
// Members is owned by the event loop: only event, command and webhook
// handlers (which run on the loop) may touch it. Timer handlers run on
// their own goroutine and must limit themselves to Send, Raw, Nick and
// After.
type Context struct {
	Channel string
	Members *Membership

	rt *Runtime
}

// Nick returns the bot's current nickname.
func (c *Context) Nick() string {
	return c.rt.client.Nick()
}

// Server returns the IRC host.
func (c *Context) Server() string {
	return c.rt.client.Server()
}

// Send messages the channel. The server doesn't echo our own messages,
// so they're logged here.
func (c *Context) Send(text string) {
	if err := c.rt.client.Privmsg(text); err != nil {
		c.rt.log.Warn("Send failed", zap.Error(err))
		return
	}
	c.rt.record(c.Nick(), text, false)
}

// Raw sends a raw protocol line.
func (c *Context) Raw(line string) {
	if err := c.rt.client.Raw(line); err != nil {
		c.rt.log.Warn("Raw send failed", zap.Error(err))
	}
}

// After runs fn on the event loop once d has elapsed. It is dropped if the
// runtime has stopped by then.
func (c *Context) After(d time.Duration, fn func(c *Context)) {
	time.AfterFunc(d, func() {
		c.rt.post(func() { fn(c) })
	})
}

// Commands lists every registered command.
func (c *Context) Commands() []Command {
	return c.rt.registry.Commands()
}

// Behaviors lists the composed behaviors by name.
func (c *Context) Behaviors() []string {
	return c.rt.behaviors
}

func (c *Context) Version() string {
	return c.rt.opts.Version
}

func (c *Context) Now() time.Time {
	return c.rt.opts.Now()
}

func (c *Context) Logger() *zap.Logger {
	return c.rt.log
}
