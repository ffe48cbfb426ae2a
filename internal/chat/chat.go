// Package chat greets people joining the channel and answers lines
// addressed to the bot.
package chat

import (
	"math/rand/v2"
	"strings"
	"time"

	"github.com/dalnet/chanbridge/internal/bot"
	"github.com/dalnet/chanbridge/internal/irc"
)

var DefaultGreetings = []string{"Hi", "Hello", "Howdy", "Welcome"}

// Behavior is the chat behavior. The zero value is not usable; use New.
type Behavior struct {
	greetings []string
	responder Responder
	// delay is how long to wait before speaking, so replies read less
	// like a bot's.
	delay func() time.Duration
	pick  func(n int) int
}

type Option func(*Behavior)

// WithDelay overrides the random 2 to 5 second pause before speaking.
func WithDelay(fn func() time.Duration) Option {
	return func(b *Behavior) { b.delay = fn }
}

// WithResponder replaces the default rule set.
func WithResponder(r Responder) Option {
	return func(b *Behavior) { b.responder = r }
}

// WithPick replaces the random choice of greeting, for tests.
func WithPick(fn func(n int) int) Option {
	return func(b *Behavior) { b.pick = fn }
}

func New(opts ...Option) *Behavior {
	b := &Behavior{
		greetings: DefaultGreetings,
		responder: DefaultRules(),
		delay:     randomDelay,
		pick:      rand.IntN,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func randomDelay() time.Duration {
	return time.Duration(2+rand.IntN(4)) * time.Second
}

func (b *Behavior) Name() string { return "chat" }

func (b *Behavior) Handlers() []bot.Handler {
	return []bot.Handler{
		bot.On(irc.KindJoin, b.greet),
		bot.On(irc.KindPublicMessage, b.respond),
	}
}

func (b *Behavior) greet(c *bot.Context, e irc.Event) {
	if strings.EqualFold(e.Source, c.Nick()) {
		return
	}
	greeting := b.greetings[b.pick(len(b.greetings))]
	b.sayLater(c, e.Source, greeting)
}

func (b *Behavior) respond(c *bot.Context, e irc.Event) {
	prefix := c.Nick() + ": "
	text, ok := strings.CutPrefix(e.Text, prefix)
	if !ok {
		return
	}
	reply := b.responder.Respond(text)
	if reply == "" {
		return
	}
	b.sayLater(c, e.Source, reply)
}

// sayLater addresses nick after the delay, unless they've left by then.
func (b *Behavior) sayLater(c *bot.Context, nick, text string) {
	c.After(b.delay(), func(c *bot.Context) {
		if !c.Members.Has(nick) {
			return
		}
		c.Send(nick + ": " + text)
	})
}
