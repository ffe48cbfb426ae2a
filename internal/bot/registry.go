package bot

import (
	"context"
	"regexp"
	"slices"
	"time"

	"github.com/dalnet/chanbridge/internal/irc"
)

// Kind is the event kind a handler is registered for: any protocol event
// kind, plus the behavior-level kinds below.
type Kind string

const (
	KindCommand Kind = "command"
	KindTimer   Kind = "timer"
	KindWebhook Kind = "webhook"
)

// EventKind converts a protocol event kind.
func EventKind(k irc.Kind) Kind {
	return Kind(k)
}

// Handler describes one event handler declared by a behavior. Only the
// fields relevant to Kind are set.
type Handler struct {
	Kind  Kind
	Owner string

	// Protocol events.
	OnEvent func(c *Context, e irc.Event)

	// KindCommand.
	Command *Command

	// KindTimer.
	Interval time.Duration
	OnTimer  func(ctx context.Context, c *Context)

	// KindWebhook. A nil Pattern matches every path.
	Pattern   *regexp.Regexp
	OnWebhook func(c *Context, req WebhookRequest) (string, error)
}

// On declares a handler for a protocol event kind.
func On(kind irc.Kind, fn func(c *Context, e irc.Event)) Handler {
	return Handler{Kind: EventKind(kind), OnEvent: fn}
}

// OnCommand declares a channel command.
func OnCommand(cmd Command) Handler {
	return Handler{Kind: KindCommand, Command: &cmd}
}

// OnTimer declares a handler run every interval on its own goroutine.
func OnTimer(interval time.Duration, fn func(ctx context.Context, c *Context)) Handler {
	return Handler{Kind: KindTimer, Interval: interval, OnTimer: fn}
}

// OnWebhook declares a webhook handler for paths matching pattern. An
// empty pattern matches every path. It panics if pattern doesn't compile,
// like regexp.MustCompile; patterns are fixed at composition time.
func OnWebhook(pattern string, fn func(c *Context, req WebhookRequest) (string, error)) Handler {
	h := Handler{Kind: KindWebhook, OnWebhook: fn}
	if pattern != "" {
		h.Pattern = regexp.MustCompile(pattern)
	}
	return h
}

// Behavior is a unit of bot functionality: a named, fixed list of
// handlers.
type Behavior interface {
	Name() string
	Handlers() []Handler
}

// Registry maps event kinds to handlers in declaration order. It is
// built once and never modified.
type Registry struct {
	byKind map[Kind][]Handler
	names  []string
	total  int
}

// NewRegistry scans the handlers of every behavior, in composition order
// and then declaration order. Handlers for the same kind are all kept.
func NewRegistry(behaviors ...Behavior) *Registry {
	r := &Registry{byKind: make(map[Kind][]Handler)}
	for _, b := range behaviors {
		r.names = append(r.names, b.Name())
		for _, h := range b.Handlers() {
			h.Owner = b.Name()
			r.byKind[h.Kind] = append(r.byKind[h.Kind], h)
			r.total++
		}
	}
	return r
}

// Handlers returns the handlers registered for kind. The slice is a copy.
func (r *Registry) Handlers(kind Kind) []Handler {
	return slices.Clone(r.byKind[kind])
}

// Commands returns every registered command, in declaration order.
func (r *Registry) Commands() []Command {
	var cmds []Command
	for _, h := range r.byKind[KindCommand] {
		cmds = append(cmds, *h.Command)
	}
	return cmds
}

// Behaviors returns the names of the composed behaviors.
func (r *Registry) Behaviors() []string {
	return slices.Clone(r.names)
}

// Len is the total number of handlers registered.
func (r *Registry) Len() int {
	return r.total
}
