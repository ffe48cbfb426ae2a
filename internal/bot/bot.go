package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dalnet/chanbridge/internal/irc"
	"github.com/dalnet/chanbridge/internal/storage"
)

// ErrStopped is returned when work is submitted to a runtime that has
// stopped.
var ErrStopped = errors.New("bot: runtime stopped")

// Sink receives logged channel messages. Record must not block.
type Sink interface {
	Record(msg storage.Message)
}

// Options configures a Runtime.
type Options struct {
	IRC     irc.Options
	Version string
	// Dial defaults to irc.Dial.
	Dial irc.Dialer
	// Sink is optional.
	Sink   Sink
	Logger *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Runtime is a bot: a set of behaviors composed over one supervised
// connection. Protocol events, commands and webhooks are handled one at a
// time on a single event loop goroutine.
type Runtime struct {
	opts      Options
	log       *zap.Logger
	client    *irc.Client
	registry  *Registry
	behaviors []string
	ctx       *Context

	events   chan irc.Event
	jobs     chan func()
	stopped  chan struct{}
	stopOnce sync.Once
	running  atomic.Bool
}

// New composes behaviors into a runtime. Membership tracking and command
// dispatch always run first for every event.
func New(opts Options, behaviors ...Behavior) *Runtime {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Dial == nil {
		opts.Dial = irc.Dial
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	r := &Runtime{
		opts:    opts,
		log:     opts.Logger.Named("bot"),
		events:  make(chan irc.Event, 256),
		jobs:    make(chan func(), 64),
		stopped: make(chan struct{}),
	}
	for _, b := range behaviors {
		r.behaviors = append(r.behaviors, b.Name())
	}
	r.registry = NewRegistry(append([]Behavior{core{}}, behaviors...)...)
	r.client = irc.NewClient(opts.IRC, opts.Dial, r.deliver, opts.Logger.Named("irc"))
	r.ctx = &Context{Channel: opts.IRC.Channel, Members: NewMembership(), rt: r}
	return r
}

// Registry returns the composed handler registry.
func (r *Runtime) Registry() *Registry {
	return r.registry
}

// Client returns the connection supervisor.
func (r *Runtime) Client() *irc.Client {
	return r.client
}

// Run connects and processes events until ctx is done, then quits with
// the version string as the reason. Connection failures are retried in
// the background and never returned.
func (r *Runtime) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return errors.New("bot: runtime already started")
	}
	defer r.stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.loop(gctx) })
	g.Go(func() error { return r.client.Watch(gctx) })
	for _, h := range r.registry.Handlers(KindTimer) {
		g.Go(func() error {
			r.runTimer(gctx, h)
			return nil
		})
	}
	g.Go(func() error {
		if err := r.client.Connect(); err != nil && !errors.Is(err, irc.ErrClosed) {
			r.log.Warn("Initial connect failed, will retry", zap.Error(err))
		}
		return nil
	})

	<-gctx.Done()
	r.client.Quit(r.opts.Version)
	r.stop()
	return g.Wait()
}

func (r *Runtime) stop() {
	r.stopOnce.Do(func() { close(r.stopped) })
}

// Done is closed once the runtime has stopped.
func (r *Runtime) Done() <-chan struct{} {
	return r.stopped
}

func (r *Runtime) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-r.events:
			r.Dispatch(e)
		case job := <-r.jobs:
			job()
		}
	}
}

// deliver is called by the transport for every decoded event. It blocks
// while the loop is busy rather than dropping protocol events.
func (r *Runtime) deliver(e irc.Event) {
	select {
	case r.events <- e:
	case <-r.stopped:
	}
}

// Dispatch runs every handler for e in registration order. Outside of
// tests it is only called by the event loop.
func (r *Runtime) Dispatch(e irc.Event) {
	r.client.Observe(e)
	r.recordEvent(e)
	for _, h := range r.registry.byKind[EventKind(e.Kind)] {
		r.invoke(h, e)
	}
}

func (r *Runtime) invoke(h Handler, e irc.Event) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("Handler panicked", zap.String("behavior", h.Owner),
				zap.String("event", string(e.Kind)), zap.Any("panic", p))
		}
	}()
	h.OnEvent(r.ctx, e)
}

// Send messages the channel.
func (r *Runtime) Send(text string) {
	r.ctx.Send(text)
}

// Do runs fn on the event loop and waits for it to finish.
func (r *Runtime) Do(ctx context.Context, fn func(c *Context)) error {
	done := make(chan struct{})
	job := func() {
		defer close(done)
		fn(r.ctx)
	}
	select {
	case r.jobs <- job:
	case <-r.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-r.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn for the event loop without waiting.
func (r *Runtime) post(fn func()) {
	select {
	case r.jobs <- fn:
	case <-r.stopped:
	}
}

func (r *Runtime) runTimer(ctx context.Context, h Handler) {
	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		r.tick(ctx, h)
		t.Reset(h.Interval)
	}
}

func (r *Runtime) tick(ctx context.Context, h Handler) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("Timer panicked", zap.String("behavior", h.Owner), zap.Any("panic", p))
		}
	}()
	h.OnTimer(ctx, r.ctx)
}

func (r *Runtime) recordEvent(e irc.Event) {
	switch e.Kind {
	case irc.KindJoin:
		r.record(e.Source, "joins", true)
	case irc.KindPart, irc.KindQuit:
		r.record(e.Source, "leaves", true)
	case irc.KindNick:
		r.record(e.Source, fmt.Sprintf("is now known as %s", e.Target), false)
	case irc.KindPublicMessage:
		r.record(e.Source, e.Text, false)
	}
}

func (r *Runtime) record(nick, text string, joinOrLeave bool) {
	r.log.Debug(text,
		zap.String("server", r.opts.IRC.Host),
		zap.String("channel", r.opts.IRC.Channel),
		zap.String("nickname", nick))
	if r.opts.Sink == nil {
		return
	}
	r.opts.Sink.Record(storage.Message{
		Server:      r.opts.IRC.Host,
		Channel:     r.opts.IRC.Channel,
		Nickname:    nick,
		Text:        text,
		JoinOrLeave: joinOrLeave,
		Time:        r.opts.Now(),
	})
}

// core keeps membership current and dispatches commands. It is always the
// first behavior in a composition.
type core struct{}

func (core) Name() string { return "core" }

func (core) Handlers() []Handler {
	return []Handler{
		On(irc.KindWelcome, func(c *Context, e irc.Event) {
			// A fresh registration; the name list will follow the join.
			c.Members.Clear()
		}),
		On(irc.KindNames, func(c *Context, e irc.Event) {
			c.Members.AddAll(e.Names)
		}),
		On(irc.KindJoin, func(c *Context, e irc.Event) {
			c.Members.Add(e.Source)
		}),
		On(irc.KindPart, func(c *Context, e irc.Event) {
			if strings.EqualFold(e.Source, c.Nick()) {
				c.Members.Clear()
				return
			}
			c.Members.Remove(e.Source)
		}),
		On(irc.KindQuit, func(c *Context, e irc.Event) {
			c.Members.Remove(e.Source)
		}),
		On(irc.KindNick, func(c *Context, e irc.Event) {
			c.Members.Rename(e.Source, e.Target)
		}),
		On(irc.KindPublicMessage, func(c *Context, e irc.Event) {
			dispatchCommand(c, c.rt.registry.byKind[KindCommand], e)
		}),
	}
}
