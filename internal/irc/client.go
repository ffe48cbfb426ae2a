package irc

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the connection lifecycle state of a Client.
type State int

const (
	Disconnected State = iota
	Connecting
	Negotiating
	Joined
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Negotiating:
		return "negotiating"
	case Joined:
		return "joined"
	}
	return "unknown"
}

// ErrClosed is returned by Connect once the client has quit.
var ErrClosed = errors.New("irc: client closed")

// Options configures a single server connection and channel membership.
type Options struct {
	Host     string
	Port     int
	Channel  string
	Key      string
	Nick     string
	Password string
	TLS      bool

	// CheckInterval is how often the watchdog polls connection liveness.
	CheckInterval time.Duration
	// BackoffBase is the first reconnect wait after a failure.
	BackoffBase time.Duration
}

// Transport is the protocol connection the Client drives. Implementations
// must be safe for concurrent use.
type Transport interface {
	Connect() error
	Connected() bool
	SetNick(nick string)
	Join(channel, key string) error
	Privmsg(target, text string) error
	SendRaw(line string) error
	Quit(message string)
}

// Dialer builds a Transport that delivers decoded events to deliver.
type Dialer func(opts Options, deliver func(Event), log *zap.Logger) Transport

// Client supervises one server connection: initial connect, nickname
// negotiation, channel join and reconnection with backoff.
type Client struct {
	opts Options
	tr   Transport
	log  *zap.Logger

	mu      sync.Mutex
	state   State
	nick    string
	closed  bool
	dialing bool
	backoff *Backoff

	// sleep waits between reconnect attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Client. Events read from the connection are handed
// to deliver; the caller is expected to feed them back through Observe
// from its event loop.
func NewClient(opts Options, dial Dialer, deliver func(Event), log *zap.Logger) *Client {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = 5 * time.Second
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 5 * time.Second
	}
	c := &Client{
		opts:    opts,
		log:     log,
		nick:    opts.Nick,
		backoff: NewBackoff(opts.BackoffBase),
		sleep:   sleepContext,
	}
	c.tr = dial(opts, deliver, log)
	return c
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Nick returns the nickname currently held or being negotiated.
func (c *Client) Nick() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nick
}

// Channel returns the channel this client joins.
func (c *Client) Channel() string {
	return c.opts.Channel
}

// Server returns the host the client connects to.
func (c *Client) Server() string {
	return c.opts.Host
}

// Connect performs a single connection attempt.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.dialing {
		c.mu.Unlock()
		return nil
	}
	c.dialing = true
	c.setState(Connecting)
	nick := c.nick
	c.mu.Unlock()

	c.tr.SetNick(nick)
	c.log.Info("Connecting", zap.String("host", c.opts.Host), zap.Int("port", c.opts.Port), zap.String("nick", nick))
	err := c.tr.Connect()

	c.mu.Lock()
	c.dialing = false
	if err != nil {
		c.setState(Disconnected)
		c.mu.Unlock()
		return err
	}
	closed := c.closed
	c.mu.Unlock()

	if closed {
		// Quit raced with the attempt; don't leave the socket open.
		c.tr.Quit("")
		return ErrClosed
	}
	return nil
}

// Observe advances the state machine for a protocol event. It must be
// called from the single goroutine that consumes events.
func (c *Client) Observe(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e.Kind {
	case KindWelcome:
		if e.Target != "" {
			c.nick = e.Target
		}
		if c.state != Connecting {
			return
		}
		c.setState(Negotiating)
		if err := c.tr.Join(c.opts.Channel, c.opts.Key); err != nil {
			c.log.Warn("Join failed", zap.String("channel", c.opts.Channel), zap.Error(err))
		}

	case KindNicknameInUse:
		if c.state != Connecting {
			return
		}
		// The server's refusal is the backpressure; retry right away.
		c.nick = NextNick(c.nick)
		c.log.Info("Nick in use, retrying", zap.String("nick", c.nick))
		c.tr.SetNick(c.nick)

	case KindErroneousNickname:
		c.log.Warn("Nick rejected by server", zap.String("nick", e.Target))

	case KindJoin:
		if strings.EqualFold(e.Source, c.nick) && c.state == Negotiating {
			c.setState(Joined)
		}

	case KindNick:
		if strings.EqualFold(e.Source, c.nick) {
			c.nick = e.Target
		}

	case KindError:
		c.log.Warn("Server error", zap.String("text", e.Text))
		c.setState(Disconnected)
	}
}

// Watch polls the connection every CheckInterval and reconnects when it
// has dropped. It returns when ctx is done or the client has quit.
func (c *Client) Watch(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if c.alive() {
			continue
		}
		c.reconnect(ctx)
	}
}

func (c *Client) alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.dialing {
		// Nothing to do, or an attempt is already in flight.
		return true
	}
	if c.state != Disconnected && c.tr.Connected() {
		return true
	}
	if c.state != Disconnected {
		c.log.Warn("Connection lost", zap.Stringer("state", c.state))
		c.setState(Disconnected)
	}
	return false
}

// reconnect retries until an attempt succeeds or ctx is done. Failures are
// logged, never returned.
func (c *Client) reconnect(ctx context.Context) {
	for {
		err := c.Connect()
		if err == nil {
			c.mu.Lock()
			c.backoff.Reset()
			c.mu.Unlock()
			return
		}
		if errors.Is(err, ErrClosed) {
			return
		}

		c.mu.Lock()
		wait := c.backoff.Next()
		c.mu.Unlock()
		c.log.Warn("Reconnect failed", zap.Error(err), zap.Duration("retry_in", wait))
		if err := c.sleep(ctx, wait); err != nil {
			return
		}
	}
}

// Privmsg sends text to the channel.
func (c *Client) Privmsg(text string) error {
	return c.tr.Privmsg(c.opts.Channel, text)
}

// Raw sends a raw protocol line.
func (c *Client) Raw(line string) error {
	return c.tr.SendRaw(line)
}

// Quit leaves the server with message and stops any further reconnects.
func (c *Client) Quit(message string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	wasConnected := c.state != Disconnected
	c.setState(Disconnected)
	c.mu.Unlock()

	if wasConnected || c.tr.Connected() {
		c.tr.Quit(message)
	}
}

// setState must be called with c.mu held.
func (c *Client) setState(s State) {
	if c.state == s {
		return
	}
	c.log.Debug("State change", zap.Stringer("from", c.state), zap.Stringer("to", s))
	c.state = s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
