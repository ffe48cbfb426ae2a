// Package bridge connects browser sessions to the channel. Each web
// session drives its own bot runtime under the user's nickname.
package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/dalnet/chanbridge/internal/bot"
	"github.com/dalnet/chanbridge/internal/config"
	"github.com/dalnet/chanbridge/internal/irc"
)

// DefaultNickname is used when neither the browser nor the defaults name
// the user.
const DefaultNickname = "guest"

var (
	ErrStarted    = errors.New("bridge: session already started")
	ErrNotStarted = errors.New("bridge: session not started")
)

// Config holds the session defaults, used for any start parameter the
// browser leaves out.
type Config struct {
	Host    string
	Port    int
	Channel string
	// Key is only used when joining Channel.
	Key      string
	Nickname string
	TLS      bool

	// EscapePrefix marks text to be sent as a raw protocol line.
	EscapePrefix string
	// Version is the quit reason on teardown.
	Version string

	CheckInterval time.Duration
	BackoffBase   time.Duration

	// Dial defaults to irc.Dial.
	Dial irc.Dialer
}

// Emitter delivers a frame to the browser. It must not block.
type Emitter func(Outbound)

// Session is one browser's presence in the channel.
type Session struct {
	ID string

	cfg  Config
	emit Emitter
	log  *zap.Logger

	mu     sync.Mutex
	rt     *bot.Runtime
	relay  *relay
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSession(id string, cfg Config, emit Emitter, log *zap.Logger) *Session {
	return &Session{
		ID:   id,
		cfg:  cfg,
		emit: emit,
		log:  log.With(zap.String("session", id)),
	}
}

// Start connects to the server and joins the channel in the background.
func (s *Session) Start(in Inbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rt != nil {
		return ErrStarted
	}

	opts := s.options(in)
	s.relay = &relay{
		emit:         s.emit,
		escapePrefix: s.cfg.EscapePrefix,
		maxLength:    config.MaxMessageLength(opts.Channel),
	}
	s.rt = bot.New(bot.Options{
		IRC:     opts,
		Version: s.cfg.Version,
		Dial:    s.cfg.Dial,
		Logger:  s.log,
	}, s.relay)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.rt.Run(ctx); err != nil {
			s.log.Warn("Session runtime stopped", zap.Error(err))
		}
	}()
	s.log.Info("Session started",
		zap.String("host", opts.Host),
		zap.String("channel", opts.Channel),
		zap.String("nick", opts.Nick))
	return nil
}

func (s *Session) options(in Inbound) irc.Options {
	opts := irc.Options{
		Host:          s.cfg.Host,
		Port:          s.cfg.Port,
		Channel:       s.cfg.Channel,
		Nick:          s.cfg.Nickname,
		Password:      in.Password,
		TLS:           s.cfg.TLS,
		CheckInterval: s.cfg.CheckInterval,
		BackoffBase:   s.cfg.BackoffBase,
	}
	if in.Host != "" {
		opts.Host = in.Host
	}
	if in.Port != "" {
		opts.Port = config.ParsePort(string(in.Port))
	}
	if opts.Port == 0 {
		opts.Port = config.DefaultPort
	}
	if in.Channel != "" {
		opts.Channel = in.Channel
	}
	if strings.EqualFold(opts.Channel, s.cfg.Channel) {
		opts.Key = s.cfg.Key
	}
	if in.Nickname != "" {
		opts.Nick = in.Nickname
	}
	if opts.Nick == "" {
		opts.Nick = DefaultNickname
	}
	return opts
}

// Message sends text to the channel as the session's nickname.
func (s *Session) Message(ctx context.Context, text string) error {
	s.mu.Lock()
	rt, r := s.rt, s.relay
	s.mu.Unlock()
	if rt == nil {
		return ErrNotStarted
	}
	return rt.Do(ctx, func(c *bot.Context) { r.send(c, text) })
}

// Close quits the server and waits for the runtime to stop. It is safe to
// call more than once, and before Start.
func (s *Session) Close() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Truncate cuts text to at most n bytes without splitting a UTF-8
// sequence.
func Truncate(text string, n int) string {
	if len(text) <= n {
		return text
	}
	if n <= 0 {
		return ""
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n]
}

// relay mirrors channel activity to the browser and sends its messages.
type relay struct {
	emit         Emitter
	escapePrefix string
	maxLength    int
}

func (r *relay) Name() string { return "bridge" }

func (r *relay) Handlers() []bot.Handler {
	return []bot.Handler{
		bot.On(irc.KindNames, func(c *bot.Context, e irc.Event) {
			r.emit(nicknamesFrame(c.Members))
		}),
		bot.On(irc.KindJoin, func(c *bot.Context, e irc.Event) {
			r.emit(Outbound{Type: TypeJoin})
			r.emit(messageFrame(bot.NewIdentity(e.Source), "joins"))
			r.emit(nicknamesFrame(c.Members))
		}),
		bot.On(irc.KindPart, r.leave),
		bot.On(irc.KindQuit, r.leave),
		bot.On(irc.KindNick, func(c *bot.Context, e irc.Event) {
			r.emit(messageFrame(bot.NewIdentity(e.Source), "is now known as "+e.Target))
			r.emit(nicknamesFrame(c.Members))
		}),
		bot.On(irc.KindPublicMessage, func(c *bot.Context, e irc.Event) {
			r.emit(messageFrame(bot.NewIdentity(e.Source), e.Text))
		}),
		bot.On(irc.KindErroneousNickname, func(c *bot.Context, e irc.Event) {
			r.emit(Outbound{Type: TypeInvalid})
		}),
	}
}

func (r *relay) leave(c *bot.Context, e irc.Event) {
	r.emit(messageFrame(bot.NewIdentity(e.Source), "leaves"))
	r.emit(nicknamesFrame(c.Members))
}

// send posts text once we're in the channel. Text starting with the escape
// prefix goes out as a raw line, as typed.
func (r *relay) send(c *bot.Context, text string) {
	id, ok := c.Members.Get(c.Nick())
	if !ok {
		c.Logger().Debug("Not in channel yet, dropping message")
		return
	}
	if r.escapePrefix != "" {
		if line, ok := strings.CutPrefix(text, r.escapePrefix); ok {
			c.Raw(line)
			return
		}
	}
	text = Truncate(text, r.maxLength)
	c.Send(text)
	r.emit(messageFrame(id, text))
}
