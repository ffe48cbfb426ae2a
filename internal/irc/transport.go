package irc

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"slices"
	"strconv"
	"sync"

	"github.com/ergochat/irc-go/ircevent"
	"github.com/ergochat/irc-go/ircmsg"
	"go.uber.org/zap"
)

// ErrNotConnected is returned when sending before the first connection
// attempt.
var ErrNotConnected = errors.New("irc: not connected")

// Nickname collisions are negotiated by Client; the library's own
// fallback (appending _<n>) is removed for these.
var nickCollisions = []string{ERR_NICKNAMEINUSE, ERR_UNAVAILRESOURCE}

// eventTransport is the Transport backed by ircevent. Each connection
// attempt gets a fresh ircevent.Connection, since a connection that was
// registered and then dropped can't be reused without its Loop.
type eventTransport struct {
	opts    Options
	deliver func(Event)
	log     *zap.Logger

	mu   sync.Mutex
	conn *ircevent.Connection
	sock net.Conn
	nick string
}

// Dial is the production Dialer. The returned transport is not connected
// until Connect is called.
func Dial(opts Options, deliver func(Event), log *zap.Logger) Transport {
	return &eventTransport{
		opts:    opts,
		deliver: deliver,
		log:     log.Named("ircevent"),
		nick:    opts.Nick,
	}
}

func (t *eventTransport) newConn(nick string) *ircevent.Connection {
	conn := &ircevent.Connection{
		Server:      net.JoinHostPort(t.opts.Host, strconv.Itoa(t.opts.Port)),
		Nick:        nick,
		User:        nick,
		RealName:    nick,
		Password:    t.opts.Password,
		QuitMessage: "bye",
		UseTLS:      t.opts.TLS,
		TLSConfig:   &tls.Config{ServerName: t.opts.Host},
		Log:         zap.NewStdLog(t.log),
	}
	for _, code := range subscribed {
		conn.AddCallback(code, t.forward)
	}

	var d net.Dialer
	conn.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		// Base callbacks are installed by now and registration hasn't
		// started.
		for _, code := range nickCollisions {
			conn.ClearCallback(code)
			if slices.Contains(subscribed, code) {
				conn.AddCallback(code, t.forward)
			}
		}
		sock, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		t.mu.Lock()
		t.sock = sock
		t.mu.Unlock()
		return sock, nil
	}
	return conn
}

func (t *eventTransport) forward(m ircmsg.Message) {
	if e, ok := Decode(m); ok {
		t.deliver(e)
	}
}

func (t *eventTransport) current() *ircevent.Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

// Connect retires the previous connection, if any, and registers a new
// one. It returns once registration completes or fails.
func (t *eventTransport) Connect() error {
	t.mu.Lock()
	old := t.sock
	t.sock = nil
	conn := t.newConn(t.nick)
	t.conn = conn
	t.mu.Unlock()

	if old != nil {
		// Stops the old connection's goroutines if they're still running.
		old.Close()
	}
	return conn.Connect()
}

func (t *eventTransport) Connected() bool {
	conn := t.current()
	return conn != nil && conn.Connected()
}

func (t *eventTransport) SetNick(nick string) {
	t.mu.Lock()
	t.nick = nick
	conn := t.conn
	t.mu.Unlock()
	if conn != nil && conn.Connected() {
		conn.SetNick(nick)
	}
}

func (t *eventTransport) Join(channel, key string) error {
	conn := t.current()
	if conn == nil {
		return ErrNotConnected
	}
	if key != "" {
		return conn.Send("JOIN", channel, key)
	}
	return conn.Join(channel)
}

func (t *eventTransport) Privmsg(target, text string) error {
	conn := t.current()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Privmsg(target, text)
}

func (t *eventTransport) SendRaw(line string) error {
	conn := t.current()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.SendRaw(line)
}

func (t *eventTransport) Quit(message string) {
	conn := t.current()
	if conn == nil {
		return
	}
	conn.QuitMessage = message
	conn.Quit()
}
