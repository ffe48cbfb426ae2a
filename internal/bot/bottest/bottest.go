// Package bottest provides an in-memory protocol transport for testing
// behaviors against a real bot runtime.
package bottest

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/dalnet/chanbridge/internal/bot"
	"github.com/dalnet/chanbridge/internal/irc"
)

const (
	Host    = "irc.example.org"
	Channel = "#chanbridge"
	Nick    = "bot"
	Version = "chanbridge test"
)

// Transport records everything sent through it. Connect always succeeds.
type Transport struct {
	mu        sync.Mutex
	deliver   func(irc.Event)
	dialed    irc.Options
	connected bool
	connects  int
	nicks     []string
	joins     []string
	sent      []string
	raw       []string
	quit      *string
}

// Dialer returns a dialer handing out tr.
func (tr *Transport) Dialer() irc.Dialer {
	return func(opts irc.Options, deliver func(irc.Event), _ *zap.Logger) irc.Transport {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		tr.dialed = opts
		tr.deliver = deliver
		return tr
	}
}

func (tr *Transport) Connect() error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.connects++
	tr.connected = true
	return nil
}

func (tr *Transport) Connected() bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.connected
}

func (tr *Transport) SetNick(nick string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.nicks = append(tr.nicks, nick)
}

func (tr *Transport) Join(channel, key string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if key != "" {
		channel += " " + key
	}
	tr.joins = append(tr.joins, channel)
	return nil
}

func (tr *Transport) Privmsg(target, text string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.sent = append(tr.sent, text)
	return nil
}

func (tr *Transport) SendRaw(line string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.raw = append(tr.raw, line)
	return nil
}

func (tr *Transport) Quit(message string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.quit = &message
	tr.connected = false
}

// Deliver feeds e to the runtime as if it had been read off the wire.
func (tr *Transport) Deliver(e irc.Event) {
	tr.mu.Lock()
	deliver := tr.deliver
	tr.mu.Unlock()
	deliver(e)
}

// Sent returns the channel messages sent so far.
func (tr *Transport) Sent() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.sent...)
}

// Raw returns the raw lines sent so far.
func (tr *Transport) Raw() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.raw...)
}

// Nicks returns every nickname the client registered with, in order.
func (tr *Transport) Nicks() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.nicks...)
}

// Dialed returns the options of the most recent dial.
func (tr *Transport) Dialed() irc.Options {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.dialed
}

// Joins returns the channels joined, in order, each followed by its key
// when one was given.
func (tr *Transport) Joins() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.joins...)
}

func (tr *Transport) Connects() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.connects
}

// QuitMessage returns the quit reason, and whether the client quit.
func (tr *Transport) QuitMessage() (string, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.quit == nil {
		return "", false
	}
	return *tr.quit, true
}

// Drop simulates the server closing the connection.
func (tr *Transport) Drop() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.connected = false
}

// Options returns runtime options wired to tr.
func Options(t testing.TB, tr *Transport) bot.Options {
	return bot.Options{
		IRC: irc.Options{
			Host:          Host,
			Port:          6667,
			Channel:       Channel,
			Nick:          Nick,
			CheckInterval: 10 * time.Millisecond,
			BackoffBase:   10 * time.Millisecond,
		},
		Version: Version,
		Dial:    tr.Dialer(),
		Logger:  zaptest.NewLogger(t),
	}
}

// New builds a runtime over a fresh Transport without starting it.
// Events can be handed straight to Dispatch.
func New(t testing.TB, behaviors ...bot.Behavior) (*bot.Runtime, *Transport) {
	tr := &Transport{}
	return bot.New(Options(t, tr), behaviors...), tr
}

// Start runs rt until the test ends.
func Start(t testing.TB, rt *bot.Runtime) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// Welcome dispatches the registration and self-join events that bring a
// runtime to the joined state, followed by a name list.
func Welcome(rt *bot.Runtime, names ...string) {
	rt.Dispatch(irc.Event{Kind: irc.KindWelcome, Target: Nick})
	rt.Dispatch(irc.Event{Kind: irc.KindJoin, Source: Nick, Target: Channel})
	rt.Dispatch(irc.Event{Kind: irc.KindNames, Target: Channel, Names: append([]string{Nick}, names...)})
}

// Message builds a channel message event.
func Message(from, text string) irc.Event {
	return irc.Event{Kind: irc.KindPublicMessage, Source: from, Target: Channel, Text: text}
}
