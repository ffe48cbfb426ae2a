package irc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ergochat/irc-go/ircmsg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeServer is a minimal IRC server on a loopback socket. It registers a
// client once it has an available nick and a USER line, skips the MOTD,
// and echoes joins back.
type fakeServer struct {
	ln    net.Listener
	taken map[string]bool

	mu      sync.Mutex
	accepts int
	conns   []net.Conn
	nicks   []string
	joins   []string
	quits   []string
}

func newFakeServer(t *testing.T, taken ...string) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeServer{ln: ln, taken: map[string]bool{}}
	for _, n := range taken {
		s.taken[n] = true
	}
	go s.serve()
	t.Cleanup(s.close)
	return s
}

func (s *fakeServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.accepts++
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		go s.handle(conn)
	}
}

func (s *fakeServer) handle(conn net.Conn) {
	defer conn.Close()
	send := func(format string, args ...any) {
		fmt.Fprintf(conn, format+"\r\n", args...)
	}

	var nick string
	var user, welcomed bool
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		msg, err := ircmsg.ParseLine(scanner.Text())
		if err != nil {
			continue
		}
		param := func(i int) string {
			if i < len(msg.Params) {
				return msg.Params[i]
			}
			return ""
		}

		switch msg.Command {
		case "NICK":
			s.mu.Lock()
			s.nicks = append(s.nicks, param(0))
			taken := s.taken[param(0)]
			s.mu.Unlock()
			switch {
			case taken:
				send(":irc.test 433 * %s :Nickname is already in use", param(0))
			case welcomed:
				send(":%s!u@h NICK %s", nick, param(0))
				nick = param(0)
			default:
				nick = param(0)
			}
		case "USER":
			user = true
		case "JOIN":
			s.mu.Lock()
			s.joins = append(s.joins, strings.Join(msg.Params, " "))
			s.mu.Unlock()
			send(":%s!u@h JOIN %s", nick, param(0))
		case "PING":
			send(":irc.test PONG irc.test :%s", param(0))
		case "QUIT":
			s.mu.Lock()
			s.quits = append(s.quits, param(0))
			s.mu.Unlock()
			send("ERROR :Closing Link")
			return
		}

		if !welcomed && user && nick != "" {
			welcomed = true
			send(":irc.test 001 %s :Welcome to the test network", nick)
			send(":irc.test 422 %s :MOTD File is missing", nick)
		}
	}
}

// drop closes every open client connection.
func (s *fakeServer) drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		c.Close()
	}
	s.conns = nil
}

func (s *fakeServer) close() {
	s.ln.Close()
	s.drop()
}

func (s *fakeServer) snapshot() (accepts int, nicks, joins, quits []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepts, append([]string(nil), s.nicks...),
		append([]string(nil), s.joins...), append([]string(nil), s.quits...)
}

func dialTestClient(t *testing.T, s *fakeServer, nick, key string) *Client {
	t.Helper()
	opts := Options{
		Host:          "127.0.0.1",
		Port:          s.port(),
		Channel:       "#chanbridge",
		Key:           key,
		Nick:          nick,
		CheckInterval: 20 * time.Millisecond,
		BackoffBase:   20 * time.Millisecond,
	}
	// Events arrive on the connection's read goroutine, one at a time.
	var c *Client
	c = NewClient(opts, Dial, func(e Event) { c.Observe(e) }, zap.NewNop())
	t.Cleanup(func() { c.Quit("test over") })
	return c
}

func TestDialRegistersAndJoins(t *testing.T) {
	s := newFakeServer(t)
	c := dialTestClient(t, s, "bot", "sekrit")

	require.NoError(t, c.Connect())
	assert.Eventually(t, func() bool { return c.State() == Joined }, 2*time.Second, 10*time.Millisecond)

	_, nicks, joins, _ := s.snapshot()
	assert.Equal(t, []string{"bot"}, nicks)
	assert.Equal(t, []string{"#chanbridge sekrit"}, joins)
	assert.Equal(t, "bot", c.Nick())
}

func TestDialNicknameCollision(t *testing.T) {
	s := newFakeServer(t, "bot", "bot1")
	c := dialTestClient(t, s, "bot", "")

	require.NoError(t, c.Connect())
	assert.Eventually(t, func() bool { return c.State() == Joined }, 2*time.Second, 10*time.Millisecond)

	// Only the client's own sequence reaches the server.
	_, nicks, _, _ := s.snapshot()
	assert.Equal(t, []string{"bot", "bot1", "bot2"}, nicks)
	assert.Equal(t, "bot2", c.Nick())
}

func TestDialWatchRedialsAfterDrop(t *testing.T) {
	s := newFakeServer(t)
	c := dialTestClient(t, s, "bot", "")

	require.NoError(t, c.Connect())
	require.Eventually(t, func() bool { return c.State() == Joined }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	s.drop()
	assert.Eventually(t, func() bool {
		accepts, _, _, _ := s.snapshot()
		return accepts == 2 && c.State() == Joined
	}, 3*time.Second, 10*time.Millisecond)

	_, _, joins, _ := s.snapshot()
	assert.Equal(t, []string{"#chanbridge", "#chanbridge"}, joins)
}

func TestDialQuitSendsReason(t *testing.T) {
	s := newFakeServer(t)
	c := dialTestClient(t, s, "bot", "")

	require.NoError(t, c.Connect())
	require.Eventually(t, func() bool { return c.State() == Joined }, 2*time.Second, 10*time.Millisecond)

	c.Quit("chanbridge 1.2.3")
	assert.Eventually(t, func() bool {
		_, _, _, quits := s.snapshot()
		return len(quits) == 1 && quits[0] == "chanbridge 1.2.3"
	}, 2*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, c.Connect(), ErrClosed)
}

func TestDialSendBeforeConnect(t *testing.T) {
	tr := Dial(Options{Host: "127.0.0.1", Port: 1, Nick: "bot"}, func(Event) {}, zap.NewNop())
	assert.False(t, tr.Connected())
	assert.ErrorIs(t, tr.Privmsg("#chanbridge", "hello"), ErrNotConnected)
	assert.ErrorIs(t, tr.Join("#chanbridge", ""), ErrNotConnected)
	tr.Quit("bye")
}
