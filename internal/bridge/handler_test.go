package bridge

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dalnet/chanbridge/internal/bot"
	"github.com/dalnet/chanbridge/internal/bot/bottest"
	"github.com/dalnet/chanbridge/internal/irc"
)

func dial(t *testing.T, srv *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) Outbound {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(wait))
	for {
		var f Outbound
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == typ {
			return f
		}
	}
}

func TestHandlerSession(t *testing.T) {
	tr := &bottest.Transport{}
	srv := httptest.NewServer(NewHandler(testConfig(tr), nil, zap.NewNop()))
	defer srv.Close()

	conn, _, err := dial(t, srv, "")
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(Inbound{Type: TypeStart, Nickname: "web", Port: "6667"}))
	require.Eventually(t, func() bool { return tr.Connects() == 1 }, wait, time.Millisecond)
	tr.Deliver(irc.Event{Kind: irc.KindWelcome, Target: "web"})
	tr.Deliver(irc.Event{Kind: irc.KindJoin, Source: "web", Target: "#abcdefg"})

	assert.Equal(t, Outbound{Type: TypeMessage, Nickname: "web", Message: "joins", Color: bot.ColorFor("web")},
		readUntil(t, conn, TypeMessage))
	assert.Equal(t, []bot.Identity{bot.NewIdentity("web")}, readUntil(t, conn, TypeNicknames).Nicknames)

	require.NoError(t, conn.WriteJSON(Inbound{Type: TypeMessage, Text: "hello from the web"}))
	assert.Equal(t, "hello from the web", readUntil(t, conn, TypeMessage).Message)
	assert.Equal(t, []string{"hello from the web"}, tr.Sent())

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		_, ok := tr.QuitMessage()
		return ok
	}, wait, time.Millisecond)
}

func TestHandlerOrigins(t *testing.T) {
	tr := &bottest.Transport{}
	srv := httptest.NewServer(NewHandler(testConfig(tr), []string{"https://chat.example.com"}, zap.NewNop()))
	defer srv.Close()

	_, resp, err := dial(t, srv, "https://evil.example.net")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := dial(t, srv, "https://chat.example.com")
	require.NoError(t, err)
	conn.Close()

	conn, _, err = dial(t, srv, srv.URL)
	require.NoError(t, err, "same host is always allowed")
	conn.Close()
}

func TestHandlerClose(t *testing.T) {
	tr := &bottest.Transport{}
	h := NewHandler(testConfig(tr), nil, zap.NewNop())
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn, _, err := dial(t, srv, "")
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(Inbound{Type: TypeStart}))
	require.Eventually(t, func() bool { return tr.Connects() == 1 }, wait, time.Millisecond)

	h.Close()
	reason, ok := tr.QuitMessage()
	assert.True(t, ok)
	assert.Equal(t, bottest.Version, reason)
}

func TestHandlerStartPort(t *testing.T) {
	tests := []struct {
		frame string
		port  int
	}{
		{`{"type":"start","nickname":"web","port":"abc"}`, 6667},
		{`{"type":"start","nickname":"web","port":7000}`, 7000},
		{`{"type":"start","nickname":"web","port":"6697"}`, 6697},
		{`{"type":"start","nickname":"web","port":null}`, 6667},
		{`{"type":"start","nickname":"web","port":true}`, 6667},
	}
	for _, tt := range tests {
		t.Run(tt.frame, func(t *testing.T) {
			tr := &bottest.Transport{}
			srv := httptest.NewServer(NewHandler(testConfig(tr), nil, zap.NewNop()))
			defer srv.Close()

			conn, _, err := dial(t, srv, "")
			require.NoError(t, err)
			defer conn.Close()

			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.frame)))
			require.Eventually(t, func() bool { return tr.Connects() == 1 }, wait, time.Millisecond)
			assert.Equal(t, tt.port, tr.Dialed().Port)

			// The socket survives the start frame.
			tr.Deliver(irc.Event{Kind: irc.KindWelcome, Target: "web"})
			tr.Deliver(irc.Event{Kind: irc.KindJoin, Source: "web", Target: "#abcdefg"})
			assert.Equal(t, "joins", readUntil(t, conn, TypeMessage).Message)
		})
	}
}
