package bot_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dalnet/chanbridge/internal/bot"
	"github.com/dalnet/chanbridge/internal/bot/bottest"
)

func reply(body string, err error) func(*bot.Context, bot.WebhookRequest) (string, error) {
	return func(*bot.Context, bot.WebhookRequest) (string, error) { return body, err }
}

func TestWebhookRouting(t *testing.T) {
	tests := []struct {
		name     string
		handlers []bot.Handler
		path     string
		status   int
		body     string
	}{
		{
			name:   "nothing registered",
			path:   "/webhook/provider/",
			status: http.StatusNotFound,
		},
		{
			name:     "pattern matches",
			handlers: []bot.Handler{bot.OnWebhook(`^/webhook/provider/$`, reply("ok", nil))},
			path:     "/webhook/provider/",
			status:   http.StatusOK,
			body:     "ok",
		},
		{
			name:     "pattern does not match",
			handlers: []bot.Handler{bot.OnWebhook(`^/webhook/provider/$`, reply("ok", nil))},
			path:     "/webhook/other/",
			status:   http.StatusNotFound,
		},
		{
			name:     "unanchored pattern",
			handlers: []bot.Handler{bot.OnWebhook(`provider`, reply("ok", nil))},
			path:     "/webhook/provider/extra",
			status:   http.StatusOK,
			body:     "ok",
		},
		{
			name: "first non-empty wins",
			handlers: []bot.Handler{
				bot.OnWebhook("", reply("", nil)),
				bot.OnWebhook("", reply("second", nil)),
				bot.OnWebhook("", reply("third", nil)),
			},
			path:   "/webhook/anything/",
			status: http.StatusOK,
			body:   "second",
		},
		{
			name:     "matched but empty",
			handlers: []bot.Handler{bot.OnWebhook("", reply("", nil))},
			path:     "/webhook/anything/",
			status:   http.StatusOK,
		},
		{
			name:     "handler error",
			handlers: []bot.Handler{bot.OnWebhook("", reply("partial", errors.New("bad payload")))},
			path:     "/webhook/anything/",
			status:   http.StatusInternalServerError,
		},
		{
			name: "handler panic",
			handlers: []bot.Handler{bot.OnWebhook("", func(*bot.Context, bot.WebhookRequest) (string, error) {
				panic("boom")
			})},
			path:   "/webhook/anything/",
			status: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, _ := bottest.New(t, behavior{name: "hooks", handlers: tt.handlers})
			bottest.Start(t, rt)

			res := rt.Webhook(context.Background(), bot.WebhookRequest{Path: tt.path, Params: url.Values{}})
			assert.Equal(t, tt.status, res.Status.HTTPStatus())
			assert.Equal(t, tt.body, res.Body)
		})
	}
}

func TestWebhookHandlerCanSend(t *testing.T) {
	rt, tr := bottest.New(t, behavior{name: "hooks", handlers: []bot.Handler{
		bot.OnWebhook("", func(c *bot.Context, req bot.WebhookRequest) (string, error) {
			c.Send(req.Params.Get("text"))
			return "sent", nil
		}),
	}})
	bottest.Start(t, rt)

	res := rt.Webhook(context.Background(), bot.WebhookRequest{
		Path:   "/webhook/say/",
		Params: url.Values{"text": {"hello"}},
	})
	assert.Equal(t, bot.WebhookOK, res.Status)
	assert.Equal(t, []string{"hello"}, tr.Sent())
}

func TestWebhookStoppedRuntime(t *testing.T) {
	rt, _ := bottest.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, rt.Run(ctx))

	res := rt.Webhook(context.Background(), bot.WebhookRequest{Path: "/"})
	assert.Equal(t, bot.WebhookFailed, res.Status)
}
