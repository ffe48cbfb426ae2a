package webhook_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dalnet/chanbridge/internal/bot"
	"github.com/dalnet/chanbridge/internal/bot/bottest"
	"github.com/dalnet/chanbridge/internal/commits"
	"github.com/dalnet/chanbridge/internal/webhook"
)

type recorder struct {
	reqs []bot.WebhookRequest
	res  bot.WebhookResult
}

func (r *recorder) Webhook(_ context.Context, req bot.WebhookRequest) bot.WebhookResult {
	r.reqs = append(r.reqs, req)
	return r.res
}

func TestHandlerStatuses(t *testing.T) {
	tests := []struct {
		name   string
		res    bot.WebhookResult
		status int
		body   string
	}{
		{"ok", bot.WebhookResult{Status: bot.WebhookOK, Body: "thanks"}, http.StatusOK, "thanks"},
		{"ok empty", bot.WebhookResult{Status: bot.WebhookOK}, http.StatusOK, ""},
		{"not implemented", bot.WebhookResult{Status: bot.WebhookNotImplemented}, http.StatusNotFound, "Not Found\n"},
		{"failed", bot.WebhookResult{Status: bot.WebhookFailed}, http.StatusInternalServerError, "Internal Server Error\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := webhook.NewHandler(&recorder{res: tt.res}, zaptest.NewLogger(t))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook/x/", nil))

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.body, w.Body.String())
		})
	}
}

func TestHandlerParams(t *testing.T) {
	rec := &recorder{}
	h := webhook.NewHandler(rec, zaptest.NewLogger(t))

	form := url.Values{"payload": {`{"commits":[]}`}}
	req := httptest.NewRequest(http.MethodPost, "/webhook/github/?token=abc", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	h.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodPost, "/webhook/github/", strings.NewReader(`{"commits":[1]}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, rec.reqs, 2)
	assert.Equal(t, "/webhook/github/", rec.reqs[0].Path)
	assert.Equal(t, `{"commits":[]}`, rec.reqs[0].Params.Get("payload"))
	assert.Equal(t, "abc", rec.reqs[0].Params.Get("token"))
	assert.Equal(t, `{"commits":[1]}`, rec.reqs[1].Params.Get("payload"))
}

func TestHandlerMethodAndDisabled(t *testing.T) {
	w := httptest.NewRecorder()
	webhook.NewHandler(&recorder{}, zaptest.NewLogger(t)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/webhook/x/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, http.MethodPost, w.Header().Get("Allow"))

	w = httptest.NewRecorder()
	webhook.NewHandler(nil, zaptest.NewLogger(t)).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook/x/", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlerEndToEnd(t *testing.T) {
	rt, tr := bottest.New(t, commits.GitHub("/webhook/"))
	bottest.Start(t, rt)
	srv := httptest.NewServer(webhook.NewHandler(rt, zaptest.NewLogger(t)))
	defer srv.Close()

	payload := `{"compare":"","commits":[{"message":"Fix it","url":"https://github.com/acme/w/commit/1","committer":{"name":"Alice"}}]}`
	resp, err := http.PostForm(srv.URL+"/webhook/github/", url.Values{"payload": {payload}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Fix it - Alice https://github.com/acme/w/commit/1"}, tr.Sent())

	resp, err = http.PostForm(srv.URL+"/webhook/gitlab/", url.Values{"payload": {payload}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
