// Package webhook exposes the bot's webhook router over HTTP.
package webhook

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/dalnet/chanbridge/internal/bot"
)

const maxBody = 1 << 20

// Router is the part of the bot runtime the handler needs.
type Router interface {
	Webhook(ctx context.Context, req bot.WebhookRequest) bot.WebhookResult
}

// Handler turns POST requests into webhook calls. Form values become the
// request params; a raw JSON body is passed as the "payload" param.
type Handler struct {
	router Router
	log    *zap.Logger
}

// NewHandler returns a handler routing to router. A nil router answers
// every call with 404.
func NewHandler(router Router, log *zap.Logger) *Handler {
	return &Handler{router: router, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	if h.router == nil {
		http.NotFound(w, r)
		return
	}

	params, err := readParams(w, r)
	if err != nil {
		h.log.Warn("Bad webhook request", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res := h.router.Webhook(r.Context(), bot.WebhookRequest{Path: r.URL.Path, Params: params})
	status := res.Status.HTTPStatus()
	h.log.Debug("Webhook", zap.String("path", r.URL.Path), zap.Int("status", status))

	switch res.Status {
	case bot.WebhookOK:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		io.WriteString(w, res.Body)
	default:
		http.Error(w, http.StatusText(status), status)
	}
}

func readParams(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		params := r.URL.Query()
		params.Set("payload", string(body))
		return params, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return r.Form, nil
}
