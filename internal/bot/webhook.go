package bot

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// WebhookRequest is an inbound webhook call.
type WebhookRequest struct {
	Path   string
	Params url.Values
}

type WebhookStatus int

const (
	WebhookOK WebhookStatus = iota
	WebhookNotImplemented
	WebhookFailed
)

// HTTPStatus maps a routing outcome to its response code.
func (s WebhookStatus) HTTPStatus() int {
	switch s {
	case WebhookOK:
		return http.StatusOK
	case WebhookNotImplemented:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type WebhookResult struct {
	Status WebhookStatus
	Body   string
}

// Route offers req to every handler whose pattern matches the path, in
// declaration order, until one returns a non-empty body. If no handler
// matches the request is not implemented; if some matched but all
// returned nothing the result is an empty success. A handler error ends
// routing; it is logged and never returned to the caller.
func Route(c *Context, handlers []Handler, req WebhookRequest) WebhookResult {
	matched := false
	for _, h := range handlers {
		if h.Pattern != nil && !h.Pattern.MatchString(req.Path) {
			continue
		}
		matched = true
		body, err := callWebhook(c, h, req)
		if err != nil {
			c.Logger().Error("Webhook handler failed",
				zap.String("behavior", h.Owner),
				zap.String("path", req.Path),
				zap.Error(err))
			return WebhookResult{Status: WebhookFailed}
		}
		if body != "" {
			return WebhookResult{Status: WebhookOK, Body: body}
		}
	}
	if !matched {
		return WebhookResult{Status: WebhookNotImplemented}
	}
	return WebhookResult{Status: WebhookOK}
}

func callWebhook(c *Context, h Handler, req WebhookRequest) (body string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicError{p}
		}
	}()
	return h.OnWebhook(c, req)
}

type panicError struct{ v any }

func (p panicError) Error() string {
	return fmt.Sprintf("handler panicked: %v", p.v)
}

// Webhook routes req on the event loop.
func (r *Runtime) Webhook(ctx context.Context, req WebhookRequest) WebhookResult {
	var res WebhookResult
	err := r.Do(ctx, func(c *Context) {
		res = Route(c, r.registry.byKind[KindWebhook], req)
	})
	if err != nil {
		r.log.Warn("Webhook not delivered", zap.String("path", req.Path), zap.Error(err))
		return WebhookResult{Status: WebhookFailed}
	}
	return res
}
