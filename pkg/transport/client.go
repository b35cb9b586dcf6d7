// Package transport is the authenticated outbound request layer. Every
// request/response pair goes through the same pre-send credential
// injection and post-receive classification, so callers never carry
// per-call error-translation logic.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"gramsync/pkg/config"
	"gramsync/pkg/logger"
	"gramsync/pkg/metrics"
	"gramsync/pkg/session"
	"gramsync/pkg/storage"
)

// Invalidator is the injected "invalidate session" capability. The
// session store satisfies it; holding the capability instead of a
// rebindable global removes order-of-initialization hazards.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Client wraps outbound requests against the configured API base.
type Client struct {
	base        string
	hc          *http.Client
	kv          storage.KV
	invalidator Invalidator
	locale      string
}

// Response carries what the server actually answered. Non-2xx statuses
// other than 401 are delivered here unmodified.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// NewClient builds the client. inv may be nil (no session to invalidate,
// e.g. in tools); kv is read on every request so the client stays correct
// even when used before the session store has restored.
func NewClient(cfg *config.Config, kv storage.KV, inv Invalidator) (*Client, error) {
	base, err := cfg.BaseURL()
	if err != nil {
		return nil, err
	}
	return &Client{
		base:        base,
		hc:          &http.Client{Timeout: cfg.Timeout()},
		kv:          kv,
		invalidator: inv,
		locale:      cfg.Locale(),
	}, nil
}

// Do sends one request. body is JSON-marshaled when non-nil. hdr entries
// override defaults; an explicit Authorization header suppresses the
// stored-token injection.
func (c *Client) Do(ctx context.Context, method, path string, body any, hdr http.Header) (*Response, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(data)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	for k, vs := range hdr {
		req.Header[k] = vs
	}

	// Pre-send: attach the stored credential unless the caller already
	// set one. The token comes from durable storage, not session memory.
	// Absence is not an error; the request proceeds unauthenticated.
	if req.Header.Get("Authorization") == "" {
		tok, err := c.kv.Get(session.TokenKey)
		switch {
		case err == nil && tok != "":
			req.Header.Set("Authorization", "Bearer "+tok)
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			logger.Warn("token_read_failed", "error", err)
		}
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, c.classifyTransport(req.URL.Path, err)
	}
	defer resp.Body.Close()
	data, rerr := io.ReadAll(resp.Body)
	if rerr != nil {
		return nil, c.classifyTransport(req.URL.Path, rerr)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// Best-effort: the invalidation itself must never mask the
		// user-facing outcome.
		if c.invalidator != nil {
			c.invalidator.Invalidate(ctx)
		}
		metrics.RequestsTotal.WithLabelValues("session_expired").Inc()
		logger.Info("request_unauthorized", "path", req.URL.Path)
		return nil, &Error{
			Kind:    KindSessionExpired,
			Message: message(c.locale, KindSessionExpired),
			Status:  resp.StatusCode,
			Body:    data,
		}
	}

	if resp.StatusCode >= 400 {
		metrics.RequestsTotal.WithLabelValues("server_error").Inc()
	} else {
		metrics.RequestsTotal.WithLabelValues("ok").Inc()
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// classifyTransport maps a no-response failure: timeouts first, then
// everything else as unreachable.
func (c *Client) classifyTransport(path string, err error) error {
	var ne net.Error
	timeout := errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &ne) && ne.Timeout())
	if timeout {
		metrics.RequestsTotal.WithLabelValues("timeout").Inc()
		logger.Warn("request_timeout", "path", path, "error", err)
		return &Error{Kind: KindTimeout, Message: message(c.locale, KindTimeout), Err: err}
	}
	metrics.RequestsTotal.WithLabelValues("unreachable").Inc()
	logger.Warn("request_unreachable", "path", path, "error", err)
	return &Error{Kind: KindUnreachable, Message: message(c.locale, KindUnreachable), Err: err}
}

// Locale exposes the configured message locale to layers that build
// passthrough errors from response payloads.
func (c *Client) Locale() string { return c.locale }
