package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"arcsync/cmd/internal/telemetry"
	apiv1 "arcsync/shared/contracts/api/v1"

	"github.com/google/uuid"
)

// TokenProvider supplies bearer tokens. *session.Manager implements it.
type TokenProvider interface {
	GetValidToken(ctx context.Context) (string, error)
	// Refresh renews credentials after the server rejected the given
	// access token as expired.
	Refresh(ctx context.Context, rejected string) (string, error)
}

// Request describes one API call.
type Request struct {
	Method        string
	Path          string
	Query         url.Values
	Body          any
	Authenticated bool
}

// Gateway executes API requests. Safe for concurrent use.
type Gateway struct {
	cfg     Config
	base    *url.URL
	client  *http.Client
	tokens  TokenProvider
	log     *slog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
	rate    rateTracker
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithHTTPClient replaces the HTTP client. Its Timeout is left untouched.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		if c != nil {
			g.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(g *Gateway) {
		if log != nil {
			g.log = log
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithNowFunc overrides the clock used for rate-limit bookkeeping.
func WithNowFunc(fn func() time.Time) Option {
	return func(g *Gateway) {
		if fn != nil {
			g.now = fn
		}
	}
}

// New builds a Gateway. tokens may be nil when only unauthenticated
// requests are issued.
func New(cfg Config, tokens TokenProvider, opts ...Option) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, ErrConfig
	}

	g := &Gateway{
		cfg:    cfg,
		base:   base,
		client: &http.Client{Timeout: cfg.Timeout},
		tokens: tokens,
		log:    slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// RateLimit returns the latest advisory quota snapshot.
func (g *Gateway) RateLimit() RateLimit {
	return g.rate.load()
}

// Execute issues req and returns the envelope data on success.
func (g *Gateway) Execute(ctx context.Context, req Request) (json.RawMessage, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	var body []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("gateway: encode body: %w", err)
		}
		body = b
	}

	var bearer string
	if req.Authenticated {
		if g.tokens == nil {
			return nil, errors.New("gateway: authenticated request without token provider")
		}
		tok, err := g.tokens.GetValidToken(ctx)
		if err != nil {
			return nil, err
		}
		bearer = tok
	}

	res, err := g.roundTrip(ctx, req, body, bearer)
	if err != nil {
		return nil, err
	}

	if req.Authenticated && res.apiErr != nil && res.apiErr.CredentialExpired() {
		g.log.Info("gateway.retry", "method", req.Method, "path", req.Path, "request_id", res.apiErr.RequestID)
		tok, err := g.tokens.Refresh(ctx, bearer)
		if err != nil {
			return nil, err
		}
		g.metrics.IncRetry()
		if res, err = g.roundTrip(ctx, req, body, tok); err != nil {
			return nil, err
		}
	}

	if res.apiErr != nil {
		return nil, res.apiErr
	}
	return res.data, nil
}

// result is a decoded answer: exactly one of data and apiErr is set.
type result struct {
	data   json.RawMessage
	apiErr *Error
}

// roundTrip sends one HTTP request. The error return is reserved for
// network failures; server-side failures come back in result.apiErr.
func (g *Gateway) roundTrip(ctx context.Context, req Request, body []byte, bearer string) (result, error) {
	u := g.url(req)
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}

	hreq, err := http.NewRequestWithContext(ctx, req.Method, u, rdr)
	if err != nil {
		return result{}, fmt.Errorf("gateway: build request: %w", err)
	}
	reqID := uuid.NewString()
	hreq.Header.Set("Accept", "application/json")
	hreq.Header.Set("User-Agent", g.cfg.UserAgent)
	hreq.Header.Set(apiv1.HeaderRequestID, reqID)
	if body != nil {
		hreq.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		hreq.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := g.now()
	resp, err := g.client.Do(hreq)
	if err != nil {
		g.metrics.ObserveRequest(req.Method, 0, g.now().Sub(start))
		g.log.Warn("gateway.network", "method", req.Method, "path", req.Path, "request_id", reqID, "err", err)
		return result{}, &NetworkError{Op: req.Method, URL: req.Path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, g.cfg.MaxBodyBytes))
	if err != nil {
		g.metrics.ObserveRequest(req.Method, 0, g.now().Sub(start))
		return result{}, &NetworkError{Op: req.Method, URL: req.Path, Err: err}
	}

	if rl, ok := g.rate.observe(resp.Header, g.now()); ok {
		g.metrics.SetRateLimit(rl.Limit, rl.Remaining, rl.Reset)
	}
	g.metrics.ObserveRequest(req.Method, resp.StatusCode, g.now().Sub(start))
	g.log.Debug("gateway.request",
		"method", req.Method,
		"path", req.Path,
		"status", resp.StatusCode,
		"request_id", reqID,
		"took", g.now().Sub(start),
	)

	return decodeEnvelope(resp.StatusCode, raw, reqID), nil
}

func decodeEnvelope(status int, raw []byte, reqID string) result {
	var env apiv1.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		msg := http.StatusText(status)
		if status/100 == 2 {
			msg = "response body is not an envelope"
		}
		return result{apiErr: &Error{Status: status, Code: CodeBadEnvelope, Message: msg, RequestID: reqID}}
	}

	if status/100 == 2 && env.Success {
		if len(env.Data) == 0 {
			return result{data: json.RawMessage("null")}
		}
		return result{data: env.Data}
	}

	e := &Error{Status: status, RequestID: reqID}
	if env.Error != nil {
		e.Code, e.Message, e.Details = env.Error.Code, env.Error.Message, env.Error.Details
	} else {
		e.Code, e.Message = CodeBadEnvelope, "error response without error body"
	}
	return result{apiErr: e}
}

func (g *Gateway) url(req Request) string {
	u := *g.base
	u.Path = g.base.Path + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}
	return u.String()
}

// Do executes req and decodes the payload into T.
func Do[T any](ctx context.Context, g *Gateway, req Request) (T, error) {
	var out T
	raw, err := g.Execute(ctx, req)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("gateway: decode %s %s: %w", req.Method, req.Path, err)
	}
	return out, nil
}
