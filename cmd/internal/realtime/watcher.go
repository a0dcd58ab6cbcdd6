package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"arcsync/cmd/internal/chat"
	"arcsync/cmd/internal/querycache"
	"arcsync/cmd/internal/ratelimit"
	"arcsync/cmd/internal/telemetry"
	apiv1 "arcsync/shared/contracts/api/v1"
	rtv1 "arcsync/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
	"golang.org/x/oauth2"
)

// ErrReconnectBudget is returned by Run when dials exceed the reconnect window.
var ErrReconnectBudget = errors.New("realtime: reconnect budget exhausted")

// Watcher invalidates cache keys on realtime events.
type Watcher struct {
	cfg     Config
	cache   *querycache.Cache
	client  *http.Client
	log     *slog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
	dials   *ratelimit.Window
	onEvent func(rtv1.Envelope)
}

// Option customizes a Watcher.
type Option func(*Watcher)

func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(w *Watcher) { w.metrics = m }
}

func WithNowFunc(now func() time.Time) Option {
	return func(w *Watcher) {
		if now != nil {
			w.now = now
		}
	}
}

// WithBaseTransport sets the transport under the bearer-token layer.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(w *Watcher) {
		if rt != nil {
			w.client.Transport.(*oauth2.Transport).Base = rt
		}
	}
}

// WithEventHook is called after each event has been applied.
func WithEventHook(fn func(rtv1.Envelope)) Option {
	return func(w *Watcher) { w.onEvent = fn }
}

// New returns a watcher that authorizes its dial with tokens.
func New(cfg Config, tokens oauth2.TokenSource, cache *querycache.Cache, opts ...Option) (*Watcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w := &Watcher{
		cfg:   cfg,
		cache: cache,
		// No client timeout: it would cut the upgraded connection.
		client: &http.Client{Transport: &oauth2.Transport{Source: tokens}},
		log:    slog.New(slog.DiscardHandler),
		now:    time.Now,
		dials:  ratelimit.New(cfg.ReconnectAttempts, cfg.ReconnectWindow),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run keeps a connection open until ctx ends. It returns ctx.Err() on
// cancellation and ErrReconnectBudget when dials keep failing.
func (w *Watcher) Run(ctx context.Context) error {
	backoff := w.cfg.BackoffMin
	for {
		if ok, q := w.dials.Allow(w.now()); !ok {
			w.log.Error("realtime.reconnect.exhausted", "limit", q.Limit, "reset", q.Reset)
			return ErrReconnectBudget
		}

		started := w.now()
		err := w.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A session that lived a while resets the backoff.
		if w.now().Sub(started) > w.cfg.BackoffMax {
			backoff = w.cfg.BackoffMin
		}
		w.log.Warn("realtime.disconnected", "err", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, w.cfg.BackoffMax)
	}
}

// session dials once and reads until the connection ends.
func (w *Watcher) session(ctx context.Context) error {
	dctx, cancel := context.WithTimeout(ctx, w.cfg.HandshakeTimeout)
	conn, _, err := websocket.Dial(dctx, w.cfg.URL, &websocket.DialOptions{
		HTTPClient:   w.client,
		Subprotocols: []string{rtv1.Subprotocol},
	})
	cancel()
	if err != nil {
		return fmt.Errorf("realtime: dial: %w", err)
	}
	defer func() { _ = conn.CloseNow() }()

	if sp := conn.Subprotocol(); sp != rtv1.Subprotocol {
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return fmt.Errorf("realtime: server chose subprotocol %q", sp)
	}
	conn.SetReadLimit(w.cfg.ReadLimit)

	w.log.Info("realtime.connected", "url", w.cfg.URL)
	for {
		env, err := readEnvelope(ctx, conn)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return err
		}
		w.Apply(env)
	}
}

// Apply invalidates the queries an event affects. Unknown or invalid
// envelopes are logged and ignored.
func (w *Watcher) Apply(env rtv1.Envelope) {
	if err := env.Validate(); err != nil {
		w.log.Warn("realtime.envelope.invalid", "err", err)
		return
	}
	w.metrics.IncRealtimeEvent(env.Type)

	switch env.Type {
	case rtv1.TypeMessageNew:
		w.cache.Invalidate(chat.MessagesKey(env.ConvID), chat.ConversationsKey())
	case rtv1.TypeConversationRead:
		w.cache.Invalidate(chat.ConversationsKey())
	case rtv1.TypeHelloAck:
		var p rtv1.HelloAckPayload
		_ = json.Unmarshal(env.Payload, &p)
		w.log.Debug("realtime.hello_ack", "session_id", p.SessionID)
		// Events sent while disconnected are lost.
		w.cache.InvalidateEndpoint(apiv1.PathConversations)
	case rtv1.TypeError:
		var p rtv1.ErrorPayload
		_ = json.Unmarshal(env.Payload, &p)
		w.log.Warn("realtime.server_error", "code", p.Code, "message", p.Message)
	}
	if w.onEvent != nil {
		w.onEvent(env)
	}
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (rtv1.Envelope, error) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return rtv1.Envelope{}, err
		}
		if typ != websocket.MessageText {
			continue
		}
		var env rtv1.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			// Skip malformed frames rather than dropping the stream.
			continue
		}
		return env, nil
	}
}
