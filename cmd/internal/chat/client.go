package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"arcsync/cmd/internal/gateway"
	"arcsync/cmd/internal/ids"
	"arcsync/cmd/internal/querycache"
	"arcsync/cmd/internal/session"
	"arcsync/cmd/internal/telemetry"
	apiv1 "arcsync/shared/contracts/api/v1"

	"github.com/google/uuid"
)

var (
	// ErrPendingEntity is returned for ids the server has not confirmed yet.
	ErrPendingEntity = errors.New("chat: entity is pending server confirmation")
	// ErrEmptyMessage is returned by SendMessage for blank content.
	ErrEmptyMessage = errors.New("chat: empty message")
)

// Client exposes the chat API through the sync layer. Safe for concurrent use.
type Client struct {
	gw      *gateway.Gateway
	sess    *session.Manager
	cache   *querycache.Cache
	log     *slog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
	onEnd   session.LogoutFunc
}

// Option customizes a Client.
type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithNowFunc(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSessionEnded is called after the client has wiped local state for an
// ended session, whether forced or requested.
func WithSessionEnded(fn session.LogoutFunc) Option {
	return func(c *Client) { c.onEnd = fn }
}

// New wires a client and takes over the manager's logout callback so that
// every ended session also drops cached query data.
func New(gw *gateway.Gateway, sess *session.Manager, cache *querycache.Cache, opts ...Option) *Client {
	c := &Client{
		gw:    gw,
		sess:  sess,
		cache: cache,
		log:   slog.New(slog.DiscardHandler),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	sess.OnLogout(c.sessionEnded)
	return c
}

func (c *Client) sessionEnded(reason session.LogoutReason, cause error) {
	if err := c.cache.Reset(context.Background()); err != nil {
		c.log.Error("chat.cache_reset_failed", "reason", reason, "err", err)
	}
	if c.onEnd != nil {
		c.onEnd(reason, cause)
	}
}

// Login exchanges credentials for a token pair and stores it.
func (c *Client) Login(ctx context.Context, email, password string) error {
	resp, err := gateway.Do[apiv1.TokenResponse](ctx, c.gw, gateway.Request{
		Method: http.MethodPost,
		Path:   apiv1.PathLogin,
		Body:   apiv1.LoginRequest{Email: strings.TrimSpace(email), Password: password},
	})
	if err != nil {
		return fmt.Errorf("chat: login: %w", err)
	}
	if err := c.sess.SaveTokenResponse(ctx, resp); err != nil {
		return fmt.Errorf("chat: login: %w", err)
	}
	c.log.Info("chat.login", "email_domain", emailDomain(email))
	return nil
}

// Logout ends the server session when reachable, then always ends the
// local one. A failed server call is logged, not returned.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.gw.Execute(ctx, gateway.Request{
		Method:        http.MethodPost,
		Path:          apiv1.PathLogout,
		Authenticated: true,
	})
	if err != nil && !errors.Is(err, session.ErrNotAuthenticated) {
		c.log.Warn("chat.logout.server_failed", "err", err)
	}
	if err := c.sess.Logout(ctx); err != nil {
		return fmt.Errorf("chat: logout: %w", err)
	}
	return nil
}

// Conversations returns every held page of the conversations list,
// refetching the first page when it is stale.
func (c *Client) Conversations(ctx context.Context) (Listing[apiv1.Conversation], error) {
	d, err := c.cache.Query(ctx, ConversationsKey())
	if err != nil {
		return Listing[apiv1.Conversation]{}, err
	}
	return listingOf[apiv1.Conversation](d)
}

// MoreConversations fetches the next page of the list.
func (c *Client) MoreConversations(ctx context.Context) (Listing[apiv1.Conversation], error) {
	d, err := c.cache.LoadMore(ctx, ConversationsKey())
	if err != nil {
		return Listing[apiv1.Conversation]{}, err
	}
	return listingOf[apiv1.Conversation](d)
}

// Messages returns the held pages of a conversation, newest first.
func (c *Client) Messages(ctx context.Context, conversationID string) (Listing[apiv1.Message], error) {
	if err := checkConfirmed(conversationID); err != nil {
		return Listing[apiv1.Message]{}, err
	}
	d, err := c.cache.Query(ctx, MessagesKey(conversationID))
	if err != nil {
		return Listing[apiv1.Message]{}, err
	}
	return listingOf[apiv1.Message](d)
}

// OlderMessages fetches the next older page of a conversation.
func (c *Client) OlderMessages(ctx context.Context, conversationID string) (Listing[apiv1.Message], error) {
	if err := checkConfirmed(conversationID); err != nil {
		return Listing[apiv1.Message]{}, err
	}
	key := MessagesKey(conversationID)
	d, err := c.cache.LoadMore(ctx, key)
	if err != nil {
		return Listing[apiv1.Message]{}, err
	}
	return listingOf[apiv1.Message](d)
}

// Cache exposes the underlying query cache for observers.
func (c *Client) Cache() *querycache.Cache { return c.cache }

func checkConfirmed(id string) error {
	if ids.IsTemporary(id) {
		return fmt.Errorf("%w: %s", ErrPendingEntity, id)
	}
	return nil
}

func emailDomain(email string) string {
	_, domain, ok := strings.Cut(strings.TrimSpace(email), "@")
	if !ok {
		return ""
	}
	return strings.ToLower(domain)
}

// newClientMsgID returns the idempotency key of one send.
func newClientMsgID() string { return uuid.NewString() }
