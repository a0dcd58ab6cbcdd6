package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"arcsync/cmd/internal/chat"
	"arcsync/cmd/internal/credstore"
	"arcsync/cmd/internal/devserver"
	"arcsync/cmd/internal/gateway"
	"arcsync/cmd/internal/querycache"
	"arcsync/cmd/internal/session"
	rtv1 "arcsync/shared/contracts/realtime/v1"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

func testConfig(url string) Config {
	cfg := DefaultConfig(url)
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.BackoffMin = time.Millisecond
	cfg.BackoffMax = 5 * time.Millisecond
	return cfg
}

func TestWebsocketURL(t *testing.T) {
	require.Equal(t, "ws://127.0.0.1:8080/v1/ws", WebsocketURL("http://127.0.0.1:8080"))
	require.Equal(t, "wss://api.example.com/v1/ws", WebsocketURL("https://api.example.com/base?x=1"))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig("http://localhost").Validate())

	bad := DefaultConfig("http://localhost")
	bad.URL = "http://localhost/v1/ws"
	require.ErrorIs(t, bad.Validate(), ErrConfig)

	bad = DefaultConfig("http://localhost")
	bad.BackoffMax = bad.BackoffMin / 2
	require.ErrorIs(t, bad.Validate(), ErrConfig)

	bad = DefaultConfig("http://localhost")
	bad.ReconnectAttempts = 0
	require.ErrorIs(t, bad.Validate(), ErrConfig)
}

func TestWatcher_MessageNewInvalidatesQueries(t *testing.T) {
	cfg := devserver.DefaultConfig()
	cfg.BcryptCost = bcrypt.MinCost
	srv, err := devserver.New(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.AddUser("u1", "ada@example.com", "correct horse"))
	require.NoError(t, srv.AddUser("u2", "bob@example.com", "battery staple"))
	srv.AddConversation("C1", "Ada & Bob", "u1", "u2")
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	sess, err := session.NewManager(session.DefaultConfig(), credstore.NewMemory(), session.NewHTTPRefresher(ts.URL, ts.Client()))
	require.NoError(t, err)
	t.Cleanup(sess.Close)

	gcfg := gateway.DefaultConfig()
	gcfg.BaseURL = ts.URL
	gw, err := gateway.New(gcfg, sess)
	require.NoError(t, err)
	cache := querycache.New(querycache.GatewayFetcher{G: gw}, nil)
	client := chat.New(gw, sess, cache)

	ctx := context.Background()
	require.NoError(t, client.Login(ctx, "ada@example.com", "correct horse"))
	_, err = client.Conversations(ctx)
	require.NoError(t, err)
	_, err = client.Messages(ctx, "C1")
	require.NoError(t, err)
	require.False(t, cache.IsStale(chat.ConversationsKey()))
	require.False(t, cache.IsStale(chat.MessagesKey("C1")))

	events := make(chan rtv1.Envelope, 8)
	w, err := New(testConfig(ts.URL), sess.TokenSource(ctx), cache, WithEventHook(func(env rtv1.Envelope) {
		events <- env
	}))
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	waitFor(t, events, rtv1.TypeHelloAck)

	_, err = srv.Post("C1", "u2", "hello from bob")
	require.NoError(t, err)

	env := waitFor(t, events, rtv1.TypeMessageNew)
	require.Equal(t, "C1", env.ConvID)
	require.True(t, cache.IsStale(chat.ConversationsKey()))
	require.True(t, cache.IsStale(chat.MessagesKey("C1")))

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_ApplyConversationRead(t *testing.T) {
	cache := querycache.New(querycache.FetcherFunc(func(context.Context, querycache.Key, string) (json.RawMessage, error) {
		return json.RawMessage(`{"items":[]}`), nil
	}), nil)
	_, err := cache.FetchPage(context.Background(), chat.ConversationsKey(), "")
	require.NoError(t, err)

	w, err := New(testConfig("http://localhost"), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "x"}), cache)
	require.NoError(t, err)

	// Invalid envelopes are ignored.
	w.Apply(rtv1.Envelope{V: rtv1.Version, Type: rtv1.TypeConversationRead})
	require.False(t, cache.IsStale(chat.ConversationsKey()))

	env, err := rtv1.New(rtv1.TypeConversationRead, "C1", time.Now(), rtv1.ConversationReadPayload{ConversationID: "C1"})
	require.NoError(t, err)
	w.Apply(env)
	require.True(t, cache.IsStale(chat.ConversationsKey()))
}

func TestWatcher_HelloAckInvalidatesConversationQueries(t *testing.T) {
	cache := querycache.New(querycache.FetcherFunc(func(context.Context, querycache.Key, string) (json.RawMessage, error) {
		return json.RawMessage(`{"items":[]}`), nil
	}), nil)
	ctx := context.Background()
	_, err := cache.FetchPage(ctx, chat.ConversationsKey(), "")
	require.NoError(t, err)
	_, err = cache.FetchPage(ctx, chat.MessagesKey("C1"), "")
	require.NoError(t, err)

	w, err := New(testConfig("http://localhost"), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "x"}), cache)
	require.NoError(t, err)

	env, err := rtv1.New(rtv1.TypeHelloAck, "", time.Now(), rtv1.HelloAckPayload{SessionID: "s1"})
	require.NoError(t, err)
	w.Apply(env)
	require.True(t, cache.IsStale(chat.ConversationsKey()))
	require.True(t, cache.IsStale(chat.MessagesKey("C1")))
}

func TestWatcher_GivesUpAfterReconnectBudget(t *testing.T) {
	ts := httptest.NewServer(nil)
	url := ts.URL
	ts.Close()

	cfg := testConfig(url)
	cfg.ReconnectAttempts = 3
	cfg.ReconnectWindow = time.Minute

	cache := querycache.New(querycache.FetcherFunc(func(context.Context, querycache.Key, string) (json.RawMessage, error) {
		return json.RawMessage(`{"items":[]}`), nil
	}), nil)
	w, err := New(cfg, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "x"}), cache)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.ErrorIs(t, w.Run(ctx), ErrReconnectBudget)
}

func waitFor(t *testing.T, ch <-chan rtv1.Envelope, typ string) rtv1.Envelope {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case env := <-ch:
			if env.Type == typ {
				return env
			}
		case <-deadline:
			t.Fatalf("no %s event", typ)
		}
	}
}
